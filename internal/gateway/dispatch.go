package gateway

import "encoding/json"

// handleEnvelope classifies a decoded envelope by op, updates seq, and
// routes to the session state machine or the domain sink.
func (s *Session) handleEnvelope(env Envelope) {
	s.updateSeq(env)

	switch env.Op {
	case OpDispatch:
		s.handleDispatch(env)
	case OpHeartbeat:
		s.onServerHeartbeat()
	case OpInvalidSession:
		s.handleInvalidSession(env)
	case OpReconnect:
		s.emitWarn("gateway requested reconnect")
		s.disconnect(disconnectOptions{reconnect: true})
	case OpHello:
		s.handleHello(env)
	case OpHeartbeatAck:
		s.onHeartbeatAck()
	default:
		s.emitDebug("unknown op received")
	}
}

// updateSeq applies the seq update policy: always assign when s is
// present; warn once on a forward jump > 1 while live and not resuming.
func (s *Session) updateSeq(env Envelope) {
	if env.S == nil {
		return
	}
	incoming := *env.S
	if incoming > s.seq+1 && s.status == statusReady && !s.resuming {
		s.metrics.seqGaps.Inc()
		s.emitWarn("non-consecutive sequence number observed")
	}
	s.seq = incoming
}

func (s *Session) handleDispatch(env Envelope) {
	if env.T == "READY" {
		s.handleReadyPayload(env.D)
		return
	}
	if env.T == "RESUMED" {
		s.handleResumed()
		return
	}

	if s.disabledEvents[env.T] {
		return
	}

	if env.T == "GUILD_CREATE" {
		s.handleGuildCreate(env.D)
	}
	if env.T == "GUILD_MEMBERS_CHUNK" {
		s.handleMembersChunk(env.D)
	}

	if !s.status.isReadyForEvents(s.preReady) {
		return
	}
	if env.T == "" {
		return
	}

	if recognizedDispatchEvents[env.T] {
		s.sink.HandleEvent(env.T, env.D)
		return
	}
	s.emitUnknown(env.T, env.D)
	s.sink.HandleUnknown(env.T, env.D)
}

func (s *Session) handleGuildCreate(data json.RawMessage) {
	var g guildCreatePayload
	if err := json.Unmarshal(data, &g); err != nil {
		s.emitDebug("failed to decode GUILD_CREATE for ready tracking")
		return
	}
	wasUnavailable := s.unavailableGuilds[g.ID]
	if wasUnavailable {
		delete(s.unavailableGuilds, g.ID)
	}
	s.ready.onGuildCreate(wasUnavailable, s.cfg.Bot)
}

func (s *Session) handleMembersChunk(data json.RawMessage) {
	var chunk membersChunkPayload
	if err := json.Unmarshal(data, &chunk); err != nil {
		s.emitDebug("failed to decode GUILD_MEMBERS_CHUNK for ready tracking")
		return
	}
	s.ready.onMembersChunk(chunk.GuildID)
}

func (s *Session) handleInvalidSession(env Envelope) {
	s.seq = 0
	s.sessionID = ""
	s.emitWarn("invalid session, re-identifying")
	s.identify()
}

func (s *Session) handleHello(env Envelope) {
	var hello Hello
	if err := json.Unmarshal(env.D, &hello); err != nil {
		s.emitError(err)
		return
	}
	s.serverTrace = hello.Trace
	s.emitHello(hello.Trace)

	if hello.HeartbeatIntervalMs > 0 {
		s.armHeartbeat(hello.HeartbeatIntervalMs)
	}

	if s.sessionID == "" {
		s.status = statusHandshaking
		s.identify()
	} else {
		s.status = statusResuming
		s.resuming = true
		s.resume()
	}
}

func (s *Session) handleReadyPayload(data json.RawMessage) {
	var ready readyPayload
	if err := json.Unmarshal(data, &ready); err != nil {
		s.emitError(err)
		return
	}

	s.sessionID = ready.SessionID
	s.connectAttempts = 0
	s.resuming = false
	s.unavailableGuilds = make(map[string]bool, len(ready.Guilds))
	for _, g := range ready.Guilds {
		if g.Unavailable {
			s.unavailableGuilds[g.ID] = true
		}
	}

	s.preReady = true
	s.emitShardPreReady()
	s.ready.begin(ready.Guilds, s.cfg.Bot)
}

func (s *Session) handleResumed() {
	s.status = statusReady
	s.resuming = false
	s.connectAttempts = 0
	s.preReady = false
	s.emitResume()
}
