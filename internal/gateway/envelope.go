package gateway

import "encoding/json"

// Envelope is the wire shape every gateway frame decodes to, compact binary
// or JSON alike: {op, d, s?, t?}.
type Envelope struct {
	Op Op              `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *uint64         `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// Hello is the payload of an OpHello frame.
type Hello struct {
	HeartbeatIntervalMs int      `json:"heartbeat_interval"`
	Trace               []string `json:"_trace"`
}

// identifyProperties describes the connecting client sent on IDENTIFY.
type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// identifyPayload is the OpIdentify body.
type identifyPayload struct {
	Token          string              `json:"token"`
	V              int                 `json:"v"`
	Compress       bool                `json:"compress"`
	LargeThreshold uint32              `json:"large_threshold"`
	Properties     identifyProperties  `json:"properties"`
	Shard          *[2]int             `json:"shard,omitempty"`
	Presence       *presenceWirePacket `json:"presence,omitempty"`
}

// resumePayload is the OpResume body.
type resumePayload struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       uint64 `json:"seq"`
}

// invalidSessionPayload is the OpInvalidSession body: a single bool telling
// the client whether the session is resumable. This core never decodes it:
// it always re-identifies on session loss regardless of the value.
type invalidSessionPayload bool

// readyPayload is the subset of READY's dispatch payload the ready
// orchestrator needs.
type readyPayload struct {
	SessionID string          `json:"session_id"`
	Guilds    []readyGuildRef `json:"guilds"`
}

type readyGuildRef struct {
	ID          string `json:"id"`
	Unavailable bool   `json:"unavailable"`
}

// guildCreatePayload is the subset of GUILD_CREATE the ready orchestrator
// needs to decrement its unavailable-guild counter.
type guildCreatePayload struct {
	ID   string `json:"id"`
	Bot  bool   `json:"-"` // never present on the wire and never set; handleGuildCreate reads the session config instead
}

// membersChunkPayload is the subset of GUILD_MEMBERS_CHUNK needed by the
// ready orchestrator.
type membersChunkPayload struct {
	GuildID string `json:"guild_id"`
	ChunkIndex int `json:"chunk_index"`
	ChunkCount int `json:"chunk_count"`
}
