package gateway

import "encoding/json"

// DomainSink is the collaborator interface the core calls into for every
// decoded DISPATCH event. The core never caches these
// entities itself; it only decodes, updates seq, and routes.
type DomainSink interface {
	// HandleEvent receives one decoded dispatch event in wire order. name
	// is the event's "t" field; data is its still-undecoded "d" payload so
	// the sink can unmarshal into its own domain types.
	HandleEvent(name string, data json.RawMessage)

	// HandleUnknown receives an event whose name this core doesn't
	// recognize, preserved as a variant rather than silently dropped.
	HandleUnknown(name string, data json.RawMessage)
}

// knownReadyEvents are the dispatch names the ready orchestrator itself
// consumes; they're routed there in addition to, not instead of, the
// domain sink dispatch below.
var knownReadyEvents = map[string]bool{
	"GUILD_CREATE":        true,
	"GUILD_MEMBERS_CHUNK": true,
}

// recognizedDispatchEvents is the closed vocabulary this core recognizes
// well enough to hand to DomainSink.HandleEvent. It is not the exhaustive
// wire catalog (interpreting event bodies is the sink's job), but it's
// enough to route an unrecognized event name to HandleUnknown and the
// unknown signal instead of assuming it's safe to forward as-is.
var recognizedDispatchEvents = map[string]bool{
	"GUILD_CREATE":        true,
	"GUILD_UPDATE":        true,
	"GUILD_DELETE":        true,
	"GUILD_MEMBER_ADD":    true,
	"GUILD_MEMBER_REMOVE": true,
	"GUILD_MEMBER_UPDATE": true,
	"GUILD_MEMBERS_CHUNK": true,
	"CHANNEL_CREATE":      true,
	"CHANNEL_UPDATE":      true,
	"CHANNEL_DELETE":      true,
	"MESSAGE_CREATE":      true,
	"MESSAGE_UPDATE":      true,
	"MESSAGE_DELETE":      true,
	"PRESENCE_UPDATE":     true,
	"TYPING_START":        true,
	"USER_UPDATE":         true,
	"VOICE_STATE_UPDATE":  true,
	"RELATIONSHIP_ADD":    true,
	"RELATIONSHIP_REMOVE": true,
}
