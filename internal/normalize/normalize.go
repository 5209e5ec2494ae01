// Package normalize turns raw gateway frames into canonical BridgeEvents
// and the higher-level events derived from agent frames.
package normalize

import (
	"github.com/google/uuid"

	"github.com/corvidlabs/missionbridge/internal/domain"
	"github.com/corvidlabs/missionbridge/internal/xtime"
)

// NormalizeEventType maps a raw gateway event name to its canonical
// eventType, plus a status value to inject into the payload when the
// source event implies one that the payload doesn't already carry.
//
// Re-normalizing an already-canonical eventType is a no-op: every case
// below maps onto its own output, and the default branch is identity, so
// NormalizeEventType(NormalizeEventType(x)) == NormalizeEventType(x).
func NormalizeEventType(raw string) (eventType string, injectedStatus string) {
	switch raw {
	case "session.start", "session_start":
		return "session_start", ""
	case "session.end", "session_end":
		return "session_end", ""
	case "tool.call.start", "tool_call.started", "tool_call.start", "tool.call.started":
		return "tool_call", "started"
	case "tool.call.end", "tool_call.completed", "tool_call.end", "tool.call.completed", "tool_result":
		return "tool_result", "completed"
	case "tool.call.error", "tool_call.error", "tool_call.failed", "tool.call.failed":
		return "tool_result", "failed"
	case "memory.operation", "memory_operation":
		return "memory_operation", ""
	case "agent.thinking", "agent.reasoning", "reasoning":
		return "thinking", ""
	default:
		return raw, ""
	}
}

// ResolveAgentID resolves the agentId for a primary event, defaulting to
// "unknown". Presence frames are always attributed to "system".
func ResolveAgentID(rawEvent string, payload map[string]any) string {
	if rawEvent == "presence" {
		return "system"
	}
	if payload == nil {
		return "unknown"
	}
	if id := stringField(payload, "agentId", "agent_id", "deviceId", "runId", "sessionKey"); id != "" {
		return id
	}
	return "unknown"
}

// ResolveSessionKey resolves sessionKey from a payload.
func ResolveSessionKey(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	return stringField(payload, "sessionKey", "session_key", "sessionId")
}

// ResolveEventID resolves eventId from a payload, generating a fresh one
// if absent.
func ResolveEventID(payload map[string]any) string {
	if payload != nil {
		if id := stringField(payload, "eventId", "event_id"); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

// ResolveTimestamp resolves timestamp from a payload, defaulting to now.
func ResolveTimestamp(payload map[string]any) string {
	if payload != nil {
		if ts := stringField(payload, "timestamp", "createdAt"); ts != "" {
			return ts
		}
	}
	return xtime.NowISO()
}

// ResolveSequence resolves sequence from frame.Seq when present, else
// allocates the next local sequence number.
func ResolveSequence(frame domain.GatewayFrame, seq *Sequencer) int64 {
	if frame.Seq != nil {
		return *frame.Seq
	}
	return seq.Next()
}

// BuildPrimaryEvent builds the canonical primary BridgeEvent for a
// gateway event frame. Returns the event plus its resolved payload map
// (nil if the payload isn't object-shaped), for use by derivation rules.
func BuildPrimaryEvent(frame domain.GatewayFrame, seq *Sequencer) (domain.BridgeEvent, map[string]any) {
	payload, _ := asMap(frame.Payload)
	eventType, injectedStatus := NormalizeEventType(frame.Event)
	if injectedStatus != "" && payload != nil {
		if _, ok := payload["status"]; !ok {
			payload = withField(payload, "status", injectedStatus)
		}
	}

	runID := ""
	if payload != nil {
		runID = stringField(payload, "runId", "run_id")
	}

	event := domain.BridgeEvent{
		EventID:    ResolveEventID(payload),
		EventType:  eventType,
		AgentID:    ResolveAgentID(frame.Event, payload),
		SessionKey: ResolveSessionKey(payload),
		Timestamp:  ResolveTimestamp(payload),
		Sequence:   ResolveSequence(frame, seq),
		Payload:    frame.Payload,
		RunID:      runID,
	}
	return event, payload
}

// withField returns a shallow copy of obj with key set to value, so the
// raw frame payload the caller still holds a reference to is untouched.
func withField(obj map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(obj)+1)
	for k, v := range obj {
		out[k] = v
	}
	out[key] = value
	return out
}

// NewDerivedEvent builds a derived BridgeEvent inheriting identity fields
// from the primary event, with a fresh eventId and sequence.
func NewDerivedEvent(primary domain.BridgeEvent, eventType string, payload any, seq *Sequencer, sessionKeyOverride string) domain.BridgeEvent {
	sessionKey := primary.SessionKey
	if sessionKeyOverride != "" {
		sessionKey = sessionKeyOverride
	}
	return domain.BridgeEvent{
		EventID:         uuid.NewString(),
		EventType:       eventType,
		AgentID:         primary.AgentID,
		SessionKey:      sessionKey,
		Timestamp:       primary.Timestamp,
		Sequence:        seq.Next(),
		Payload:         payload,
		SourceEventID:   primary.EventID,
		SourceEventType: primary.EventType,
		RunID:           primary.RunID,
	}
}
