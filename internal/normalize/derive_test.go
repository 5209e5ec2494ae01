package normalize

import (
	"testing"

	"github.com/corvidlabs/missionbridge/internal/domain"
)

func primaryFixture() domain.BridgeEvent {
	return domain.BridgeEvent{
		EventID:    "evt-1",
		EventType:  "agent",
		AgentID:    "agent_alpha",
		SessionKey: "agent:agent_alpha:main",
		Timestamp:  "2026-07-31T00:00:00Z",
		Sequence:   1,
	}
}

func TestDeriveToolEventsFromDelta(t *testing.T) {
	seq := &Sequencer{}
	payload := map[string]any{
		"delta": map[string]any{
			"type":       "tool_call",
			"toolName":   "read_file",
			"toolCallId": "call-1",
		},
	}
	events := DeriveToolEvents(payload, primaryFixture(), seq)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	fields := events[0].Payload.(map[string]any)
	if fields["status"] != "started" {
		t.Fatalf("status = %v, want started", fields["status"])
	}
	if events[0].SourceEventID != "evt-1" {
		t.Fatalf("sourceEventId = %q, want evt-1", events[0].SourceEventID)
	}
}

// no two derived tool events share (eventType, toolCallId|toolName, status).
func TestDeriveToolEventsDedup(t *testing.T) {
	seq := &Sequencer{}
	payload := map[string]any{
		"delta": map[string]any{"type": "tool_call", "toolCallId": "call-1", "toolName": "read_file"},
		"toolCalls": []any{
			map[string]any{"type": "tool_call", "toolCallId": "call-1", "toolName": "read_file"},
			map[string]any{"type": "tool_call", "toolCallId": "call-2", "toolName": "write_file"},
		},
	}
	events := DeriveToolEvents(payload, primaryFixture(), seq)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (dedup of call-1)", len(events))
	}
}

func TestDeriveThinkingFromKeyword(t *testing.T) {
	seq := &Sequencer{}
	payload := map[string]any{"reasoning": "considering options"}
	events := DeriveThinkingEvent(payload, primaryFixture(), seq)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	fields := events[0].Payload.(map[string]any)
	if fields["thinking"] != "considering options" {
		t.Fatalf("thinking = %v", fields["thinking"])
	}
}

func TestDeriveErrorFromStatus(t *testing.T) {
	seq := &Sequencer{}
	payload := map[string]any{"status": "error", "error": map[string]any{"message": "boom"}}
	events := DeriveErrorEvent(payload, primaryFixture(), seq)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	fields := events[0].Payload.(map[string]any)
	if fields["message"] != "boom" {
		t.Fatalf("message = %v, want boom", fields["message"])
	}
}

func TestDeriveTokenUsageComputesTotal(t *testing.T) {
	seq := &Sequencer{}
	payload := map[string]any{"summary": map[string]any{"inputTokens": 10.0, "outputTokens": 5.0}}
	events := DeriveTokenUsageEvent(payload, primaryFixture(), seq)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	fields := events[0].Payload.(map[string]any)
	if fields["totalTokens"] != 15.0 {
		t.Fatalf("totalTokens = %v, want 15", fields["totalTokens"])
	}
}

func TestDeriveTokenUsageAbsentReturnsNil(t *testing.T) {
	seq := &Sequencer{}
	if events := DeriveTokenUsageEvent(map[string]any{}, primaryFixture(), seq); events != nil {
		t.Fatalf("expected nil, got %v", events)
	}
}

func TestDeriveSessionEventsClassifiesByHint(t *testing.T) {
	seq := &Sequencer{}
	payload := map[string]any{"session": map[string]any{"event": "session.ended", "sessionKey": "agent:agent_alpha:main"}}
	events := DeriveSessionEvents(payload, primaryFixture(), seq)
	if len(events) != 1 || events[0].EventType != "session_end" {
		t.Fatalf("events = %+v, want one session_end", events)
	}
}

func TestDeriveMemoryEventsFromOperationField(t *testing.T) {
	seq := &Sequencer{}
	payload := map[string]any{"memory": map[string]any{"operation": "store", "key": "k1"}}
	events := DeriveMemoryEvents(payload, primaryFixture(), seq)
	if len(events) != 1 || events[0].EventType != "memory_operation" {
		t.Fatalf("events = %+v, want one memory_operation", events)
	}
}

func TestDeriveDiagnosticEventsFlattensEntries(t *testing.T) {
	seq := &Sequencer{}
	payload := map[string]any{
		"diagnostics": map[string]any{
			"entries": []any{
				map[string]any{"level": "warn", "message": "slow"},
			},
		},
	}
	events := DeriveDiagnosticEvents(payload, primaryFixture(), seq)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
}

func TestDeriveSkipsNonAgentFrames(t *testing.T) {
	seq := &Sequencer{}
	payload := map[string]any{"reasoning": "x"}
	if events := Derive("chat", payload, primaryFixture(), seq); events != nil {
		t.Fatalf("expected nil for non-agent frame, got %v", events)
	}
}
