package normalize

import "github.com/corvidlabs/missionbridge/internal/domain"

// DeriveThinkingEvent implements derivation rule 2.
func DeriveThinkingEvent(payload map[string]any, primary domain.BridgeEvent, seq *Sequencer) []domain.BridgeEvent {
	if payload == nil {
		return nil
	}
	d := delta(payload)

	triggered := false
	if d != nil {
		switch stringField(d, "type") {
		case "thinking", "reasoning":
			triggered = true
		}
	}
	if !triggered {
		if _, ok := firstPresent(payload, "thinking", "thought", "reasoning", "analysis"); ok {
			triggered = true
		}
	}
	if !triggered && d != nil {
		if _, ok := firstPresent(d, "thinking", "thought", "reasoning", "analysis"); ok {
			triggered = true
		}
	}
	if !triggered && d == nil && stringField(payload, "status") == "started" {
		triggered = true
	}
	if !triggered {
		return nil
	}

	fields := map[string]any{
		"status":   coalesceStatus(d, payload),
		"thinking": coalesceString(d, payload, "thinking", "thought", "reasoning", "analysis"),
	}
	if v, ok := coalesceAny(d, payload, "phase"); ok {
		fields["phase"] = v
	}
	if v, ok := coalesceAny(d, payload, "confidence"); ok {
		fields["confidence"] = v
	}

	return []domain.BridgeEvent{NewDerivedEvent(primary, "thinking", fields, seq, "")}
}
