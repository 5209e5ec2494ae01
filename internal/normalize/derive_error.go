package normalize

import "github.com/corvidlabs/missionbridge/internal/domain"

var errorSlotKeys = []string{"error", "exception"}
var errorFieldKeys = []string{"message", "stack", "code", "severity", "recoverable", "context"}

// DeriveErrorEvent implements derivation rule 3.
func DeriveErrorEvent(payload map[string]any, primary domain.BridgeEvent, seq *Sequencer) []domain.BridgeEvent {
	if payload == nil {
		return nil
	}
	d := delta(payload)

	status := stringField(payload, "status")
	triggered := status == "error" || normalizeToolStatus(status, "") == "failed"

	var source map[string]any
	if triggered {
		source, _ = findErrorSlot(payload, errorSlotKeys)
	} else {
		source, triggered = findErrorSlot(payload, errorSlotKeys)
	}
	if !triggered && d != nil {
		source, triggered = findErrorSlot(d, errorSlotKeys)
		if !triggered {
			if _, found := firstPresent(d, errorFieldKeys...); found {
				source = d
				triggered = true
			}
		}
	}
	if !triggered {
		return nil
	}
	if source == nil {
		source = payload
	}

	fields := map[string]any{}
	for _, k := range errorFieldKeys {
		if v, ok := firstPresent(source, k); ok {
			fields[k] = v
		}
	}

	return []domain.BridgeEvent{NewDerivedEvent(primary, "error", fields, seq, "")}
}

func findErrorSlot(obj map[string]any, slotKeys []string) (map[string]any, bool) {
	for _, key := range slotKeys {
		m, ok := asMap(obj[key])
		if !ok {
			continue
		}
		if _, found := firstPresent(m, errorFieldKeys...); found {
			return m, true
		}
	}
	return nil, false
}
