package normalize

import "github.com/corvidlabs/missionbridge/internal/domain"

var diagnosticSlotKeys = []string{"diagnostic", "diagnostics"}
var diagnosticNestedKeys = []string{"entries", "items"}

// DeriveDiagnosticEvents implements derivation rule 7: diagnostic
// extraction runs unconditionally on every agent frame, independent of
// whatever rules 1-6 found.
func DeriveDiagnosticEvents(payload map[string]any, primary domain.BridgeEvent, seq *Sequencer) []domain.BridgeEvent {
	if payload == nil {
		return nil
	}
	records := flattenSlots(payload, diagnosticSlotKeys, diagnosticNestedKeys)
	if d := delta(payload); d != nil {
		records = append(records, flattenSlots(d, diagnosticSlotKeys, diagnosticNestedKeys)...)
	}

	var out []domain.BridgeEvent
	for _, rec := range records {
		out = append(out, NewDerivedEvent(primary, "diagnostic", rec, seq, ""))
	}
	return out
}
