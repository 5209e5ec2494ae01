package normalize

import "github.com/corvidlabs/missionbridge/internal/domain"

// Derive runs every derivation rule against an "agent" frame's payload,
// returning all derived BridgeEvents in rule order. Frames whose
// raw event isn't "agent" derive nothing.
func Derive(rawEvent string, payload map[string]any, primary domain.BridgeEvent, seq *Sequencer) []domain.BridgeEvent {
	if rawEvent != "agent" || payload == nil {
		return nil
	}
	var out []domain.BridgeEvent
	out = append(out, DeriveToolEvents(payload, primary, seq)...)
	out = append(out, DeriveThinkingEvent(payload, primary, seq)...)
	out = append(out, DeriveErrorEvent(payload, primary, seq)...)
	out = append(out, DeriveTokenUsageEvent(payload, primary, seq)...)
	out = append(out, DeriveSessionEvents(payload, primary, seq)...)
	out = append(out, DeriveMemoryEvents(payload, primary, seq)...)
	out = append(out, DeriveDiagnosticEvents(payload, primary, seq)...)
	return out
}
