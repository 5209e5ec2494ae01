package normalize

import (
	"strings"

	"github.com/corvidlabs/missionbridge/internal/domain"
)

var memorySlotKeys = []string{"memoryOperation", "memoryOperations", "memoryEvent", "memoryEvents", "memoryOps", "memory"}
var memoryNestedKeys = []string{"entries", "events", "items", "operations"}

// DeriveMemoryEvents implements derivation rule 6.
func DeriveMemoryEvents(payload map[string]any, primary domain.BridgeEvent, seq *Sequencer) []domain.BridgeEvent {
	if payload == nil {
		return nil
	}
	var out []domain.BridgeEvent
	for _, rec := range flattenSlots(payload, memorySlotKeys, memoryNestedKeys) {
		if !isMemoryRecord(rec) {
			continue
		}
		out = append(out, NewDerivedEvent(primary, "memory_operation", rec, seq, ""))
	}
	return out
}

func isMemoryRecord(rec map[string]any) bool {
	if _, ok := firstPresent(rec, "operation", "op", "action"); ok {
		return true
	}
	if _, ok := firstPresent(rec, "success", "ok"); ok {
		return true
	}
	kind := strings.ToLower(stringField(rec, "eventType", "type"))
	return strings.Contains(kind, "memory")
}
