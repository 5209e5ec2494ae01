package normalize

import (
	"strings"

	"github.com/corvidlabs/missionbridge/internal/domain"
)

var sessionSlotKeys = []string{"session", "sessionEvent", "session_event", "sessionInfo", "sessionMetrics", "sessionLifecycle"}
var sessionNestedKeys = []string{"entries", "items", "events"}

// DeriveSessionEvents implements derivation rule 5.
func DeriveSessionEvents(payload map[string]any, primary domain.BridgeEvent, seq *Sequencer) []domain.BridgeEvent {
	if payload == nil {
		return nil
	}
	var out []domain.BridgeEvent
	for _, rec := range flattenSlots(payload, sessionSlotKeys, sessionNestedKeys) {
		kind, ok := classifySessionRecord(rec)
		if !ok {
			continue
		}
		sessionKey := stringField(rec, "sessionKey", "session_key", "sessionId")
		if sessionKey == "" {
			sessionKey = primary.SessionKey
		}
		out = append(out, NewDerivedEvent(primary, kind, rec, seq, sessionKey))
	}
	return out
}

func classifySessionRecord(rec map[string]any) (string, bool) {
	hint := strings.ToLower(stringField(rec, "event", "eventType", "type", "status", "state", "phase"))
	switch {
	case containsAny(hint, "start", "begin", "resume", "open"):
		return "session_start", true
	case containsAny(hint, "end", "stop", "close", "finish", "complete", "terminate"):
		return "session_end", true
	}
	if _, ok := firstPresent(rec, "endedAt", "ended_at", "endTime", "end_time"); ok {
		return "session_end", true
	}
	if _, ok := firstPresent(rec, "startedAt", "started_at", "startTime", "start_time"); ok {
		return "session_start", true
	}
	return "", false
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
