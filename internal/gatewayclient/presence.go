package gatewayclient

import (
	"github.com/corvidlabs/missionbridge/internal/domain"
	"github.com/corvidlabs/missionbridge/internal/xtime"
)

// ParsePresencePayload parses a "presence" event's payload into a
// PresenceSnapshot. It accepts an object
// with an "entries" array; entries missing a non-empty deviceId are
// dropped. Returns ok=false if payload isn't shaped like a presence
// snapshot at all.
func ParsePresencePayload(payload any) (domain.PresenceSnapshot, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return domain.PresenceSnapshot{}, false
	}
	rawEntries, ok := obj["entries"].([]any)
	if !ok {
		return domain.PresenceSnapshot{}, false
	}

	entries := make([]domain.PresenceEntry, 0, len(rawEntries))
	for _, rawEntry := range rawEntries {
		entryObj, ok := rawEntry.(map[string]any)
		if !ok {
			continue
		}
		deviceID := stringField(entryObj, "deviceId", "device_id")
		if deviceID == "" {
			continue
		}
		entries = append(entries, domain.PresenceEntry{
			DeviceID:    deviceID,
			AgentID:     stringField(entryObj, "agentId", "agent_id"),
			SessionKey:  stringField(entryObj, "sessionKey", "session_key"),
			Roles:       stringSliceField(entryObj, "roles"),
			Scopes:      stringSliceField(entryObj, "scopes"),
			ConnectedAt: stringField(entryObj, "connectedAt", "connected_at"),
			LastSeen:    stringField(entryObj, "lastSeen", "last_seen"),
		})
	}

	return domain.PresenceSnapshot{Entries: entries, ObservedAt: xtime.NowISO()}, true
}

// stringField looks up the first present key among candidates and returns
// it as a string, or "" if none are present or the value isn't a string.
func stringField(obj map[string]any, candidates ...string) string {
	for _, key := range candidates {
		if v, ok := obj[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// stringSliceField returns a non-empty []string for key, or nil.
func stringSliceField(obj map[string]any, key string) []string {
	raw, ok := obj[key].([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
