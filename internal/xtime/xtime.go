// Package xtime centralizes the timestamp formats used across the bridge
// so every component stamps events the same way.
package xtime

import "time"

// NowISO returns the current time as an ISO-8601 / RFC3339Nano string, the
// format BridgeEvent.Timestamp and PresenceSnapshot.ObservedAt use.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// NowMillis returns the current time as epoch milliseconds, the format
// AgentStatusUpdate.LastSeen uses.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
