package domain

// BridgeEvent is the canonical event the bridge ingests into the state
// store. Every batch delivered to the state store consists entirely of
// BridgeEvents. EventID is unique per event; Sequence is
// monotone non-decreasing within one bridge instance.
type BridgeEvent struct {
	EventID         string `json:"eventId"`
	EventType       string `json:"eventType"`
	AgentID         string `json:"agentId"`
	SessionKey      string `json:"sessionKey,omitempty"`
	Timestamp       string `json:"timestamp"`
	Sequence        int64  `json:"sequence"`
	Payload         any    `json:"payload"`
	SourceEventID   string `json:"sourceEventId,omitempty"`
	SourceEventType string `json:"sourceEventType,omitempty"`
	RunID           string `json:"runId,omitempty"`
}
