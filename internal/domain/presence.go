package domain

// PresenceEntry is one connected device/agent from a presence snapshot.
type PresenceEntry struct {
	DeviceID    string   `json:"deviceId"`
	AgentID     string   `json:"agentId,omitempty"`
	SessionKey  string   `json:"sessionKey,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
	ConnectedAt string   `json:"connectedAt,omitempty"`
	LastSeen    string   `json:"lastSeen,omitempty"`
}

// PresenceSnapshot is a point-in-time view of all connected devices/agents.
type PresenceSnapshot struct {
	Entries    []PresenceEntry `json:"entries"`
	ObservedAt string          `json:"observedAt"`
}

// AgentStatus is the resolved status of an agent, posted to the state store.
type AgentStatus string

const (
	AgentStatusOnline  AgentStatus = "online"
	AgentStatusOffline AgentStatus = "offline"
	AgentStatusBusy    AgentStatus = "busy"
	AgentStatusPaused  AgentStatus = "paused"
)

// AgentStatusUpdate is posted to the state store's /agents/update-status endpoint.
type AgentStatusUpdate struct {
	AgentID     string      `json:"agentId"`
	Status      AgentStatus `json:"status"`
	LastSeen    int64       `json:"lastSeen"`
	SessionInfo any         `json:"sessionInfo,omitempty"`
}

// ActivitySnapshot is in-memory per-agent activity bookkeeping.
type ActivitySnapshot struct {
	LastActivity int64
	SessionKey   string
}
