// Package presence reconciles gateway presence snapshots, recent
// agent/chat activity, and operator pause overrides into a single
// per-agent status.
package presence

import (
	"strings"
	"sync"
	"time"

	"github.com/corvidlabs/missionbridge/internal/domain"
	"github.com/corvidlabs/missionbridge/internal/xtime"
)

const defaultBusyWindow = 120 * time.Second

// Tracker owns presenceAgents, recentActivity, and pausedAgents.
// All mutating methods serialize through one mutex; callers still run
// each call as a single indivisible operation.
type Tracker struct {
	mu sync.Mutex

	presenceAgents map[string]struct{}
	recentActivity map[string]domain.ActivitySnapshot
	pausedAgents   map[string]struct{}

	aliases      map[string]string
	busyWindowMs int64
}

// New builds a Tracker. busyWindow defaults to 120s if zero.
func New(aliases map[string]string, busyWindow time.Duration) *Tracker {
	if busyWindow <= 0 {
		busyWindow = defaultBusyWindow
	}
	return &Tracker{
		presenceAgents: make(map[string]struct{}),
		recentActivity: make(map[string]domain.ActivitySnapshot),
		pausedAgents:   make(map[string]struct{}),
		aliases:        aliases,
		busyWindowMs:   busyWindow.Milliseconds(),
	}
}

// NormalizeAgentID trims, substitutes via the configured alias map, else
// unwraps an "agent:<id>:..." shape, else keeps the value as-is.
func (t *Tracker) NormalizeAgentID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" {
		return id
	}
	if alias, ok := t.aliases[id]; ok {
		return alias
	}
	if inner := AgentIDFromSessionKey(id); inner != "" {
		return inner
	}
	return id
}

// AgentIDFromSessionKey extracts the agent id segment of an
// "agent:<id>:<role>" session key, or "" if it isn't shaped that way.
func AgentIDFromSessionKey(sessionKey string) string {
	const prefix = "agent:"
	if !strings.HasPrefix(sessionKey, prefix) {
		return ""
	}
	rest := sessionKey[len(prefix):]
	idx := strings.Index(rest, ":")
	if idx < 0 {
		return ""
	}
	return rest[:idx]
}

// Status resolves an agent's current status: paused > busy > online.
func (t *Tracker) Status(agentID string, nowMs int64) domain.AgentStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked(agentID, nowMs)
}

func (t *Tracker) statusLocked(agentID string, nowMs int64) domain.AgentStatus {
	if _, paused := t.pausedAgents[agentID]; paused {
		return domain.AgentStatusPaused
	}
	if activity, ok := t.recentActivity[agentID]; ok {
		if nowMs-activity.LastActivity <= t.busyWindowMs {
			return domain.AgentStatusBusy
		}
	}
	return domain.AgentStatusOnline
}

// TrackSessionActivity records activity for an "agent"/"chat" frame and
// clears any paused override for that agent.
func (t *Tracker) TrackSessionActivity(agentID, sessionKey string, atMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recentActivity[agentID] = domain.ActivitySnapshot{LastActivity: atMs, SessionKey: sessionKey}
	delete(t.pausedAgents, agentID)
}

// SetPaused adds agentID to the paused set.
func (t *Tracker) SetPaused(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pausedAgents[agentID] = struct{}{}
}

// ClearPaused removes agentID from the paused set.
func (t *Tracker) ClearPaused(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pausedAgents, agentID)
}

// IsPaused reports whether agentID currently has a paused override.
func (t *Tracker) IsPaused(agentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pausedAgents[agentID]
	return ok
}

// OnDisconnect transitions every presence-tracked agent to offline and
// empties presenceAgents.
func (t *Tracker) OnDisconnect() []domain.AgentStatusUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := xtime.NowMillis()
	updates := make([]domain.AgentStatusUpdate, 0, len(t.presenceAgents))
	for agentID := range t.presenceAgents {
		updates = append(updates, domain.AgentStatusUpdate{
			AgentID:     agentID,
			Status:      domain.AgentStatusOffline,
			LastSeen:    now,
			SessionInfo: map[string]any{"reason": "gateway_disconnected"},
		})
	}
	t.presenceAgents = make(map[string]struct{})
	return updates
}

// ApplyPresenceSnapshot reconciles a presence snapshot into status
// updates: every present agent gets its resolved status, and every
// previously-present agent missing from the snapshot goes offline.
func (t *Tracker) ApplyPresenceSnapshot(snapshot domain.PresenceSnapshot) []domain.AgentStatusUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := xtime.NowMillis()
	seen := make(map[string]struct{}, len(snapshot.Entries))
	var updates []domain.AgentStatusUpdate

	for _, entry := range snapshot.Entries {
		agentID := t.resolveEntryAgentID(entry)
		if agentID == "" {
			continue
		}
		seen[agentID] = struct{}{}
		updates = append(updates, domain.AgentStatusUpdate{
			AgentID:  agentID,
			Status:   t.statusLocked(agentID, now),
			LastSeen: now,
		})
	}

	for agentID := range t.presenceAgents {
		if _, ok := seen[agentID]; !ok {
			updates = append(updates, domain.AgentStatusUpdate{
				AgentID:     agentID,
				Status:      domain.AgentStatusOffline,
				LastSeen:    now,
				SessionInfo: map[string]any{"reason": "presence_snapshot"},
			})
		}
	}

	t.presenceAgents = seen
	return updates
}

// resolveEntryAgentID picks a raw id by priority
// (agentIdFromSessionKey, agentId, deviceId) then normalizes it once.
func (t *Tracker) resolveEntryAgentID(entry domain.PresenceEntry) string {
	raw := AgentIDFromSessionKey(entry.SessionKey)
	if raw == "" {
		raw = entry.AgentID
	}
	if raw == "" {
		raw = entry.DeviceID
	}
	if raw == "" {
		return ""
	}
	return t.NormalizeAgentID(raw)
}
