package presence

import (
	"testing"
	"time"

	"github.com/corvidlabs/missionbridge/internal/domain"
)

func TestStatusPrecedencePausedBeatsBusy(t *testing.T) {
	tr := New(nil, 0)
	tr.TrackSessionActivity("agent_1", "agent:agent_1:main", 1000)
	tr.SetPaused("agent_1")
	if got := tr.Status("agent_1", 1000); got != domain.AgentStatusPaused {
		t.Fatalf("status = %v, want paused", got)
	}
}

func TestStatusBusyWithinWindow(t *testing.T) {
	tr := New(nil, 120*time.Second)
	tr.TrackSessionActivity("agent_1", "", 1000)
	if got := tr.Status("agent_1", 1000+60_000); got != domain.AgentStatusBusy {
		t.Fatalf("status = %v, want busy", got)
	}
}

func TestStatusOnlineAfterWindow(t *testing.T) {
	tr := New(nil, 120*time.Second)
	tr.TrackSessionActivity("agent_1", "", 1000)
	if got := tr.Status("agent_1", 1000+121_000); got != domain.AgentStatusOnline {
		t.Fatalf("status = %v, want online", got)
	}
}

// a pause survives absent intervening activity/snapshot.
func TestPauseOverrideSurvivesUntilActivity(t *testing.T) {
	tr := New(nil, 0)
	tr.SetPaused("agent_1")
	if !tr.IsPaused("agent_1") {
		t.Fatal("expected paused")
	}
	tr.TrackSessionActivity("agent_1", "", 1000)
	if tr.IsPaused("agent_1") {
		t.Fatal("activity should clear paused override")
	}
}

func TestNormalizeAgentIDPrefersAlias(t *testing.T) {
	tr := New(map[string]string{"legacy_1": "agent_1"}, 0)
	if got := tr.NormalizeAgentID("legacy_1"); got != "agent_1" {
		t.Fatalf("got %q, want agent_1", got)
	}
}

func TestNormalizeAgentIDUnwrapsSessionKeyShape(t *testing.T) {
	tr := New(nil, 0)
	if got := tr.NormalizeAgentID("agent:agent_7:main"); got != "agent_7" {
		t.Fatalf("got %q, want agent_7", got)
	}
}

// snapshot reconciliation produces exactly one update per affected agent.
func TestApplyPresenceSnapshotProducesOfflineForMissingAgents(t *testing.T) {
	tr := New(nil, 0)
	tr.ApplyPresenceSnapshot(domain.PresenceSnapshot{Entries: []domain.PresenceEntry{
		{DeviceID: "dev1", AgentID: "agent_a"},
		{DeviceID: "dev2", AgentID: "agent_b"},
	}})

	updates := tr.ApplyPresenceSnapshot(domain.PresenceSnapshot{Entries: []domain.PresenceEntry{
		{DeviceID: "dev1", AgentID: "agent_a"},
	}})

	byAgent := make(map[string]domain.AgentStatus)
	for _, u := range updates {
		byAgent[u.AgentID] = u.Status
	}
	if byAgent["agent_a"] != domain.AgentStatusOnline {
		t.Fatalf("agent_a status = %v, want online", byAgent["agent_a"])
	}
	if byAgent["agent_b"] != domain.AgentStatusOffline {
		t.Fatalf("agent_b status = %v, want offline", byAgent["agent_b"])
	}
}

func TestOnDisconnectEmptiesPresenceAgents(t *testing.T) {
	tr := New(nil, 0)
	tr.ApplyPresenceSnapshot(domain.PresenceSnapshot{Entries: []domain.PresenceEntry{
		{DeviceID: "dev1", AgentID: "agent_a"},
	}})

	updates := tr.OnDisconnect()
	if len(updates) != 1 || updates[0].AgentID != "agent_a" || updates[0].Status != domain.AgentStatusOffline {
		t.Fatalf("unexpected updates: %+v", updates)
	}

	second := tr.OnDisconnect()
	if len(second) != 0 {
		t.Fatalf("expected empty on second disconnect, got %+v", second)
	}
}

func TestResolveEntryAgentIDPrefersSessionKeyDerivedID(t *testing.T) {
	tr := New(nil, 0)
	entry := domain.PresenceEntry{SessionKey: "agent:agent_9:main", AgentID: "ignored", DeviceID: "dev1"}
	if got := tr.resolveEntryAgentID(entry); got != "agent_9" {
		t.Fatalf("got %q, want agent_9", got)
	}
}
