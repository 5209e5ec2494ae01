package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/corvidlabs/missionbridge/internal/domain"
	"github.com/corvidlabs/missionbridge/internal/eventbuffer"
	"github.com/corvidlabs/missionbridge/internal/gatewayclient"
	"github.com/corvidlabs/missionbridge/internal/presence"
)

type fakeGateway struct {
	mu       sync.Mutex
	observer gatewayclient.Observer
	calls    []string
	results  map[string]any
	errs     map[string]error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{results: map[string]any{}, errs: map[string]error{}}
}

func (g *fakeGateway) SetObserver(o gatewayclient.Observer) { g.observer = o }
func (g *fakeGateway) Start(ctx context.Context)            {}

func (g *fakeGateway) Subscribe(ctx context.Context, events []string) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "subscribe")
	return nil, nil
}

func (g *fakeGateway) Call(ctx context.Context, method string, params any) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, method)
	return g.results[method], g.errs[method]
}

func (g *fakeGateway) GetConnectionState() domain.GatewayConnectionState {
	return domain.GatewayConnectionState{Connected: true}
}

func (g *fakeGateway) HealthCheck(ctx context.Context) (any, error) { return nil, nil }

type fakeStore struct {
	mu          sync.Mutex
	ingested    [][]domain.BridgeEvent
	ingestErr   error
	statusBatch [][]domain.AgentStatusUpdate
}

func (s *fakeStore) IngestEvents(ctx context.Context, events []domain.BridgeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ingestErr != nil {
		return s.ingestErr
	}
	s.ingested = append(s.ingested, events)
	return nil
}

func (s *fakeStore) UpdateAgentStatuses(ctx context.Context, updates []domain.AgentStatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusBatch = append(s.statusBatch, updates)
	return nil
}

func newTestBridge(gw *fakeGateway, store *fakeStore) *Bridge {
	return New(Deps{
		Gateway:       gw,
		Tracker:       presence.New(nil, time.Minute*2),
		Buffer:        eventbuffer.New(50),
		Store:         store,
		BatchInterval: time.Hour, // tests trigger flush manually
	})
}

func TestFlushPostsDrainedBatchAndClearsBuffer(t *testing.T) {
	gw := newFakeGateway()
	store := &fakeStore{}
	b := newTestBridge(gw, store)

	b.enqueue(domain.BridgeEvent{EventID: "1", EventType: "thinking"})
	b.flush(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.ingested) != 1 || len(store.ingested[0]) != 1 {
		t.Fatalf("ingested = %+v, want one batch of one event", store.ingested)
	}
	if b.buffer.Size() != 0 {
		t.Errorf("buffer size = %d, want 0 after flush", b.buffer.Size())
	}
}

func TestFlushRequeuesOnIngestFailurePreservingOrder(t *testing.T) {
	gw := newFakeGateway()
	store := &fakeStore{ingestErr: errors.New("network down")}
	b := newTestBridge(gw, store)

	b.enqueue(domain.BridgeEvent{EventID: "1"})
	b.enqueue(domain.BridgeEvent{EventID: "2"})
	b.flush(context.Background())

	if b.buffer.Size() != 2 {
		t.Fatalf("buffer size after failed flush = %d, want 2", b.buffer.Size())
	}

	store.ingestErr = nil
	b.enqueue(domain.BridgeEvent{EventID: "3"})
	b.flush(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.ingested) != 1 {
		t.Fatalf("expected exactly one successful ingest call, got %d", len(store.ingested))
	}
	got := store.ingested[0]
	if len(got) != 3 || got[0].EventID != "1" || got[1].EventID != "2" || got[2].EventID != "3" {
		t.Errorf("ingested batch = %+v, want [1,2,3] in order", got)
	}
}

func TestGapDetectionReportsGapAfterThreshold(t *testing.T) {
	gw := newFakeGateway()
	store := &fakeStore{}
	b := newTestBridge(gw, store)

	now := time.Now()
	if gap := b.markEventTime(now); gap {
		t.Fatalf("first event should never report a gap")
	}
	later := now.Add(6 * time.Second)
	if gap := b.markEventTime(later); !gap {
		t.Errorf("expected gap after 6s silence, got none")
	}
	immediatelyAfter := later.Add(1 * time.Second)
	if gap := b.markEventTime(immediatelyAfter); gap {
		t.Errorf("no gap expected for an event 1s after the previous one")
	}
}

func TestOnEventEnqueuesPrimaryAndDerivedEvents(t *testing.T) {
	gw := newFakeGateway()
	store := &fakeStore{}
	b := newTestBridge(gw, store)

	frame := domain.GatewayFrame{
		Type:  domain.FrameTypeEvent,
		Event: "agent",
		Payload: map[string]any{
			"agentId": "agent_x",
			"delta":   map[string]any{"type": "thinking", "thinking": "considering options"},
		},
	}
	b.OnEvent(frame)

	if b.buffer.Size() != 2 {
		t.Fatalf("buffer size = %d, want 2 (primary plus derived thinking event)", b.buffer.Size())
	}
}

func TestOnDisconnectedPostsOfflineStatuses(t *testing.T) {
	gw := newFakeGateway()
	store := &fakeStore{}
	b := newTestBridge(gw, store)

	b.tracker.ApplyPresenceSnapshot(domain.PresenceSnapshot{
		Entries: []domain.PresenceEntry{{DeviceID: "dev1", AgentID: "agent_a"}},
	})
	store.mu.Lock()
	store.statusBatch = nil
	store.mu.Unlock()

	b.OnDisconnected()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.statusBatch) != 1 || len(store.statusBatch[0]) != 1 {
		t.Fatalf("status batches = %+v, want one batch of one offline update", store.statusBatch)
	}
	if store.statusBatch[0][0].Status != domain.AgentStatusOffline {
		t.Errorf("status = %v, want offline", store.statusBatch[0][0].Status)
	}
}

func TestInitialSyncIsBestEffortOnRequestFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.errs["system-presence"] = errors.New("unsupported")
	gw.errs["sessions.list"] = errors.New("unsupported")
	store := &fakeStore{}
	b := newTestBridge(gw, store)

	b.initialSync(nil)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	found := map[string]bool{}
	for _, c := range gw.calls {
		found[c] = true
	}
	if !found["system-presence"] || !found["sessions.list"] {
		t.Errorf("calls = %+v, want system-presence and sessions.list attempted", gw.calls)
	}
}
