// Package bridge wires the gateway client, normalizer, presence tracker,
// event buffer, and state-store client into the running service.
package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/corvidlabs/missionbridge/internal/control"
	"github.com/corvidlabs/missionbridge/internal/dedupe"
	"github.com/corvidlabs/missionbridge/internal/domain"
	"github.com/corvidlabs/missionbridge/internal/eventbuffer"
	"github.com/corvidlabs/missionbridge/internal/gatewayclient"
	"github.com/corvidlabs/missionbridge/internal/health"
	"github.com/corvidlabs/missionbridge/internal/middleware"
	"github.com/corvidlabs/missionbridge/internal/normalize"
	"github.com/corvidlabs/missionbridge/internal/presence"
)

// StateStoreClient is the subset of statestore.Client the orchestrator
// drives.
type StateStoreClient interface {
	IngestEvents(ctx context.Context, events []domain.BridgeEvent) error
	UpdateAgentStatuses(ctx context.Context, updates []domain.AgentStatusUpdate) error
}

// GatewayClient is the subset of gatewayclient.Client the orchestrator
// drives. A narrow interface rather than the concrete type so the
// orchestration logic in this package can run against a fake in tests.
type GatewayClient interface {
	SetObserver(observer gatewayclient.Observer)
	Start(ctx context.Context)
	Subscribe(ctx context.Context, events []string) (any, error)
	Call(ctx context.Context, method string, params any) (any, error)
	GetConnectionState() domain.GatewayConnectionState
	HealthCheck(ctx context.Context) (any, error)
}

const gapThreshold = 5 * time.Second

// Bridge is the orchestrator: it owns no business logic of its own beyond
// sequencing calls across the gateway client, normalizer, tracker, buffer,
// and state-store client.
type Bridge struct {
	gw         GatewayClient
	tracker    *presence.Tracker
	buffer     *eventbuffer.Buffer
	store      StateStoreClient
	seq        *normalize.Sequencer
	dedupe     *dedupe.Dedupe
	controlH   *control.Handler
	healthH    *health.Handler
	httpServer *http.Server

	batchInterval time.Duration

	flushMu  sync.Mutex
	flushing bool

	lastEventMu   sync.Mutex
	lastEventTime time.Time
}

// Deps groups the components New assembles a Bridge from.
type Deps struct {
	Gateway        GatewayClient
	Tracker        *presence.Tracker
	Buffer         *eventbuffer.Buffer
	Store          StateStoreClient
	Dedupe         *dedupe.Dedupe
	ControlHandler *control.Handler
	HealthHandler  *health.Handler
	AllowedOrigins []string
	HTTPAddr       string
	BatchInterval  time.Duration
}

// New assembles a Bridge from its dependencies.
func New(d Deps) *Bridge {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(d.AllowedOrigins))
	if d.ControlHandler != nil {
		r.Handle("/api/control", d.ControlHandler)
	}
	if d.HealthHandler != nil {
		r.Handle("/api/health", d.HealthHandler)
		r.Handle("/health", d.HealthHandler)
	}

	if d.Dedupe == nil {
		d.Dedupe = dedupe.New(dedupe.NewRing(0), nil)
	}

	b := &Bridge{
		gw:            d.Gateway,
		tracker:       d.Tracker,
		buffer:        d.Buffer,
		store:         d.Store,
		seq:           &normalize.Sequencer{},
		dedupe:        d.Dedupe,
		controlH:      d.ControlHandler,
		healthH:       d.HealthHandler,
		batchInterval: d.BatchInterval,
	}
	if d.HTTPAddr != "" {
		b.httpServer = &http.Server{Addr: d.HTTPAddr, Handler: r}
	}
	return b
}

// Start installs the observer, starts the HTTP server and flush loop, then
// starts the gateway client. It blocks until ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) {
	b.gw.SetObserver(b)

	if b.httpServer != nil {
		go func() {
			if err := b.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("bridge: http server exited", "error", err)
			}
		}()
	}

	go b.flushLoop(ctx)

	b.gw.Start(ctx)

	<-ctx.Done()
	if b.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.httpServer.Shutdown(shutdownCtx)
	}
}

func (b *Bridge) flushLoop(ctx context.Context) {
	if b.batchInterval <= 0 {
		b.batchInterval = 2 * time.Second
	}
	ticker := time.NewTicker(b.batchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.flush(ctx)
		}
	}
}

// flush drains the buffer and posts it to the state store, coalescing
// concurrent calls via the flushing flag and requeueing on failure.
func (b *Bridge) flush(ctx context.Context) {
	b.flushMu.Lock()
	if b.flushing {
		b.flushMu.Unlock()
		return
	}
	b.flushing = true
	b.flushMu.Unlock()

	defer func() {
		b.flushMu.Lock()
		b.flushing = false
		b.flushMu.Unlock()
	}()

	batch := b.buffer.Drain()
	if len(batch) == 0 {
		return
	}
	if err := b.store.IngestEvents(ctx, batch); err != nil {
		slog.Warn("bridge: ingest failed, requeueing batch", "error", err, "count", len(batch))
		b.buffer.Requeue(batch)
	}
}

// enqueue adds e to the buffer. Live gateway events are assumed fresh and
// are never deduped here; a resync pass that can replay the same snapshot
// goes through enqueueResync instead, which gates on the dedupe store
// before ever reaching this method.
func (b *Bridge) enqueue(e domain.BridgeEvent) {
	if b.buffer.Add(e) {
		go b.flush(context.Background())
	}
}

func (b *Bridge) postStatuses(updates []domain.AgentStatusUpdate) {
	if len(updates) == 0 {
		return
	}
	if err := b.store.UpdateAgentStatuses(context.Background(), updates); err != nil {
		slog.Warn("bridge: failed to post status updates", "error", err, "count", len(updates))
	}
}

func (b *Bridge) markEventTime(now time.Time) (gap bool) {
	b.lastEventMu.Lock()
	defer b.lastEventMu.Unlock()
	if !b.lastEventTime.IsZero() && now.Sub(b.lastEventTime) > gapThreshold {
		gap = true
	}
	b.lastEventTime = now
	return gap
}
