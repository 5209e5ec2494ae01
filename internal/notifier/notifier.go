// Package notifier implements the secondary notification-delivery daemon
// an independent process sharing the gateway client's wire
// protocol but not its event pipeline.
package notifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/corvidlabs/missionbridge/internal/domain"
	"github.com/corvidlabs/missionbridge/internal/gatewayclient"
	"github.com/corvidlabs/missionbridge/internal/presence"
	"github.com/corvidlabs/missionbridge/internal/statestore"
)

// GatewayClient is the subset of gatewayclient.Client the daemon drives.
type GatewayClient interface {
	SetObserver(observer gatewayclient.Observer)
	Start(ctx context.Context)
	Subscribe(ctx context.Context, events []string) (any, error)
	Call(ctx context.Context, method string, params any) (any, error)
	Send(ctx context.Context, sessionKey, message string) (any, error)
}

// StateStoreClient is the subset of statestore.Client the daemon drives.
type StateStoreClient interface {
	ListPendingNotifications(ctx context.Context, params statestore.ListPendingNotificationsParams) ([]statestore.PendingNotification, error)
	MarkNotificationDelivered(ctx context.Context, id string, deliveredAt *time.Time) error
	RecordNotificationAttempt(ctx context.Context, id string, deliveryErr string) error
}

const (
	defaultPollInterval  = 2 * time.Second
	defaultPollBatchSize = 25
	defaultRetryBackoff  = 5 * time.Second
)

// Config tunes the daemon's polling behavior.
type Config struct {
	PollInterval  time.Duration
	PollBatchSize int
	RetryBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.PollBatchSize <= 0 {
		c.PollBatchSize = defaultPollBatchSize
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	return c
}

// Daemon polls the state store for pending notifications and delivers them
// over the gateway client to whichever session currently represents the
// recipient agent.
type Daemon struct {
	cfg     Config
	gw      GatewayClient
	store   StateStoreClient
	tracker *presence.Tracker

	mu              sync.Mutex
	sessionsByAgent map[string]string
	connected       bool

	pollingMu sync.Mutex
	polling   bool
}

// New builds a Daemon.
func New(cfg Config, gw GatewayClient, store StateStoreClient, tracker *presence.Tracker) *Daemon {
	return &Daemon{
		cfg:             cfg.withDefaults(),
		gw:              gw,
		store:           store,
		tracker:         tracker,
		sessionsByAgent: make(map[string]string),
	}
}

var _ gatewayclient.Observer = (*Daemon)(nil)

// Start installs the observer and begins the gateway client's connect loop
// and the polling loop. It blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) {
	d.gw.SetObserver(d)
	go d.pollLoop(ctx)
	d.gw.Start(ctx)
	<-ctx.Done()
}

func (d *Daemon) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.poll(ctx)
		}
	}
}

// poll fetches a batch of pending notifications and delivers whichever
// ones have a live session and aren't within their retry backoff.
// Concurrent polls are coalesced via the polling flag.
func (d *Daemon) poll(ctx context.Context) {
	d.pollingMu.Lock()
	if d.polling {
		d.pollingMu.Unlock()
		return
	}
	d.polling = true
	d.pollingMu.Unlock()
	defer func() {
		d.pollingMu.Lock()
		d.polling = false
		d.pollingMu.Unlock()
	}()

	if !d.isConnected() {
		return
	}

	pending, err := d.store.ListPendingNotifications(ctx, statestore.ListPendingNotificationsParams{
		Limit:         d.cfg.PollBatchSize,
		RecipientType: "agent",
	})
	if err != nil {
		slog.Warn("notifier: failed to list pending notifications", "error", err)
		return
	}

	now := time.Now()
	for _, n := range pending {
		if n.LastAttemptAt != nil {
			last := time.UnixMilli(*n.LastAttemptAt)
			if now.Sub(last) < d.cfg.RetryBackoff {
				continue
			}
		}

		agentID := d.tracker.NormalizeAgentID(n.RecipientID)
		sessionKey, ok := d.sessionFor(agentID)
		if !ok {
			continue
		}

		if _, err := d.gw.Send(ctx, sessionKey, n.Message); err != nil {
			slog.Warn("notifier: delivery failed", "notificationId", n.ID, "error", err)
			if recErr := d.store.RecordNotificationAttempt(ctx, n.ID, err.Error()); recErr != nil {
				slog.Warn("notifier: failed to record delivery attempt", "notificationId", n.ID, "error", recErr)
			}
			continue
		}

		delivered := time.Now()
		if err := d.store.MarkNotificationDelivered(ctx, n.ID, &delivered); err != nil {
			slog.Warn("notifier: failed to mark delivered", "notificationId", n.ID, "error", err)
		}
	}
}

func (d *Daemon) sessionFor(agentID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sessionKey, ok := d.sessionsByAgent[agentID]
	return sessionKey, ok
}

func (d *Daemon) isConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// OnConnected subscribes to presence and seeds sessionsByAgent via
// system-presence.
func (d *Daemon) OnConnected(hello domain.GatewayFrame) {
	d.mu.Lock()
	d.connected = true
	d.mu.Unlock()

	if _, err := d.gw.Subscribe(context.Background(), []string{"presence"}); err != nil {
		slog.Warn("notifier: subscribe failed", "error", err)
	}
	if result, err := d.gw.Call(context.Background(), "system-presence", nil); err != nil {
		slog.Debug("notifier: system-presence request failed", "error", err)
	} else if snapshot, ok := gatewayclient.ParsePresencePayload(result); ok {
		d.applyPresence(snapshot)
	}
}

// OnPresence refreshes sessionsByAgent from a live presence snapshot.
func (d *Daemon) OnPresence(snapshot domain.PresenceSnapshot) {
	d.applyPresence(snapshot)
}

func (d *Daemon) applyPresence(snapshot domain.PresenceSnapshot) {
	sessions := make(map[string]string, len(snapshot.Entries))
	for _, entry := range snapshot.Entries {
		agentID := resolveAgentID(d.tracker, entry)
		if agentID == "" || entry.SessionKey == "" {
			continue
		}
		sessions[agentID] = entry.SessionKey
	}
	d.mu.Lock()
	d.sessionsByAgent = sessions
	d.mu.Unlock()
}

func resolveAgentID(tracker *presence.Tracker, entry domain.PresenceEntry) string {
	raw := presence.AgentIDFromSessionKey(entry.SessionKey)
	if raw == "" {
		raw = entry.AgentID
	}
	if raw == "" {
		raw = entry.DeviceID
	}
	if raw == "" {
		return ""
	}
	return tracker.NormalizeAgentID(raw)
}

// OnDisconnected clears sessionsByAgent and pauses polling until reconnect.
func (d *Daemon) OnDisconnected() {
	d.mu.Lock()
	d.connected = false
	d.sessionsByAgent = make(map[string]string)
	d.mu.Unlock()
}

// OnEvent is a no-op; the notifier only cares about presence.
func (d *Daemon) OnEvent(domain.GatewayFrame) {}

// OnError logs a non-fatal gateway error.
func (d *Daemon) OnError(err error) {
	slog.Warn("notifier: gateway error", "error", err)
}

// OnFatal logs a fatal gateway error.
func (d *Daemon) OnFatal(err error) {
	slog.Error("notifier: gateway fatal error", "error", err)
}

// OnHello and OnChallenge are no-ops; the gateway client owns the
// handshake.
func (d *Daemon) OnHello(domain.GatewayFrame) {}
func (d *Daemon) OnChallenge(string)          {}
