package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/corvidlabs/missionbridge/internal/domain"
	"github.com/corvidlabs/missionbridge/internal/gatewayclient"
	"github.com/corvidlabs/missionbridge/internal/normalize"
	"github.com/corvidlabs/missionbridge/internal/xtime"
)

var _ gatewayclient.Observer = (*Bridge)(nil)

// OnConnected computes the subscription plan, subscribes, then runs the
// initial sync.
func (b *Bridge) OnConnected(hello domain.GatewayFrame) {
	slog.Info("bridge: gateway connected")

	plan := gatewayclient.ComputeSubscriptionPlan(hello.Features)
	if _, err := b.gw.Subscribe(context.Background(), plan); err != nil {
		slog.Warn("bridge: subscribe failed", "error", err)
	}

	b.initialSync(&hello)
}

// OnEvent normalizes an "agent"/"chat"/etc. frame into a primary BridgeEvent
// plus its derived events, tracks session activity, and enqueues all of
// them. Gap detection runs first.
func (b *Bridge) OnEvent(frame domain.GatewayFrame) {
	now := time.Now()
	if b.markEventTime(now) {
		slog.Info("bridge: gap detected, re-syncing", "threshold", gapThreshold)
		b.initialSync(nil)
	}

	primary, payload := normalize.BuildPrimaryEvent(frame, b.seq)
	b.enqueue(primary)

	if frame.Event == "agent" || frame.Event == "chat" {
		if primary.AgentID != "" && primary.AgentID != "unknown" && primary.AgentID != "system" {
			b.tracker.TrackSessionActivity(primary.AgentID, primary.SessionKey, xtime.NowMillis())
		}
	}

	for _, derived := range normalize.Derive(frame.Event, payload, primary, b.seq) {
		b.enqueue(derived)
	}
}

// OnPresence feeds a presence snapshot to the tracker and posts the
// resulting status updates.
func (b *Bridge) OnPresence(snapshot domain.PresenceSnapshot) {
	updates := b.tracker.ApplyPresenceSnapshot(snapshot)
	b.postStatuses(updates)
}

// OnDisconnected transitions every tracked agent to offline.
func (b *Bridge) OnDisconnected() {
	slog.Warn("bridge: gateway disconnected")
	b.postStatuses(b.tracker.OnDisconnect())
}

// OnError logs a non-fatal error.
func (b *Bridge) OnError(err error) {
	slog.Warn("bridge: gateway error", "error", err)
}

// OnFatal logs a fatal error; the gateway client itself decides whether to
// stop reconnecting.
func (b *Bridge) OnFatal(err error) {
	slog.Error("bridge: gateway fatal error", "error", err)
}

// OnHello is a no-op; initialSync is driven from OnConnected once the
// handshake has fully completed.
func (b *Bridge) OnHello(domain.GatewayFrame) {}

// OnChallenge is a no-op; the gateway client owns the challenge/response
// exchange.
func (b *Bridge) OnChallenge(string) {}
