package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/corvidlabs/missionbridge/internal/domain"
	"github.com/corvidlabs/missionbridge/internal/gatewayclient"
	"github.com/corvidlabs/missionbridge/internal/normalize"
)

const initialSyncTimeout = 10 * time.Second

// initialSync runs the four best-effort sync steps.
// hello is nil when triggered by gap detection rather than a fresh
// handshake.
func (b *Bridge) initialSync(hello *domain.GatewayFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), initialSyncTimeout)
	defer cancel()

	if hello != nil {
		presencePayload := hello.Presence
		if presencePayload == nil && hello.Snapshot != nil {
			presencePayload = hello.Snapshot.Presence
		}
		if presencePayload != nil {
			b.syncPresence(ctx, presencePayload)
		}

		healthPayload := hello.Health
		if healthPayload == nil && hello.Snapshot != nil {
			healthPayload = hello.Snapshot.Health
		}
		if healthPayload != nil {
			b.enqueueResync(ctx, "health", healthPayload)
			b.handleHealthSnapshot(healthPayload)
		}
	}

	if result, err := b.gw.Call(ctx, "system-presence", nil); err != nil {
		slog.Debug("bridge: system-presence request failed", "error", err)
	} else if result != nil {
		b.syncPresence(ctx, result)
	}

	b.syncSessions(ctx)
}

// syncPresence parses a presence-shaped payload, enqueues it as a
// canonical presence BridgeEvent, and feeds the tracker.
func (b *Bridge) syncPresence(ctx context.Context, payload any) {
	b.enqueueResync(ctx, "presence", payload)
	if snapshot, ok := gatewayclient.ParsePresencePayload(payload); ok {
		b.postStatuses(b.tracker.ApplyPresenceSnapshot(snapshot))
	}
}

// handleHealthSnapshot records the gateway's self-reported health. It is a
// hook for future health-state reconciliation; today it only logs.
func (b *Bridge) handleHealthSnapshot(payload any) {
	slog.Debug("bridge: health snapshot received", "payload", payload)
}

// syncSessions requests the live session list and, for each session with a
// resolvable sessionKey, pulls recent chat history. Both requests are
// best-effort: failures log and the loop continues.
func (b *Bridge) syncSessions(ctx context.Context) {
	result, err := b.gw.Call(ctx, "sessions.list", nil)
	if err != nil {
		slog.Debug("bridge: sessions.list failed", "error", err)
		return
	}

	sessions, ok := asSliceOfMaps(result)
	if !ok {
		return
	}

	for _, session := range sessions {
		sessionKey, _ := session["sessionKey"].(string)
		if sessionKey == "" {
			sessionKey, _ = session["session_key"].(string)
		}
		if sessionKey == "" {
			continue
		}

		history, err := b.gw.Call(ctx, "chat.history", map[string]any{"sessionKey": sessionKey, "limit": 50})
		if err != nil {
			slog.Debug("bridge: chat.history failed", "sessionKey", sessionKey, "error", err)
			continue
		}
		b.enqueueResync(ctx, "chat", history)
	}
}

// enqueueResync builds a canonical BridgeEvent with agentId "system" for a
// sync-originated payload and enqueues it, unless the dedupe store has
// already seen this exact resync payload. Resync passes (gap recovery,
// reconnect) can replay the same snapshot the bridge already ingested, so
// the key is a content hash over the event kind and payload rather than
// event.EventID, which BuildPrimaryEvent mints fresh on every call for
// payloads that carry no stable id of their own.
func (b *Bridge) enqueueResync(ctx context.Context, rawEvent string, payload any) {
	key, err := resyncDedupeKey(rawEvent, payload)
	if err != nil {
		slog.Debug("bridge: resync dedupe key failed, enqueueing unconditionally", "event", rawEvent, "error", err)
	} else if seen := b.dedupe.CheckAndRemember(ctx, key); seen {
		return
	}

	frame := domain.GatewayFrame{Type: domain.FrameTypeEvent, Event: rawEvent, Payload: payload}
	event, _ := normalize.BuildPrimaryEvent(frame, b.seq)
	event.AgentID = "system"
	b.enqueue(event)
}

// resyncDedupeKey hashes the event kind and a canonical JSON encoding of the
// payload, so two resync passes that observe the identical snapshot collapse
// onto the same key regardless of what (if any) id field the payload itself
// carries.
func resyncDedupeKey(rawEvent string, payload any) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	h := fnv.New64a()
	h.Write([]byte(rawEvent))
	h.Write([]byte{0})
	h.Write(encoded)
	return fmt.Sprintf("resync:%s:%x", rawEvent, h.Sum64()), nil
}

func asSliceOfMaps(v any) ([]map[string]any, bool) {
	raw, ok := v.([]any)
	if !ok {
		if single, ok := v.(map[string]any); ok {
			if nested, ok := single["sessions"].([]any); ok {
				raw = nested
			} else {
				return nil, false
			}
		} else {
			return nil, false
		}
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, true
}
