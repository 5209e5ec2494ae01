package dedupe

import (
	"context"
	"log/slog"
)

// Dedupe combines the fast in-memory Ring with an optional durable
// SQLiteStore: the ring answers most checks without touching disk, and the
// store extends the dedup window across restarts and is consulted only on
// a ring miss.
type Dedupe struct {
	ring  *Ring
	store *SQLiteStore
}

// New builds a Dedupe. store may be nil, in which case dedup is
// memory-only and does not survive a restart.
func New(ring *Ring, store *SQLiteStore) *Dedupe {
	return &Dedupe{ring: ring, store: store}
}

// CheckAndRemember reports whether eventID has already been seen. If not,
// it is recorded in both tiers before returning. A SQLite write failure is
// logged and does not prevent the ring from recording the id, so a single
// process's ingest stays consistent even if durability degrades.
func (d *Dedupe) CheckAndRemember(ctx context.Context, eventID string) bool {
	if eventID == "" {
		return false
	}
	if d.ring.Seen(eventID) {
		return true
	}

	if d.store != nil {
		seen, err := d.store.Seen(ctx, eventID)
		if err != nil {
			slog.Warn("dedupe: sqlite lookup failed, falling back to memory only", "error", err)
		} else if seen {
			d.ring.Remember(eventID)
			return true
		}
	}

	d.ring.Remember(eventID)
	if d.store != nil {
		if err := d.store.Remember(ctx, eventID); err != nil {
			slog.Warn("dedupe: failed to persist seen event", "eventId", eventID, "error", err)
		}
	}
	return false
}
