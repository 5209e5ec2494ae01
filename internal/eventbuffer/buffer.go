// Package eventbuffer implements the FIFO micro-batch buffer that
// sits between the normalizer and the state-store client.
package eventbuffer

import (
	"sync"

	"github.com/corvidlabs/missionbridge/internal/domain"
)

// Buffer is a FIFO buffer of BridgeEvents. The orchestrator calls it from
// several goroutines (event dispatch, the flush ticker, size-triggered
// flushes), so every method takes the buffer's own mutex.
type Buffer struct {
	mu        sync.Mutex
	events    []domain.BridgeEvent
	batchSize int
}

// New creates a Buffer that reports "should flush" once it holds at least
// batchSize events.
func New(batchSize int) *Buffer {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Buffer{batchSize: batchSize}
}

// Add appends an event and reports whether the buffer has reached its
// configured batch size.
func (b *Buffer) Add(e domain.BridgeEvent) (shouldFlush bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return len(b.events) >= b.batchSize
}

// Drain returns and clears the buffer. An empty buffer returns an empty
// slice, never nil, so callers can range over the result unconditionally.
func (b *Buffer) Drain() []domain.BridgeEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return []domain.BridgeEvent{}
	}
	drained := b.events
	b.events = nil
	return drained
}

// Requeue prepends a previously drained batch back onto the head of the
// buffer, preserving its original order ahead of anything added since
// preserving delivery order.
func (b *Buffer) Requeue(batch []domain.BridgeEvent) {
	if len(batch) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(append([]domain.BridgeEvent{}, batch...), b.events...)
}

// Size returns the current buffer length.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
