package normalize

import "sync/atomic"

// Sequencer hands out a strictly increasing local sequence number, used
// whenever an event has no inherited seq.
type Sequencer struct {
	n int64
}

// Next returns the next value, starting at 1.
func (s *Sequencer) Next() int64 {
	return atomic.AddInt64(&s.n, 1)
}
