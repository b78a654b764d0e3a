package event

import "sync/atomic"

// Sequence is a monotonic IDSource. IDs are unique for the lifetime of the
// sequence; Reset raises the floor after records are loaded from storage.
type Sequence struct {
	last atomic.Int64
}

// NewSequence starts handing out IDs above floor.
func NewSequence(floor ID) *Sequence {
	s := &Sequence{}
	s.last.Store(int64(floor))
	return s
}

// NextID returns the next unused ID.
func (s *Sequence) NextID() ID {
	return ID(s.last.Add(1))
}

// Reset makes sure every future ID is greater than floor. It never lowers
// the sequence.
func (s *Sequence) Reset(floor ID) {
	for {
		cur := s.last.Load()
		if cur >= int64(floor) || s.last.CompareAndSwap(cur, int64(floor)) {
			return
		}
	}
}

// Last returns the most recently issued (or seeded) ID.
func (s *Sequence) Last() ID {
	return ID(s.last.Load())
}
