package eventbus

import (
	"context"
	"sync"
)

// MemoryStore keeps the newest capacity events in a ring.
type MemoryStore struct {
	mu       sync.RWMutex
	buf      []*Event
	start    int
	capacity int
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryStore{capacity: capacity}
}

func (s *MemoryStore) Append(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.capacity {
		s.buf = append(s.buf, e)
		return nil
	}
	s.buf[s.start] = e
	s.start = (s.start + 1) % s.capacity
	return nil
}

func (s *MemoryStore) at(i int) *Event {
	return s.buf[(s.start+i)%len(s.buf)]
}

func (s *MemoryStore) Query(_ context.Context, f Filter) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit := f.limit()
	var out []*Event
	if f.hasCursor() {
		for i := 0; i < len(s.buf) && len(out) < limit; i++ {
			if e := s.at(i); f.Match(e) {
				out = append(out, e)
			}
		}
		return out, nil
	}
	for i := len(s.buf) - 1; i >= 0 && len(out) < limit; i-- {
		if e := s.at(i); f.Match(e) {
			out = append(out, e)
		}
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out, nil
}

func (s *MemoryStore) LastSeq(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.buf) == 0 {
		return 0, nil
	}
	return s.at(len(s.buf) - 1).Seq, nil
}
