package eventbus

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Store is the durable, queryable side of the bus.
type Store interface {
	Append(ctx context.Context, e *Event) error
	Query(ctx context.Context, f Filter) ([]*Event, error)
	LastSeq(ctx context.Context) (uint64, error)
}

// Sink mirrors published events elsewhere. Write must not block.
type Sink interface {
	Write(e *Event)
}

type subscriber struct {
	ch     chan *Event
	filter Filter
}

// Bus assigns each event a strictly increasing Seq, a non-decreasing
// Timestamp and a ULID, appends it to the store and fans it out. Live
// delivery never blocks: a subscriber whose buffer is full misses the event
// and is expected to catch up through Query with SinceSeq.
type Bus struct {
	mu      sync.Mutex
	store   Store
	sinks   []Sink
	seq     uint64
	lastTS  time.Time
	entropy *ulid.MonotonicEntropy
	now     func() time.Time

	subMu       sync.RWMutex
	subscribers map[string]*subscriber
}

type Option func(*Bus)

func WithSink(s Sink) Option {
	return func(b *Bus) {
		b.sinks = append(b.sinks, s)
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		b.now = now
	}
}

func New(ctx context.Context, store Store, opts ...Option) (*Bus, error) {
	last, err := store.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("read last event seq: %w", err)
	}
	b := &Bus{
		store:       store,
		seq:         last,
		entropy:     ulid.Monotonic(rand.Reader, 0),
		now:         time.Now,
		subscribers: make(map[string]*subscriber),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Publish stamps e and records it. The caller must not modify e afterwards.
func (b *Bus) Publish(ctx context.Context, e *Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts := b.now()
	if ts.Before(b.lastTS) {
		ts = b.lastTS
	}
	id, err := ulid.New(ulid.Timestamp(ts), b.entropy)
	if err != nil {
		return fmt.Errorf("generate event id: %w", err)
	}
	e.ID = id.String()
	e.Seq = b.seq + 1
	e.Timestamp = ts

	if err := b.store.Append(ctx, e); err != nil {
		return fmt.Errorf("append event %s: %w", e.Type, err)
	}
	b.seq = e.Seq
	b.lastTS = ts

	for _, s := range b.sinks {
		s.Write(e)
	}
	b.fanOut(e)
	return nil
}

// Emit publishes and logs failures instead of returning them. State
// transitions use it so a broken event store cannot undo a transition.
func (b *Bus) Emit(ctx context.Context, category Category, eventType, agentID, taskID string, data map[string]any) {
	e := &Event{
		Type:     eventType,
		Category: category,
		AgentID:  agentID,
		TaskID:   taskID,
		ThreadID: taskID,
		Data:     data,
	}
	if err := b.Publish(ctx, e); err != nil {
		slog.ErrorContext(ctx, "failed to publish event", "type", eventType, "agent_id", agentID, "task_id", taskID, "error", err)
	}
}

func (b *Bus) fanOut(e *Event) {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	for id, sub := range b.subscribers {
		if !sub.filter.Match(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			slog.Debug("event subscriber buffer full, dropping", "subscriber", id, "seq", e.Seq)
		}
	}
}

func (b *Bus) Query(ctx context.Context, f Filter) ([]*Event, error) {
	return b.store.Query(ctx, f)
}

// Subscribe registers a live listener. Only Category, AgentID, Type and
// TaskID of filter apply.
func (b *Bus) Subscribe(filter Filter, bufSize int) (string, <-chan *Event) {
	filter.Since, filter.SinceSeq, filter.Limit = time.Time{}, 0, 0
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
	b.subMu.Lock()
	b.subscribers[id] = &subscriber{ch: ch, filter: filter}
	b.subMu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.subMu.Lock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	b.subMu.Unlock()
}

// LastSeq returns the Seq of the most recently published event.
func (b *Bus) LastSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}
