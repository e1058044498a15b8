package delegation

import (
	"sync"

	"github.com/oklog/ulid/v2"

	agentguildv1 "github.com/kazz187/agentguild/api/agentguild/v1"
)

const (
	inboxHistory   = 100
	subscriberSize = 64
)

// inbox keeps the recent results of each coordinator and fans new ones out
// to live subscribers. A subscriber whose buffer is full misses the result
// and can catch up with List.
type inbox struct {
	mu      sync.RWMutex
	history map[string][]*agentguildv1.DelegationResult
	subs    map[string]map[string]chan *agentguildv1.DelegationResult
}

func newInbox() *inbox {
	return &inbox{
		history: make(map[string][]*agentguildv1.DelegationResult),
		subs:    make(map[string]map[string]chan *agentguildv1.DelegationResult),
	}
}

func (b *inbox) subscribe(coordinatorID string) (string, <-chan *agentguildv1.DelegationResult) {
	id := ulid.Make().String()
	ch := make(chan *agentguildv1.DelegationResult, subscriberSize)
	b.mu.Lock()
	if b.subs[coordinatorID] == nil {
		b.subs[coordinatorID] = make(map[string]chan *agentguildv1.DelegationResult)
	}
	b.subs[coordinatorID][id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *inbox) unsubscribe(coordinatorID, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[coordinatorID]
	if ch, ok := subs[id]; ok {
		close(ch)
		delete(subs, id)
	}
	if len(subs) == 0 {
		delete(b.subs, coordinatorID)
	}
}

// deliver records res and returns how many live subscribers received it.
func (b *inbox) deliver(res *agentguildv1.DelegationResult) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := append(b.history[res.CoordinatorID], res)
	if len(h) > inboxHistory {
		h = h[len(h)-inboxHistory:]
	}
	b.history[res.CoordinatorID] = h

	sent := 0
	for _, ch := range b.subs[res.CoordinatorID] {
		select {
		case ch <- res:
			sent++
		default:
		}
	}
	return sent
}

func (b *inbox) list(coordinatorID string) []*agentguildv1.DelegationResult {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*agentguildv1.DelegationResult(nil), b.history[coordinatorID]...)
}
