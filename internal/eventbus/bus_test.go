package eventbus

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T, store Store, opts ...Option) *Bus {
	t.Helper()
	b, err := New(context.Background(), store, opts...)
	require.NoError(t, err)
	return b
}

func TestBus_SeqAndTimestampAreMonotonic(t *testing.T) {
	// The clock steps backwards on every other call.
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	calls := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls%2 == 0 {
			return base.Add(-time.Minute)
		}
		return base.Add(time.Duration(calls) * time.Millisecond)
	}
	b := newTestBus(t, NewMemoryStore(0), WithClock(clock))

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Emit(ctx, CategoryTask, TypeTaskCreated, "agent-1", "", nil)
		}()
	}
	wg.Wait()

	events, err := b.Query(ctx, Filter{Limit: 100})
	require.NoError(t, err)
	require.Len(t, events, 50)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].Seq+1, events[i].Seq)
		assert.False(t, events[i].Timestamp.Before(events[i-1].Timestamp))
		assert.Less(t, events[i-1].ID, events[i].ID)
	}
	assert.Equal(t, uint64(50), b.LastSeq())
}

func TestBus_SubscribeFiltersAndDropsWhenFull(t *testing.T) {
	b := newTestBus(t, NewMemoryStore(0))
	ctx := context.Background()

	id, ch := b.Subscribe(Filter{AgentID: "a1"}, 1)
	defer b.Unsubscribe(id)

	b.Emit(ctx, CategoryLifecycle, TypeAgentStarting, "a2", "", nil)
	b.Emit(ctx, CategoryLifecycle, TypeAgentStarting, "a1", "", nil)
	b.Emit(ctx, CategoryLifecycle, TypeAgentRunning, "a1", "", nil)

	select {
	case e := <-ch:
		assert.Equal(t, TypeAgentStarting, e.Type)
		assert.Equal(t, "a1", e.AgentID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	select {
	case e := <-ch:
		t.Fatalf("expected the third event to be dropped, got %s", e.Type)
	default:
	}

	// Missed events are still available through the store.
	missed, err := b.Query(ctx, Filter{AgentID: "a1", SinceSeq: 2})
	require.NoError(t, err)
	require.Len(t, missed, 1)
	assert.Equal(t, TypeAgentRunning, missed[0].Type)
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := newTestBus(t, NewMemoryStore(0))
	id, ch := b.Subscribe(Filter{}, 4)
	b.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)
	b.Unsubscribe(id)
}

func TestMemoryStore_RingKeepsNewest(t *testing.T) {
	store := NewMemoryStore(3)
	b := newTestBus(t, store)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		b.Emit(ctx, CategoryTask, TypeTaskUpdated, "", "t1", map[string]any{"i": i})
	}
	events, err := b.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []uint64{3, 4, 5}, []uint64{events[0].Seq, events[1].Seq, events[2].Seq})

	last, err := store.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), last)
}

func TestQuery_LatestWithoutCursorFirstWithCursor(t *testing.T) {
	b := newTestBus(t, NewMemoryStore(0))
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		b.Emit(ctx, CategoryActivity, TypeActivityStep, "a1", "t1", nil)
	}

	latest, err := b.Query(ctx, Filter{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(8), latest[0].Seq)
	assert.Equal(t, uint64(10), latest[2].Seq)

	after, err := b.Query(ctx, Filter{Limit: 3, SinceSeq: 4})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), after[0].Seq)
	assert.Equal(t, uint64(7), after[2].Seq)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")

	store, err := OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	b := newTestBus(t, store)
	b.Emit(ctx, CategoryTask, TypeTaskCreated, "a1", "t1", map[string]any{"title": "report"})
	b.Emit(ctx, CategoryTask, TypeTaskRunning, "a1", "t1", nil)
	b.Emit(ctx, CategoryLifecycle, TypeAgentCrashed, "a2", "", map[string]any{"error": "exit 1"})
	require.NoError(t, store.Close())

	store, err = OpenSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer store.Close()
	b = newTestBus(t, store)
	assert.Equal(t, uint64(3), b.LastSeq())

	events, err := b.Query(ctx, Filter{TaskID: "t1"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, TypeTaskCreated, events[0].Type)
	assert.Equal(t, "report", events[0].Data["title"])
	assert.Equal(t, CategoryTask, events[0].Category)

	b.Emit(ctx, CategoryTask, TypeTaskCompleted, "a1", "t1", nil)
	events, err = b.Query(ctx, Filter{Category: CategoryTask, SinceSeq: 3})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(4), events[0].Seq)
}
