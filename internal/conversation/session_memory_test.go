package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultia/clinic-agent/pkg/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemorySessionStoreGetUnknownIsEmpty(t *testing.T) {
	store := NewMemorySessionStore(10, time.Hour)
	turns, err := store.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, turns)
	assert.Empty(t, turns)
	assert.Equal(t, 0, store.Len())
}

func TestMemorySessionStoreAppendKeepsOrder(t *testing.T) {
	store := NewMemorySessionStore(10, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, "p1", Turn{Role: RolePatient, Text: fmt.Sprintf("hola %d", i)}))
		require.NoError(t, store.Append(ctx, "p1", Turn{Role: RoleAssistant, Text: fmt.Sprintf("respuesta %d", i)}))
	}

	turns, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, turns, 6)
	assert.Equal(t, "hola 0", turns[0].Text)
	assert.Equal(t, RoleAssistant, turns[5].Role)
	assert.False(t, turns[0].At.IsZero())

	turns[0].Text = "mutated"
	again, _ := store.Get(ctx, "p1")
	assert.Equal(t, "hola 0", again[0].Text)
}

func TestMemorySessionStoreEvictsLeastRecentlyUsed(t *testing.T) {
	store := NewMemorySessionStore(2, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "a", Turn{Role: RolePatient, Text: "a"}))
	require.NoError(t, store.Append(ctx, "b", Turn{Role: RolePatient, Text: "b"}))
	_, _ = store.Get(ctx, "a")
	require.NoError(t, store.Append(ctx, "c", Turn{Role: RolePatient, Text: "c"}))

	assert.Equal(t, 2, store.Len())
	b, _ := store.Get(ctx, "b")
	assert.Empty(t, b)
	a, _ := store.Get(ctx, "a")
	assert.Len(t, a, 1)
}

func TestMemorySessionStoreIdleExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	store := NewMemorySessionStore(10, 30*time.Minute, WithSessionClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "p1", Turn{Role: RolePatient, Text: "hola"}))
	require.NoError(t, store.Append(ctx, "p2", Turn{Role: RolePatient, Text: "hola"}))

	clock.Advance(20 * time.Minute)
	turns, _ := store.Get(ctx, "p1")
	require.Len(t, turns, 1)

	clock.Advance(20 * time.Minute)
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())

	clock.Advance(31 * time.Minute)
	turns, _ = store.Get(ctx, "p1")
	assert.Empty(t, turns)
	assert.Equal(t, 0, store.Len())
}

func TestMemorySessionStoreRunSweeper(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	store := NewMemorySessionStore(10, 30*time.Minute, WithSessionClock(clock.Now))
	require.NoError(t, store.Append(context.Background(), "p1", Turn{Role: RolePatient, Text: "hola"}))
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunSweeper(ctx, 5*time.Millisecond, logging.New("error"))
		close(done)
	}()

	require.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestMemorySessionStoreClear(t *testing.T) {
	store := NewMemorySessionStore(0, 0)
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "p1", Turn{Role: RolePatient, Text: "hola"}))
	require.NoError(t, store.Clear(ctx, "p1"))
	require.NoError(t, store.Clear(ctx, "missing"))
	turns, _ := store.Get(ctx, "p1")
	assert.Empty(t, turns)
}

func TestMemorySessionStoreConcurrentAppends(t *testing.T) {
	store := NewMemorySessionStore(10, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Append(ctx, "shared", Turn{Role: RolePatient, Text: fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()

	turns, err := store.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, turns, 50)
}
