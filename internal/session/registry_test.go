package session

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const handle = "/org/freedesktop/portal/desktop/session/1_42/obs1"

func TestRegistry_CreateTwiceFails(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Create(handle))
	err := r.Create(handle)

	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.Contains(handle))
}

func TestRegistry_CloseUnknownFails(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Close(handle), ErrNotFound)
	assert.False(t, r.Contains(handle))
}

func TestRegistry_HandleReuseAfterClose(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Create(handle))
	require.NoError(t, r.Close(handle))
	assert.False(t, r.Contains(handle))
	assert.ErrorIs(t, r.Close(handle), ErrNotFound)

	require.NoError(t, r.Create(handle))
	assert.True(t, r.Contains(handle))
}

func TestRegistry_ConcurrentCreateHasOneWinner(t *testing.T) {
	r := NewRegistry()

	const workers = 64
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if r.Create(handle) == nil {
				succeeded.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ConcurrentCloseHasOneWinner(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Create(handle))

	var (
		wg     sync.WaitGroup
		closed atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Close(handle) == nil {
				closed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), closed.Load())
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ListIsSorted(t *testing.T) {
	r := NewRegistry()
	for _, h := range []string{"/s/c", "/s/a", "/s/b"} {
		require.NoError(t, r.Create(h))
	}

	infos := r.List()
	require.Len(t, infos, 3)
	assert.Equal(t, "/s/a", infos[0].Handle)
	assert.Equal(t, "/s/b", infos[1].Handle)
	assert.Equal(t, "/s/c", infos[2].Handle)
	assert.False(t, infos[0].Created.IsZero())
}

func TestRegistry_Subscribe(t *testing.T) {
	r := NewRegistry()
	events := r.Subscribe()

	require.NoError(t, r.Create(handle))
	assert.Error(t, r.Create(handle))
	require.NoError(t, r.Close(handle))

	created := <-events
	assert.Equal(t, EventCreated, created.Type)
	assert.Equal(t, handle, created.Handle)

	closed := <-events
	assert.Equal(t, EventClosed, closed.Type)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event for failed create: %+v", ev)
	default:
	}

	r.Unsubscribe(events)
	_, open := <-events
	assert.False(t, open)
}
