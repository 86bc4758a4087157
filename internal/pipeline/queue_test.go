package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkQueue_PushBeforeStart(t *testing.T) {
	q := newWorkQueue("test")
	assert.ErrorIs(t, q.push("a"), ErrNotRunning)
	assert.Empty(t, q.shutdown(), "shutdown of a never started queue does not block")
}

func TestWorkQueue_FIFOAndStartOnce(t *testing.T) {
	q := newWorkQueue("test")

	var mu sync.Mutex
	var got []string
	handled := make(chan struct{}, 3)
	require.True(t, q.start(func(id string) {
		mu.Lock()
		got = append(got, id)
		mu.Unlock()
		handled <- struct{}{}
	}))
	assert.False(t, q.start(func(string) {}), "second start is refused")

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.push(id))
	}
	for i := 0; i < 3; i++ {
		<-handled
	}

	q.shutdown()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestWorkQueue_ShutdownDiscardsPending(t *testing.T) {
	q := newWorkQueue("test")

	entered := make(chan struct{})
	release := make(chan struct{})
	q.start(func(id string) {
		if id == "first" {
			close(entered)
			<-release
		}
	})

	require.NoError(t, q.push("first"))
	<-entered
	require.NoError(t, q.push("second"))
	require.NoError(t, q.push("third"))
	assert.Equal(t, 2, q.pending())

	done := make(chan []string)
	go func() { done <- q.shutdown() }()

	require.Eventually(t, func() bool { return !q.isRunning() }, waitTimeout, time.Millisecond)
	select {
	case <-done:
		t.Fatal("shutdown returned before the in-flight item finished")
	default:
	}

	close(release)
	assert.Equal(t, []string{"second", "third"}, <-done)
	assert.ErrorIs(t, q.push("late"), ErrNotRunning)
}

func TestWorkQueue_RecoversFromPanic(t *testing.T) {
	q := newWorkQueue("test")

	handled := make(chan string, 2)
	q.start(func(id string) {
		if id == "boom" {
			panic("analyzer exploded")
		}
		handled <- id
	})

	require.NoError(t, q.push("boom"))
	require.NoError(t, q.push("ok"))
	assert.Equal(t, "ok", <-handled)
	q.shutdown()
}
