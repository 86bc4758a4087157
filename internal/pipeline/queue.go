package pipeline

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/evtc-log-uploader/internal/observability"
)

// workQueue is an unbounded FIFO of record ids served by exactly one worker
type workQueue struct {
	name string

	mu      sync.Mutex
	cond    *sync.Cond
	items   []string
	running bool
	started bool
	done    chan struct{}
}

func newWorkQueue(name string) *workQueue {
	q := &workQueue{
		name: name,
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// start launches the worker. A queue can be started once.
func (q *workQueue) start(handle func(id string)) bool {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return false
	}
	q.started = true
	q.running = true
	q.mu.Unlock()

	go q.loop(handle)
	return true
}

func (q *workQueue) loop(handle func(id string)) {
	defer close(q.done)

	for {
		id, ok := q.pop()
		if !ok {
			return
		}
		q.safeHandle(handle, id)
	}
}

func (q *workQueue) safeHandle(handle func(id string), id string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("pipeline", q.name).
				Str("log_id", id).
				Str("panic", fmt.Sprint(r)).
				Msg("Worker recovered from panic")
		}
	}()
	handle(id)
}

func (q *workQueue) push(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return ErrNotRunning
	}

	q.items = append(q.items, id)
	observability.QueueDepth.WithLabelValues(q.name).Set(float64(len(q.items)))
	q.cond.Signal()
	return nil
}

// pop blocks until an item is available or the queue is shut down
func (q *workQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.running && len(q.items) == 0 {
		q.cond.Wait()
	}
	if !q.running {
		return "", false
	}

	id := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	observability.QueueDepth.WithLabelValues(q.name).Set(float64(len(q.items)))
	return id, true
}

func (q *workQueue) isRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

func (q *workQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// shutdown stops accepting work, discards pending ids and waits for the worker
// to finish its current item. The discarded ids are returned.
func (q *workQueue) shutdown() []string {
	q.mu.Lock()
	q.running = false
	drained := q.items
	q.items = nil
	started := q.started
	q.cond.Broadcast()
	q.mu.Unlock()

	observability.QueueDepth.WithLabelValues(q.name).Set(0)

	if started {
		<-q.done
	}
	return drained
}
