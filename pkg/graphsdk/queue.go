package graphsdk

import "sync"

// Executor runs callbacks on the host's control flow. Implementations must
// run functions in the order they were submitted.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(fn func())

func (f ExecutorFunc) Execute(fn func()) { f(fn) }

// goExecutor runs each batch on a fresh goroutine. Ordering within an
// entity comes from serialQueue, which never has two batches in flight.
type goExecutor struct{}

func (goExecutor) Execute(fn func()) { go fn() }

// serialQueue delivers the callbacks of one entity one at a time, in
// submission order, through an Executor.
type serialQueue struct {
	exec Executor

	mu      sync.Mutex
	pending []func()
	running bool
}

func newSerialQueue(exec Executor) *serialQueue {
	if exec == nil {
		exec = goExecutor{}
	}
	return &serialQueue{exec: exec}
}

func (q *serialQueue) push(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	q.exec.Execute(q.drain)
}

func (q *serialQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		fn()
	}
}
