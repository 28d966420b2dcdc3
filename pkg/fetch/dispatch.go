package fetch

import "sync"

// Dispatcher runs work on some execution context.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(fn func())

// Dispatch calls f(fn).
func (f DispatcherFunc) Dispatch(fn func()) {
	f(fn)
}

// Inline runs work immediately on the calling goroutine.
var Inline Dispatcher = DispatcherFunc(func(fn func()) { fn() })

// SerialQueue runs work one item at a time, in submission order, on a single
// goroutine. It is the "main" delivery context for successful completions.
type SerialQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	closed  bool
	done    chan struct{}
}

// NewSerialQueue starts a queue. Close stops it.
func NewSerialQueue() *SerialQueue {
	q := &SerialQueue{done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.loop()
	return q
}

// Dispatch enqueues fn. It never blocks. After Close, fn runs on the caller.
func (q *SerialQueue) Dispatch(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		fn()
		return
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
	q.cond.Signal()
}

// Flush blocks until everything enqueued before the call has run.
// It must not be called from work running on the queue.
func (q *SerialQueue) Flush() {
	ch := make(chan struct{})
	q.Dispatch(func() { close(ch) })
	<-ch
}

// Close drains pending work and stops the queue goroutine.
func (q *SerialQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
	<-q.done
}

func (q *SerialQueue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
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
