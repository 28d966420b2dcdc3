package fetch

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// subscriber is one registration. Its callbacks run through a private lane so
// they never overlap and keep their submission order, whichever goroutine
// submits them.
type subscriber struct {
	token     Token
	progress  ProgressFunc
	completed CompletedFunc

	// removed is set when the subscription is cancelled or its completion has
	// been claimed. Delivery checks it right before invoking a callback.
	removed atomic.Bool

	mu      sync.Mutex
	running bool
	queue   []func()
}

func newSubscriber(progress ProgressFunc, completed CompletedFunc) *subscriber {
	return &subscriber{
		token:     newToken(),
		progress:  progress,
		completed: completed,
	}
}

// run executes fn unless another callback of this subscriber is in flight, in
// which case fn is queued and executed by that goroutine once it is done.
func (s *subscriber) run(fn func()) {
	s.mu.Lock()
	if s.running {
		s.queue = append(s.queue, fn)
		s.mu.Unlock()
		return
	}
	s.running = true
	for {
		s.mu.Unlock()
		fn()
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		fn = s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
	}
}

func (s *subscriber) deliverProgress(p Progress, log *slog.Logger) {
	if s.progress == nil {
		return
	}
	s.run(func() {
		if s.removed.Load() {
			return
		}
		defer recoverCallback(log, "progress", s.token)
		s.progress(p)
	})
}

// deliverCompletion invokes the completion callback at most once. settled, if
// set, runs in the lane once the completion has been claimed.
func (s *subscriber) deliverCompletion(res *Result, err error, log *slog.Logger, settled func()) {
	s.run(func() {
		if !s.removed.CompareAndSwap(false, true) {
			return
		}
		if settled != nil {
			settled()
		}
		if s.completed == nil {
			return
		}
		defer recoverCallback(log, "completion", s.token)
		s.completed(res, err)
	})
}

// recoverCallback keeps a panicking callback from taking down the transfer or
// the delivery to other subscribers.
func recoverCallback(log *slog.Logger, kind string, token Token) {
	if r := recover(); r != nil {
		log.Error("subscriber callback panicked", "callback", kind, "token", token.String(), "panic", r)
	}
}
