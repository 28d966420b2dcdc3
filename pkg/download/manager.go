// Package download coordinates fetch operations: one operation per URL shared
// by every interested caller, bounded concurrency, and storing payloads on disk.
package download

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/glorpus-work/fanfetch/internal/logger"
	pkgerrors "github.com/glorpus-work/fanfetch/pkg/errors"
	"github.com/glorpus-work/fanfetch/pkg/fetch"
)

// DefaultMaxConcurrent is used when Config.MaxConcurrent is not positive.
const DefaultMaxConcurrent = 6

// Config configures a Manager.
type Config struct {
	MaxConcurrent int
	// Bus, when set, has its lifecycle events logged by the manager.
	Bus *fetch.Bus
	// RetainCompleted keeps successful operations so later requests for the same
	// URL are answered from memory.
	RetainCompleted bool
	// MaxRetainedBytes caps the payload bytes kept by RetainCompleted. Zero is
	// unlimited.
	MaxRetainedBytes int64
}

// Manager hands out subscriptions to shared fetch operations.
type Manager struct {
	factory Factory
	cfg     Config
	sem     *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	detach func()

	mu            sync.Mutex
	ops           map[string]Operation
	retainedBytes int64
	closed        bool
}

// NewManager creates a Manager that builds operations with factory.
func NewManager(factory Factory, cfg Config) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		factory: factory,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		ctx:     ctx,
		cancel:  cancel,
		detach:  func() {},
		ops:     make(map[string]Operation),
	}
	if cfg.Bus != nil {
		m.detach = cfg.Bus.Register(fetch.ObserverFunc(logEvent))
	}
	return m
}

func logEvent(e fetch.Event) {
	logger.Debug("fetch "+string(e.Kind), logger.Fields{
		"operation": e.OperationID,
		"url":       e.URL,
		"state":     e.State.String(),
	})
}

// Fetch subscribes progress and completed to the operation for req.URL,
// creating and scheduling it when no live operation exists. When ctx is done
// the subscription is cancelled and receives no further callbacks.
func (m *Manager) Fetch(ctx context.Context, req fetch.Request, opts fetch.Options, progress fetch.ProgressFunc, completed fetch.CompletedFunc) (Handle, error) {
	if req.URL == nil {
		return Handle{}, fetch.ErrNilURL
	}
	key := req.URL.String()

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return Handle{}, pkgerrors.ErrManagerClosed
		}
		op, ok := m.ops[key]
		if ok && m.joinable(op.State()) {
			m.mu.Unlock()
			// The operation may finish between the check and AddHandlers. A
			// completed outcome is delivered synchronously; a cancelled one
			// sends the caller to a fresh operation.
			if !m.joinable(op.State()) {
				m.forget(key, op)
				continue
			}
			token, joined := join(op, progress, completed)
			if !joined {
				m.forget(key, op)
				continue
			}
			logger.Debug("joined fetch", logger.Fields{"url": req.URL.Redacted(), "operation": op.ID()})
			return m.bind(ctx, Handle{URL: key, Token: token, op: op}), nil
		}

		op, err := m.factory.New(req, opts)
		if err != nil {
			m.mu.Unlock()
			return Handle{}, err
		}
		m.ops[key] = op
		token := op.AddHandlers(progress, completed)
		m.wg.Add(1)
		m.mu.Unlock()

		logger.Debug("scheduled fetch", logger.Fields{"url": req.URL.Redacted(), "operation": op.ID()})
		go m.run(key, op)
		return m.bind(ctx, Handle{URL: key, Token: token, op: op}), nil
	}
}

// join subscribes to a live op. It reports false, having delivered nothing,
// when op was cancelled before the subscription took hold, which happens when
// its last subscriber leaves while the join is in progress.
func join(op Operation, progress fetch.ProgressFunc, completed fetch.CompletedFunc) (fetch.Token, bool) {
	const (
		joining int32 = iota
		joined
		missed
	)
	var st atomic.Int32
	token := op.AddHandlers(progress, func(res *fetch.Result, err error) {
		if fetch.IsCancelled(err) && st.CompareAndSwap(joining, missed) {
			return
		}
		if completed != nil {
			completed(res, err)
		}
	})
	return token, st.CompareAndSwap(joining, joined)
}

// joinable reports whether new subscribers may attach to an operation in st.
func (m *Manager) joinable(st fetch.State) bool {
	return !st.IsTerminal() || (m.cfg.RetainCompleted && st == fetch.StateCompleted)
}

func (m *Manager) bind(ctx context.Context, h Handle) Handle {
	if ctx.Done() != nil {
		op, token := h.op, h.Token
		stop := context.AfterFunc(ctx, func() { op.Cancel(token) })
		go func() {
			<-op.Done()
			stop()
		}()
	}
	return h
}

// run waits for a transfer slot and runs op.
func (m *Manager) run(key string, op Operation) {
	defer m.wg.Done()
	defer m.settle(key, op)

	ctx, cancel := context.WithCancel(m.ctx)
	defer cancel()
	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		// Either every subscriber left while queued or the manager closed.
		op.CancelAll()
		return
	}
	defer m.sem.Release(1)
	op.Start(m.ctx)
}

// settle drops op from the index unless it is retained.
func (m *Manager) settle(key string, op Operation) {
	res, err := op.Outcome()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ops[key] != op {
		return
	}
	if m.cfg.RetainCompleted && err == nil && res != nil {
		size := int64(len(res.Data))
		if m.cfg.MaxRetainedBytes <= 0 || m.retainedBytes+size <= m.cfg.MaxRetainedBytes {
			m.retainedBytes += size
			return
		}
	}
	delete(m.ops, key)
}

func (m *Manager) forget(key string, op Operation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ops[key] == op {
		delete(m.ops, key)
	}
}

// Cancel cancels the subscription behind h. It reports whether the transfer
// was aborted because h was its last subscriber.
func (m *Manager) Cancel(h Handle) bool {
	if h.op == nil {
		return false
	}
	return h.op.Cancel(h.Token)
}

// CancelAll cancels every live operation.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	ops := make([]Operation, 0, len(m.ops))
	for _, op := range m.ops {
		ops = append(ops, op)
	}
	m.mu.Unlock()

	for _, op := range ops {
		op.CancelAll()
	}
}

// Purge drops retained results.
func (m *Manager) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, op := range m.ops {
		if op.State() == fetch.StateCompleted {
			delete(m.ops, key)
		}
	}
	m.retainedBytes = 0
}

// Len returns the number of indexed operations, live or retained.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ops)
}

// Wait blocks until every scheduled operation has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close cancels everything, waits for running operations and stops accepting
// new fetches.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.CancelAll()
	m.wg.Wait()
	m.detach()
	return nil
}

// String is used in log output.
func (h Handle) String() string {
	return fmt.Sprintf("%s#%s", h.URL, h.Token)
}
