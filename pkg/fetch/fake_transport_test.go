package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errTransferEnded = fmt.Errorf("transfer ended")

// scriptedTransport lets a test drive the network events of a transfer one
// step at a time.
type scriptedTransport struct {
	steps   chan step
	started chan struct{}
	exited  chan struct{}
}

type step struct {
	fn   func(ctx context.Context, sink Sink) error
	done chan error
	end  bool
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{
		steps:   make(chan step),
		started: make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

func (f *scriptedTransport) Transfer(ctx context.Context, _ *Request, _ Options, sink Sink) error {
	close(f.started)
	defer close(f.exited)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st := <-f.steps:
			err := st.fn(ctx, sink)
			st.done <- err
			if err != nil || st.end {
				return err
			}
		}
	}
}

func (f *scriptedTransport) run(t *testing.T, fn func(ctx context.Context, sink Sink) error, end bool) error {
	t.Helper()
	st := step{fn: fn, done: make(chan error, 1), end: end}
	select {
	case f.steps <- st:
	case <-f.exited:
		return errTransferEnded
	case <-time.After(5 * time.Second):
		t.Fatal("transport did not accept step")
	}
	return <-st.done
}

func (f *scriptedTransport) respond(t *testing.T, status int, length int64) error {
	return f.run(t, func(_ context.Context, sink Sink) error {
		return sink.Response(&Response{StatusCode: status, ContentLength: length, Header: http.Header{}})
	}, false)
}

func (f *scriptedTransport) data(t *testing.T, chunk []byte) error {
	return f.run(t, func(_ context.Context, sink Sink) error {
		return sink.Data(chunk)
	}, false)
}

func (f *scriptedTransport) finish(t *testing.T) error {
	return f.run(t, func(context.Context, Sink) error { return nil }, true)
}

func (f *scriptedTransport) fail(t *testing.T, err error) error {
	return f.run(t, func(context.Context, Sink) error { return err }, false)
}

// recorder collects the callbacks of one subscriber.
type recorder struct {
	mu         sync.Mutex
	progress   []Progress
	results    []*Result
	errs       []error
	afterDone  bool
	completedC chan struct{}
}

func newRecorder() *recorder {
	return &recorder{completedC: make(chan struct{})}
}

func (r *recorder) onProgress(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.results)+len(r.errs) > 0 {
		r.afterDone = true
	}
	r.progress = append(r.progress, p)
}

func (r *recorder) onCompleted(res *Result, err error) {
	r.mu.Lock()
	first := len(r.results)+len(r.errs) == 0
	r.results = append(r.results, res)
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	if first {
		close(r.completedC)
	}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.completedC:
	case <-time.After(5 * time.Second):
		t.Fatal("completion not delivered")
	}
}

func (r *recorder) completions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func (r *recorder) received() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.progress))
	for _, p := range r.progress {
		out = append(out, p.Received)
	}
	return out
}

func (r *recorder) outcome() (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[0], r.errs[0]
}

func testRequest(t *testing.T) Request {
	t.Helper()
	u, err := url.Parse("https://images.example.com/cat.png")
	require.NoError(t, err)
	return Request{URL: u}
}

func newTestOperation(t *testing.T, opts Options, cfg Config) (*Operation, *scriptedTransport) {
	t.Helper()
	ft := newScriptedTransport()
	cfg.Transport = ft
	op, err := New(testRequest(t), opts, cfg)
	require.NoError(t, err)
	return op, ft
}

func startOperation(t *testing.T, op *Operation, ft *scriptedTransport) chan struct{} {
	t.Helper()
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		op.Start(context.Background())
	}()
	select {
	case <-ft.started:
	case <-time.After(5 * time.Second):
		t.Fatal("transfer did not start")
	}
	return stopped
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}
