package fetch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("nil url", func(t *testing.T) {
		op, err := New(Request{}, 0, Config{})
		require.ErrorIs(t, err, ErrNilURL)
		assert.Nil(t, op)
	})

	t.Run("defaults", func(t *testing.T) {
		req := testRequest(t)
		req.Header = map[string][]string{"X-Test": {"1"}}
		op, err := New(req, OptionProgressive, Config{DecompressImages: true})
		require.NoError(t, err)

		assert.NotEmpty(t, op.ID())
		assert.Equal(t, StatePending, op.State())
		assert.Equal(t, int64(-1), op.ExpectedSize())
		assert.Equal(t, int64(0), op.ReceivedSize())
		assert.Nil(t, op.LastResponse())
		assert.True(t, op.ShouldDecompressImages())
		assert.Equal(t, OptionProgressive, op.Options())
		assert.Equal(t, "GET", op.Request().Method)

		req.Header.Set("X-Test", "2")
		assert.Equal(t, "1", op.Request().Header.Get("X-Test"), "request must be copied at creation")
	})
}

func TestOperation_SuccessDeliversPayload(t *testing.T) {
	op, ft := newTestOperation(t, 0, Config{DecompressImages: false})
	rec := newRecorder()
	op.AddHandlers(rec.onProgress, rec.onCompleted)

	stopped := startOperation(t, op, ft)
	assert.Equal(t, StateRunning, op.State())

	payload := bytes.Repeat([]byte("x"), 1000)
	require.NoError(t, ft.respond(t, 200, 1000))
	require.NoError(t, ft.data(t, payload[:300]))
	require.NoError(t, ft.data(t, payload[300:]))
	require.NoError(t, ft.finish(t))

	rec.wait(t)
	waitClosed(t, stopped)

	res, err := rec.outcome()
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, payload, res.Data)
	assert.Nil(t, res.Image)
	assert.Equal(t, []int64{0, 300, 1000}, rec.received())
	assert.Equal(t, 1, rec.completions())
	assert.Equal(t, StateCompleted, op.State())
	assert.Equal(t, int64(1000), op.ExpectedSize())
	assert.Equal(t, int64(1000), op.ReceivedSize())
}

func TestOperation_CancelOneSubscriberKeepsTransfer(t *testing.T) {
	op, ft := newTestOperation(t, 0, Config{})
	a, b := newRecorder(), newRecorder()
	tokA := op.AddHandlers(a.onProgress, a.onCompleted)
	op.AddHandlers(b.onProgress, b.onCompleted)

	stopped := startOperation(t, op, ft)
	require.NoError(t, ft.respond(t, 200, 10))

	assert.False(t, op.Cancel(tokA), "A is not the last subscriber")
	assert.Equal(t, StateRunning, op.State())

	require.NoError(t, ft.data(t, []byte("0123456789")))
	require.NoError(t, ft.finish(t))
	b.wait(t)
	waitClosed(t, stopped)

	assert.Equal(t, 0, a.completions())
	assert.Equal(t, []int64{0}, a.received(), "A saw only the response before cancelling")
	assert.Equal(t, 1, b.completions())
	res, err := b.outcome()
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789"), res.Data)
}

func TestOperation_HTTPStatusFailure(t *testing.T) {
	op, ft := newTestOperation(t, 0, Config{})
	a, b := newRecorder(), newRecorder()
	op.AddHandlers(a.onProgress, a.onCompleted)
	op.AddHandlers(b.onProgress, b.onCompleted)

	stopped := startOperation(t, op, ft)
	err := ft.respond(t, 404, 20)
	require.Error(t, err)
	waitClosed(t, stopped)

	for _, rec := range []*recorder{a, b} {
		rec.wait(t)
		res, err := rec.outcome()
		assert.Nil(t, res)
		assert.Equal(t, KindHTTPStatus, KindOf(err))
		assert.Equal(t, 404, StatusCode(err))
		assert.False(t, IsCancelled(err))
		assert.Equal(t, 1, rec.completions())
	}
	assert.Equal(t, StateFailed, op.State())
	assert.Equal(t, int64(0), op.ReceivedSize())
	assert.ErrorIs(t, ft.data(t, []byte("late")), errTransferEnded)
}

func TestOperation_TransportFailureFreezesReceived(t *testing.T) {
	op, ft := newTestOperation(t, 0, Config{})
	rec := newRecorder()
	op.AddHandlers(rec.onProgress, rec.onCompleted)

	stopped := startOperation(t, op, ft)
	require.NoError(t, ft.respond(t, 200, 100))
	require.NoError(t, ft.data(t, make([]byte, 40)))
	boom := errors.New("connection reset")
	require.ErrorIs(t, ft.fail(t, boom), boom)
	waitClosed(t, stopped)

	rec.wait(t)
	_, err := rec.outcome()
	assert.Equal(t, KindTransport, KindOf(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(40), op.ReceivedSize())
	assert.Equal(t, StateFailed, op.State())
}

func TestOperation_LastCancelAbortsTransfer(t *testing.T) {
	var events []EventKind
	var mu sync.Mutex
	obs := ObserverFunc(func(e Event) {
		mu.Lock()
		events = append(events, e.Kind)
		mu.Unlock()
	})

	op, ft := newTestOperation(t, 0, Config{Observer: obs})
	rec := newRecorder()
	tok := op.AddHandlers(rec.onProgress, rec.onCompleted)

	stopped := startOperation(t, op, ft)
	require.NoError(t, ft.respond(t, 200, 100))
	require.NoError(t, ft.data(t, make([]byte, 10)))

	assert.True(t, op.Cancel(tok))
	waitClosed(t, ft.exited)
	waitClosed(t, stopped)
	waitClosed(t, op.Done())

	assert.Equal(t, StateCancelled, op.State())
	assert.Equal(t, 0, rec.completions())
	assert.Equal(t, []int64{0, 10}, rec.received())
	assert.False(t, op.Cancel(tok), "second cancel is a no-op")

	late := newRecorder()
	op.AddHandlers(late.onProgress, late.onCompleted)
	select {
	case <-late.completedC:
	default:
		t.Fatal("late subscriber must be completed synchronously")
	}
	_, err := late.outcome()
	assert.True(t, IsCancelled(err))
	assert.ErrorIs(t, err, ErrCancelled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventKind{EventStart, EventResponse, EventStop, EventFinish}, events)
}

func TestOperation_CancelUnknownToken(t *testing.T) {
	op, _ := newTestOperation(t, 0, Config{})
	op.AddHandlers(nil, nil)
	assert.False(t, op.Cancel(Token{}))
	assert.False(t, op.Cancel(newToken()))
	assert.Equal(t, StatePending, op.State())
}

func TestOperation_CancelBeforeStart(t *testing.T) {
	op, ft := newTestOperation(t, 0, Config{})
	tok := op.AddHandlers(nil, nil)

	assert.True(t, op.Cancel(tok))
	assert.Equal(t, StateCancelled, op.State())

	op.Start(context.Background())
	select {
	case <-ft.started:
		t.Fatal("transfer must never start after a pending cancel")
	default:
	}
	assert.Equal(t, StateCancelled, op.State())
}

func TestOperation_CancelAll(t *testing.T) {
	op, ft := newTestOperation(t, 0, Config{})
	a, b := newRecorder(), newRecorder()
	op.AddHandlers(a.onProgress, a.onCompleted)
	op.AddHandlers(b.onProgress, b.onCompleted)

	stopped := startOperation(t, op, ft)
	require.NoError(t, ft.respond(t, 200, -1))

	op.CancelAll()
	op.CancelAll()
	waitClosed(t, stopped)

	for _, rec := range []*recorder{a, b} {
		rec.wait(t)
		assert.Equal(t, 1, rec.completions())
		_, err := rec.outcome()
		assert.True(t, IsCancelled(err))
	}
	assert.Equal(t, StateCancelled, op.State())
	assert.Equal(t, int64(-1), op.ExpectedSize())
}

func TestOperation_LateSubscriberAfterSuccess(t *testing.T) {
	op, ft := newTestOperation(t, 0, Config{})
	op.AddHandlers(nil, nil)
	stopped := startOperation(t, op, ft)
	require.NoError(t, ft.respond(t, 200, 3))
	require.NoError(t, ft.data(t, []byte("abc")))
	require.NoError(t, ft.finish(t))
	waitClosed(t, stopped)

	late := newRecorder()
	tok := op.AddHandlers(late.onProgress, late.onCompleted)
	assert.False(t, tok.IsZero())
	require.Equal(t, 1, late.completions())
	res, err := late.outcome()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), res.Data)
	assert.False(t, op.Cancel(tok))

	res, err = op.Outcome()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), res.Data)
}

func TestOperation_BodyOverflow(t *testing.T) {
	op, ft := newTestOperation(t, 0, Config{})
	rec := newRecorder()
	op.AddHandlers(rec.onProgress, rec.onCompleted)
	stopped := startOperation(t, op, ft)

	require.NoError(t, ft.respond(t, 200, 4))
	require.NoError(t, ft.data(t, []byte("abc")))
	require.Error(t, ft.data(t, []byte("de")))
	waitClosed(t, stopped)

	rec.wait(t)
	_, err := rec.outcome()
	assert.ErrorIs(t, err, ErrBodyOverflow)
	assert.Equal(t, int64(3), op.ReceivedSize())
	for _, got := range rec.received() {
		assert.LessOrEqual(t, got, int64(4))
	}
}

func TestOperation_ProgressivePartialData(t *testing.T) {
	op, ft := newTestOperation(t, OptionProgressive, Config{})
	var partials [][]byte
	op.AddHandlers(func(p Progress) {
		partials = append(partials, p.Partial)
	}, nil)

	stopped := startOperation(t, op, ft)
	require.NoError(t, ft.respond(t, 200, 4))
	require.NoError(t, ft.data(t, []byte("ab")))
	require.NoError(t, ft.data(t, []byte("cd")))
	require.NoError(t, ft.finish(t))
	waitClosed(t, stopped)

	assert.Equal(t, [][]byte{nil, []byte("ab"), []byte("abcd")}, partials)
}

func TestOperation_SuccessRunsOnMainDispatcher(t *testing.T) {
	main := NewSerialQueue()
	defer main.Close()

	var onMain atomic.Bool
	var dispatched atomic.Int32
	tracking := DispatcherFunc(func(fn func()) {
		dispatched.Add(1)
		main.Dispatch(func() {
			onMain.Store(true)
			fn()
		})
	})

	op, ft := newTestOperation(t, 0, Config{Main: tracking})
	rec := newRecorder()
	op.AddHandlers(rec.onProgress, rec.onCompleted)
	stopped := startOperation(t, op, ft)
	require.NoError(t, ft.respond(t, 200, 1))
	require.NoError(t, ft.data(t, []byte("z")))
	require.NoError(t, ft.finish(t))
	waitClosed(t, stopped)

	rec.wait(t)
	assert.True(t, onMain.Load())
	assert.Equal(t, int32(1), dispatched.Load())
}

func TestOperation_FailureDoesNotUseMainDispatcher(t *testing.T) {
	var dispatched atomic.Int32
	counting := DispatcherFunc(func(fn func()) {
		dispatched.Add(1)
		fn()
	})

	op, ft := newTestOperation(t, 0, Config{Main: counting})
	rec := newRecorder()
	op.AddHandlers(rec.onProgress, rec.onCompleted)
	stopped := startOperation(t, op, ft)
	require.Error(t, ft.respond(t, 500, 0))
	waitClosed(t, stopped)

	rec.wait(t)
	assert.Equal(t, int32(0), dispatched.Load())
}

func TestOperation_PanickingCallbacksAreIsolated(t *testing.T) {
	op, ft := newTestOperation(t, 0, Config{})
	op.AddHandlers(func(Progress) { panic("progress boom") }, func(*Result, error) { panic("completion boom") })
	rec := newRecorder()
	op.AddHandlers(rec.onProgress, rec.onCompleted)

	stopped := startOperation(t, op, ft)
	require.NoError(t, ft.respond(t, 200, 2))
	require.NoError(t, ft.data(t, []byte("ok")))
	require.NoError(t, ft.finish(t))
	waitClosed(t, stopped)

	rec.wait(t)
	res, err := rec.outcome()
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), res.Data)
}

func TestOperation_CallbackCancellingItself(t *testing.T) {
	op, ft := newTestOperation(t, 0, Config{})
	other := newRecorder()
	op.AddHandlers(other.onProgress, other.onCompleted)

	var tok Token
	var calls atomic.Int32
	tok = op.AddHandlers(func(Progress) {
		calls.Add(1)
		op.Cancel(tok)
	}, func(*Result, error) {
		t.Error("cancelled subscriber must not be completed")
	})

	stopped := startOperation(t, op, ft)
	require.NoError(t, ft.respond(t, 200, 2))
	require.NoError(t, ft.data(t, []byte("ab")))
	require.NoError(t, ft.finish(t))
	waitClosed(t, stopped)

	other.wait(t)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOperation_CancelAllFromProgressCallback(t *testing.T) {
	op, ft := newTestOperation(t, 0, Config{})

	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}
	done := make(chan struct{})
	op.AddHandlers(func(p Progress) {
		if p.Received > 0 {
			op.CancelAll()
			record("progress-after-cancel")
		}
	}, func(_ *Result, err error) {
		assert.True(t, IsCancelled(err))
		record("completion")
		close(done)
	})

	stopped := startOperation(t, op, ft)
	require.NoError(t, ft.respond(t, 200, 10))
	require.NoError(t, ft.data(t, []byte("a")))
	waitClosed(t, stopped)
	waitClosed(t, done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"progress-after-cancel", "completion"}, order)
}

func TestOperation_SchedulingContextCancelled(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantState State
	}{
		{name: "foreground is cancelled", opts: 0, wantState: StateCancelled},
		{name: "background keeps running", opts: OptionContinueInBackground, wantState: StateRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, ft := newTestOperation(t, tt.opts, Config{})
			rec := newRecorder()
			op.AddHandlers(rec.onProgress, rec.onCompleted)

			ctx, cancel := context.WithCancel(context.Background())
			stopped := make(chan struct{})
			go func() {
				defer close(stopped)
				op.Start(ctx)
			}()
			waitClosed(t, ft.started)
			cancel()

			if tt.wantState == StateCancelled {
				waitClosed(t, stopped)
				rec.wait(t)
				_, err := rec.outcome()
				assert.True(t, IsCancelled(err))
				return
			}

			require.NoError(t, ft.respond(t, 200, 1))
			assert.Equal(t, StateRunning, op.State())
			require.NoError(t, ft.data(t, []byte("1")))
			require.NoError(t, ft.finish(t))
			waitClosed(t, stopped)
			rec.wait(t)
			_, err := rec.outcome()
			assert.NoError(t, err)
		})
	}
}

func TestOperation_NoTransport(t *testing.T) {
	op, err := New(testRequest(t), 0, Config{})
	require.NoError(t, err)
	rec := newRecorder()
	op.AddHandlers(rec.onProgress, rec.onCompleted)
	op.Start(context.Background())

	rec.wait(t)
	_, ferr := rec.outcome()
	assert.ErrorIs(t, ferr, ErrNoTransport)
	assert.Equal(t, KindTransport, KindOf(ferr))
}

type stubDecoder struct {
	validateErr   error
	qualifies     bool
	decompressErr error
	decompressed  atomic.Int32
}

func (d *stubDecoder) Validate([]byte, *Response) error {
	return d.validateErr
}

func (d *stubDecoder) Qualifies([]byte, *Response) bool {
	return d.qualifies
}

func (d *stubDecoder) Decompress(context.Context, []byte, *Response) (image.Image, error) {
	d.decompressed.Add(1)
	if d.decompressErr != nil {
		return nil, d.decompressErr
	}
	return image.NewNRGBA(image.Rect(0, 0, 2, 2)), nil
}

func TestOperation_PostProcessing(t *testing.T) {
	tests := []struct {
		name           string
		decoder        *stubDecoder
		decompress     bool
		body           []byte
		status         int
		wantKind       Kind
		wantImage      bool
		wantDecompress int32
		wantNotMod     bool
	}{
		{name: "decompress enabled", decoder: &stubDecoder{qualifies: true}, decompress: true, body: []byte("img"), status: 200, wantImage: true, wantDecompress: 1},
		{name: "decompress disabled", decoder: &stubDecoder{qualifies: true}, decompress: false, body: []byte("img"), status: 200},
		{name: "content does not qualify", decoder: &stubDecoder{qualifies: false}, decompress: true, body: []byte("img"), status: 200},
		{name: "invalid body", decoder: &stubDecoder{validateErr: errors.New("not an image")}, decompress: true, body: []byte("txt"), status: 200, wantKind: KindDecoding},
		{name: "empty body", decoder: &stubDecoder{}, body: nil, status: 200, wantKind: KindDecoding},
		{name: "decompress failure", decoder: &stubDecoder{qualifies: true, decompressErr: errors.New("corrupt")}, decompress: true, body: []byte("img"), status: 200, wantKind: KindDecoding, wantDecompress: 1},
		{name: "not modified skips decoding", decoder: &stubDecoder{validateErr: errors.New("unused")}, decompress: true, status: 304, wantNotMod: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, ft := newTestOperation(t, 0, Config{Decoder: tt.decoder, DecompressImages: tt.decompress})
			rec := newRecorder()
			op.AddHandlers(rec.onProgress, rec.onCompleted)
			stopped := startOperation(t, op, ft)

			require.NoError(t, ft.respond(t, tt.status, int64(len(tt.body))))
			require.NoError(t, ft.data(t, tt.body))
			require.NoError(t, ft.finish(t))
			waitClosed(t, stopped)
			rec.wait(t)

			res, err := rec.outcome()
			assert.Equal(t, tt.wantDecompress, tt.decoder.decompressed.Load())
			if tt.wantKind != KindUnknown {
				assert.Equal(t, tt.wantKind, KindOf(err))
				assert.Equal(t, StateFailed, op.State())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantImage, res.Image != nil)
			assert.Equal(t, tt.wantNotMod, res.NotModified)
		})
	}
}

func TestOperation_ConcurrentSubscribers(t *testing.T) {
	op, ft := newTestOperation(t, 0, Config{})
	stopped := startOperation(t, op, ft)
	require.NoError(t, ft.respond(t, 200, -1))

	type sub struct {
		rec       *recorder
		tok       Token
		cancelled bool
	}
	var mu sync.Mutex
	var subs []*sub
	var cancelledCalls atomic.Int32

	// An anchor keeps the registry non-empty so random cancels never abort.
	anchor := newRecorder()
	op.AddHandlers(anchor.onProgress, anchor.onCompleted)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s := &sub{rec: newRecorder()}
				var cancelled atomic.Bool
				s.tok = op.AddHandlers(func(p Progress) {
					if cancelled.Load() {
						cancelledCalls.Add(1)
					}
					s.rec.onProgress(p)
				}, func(res *Result, err error) {
					if cancelled.Load() {
						cancelledCalls.Add(1)
					}
					s.rec.onCompleted(res, err)
				})
				if (i+w)%3 == 0 {
					op.Cancel(s.tok)
					cancelled.Store(true)
					s.cancelled = true
				}
				mu.Lock()
				subs = append(subs, s)
				mu.Unlock()
			}
		}(w)
	}

	for i := 0; i < 20; i++ {
		require.NoError(t, ft.data(t, []byte{byte(i)}))
	}
	wg.Wait()
	require.NoError(t, ft.finish(t))
	waitClosed(t, stopped)
	anchor.wait(t)

	assert.Equal(t, int32(0), cancelledCalls.Load(), "no callback may start after Cancel returned")
	for _, s := range subs {
		if s.cancelled {
			assert.Equal(t, 0, s.rec.completions())
			continue
		}
		s.rec.wait(t)
		assert.Equal(t, 1, s.rec.completions())
		assert.False(t, s.rec.afterDone)
		got := s.rec.received()
		for i := 1; i < len(got); i++ {
			assert.LessOrEqual(t, got[i-1], got[i])
		}
	}
}

func TestOperation_DoneClosedOnce(t *testing.T) {
	op, ft := newTestOperation(t, 0, Config{})
	tok := op.AddHandlers(nil, nil)
	stopped := startOperation(t, op, ft)
	op.CancelAll()
	assert.False(t, op.Cancel(tok))
	op.CancelAll()
	waitClosed(t, stopped)
	waitClosed(t, op.Done())
	assert.Equal(t, StateCancelled, op.State())
}

func TestOperation_DeliveredSubscribersAreReleased(t *testing.T) {
	op, ft := newTestOperation(t, 0, Config{})
	a, b := newRecorder(), newRecorder()
	op.AddHandlers(a.onProgress, a.onCompleted)
	op.AddHandlers(b.onProgress, b.onCompleted)

	stopped := startOperation(t, op, ft)
	require.NoError(t, ft.respond(t, 200, 4))
	require.NoError(t, ft.data(t, []byte("data")))
	require.NoError(t, ft.finish(t))
	a.wait(t)
	b.wait(t)
	waitClosed(t, stopped)

	op.mu.Lock()
	retired := len(op.retired)
	op.mu.Unlock()
	assert.Zero(t, retired)

	late := newRecorder()
	op.AddHandlers(late.onProgress, late.onCompleted)
	late.wait(t)
	res, err := late.outcome()
	require.NoError(t, err)
	first, _ := a.outcome()
	assert.Same(t, first, res, "late subscribers share the retained result")
}

func TestOperation_CancelQueuedCompletion(t *testing.T) {
	queue := NewSerialQueue()
	defer queue.Close()
	block := make(chan struct{})
	queue.Dispatch(func() { <-block })

	op, ft := newTestOperation(t, 0, Config{Main: queue})
	rec := newRecorder()
	tok := op.AddHandlers(rec.onProgress, rec.onCompleted)

	stopped := startOperation(t, op, ft)
	require.NoError(t, ft.respond(t, 200, 1))
	require.NoError(t, ft.data(t, []byte("x")))
	require.NoError(t, ft.finish(t))
	waitClosed(t, stopped)

	assert.False(t, op.Cancel(tok), "operation already completed")
	close(block)
	queue.Flush()

	assert.Equal(t, 0, rec.completions())
	op.mu.Lock()
	assert.Empty(t, op.retired)
	op.mu.Unlock()
}
