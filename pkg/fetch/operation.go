package fetch

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/glorpus-work/fanfetch/internal/logger"
	"github.com/google/uuid"
)

// Config carries the collaborators of an Operation.
type Config struct {
	Transport Transport
	// Decoder validates and post-processes payloads. Nil accepts any payload.
	Decoder Decoder
	// Main runs successful completions. Nil means Inline.
	Main Dispatcher
	// Observer receives lifecycle events. May be nil.
	Observer Observer
	// Logger defaults to the application logger.
	Logger *slog.Logger
	// DecompressImages enables post-processing of qualifying payloads.
	DecompressImages bool
	// CredentialWait bounds how long an auth challenge waits for SetCredential
	// when no credential is set. Zero resolves immediately.
	CredentialWait time.Duration
}

// Operation owns one transfer and fans its events out to subscribers.
type Operation struct {
	id             string
	request        Request
	options        Options
	transport      Transport
	decoder        Decoder
	main           Dispatcher
	observer       Observer
	log            *slog.Logger
	credentialWait time.Duration
	done           chan struct{}

	mu              sync.Mutex
	state           State
	subscribers     map[Token]*subscriber
	retired         map[Token]*subscriber
	expectedSize    int64
	receivedSize    int64
	buffer          bytes.Buffer
	response        *Response
	credential      Credential
	credentialReady chan struct{}
	decompress      bool
	abort           context.CancelFunc
	result          *Result
	err             error
}

// New creates a pending operation for req.
func New(req Request, opts Options, cfg Config) (*Operation, error) {
	if req.URL == nil {
		return nil, ErrNilURL
	}
	o := &Operation{
		id:             uuid.NewString(),
		request:        req.clone(),
		options:        opts,
		transport:      cfg.Transport,
		decoder:        cfg.Decoder,
		main:           cfg.Main,
		observer:       cfg.Observer,
		credentialWait: cfg.CredentialWait,
		done:           make(chan struct{}),
		state:          StatePending,
		subscribers:    make(map[Token]*subscriber),
		retired:        make(map[Token]*subscriber),
		expectedSize:   -1,
		decompress:     cfg.DecompressImages,
	}
	if o.main == nil {
		o.main = Inline
	}
	log := cfg.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	o.log = log.With("operation", o.id, "url", o.request.URL.Redacted())
	return o, nil
}

// ID returns the unique operation id.
func (o *Operation) ID() string { return o.id }

// Request returns a copy of the request.
func (o *Operation) Request() Request { return o.request.clone() }

// Options returns the options the operation was created with.
func (o *Operation) Options() Options { return o.options }

// Done is closed once the operation reaches a terminal state.
func (o *Operation) Done() <-chan struct{} { return o.done }

// State returns the current state.
func (o *Operation) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// ExpectedSize returns the declared content length, or -1.
func (o *Operation) ExpectedSize() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.expectedSize
}

// ReceivedSize returns the number of body bytes received so far.
func (o *Operation) ReceivedSize() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.receivedSize
}

// LastResponse returns the response, or nil if none arrived yet.
func (o *Operation) LastResponse() *Response {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.response
}

// Outcome returns the terminal outcome, or nil, nil while the operation runs.
func (o *Operation) Outcome() (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result, o.err
}

// ShouldDecompressImages reports whether qualifying payloads are post-processed.
func (o *Operation) ShouldDecompressImages() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.decompress
}

// SetShouldDecompressImages toggles post-processing. It only affects an
// operation that has not yet completed its transfer.
func (o *Operation) SetShouldDecompressImages(v bool) {
	o.mu.Lock()
	o.decompress = v
	o.mu.Unlock()
}

// Credential returns the credential waiting to answer the next challenge.
func (o *Operation) Credential() Credential {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.credential
}

// SetCredential sets the credential for the next auth challenge. A challenge
// that is already waiting picks it up immediately.
func (o *Operation) SetCredential(c Credential) {
	o.mu.Lock()
	o.credential = c
	if c != nil && o.credentialReady != nil {
		close(o.credentialReady)
		o.credentialReady = nil
	}
	o.mu.Unlock()
}

// AddHandlers registers a subscriber. On a terminal operation completed is
// called before AddHandlers returns, with the known outcome.
func (o *Operation) AddHandlers(progress ProgressFunc, completed CompletedFunc) Token {
	s := newSubscriber(progress, completed)

	o.mu.Lock()
	if o.state.IsTerminal() {
		res, err := o.result, o.err
		o.mu.Unlock()
		s.deliverCompletion(res, err, o.log, nil)
		return s.token
	}
	o.subscribers[s.token] = s
	o.mu.Unlock()

	return s.token
}

// Cancel removes the subscription for token. It returns true when this was the
// last subscription of an unfinished operation; the transfer has then been
// aborted by the time Cancel returns.
func (o *Operation) Cancel(token Token) bool {
	o.mu.Lock()
	s, ok := o.subscribers[token]
	if !ok {
		if s, ok := o.retired[token]; ok {
			s.removed.Store(true)
			delete(o.retired, token)
		}
		o.mu.Unlock()
		return false
	}
	delete(o.subscribers, token)
	s.removed.Store(true)
	if len(o.subscribers) > 0 || o.state.IsTerminal() {
		o.mu.Unlock()
		return false
	}
	wasRunning := o.state == StateRunning
	o.finishLocked(StateCancelled, nil, cancelledError())
	o.mu.Unlock()

	o.log.Debug("last subscriber left, operation cancelled")
	if wasRunning {
		o.emit(EventStop, StateCancelled)
	}
	o.emit(EventFinish, StateCancelled)
	return true
}

// CancelAll cancels the whole operation. Remaining subscribers receive a
// cancelled completion.
func (o *Operation) CancelAll() {
	o.mu.Lock()
	if o.state.IsTerminal() {
		o.mu.Unlock()
		return
	}
	wasRunning := o.state == StateRunning
	subs := o.finishLocked(StateCancelled, nil, cancelledError())
	err := o.err
	o.mu.Unlock()

	o.log.Debug("operation cancelled", "subscribers", len(subs))
	if wasRunning {
		o.emit(EventStop, StateCancelled)
	}
	o.emit(EventFinish, StateCancelled)
	for _, s := range subs {
		s.deliverCompletion(nil, err, o.log, o.settler(s.token))
	}
}

// Start runs the transfer on the calling goroutine and returns when it is over.
// It does nothing unless the operation is pending.
func (o *Operation) Start(ctx context.Context) {
	o.mu.Lock()
	if o.state != StatePending {
		o.mu.Unlock()
		return
	}
	if o.options.Has(OptionContinueInBackground) {
		ctx = context.WithoutCancel(ctx)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.abort = cancel
	o.state = StateRunning
	o.mu.Unlock()

	o.log.Debug("operation started", "options", o.options.String())
	o.emit(EventStart, StateRunning)

	var err error
	if o.transport == nil {
		err = ErrNoTransport
	} else {
		err = o.transport.Transfer(ctx, &o.request, o.options, o)
	}

	switch {
	case err == nil:
		o.complete(ctx)
	case ctx.Err() != nil:
		o.CancelAll()
	default:
		o.fail(classify(err))
	}
}

// finishLocked performs the terminal transition and returns the subscribers
// that are owed a completion. o.mu must be held.
func (o *Operation) finishLocked(state State, res *Result, err error) []*subscriber {
	o.state = state
	o.result = res
	if err != nil {
		o.err = err
	}
	if state != StateCompleted {
		o.buffer = bytes.Buffer{}
	}
	if o.abort != nil {
		o.abort()
	}

	subs := make([]*subscriber, 0, len(o.subscribers))
	for token, s := range o.subscribers {
		subs = append(subs, s)
		o.retired[token] = s
	}
	clear(o.subscribers)
	close(o.done)
	return subs
}

func (o *Operation) complete(ctx context.Context) {
	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		return
	}
	data := o.buffer.Bytes()
	resp := o.response
	decompress := o.decompress
	o.mu.Unlock()

	res, ferr := o.postProcess(ctx, data, resp, decompress)
	if ferr != nil {
		o.fail(ferr)
		return
	}

	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		return
	}
	subs := o.finishLocked(StateCompleted, res, nil)
	o.mu.Unlock()

	o.log.Debug("operation completed", "bytes", len(res.Data), "subscribers", len(subs))
	o.emit(EventFinish, StateCompleted)
	for _, s := range subs {
		o.main.Dispatch(func() {
			s.deliverCompletion(res, nil, o.log, o.settler(s.token))
		})
	}
}

func (o *Operation) fail(ferr *Error) {
	o.mu.Lock()
	if o.state.IsTerminal() {
		o.mu.Unlock()
		return
	}
	subs := o.finishLocked(StateFailed, nil, ferr)
	o.mu.Unlock()

	o.log.Debug("operation failed", "kind", ferr.Kind.String(), "error", ferr)
	o.emit(EventFinish, StateFailed)
	for _, s := range subs {
		s.deliverCompletion(nil, ferr, o.log, o.settler(s.token))
	}
}

func (o *Operation) postProcess(ctx context.Context, data []byte, resp *Response, decompress bool) (*Result, *Error) {
	res := &Result{Data: data, Response: resp}
	if resp != nil && resp.StatusCode == http.StatusNotModified {
		res.NotModified = true
		return res, nil
	}
	if o.decoder == nil {
		return res, nil
	}
	if len(data) == 0 {
		return nil, decodingError(ErrEmptyPayload)
	}
	if err := o.decoder.Validate(data, resp); err != nil {
		return nil, decodingError(err)
	}
	if decompress && o.decoder.Qualifies(data, resp) {
		img, err := o.decoder.Decompress(ctx, data, resp)
		if err != nil {
			return nil, decodingError(err)
		}
		res.Image = img
	}
	return res, nil
}

// settler returns a func that drops token from the retired set once its
// completion has been claimed.
func (o *Operation) settler(token Token) func() {
	return func() {
		o.mu.Lock()
		delete(o.retired, token)
		o.mu.Unlock()
	}
}

// snapshotLocked returns the currently registered subscribers. o.mu must be held.
func (o *Operation) snapshotLocked() []*subscriber {
	subs := make([]*subscriber, 0, len(o.subscribers))
	for _, s := range o.subscribers {
		subs = append(subs, s)
	}
	return subs
}

// stoppedLocked is returned to the transport once the operation no longer
// accepts events. o.mu must be held.
func (o *Operation) stoppedLocked() error {
	if o.err != nil {
		return o.err
	}
	return cancelledError()
}

func (o *Operation) emit(kind EventKind, state State) {
	if o.observer == nil {
		return
	}
	o.observer.Observe(Event{
		Kind:        kind,
		OperationID: o.id,
		URL:         o.request.URL.String(),
		State:       state,
	})
}
