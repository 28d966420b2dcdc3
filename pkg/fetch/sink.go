package fetch

import (
	"bytes"
	"context"
	"net/http"
	"time"
)

// Headers removed from redirected requests unless OptionPreserveAuthOnRedirect is set.
var sensitiveHeaders = []string{
	"Authorization",
	"Proxy-Authorization",
	"Www-Authenticate",
	"Cookie",
	"Cookie2",
}

// Response implements Sink.
func (o *Operation) Response(resp *Response) error {
	o.mu.Lock()
	if o.state != StateRunning {
		err := o.stoppedLocked()
		o.mu.Unlock()
		return err
	}
	if o.response != nil {
		o.mu.Unlock()
		return &Error{Kind: KindTransport, Err: ErrDuplicateResponse}
	}
	o.response = resp
	if resp.StatusCode >= http.StatusBadRequest {
		o.mu.Unlock()
		o.emit(EventResponse, StateRunning)
		return statusError(resp.StatusCode)
	}
	if resp.ContentLength >= 0 {
		o.expectedSize = resp.ContentLength
	}
	p := Progress{Received: 0, Expected: o.expectedSize, Response: resp}
	subs := o.snapshotLocked()
	o.mu.Unlock()

	o.log.Debug("response received", "status", resp.StatusCode, "expected", p.Expected)
	o.emit(EventResponse, StateRunning)
	for _, s := range subs {
		s.deliverProgress(p, o.log)
	}
	return nil
}

// Data implements Sink.
func (o *Operation) Data(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	o.mu.Lock()
	if o.state != StateRunning {
		err := o.stoppedLocked()
		o.mu.Unlock()
		return err
	}
	n := int64(len(chunk))
	if o.expectedSize >= 0 && o.receivedSize+n > o.expectedSize {
		o.mu.Unlock()
		return &Error{Kind: KindTransport, Err: ErrBodyOverflow}
	}
	o.buffer.Write(chunk)
	o.receivedSize += n
	p := Progress{Received: o.receivedSize, Expected: o.expectedSize, Response: o.response}
	if o.options.Has(OptionProgressive) {
		p.Partial = bytes.Clone(o.buffer.Bytes())
	}
	subs := o.snapshotLocked()
	o.mu.Unlock()

	for _, s := range subs {
		s.deliverProgress(p, o.log)
	}
	return nil
}

// Challenge implements Sink.
func (o *Operation) Challenge(ctx context.Context, ch Challenge) Disposition {
	switch ch.Kind {
	case ChallengeServerTrust:
		if o.options.Has(OptionAllowInvalidCertificates) {
			o.log.Warn("accepting untrusted server certificate", "host", ch.Host, "error", ch.Err)
			return Disposition{Action: UseCredential}
		}
		return Disposition{Action: PerformDefault}
	case ChallengeHTTPAuth:
		cred := o.awaitCredential(ctx)
		if cred != nil {
			o.log.Debug("answering auth challenge", "host", ch.Host, "scheme", ch.Scheme, "type", string(cred.Type()))
			return Disposition{Action: UseCredential, Credential: cred}
		}
		if ctx.Err() != nil {
			return Disposition{Action: CancelChallenge}
		}
		return Disposition{Action: PerformDefault}
	default:
		return Disposition{Action: PerformDefault}
	}
}

// awaitCredential takes the pending credential, waiting up to credentialWait
// for one to be supplied. The credential is consumed.
func (o *Operation) awaitCredential(ctx context.Context) Credential {
	o.mu.Lock()
	if c := o.credential; c != nil {
		o.credential = nil
		o.mu.Unlock()
		return c
	}
	if o.credentialWait <= 0 || o.state != StateRunning {
		o.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	o.credentialReady = ready
	o.mu.Unlock()

	timer := time.NewTimer(o.credentialWait)
	defer timer.Stop()

	select {
	case <-ready:
		o.mu.Lock()
		c := o.credential
		o.credential = nil
		o.mu.Unlock()
		return c
	case <-timer.C:
	case <-ctx.Done():
	}

	o.mu.Lock()
	if o.credentialReady == ready {
		o.credentialReady = nil
	}
	o.mu.Unlock()
	return nil
}

// waitingForCredential reports whether a challenge is blocked in awaitCredential.
func (o *Operation) waitingForCredential() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.credentialReady != nil
}

// Redirect implements Sink.
func (o *Operation) Redirect(next *http.Request, via []*http.Request) error {
	if o.options.Has(OptionPreserveAuthOnRedirect) {
		for _, h := range sensitiveHeaders {
			if v := o.request.Header.Values(h); len(v) > 0 {
				next.Header[http.CanonicalHeaderKey(h)] = append([]string(nil), v...)
			}
		}
	} else {
		for _, h := range sensitiveHeaders {
			next.Header.Del(h)
		}
	}
	o.log.Debug("following redirect", "to", next.URL.Redacted(), "hops", len(via))
	return nil
}
