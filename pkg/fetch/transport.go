package fetch

import (
	"context"
	"image"
	"net/http"

	"github.com/glorpus-work/fanfetch/pkg/auth"
)

// Credential answers an authentication challenge.
type Credential = auth.Authenticator

// Transport performs network transfers on behalf of operations.
type Transport interface {
	// Transfer runs one transfer for req and reports its events to sink. It returns
	// when the body has been read completely, when a Sink method returns an error
	// (which Transfer returns), or when ctx is done.
	Transfer(ctx context.Context, req *Request, opts Options, sink Sink) error
}

// Sink receives the network events of one transfer. *Operation implements it.
type Sink interface {
	// Response reports the final response. A non-nil error stops the transfer.
	Response(resp *Response) error
	// Data reports a chunk of the body. A non-nil error stops the transfer.
	Data(chunk []byte) error
	// Challenge asks how to answer an authentication challenge. It may block until
	// a credential is supplied or ctx is done.
	Challenge(ctx context.Context, ch Challenge) Disposition
	// Redirect may rewrite next before it is sent. A non-nil error stops following.
	Redirect(next *http.Request, via []*http.Request) error
}

// ChallengeKind distinguishes challenge types.
type ChallengeKind int

// Challenge kinds.
const (
	// ChallengeServerTrust is raised when the server certificate fails verification.
	ChallengeServerTrust ChallengeKind = iota + 1
	// ChallengeHTTPAuth is raised by a 401 response carrying WWW-Authenticate.
	ChallengeHTTPAuth
)

// Challenge is an authentication challenge raised by the transport.
type Challenge struct {
	Kind ChallengeKind
	Host string
	// Scheme is the auth scheme from WWW-Authenticate, e.g. "Basic".
	Scheme string
	// PreviousFailures counts credentials already rejected during this transfer.
	PreviousFailures int
	// Err is the verification error for server trust challenges.
	Err error
}

// Action is the answer to a challenge.
type Action int

// Challenge answers.
const (
	// PerformDefault lets the transport resolve the challenge on its own.
	PerformDefault Action = iota
	// UseCredential answers with Disposition.Credential. For server trust it accepts
	// the certificate.
	UseCredential
	// CancelChallenge gives up on the challenge.
	CancelChallenge
)

// Disposition tells the transport how to answer a challenge.
type Disposition struct {
	Action     Action
	Credential Credential
}

// Decoder checks and post-processes payloads.
type Decoder interface {
	// Validate reports whether data decodes as the expected resource.
	Validate(data []byte, resp *Response) error
	// Qualifies reports whether the payload is eligible for Decompress.
	Qualifies(data []byte, resp *Response) bool
	// Decompress decodes data into a ready-to-use bitmap.
	Decompress(ctx context.Context, data []byte, resp *Response) (image.Image, error)
}
