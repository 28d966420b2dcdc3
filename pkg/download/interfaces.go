//go:generate mockgen -destination=./mocks/download.go . Operation,Factory
package download

import (
	"context"
	"net/url"
	"time"

	"github.com/glorpus-work/fanfetch/pkg/fetch"
	"github.com/glorpus-work/fanfetch/pkg/fsutil"
)

// Operation is the part of *fetch.Operation the manager relies on.
type Operation interface {
	ID() string
	Start(ctx context.Context)
	AddHandlers(progress fetch.ProgressFunc, completed fetch.CompletedFunc) fetch.Token
	Cancel(token fetch.Token) bool
	CancelAll()
	Done() <-chan struct{}
	State() fetch.State
	Outcome() (*fetch.Result, error)
}

// Factory creates operations.
type Factory interface {
	New(req fetch.Request, opts fetch.Options) (Operation, error)
}

// Handle identifies one subscription made through Manager.Fetch.
type Handle struct {
	URL   string
	Token fetch.Token
	op    Operation
}

// Item represents one remote resource to store on disk.
type Item struct {
	ID       string   // stable identifier. Must be unique within a batch.
	URL      *url.URL // source URL
	Checksum string   // optional hex-encoded SHA-256 checksum; verified when set
	Filename string   // optional preferred filename; derived when empty
}

// Options control how FetchAll and FetchFile store payloads.
type Options struct {
	Dir         string // destination directory. Must be absolute.
	Concurrency int    // parallel items; if <=0, a sane default is used
	// MaxAge is how long an existing file is reused without refetching. Zero
	// always refetches.
	MaxAge    time.Duration
	WriteMode fsutil.WriteMode
	// FetchOptions are passed to every operation.
	FetchOptions fetch.Options
	// Progress is called with the item ID for every progress event. May be nil.
	Progress func(id string, p fetch.Progress)
}
