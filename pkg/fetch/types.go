package fetch

import (
	"image"
	"net/http"
	"net/url"
)

// Request describes the resource to fetch.
type Request struct {
	URL    *url.URL
	Method string
	Header http.Header
}

func (r Request) clone() Request {
	out := Request{Method: r.Method, Header: r.Header.Clone()}
	if out.Method == "" {
		out.Method = http.MethodGet
	}
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	if r.URL != nil {
		u := *r.URL
		if r.URL.User != nil {
			user := *r.URL.User
			u.User = &user
		}
		out.URL = &u
	}
	return out
}

// Response is the response metadata reported by the transport.
type Response struct {
	StatusCode int
	Header     http.Header
	// ContentLength is -1 when the length is not known.
	ContentLength int64
	URL           *url.URL
}

// Progress is delivered to progress callbacks.
type Progress struct {
	Received int64
	// Expected is -1 until the response declares a length.
	Expected int64
	Response *Response
	// Partial holds a copy of the bytes received so far when the operation was
	// created with OptionProgressive.
	Partial []byte
}

// Result is the outcome of a successful operation. One Result is shared by
// every subscriber, late joiners included; Data must not be modified.
type Result struct {
	Data     []byte
	Image    image.Image
	Response *Response
	// NotModified is set when the server answered 304 to a revalidation.
	NotModified bool
}

// ProgressFunc receives progress events.
type ProgressFunc func(Progress)

// CompletedFunc receives the terminal outcome. Exactly one of res and err is non-nil.
type CompletedFunc func(res *Result, err error)
