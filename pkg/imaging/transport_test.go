package imaging

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/fanfetch/pkg/fetch"
)

type staticTransport struct {
	body        []byte
	contentType string
}

func (s staticTransport) Transfer(_ context.Context, req *fetch.Request, _ fetch.Options, sink fetch.Sink) error {
	h := make(http.Header)
	h.Set("Content-Type", s.contentType)
	if err := sink.Response(&fetch.Response{
		StatusCode:    http.StatusOK,
		Header:        h,
		ContentLength: int64(len(s.body)),
		URL:           req.URL,
	}); err != nil {
		return err
	}
	return sink.Data(s.body)
}

func mustURL(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse("https://images.example.com/cat.png")
	require.NoError(t, err)
	return u
}
