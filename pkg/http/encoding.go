package http

import (
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/mholt/archives"

	"github.com/glorpus-work/fanfetch/pkg/errors"
)

// decompressors maps a Content-Encoding token to its decoder.
var decompressors = map[string]archives.Decompressor{
	"gzip":   archives.Gz{},
	"x-gzip": archives.Gz{},
	"br":     archives.Brotli{},
	"zstd":   archives.Zstd{},
}

// decodeBody wraps the response body in the decoder for its Content-Encoding.
// decoded reports whether the returned reader must be closed by the caller in
// addition to resp.Body.
func decodeBody(resp *http.Response) (body io.ReadCloser, decoded bool, err error) {
	coding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	if resp.StatusCode == http.StatusNotModified || resp.ContentLength == 0 {
		coding = ""
	}
	switch coding {
	case "", "identity":
		return resp.Body, false, nil
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, false, errors.Wrap(err, "failed to open deflate body")
		}
		return zr, true, nil
	}

	dec, ok := decompressors[coding]
	if !ok {
		return nil, false, errors.Wrapf(errors.ErrUnsupportedEncoding, "content encoding %q", coding)
	}
	rc, err := dec.OpenReader(resp.Body)
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to open %s body", coding)
	}
	return rc, true, nil
}
