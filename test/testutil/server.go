// Package testutil holds helpers shared by command level tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/glorpus-work/fanfetch/pkg/config"
)

// PayloadServer serves fixed payloads by path and counts requests per path.
type PayloadServer struct {
	*httptest.Server

	mu       sync.Mutex
	payloads map[string][]byte
	hits     map[string]*atomic.Int32
}

// NewPayloadServer starts a server for payloads. It is closed with the test.
func NewPayloadServer(t *testing.T, payloads map[string][]byte) *PayloadServer {
	t.Helper()
	ps := &PayloadServer{
		payloads: payloads,
		hits:     make(map[string]*atomic.Int32, len(payloads)),
	}
	for path := range payloads {
		ps.hits[path] = new(atomic.Int32)
	}
	ps.Server = httptest.NewServer(http.HandlerFunc(ps.serve))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *PayloadServer) serve(w http.ResponseWriter, r *http.Request) {
	ps.mu.Lock()
	data, ok := ps.payloads[r.URL.Path]
	counter := ps.hits[r.URL.Path]
	ps.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	counter.Add(1)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if ct := http.DetectContentType(data); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	_, _ = w.Write(data)
}

// Hits returns how often path was requested.
func (ps *PayloadServer) Hits(path string) int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if c, ok := ps.hits[path]; ok {
		return int(c.Load())
	}
	return 0
}

// PNG returns an encoded w×h image.
func PNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.NRGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// SetupTestConfig writes cfg to a temporary config file and returns its path.
// The cache directory is moved below the test's temp dir.
func SetupTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	dir := t.TempDir()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.Cache.Dir = filepath.Join(dir, "payloads")
	path := filepath.Join(dir, "config.yaml")
	if err := cfg.SaveConfig(path); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// SyncBuffer is a bytes.Buffer safe for concurrent writers.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Reset discards the buffered output.
func (b *SyncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}
