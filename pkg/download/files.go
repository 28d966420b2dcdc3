package download

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/glorpus-work/fanfetch/internal/logger"
	pkgerrors "github.com/glorpus-work/fanfetch/pkg/errors"
	"github.com/glorpus-work/fanfetch/pkg/fetch"
	"github.com/glorpus-work/fanfetch/pkg/fsutil"
)

// FetchAll stores all items below opts.Dir and returns a map from Item.ID to
// the absolute file path. Items sharing a URL are fetched once.
func (m *Manager) FetchAll(ctx context.Context, items []Item, opts Options) (map[string]string, error) {
	if len(items) == 0 {
		return nil, pkgerrors.ErrEmptyDownloadList
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = max(2, runtime.NumCPU()/2)
	}
	if err := prepareDir(opts.Dir); err != nil {
		return nil, err
	}

	byURL, err := buildURLIndex(items)
	if err != nil {
		return nil, err
	}

	results := make([]string, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, indexes := range byURL {
		g.Go(func() error {
			path, err := m.fetchOne(gctx, items[indexes[0]], opts)
			if err != nil {
				return err
			}
			// Each index belongs to exactly one URL group.
			for _, i := range indexes {
				results[i] = path
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mapResultsByID(items, results), nil
}

func buildURLIndex(items []Item) (map[string][]int, error) {
	byURL := make(map[string][]int)
	for i, it := range items {
		if it.URL == nil {
			return nil, fmt.Errorf("item %d has nil URL: %w", i, pkgerrors.ErrDownloadFailed)
		}
		key := it.URL.String()
		byURL[key] = append(byURL[key], i)
	}
	return byURL, nil
}

func mapResultsByID(items []Item, results []string) map[string]string {
	out := make(map[string]string, len(items))
	for i, it := range items {
		out[it.ID] = results[i]
	}
	return out
}

// FetchFile stores a single item and returns the absolute file path.
func (m *Manager) FetchFile(ctx context.Context, item Item, opts Options) (string, error) {
	if err := prepareDir(opts.Dir); err != nil {
		return "", err
	}
	return m.fetchOne(ctx, item, opts)
}

func prepareDir(dir string) error {
	if dir == "" || !filepath.IsAbs(dir) {
		return fmt.Errorf("download dir must be absolute: %s: %w", dir, pkgerrors.ErrInvalidPath)
	}
	if err := os.MkdirAll(dir, fsutil.DirModeSecure); err != nil {
		return pkgerrors.Wrap(err, "could not create download dir")
	}
	return nil
}

type outcome struct {
	res *fetch.Result
	err error
}

func (m *Manager) fetchOne(ctx context.Context, item Item, opts Options) (string, error) {
	if item.URL == nil {
		return "", fmt.Errorf("nil URL: %w", pkgerrors.ErrDownloadFailed)
	}
	absPath := filepath.Join(opts.Dir, selectFilename(item))
	maxAge := opts.MaxAge
	if opts.WriteMode.Has(fsutil.WriteWithoutOverwrite) {
		// Existing files are never replaced, so any copy is current.
		maxAge = -1
	}
	if reuse, ok := tryReuseExisting(absPath, item.Checksum, maxAge); ok {
		logger.Debug("reusing stored payload", logger.Fields{"id": item.ID, "path": reuse})
		return reuse, nil
	}

	req := fetch.Request{URL: item.URL, Method: http.MethodGet, Header: make(http.Header)}
	if opts.FetchOptions.Has(fetch.OptionUseCache) {
		if st, err := os.Stat(absPath); err == nil && st.Size() > 0 {
			req.Header.Set("If-Modified-Since", st.ModTime().UTC().Format(http.TimeFormat))
		}
	}

	var progress fetch.ProgressFunc
	if opts.Progress != nil {
		progress = func(p fetch.Progress) { opts.Progress(item.ID, p) }
	}
	done := make(chan outcome, 1)
	h, err := m.Fetch(ctx, req, opts.FetchOptions, progress, func(res *fetch.Result, err error) {
		done <- outcome{res: res, err: err}
	})
	if err != nil {
		return "", err
	}

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		m.Cancel(h)
		return "", ctx.Err()
	}
	if out.err != nil {
		return "", fmt.Errorf("fetching %s: %w: %w", item.URL.Redacted(), pkgerrors.ErrDownloadFailed, out.err)
	}

	if out.res.NotModified {
		now := time.Now()
		if err := os.Chtimes(absPath, now, now); err != nil {
			return "", pkgerrors.Wrap(err, "could not refresh stored payload")
		}
		return absPath, nil
	}

	if item.Checksum != "" {
		if !verifySHA256(bytes.NewReader(out.res.Data), item.Checksum) {
			return "", fmt.Errorf("checksum mismatch for %s: %w", item.URL.Redacted(), pkgerrors.ErrFileHashMismatch)
		}
	}

	if err := fsutil.WriteFile(absPath, out.res.Data, fsutil.FileModeSecure, opts.WriteMode); err != nil {
		return "", pkgerrors.Wrap(err, "could not store payload")
	}
	logger.Debug("stored payload", logger.Fields{"id": item.ID, "path": absPath, "bytes": len(out.res.Data)})
	return absPath, nil
}

func selectFilename(item Item) string {
	if item.Filename != "" {
		return item.Filename
	}
	var name string
	if item.Checksum != "" {
		name = normalizeHex(item.Checksum)
	} else {
		h := sha256.Sum256([]byte(item.URL.String()))
		name = hex.EncodeToString(h[:])
	}
	if ext := filepath.Ext(item.URL.Path); ext != "" && len(ext) <= 6 {
		name += ext
	}
	return name
}

// tryReuseExisting reports whether the file at absPath may be used instead of
// fetching. A zero maxAge disables reuse, a negative one ignores age.
func tryReuseExisting(absPath, checksum string, maxAge time.Duration) (string, bool) {
	if maxAge == 0 {
		return "", false
	}
	if !fsutil.FreshFile(absPath, max(maxAge, 0), time.Now()) {
		return "", false
	}
	if checksum == "" {
		return absPath, true
	}
	f, err := os.Open(absPath)
	if err != nil {
		return "", false
	}
	defer func() { _ = f.Close() }()
	if verifySHA256(f, checksum) {
		return absPath, true
	}
	return "", false
}

func verifySHA256(r io.Reader, wantHex string) bool {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return false
	}
	return hex.EncodeToString(h.Sum(nil)) == normalizeHex(wantHex)
}

func normalizeHex(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
