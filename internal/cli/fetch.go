package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/glorpus-work/fanfetch/internal/logger"
	"github.com/glorpus-work/fanfetch/pkg/config"
	"github.com/glorpus-work/fanfetch/pkg/download"
	"github.com/glorpus-work/fanfetch/pkg/errors"
	"github.com/glorpus-work/fanfetch/pkg/fetch"
)

// progressInterval throttles progress lines per URL.
const progressInterval = 250 * time.Millisecond

// progressOutput overrides where progress lines go. Nil means os.Stderr.
var progressOutput io.Writer

func progressOut() io.Writer {
	if progressOutput != nil {
		return progressOutput
	}
	return os.Stderr
}

type fetchFlags struct {
	outputDir     string
	subscribers   int
	cancelAfter   string
	decompress    bool
	decompressSet bool
	progressive   bool
}

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	flags := fetchFlags{subscribers: 1}

	cmd := &cobra.Command{
		Use:   "fetch URL...",
		Short: "Fetch URLs through shared operations",
		Long: `Fetch one or more URLs. Every URL is transferred once no matter how many
subscribers observe it. Subscribers after the first leave once --cancel-after
bytes have arrived; with a single subscriber that cancels the transfer.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.decompressSet = cmd.Flags().Changed("decompress")
			return runFetch(cmd.Context(), args, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.outputDir, "output-dir", "o", "", "store payloads in this directory")
	cmd.Flags().IntVar(&flags.subscribers, "subscribers", flags.subscribers, "number of subscribers per URL")
	cmd.Flags().StringVar(&flags.cancelAfter, "cancel-after", "", "cancel subscriptions after this many bytes (e.g. 64KiB)")
	cmd.Flags().BoolVar(&flags.decompress, "decompress", false, "decode image payloads (default from cache.decompress_images)")
	cmd.Flags().BoolVar(&flags.progressive, "progressive", false, "attach partial data to progress events")

	return cmd
}

func runFetch(ctx context.Context, rawURLs []string, flags fetchFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if flags.subscribers < 1 {
		return fmt.Errorf("--subscribers must be at least 1, got %d", flags.subscribers)
	}
	var cancelAfter int64
	if flags.cancelAfter != "" {
		n, err := humanize.ParseBytes(flags.cancelAfter)
		if err != nil {
			return fmt.Errorf("invalid --cancel-after %q: %w", flags.cancelAfter, err)
		}
		cancelAfter = int64(n)
	}
	if flags.outputDir != "" {
		abs, err := filepath.Abs(flags.outputDir)
		if err != nil {
			return errors.Wrap(err, "invalid output directory")
		}
		flags.outputDir = abs
	}

	urls := make([]*url.URL, 0, len(rawURLs))
	for _, raw := range rawURLs {
		u, err := parseFetchURL(raw)
		if err != nil {
			return err
		}
		urls = append(urls, u)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	decompress := cfg.Cache.DecompressImages
	if flags.decompressSet {
		decompress = flags.decompress
	}
	rt, err := newSession(cfg, decompress)
	if err != nil {
		return err
	}
	defer rt.Close()

	opts := cfg.FetchOptions()
	if flags.progressive {
		opts |= fetch.OptionProgressive
	}

	job := &fetchJob{
		rt:          rt,
		cfg:         cfg,
		flags:       flags,
		opts:        opts,
		cancelAfter: cancelAfter,
	}

	var g errgroup.Group
	var failed atomic.Int32
	for _, u := range urls {
		g.Go(func() error {
			if err := job.fetchURL(ctx, u); err != nil {
				failed.Add(1)
				logger.Error("Fetch failed", logger.Fields{"url": u.Redacted(), "error": err.Error()})
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d fetches failed: %w", n, len(urls), errors.ErrDownloadFailed)
	}
	return nil
}

func parseFetchURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q in %s", u.Scheme, raw)
	}
	return u, nil
}

type fetchJob struct {
	rt          *session
	cfg         *config.Config
	flags       fetchFlags
	opts        fetch.Options
	cancelAfter int64
}

// subscriberState tracks one subscriber until it completes or leaves.
type subscriberState struct {
	index    int
	ready    chan struct{}
	handle   download.Handle
	finished sync.Once
	leave    sync.Once
	wg       *sync.WaitGroup
	outcome  string

	// cancel stops a file fetch, which has no handle.
	cancel context.CancelFunc
}

func (s *subscriberState) finish(outcome string) {
	s.finished.Do(func() {
		s.outcome = outcome
		s.wg.Done()
	})
}

func (j *fetchJob) fetchURL(ctx context.Context, u *url.URL) error {
	var wg sync.WaitGroup
	printer := newProgressPrinter(u.Redacted())
	subs := make([]*subscriberState, j.flags.subscribers)

	var primaryErr error
	var primaryMu sync.Mutex
	setPrimaryErr := func(err error) {
		primaryMu.Lock()
		primaryErr = err
		primaryMu.Unlock()
	}

	for i := range subs {
		s := &subscriberState{index: i, ready: make(chan struct{}), wg: &wg}
		subs[i] = s
		wg.Add(1)

		progress := j.progressFunc(s, printer)
		if i == 0 && j.flags.outputDir != "" {
			subCtx, cancel := context.WithCancel(ctx)
			s.cancel = cancel
			close(s.ready)
			go func() {
				defer cancel()
				j.fetchToFile(ctx, subCtx, u, s, progress, setPrimaryErr)
			}()
			continue
		}

		h, err := j.rt.manager.Fetch(ctx, fetch.Request{URL: u}, j.opts, progress, func(res *fetch.Result, err error) {
			if err != nil {
				if s.index == 0 {
					setPrimaryErr(err)
				}
				s.finish("failed")
				return
			}
			if s.index == 0 {
				j.report(u, res)
			}
			s.finish("completed")
		})
		if err != nil {
			wg.Done()
			return err
		}
		s.handle = h
		close(s.ready)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	counts := map[string]int{}
	for _, s := range subs {
		counts[s.outcome]++
	}
	if len(subs) > 1 {
		logger.Info("Subscribers finished", logger.Fields{
			"url":       u.Redacted(),
			"completed": counts["completed"],
			"cancelled": counts["cancelled"],
			"failed":    counts["failed"],
		})
	}

	primaryMu.Lock()
	defer primaryMu.Unlock()
	return primaryErr
}

// leaves reports whether subscriber s cancels itself after cancelAfter bytes.
func (j *fetchJob) leaves(s *subscriberState) bool {
	return j.cancelAfter > 0 && (s.index > 0 || j.flags.subscribers == 1)
}

func (j *fetchJob) progressFunc(s *subscriberState, printer *progressPrinter) fetch.ProgressFunc {
	return func(p fetch.Progress) {
		if s.index == 0 {
			printer.update(p)
		}
		if !j.leaves(s) || p.Received < j.cancelAfter {
			return
		}
		s.leave.Do(func() {
			<-s.ready
			aborted := false
			if s.cancel != nil {
				s.cancel()
			} else {
				aborted = j.rt.manager.Cancel(s.handle)
			}
			logger.Debug("subscriber left", logger.Fields{
				"subscriber": s.index,
				"received":   humanize.IBytes(uint64(p.Received)),
				"aborted":    aborted,
			})
			s.finish("cancelled")
		})
	}
}

func (j *fetchJob) fetchToFile(ctx, subCtx context.Context, u *url.URL, s *subscriberState, progress fetch.ProgressFunc, setErr func(error)) {
	start := time.Now()
	path, err := j.rt.manager.FetchFile(subCtx, download.Item{ID: u.String(), URL: u}, download.Options{
		Dir:          j.flags.outputDir,
		MaxAge:       j.cfg.ReuseMaxAge(),
		WriteMode:    j.cfg.WriteMode(),
		FetchOptions: j.opts,
		Progress:     func(_ string, p fetch.Progress) { progress(p) },
	})
	if err != nil {
		if subCtx.Err() != nil && ctx.Err() == nil {
			s.finish("cancelled")
			return
		}
		setErr(err)
		s.finish("failed")
		return
	}
	size := int64(0)
	if st, err := os.Stat(path); err == nil {
		size = st.Size()
	}
	_, _ = fmt.Fprintf(stdout(), "%s -> %s (%s, %s)\n", u.Redacted(), path,
		humanize.IBytes(uint64(size)), formatDuration(time.Since(start)))
	s.finish("completed")
}

func (j *fetchJob) report(u *url.URL, res *fetch.Result) {
	status := 0
	if res.Response != nil {
		status = res.Response.StatusCode
	}
	line := fmt.Sprintf("%s: %d, %s", u.Redacted(), status, humanize.IBytes(uint64(len(res.Data))))
	if res.NotModified {
		line += ", not modified"
	}
	if res.Image != nil {
		b := res.Image.Bounds()
		line += fmt.Sprintf(", image %dx%d", b.Dx(), b.Dy())
	}
	_, _ = fmt.Fprintln(stdout(), line)
}

type progressPrinter struct {
	mu   sync.Mutex
	name string
	last time.Time
}

func newProgressPrinter(name string) *progressPrinter {
	return &progressPrinter{name: name}
}

func (p *progressPrinter) update(pr fetch.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	complete := pr.Expected >= 0 && pr.Received == pr.Expected
	if !complete && now.Sub(p.last) < progressInterval {
		return
	}
	p.last = now
	_, _ = fmt.Fprintln(progressOut(), formatProgress(p.name, pr))
}

func formatProgress(name string, pr fetch.Progress) string {
	if pr.Expected < 0 {
		return fmt.Sprintf("%s  %s", name, humanize.IBytes(uint64(pr.Received)))
	}
	percent := 100.0
	if pr.Expected > 0 {
		percent = float64(pr.Received) / float64(pr.Expected) * 100
	}
	return fmt.Sprintf("%s  %s / %s (%.0f%%)", name,
		humanize.IBytes(uint64(pr.Received)), humanize.IBytes(uint64(pr.Expected)), percent)
}
