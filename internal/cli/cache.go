package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/fanfetch/internal/logger"
	"github.com/glorpus-work/fanfetch/pkg/config"
	"github.com/glorpus-work/fanfetch/pkg/fsutil"
)

// NewCacheCmd creates the cache command with subcommands.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage stored payloads",
		Long:  "Clean, show information about, and locate the payload cache",
	}

	cmd.AddCommand(
		newCacheCleanCmd(),
		newCacheInfoCmd(),
		newCacheDirCmd(),
	)

	return cmd
}

func newCacheCleanCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Clean payload cache",
		Long:  "Remove payloads older than cache.max_age and trim the cache to cache.max_size",
		RunE: func(*cobra.Command, []string) error {
			return runCacheClean(all)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every stored payload")

	return cmd
}

func newCacheInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show cache information",
		Long:  "Display the size of the payload cache",
		RunE: func(*cobra.Command, []string) error {
			return runCacheInfo()
		},
	}
}

func newCacheDirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dir",
		Short: "Show cache directory path",
		Long:  "Display the path to the payload cache directory",
		RunE: func(*cobra.Command, []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stdout(), getCacheDir(cfg))
			return nil
		},
	}
}

func getCacheDir(cfg *config.Config) string {
	if cfg.Cache.Dir != "" {
		return cfg.Cache.Dir
	}
	return fsutil.GetPayloadCacheDir()
}

func runCacheClean(all bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := getCacheDir(cfg)

	var removed fsutil.Usage
	if all {
		removed, err = fsutil.Clear(dir)
	} else {
		removed, err = fsutil.Prune(dir, cfg.Cache.MaxAge, cfg.Cache.MaxSize, time.Now())
	}
	if err != nil {
		return fmt.Errorf("failed to clean cache %s: %w", dir, err)
	}

	logger.Success("Cache cleaning completed", logger.Fields{
		"files":       removed.Files,
		"total_freed": humanize.IBytes(uint64(removed.Bytes)),
	})
	return nil
}

func runCacheInfo() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := getCacheDir(cfg)

	usage, err := fsutil.DirUsage(dir)
	if err != nil {
		return fmt.Errorf("failed to read cache %s: %w", dir, err)
	}

	limit := "unlimited"
	if cfg.Cache.MaxSize > 0 {
		limit = humanize.IBytes(uint64(cfg.Cache.MaxSize))
	}
	_, _ = fmt.Fprintf(stdout(), "Directory: %s\n", dir)
	_, _ = fmt.Fprintf(stdout(), "Payloads:  %d\n", usage.Files)
	_, _ = fmt.Fprintf(stdout(), "Size:      %s (limit %s)\n", humanize.IBytes(uint64(usage.Bytes)), limit)
	_, _ = fmt.Fprintf(stdout(), "Max age:   %s\n", cfg.Cache.MaxAge)
	return nil
}
