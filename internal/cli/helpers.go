package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/glorpus-work/fanfetch/internal/logger"
	"github.com/glorpus-work/fanfetch/pkg/auth"
	"github.com/glorpus-work/fanfetch/pkg/config"
	"github.com/glorpus-work/fanfetch/pkg/download"
	"github.com/glorpus-work/fanfetch/pkg/fetch"
	"github.com/glorpus-work/fanfetch/pkg/hook"
	fanhttp "github.com/glorpus-work/fanfetch/pkg/http"
	"github.com/glorpus-work/fanfetch/pkg/imaging"
)

// These variables will be set by the main package
var (
	ConfigPath *string
	Verbose    *bool
)

// output overrides where command results go. Nil means os.Stdout.
var output io.Writer

func stdout() io.Writer {
	if output != nil {
		return output
	}
	return os.Stdout
}

// loadConfig loads the configuration, applies CLI overrides and configures the
// logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.CheckRequires(Version); err != nil {
		return nil, err
	}

	if Verbose != nil && *Verbose {
		cfg.Settings.LogLevel = "debug"
	}
	logger.InitLogger(cfg.Settings.LogLevel, logger.OutputFormat(cfg.Settings.LogFormat))
	return cfg, nil
}

func getConfigPath() string {
	if ConfigPath != nil && *ConfigPath != "" {
		return *ConfigPath
	}

	defaultPath, err := config.GetDefaultConfigPath()
	if err != nil {
		// An empty path surfaces a descriptive error once the file is used.
		logger.Warn("Failed to get default config path, using empty path", logger.Fields{"error": err})
		return ""
	}
	return defaultPath
}

// session bundles the collaborators built from a configuration.
type session struct {
	manager *download.Manager
	bus     *fetch.Bus
	main    *fetch.SerialQueue
	hooks   *hook.Observer
}

// newSession wires config, credentials, transport, decoder and hooks into a
// download manager.
func newSession(cfg *config.Config, decompress bool) (*session, error) {
	transport := fanhttp.NewTransport(fanhttp.Settings{
		Timeout:      cfg.Network.HTTPTimeout,
		UserAgent:    cfg.Network.UserAgent,
		Credentials:  auth.NewStore(cfg.ToAuthMap()),
		MaxRedirects: cfg.Network.MaxRedirects,
	})

	hooks := hook.NewHookManager()
	if err := hook.LoadHooks(hooks, cfg.Hooks); err != nil {
		return nil, err
	}

	bus := fetch.NewBus()
	var observer *hook.Observer
	if hooks.Len() > 0 {
		observer = hook.NewObserver(hooks)
		bus.Register(observer)
	}

	main := fetch.NewSerialQueue()
	factory := &download.OperationFactory{
		Transport:        transport,
		Decoder:          &imaging.Decoder{AcceptNonImages: true},
		Main:             main,
		Observer:         bus,
		DecompressImages: decompress,
		CredentialWait:   cfg.Network.CredentialWait,
	}
	var retained int64
	if cfg.Cache.Memory {
		retained = cfg.Cache.MaxSize
	}
	manager := download.NewManager(factory, download.Config{
		MaxConcurrent:    cfg.Network.MaxConcurrent,
		Bus:              bus,
		RetainCompleted:  cfg.Cache.Memory,
		MaxRetainedBytes: retained,
	})
	return &session{manager: manager, bus: bus, main: main, hooks: observer}, nil
}

// Close stops the manager, drains pending completions and waits for queued
// hooks.
func (r *session) Close() {
	_ = r.manager.Close()
	r.main.Flush()
	r.main.Close()
	if r.hooks != nil {
		r.hooks.Close()
	}
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
