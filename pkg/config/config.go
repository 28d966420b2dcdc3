// Package config loads, validates and saves the fanfetch configuration file.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/fanfetch/pkg/errors"
	"github.com/glorpus-work/fanfetch/pkg/fetch"
	"github.com/glorpus-work/fanfetch/pkg/fsutil"
)

// Config represents the application configuration.
type Config struct {
	// Requires is an optional version constraint the running binary must meet.
	Requires string `yaml:"requires,omitempty"`

	Settings Settings      `yaml:"settings"`
	Network  Network       `yaml:"network"`
	Cache    Cache         `yaml:"cache"`
	Hosts    []*HostConfig `yaml:"hosts,omitempty"`
	// Hooks maps a lifecycle event (start, response, stop, finish) to a tengo script.
	Hooks map[string]string `yaml:"hooks,omitempty"`
}

// Settings holds output related settings.
type Settings struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json
}

// Network configures the transport and the fetch options derived from it.
type Network struct {
	HTTPTimeout              time.Duration `yaml:"http_timeout"`
	UserAgent                string        `yaml:"user_agent"`
	MaxConcurrent            int           `yaml:"max_concurrent"`
	MaxRedirects             int           `yaml:"max_redirects"`
	CredentialWait           time.Duration `yaml:"credential_wait"`
	AllowInvalidCertificates bool          `yaml:"allow_invalid_certificates"`
	PreserveAuthOnRedirect   bool          `yaml:"preserve_auth_on_redirect"`
	HandleCookies            bool          `yaml:"handle_cookies"`
	UseCache                 bool          `yaml:"use_cache"`
	ContinueInBackground     bool          `yaml:"continue_in_background"`
}

// Cache configures post-processing and where fetched payloads are kept.
type Cache struct {
	Dir              string        `yaml:"dir,omitempty"`
	DecompressImages bool          `yaml:"decompress_images"`
	Memory           bool          `yaml:"memory"`
	DiskRead         []string      `yaml:"disk_read,omitempty"`
	DiskWrite        []string      `yaml:"disk_write,omitempty"`
	MaxAge           time.Duration `yaml:"max_age"`
	// MaxSize caps the bytes kept in memory. Zero is unlimited.
	MaxSize int64 `yaml:"max_size"`
}

// Disk read options.
const (
	DiskReadMappedIfSafe = "mapped_if_safe"
	DiskReadMappedAlways = "mapped_always"
	DiskReadUncached     = "uncached"
)

// Disk write options.
const (
	DiskWriteAtomic           = "atomic"
	DiskWriteWithoutOverwrite = "without_overwrite"
)

// Default configuration values.
const (
	DefaultHTTPTimeout   = 30 * time.Second
	DefaultMaxConcurrent = 6
	DefaultMaxRedirects  = 10
	DefaultCacheMaxAge   = 7 * 24 * time.Hour
	DefaultUserAgent     = "fanfetch/1.0"

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
	validDiskRead   = []string{DiskReadMappedIfSafe, DiskReadMappedAlways, DiskReadUncached}
	validDiskWrite  = []string{DiskWriteAtomic, DiskWriteWithoutOverwrite}
	validHookEvents = []string{
		string(fetch.EventStart),
		string(fetch.EventResponse),
		string(fetch.EventStop),
		string(fetch.EventFinish),
	}
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Network: Network{
			HTTPTimeout:   DefaultHTTPTimeout,
			UserAgent:     DefaultUserAgent,
			MaxConcurrent: DefaultMaxConcurrent,
			MaxRedirects:  DefaultMaxRedirects,
			UseCache:      true,
		},
		Cache: Cache{
			Dir:              fsutil.GetPayloadCacheDir(),
			DecompressImages: true,
			Memory:           true,
			DiskRead:         []string{DiskReadMappedIfSafe},
			DiskWrite:        []string{DiskWriteAtomic},
			MaxAge:           DefaultCacheMaxAge,
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig writes the configuration atomically.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	data, err := c.ToYAML()
	if err != nil {
		return err
	}
	if err := fsutil.WriteFile(absPath, data, fsutil.FileModeSecure, fsutil.WriteAtomic); err != nil {
		return errors.Wrap(errors.ErrConfigFileCreate, err.Error())
	}
	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	var sb strings.Builder
	encoder := yaml.NewEncoder(&sb)
	encoder.SetIndent(YAMLIndent)
	if err := encoder.Encode(c); err != nil {
		return nil, errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	if err := encoder.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	return []byte(sb.String()), nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	if !slices.Contains(validLogLevels, strings.ToLower(c.Settings.LogLevel)) {
		return errors.ErrInvalidLogLevelWithDetails(c.Settings.LogLevel)
	}
	if !slices.Contains(validLogFormats, c.Settings.LogFormat) {
		return errors.ErrInvalidOutputFormatWithDetails(c.Settings.LogFormat)
	}
	if err := validateNetwork(c.Network); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConfigValidation, err)
	}
	if err := validateCache(c.Cache); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConfigValidation, err)
	}
	if err := validateHosts(c.Hosts); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConfigValidation, err)
	}
	for event := range c.Hooks {
		if !slices.Contains(validHookEvents, event) {
			return errors.Wrapf(errors.ErrConfigValidation, "unknown hook event %q", event)
		}
	}
	if c.Requires != "" {
		if _, err := version.NewConstraint(c.Requires); err != nil {
			return errors.Wrapf(errors.ErrConfigValidation, "invalid requires constraint %q: %v", c.Requires, err)
		}
	}
	return nil
}

func validateNetwork(n Network) error {
	if n.HTTPTimeout < 0 {
		return errors.ErrHTTPTimeoutNegative
	}
	if n.MaxConcurrent < 1 {
		return errors.ErrMaxConcurrentInvalid
	}
	if n.CredentialWait < 0 {
		return errors.ErrCredentialWait
	}
	if n.MaxRedirects < 0 {
		return errors.Wrap(errors.ErrConfigValue, "max_redirects cannot be negative")
	}
	return nil
}

func validateCache(c Cache) error {
	if c.MaxAge < 0 {
		return errors.ErrCacheMaxAgeNegative
	}
	if c.MaxSize < 0 {
		return errors.ErrCacheMaxSizeNegative
	}
	for _, v := range c.DiskRead {
		if !slices.Contains(validDiskRead, v) {
			return errors.Wrapf(errors.ErrCacheDiskRead, "%q", v)
		}
	}
	for _, v := range c.DiskWrite {
		if !slices.Contains(validDiskWrite, v) {
			return errors.Wrapf(errors.ErrCacheDiskWrite, "%q", v)
		}
	}
	return nil
}

// applyDefaults fills in values a partial file left empty.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
	if c.Settings.LogFormat == "" {
		c.Settings.LogFormat = defaults.Settings.LogFormat
	}
	if c.Network.UserAgent == "" {
		c.Network.UserAgent = defaults.Network.UserAgent
	}
	if c.Network.MaxConcurrent == 0 {
		c.Network.MaxConcurrent = defaults.Network.MaxConcurrent
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = defaults.Cache.Dir
	}
}

// CheckRequires reports whether current satisfies the requires constraint.
func (c *Config) CheckRequires(current string) error {
	if c.Requires == "" {
		return nil
	}
	constraint, err := version.NewConstraint(c.Requires)
	if err != nil {
		return errors.Wrapf(errors.ErrConfigValidation, "invalid requires constraint %q", c.Requires)
	}
	v, err := version.NewVersion(current)
	if err != nil {
		return errors.Wrapf(err, "invalid version %q", current)
	}
	if !constraint.Check(v) {
		return errors.Wrapf(errors.ErrVersionConstraint, "version %s does not satisfy %s", current, c.Requires)
	}
	return nil
}

// FetchOptions derives the operation options from the network settings.
func (c *Config) FetchOptions() fetch.Options {
	var opts fetch.Options
	if c.Network.UseCache {
		opts |= fetch.OptionUseCache
	}
	if c.Network.HandleCookies {
		opts |= fetch.OptionHandleCookies
	}
	if c.Network.AllowInvalidCertificates {
		opts |= fetch.OptionAllowInvalidCertificates
	}
	if c.Network.PreserveAuthOnRedirect {
		opts |= fetch.OptionPreserveAuthOnRedirect
	}
	if c.Network.ContinueInBackground {
		opts |= fetch.OptionContinueInBackground
	}
	return opts
}

// WriteMode derives the disk write mode from the cache settings.
func (c *Config) WriteMode() fsutil.WriteMode {
	var mode fsutil.WriteMode
	for _, v := range c.Cache.DiskWrite {
		switch v {
		case DiskWriteAtomic:
			mode |= fsutil.WriteAtomic
		case DiskWriteWithoutOverwrite:
			mode |= fsutil.WriteWithoutOverwrite
		}
	}
	return mode
}

// ReuseMaxAge is how long stored payloads are reused. Uncached disk reads
// disable reuse.
func (c *Config) ReuseMaxAge() time.Duration {
	if slices.Contains(c.Cache.DiskRead, DiskReadUncached) {
		return 0
	}
	return c.Cache.MaxAge
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	dir := fsutil.GetConfigDir()
	if dir == "" {
		return "", errors.ErrConfigDirectory
	}
	return filepath.Join(dir, "config.yaml"), nil
}
