package errors

import "fmt"

// Common error types.
var (
	// Config errors.
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")
	ErrConfigEncode      = fmt.Errorf("failed to encode config")
	ErrConfigDirectory   = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate  = fmt.Errorf("failed to create config file")
	ErrConfigFileRename  = fmt.Errorf("failed to move config file into place")
	ErrUnknownConfigKey  = fmt.Errorf("unknown configuration key")
	ErrConfigValue       = fmt.Errorf("invalid configuration value")
	ErrVersionConstraint = fmt.Errorf("version constraint not satisfied")

	// Network errors.
	ErrHTTPTimeoutNegative  = fmt.Errorf("http timeout cannot be negative")
	ErrMaxConcurrentInvalid = fmt.Errorf("max concurrent fetches must be at least 1")
	ErrCredentialWait       = fmt.Errorf("credential wait cannot be negative")
	ErrTooManyRedirects     = fmt.Errorf("too many redirects")
	ErrUnsupportedEncoding  = fmt.Errorf("unsupported content encoding")
	ErrChallengeCancelled   = fmt.Errorf("authentication challenge cancelled")

	// Cache errors.
	ErrCacheMaxAgeNegative  = fmt.Errorf("cache max age cannot be negative")
	ErrCacheMaxSizeNegative = fmt.Errorf("cache max size cannot be negative")
	ErrCacheDiskRead        = fmt.Errorf("unknown disk read option")
	ErrCacheDiskWrite       = fmt.Errorf("unknown disk write option")

	// Download errors.
	ErrDownloadFailed    = fmt.Errorf("download failed")
	ErrFileHashMismatch  = fmt.Errorf("file hash mismatch")
	ErrInvalidPath       = fmt.Errorf("invalid path")
	ErrFileExists        = fmt.Errorf("file already exists")
	ErrUnknownHandle     = fmt.Errorf("unknown fetch handle")
	ErrManagerClosed     = fmt.Errorf("download manager is closed")
	ErrEmptyDownloadList = fmt.Errorf("nothing to download")

	// Hook errors.
	ErrHookTypeEmpty = fmt.Errorf("hook type cannot be empty")
	ErrHookExecution = fmt.Errorf("error executing hook")
	ErrHookScript    = fmt.Errorf("hook script error")
	ErrHookLoad      = fmt.Errorf("failed to load hook")
)

// ErrInvalidLogLevelWithDetails reports an unknown log level.
func ErrInvalidLogLevelWithDetails(level string) error {
	return fmt.Errorf("invalid log level %q: %w", level, ErrConfigValidation)
}

// ErrInvalidOutputFormatWithDetails reports an unknown log format.
func ErrInvalidOutputFormatWithDetails(format string) error {
	return fmt.Errorf("invalid output format %q: %w", format, ErrConfigValidation)
}

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
