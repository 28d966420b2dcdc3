package hook

import (
	"fmt"

	"github.com/glorpus-work/fanfetch/pkg/errors"
)

// Hook errors, shared with the errors package so callers can match either.
var (
	ErrHookTypeEmpty = errors.ErrHookTypeEmpty
	ErrHookExecution = errors.ErrHookExecution
	ErrHookScript    = errors.ErrHookScript
	ErrHookLoad      = errors.ErrHookLoad

	// ErrUnsupportedEvent is returned for a hook type that names no lifecycle event.
	ErrUnsupportedEvent = fmt.Errorf("unsupported hook event")
)

// ErrUnsupportedHookEvent wraps ErrUnsupportedEvent with the offending name.
func ErrUnsupportedHookEvent(event string) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedEvent, event)
}
