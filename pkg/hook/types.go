// Package hook runs user scripts on fetch lifecycle events.
package hook

import "github.com/glorpus-work/fanfetch/pkg/fetch"

// HookType names the lifecycle event a hook runs on.
type HookType string

// Supported hook types, one per lifecycle event.
const (
	OnStart    HookType = HookType(fetch.EventStart)
	OnResponse HookType = HookType(fetch.EventResponse)
	OnStop     HookType = HookType(fetch.EventStop)
	OnFinish   HookType = HookType(fetch.EventFinish)
)

// HookTypes lists every supported hook type in lifecycle order.
var HookTypes = []HookType{OnStart, OnResponse, OnStop, OnFinish}

// ParseHookType validates name as a hook type.
func ParseHookType(name string) (HookType, error) {
	if name == "" {
		return "", ErrHookTypeEmpty
	}
	for _, t := range HookTypes {
		if string(t) == name {
			return t, nil
		}
	}
	return "", ErrUnsupportedHookEvent(name)
}

// Hook represents a hook script with its type and content.
type Hook struct {
	Type    HookType
	Content string
}

// HookContext contains information passed to hooks.
type HookContext struct {
	OperationID string
	URL         string
	State       string
	Event       string
	Vars        map[string]interface{}
}

// ContextFromEvent builds the hook context for a lifecycle event.
func ContextFromEvent(e fetch.Event) HookContext {
	return HookContext{
		OperationID: e.OperationID,
		URL:         e.URL,
		State:       e.State.String(),
		Event:       string(e.Kind),
	}
}

// HookManager defines the interface for managing hooks.
type HookManager interface {
	// Execute runs the hook registered for hookType, if any.
	Execute(hookType HookType, ctx HookContext) error

	AddHook(hook Hook) error
	RemoveHook(hookType HookType) error
	HasHook(hookType HookType) bool
}
