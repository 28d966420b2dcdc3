package hook

import (
	"maps"
	"time"

	"github.com/glorpus-work/fanfetch/pkg/errors"
)

// DefaultHookManager keeps at most one script per lifecycle event and runs it
// with the Tengo executor.
type DefaultHookManager struct {
	executor *TengoExecutor
}

var _ HookManager = (*DefaultHookManager)(nil)

// NewHookManager creates a manager whose scripts run for at most DefaultTimeout.
func NewHookManager() *DefaultHookManager {
	return &DefaultHookManager{executor: NewTengoExecutor()}
}

// SetTimeout bounds every script run. Zero or less disables the limit.
func (m *DefaultHookManager) SetTimeout(d time.Duration) {
	m.executor.SetTimeout(d)
}

// Execute runs the hook for hookType, if any. Vars are copied so scripts never
// see a map the caller keeps mutating.
func (m *DefaultHookManager) Execute(hookType HookType, ctx HookContext) error {
	if !m.executor.HasScript(hookType) {
		return nil
	}
	ctx.Vars = maps.Clone(ctx.Vars)
	return m.executor.Execute(hookType, ctx)
}

// AddHook parses hook.Content and registers it, replacing any previous hook
// for the same event.
func (m *DefaultHookManager) AddHook(hook Hook) error {
	if _, err := ParseHookType(string(hook.Type)); err != nil {
		return err
	}
	if err := m.executor.Check(hook.Content); err != nil {
		return errors.Wrapf(err, "hook %s", hook.Type)
	}
	m.executor.AddScript(hook.Type, hook.Content)
	return nil
}

// RemoveHook removes the hook for hookType. Removing a missing hook is a no-op.
func (m *DefaultHookManager) RemoveHook(hookType HookType) error {
	if hookType == "" {
		return ErrHookTypeEmpty
	}
	m.executor.RemoveScript(hookType)
	return nil
}

// HasHook reports whether a hook is registered for hookType.
func (m *DefaultHookManager) HasHook(hookType HookType) bool {
	return m.executor.HasScript(hookType)
}

// Types returns the registered hook types in lifecycle order.
func (m *DefaultHookManager) Types() []HookType {
	var types []HookType
	for _, t := range HookTypes {
		if m.executor.HasScript(t) {
			types = append(types, t)
		}
	}
	return types
}

// Len returns the number of registered hooks.
func (m *DefaultHookManager) Len() int {
	return len(m.Types())
}
