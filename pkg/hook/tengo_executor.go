package hook

import (
	"context"
	"sync"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/parser"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/glorpus-work/fanfetch/pkg/errors"
)

// DefaultTimeout bounds a single script run.
const DefaultTimeout = 5 * time.Second

var scriptModules = []string{"fmt", "text", "times", "json", "enum"}

// TengoExecutor handles the execution of Tengo scripts.
type TengoExecutor struct {
	scripts map[HookType]string
	timeout time.Duration
	mutex   sync.RWMutex
}

// NewTengoExecutor creates a new Tengo script executor.
func NewTengoExecutor() *TengoExecutor {
	return &TengoExecutor{
		scripts: make(map[HookType]string),
		timeout: DefaultTimeout,
	}
}

// SetTimeout changes the per-run limit. Zero or less disables it.
func (e *TengoExecutor) SetTimeout(d time.Duration) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.timeout = d
}

// Check parses script without running it. References are resolved at run time
// since custom variables are only known then.
func (e *TengoExecutor) Check(script string) error {
	src := []byte(script)
	fileSet := parser.NewFileSet()
	file := fileSet.AddFile("hook", -1, len(src))
	if _, err := parser.NewParser(file, src, nil).ParseFile(); err != nil {
		return errors.Wrap(errors.ErrHookScript, err.Error())
	}
	return nil
}

// Execute runs the specified hook type with the given context.
func (e *TengoExecutor) Execute(hookType HookType, ctx HookContext) error {
	e.mutex.RLock()
	script, exists := e.scripts[hookType]
	timeout := e.timeout
	e.mutex.RUnlock()
	if !exists {
		return nil
	}

	s := newScript(script, ctx)
	for k, v := range ctx.Vars {
		if err := s.Add(k, v); err != nil {
			return errors.Wrapf(errors.ErrHookExecution, "%s: variable %s: %v", hookType, k, err)
		}
	}

	runCtx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}

	compiled, err := s.RunContext(runCtx)
	if err != nil {
		return errors.Wrapf(errors.ErrHookExecution, "%s: %v", hookType, err)
	}

	// Scripts report failure by assigning err.
	if errVar := compiled.Get("err"); errVar != nil {
		switch v := errVar.Value().(type) {
		case error:
			return errors.Wrap(errors.ErrHookScript, v.Error())
		case string:
			if v != "" {
				return errors.Wrap(errors.ErrHookScript, v)
			}
		}
	}

	return nil
}

func newScript(script string, ctx HookContext) *tengo.Script {
	s := tengo.NewScript([]byte(script))
	s.SetImports(stdlib.GetModuleMap(scriptModules...))
	_ = s.Add("operationID", ctx.OperationID)
	_ = s.Add("url", ctx.URL)
	_ = s.Add("state", ctx.State)
	_ = s.Add("event", ctx.Event)
	return s
}

// AddScript adds or updates a script for the specified hook type.
func (e *TengoExecutor) AddScript(hookType HookType, script string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.scripts[hookType] = script
}

// RemoveScript removes the script for the specified hook type.
func (e *TengoExecutor) RemoveScript(hookType HookType) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	delete(e.scripts, hookType)
}

// HasScript checks if a script exists for the specified hook type.
func (e *TengoExecutor) HasScript(hookType HookType) bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	_, exists := e.scripts[hookType]
	return exists
}
