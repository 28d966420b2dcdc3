package hook

import (
	"github.com/glorpus-work/fanfetch/internal/logger"
	"github.com/glorpus-work/fanfetch/pkg/fetch"
)

// Observer runs hooks for the lifecycle events it observes. Hooks run one at a
// time, in event order, on the observer's own queue, so Observe never waits
// for a script. Hook failures are logged and never reach the operation.
type Observer struct {
	manager HookManager
	queue   *fetch.SerialQueue
}

var _ fetch.Observer = (*Observer)(nil)

// NewObserver adapts manager to fetch.Observer. Close releases its queue.
func NewObserver(manager HookManager) *Observer {
	return &Observer{manager: manager, queue: fetch.NewSerialQueue()}
}

// Observe implements fetch.Observer.
func (o *Observer) Observe(e fetch.Event) {
	hookType := HookType(e.Kind)
	if o.manager == nil || !o.manager.HasHook(hookType) {
		return
	}
	o.queue.Dispatch(func() { o.run(hookType, e) })
}

func (o *Observer) run(hookType HookType, e fetch.Event) {
	if err := o.manager.Execute(hookType, ContextFromEvent(e)); err != nil {
		logger.Warn("hook failed", logger.Fields{
			"hook":      string(hookType),
			"operation": e.OperationID,
			"error":     err.Error(),
		})
	}
}

// Flush waits for the hooks of every event observed so far.
func (o *Observer) Flush() {
	o.queue.Flush()
}

// Close runs the queued hooks and stops the queue. Hooks for events observed
// afterwards run on the observing goroutine.
func (o *Observer) Close() {
	o.queue.Close()
}
