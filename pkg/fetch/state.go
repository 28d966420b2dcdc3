package fetch

import "strings"

// State is the lifecycle state of an Operation.
type State int

// Operation states.
const (
	StatePending State = iota
	StateRunning
	StateCancelled
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StatePending:   "pending",
	StateRunning:   "running",
	StateCancelled: "cancelled",
	StateCompleted: "completed",
	StateFailed:    "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether no further transitions can happen from s.
func (s State) IsTerminal() bool {
	return s == StateCancelled || s == StateCompleted || s == StateFailed
}

// Options is a bit-set of optional operation behaviors. It is fixed at creation.
type Options uint

// Operation options.
const (
	// OptionProgressive attaches the bytes received so far to every progress event.
	OptionProgressive Options = 1 << iota
	// OptionUseCache keeps caller supplied conditional headers so the server can
	// revalidate. Without it the request asks for a fresh copy.
	OptionUseCache
	// OptionContinueInBackground keeps the transfer running after the scheduling
	// context is cancelled.
	OptionContinueInBackground
	// OptionHandleCookies stores and sends cookies for the transfer.
	OptionHandleCookies
	// OptionAllowInvalidCertificates accepts server certificates that fail
	// verification. Only meant for test and debug endpoints.
	OptionAllowInvalidCertificates
	// OptionPreserveAuthOnRedirect keeps credentials and cookies on redirected requests.
	OptionPreserveAuthOnRedirect
)

var optionNames = []struct {
	opt  Options
	name string
}{
	{OptionProgressive, "progressive"},
	{OptionUseCache, "use-cache"},
	{OptionContinueInBackground, "continue-in-background"},
	{OptionHandleCookies, "handle-cookies"},
	{OptionAllowInvalidCertificates, "allow-invalid-certificates"},
	{OptionPreserveAuthOnRedirect, "preserve-auth-on-redirect"},
}

// Has reports whether all bits of opt are set.
func (o Options) Has(opt Options) bool {
	return o&opt == opt
}

func (o Options) String() string {
	var names []string
	for _, on := range optionNames {
		if o.Has(on.opt) {
			names = append(names, on.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
