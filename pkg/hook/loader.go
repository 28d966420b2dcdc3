package hook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HookFileExtension is the extension of hook scripts found in a directory.
const HookFileExtension = ".tengo"

// LoadHooks reads the script for every event in paths and registers it.
func LoadHooks(manager HookManager, paths map[string]string) error {
	for event, path := range paths {
		hookType, err := ParseHookType(event)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrHookLoad, err)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%w: reading %s: %w", ErrHookLoad, path, err)
		}
		if err := manager.AddHook(Hook{Type: hookType, Content: string(content)}); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrHookLoad, path, err)
		}
	}
	return nil
}

// LoadHooksFromDir registers every <event>.tengo script in dir. Files that name
// no lifecycle event are skipped. A missing directory is not an error.
func LoadHooksFromDir(manager HookManager, dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: failed to read hooks directory %s: %w", ErrHookLoad, dir, err)
	}

	paths := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != HookFileExtension {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), HookFileExtension)
		if _, err := ParseHookType(name); err != nil {
			continue
		}
		paths[name] = filepath.Join(dir, entry.Name())
	}
	return LoadHooks(manager, paths)
}

// HookTemplate generates a template for a hook script.
func HookTemplate(hookType HookType) string {
	const vars = `// Available variables:
// - operationID: string - id of the fetch operation
// - url: string - the requested URL
// - state: string - operation state when the event fired
// - event: string - name of the event
//
// Assign a non-empty string to err to report a failure.
`
	switch hookType {
	case OnStart:
		return "// Start hook\n// Runs when a transfer begins.\n" + vars
	case OnResponse:
		return "// Response hook\n// Runs when response headers arrive.\n" + vars
	case OnStop:
		return "// Stop hook\n// Runs when a running transfer is cancelled.\n" + vars
	case OnFinish:
		return "// Finish hook\n// Runs once the operation reaches a terminal state.\n" + vars
	default:
		return "// Unknown hook type\n"
	}
}
