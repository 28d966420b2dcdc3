// Package fsutil provides the file system helpers used to store fetched payloads.
package fsutil

// File and directory permission constants.
const (
	FileModeDefault = 0o644 // -rw-r--r--
	FileModeSecure  = 0o640 // -rw-r-----: config files and payloads

	DirModeDefault = 0o755 // drwxr-xr-x
	DirModeSecure  = 0o750 // drwxr-x---
)

// WriteMode controls how WriteFile puts data on disk.
type WriteMode uint8

// Write modes, combinable.
const (
	// WriteAtomic writes to a temporary file first and renames it into place.
	WriteAtomic WriteMode = 1 << iota
	// WriteWithoutOverwrite fails with os.ErrExist if the target exists.
	WriteWithoutOverwrite
)

// Has reports whether all bits of flag are set.
func (m WriteMode) Has(flag WriteMode) bool { return m&flag == flag }
