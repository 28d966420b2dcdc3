package fsutil

import (
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Usage summarizes the regular files below a directory.
type Usage struct {
	Files int
	Bytes int64
}

type fileEntry struct {
	path    string
	size    int64
	modTime time.Time
}

func listFiles(dir string) ([]fileEntry, error) {
	var files []fileEntry
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, fileEntry{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	return files, err
}

// DirUsage returns the number and total size of regular files below dir. A
// missing directory is empty.
func DirUsage(dir string) (Usage, error) {
	files, err := listFiles(dir)
	if err != nil {
		return Usage{}, err
	}
	var u Usage
	for _, f := range files {
		u.Files++
		u.Bytes += f.size
	}
	return u, nil
}

// Prune removes files below dir that are older than maxAge, then the oldest
// remaining files until the total size fits maxSize. Zero disables either
// limit. It returns what was removed.
func Prune(dir string, maxAge time.Duration, maxSize int64, now time.Time) (Usage, error) {
	files, err := listFiles(dir)
	if err != nil {
		return Usage{}, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	var total int64
	for _, f := range files {
		total += f.size
	}

	var removed Usage
	for _, f := range files {
		expired := maxAge > 0 && now.Sub(f.modTime) >= maxAge
		oversize := maxSize > 0 && total > maxSize
		if !expired && !oversize {
			continue
		}
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed.Files++
		removed.Bytes += f.size
		total -= f.size
	}
	return removed, nil
}

// Clear removes every file below dir and returns what was removed.
func Clear(dir string) (Usage, error) {
	u, err := DirUsage(dir)
	if err != nil {
		return Usage{}, err
	}
	if err := os.RemoveAll(dir); err != nil {
		return Usage{}, err
	}
	return u, nil
}
