// Package artifacts scans build output directories for binary artifacts.
package artifacts

import (
	"io/fs"
	"path/filepath"
)

// patterns covers shared library, static library, and executable naming
// conventions across Linux, Windows, and macOS.
var patterns = []string{
	"*.so",
	"*.so.*",
	"*.dylib",
	"*.dll",
	"*.a",
	"*.lib",
	"*.exe",
	"*.out",
	"*.bin",
}

// Collect recursively scans dir and returns paths of recognized binary
// artifacts. The list is unordered beyond walk order, and a file matching
// more than one pattern appears once per match; callers rely on the raw
// occurrence count.
func Collect(dir string) []string {
	var found []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		for _, pattern := range patterns {
			if ok, _ := filepath.Match(pattern, base); ok {
				found = append(found, path)
			}
		}
		return nil
	})
	return found
}
