// Package localfs lists local directories the way the CLI presents them to
// an upload: hidden entries are skipped unless asked for.
package localfs

import (
	"path/filepath"
	"strings"
)

// IsHidden reports whether the base name of path is hidden.
func IsHidden(path string) bool {
	return IsHiddenName(filepath.Base(path))
}

// IsHiddenName reports whether a bare name is hidden (leading dot).
// "." and ".." are not hidden.
func IsHiddenName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}
