// Package validation checks names that arrive from users or remote stores
// before they are joined onto local paths.
package validation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsafeName is wrapped by every rejection from this package.
var ErrUnsafeName = errors.New("unsafe name")

// ValidateFilename accepts a bare file name: not empty, no path separators
// of either platform, not "." or "..", no NUL bytes. Names such as
// "take..2.wav" and ".notes" are fine.
func ValidateFilename(filename string) error {
	switch {
	case filename == "":
		return fmt.Errorf("%w: file name is empty", ErrUnsafeName)
	case strings.ContainsRune(filename, 0):
		return fmt.Errorf("%w: file name contains a NUL byte: %q", ErrUnsafeName, filename)
	case strings.ContainsAny(filename, `/\`):
		return fmt.Errorf("%w: file name contains a path separator: %s", ErrUnsafeName, filename)
	case filename == "." || filename == "..":
		return fmt.Errorf("%w: file name cannot be %q", ErrUnsafeName, filename)
	}
	return nil
}
