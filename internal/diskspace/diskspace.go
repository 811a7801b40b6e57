// Package diskspace checks free space on the filesystem a download will land on.
package diskspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// InsufficientSpaceError indicates that there is not enough disk space available.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	requiredMB := float64(e.RequiredBytes) / (1024 * 1024)
	availableMB := float64(e.AvailableBytes) / (1024 * 1024)
	return fmt.Sprintf("insufficient disk space for %s: need %.2f MB, have %.2f MB available",
		e.Path, requiredMB, availableMB)
}

// CheckAvailableSpace checks if there is sufficient disk space available for a file operation.
// It checks the disk/filesystem where the target path will be created.
//
// safetyMargin multiplies requiredBytes (1.05 asks for 5% headroom).
// When free space cannot be determined (network or virtual filesystems) the
// check passes and the write is left to fail on its own.
func CheckAvailableSpace(targetPath string, requiredBytes int64, safetyMargin float64) error {
	available, ok := availableBytes(filepath.Dir(targetPath))
	if !ok {
		return nil
	}

	requiredWithMargin := int64(float64(requiredBytes) * safetyMargin)
	if available < requiredWithMargin {
		return &InsufficientSpaceError{
			Path:           targetPath,
			RequiredBytes:  requiredWithMargin,
			AvailableBytes: available,
		}
	}
	return nil
}

// GetAvailableSpace returns the available space in bytes for the filesystem
// containing the given path. Returns 0 if unable to determine.
func GetAvailableSpace(path string) int64 {
	n, _ := availableBytes(filepath.Dir(path))
	return n
}

// IsInsufficientSpaceError checks if an error is an InsufficientSpaceError
func IsInsufficientSpaceError(err error) bool {
	var ise *InsufficientSpaceError
	return errors.As(err, &ise)
}

// IsDiskFullError reports whether a write failed because the disk filled up.
func IsDiskFullError(err error) bool {
	if err == nil {
		return false
	}
	if IsInsufficientSpaceError(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"no space left on device", // Linux/Unix
		"disk full",
		"out of disk space",       // Windows
		"insufficient disk space", // Windows
		"not enough space",
		"enospc",
		"disk quota exceeded",
	} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}
