// Package diskspace checks free space on the filesystem holding a local
// download folder.
package diskspace

import (
	"errors"
	"fmt"
)

// SafetyMargin is applied to the requested size before comparing it with
// the free space.
const SafetyMargin = 1.05

// InsufficientSpaceError indicates that there is not enough disk space available.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	requiredMB := float64(e.RequiredBytes) / (1024 * 1024)
	availableMB := float64(e.AvailableBytes) / (1024 * 1024)
	return fmt.Sprintf("insufficient disk space in %s: need %.2f MB, have %.2f MB available",
		e.Path, requiredMB, availableMB)
}

// Check reports an *InsufficientSpaceError when the filesystem holding dir
// cannot take size bytes plus the safety margin. When free space cannot be
// determined (network or virtual filesystems) the check passes and the
// copy is left to fail on its own.
func Check(dir string, size int64) error {
	available, ok := Available(dir)
	if !ok {
		return nil
	}
	return compare(dir, size, available)
}

func compare(dir string, size, available int64) error {
	required := int64(float64(size) * SafetyMargin)
	if available < required {
		return &InsufficientSpaceError{
			Path:           dir,
			RequiredBytes:  required,
			AvailableBytes: available,
		}
	}
	return nil
}

// Available returns the bytes available to the current user on the
// filesystem holding dir. ok is false when it cannot be determined.
func Available(dir string) (bytes int64, ok bool) {
	return available(dir)
}

// IsInsufficientSpaceError reports whether err is or wraps an InsufficientSpaceError.
func IsInsufficientSpaceError(err error) bool {
	var spaceErr *InsufficientSpaceError
	return errors.As(err, &spaceErr)
}
