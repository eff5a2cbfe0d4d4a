// Package localfs implements the Local Storage capability over an afero
// filesystem: folder checks, child enumeration, file creation and streams.
package localfs

import (
	"strings"
)

// IsHiddenName returns true if the given filename (not path) represents a hidden file.
// Special entries "." and ".." are not considered hidden.
func IsHiddenName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}
