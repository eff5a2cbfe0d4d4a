// Package remote defines the Remote File Service capability consumed by the
// session controller and transfer coordinator. Adapters live in subpackages.
package remote

import (
	"context"
	"io"
	"time"
)

// Entry is one file reported by a listing.
type Entry struct {
	// Path is server-relative, slash-normalized, with no leading separator.
	Path     string
	IsHidden bool
	Size     int64
	ModTime  time.Time
}

// Service opens authenticated sessions against a share.
type Service interface {
	// OpenSession connects to serverURL and authenticates. Errors wrap
	// errkind.ErrMalformedAddress for unusable URLs.
	OpenSession(ctx context.Context, serverURL, username, password string) (Session, error)
}

// Session is an open handle scoped to the share (and optional directory)
// named by the server URL. Path "" is that root. A Session is not safe for
// concurrent use by multiple goroutines.
type Session interface {
	Exists(ctx context.Context, path string) (bool, error)
	ListChildren(ctx context.Context, path string) ([]Entry, error)
	OpenReader(ctx context.Context, path string) (io.ReadCloser, error)
	// OpenWriter creates path; it fails with an error wrapping fs.ErrExist
	// when the path is already taken.
	OpenWriter(ctx context.Context, path string) (io.WriteCloser, error)
	Close() error
}
