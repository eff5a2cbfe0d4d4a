// Package errkind defines the stable, user-facing error taxonomy for session
// and transfer operations, and the single function that maps adapter errors
// onto it. Callers branch on Kind only, never on adapter-native error types.
package errkind

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	// None is the zero value: no error.
	None Kind = iota
	// IncompleteProfile means credentials are missing. It is a state requiring
	// input, not a failure of the remote service.
	IncompleteProfile
	// MalformedAddress means the server URL cannot be parsed or resolved.
	MalformedAddress
	// RemoteUnavailable means session open or the existence check failed.
	RemoteUnavailable
	// AlreadyExists means an upload target collides with a remote entry.
	AlreadyExists
	// TargetNotWritable means the local folder is absent or not a directory.
	TargetNotWritable
	// TransferAlreadyInProgress rejects a duplicate (direction, path) request.
	TransferAlreadyInProgress
	// IOFailure means a stream copy failed partway.
	IOFailure
)

var kindNames = map[Kind]string{
	None:                      "none",
	IncompleteProfile:         "incomplete_profile",
	MalformedAddress:          "malformed_address",
	RemoteUnavailable:         "remote_unavailable",
	AlreadyExists:             "already_exists",
	TargetNotWritable:         "target_not_writable",
	TransferAlreadyInProgress: "transfer_already_in_progress",
	IOFailure:                 "io_failure",
}

// String returns the snake_case name used in logs, metrics labels and history rows.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String. Unknown names map to None.
func ParseKind(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return None
}

// Sentinel errors raised by adapters. They are categorized, never shown raw.
var (
	// ErrMalformedAddress is wrapped by adapters when a server URL is unusable.
	ErrMalformedAddress = errors.New("malformed address")
	// ErrProtocol is wrapped by adapters for protocol-level failures.
	ErrProtocol = errors.New("protocol error")
	// ErrNotFound is returned when the share root or a path does not exist.
	ErrNotFound = errors.New("not found")
)

// Error is a categorized failure.
type Error struct {
	Kind Kind
	Op   string // "list", "download", "upload", "load_profile", ...
	Path string // remote path or local ref, may be empty
	Err  error  // underlying cause, may be nil
}

// New creates a categorized error with an explicit kind.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns the text a presentation layer shows to the user.
func (e *Error) Message() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	switch e.Kind {
	case IncompleteProfile:
		return "server profile is incomplete"
	case AlreadyExists:
		return "a file with this name already exists on the server"
	case TargetNotWritable:
		return "download folder is missing or not a directory"
	case TransferAlreadyInProgress:
		return "a transfer for this file is already running"
	default:
		return e.Kind.String()
	}
}

// Categorize maps any error onto a Kind. fallback is used when nothing more
// specific applies: listing operations pass RemoteUnavailable, stream copies
// pass IOFailure.
func Categorize(err error, fallback Kind) Kind {
	if err == nil {
		return None
	}

	var catErr *Error
	if errors.As(err, &catErr) {
		return catErr.Kind
	}

	if errors.Is(err, ErrMalformedAddress) {
		return MalformedAddress
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return MalformedAddress
	}
	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return MalformedAddress
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return MalformedAddress
	}

	if errors.Is(err, fs.ErrExist) {
		return AlreadyExists
	}

	// A copy that dies halfway is an IOFailure whatever broke underneath.
	if fallback == IOFailure {
		return IOFailure
	}

	if errors.Is(err, ErrProtocol) || errors.Is(err, ErrNotFound) {
		return RemoteUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) || IsNetworkError(err) {
		return RemoteUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return RemoteUnavailable
	}

	return fallback
}

// Wrap categorizes err and returns it as an *Error. It returns nil for a nil err
// and preserves an existing *Error unchanged.
func Wrap(err error, fallback Kind, op, path string) *Error {
	if err == nil {
		return nil
	}
	var catErr *Error
	if errors.As(err, &catErr) {
		return catErr
	}
	return New(Categorize(err, fallback), op, path, err)
}

// KindOf returns the Kind of err, or None when err is not categorized.
func KindOf(err error) Kind {
	var catErr *Error
	if errors.As(err, &catErr) {
		return catErr.Kind
	}
	return None
}

// IsNetworkError checks the error text for transport failure indicators.
// Adapters sometimes flatten net errors into strings; this catches those.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	networkIndicators := []string{
		"connection",
		"timeout",
		"network",
		"no route to host",
		"broken pipe",
		"logon failure",
		"access denied",
	}

	for _, indicator := range networkIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}
