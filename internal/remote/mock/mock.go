// Package mock provides an in-memory remote.Service for tests.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rainforce/smbclient/internal/errkind"
	"github.com/rainforce/smbclient/internal/localfs"
	"github.com/rainforce/smbclient/internal/remote"
)

// Credentials records one OpenSession call.
type Credentials struct {
	ServerURL string
	Username  string
	Password  string
}

// Service implements remote.Service over an in-memory file map. Paths are
// share-relative; the server URL only has to parse.
type Service struct {
	mu     sync.Mutex
	files  map[string][]byte
	hidden map[string]bool

	// RootMissing makes Exists("") report false.
	RootMissing bool

	// Error simulation
	OpenError   error
	ExistsError error
	ListError   error
	// ReadError is returned once half of a file has been read.
	ReadError  error
	WriteError error

	// Hooks run at the start of the matching operation; a non-nil return
	// aborts it. Tests use them to block or to observe ordering.
	BeforeOpen  func(ctx context.Context) error
	BeforeList  func(ctx context.Context) error
	BeforeRead  func(ctx context.Context, path string) error
	BeforeWrite func(ctx context.Context, path string) error

	// Call tracking
	sessionsOpened int
	sessionsClosed int
	readersOpened  int
	writersOpened  int
	calls          []Credentials
}

// NewService creates a mock seeded with files (path -> content).
func NewService(files map[string]string) *Service {
	s := &Service{
		files:  make(map[string][]byte, len(files)),
		hidden: make(map[string]bool),
	}
	for p, content := range files {
		s.files[remote.NormalizePath(p)] = []byte(content)
	}
	return s
}

// SetFile adds or replaces a file.
func (s *Service) SetFile(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[remote.NormalizePath(path)] = []byte(content)
}

// SetHidden marks a file as carrying the hidden attribute.
func (s *Service) SetHidden(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hidden[remote.NormalizePath(path)] = true
}

// File returns a file's content.
func (s *Service) File(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[remote.NormalizePath(path)]
	return string(b), ok
}

// SessionsOpened returns the number of successful OpenSession calls.
func (s *Service) SessionsOpened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionsOpened
}

// SessionsClosed returns the number of closed sessions.
func (s *Service) SessionsClosed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionsClosed
}

// ReadersOpened returns the number of OpenReader calls that returned a stream.
func (s *Service) ReadersOpened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readersOpened
}

// WritersOpened returns the number of OpenWriter calls that returned a stream.
func (s *Service) WritersOpened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writersOpened
}

// Calls returns the credentials of every OpenSession attempt.
func (s *Service) Calls() []Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Credentials(nil), s.calls...)
}

// OpenSession implements remote.Service.
func (s *Service) OpenSession(ctx context.Context, serverURL, username, password string) (remote.Session, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Credentials{serverURL, username, password})
	hook, openErr := s.BeforeOpen, s.OpenError
	s.mu.Unlock()

	if _, err := remote.ParseURL(serverURL); err != nil {
		return nil, err
	}
	if hook != nil {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if openErr != nil {
		return nil, openErr
	}

	s.mu.Lock()
	s.sessionsOpened++
	s.mu.Unlock()
	return &session{svc: s}, nil
}

type session struct {
	svc    *Service
	closed bool
}

func (ss *session) Exists(ctx context.Context, path string) (bool, error) {
	s := ss.svc
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ExistsError != nil {
		return false, s.ExistsError
	}
	path = remote.NormalizePath(path)
	if path == "" {
		return !s.RootMissing, nil
	}
	_, ok := s.files[path]
	return ok, nil
}

func (ss *session) ListChildren(ctx context.Context, path string) ([]remote.Entry, error) {
	s := ss.svc
	s.mu.Lock()
	hook, listErr := s.BeforeList, s.ListError
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if listErr != nil {
		return nil, listErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := remote.NormalizePath(path)
	if prefix != "" {
		prefix += "/"
	}

	var entries []remote.Entry
	for p, content := range s.files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		name := strings.TrimPrefix(p, prefix)
		if strings.Contains(name, "/") {
			continue
		}
		entries = append(entries, remote.Entry{
			Path:     name,
			IsHidden: s.hidden[p] || localfs.IsHiddenName(name),
			Size:     int64(len(content)),
		})
	}
	// Map order is random; report in a stable but unsorted order so callers
	// must do their own sorting.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path > entries[j].Path })
	return entries, nil
}

func (ss *session) OpenReader(ctx context.Context, path string) (io.ReadCloser, error) {
	s := ss.svc
	path = remote.NormalizePath(path)

	s.mu.Lock()
	hook := s.BeforeRead
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, path); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, errkind.ErrNotFound)
	}
	s.readersOpened++

	data := append([]byte(nil), content...)
	r := &reader{name: path, size: int64(len(data)), ctx: ctx}
	if s.ReadError != nil {
		r.Reader = bytes.NewReader(data[:len(data)/2])
		r.failWith = s.ReadError
	} else {
		r.Reader = bytes.NewReader(data)
	}
	return r, nil
}

func (ss *session) OpenWriter(ctx context.Context, path string) (io.WriteCloser, error) {
	s := ss.svc
	path = remote.NormalizePath(path)

	s.mu.Lock()
	hook := s.BeforeWrite
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, path); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[path]; ok {
		return nil, fmt.Errorf("create %s: %w", path, fs.ErrExist)
	}
	s.writersOpened++
	return &writer{svc: s, path: path, ctx: ctx, failWith: s.WriteError}, nil
}

func (ss *session) Close() error {
	if ss.closed {
		return nil
	}
	ss.closed = true
	ss.svc.mu.Lock()
	ss.svc.sessionsClosed++
	ss.svc.mu.Unlock()
	return nil
}

type reader struct {
	*bytes.Reader
	name     string
	size     int64
	ctx      context.Context
	failWith error
}

func (r *reader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := r.Reader.Read(p)
	if err == io.EOF && r.failWith != nil {
		return n, r.failWith
	}
	return n, err
}

func (r *reader) Close() error { return nil }

// Stat lets the transfer coordinator learn the size for progress reporting.
func (r *reader) Stat() (fs.FileInfo, error) {
	return fileInfo{name: r.name, size: r.size}, nil
}

type writer struct {
	svc      *Service
	path     string
	ctx      context.Context
	buf      bytes.Buffer
	failWith error
	closed   bool
}

func (w *writer) Write(p []byte) (int, error) {
	if err := w.ctx.Err(); err != nil {
		return 0, err
	}
	if w.failWith != nil {
		return 0, w.failWith
	}
	return w.buf.Write(p)
}

// Close commits the content; a failed writer commits nothing.
func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.failWith != nil || w.ctx.Err() != nil {
		return nil
	}
	w.svc.mu.Lock()
	defer w.svc.mu.Unlock()
	w.svc.files[w.path] = append([]byte(nil), w.buf.Bytes()...)
	return nil
}

type fileInfo struct {
	name string
	size int64
}

func (fi fileInfo) Name() string       { return fi.name }
func (fi fileInfo) Size() int64        { return fi.size }
func (fi fileInfo) Mode() fs.FileMode  { return 0o644 }
func (fi fileInfo) ModTime() time.Time { return time.Time{} }
func (fi fileInfo) IsDir() bool        { return false }
func (fi fileInfo) Sys() any           { return nil }
