// Package smb implements the remote.Service capability over SMB2/3 using
// github.com/hirochachacha/go-smb2 with NTLM authentication.
package smb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hirochachacha/go-smb2"
	"golang.org/x/net/proxy"

	"github.com/rainforce/smbclient/internal/constants"
	"github.com/rainforce/smbclient/internal/errkind"
	"github.com/rainforce/smbclient/internal/localfs"
	"github.com/rainforce/smbclient/internal/logging"
	"github.com/rainforce/smbclient/internal/remote"
)

// NT status codes mapped onto the error taxonomy.
const (
	statusObjectNameNotFound  = 0xC0000034
	statusObjectPathNotFound  = 0xC000003A
	statusNoSuchFile          = 0xC000000F
	statusBadNetworkName      = 0xC00000CC
	statusObjectNameCollision = 0xC0000035

	fileAttributeHidden = 0x2
)

// Options configures the adapter.
type Options struct {
	DialTimeout time.Duration
	// UseProxy dials through the proxy named by ALL_PROXY (SOCKS5).
	UseProxy bool
	Logger   *logging.Logger
}

// Service is the SMB implementation of remote.Service.
type Service struct {
	opts   Options
	logger *logging.Logger
}

// New creates a Service.
func New(opts Options) *Service {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = constants.DefaultDialTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{opts: opts, logger: logger.Component("smb")}
}

var _ remote.Service = (*Service)(nil)

// OpenSession dials the server, authenticates and mounts the share.
func (s *Service) OpenSession(ctx context.Context, serverURL, username, password string) (remote.Session, error) {
	addr, err := remote.ParseURL(serverURL)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.opts.DialTimeout)
	defer cancel()

	conn, err := s.dial(dialCtx, addr.HostPort())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr.HostPort(), err)
	}

	domain, user := splitDomain(username)
	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     user,
			Password: password,
			Domain:   domain,
		},
	}

	sess, err := d.DialContext(dialCtx, conn)
	if err != nil {
		conn.Close()
		return nil, mapError(fmt.Errorf("negotiate %s: %w", addr.HostPort(), err))
	}

	share, err := sess.Mount(addr.ShareUNC())
	if err != nil {
		_ = sess.Logoff()
		conn.Close()
		return nil, mapError(fmt.Errorf("mount %s: %w", addr.ShareUNC(), err))
	}

	s.logger.Debug().
		Str("server", addr.String()).
		Str("user", username).
		Msg("SMB session opened")

	return &session{addr: addr, conn: conn, sess: sess, share: share, logger: s.logger}, nil
}

func (s *Service) dial(ctx context.Context, hostPort string) (net.Conn, error) {
	if s.opts.UseProxy {
		return proxy.Dial(ctx, "tcp", hostPort)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", hostPort)
}

// splitDomain separates DOMAIN\user and user@domain forms.
func splitDomain(username string) (domain, user string) {
	if d, u, ok := strings.Cut(username, `\`); ok {
		return d, u
	}
	if u, d, ok := strings.Cut(username, "@"); ok {
		return d, u
	}
	return "", username
}

type session struct {
	addr   remote.Address
	conn   net.Conn
	sess   *smb2.Session
	share  *smb2.Share
	logger *logging.Logger

	closeOnce sync.Once
	closeErr  error
}

// sharePath converts a share-relative path into the form go-smb2 expects.
func (s *session) sharePath(p string) string {
	return strings.ReplaceAll(s.addr.Resolve(p), "/", `\`)
}

func (s *session) Exists(ctx context.Context, p string) (bool, error) {
	name := s.sharePath(p)
	if name == "" {
		// The share itself; mounting already proved it exists.
		return true, nil
	}
	_, err := s.share.WithContext(ctx).Stat(name)
	if err == nil {
		return true, nil
	}
	if err = mapError(err); errors.Is(err, errkind.ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (s *session) ListChildren(ctx context.Context, p string) ([]remote.Entry, error) {
	infos, err := s.share.WithContext(ctx).ReadDir(s.sharePath(p))
	if err != nil {
		return nil, mapError(err)
	}

	entries := make([]remote.Entry, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if name == "." || name == ".." {
			continue
		}
		entries = append(entries, remote.Entry{
			Path:     remote.NormalizePath(name),
			IsHidden: isHidden(info),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
	}
	return entries, nil
}

func isHidden(info fs.FileInfo) bool {
	if localfs.IsHiddenName(info.Name()) {
		return true
	}
	if st, ok := info.Sys().(*smb2.FileStat); ok {
		return st.FileAttributes&fileAttributeHidden != 0
	}
	return false
}

func (s *session) OpenReader(ctx context.Context, p string) (io.ReadCloser, error) {
	f, err := s.share.WithContext(ctx).Open(s.sharePath(p))
	if err != nil {
		return nil, mapError(err)
	}
	return f, nil
}

func (s *session) OpenWriter(ctx context.Context, p string) (io.WriteCloser, error) {
	f, err := s.share.WithContext(ctx).OpenFile(s.sharePath(p), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, mapError(err)
	}
	return f, nil
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.share.Umount(); err != nil {
			errs = append(errs, err)
		}
		if err := s.sess.Logoff(); err != nil {
			errs = append(errs, err)
		}
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			s.logger.Debug().Err(s.closeErr).Str("server", s.addr.String()).Msg("SMB session close reported errors")
		}
	})
	return s.closeErr
}

// mapError attaches taxonomy sentinels to go-smb2 errors so
// errkind.Categorize can classify them without knowing this package.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", errkind.ErrNotFound, err)
	}

	var respErr *smb2.ResponseError
	if !errors.As(err, &respErr) {
		return err
	}
	switch respErr.Code {
	case statusObjectNameNotFound, statusObjectPathNotFound, statusNoSuchFile, statusBadNetworkName:
		return fmt.Errorf("%w: %w", errkind.ErrNotFound, err)
	case statusObjectNameCollision:
		return fmt.Errorf("%w: %w", fs.ErrExist, err)
	default:
		return fmt.Errorf("%w: %w", errkind.ErrProtocol, err)
	}
}
