package remote

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/rainforce/smbclient/internal/constants"
	"github.com/rainforce/smbclient/internal/errkind"
)

// Address is a parsed server URL.
type Address struct {
	Host  string
	Port  int
	Share string
	// Dir is the slash-separated directory inside the share; "" is the share root.
	Dir string
}

// ParseURL accepts smb://host[:port]/share[/dir...] and UNC
// \\host\share[\dir...] forms. Errors wrap errkind.ErrMalformedAddress.
func ParseURL(raw string) (Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Address{}, fmt.Errorf("%w: empty server URL", errkind.ErrMalformedAddress)
	}

	if strings.HasPrefix(raw, `\\`) || strings.HasPrefix(raw, "//") {
		return parseUNC(raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", errkind.ErrMalformedAddress, err)
	}
	if !strings.EqualFold(u.Scheme, "smb") {
		return Address{}, fmt.Errorf("%w: unsupported scheme %q (want smb://)", errkind.ErrMalformedAddress, u.Scheme)
	}

	addr := Address{Host: u.Hostname(), Port: constants.DefaultSMBPort}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return Address{}, fmt.Errorf("%w: invalid port %q", errkind.ErrMalformedAddress, p)
		}
		addr.Port = port
	}
	if err := addr.setPath(u.Path); err != nil {
		return Address{}, err
	}
	return addr, addr.validate()
}

func parseUNC(raw string) (Address, error) {
	trimmed := strings.TrimLeft(strings.ReplaceAll(raw, `\`, "/"), "/")
	host, rest, _ := strings.Cut(trimmed, "/")

	addr := Address{Host: host, Port: constants.DefaultSMBPort}
	if h, p, err := net.SplitHostPort(host); err == nil {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return Address{}, fmt.Errorf("%w: invalid port %q", errkind.ErrMalformedAddress, p)
		}
		addr.Host, addr.Port = h, port
	}
	if err := addr.setPath(rest); err != nil {
		return Address{}, err
	}
	return addr, addr.validate()
}

func (a *Address) setPath(p string) error {
	parts := splitPath(p)
	if len(parts) == 0 {
		return fmt.Errorf("%w: missing share name", errkind.ErrMalformedAddress)
	}
	a.Share = parts[0]
	a.Dir = strings.Join(parts[1:], "/")
	return nil
}

func (a Address) validate() error {
	if a.Host == "" {
		return fmt.Errorf("%w: missing host", errkind.ErrMalformedAddress)
	}
	if strings.ContainsAny(a.Host, " /\\") {
		return fmt.Errorf("%w: invalid host %q", errkind.ErrMalformedAddress, a.Host)
	}
	return nil
}

// HostPort returns the dial address.
func (a Address) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// ShareUNC returns the \\host\share form used to mount the share.
func (a Address) ShareUNC() string {
	return `\\` + a.Host + `\` + a.Share
}

// Resolve joins p onto Dir and returns a share-relative path using forward
// slashes. "" resolves to Dir itself.
func (a Address) Resolve(p string) string {
	parts := append(splitPath(a.Dir), splitPath(p)...)
	return strings.Join(parts, "/")
}

// Join returns the full smb:// URL of name under this address. Used for
// logging and the transfer journal.
func (a Address) Join(name string) string {
	u := url.URL{Scheme: "smb", Host: a.Host, Path: "/" + a.Share}
	if a.Port != constants.DefaultSMBPort {
		u.Host = a.HostPort()
	}
	if rel := a.Resolve(name); rel != "" {
		u.Path += "/" + rel
	}
	return u.String()
}

// String returns the canonical smb:// URL.
func (a Address) String() string {
	return a.Join("")
}

// NormalizePath converts separators to "/" and strips leading and trailing
// separators. It is applied to every entry path an adapter reports.
func NormalizePath(p string) string {
	return strings.Join(splitPath(p), "/")
}

func splitPath(p string) []string {
	p = strings.ReplaceAll(p, `\`, "/")
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s != "" && s != "." {
			parts = append(parts, s)
		}
	}
	return parts
}
