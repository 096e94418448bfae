// internal/platform/netx/dialer.go
package netx

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"ocular/internal/platform/errors"
)

// DefaultConnectTimeout bounds the TCP connect for a capture session.
const DefaultConnectTimeout = 10 * time.Second

// Dialer opens transport connections for capture sessions, optionally
// through a SOCKS5 proxy. The zero value dials directly.
type Dialer struct {
	proxyURL string
	timeout  time.Duration
}

// NewDialer builds a dialer. proxyURL is empty for direct connections or a
// socks5:// URI as accepted by ValidateProxyURL.
func NewDialer(proxyURL string, timeout time.Duration) *Dialer {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &Dialer{proxyURL: proxyURL, timeout: timeout}
}

// DialContext opens a TCP connection to addr, honoring the configured proxy
// and the context's deadline.
func (d *Dialer) DialContext(ctx context.Context, addr string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if d.proxyURL == "" {
		var nd net.Dialer
		conn, err := nd.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrConnection, "dial %s: %v", addr, err)
		}
		return conn, nil
	}

	u, err := url.Parse(d.proxyURL)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrConnection, "proxy %s: %v", d.proxyURL, err)
	}

	var auth *proxy.Auth
	if u.User != nil {
		pw, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pw}
	}

	socks, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrConnection, "proxy %s: %v", u.Host, err)
	}

	// x/net returns a ContextDialer for SOCKS5; assert it rather than
	// blocking without cancellation.
	cd, ok := socks.(proxy.ContextDialer)
	if !ok {
		conn, err := socks.Dial("tcp", addr)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrConnection, "dial %s via %s: %v", addr, u.Host, err)
		}
		return conn, nil
	}

	conn, err := cd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrConnection, "dial %s via %s: %v", addr, u.Host, err)
	}
	return conn, nil
}

// ProxyURL returns the configured proxy URI, empty for direct dialing.
func (d *Dialer) ProxyURL() string {
	return d.proxyURL
}

// ValidateProxyURL checks that a proxy flag value is a socks5:// URI with a
// host. Other schemes are rejected up front rather than failing mid-run.
func ValidateProxyURL(raw string) error {
	if raw == "" {
		return nil
	}
	if !strings.HasPrefix(raw, "socks5://") {
		return errors.Errorf("proxy must be a socks5:// URI, got %q", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid proxy URI %q", raw)
	}
	if u.Host == "" {
		return errors.Errorf("proxy URI %q has no host", raw)
	}
	return nil
}
