// internal/core/domain/target.go
package domain

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// TargetKind distingue las dos formas de destino de captura.
type TargetKind string

const (
	// TargetAddress es un host:puerto resuelto (protocolos de display remoto)
	TargetAddress TargetKind = "address"

	// TargetURL es una URL web (scheme+host+path)
	TargetURL TargetKind = "url"
)

// Target representa un destino de captura. Inmutable una vez parseado: los
// campos son privados y solo se exponen accessors de lectura.
type Target struct {
	kind TargetKind
	mode Mode
	host string
	port int
	url  *url.URL
}

// NewAddressTarget builds an address target for a display protocol family.
func NewAddressTarget(mode Mode, host string, port int) (Target, error) {
	if mode != ModeRdp && mode != ModeVnc {
		return Target{}, fmt.Errorf("%w: address targets need rdp or vnc, got %s", ErrTargetKindMismatch, mode)
	}
	if host == "" {
		return Target{}, ErrEmptyTarget
	}
	if port < 1 || port > 65535 {
		return Target{}, fmt.Errorf("%w: port %d out of range", ErrInvalidTarget, port)
	}
	return Target{kind: TargetAddress, mode: mode, host: host, port: port}, nil
}

// NewURLTarget builds a web target from an absolute http(s) URL.
func NewURLTarget(u *url.URL) (Target, error) {
	if u == nil || u.Host == "" {
		return Target{}, ErrEmptyTarget
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Target{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, u.Scheme)
	}
	return Target{kind: TargetURL, mode: ModeWeb, url: u}, nil
}

// Kind retorna la forma del target (address o url).
func (t Target) Kind() TargetKind { return t.kind }

// Mode retorna la familia de protocolo a la que se despacha el target.
func (t Target) Mode() Mode { return t.mode }

// Host retorna el host (solo address targets).
func (t Target) Host() string { return t.host }

// Port retorna el puerto (solo address targets).
func (t Target) Port() int { return t.port }

// Addr returns the dialable host:port form. For URL targets it derives the
// host and default scheme port so the web prober can reuse the same dialer.
func (t Target) Addr() string {
	if t.kind == TargetAddress {
		return net.JoinHostPort(t.host, strconv.Itoa(t.port))
	}
	host := t.url.Hostname()
	port := t.url.Port()
	if port == "" {
		if t.url.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return net.JoinHostPort(host, port)
}

// URL retorna la URL (solo web targets, nil para address targets).
func (t Target) URL() *url.URL { return t.url }

// String es la forma canónica usada en logs y como base del filename.
func (t Target) String() string {
	if t.kind == TargetAddress {
		return net.JoinHostPort(t.host, strconv.Itoa(t.port))
	}
	return t.url.String()
}

// Filename returns the deterministic filesystem-safe form of the canonical
// string: every rune outside [A-Za-z0-9._-] becomes '-', so repeated runs
// against the same target overwrite the same file.
func (t Target) Filename() string {
	return sanitizeFilename(t.String())
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		default:
			return '-'
		}
	}, s)
}
