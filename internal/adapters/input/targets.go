// internal/adapters/input/targets.go
package input

import (
	"bufio"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"ocular/internal/core/domain"
	"ocular/internal/platform/errors"
	"ocular/internal/platform/logx"
)

// Parser expande entradas de usuario (literales, ficheros de líneas, XML de
// nmap) en targets concretos. Un literal sin esquema se despliega en todas
// las familias seleccionadas por el filtro de modo; un esquema explícito
// (vnc://, rdp://, http://, https://) fija la familia.
type Parser struct {
	filter  domain.Mode
	portFor func(domain.Mode) int
	logger  logx.Logger
}

// NewParser crea el parser. portFor resuelve el puerto implícito de cada
// familia (el del registry).
func NewParser(filter domain.Mode, portFor func(domain.Mode) int, logger logx.Logger) *Parser {
	if logger == nil {
		logger = logx.New()
	}
	return &Parser{filter: filter, portFor: portFor, logger: logger.With("component", "input")}
}

// ParseLiteral expande un target literal. Puede producir varios targets
// (un host pelado en modo auto ataca web, rdp y vnc a la vez).
func (p *Parser) ParseLiteral(raw string) ([]domain.Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, domain.ErrEmptyTarget
	}

	if strings.Contains(raw, "://") {
		return p.parseScheme(raw)
	}

	host, port, err := splitHostPort(raw)
	if err != nil {
		return nil, err
	}
	return p.fanOut(host, port)
}

// parseScheme maneja literales con esquema explícito.
func (p *Parser) parseScheme(raw string) ([]domain.Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrInvalidTarget, "%s: %v", raw, err)
	}

	switch u.Scheme {
	case "http", "https":
		if !domain.ModeWeb.Selected(p.filter) {
			p.logger.Debug("target excluded by mode filter", "target", raw)
			return nil, nil
		}
		target, err := domain.NewURLTarget(u)
		if err != nil {
			return nil, err
		}
		return []domain.Target{target}, nil

	case "vnc", "rdp":
		mode := domain.Mode(u.Scheme)
		if !mode.Selected(p.filter) {
			p.logger.Debug("target excluded by mode filter", "target", raw)
			return nil, nil
		}
		port := p.defaultPort(mode)
		if u.Port() != "" {
			port, err = strconv.Atoi(u.Port())
			if err != nil {
				return nil, errors.Wrapf(domain.ErrInvalidTarget, "%s: bad port", raw)
			}
		}
		target, err := domain.NewAddressTarget(mode, u.Hostname(), port)
		if err != nil {
			return nil, err
		}
		return []domain.Target{target}, nil

	default:
		return nil, errors.Wrapf(domain.ErrInvalidTarget, "%s: unsupported scheme %q", raw, u.Scheme)
	}
}

// fanOut despliega un host (con puerto opcional) en cada familia
// seleccionada.
func (p *Parser) fanOut(host string, port int) ([]domain.Target, error) {
	var out []domain.Target
	for _, mode := range domain.CaptureModes() {
		if !mode.Selected(p.filter) {
			continue
		}

		if mode == domain.ModeWeb {
			raw := fmt.Sprintf("http://%s/", net.JoinHostPort(host, strconv.Itoa(port)))
			if port == 0 {
				raw = fmt.Sprintf("http://%s/", hostForURL(host))
			}
			u, err := url.Parse(raw)
			if err != nil {
				return nil, errors.Wrapf(domain.ErrInvalidTarget, "%s: %v", raw, err)
			}
			target, err := domain.NewURLTarget(u)
			if err != nil {
				return nil, err
			}
			out = append(out, target)
			continue
		}

		effective := port
		if effective == 0 {
			effective = p.defaultPort(mode)
		}
		target, err := domain.NewAddressTarget(mode, host, effective)
		if err != nil {
			return nil, err
		}
		out = append(out, target)
	}
	return out, nil
}

func (p *Parser) defaultPort(mode domain.Mode) int {
	if p.portFor != nil {
		if port := p.portFor(mode); port > 0 {
			return port
		}
	}
	switch mode {
	case domain.ModeVnc:
		return 5900
	case domain.ModeRdp:
		return 3389
	default:
		return 80
	}
}

// ParseFile expande un fichero de targets: uno por línea, líneas vacías y
// comentarios '#' ignorados. Una línea inválida aborta la carga completa.
func (p *Parser) ParseFile(path string) ([]domain.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening targets file %s", path)
	}
	defer f.Close()

	var out []domain.Target
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets, err := p.ParseLiteral(line)
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d", path, lineNo)
		}
		out = append(out, targets...)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading targets file %s", path)
	}
	return out, nil
}

// Dedupe elimina targets repetidos conservando el orden de primera
// aparición.
func Dedupe(targets []domain.Target) []domain.Target {
	seen := make(map[string]struct{}, len(targets))
	out := make([]domain.Target, 0, len(targets))
	for _, t := range targets {
		key := string(t.Mode()) + "|" + t.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// splitHostPort separa host[:puerto], tolerando IPv6 con y sin corchetes.
// port 0 significa "sin puerto explícito".
func splitHostPort(raw string) (string, int, error) {
	if host, portStr, err := net.SplitHostPort(raw); err == nil {
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > 65535 {
			return "", 0, errors.Wrapf(domain.ErrInvalidTarget, "%s: bad port %q", raw, portStr)
		}
		return host, port, nil
	}

	host := strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	if host == "" {
		return "", 0, domain.ErrEmptyTarget
	}
	return host, 0, nil
}

// hostForURL encierra IPv6 en corchetes para formar URLs válidas.
func hostForURL(host string) string {
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}
