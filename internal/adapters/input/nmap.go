// internal/adapters/input/nmap.go
package input

import (
	"encoding/xml"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"ocular/internal/core/domain"
	"ocular/internal/platform/errors"
)

// Estructuras mínimas del XML de nmap (-oX).
type nmapRun struct {
	XMLName xml.Name   `xml:"nmaprun"`
	Hosts   []nmapHost `xml:"host"`
}

type nmapHost struct {
	Status    nmapStatus     `xml:"status"`
	Addresses []nmapAddress  `xml:"address"`
	Hostnames []nmapHostname `xml:"hostnames>hostname"`
	Ports     []nmapPort     `xml:"ports>port"`
}

type nmapStatus struct {
	State string `xml:"state,attr"`
}

type nmapAddress struct {
	Addr     string `xml:"addr,attr"`
	AddrType string `xml:"addrtype,attr"`
}

type nmapHostname struct {
	Name string `xml:"name,attr"`
}

type nmapPort struct {
	Protocol string      `xml:"protocol,attr"`
	PortID   int         `xml:"portid,attr"`
	State    nmapStatus  `xml:"state"`
	Service  nmapService `xml:"service"`
}

type nmapService struct {
	Name   string `xml:"name,attr"`
	Tunnel string `xml:"tunnel,attr"`
}

// ParseNmapXML expande un fichero de resultados de nmap: cada puerto
// abierto cuyo servicio encaja en una familia seleccionada produce un
// target. Puertos sin familia conocida se ignoran.
func (p *Parser) ParseNmapXML(path string) ([]domain.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening nmap file %s", path)
	}

	var run nmapRun
	if err := xml.Unmarshal(data, &run); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidTarget, "parsing nmap file %s: %v", path, err)
	}

	var out []domain.Target
	for _, host := range run.Hosts {
		if host.Status.State != "up" {
			continue
		}
		addr := hostAddress(host)
		if addr == "" {
			continue
		}

		for _, port := range host.Ports {
			if port.Protocol != "tcp" || port.State.State != "open" {
				continue
			}
			targets, err := p.portTargets(addr, port)
			if err != nil {
				return nil, err
			}
			out = append(out, targets...)
		}
	}

	p.logger.Debug("parsed nmap file", "path", path, "targets", len(out))
	return out, nil
}

// hostAddress prefiere el hostname resuelto y cae a la dirección IP.
func hostAddress(host nmapHost) string {
	for _, hn := range host.Hostnames {
		if hn.Name != "" {
			return hn.Name
		}
	}
	for _, a := range host.Addresses {
		if a.AddrType == "ipv4" || a.AddrType == "ipv6" {
			return a.Addr
		}
	}
	return ""
}

// portTargets clasifica un puerto abierto en su familia de captura.
func (p *Parser) portTargets(addr string, port nmapPort) ([]domain.Target, error) {
	mode, secure := classifyService(port)
	if mode == "" || !mode.Selected(p.filter) {
		return nil, nil
	}

	if mode == domain.ModeWeb {
		scheme := "http"
		if secure {
			scheme = "https"
		}
		raw := fmt.Sprintf("%s://%s/", scheme, net.JoinHostPort(addr, fmt.Sprint(port.PortID)))
		u, err := url.Parse(raw)
		if err != nil {
			return nil, errors.Wrapf(domain.ErrInvalidTarget, "%s: %v", raw, err)
		}
		target, err := domain.NewURLTarget(u)
		if err != nil {
			return nil, err
		}
		return []domain.Target{target}, nil
	}

	target, err := domain.NewAddressTarget(mode, addr, port.PortID)
	if err != nil {
		return nil, err
	}
	return []domain.Target{target}, nil
}

// classifyService mapea servicio/puerto a familia. secure marca que la
// variante web va por TLS.
func classifyService(port nmapPort) (domain.Mode, bool) {
	name := strings.ToLower(port.Service.Name)
	tls := port.Service.Tunnel == "ssl" || name == "https"

	switch {
	case strings.Contains(name, "vnc"):
		return domain.ModeVnc, false
	case name == "ms-wbt-server" || strings.Contains(name, "rdp"):
		return domain.ModeRdp, false
	case strings.HasPrefix(name, "http"):
		return domain.ModeWeb, tls
	}

	// Nombre ausente o desconocido: clasificar por puerto habitual.
	switch {
	case port.PortID >= 5900 && port.PortID <= 5909:
		return domain.ModeVnc, false
	case port.PortID == 3389:
		return domain.ModeRdp, false
	case port.PortID == 80 || port.PortID == 8080 || port.PortID == 8000:
		return domain.ModeWeb, false
	case port.PortID == 443 || port.PortID == 8443:
		return domain.ModeWeb, true
	}
	return "", false
}
