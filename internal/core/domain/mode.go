// internal/core/domain/mode.go
package domain

import "fmt"

// Mode define la familia de protocolo de un target de captura.
type Mode string

const (
	// ModeAuto matches every protocol family
	ModeAuto Mode = "auto"

	// ModeWeb captures via the web path (URL targets)
	ModeWeb Mode = "web"

	// ModeRdp captures via the RDP remote-display protocol
	ModeRdp Mode = "rdp"

	// ModeVnc captures via the VNC/RFB remote-display protocol
	ModeVnc Mode = "vnc"
)

// IsValid verifica si el modo es válido.
func (m Mode) IsValid() bool {
	switch m {
	case ModeAuto, ModeWeb, ModeRdp, ModeVnc:
		return true
	default:
		return false
	}
}

// String retorna la representación string del modo.
func (m Mode) String() string {
	return string(m)
}

// Selected reports whether the supplied filter admits this mode.
// Auto is absorbing on both sides: Auto admits every filter and every mode
// passes an Auto filter; a concrete mode only passes itself.
func (m Mode) Selected(filter Mode) bool {
	return m == ModeAuto || filter == ModeAuto || m == filter
}

// ParseMode convierte un valor de CLI en Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAuto, ModeWeb, ModeRdp, ModeVnc:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q (must be auto, web, rdp or vnc)", ErrInvalidMode, s)
	}
}

// CaptureModes lists the concrete protocol families, i.e. every mode a
// dispatcher pool can exist for. Auto is a filter, never a family.
func CaptureModes() []Mode {
	return []Mode{ModeWeb, ModeRdp, ModeVnc}
}
