// internal/capture/vnc/rfb.go
package vnc

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"ocular/internal/capture/frame"
	"ocular/internal/platform/errors"
)

// Versión de protocolo que negociamos siempre, aunque el servidor anuncie
// una más nueva. 3.8 es el mínimo común de los servidores en producción.
const protocolVersion = "RFB 003.008\n"

// Tipos de seguridad (7.1.2).
const (
	secTypeInvalid uint8 = 0
	secTypeNone    uint8 = 1
	secTypeVNCAuth uint8 = 2
)

// Mensajes cliente→servidor.
const (
	msgSetPixelFormat           uint8 = 0
	msgSetEncodings             uint8 = 2
	msgFramebufferUpdateRequest uint8 = 3
)

// Mensajes servidor→cliente.
const (
	msgFramebufferUpdate   uint8 = 0
	msgSetColourMapEntries uint8 = 1
	msgBell                uint8 = 2
	msgServerCutText       uint8 = 3
)

// Encodings de rectángulo que anunciamos.
const (
	encodingRaw         int32 = 0
	encodingCopyRect    int32 = 1
	encodingDesktopSize int32 = -223
)

const maxDesktopNameLen = 1 << 20

// rfbConn envuelve la conexión de transporte con lectura bufferizada. Todos
// los enteros del wire son big-endian.
type rfbConn struct {
	c  net.Conn
	br *bufio.Reader
}

func newRFBConn(c net.Conn) *rfbConn {
	return &rfbConn{c: c, br: bufio.NewReader(c)}
}

func (r *rfbConn) Close() error { return r.c.Close() }

func (r *rfbConn) read(v any) error {
	return binary.Read(r.br, binary.BigEndian, v)
}

func (r *rfbConn) write(vs ...any) error {
	for _, v := range vs {
		if err := binary.Write(r.c, binary.BigEndian, v); err != nil {
			return err
		}
	}
	return nil
}

// serverInit es el resultado de la negociación completa.
type serverInit struct {
	Width  uint16
	Height uint16
	Format frame.PixelFormat
	Name   string
}

// chooseSecurityType selecciona el tipo de seguridad a partir de la lista
// del servidor. Solo hablamos None; si el servidor no lo anuncia lo pedimos
// igualmente (el segundo retorno indica si estaba anunciado, para que la
// sesión lo registre antes del rechazo casi seguro del servidor).
func chooseSecurityType(offered []uint8) (uint8, bool) {
	for _, t := range offered {
		if t == secTypeNone {
			return secTypeNone, true
		}
	}
	return secTypeNone, false
}

// handshake ejecuta versión, seguridad, ClientInit y ServerInit. Deja la
// conexión lista para SetEncodings/FramebufferUpdateRequest.
func (r *rfbConn) handshake() (*serverInit, bool, error) {
	offeredNone, err := r.negotiateSecurity()
	if err != nil {
		return nil, offeredNone, err
	}

	// 7.3.1 ClientInit: shared=1, nunca desplazamos a otros clientes.
	if err := r.write(uint8(1)); err != nil {
		return nil, offeredNone, errors.Wrap(errors.ErrConnection, "sending client init: "+err.Error())
	}

	init, err := r.readServerInit()
	if err != nil {
		return nil, offeredNone, err
	}
	return init, offeredNone, nil
}

func (r *rfbConn) negotiateSecurity() (bool, error) {
	// 7.1.1 versión: 12 bytes del servidor, 12 bytes de respuesta.
	banner := make([]byte, 12)
	if _, err := io.ReadFull(r.br, banner); err != nil {
		return false, errors.Wrap(errors.ErrConnection, "reading version banner: "+err.Error())
	}
	if string(banner[:4]) != "RFB " {
		return false, errors.Wrapf(errors.ErrProtocol, "not an RFB server: %q", banner)
	}
	if _, err := r.c.Write([]byte(protocolVersion)); err != nil {
		return false, errors.Wrap(errors.ErrConnection, "sending version: "+err.Error())
	}

	// 7.1.2 tipos de seguridad.
	var numTypes uint8
	if err := r.read(&numTypes); err != nil {
		return false, errors.Wrap(errors.ErrConnection, "reading security type count: "+err.Error())
	}
	if numTypes == 0 {
		reason := r.readReason()
		return false, errors.Wrapf(errors.ErrProtocol, "server rejected connection: %s", reason)
	}

	offered := make([]uint8, numTypes)
	if err := r.read(&offered); err != nil {
		return false, errors.Wrap(errors.ErrConnection, "reading security types: "+err.Error())
	}

	selected, offeredNone := chooseSecurityType(offered)
	if err := r.write(selected); err != nil {
		return offeredNone, errors.Wrap(errors.ErrConnection, "sending security type: "+err.Error())
	}

	// 7.1.3 SecurityResult.
	var result uint32
	if err := r.read(&result); err != nil {
		return offeredNone, errors.Wrap(errors.ErrConnection, "reading security result: "+err.Error())
	}
	if result != 0 {
		reason := r.readReason()
		if !offeredNone {
			return offeredNone, errors.Wrapf(errors.ErrUnsupportedAuth,
				"server requires authentication (offered types %v): %s", offered, reason)
		}
		return offeredNone, errors.Wrapf(errors.ErrProtocol, "security handshake failed: %s", reason)
	}
	return offeredNone, nil
}

// readReason lee la cadena de error que el servidor adjunta a un rechazo.
func (r *rfbConn) readReason() string {
	var n uint32
	if err := r.read(&n); err != nil || n > maxDesktopNameLen {
		return "(no reason)"
	}
	reason := make([]byte, n)
	if _, err := io.ReadFull(r.br, reason); err != nil {
		return "(no reason)"
	}
	return string(reason)
}

// readServerInit parsea 7.3.2: dimensiones, pixel format de 16 bytes y
// nombre del desktop.
func (r *rfbConn) readServerInit() (*serverInit, error) {
	var init serverInit
	if err := r.read(&init.Width); err != nil {
		return nil, errors.Wrap(errors.ErrConnection, "reading framebuffer width: "+err.Error())
	}
	if err := r.read(&init.Height); err != nil {
		return nil, errors.Wrap(errors.ErrConnection, "reading framebuffer height: "+err.Error())
	}
	if init.Width == 0 || init.Height == 0 {
		return nil, errors.Wrapf(errors.ErrProtocol, "server sent empty framebuffer %dx%d", init.Width, init.Height)
	}

	format, err := r.readPixelFormat()
	if err != nil {
		return nil, err
	}
	init.Format = format

	var nameLen uint32
	if err := r.read(&nameLen); err != nil {
		return nil, errors.Wrap(errors.ErrConnection, "reading desktop name length: "+err.Error())
	}
	if nameLen > maxDesktopNameLen {
		return nil, errors.Wrapf(errors.ErrProtocol, "desktop name length %d out of range", nameLen)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r.br, name); err != nil {
		return nil, errors.Wrap(errors.ErrConnection, "reading desktop name: "+err.Error())
	}
	init.Name = string(name)
	return &init, nil
}

// readPixelFormat parsea los 16 bytes del pixel format del wire.
func (r *rfbConn) readPixelFormat() (frame.PixelFormat, error) {
	var raw struct {
		BPP        uint8
		Depth      uint8
		BigEndian  uint8
		TrueColor  uint8
		RedMax     uint16
		GreenMax   uint16
		BlueMax    uint16
		RedShift   uint8
		GreenShift uint8
		BlueShift  uint8
		Padding    [3]byte
	}
	if err := r.read(&raw); err != nil {
		return frame.PixelFormat{}, errors.Wrap(errors.ErrConnection, "reading pixel format: "+err.Error())
	}
	return frame.PixelFormat{
		BPP:        raw.BPP,
		Depth:      raw.Depth,
		BigEndian:  raw.BigEndian != 0,
		TrueColor:  raw.TrueColor != 0,
		RedMax:     raw.RedMax,
		GreenMax:   raw.GreenMax,
		BlueMax:    raw.BlueMax,
		RedShift:   raw.RedShift,
		GreenShift: raw.GreenShift,
		BlueShift:  raw.BlueShift,
	}, nil
}

// setEncodings anuncia los encodings que el cliente acepta (7.5.2).
func (r *rfbConn) setEncodings(encodings ...int32) error {
	if err := r.write(msgSetEncodings, uint8(0), uint16(len(encodings))); err != nil {
		return errors.Wrap(errors.ErrConnection, "sending set encodings: "+err.Error())
	}
	for _, e := range encodings {
		if err := r.write(e); err != nil {
			return errors.Wrap(errors.ErrConnection, "sending encoding: "+err.Error())
		}
	}
	return nil
}

// requestUpdate pide el framebuffer completo (7.5.3). Una sola petición no
// incremental: queremos exactamente un frame.
func (r *rfbConn) requestUpdate(width, height uint16) error {
	err := r.write(msgFramebufferUpdateRequest, uint8(0),
		uint16(0), uint16(0), width, height)
	if err != nil {
		return errors.Wrap(errors.ErrConnection, "sending update request: "+err.Error())
	}
	return nil
}

// rectHeader es la cabecera de cada rectángulo de un FramebufferUpdate.
type rectHeader struct {
	X        uint16
	Y        uint16
	Width    uint16
	Height   uint16
	Encoding int32
}

func (h rectHeader) String() string {
	return fmt.Sprintf("%dx%d at (%d,%d) encoding %d", h.Width, h.Height, h.X, h.Y, h.Encoding)
}
