// internal/capture/rdp/x224.go
package rdp

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"

	"ocular/internal/platform/errors"
)

// Cabecera TPKT (RFC 1006): versión 3, reservado, longitud total u16 BE.
const (
	tpktVersion   uint8 = 3
	tpktHeaderLen       = 4
)

// Códigos X.224 (solo los dos PDUs de la fase de conexión).
const (
	x224ConnectionRequest uint8 = 0xE0
	x224ConnectionConfirm uint8 = 0xD0
)

// Estructuras de negociación RDP (MS-RDPBCGR 2.2.1.1/2.2.1.2).
const (
	negTypeRequest  uint8 = 0x01
	negTypeResponse uint8 = 0x02
	negTypeFailure  uint8 = 0x03

	protocolRDP uint32 = 0x00000000 // seguridad estándar, sin credenciales
	protocolSSL uint32 = 0x00000001
)

// negotiationFailureReason describe los códigos de RDP_NEG_FAILURE.
func negotiationFailureReason(code uint32) string {
	switch code {
	case 0x01:
		return "SSL required by server"
	case 0x02:
		return "SSL not allowed by server"
	case 0x03:
		return "SSL certificate not on server"
	case 0x04:
		return "inconsistent flags"
	case 0x05:
		return "hybrid (CredSSP) required by server"
	default:
		return "unknown failure"
	}
}

// rdpConn envuelve la conexión con lectura bufferizada. TPKT/X.224 usan
// big-endian; los campos internos de RDP son little-endian.
type rdpConn struct {
	c  net.Conn
	br *bufio.Reader
}

func newRDPConn(c net.Conn) *rdpConn {
	return &rdpConn{c: c, br: bufio.NewReader(c)}
}

func (r *rdpConn) Close() error { return r.c.Close() }

// writeTPKT enmarca y envía un payload X.224.
func (r *rdpConn) writeTPKT(payload []byte) error {
	header := []byte{tpktVersion, 0, 0, 0}
	binary.BigEndian.PutUint16(header[2:], uint16(tpktHeaderLen+len(payload)))
	if _, err := r.c.Write(append(header, payload...)); err != nil {
		return errors.Wrap(errors.ErrConnection, "sending tpkt: "+err.Error())
	}
	return nil
}

// readTPKT lee un frame TPKT completo y retorna su payload.
func (r *rdpConn) readTPKT() ([]byte, error) {
	header := make([]byte, tpktHeaderLen)
	if _, err := io.ReadFull(r.br, header); err != nil {
		return nil, err
	}
	if header[0] != tpktVersion {
		return nil, errors.Wrapf(errors.ErrProtocol, "not a TPKT stream: version %d", header[0])
	}
	length := binary.BigEndian.Uint16(header[2:])
	if int(length) < tpktHeaderLen {
		return nil, errors.Wrapf(errors.ErrProtocol, "tpkt length %d too short", length)
	}
	payload := make([]byte, int(length)-tpktHeaderLen)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// connectionRequest construye el X.224 CR con la RDP Negotiation Request
// pidiendo seguridad estándar (sin TLS ni CredSSP: captura sin credenciales).
func connectionRequest() []byte {
	// RDP_NEG_REQ: type, flags, length u16 LE, requestedProtocols u32 LE.
	neg := make([]byte, 8)
	neg[0] = negTypeRequest
	binary.LittleEndian.PutUint16(neg[2:], 8)
	binary.LittleEndian.PutUint32(neg[4:], protocolRDP)

	// X.224 CR: LI, código, DST-REF, SRC-REF, clase 0, luego el payload.
	body := []byte{x224ConnectionRequest, 0, 0, 0, 0, 0}
	body = append(body, neg...)

	pdu := make([]byte, 0, 1+len(body))
	pdu = append(pdu, uint8(len(body))) // LI: longitud sin contar el propio LI
	pdu = append(pdu, body...)
	return pdu
}

// negotiate envía el Connection Request y procesa el Confirm. Retorna
// standard=true si el servidor aceptó seguridad estándar.
func (r *rdpConn) negotiate() (bool, error) {
	if err := r.writeTPKT(connectionRequest()); err != nil {
		return false, err
	}

	payload, err := r.readTPKT()
	if err != nil {
		if errors.IsProtocol(err) {
			return false, err
		}
		return false, errors.Wrap(errors.ErrConnection, "reading connection confirm: "+err.Error())
	}
	if len(payload) < 7 {
		return false, errors.Wrapf(errors.ErrProtocol, "connection confirm too short: %d bytes", len(payload))
	}
	if payload[1]&0xF0 != x224ConnectionConfirm {
		return false, errors.Wrapf(errors.ErrProtocol, "expected connection confirm, got X.224 code 0x%02x", payload[1])
	}

	// Sin estructura de negociación adjunta: servidor legado, seguridad
	// estándar implícita.
	if len(payload) < 7+8 {
		return true, nil
	}

	neg := payload[7:]
	switch neg[0] {
	case negTypeResponse:
		selected := binary.LittleEndian.Uint32(neg[4:])
		return selected == protocolRDP, nil
	case negTypeFailure:
		code := binary.LittleEndian.Uint32(neg[4:])
		return false, errors.Wrapf(errors.ErrUnsupportedAuth,
			"server refused standard security: %s", negotiationFailureReason(code))
	default:
		return false, errors.Wrapf(errors.ErrProtocol, "unexpected negotiation structure type 0x%02x", neg[0])
	}
}
