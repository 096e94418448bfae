// internal/capture/rdp/rdp.go
package rdp

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"time"

	"ocular/internal/adapters/output"
	"ocular/internal/capture/frame"
	"ocular/internal/core/domain"
	"ocular/internal/core/ports"
	"ocular/internal/platform/errors"
	"ocular/internal/platform/logx"
	"ocular/internal/platform/netx"
	"ocular/internal/platform/registry"
)

// Auto-registro de la familia al importar el package
func init() {
	if err := registry.Global().Register(
		domain.ModeRdp,
		func(cfg ports.CaptureConfig) (ports.Capturer, error) {
			return New(cfg)
		},
		ports.CapturerMetadata{
			Name:        "rdp",
			Description: "RDP standard-security bitmap capture",
			Mode:        domain.ModeRdp,
			DefaultPort: 3389,
		},
	); err != nil {
		logx.New().Warn("failed to register rdp capturer", "error", err.Error())
	}
}

// Lienzo por defecto: sin intercambio de capacidades el servidor no declara
// el tamaño del desktop, así que los rectángulos fuera de este área se
// descartan con un log.
const (
	canvasWidth  uint16 = 1280
	canvasHeight uint16 = 1024
)

const defaultQuietPeriod = 2 * time.Second

// RDP captura actualizaciones de bitmap de servidores con seguridad
// estándar (sin credenciales). La sesión acumula rectángulos hasta que el
// servidor queda en silencio durante el quiet period y entonces finaliza
// con lo recibido.
type RDP struct {
	cfg    ports.CaptureConfig
	dialer *netx.Dialer
	writer *output.Writer
	logger logx.Logger
	quiet  time.Duration
}

// New crea la familia RDP.
func New(cfg ports.CaptureConfig) (*RDP, error) {
	writer, err := output.NewWriter(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	quiet := cfg.QuietPeriod
	if quiet <= 0 {
		quiet = defaultQuietPeriod
	}
	return &RDP{
		cfg:    cfg,
		dialer: netx.NewDialer(cfg.ProxyURL, cfg.ConnectTimeout),
		writer: writer,
		logger: logx.New().With("capturer", "rdp"),
		quiet:  quiet,
	}, nil
}

func (r *RDP) Name() string      { return "rdp" }
func (r *RDP) Mode() domain.Mode { return domain.ModeRdp }
func (r *RDP) Close() error      { return nil }

// Capture conecta, negocia X.224 y acumula bitmaps hasta el quiet period.
func (r *RDP) Capture(ctx context.Context, target domain.Target) (domain.ReportMessage, error) {
	logger := r.logger.With("target", target.String())

	conn, err := r.dialer.DialContext(ctx, target.Addr())
	if err != nil {
		return domain.ReportMessage{}, errors.Wrap(errors.ErrConnection, err.Error())
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	rc := newRDPConn(conn)
	defer rc.Close()

	standard, err := rc.negotiate()
	if err != nil {
		return domain.ReportMessage{}, err
	}
	if !standard {
		logger.Warn("server selected a credential-requiring protocol, proceeding anyway")
	}

	fb := frame.NewFramebuffer(canvasWidth, canvasHeight)
	applied, err := r.receiveBitmaps(conn, rc, fb, logger)
	if err != nil {
		return domain.ReportMessage{}, err
	}
	if applied == 0 {
		return domain.ReportMessage{}, errors.Wrap(errors.ErrProtocol,
			"no bitmap updates received before timeout")
	}

	path, err := r.writer.SavePNG(domain.ModeRdp, target, fb.Image())
	if err != nil {
		return domain.ReportMessage{}, err
	}

	logger.Info("captured frame", "file", path, "rects", applied)
	return domain.NewSuccessMessage(domain.ModeRdp, target, path), nil
}

// receiveBitmaps consume PDUs hasta quiet period sin datos o desconexión.
// Retorna cuántos rectángulos de bitmap se aplicaron.
func (r *RDP) receiveBitmaps(conn net.Conn, rc *rdpConn, fb *frame.Framebuffer, logger logx.Logger) (int, error) {
	applied := 0

	for {
		if err := conn.SetReadDeadline(time.Now().Add(r.quiet)); err != nil {
			return applied, errors.Wrap(errors.ErrConnection, err.Error())
		}

		first, err := rc.br.ReadByte()
		if err != nil {
			if isQuiet(err) || isDisconnect(err) {
				return applied, nil
			}
			return applied, errors.Wrap(errors.ErrConnection, "reading pdu: "+err.Error())
		}

		if first == tpktVersion {
			// PDU de canal lento: no transportan bitmaps en esta fase.
			rc.br.UnreadByte()
			if _, err := rc.readTPKT(); err != nil {
				if isQuiet(err) || isDisconnect(err) {
					return applied, nil
				}
				return applied, err
			}
			logger.Debug("skipped slow-path pdu")
			continue
		}

		payload, err := rc.readFastpathBody(first)
		if err != nil {
			if isQuiet(err) || isDisconnect(err) {
				return applied, nil
			}
			return applied, err
		}

		n, err := applyFastpathUpdates(payload, fb, logger)
		applied += n
		if err != nil {
			return applied, err
		}
	}
}

// readFastpathBody lee el cuerpo de un PDU fastpath dado su primer byte:
// longitud en 1 o 2 bytes (bit alto = forma larga), incluyendo la cabecera.
func (r *rdpConn) readFastpathBody(header uint8) ([]byte, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return nil, err
	}
	length := int(b)
	headerLen := 2
	if b&0x80 != 0 {
		b2, err := r.br.ReadByte()
		if err != nil {
			return nil, err
		}
		length = int(b&0x7F)<<8 | int(b2)
		headerLen = 3
	}
	if length < headerLen {
		return nil, errors.Wrapf(errors.ErrProtocol, "fastpath length %d too short", length)
	}

	body := make([]byte, length-headerLen)
	if _, err := io.ReadFull(r.br, body); err != nil {
		return nil, err
	}
	if header&0x80 != 0 {
		return nil, errors.Wrap(errors.ErrProtocol, "encrypted fastpath pdu in standard security session")
	}
	return body, nil
}

// applyFastpathUpdates recorre las actualizaciones de un PDU fastpath y
// aplica las de tipo bitmap; el resto se salta con un log.
func applyFastpathUpdates(body []byte, fb *frame.Framebuffer, logger logx.Logger) (int, error) {
	const (
		updateTypeBitmap  uint8 = 0x01
		compressionUsed   uint8 = 0x2
		fragmentationMask uint8 = 0x30
	)

	applied := 0
	for len(body) > 0 {
		if len(body) < 3 {
			return applied, errors.Wrap(errors.ErrProtocol, "truncated fastpath update header")
		}
		updateHeader := body[0]
		updateCode := updateHeader & 0x0F
		offset := 1

		if (updateHeader>>6)&compressionUsed != 0 {
			// compressionFlags presente; lo saltamos.
			offset++
		}
		if len(body) < offset+2 {
			return applied, errors.Wrap(errors.ErrProtocol, "truncated fastpath update size")
		}
		size := int(binary.LittleEndian.Uint16(body[offset:]))
		offset += 2
		if len(body) < offset+size {
			return applied, errors.Wrapf(errors.ErrProtocol,
				"fastpath update size %d exceeds pdu", size)
		}
		data := body[offset : offset+size]
		body = body[offset+size:]

		if updateHeader&fragmentationMask != 0 {
			logger.Debug("skipped fragmented fastpath update")
			continue
		}
		if updateCode != updateTypeBitmap {
			logger.Debug("skipped fastpath update", "code", updateCode)
			continue
		}

		n, err := applyBitmapUpdate(data, fb, logger)
		applied += n
		if err != nil {
			return applied, err
		}
	}
	return applied, nil
}

// applyBitmapUpdate parsea un TS_UPDATE_BITMAP_DATA y aplica cada
// rectángulo sin comprimir a través del decoder compartido.
func applyBitmapUpdate(data []byte, fb *frame.Framebuffer, logger logx.Logger) (int, error) {
	if len(data) < 4 {
		return 0, errors.Wrap(errors.ErrProtocol, "truncated bitmap update")
	}
	updateType := binary.LittleEndian.Uint16(data[0:])
	if updateType != 0x0001 {
		logger.Debug("skipped non-bitmap update payload", "type", updateType)
		return 0, nil
	}
	numRects := int(binary.LittleEndian.Uint16(data[2:]))
	data = data[4:]

	applied := 0
	for i := 0; i < numRects; i++ {
		if len(data) < 18 {
			return applied, errors.Wrap(errors.ErrProtocol, "truncated bitmap rect header")
		}
		destLeft := binary.LittleEndian.Uint16(data[0:])
		destTop := binary.LittleEndian.Uint16(data[2:])
		destRight := binary.LittleEndian.Uint16(data[4:])
		destBottom := binary.LittleEndian.Uint16(data[6:])
		width := binary.LittleEndian.Uint16(data[8:])
		height := binary.LittleEndian.Uint16(data[10:])
		bitsPerPixel := binary.LittleEndian.Uint16(data[12:])
		flags := binary.LittleEndian.Uint16(data[14:])
		bitmapLength := int(binary.LittleEndian.Uint16(data[16:]))
		data = data[18:]

		if len(data) < bitmapLength {
			return applied, errors.Wrapf(errors.ErrProtocol,
				"bitmap length %d exceeds pdu", bitmapLength)
		}
		bitmap := data[:bitmapLength]
		data = data[bitmapLength:]

		const bitmapCompression = 0x0001
		if flags&bitmapCompression != 0 {
			logger.Debug("skipped compressed bitmap rect")
			continue
		}

		var format frame.PixelFormat
		switch bitsPerPixel {
		case 16:
			format = frame.RGB565()
		case 32:
			format = frame.XRGB8888()
		default:
			logger.Debug("skipped bitmap rect with unsupported depth", "bpp", bitsPerPixel)
			continue
		}

		rect, err := topDownRect(bitmap, width, height, destRight-destLeft+1, destBottom-destTop+1, format)
		if err != nil {
			logger.Debug("skipped undecodable bitmap rect", "error", err.Error())
			continue
		}

		err = fb.PutRect(destLeft, destTop, destRight-destLeft+1, destBottom-destTop+1, format, rect)
		if err != nil {
			// Fuera del lienzo o corto: se descarta el rect, no la sesión.
			logger.Debug("skipped bitmap rect", "error", err.Error())
			continue
		}
		applied++
	}
	return applied, nil
}

// topDownRect convierte el bitmap del wire (filas de abajo arriba, con el
// ancho alineado) al rect denso de arriba abajo que espera el framebuffer.
func topDownRect(bitmap []byte, bmpWidth, bmpHeight, rectWidth, rectHeight uint16, format frame.PixelFormat) ([]byte, error) {
	bpp, err := format.BytesPerPixel()
	if err != nil {
		return nil, err
	}
	if bmpWidth < rectWidth || bmpHeight < rectHeight {
		return nil, errors.Wrapf(errors.ErrProtocol,
			"bitmap %dx%d smaller than destination %dx%d", bmpWidth, bmpHeight, rectWidth, rectHeight)
	}
	stride := int(bmpWidth) * bpp
	if stride*int(bmpHeight) > len(bitmap) {
		return nil, errors.Wrapf(errors.ErrProtocol,
			"bitmap data %d bytes short of %dx%d", len(bitmap), bmpWidth, bmpHeight)
	}

	rowBytes := int(rectWidth) * bpp
	out := make([]byte, rowBytes*int(rectHeight))
	for row := 0; row < int(rectHeight); row++ {
		src := (int(bmpHeight) - 1 - row) * stride
		copy(out[row*rowBytes:(row+1)*rowBytes], bitmap[src:src+rowBytes])
	}
	return out, nil
}

func isQuiet(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
