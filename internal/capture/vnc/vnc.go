// internal/capture/vnc/vnc.go
package vnc

import (
	"context"
	"io"

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
		domain.ModeVnc,
		func(cfg ports.CaptureConfig) (ports.Capturer, error) {
			return New(cfg)
		},
		ports.CapturerMetadata{
			Name:        "vnc",
			Description: "RFB 3.8 framebuffer capture (unauthenticated servers)",
			Mode:        domain.ModeVnc,
			DefaultPort: 5900,
		},
	); err != nil {
		logx.New().Warn("failed to register vnc capturer", "error", err.Error())
	}
}

// VNC captura un frame de servidores RFB. Cada llamada a Capture es una
// sesión independiente con su propia conexión, framebuffer y pixel format;
// la instancia solo comparte configuración inmutable.
type VNC struct {
	cfg    ports.CaptureConfig
	dialer *netx.Dialer
	writer *output.Writer
	logger logx.Logger
}

// New crea la familia VNC con su writer y dialer resueltos.
func New(cfg ports.CaptureConfig) (*VNC, error) {
	writer, err := output.NewWriter(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	return &VNC{
		cfg:    cfg,
		dialer: netx.NewDialer(cfg.ProxyURL, cfg.ConnectTimeout),
		writer: writer,
		logger: logx.New().With("capturer", "vnc"),
	}, nil
}

func (v *VNC) Name() string      { return "vnc" }
func (v *VNC) Mode() domain.Mode { return domain.ModeVnc }
func (v *VNC) Close() error      { return nil }

// Capture conecta, negocia RFB 3.8, pide un frame completo no incremental
// y lo persiste como PNG. Si el servidor corta la conexión tras el
// handshake se guarda lo recibido (parcial o en blanco) con un warning.
func (v *VNC) Capture(ctx context.Context, target domain.Target) (domain.ReportMessage, error) {
	logger := v.logger.With("target", target.String())

	conn, err := v.dialer.DialContext(ctx, target.Addr())
	if err != nil {
		return domain.ReportMessage{}, errors.Wrap(errors.ErrConnection, err.Error())
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	rfb := newRFBConn(conn)
	defer rfb.Close()

	init, offeredNone, err := rfb.handshake()
	if err != nil {
		return domain.ReportMessage{}, err
	}
	if !offeredNone {
		logger.Warn("server did not offer unauthenticated access, proceeded anyway")
	}

	logger.Debug("negotiated session",
		"desktop", init.Name,
		"size", int(init.Width)*int(init.Height),
		"format", init.Format.String(),
	)

	if !init.Format.Supported() {
		return domain.ReportMessage{}, errors.Wrapf(errors.ErrDecode,
			"unsupported pixel format %s", init.Format.String())
	}

	if err := rfb.setEncodings(encodingRaw, encodingCopyRect, encodingDesktopSize); err != nil {
		return domain.ReportMessage{}, err
	}
	if err := rfb.requestUpdate(init.Width, init.Height); err != nil {
		return domain.ReportMessage{}, err
	}

	fb := frame.NewFramebuffer(init.Width, init.Height)
	partial, err := v.receiveFrame(rfb, fb, init.Format, logger)
	if err != nil {
		return domain.ReportMessage{}, err
	}
	if partial {
		logger.Warn("server disconnected before a full frame, saving what was received")
	}

	path, err := v.writer.SavePNG(domain.ModeVnc, target, fb.Image())
	if err != nil {
		return domain.ReportMessage{}, err
	}

	logger.Info("captured frame", "file", path)
	return domain.NewSuccessMessage(domain.ModeVnc, target, path), nil
}

// errServerClosed marca una desconexión limpia del servidor; la sesión la
// degrada a frame parcial (o en blanco) en vez de fallar.
var errServerClosed = errors.Wrap(errors.ErrConnection, "server closed connection")

// connError clasifica un fallo de lectura del wire.
func connError(op string, err error) error {
	if isDisconnect(err) {
		return errServerClosed
	}
	return errors.Wrap(errors.ErrConnection, op+": "+err.Error())
}

// receiveFrame consume mensajes del servidor hasta completar un
// FramebufferUpdate entero. Una desconexión en cualquier punto retorna
// partial=true: lo que haya en el framebuffer (aunque esté en blanco) se
// guarda igual.
func (v *VNC) receiveFrame(rfb *rfbConn, fb *frame.Framebuffer, format frame.PixelFormat, logger logx.Logger) (bool, error) {
	for {
		var msgType uint8
		if err := rfb.read(&msgType); err != nil {
			if isDisconnect(err) {
				return true, nil
			}
			return false, connError("reading server message", err)
		}

		switch msgType {
		case msgFramebufferUpdate:
			done, err := v.applyUpdate(rfb, fb, format, logger)
			if err != nil {
				if err == errServerClosed {
					return true, nil
				}
				return false, err
			}
			if done {
				return false, nil
			}
			// DesktopSize: el framebuffer cambió, pedir el área nueva.
			if err := rfb.requestUpdate(uint16(fb.Width()), uint16(fb.Height())); err != nil {
				return false, err
			}

		case msgSetColourMapEntries:
			if err := rfb.skipColourMap(); err != nil {
				return false, err
			}

		case msgBell:
			// Un byte, sin payload.

		case msgServerCutText:
			if err := rfb.skipCutText(); err != nil {
				return false, err
			}

		default:
			return false, errors.Wrapf(errors.ErrProtocol, "unexpected server message type %d", msgType)
		}
	}
}

// applyUpdate procesa los rectángulos de un FramebufferUpdate. Retorna
// done=false cuando un DesktopSize reubicó el framebuffer y hay que pedir
// un frame nuevo.
func (v *VNC) applyUpdate(rfb *rfbConn, fb *frame.Framebuffer, format frame.PixelFormat, logger logx.Logger) (bool, error) {
	var header struct {
		Padding  uint8
		NumRects uint16
	}
	if err := rfb.read(&header); err != nil {
		return false, connError("reading update header", err)
	}

	bpp, err := format.BytesPerPixel()
	if err != nil {
		return false, err
	}

	for i := uint16(0); i < header.NumRects; i++ {
		var rect rectHeader
		if err := rfb.read(&rect); err != nil {
			return false, connError("reading rect header", err)
		}

		switch rect.Encoding {
		case encodingRaw:
			// Validar límites antes de reservar el buffer del rect.
			if int(rect.X)+int(rect.Width) > fb.Width() || int(rect.Y)+int(rect.Height) > fb.Height() {
				return false, errors.Wrapf(errors.ErrProtocol,
					"rect outside framebuffer: %s", rect.String())
			}
			data := make([]byte, int(rect.Width)*int(rect.Height)*bpp)
			if _, err := io.ReadFull(rfb.br, data); err != nil {
				return false, connError("reading raw rect", err)
			}
			if err := fb.PutRect(rect.X, rect.Y, rect.Width, rect.Height, format, data); err != nil {
				return false, err
			}

		case encodingCopyRect:
			var src struct{ X, Y uint16 }
			if err := rfb.read(&src); err != nil {
				return false, connError("reading copyrect source", err)
			}
			if err := fb.CopyRect(rect.X, rect.Y, rect.Width, rect.Height, src.X, src.Y); err != nil {
				return false, err
			}

		case encodingDesktopSize:
			logger.Debug("desktop resized", "width", rect.Width, "height", rect.Height)
			if rect.Width == 0 || rect.Height == 0 {
				return false, errors.Wrapf(errors.ErrProtocol,
					"server resized framebuffer to %dx%d", rect.Width, rect.Height)
			}
			*fb = *frame.NewFramebuffer(rect.Width, rect.Height)
			return false, nil

		default:
			return false, errors.Wrapf(errors.ErrProtocol,
				"server sent unrequested encoding: rect %s", rect.String())
		}
	}
	return true, nil
}

// skipColourMap consume un SetColourMapEntries. Solo negociamos true
// colour, pero algunos servidores lo envían igual.
func (r *rfbConn) skipColourMap() error {
	var header struct {
		Padding     uint8
		FirstColour uint16
		NumColours  uint16
	}
	if err := r.read(&header); err != nil {
		return errors.Wrap(errors.ErrConnection, "reading colour map header: "+err.Error())
	}
	if _, err := io.CopyN(io.Discard, r.br, int64(header.NumColours)*6); err != nil {
		return errors.Wrap(errors.ErrConnection, "discarding colour map: "+err.Error())
	}
	return nil
}

// skipCutText consume un ServerCutText.
func (r *rfbConn) skipCutText() error {
	var header struct {
		Padding [3]byte
		Length  uint32
	}
	if err := r.read(&header); err != nil {
		return errors.Wrap(errors.ErrConnection, "reading cut text header: "+err.Error())
	}
	if _, err := io.CopyN(io.Discard, r.br, int64(header.Length)); err != nil {
		return errors.Wrap(errors.ErrConnection, "discarding cut text: "+err.Error())
	}
	return nil
}

func isDisconnect(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
