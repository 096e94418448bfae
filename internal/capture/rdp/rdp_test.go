// internal/capture/rdp/rdp_test.go
package rdp

import (
	"context"
	"encoding/binary"
	"image/png"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"ocular/internal/capture/frame"
	"ocular/internal/core/domain"
	"ocular/internal/core/ports"
	"ocular/internal/platform/errors"
	"ocular/internal/platform/registry"
	"ocular/internal/testutil"
)

func scriptedServer(t *testing.T, fn func(c net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		fn(c)
	}()
	return ln.Addr().String()
}

func addrTarget(t *testing.T, addr string) domain.Target {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	testutil.AssertNoError(t, err)
	port, err := strconv.Atoi(portStr)
	testutil.AssertNoError(t, err)
	target, err := domain.NewAddressTarget(domain.ModeRdp, host, port)
	testutil.AssertNoError(t, err)
	return target
}

func newTestCapturer(t *testing.T, quiet time.Duration) *RDP {
	t.Helper()
	r, err := New(ports.CaptureConfig{
		OutputDir:      t.TempDir(),
		ConnectTimeout: 2 * time.Second,
		QuietPeriod:    quiet,
	})
	testutil.AssertNoError(t, err)
	return r
}

// tpkt frames a payload the way the server side would.
func tpkt(payload []byte) []byte {
	out := []byte{tpktVersion, 0, 0, 0}
	binary.BigEndian.PutUint16(out[2:], uint16(4+len(payload)))
	return append(out, payload...)
}

// connectionConfirm builds the X.224 CC payload with an attached
// negotiation structure (negType 0 = none attached).
func connectionConfirm(negType uint8, value uint32) []byte {
	body := []byte{x224ConnectionConfirm, 0, 0, 0, 0, 0}
	if negType != 0 {
		neg := make([]byte, 8)
		neg[0] = negType
		binary.LittleEndian.PutUint16(neg[2:], 8)
		binary.LittleEndian.PutUint32(neg[4:], value)
		body = append(body, neg...)
	}
	return append([]byte{uint8(len(body))}, body...)
}

func serveNegotiation(t *testing.T, c net.Conn) {
	t.Helper()
	// Client CR: 4-byte TPKT header + 15-byte X.224 payload.
	if _, err := io.CopyN(io.Discard, c, 19); err != nil {
		t.Errorf("server read: %v", err)
		return
	}
	c.Write(tpkt(connectionConfirm(negTypeResponse, protocolRDP)))
}

// red565Rect builds a fastpath PDU carrying one uncompressed 16bpp bitmap
// rect of the given size filled with pure red.
func red565Rect(left, top, width, height uint16) []byte {
	bitmap := make([]byte, int(width)*int(height)*2)
	for i := 0; i < len(bitmap); i += 2 {
		binary.LittleEndian.PutUint16(bitmap[i:], 0xF800)
	}

	rect := make([]byte, 18)
	binary.LittleEndian.PutUint16(rect[0:], left)
	binary.LittleEndian.PutUint16(rect[2:], top)
	binary.LittleEndian.PutUint16(rect[4:], left+width-1)
	binary.LittleEndian.PutUint16(rect[6:], top+height-1)
	binary.LittleEndian.PutUint16(rect[8:], width)
	binary.LittleEndian.PutUint16(rect[10:], height)
	binary.LittleEndian.PutUint16(rect[12:], 16) // bits per pixel
	binary.LittleEndian.PutUint16(rect[14:], 0)  // flags: uncompressed
	binary.LittleEndian.PutUint16(rect[16:], uint16(len(bitmap)))

	update := make([]byte, 4)
	binary.LittleEndian.PutUint16(update[0:], 0x0001) // UPDATETYPE_BITMAP
	binary.LittleEndian.PutUint16(update[2:], 1)      // one rect
	update = append(update, rect...)
	update = append(update, bitmap...)

	// Fastpath update: header (bitmap code), size, payload.
	fp := []byte{0x01, 0, 0}
	binary.LittleEndian.PutUint16(fp[1:], uint16(len(update)))
	fp = append(fp, update...)

	// Fastpath PDU: output header, one-byte length including both.
	pdu := []byte{0x00, uint8(2 + len(fp))}
	return append(pdu, fp...)
}

func TestCaptureBitmapFrame(t *testing.T) {
	addr := scriptedServer(t, func(c net.Conn) {
		serveNegotiation(t, c)
		c.Write(red565Rect(0, 0, 4, 4))
		// Connection drop finalizes the session without waiting out the
		// quiet period.
	})

	r := newTestCapturer(t, time.Second)
	msg, err := r.Capture(context.Background(), addrTarget(t, addr))
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, msg.OK())

	f, err := os.Open(filepath.Join(r.cfg.OutputDir, msg.File))
	testutil.AssertNoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	testutil.AssertNoError(t, err)

	red, _, _, _ := img.At(2, 2).RGBA()
	testutil.AssertEqual(t, uint32(0xF8F8), red)
}

func TestCaptureQuietPeriodWithoutBitmapsFails(t *testing.T) {
	addr := scriptedServer(t, func(c net.Conn) {
		serveNegotiation(t, c)
		time.Sleep(500 * time.Millisecond) // stay connected, send nothing
	})

	r := newTestCapturer(t, 100*time.Millisecond)
	_, err := r.Capture(context.Background(), addrTarget(t, addr))
	testutil.AssertError(t, err)
	testutil.AssertTrue(t, errors.IsProtocol(err))
}

func TestCaptureQuietPeriodFinalizesWithBitmaps(t *testing.T) {
	addr := scriptedServer(t, func(c net.Conn) {
		serveNegotiation(t, c)
		c.Write(red565Rect(0, 0, 2, 2))
		time.Sleep(500 * time.Millisecond)
	})

	r := newTestCapturer(t, 100*time.Millisecond)
	msg, err := r.Capture(context.Background(), addrTarget(t, addr))
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, msg.OK())
}

func TestCaptureNegotiationFailure(t *testing.T) {
	addr := scriptedServer(t, func(c net.Conn) {
		io.CopyN(io.Discard, c, 19)
		c.Write(tpkt(connectionConfirm(negTypeFailure, 0x05))) // CredSSP required
	})

	r := newTestCapturer(t, time.Second)
	_, err := r.Capture(context.Background(), addrTarget(t, addr))
	testutil.AssertError(t, err)
	testutil.AssertTrue(t, errors.IsUnsupportedAuth(err))
}

func TestCaptureNotAnRDPServer(t *testing.T) {
	addr := scriptedServer(t, func(c net.Conn) {
		io.CopyN(io.Discard, c, 19)
		c.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
	})

	r := newTestCapturer(t, time.Second)
	_, err := r.Capture(context.Background(), addrTarget(t, addr))
	testutil.AssertError(t, err)
	testutil.AssertTrue(t, errors.IsProtocol(err))
}

func TestCaptureSkipsSlowPathPDUs(t *testing.T) {
	addr := scriptedServer(t, func(c net.Conn) {
		serveNegotiation(t, c)
		c.Write(tpkt([]byte{2, 0xF0, 0x80})) // X.224 data PDU, no bitmaps
		c.Write(red565Rect(0, 0, 2, 2))
	})

	r := newTestCapturer(t, time.Second)
	msg, err := r.Capture(context.Background(), addrTarget(t, addr))
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, msg.OK())
}

func TestCaptureLegacyConfirmWithoutNegotiation(t *testing.T) {
	addr := scriptedServer(t, func(c net.Conn) {
		io.CopyN(io.Discard, c, 19)
		c.Write(tpkt(connectionConfirm(0, 0)))
		c.Write(red565Rect(0, 0, 2, 2))
	})

	r := newTestCapturer(t, time.Second)
	msg, err := r.Capture(context.Background(), addrTarget(t, addr))
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, msg.OK())
}

func TestTopDownRectFlipsRows(t *testing.T) {
	// 1x2 bitmap, 16bpp: wire bottom row first.
	bitmap := []byte{
		0x1F, 0x00, // blue (bottom row on the wire)
		0x00, 0xF8, // red (top row on the wire)
	}
	out, err := topDownRect(bitmap, 1, 2, 1, 2, frame.RGB565())
	testutil.AssertNoError(t, err)

	r, _, _, err := frame.DecodePixel(frame.RGB565(), out[0:2])
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, uint8(248), r)

	_, _, b, err := frame.DecodePixel(frame.RGB565(), out[2:4])
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, uint8(248), b)
}

func TestCaptureRegisteredGlobally(t *testing.T) {
	meta, ok := registry.Global().Metadata(domain.ModeRdp)
	testutil.AssertTrue(t, ok)
	testutil.AssertEqual(t, "rdp", meta.Name)
	testutil.AssertEqual(t, 3389, meta.DefaultPort)
}
