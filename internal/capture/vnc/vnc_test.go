// internal/capture/vnc/vnc_test.go
package vnc

import (
	"bytes"
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

	"ocular/internal/core/domain"
	"ocular/internal/core/ports"
	"ocular/internal/platform/errors"
	"ocular/internal/platform/registry"
	"ocular/internal/testutil"
)

func TestChooseSecurityType(t *testing.T) {
	tests := []struct {
		name        string
		offered     []uint8
		wantOffered bool
	}{
		{"none only", []uint8{secTypeNone}, true},
		{"none among others", []uint8{secTypeVNCAuth, secTypeNone, 16}, true},
		{"vnc auth only", []uint8{secTypeVNCAuth}, false},
		{"empty list", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, offered := chooseSecurityType(tt.offered)
			testutil.AssertEqual(t, secTypeNone, selected)
			testutil.AssertEqual(t, tt.wantOffered, offered)
		})
	}
}

// scriptedServer accepts one connection and drives it with fn.
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

func be(t *testing.T, c net.Conn, vs ...any) {
	t.Helper()
	for _, v := range vs {
		if err := binary.Write(c, binary.BigEndian, v); err != nil {
			t.Errorf("server write: %v", err)
			return
		}
	}
}

func discard(t *testing.T, c net.Conn, n int) {
	t.Helper()
	if _, err := io.CopyN(io.Discard, c, int64(n)); err != nil {
		t.Errorf("server read: %v", err)
	}
}

// xrgbPixelFormat is the 16-byte wire form of little-endian XRGB 32/24.
func xrgbPixelFormat() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint8(32))   // bpp
	binary.Write(&buf, binary.BigEndian, uint8(24))   // depth
	binary.Write(&buf, binary.BigEndian, uint8(0))    // big endian
	binary.Write(&buf, binary.BigEndian, uint8(1))    // true colour
	binary.Write(&buf, binary.BigEndian, uint16(255)) // red max
	binary.Write(&buf, binary.BigEndian, uint16(255)) // green max
	binary.Write(&buf, binary.BigEndian, uint16(255)) // blue max
	binary.Write(&buf, binary.BigEndian, uint8(16))   // red shift
	binary.Write(&buf, binary.BigEndian, uint8(8))    // green shift
	binary.Write(&buf, binary.BigEndian, uint8(0))    // blue shift
	buf.Write([]byte{0, 0, 0})                        // padding
	return buf.Bytes()
}

// serveHandshake drives version, security (None) and ServerInit for a
// width x height XRGB session, then leaves the connection at the point
// where the client sends SetEncodings.
func serveHandshake(t *testing.T, c net.Conn, width, height uint16) {
	t.Helper()
	c.Write([]byte("RFB 003.008\n"))
	discard(t, c, 12) // client version

	be(t, c, uint8(1), secTypeNone)
	discard(t, c, 1) // selected type
	be(t, c, uint32(0))

	discard(t, c, 1) // client init
	be(t, c, width, height)
	c.Write(xrgbPixelFormat())
	name := []byte("scripted")
	be(t, c, uint32(len(name)))
	c.Write(name)

	discard(t, c, 16) // SetEncodings: 4 header + 3 encodings
	discard(t, c, 10) // FramebufferUpdateRequest
}

func newTestCapturer(t *testing.T) *VNC {
	t.Helper()
	v, err := New(ports.CaptureConfig{
		OutputDir:      t.TempDir(),
		ConnectTimeout: 2 * time.Second,
	})
	testutil.AssertNoError(t, err)
	return v
}

func addrTarget(t *testing.T, addr string) domain.Target {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	testutil.AssertNoError(t, err)
	port, err := strconv.Atoi(portStr)
	testutil.AssertNoError(t, err)
	target, err := domain.NewAddressTarget(domain.ModeVnc, host, port)
	testutil.AssertNoError(t, err)
	return target
}

func TestCaptureFullFrame(t *testing.T) {
	addr := scriptedServer(t, func(c net.Conn) {
		serveHandshake(t, c, 2, 2)

		// One full-frame raw update: top row red, bottom row blue.
		be(t, c, msgFramebufferUpdate, uint8(0), uint16(1))
		be(t, c, uint16(0), uint16(0), uint16(2), uint16(2), encodingRaw)
		c.Write([]byte{
			0x00, 0x00, 0xFF, 0x00, 0x00, 0x00, 0xFF, 0x00, // red, little endian XRGB
			0xFF, 0x00, 0x00, 0x00, 0xFF, 0x00, 0x00, 0x00, // blue
		})
	})

	v := newTestCapturer(t)
	msg, err := v.Capture(context.Background(), addrTarget(t, addr))
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, msg.OK())
	testutil.AssertFalse(t, filepath.IsAbs(msg.File))

	f, err := os.Open(filepath.Join(v.cfg.OutputDir, msg.File))
	testutil.AssertNoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	testutil.AssertNoError(t, err)

	r, _, _, _ := img.At(0, 0).RGBA()
	testutil.AssertEqual(t, uint32(0xFFFF), r)
	_, _, b, _ := img.At(1, 1).RGBA()
	testutil.AssertEqual(t, uint32(0xFFFF), b)
}

func TestCapturePartialFrameOnDisconnect(t *testing.T) {
	addr := scriptedServer(t, func(c net.Conn) {
		serveHandshake(t, c, 2, 1)

		// Announce two rects, deliver one, then drop the connection.
		be(t, c, msgFramebufferUpdate, uint8(0), uint16(2))
		be(t, c, uint16(0), uint16(0), uint16(1), uint16(1), encodingRaw)
		c.Write([]byte{0x00, 0x00, 0xFF, 0x00})
	})

	v := newTestCapturer(t)
	msg, err := v.Capture(context.Background(), addrTarget(t, addr))
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, msg.OK())
}

func TestCaptureBlankFrameOnImmediateDisconnect(t *testing.T) {
	addr := scriptedServer(t, func(c net.Conn) {
		// Handshake succeeds, then the server hangs up without ever
		// sending an update. A blank image beats no output.
		serveHandshake(t, c, 3, 2)
	})

	v := newTestCapturer(t)
	msg, err := v.Capture(context.Background(), addrTarget(t, addr))
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, msg.OK())

	f, err := os.Open(filepath.Join(v.cfg.OutputDir, msg.File))
	testutil.AssertNoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 3, img.Bounds().Dx())
	testutil.AssertEqual(t, 2, img.Bounds().Dy())
}

func TestCaptureAuthRequired(t *testing.T) {
	addr := scriptedServer(t, func(c net.Conn) {
		c.Write([]byte("RFB 003.008\n"))
		discard(t, c, 12)

		be(t, c, uint8(1), secTypeVNCAuth)
		discard(t, c, 1)
		be(t, c, uint32(1)) // SecurityResult: failed
		reason := []byte("authentication required")
		be(t, c, uint32(len(reason)))
		c.Write(reason)
	})

	v := newTestCapturer(t)
	_, err := v.Capture(context.Background(), addrTarget(t, addr))
	testutil.AssertError(t, err)
	testutil.AssertTrue(t, errors.IsUnsupportedAuth(err))
}

func TestCaptureServerRejectsConnection(t *testing.T) {
	addr := scriptedServer(t, func(c net.Conn) {
		c.Write([]byte("RFB 003.008\n"))
		discard(t, c, 12)

		be(t, c, uint8(0)) // zero security types = rejection
		reason := []byte("too many connections")
		be(t, c, uint32(len(reason)))
		c.Write(reason)
	})

	v := newTestCapturer(t)
	_, err := v.Capture(context.Background(), addrTarget(t, addr))
	testutil.AssertError(t, err)
	testutil.AssertTrue(t, errors.IsProtocol(err))
}

func TestCaptureNotAnRFBServer(t *testing.T) {
	addr := scriptedServer(t, func(c net.Conn) {
		c.Write([]byte("SSH-2.0-Ope\n"))
	})

	v := newTestCapturer(t)
	_, err := v.Capture(context.Background(), addrTarget(t, addr))
	testutil.AssertError(t, err)
	testutil.AssertTrue(t, errors.IsProtocol(err))
}

func TestCaptureUnsupportedPixelFormat(t *testing.T) {
	addr := scriptedServer(t, func(c net.Conn) {
		c.Write([]byte("RFB 003.008\n"))
		discard(t, c, 12)
		be(t, c, uint8(1), secTypeNone)
		discard(t, c, 1)
		be(t, c, uint32(0))
		discard(t, c, 1)

		be(t, c, uint16(4), uint16(4))
		// 8bpp palette format is outside the supported set.
		c.Write([]byte{8, 8, 0, 0, 0, 7, 0, 7, 0, 3, 0, 3, 6, 0, 0, 0})
		be(t, c, uint32(0))
	})

	v := newTestCapturer(t)
	_, err := v.Capture(context.Background(), addrTarget(t, addr))
	testutil.AssertError(t, err)
	testutil.AssertTrue(t, errors.IsDecode(err))
}

func TestCaptureDesktopResizeRequestsNewFrame(t *testing.T) {
	addr := scriptedServer(t, func(c net.Conn) {
		serveHandshake(t, c, 4, 4)

		// First update only resizes the desktop.
		be(t, c, msgFramebufferUpdate, uint8(0), uint16(1))
		be(t, c, uint16(0), uint16(0), uint16(2), uint16(2), encodingDesktopSize)

		// Client re-requests; serve the full 2x2 frame.
		discard(t, c, 10)
		be(t, c, msgFramebufferUpdate, uint8(0), uint16(1))
		be(t, c, uint16(0), uint16(0), uint16(2), uint16(2), encodingRaw)
		c.Write(bytes.Repeat([]byte{0x00, 0xFF, 0x00, 0x00}, 4)) // green
	})

	v := newTestCapturer(t)
	msg, err := v.Capture(context.Background(), addrTarget(t, addr))
	testutil.AssertNoError(t, err)

	f, err := os.Open(filepath.Join(v.cfg.OutputDir, msg.File))
	testutil.AssertNoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, 2, img.Bounds().Dx())

	_, g, _, _ := img.At(0, 0).RGBA()
	testutil.AssertEqual(t, uint32(0xFFFF), g)
}

func TestCaptureConsumesBellAndCutText(t *testing.T) {
	addr := scriptedServer(t, func(c net.Conn) {
		serveHandshake(t, c, 1, 1)

		be(t, c, msgBell)
		be(t, c, msgServerCutText, [3]byte{}, uint32(2))
		c.Write([]byte("hi"))
		be(t, c, msgFramebufferUpdate, uint8(0), uint16(1))
		be(t, c, uint16(0), uint16(0), uint16(1), uint16(1), encodingRaw)
		c.Write([]byte{0x10, 0x20, 0x30, 0x00})
	})

	v := newTestCapturer(t)
	msg, err := v.Capture(context.Background(), addrTarget(t, addr))
	testutil.AssertNoError(t, err)
	testutil.AssertTrue(t, msg.OK())
}

func TestCaptureRegisteredGlobally(t *testing.T) {
	meta, ok := registry.Global().Metadata(domain.ModeVnc)
	testutil.AssertTrue(t, ok)
	testutil.AssertEqual(t, "vnc", meta.Name)
	testutil.AssertEqual(t, 5900, meta.DefaultPort)
}
