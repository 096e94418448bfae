// internal/capture/frame/format.go
package frame

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"ocular/internal/platform/errors"
)

// PixelFormat describe cómo el servidor empaqueta cada muestra de pixel.
// Lo declara el servidor durante la negociación y es de solo lectura
// durante la vida de la sesión.
type PixelFormat struct {
	BPP       uint8 // bits por pixel en el wire (16 o 32)
	Depth     uint8 // bits de color significativos
	BigEndian bool
	TrueColor bool

	RedMax   uint16
	GreenMax uint16
	BlueMax  uint16

	RedShift   uint8
	GreenShift uint8
	BlueShift  uint8
}

// RGB565 is the fixed 16bpp format RDP bitmap updates arrive in.
func RGB565() PixelFormat {
	return PixelFormat{
		BPP: 16, Depth: 16, TrueColor: true,
		RedMax: 31, GreenMax: 63, BlueMax: 31,
		RedShift: 11, GreenShift: 5, BlueShift: 0,
	}
}

// XRGB8888 is the fixed 32bpp format used for uncompressed 24-depth bitmaps.
func XRGB8888() PixelFormat {
	return PixelFormat{
		BPP: 32, Depth: 24, TrueColor: true,
		RedMax: 255, GreenMax: 255, BlueMax: 255,
		RedShift: 16, GreenShift: 8, BlueShift: 0,
	}
}

// BytesPerPixel derives the wire size of one sample. Only 16 and 32 bpp
// exist in the supported format set; anything else is a decode error.
func (f PixelFormat) BytesPerPixel() (int, error) {
	switch f.BPP {
	case 16:
		return 2, nil
	case 32:
		return 4, nil
	default:
		return 0, errors.Wrapf(errors.ErrDecode, "unsupported bits per pixel %d", f.BPP)
	}
}

// Supported reports whether the bpp/depth pair is in the decodable set.
func (f PixelFormat) Supported() bool {
	switch {
	case f.BPP == 16 && (f.Depth == 16 || f.Depth == 15):
		return true
	case f.BPP == 32 && f.Depth == 24:
		return true
	default:
		return false
	}
}

func (f PixelFormat) String() string {
	return fmt.Sprintf("bpp=%d depth=%d be=%v rgb_max=%d/%d/%d rgb_shift=%d/%d/%d",
		f.BPP, f.Depth, f.BigEndian,
		f.RedMax, f.GreenMax, f.BlueMax,
		f.RedShift, f.GreenShift, f.BlueShift)
}

// DecodePixel converts one wire-encoded sample into an 8-bit RGB triple.
// The sample is reinterpreted as an unsigned integer of width BPP honoring
// the declared endianness; each channel is extracted with
// (px >> shift) & max (max is always 2^n - 1, so it doubles as the mask)
// and sub-8-bit channels are promoted by shifting their significant bits to
// the top of the output byte, which preserves relative brightness.
func DecodePixel(f PixelFormat, sample []byte) (r, g, b uint8, err error) {
	if !f.Supported() {
		return 0, 0, 0, errors.Wrapf(errors.ErrDecode,
			"unsupported pixel format bpp=%d depth=%d", f.BPP, f.Depth)
	}

	var px uint32
	switch f.BPP {
	case 16:
		if len(sample) != 2 {
			return 0, 0, 0, errors.Wrapf(errors.ErrDecode,
				"16bpp sample needs 2 bytes, got %d", len(sample))
		}
		if f.BigEndian {
			px = uint32(binary.BigEndian.Uint16(sample))
		} else {
			px = uint32(binary.LittleEndian.Uint16(sample))
		}
	case 32:
		if len(sample) != 4 {
			return 0, 0, 0, errors.Wrapf(errors.ErrDecode,
				"32bpp sample needs 4 bytes, got %d", len(sample))
		}
		if f.BigEndian {
			px = binary.BigEndian.Uint32(sample)
		} else {
			px = binary.LittleEndian.Uint32(sample)
		}
	}

	r = promote(px, f.RedShift, f.RedMax)
	g = promote(px, f.GreenShift, f.GreenMax)
	b = promote(px, f.BlueShift, f.BlueMax)
	return r, g, b, nil
}

// promote extracts one channel and widens it to 8 bits. A channel that
// already spans 8 bits (max=255) needs no shift.
func promote(px uint32, shift uint8, max uint16) uint8 {
	v := (px >> shift) & uint32(max)
	width := bits.OnesCount16(max)
	if width < 8 {
		v <<= 8 - width
	}
	return uint8(v)
}
