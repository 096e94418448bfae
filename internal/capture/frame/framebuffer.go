// internal/capture/frame/framebuffer.go
package frame

import (
	"image"
	"image/color"

	"ocular/internal/platform/errors"
)

// Framebuffer es el raster RGB8 que una sesión de captura va ensamblando.
// Lo posee exclusivamente una sesión: las escrituras llegan en secuencia
// desde el event loop de esa sesión y nunca se comparte entre goroutines.
type Framebuffer struct {
	img    *image.RGBA
	width  int
	height int
}

// NewFramebuffer allocates a raster sized from the server's reported
// screen dimensions. Pixels start zeroed (black, opaque after Image()).
func NewFramebuffer(width, height uint16) *Framebuffer {
	return &Framebuffer{
		img:    image.NewRGBA(image.Rect(0, 0, int(width), int(height))),
		width:  int(width),
		height: int(height),
	}
}

// Width retorna el ancho del raster en pixels.
func (fb *Framebuffer) Width() int { return fb.width }

// Height retorna el alto del raster en pixels.
func (fb *Framebuffer) Height() int { return fb.height }

// PutRect decodes a flat buffer of width*height wire samples and writes it
// at the rectangle's offset, rows top-to-bottom, columns left-to-right.
// Everything that can fail is validated up front so a rejected update
// leaves the raster untouched; pixels outside the rectangle are never
// written either way.
func (fb *Framebuffer) PutRect(left, top, width, height uint16, f PixelFormat, data []byte) error {
	bpp, err := f.BytesPerPixel()
	if err != nil {
		return err
	}
	if !f.Supported() {
		return errors.Wrapf(errors.ErrDecode,
			"unsupported pixel format bpp=%d depth=%d", f.BPP, f.Depth)
	}

	need := int(width) * int(height) * bpp
	if len(data) < need {
		return errors.Wrapf(errors.ErrDecode,
			"rect %dx%d needs %d bytes, got %d", width, height, need, len(data))
	}
	if int(left)+int(width) > fb.width || int(top)+int(height) > fb.height {
		return errors.Wrapf(errors.ErrDecode,
			"rect (%d,%d %dx%d) outside %dx%d raster",
			left, top, width, height, fb.width, fb.height)
	}

	idx := 0
	for y := int(top); y < int(top)+int(height); y++ {
		for x := int(left); x < int(left)+int(width); x++ {
			r, g, b, err := DecodePixel(f, data[idx:idx+bpp])
			if err != nil {
				return err
			}
			fb.img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 0xff})
			idx += bpp
		}
	}
	return nil
}

// CopyRect duplicates an already-decoded region inside the raster, as sent
// by the CopyRect encoding. Rows are copied top-to-bottom through a staging
// buffer so overlapping source and destination stay correct.
func (fb *Framebuffer) CopyRect(dstLeft, dstTop, width, height, srcLeft, srcTop uint16) error {
	if int(srcLeft)+int(width) > fb.width || int(srcTop)+int(height) > fb.height ||
		int(dstLeft)+int(width) > fb.width || int(dstTop)+int(height) > fb.height {
		return errors.Wrapf(errors.ErrDecode,
			"copyrect (%d,%d)->(%d,%d) %dx%d outside %dx%d raster",
			srcLeft, srcTop, dstLeft, dstTop, width, height, fb.width, fb.height)
	}

	staging := make([]color.RGBA, int(width)*int(height))
	i := 0
	for y := 0; y < int(height); y++ {
		for x := 0; x < int(width); x++ {
			staging[i] = fb.img.RGBAAt(int(srcLeft)+x, int(srcTop)+y)
			i++
		}
	}
	i = 0
	for y := 0; y < int(height); y++ {
		for x := 0; x < int(width); x++ {
			fb.img.SetRGBA(int(dstLeft)+x, int(dstTop)+y, staging[i])
			i++
		}
	}
	return nil
}

// At returns the decoded pixel at (x, y). Test and report helper.
func (fb *Framebuffer) At(x, y int) color.RGBA {
	return fb.img.RGBAAt(x, y)
}

// Image expone el raster ensamblado para codificarlo a PNG.
func (fb *Framebuffer) Image() image.Image {
	return fb.img
}
