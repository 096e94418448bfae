// internal/capture/web/card.go
package web

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Geometría de la tarjeta resumen.
const (
	cardWidth   = 800
	cardHeight  = 200
	cardPadding = 16
	lineHeight  = 20
	maxLineLen  = 110
)

var (
	cardBackground = color.RGBA{R: 0x1E, G: 0x1E, B: 0x2A, A: 0xFF}
	cardAccent     = color.RGBA{R: 0x4C, G: 0xAF, B: 0x91, A: 0xFF}
	cardText       = color.RGBA{R: 0xE8, G: 0xE8, B: 0xE8, A: 0xFF}
)

// renderCard pinta el resumen de la sonda en un PNG de tamaño fijo: URL en
// el color de acento, y debajo status, server, título y redirección.
func renderCard(result probeResult) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, cardWidth, cardHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(cardBackground), image.Point{}, draw.Src)

	// Franja de acento en el borde izquierdo.
	stripe := image.Rect(0, 0, 6, cardHeight)
	draw.Draw(img, stripe, image.NewUniform(cardAccent), image.Point{}, draw.Src)

	y := cardPadding + lineHeight
	for i, line := range result.summaryLines() {
		col := cardText
		if i == 0 {
			col = cardAccent
		}
		drawLine(img, truncate(line), cardPadding+8, y, col)
		y += lineHeight
		if y > cardHeight-cardPadding {
			break
		}
	}
	return img
}

func drawLine(img *image.RGBA, text string, x, y int, col color.RGBA) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func truncate(s string) string {
	if len(s) <= maxLineLen {
		return s
	}
	return s[:maxLineLen-3] + "..."
}
