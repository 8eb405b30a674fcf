package snapshot

import (
	"image"
	"image/color"
)

// BGR is a packed 24-bit blue/green/red image
//
// Rows are stored bottom-up unless TopDown is set: row y of the picture lives
// at byte offset (H-1-y)*Stride, the raw-video bitmap convention.
type BGR struct {
	Pix     []byte
	Stride  int
	Rect    image.Rectangle
	TopDown bool
}

// NewBGR wraps pix without copying
func NewBGR(pix []byte, width, height, stride int, topDown bool) *BGR {
	return &BGR{
		Pix:     pix,
		Stride:  stride,
		Rect:    image.Rect(0, 0, width, height),
		TopDown: topDown,
	}
}

// ColorModel implements image.Image
func (p *BGR) ColorModel() color.Model { return color.RGBAModel }

// Bounds implements image.Image
func (p *BGR) Bounds() image.Rectangle { return p.Rect }

// At implements image.Image
func (p *BGR) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return color.RGBA{}
	}
	off := p.PixOffset(x, y)
	return color.RGBA{R: p.Pix[off+2], G: p.Pix[off+1], B: p.Pix[off], A: 0xff}
}

// PixOffset returns the index of the first byte of pixel (x, y)
func (p *BGR) PixOffset(x, y int) int {
	row := y - p.Rect.Min.Y
	if !p.TopDown {
		row = p.Rect.Dy() - 1 - row
	}
	return row*p.Stride + (x-p.Rect.Min.X)*3
}

// RGBA converts the image to a top-down *image.RGBA, the fast path of the
// standard encoders
func (p *BGR) RGBA() *image.RGBA {
	b := p.Rect
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := p.PixOffset(b.Min.X, b.Min.Y+y)
		d := y * dst.Stride
		for x := 0; x < b.Dx(); x++ {
			dst.Pix[d+0] = p.Pix[src+2]
			dst.Pix[d+1] = p.Pix[src+1]
			dst.Pix[d+2] = p.Pix[src]
			dst.Pix[d+3] = 0xff
			src += 3
			d += 4
		}
	}
	return dst
}
