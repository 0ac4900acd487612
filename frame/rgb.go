package frame

import (
	"fmt"
	"image"
	"image/color"
)

// Channels is the number of color channels in every RGB image
const Channels = 3

// Shape is the height and width of an image; channels are always 3
type Shape struct {
	Height int `json:"height"`
	Width  int `json:"width"`
}

// Valid reports whether both dimensions are positive
func (s Shape) Valid() bool {
	return s.Height > 0 && s.Width > 0
}

// Bytes returns the packed RGB size of an image of this shape
func (s Shape) Bytes() int {
	return s.Height * s.Width * Channels
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Height, s.Width, Channels)
}

// ChannelOrder describes the byte order of a packed 3-channel pixel
type ChannelOrder int

const (
	// OrderRGB is the canonical order used throughout the module
	OrderRGB ChannelOrder = iota

	// OrderBGR is the native order of many capture and decode libraries
	OrderBGR
)

func (o ChannelOrder) String() string {
	switch o {
	case OrderRGB:
		return "rgb"
	case OrderBGR:
		return "bgr"
	default:
		return "unknown"
	}
}

// RGB is an in-memory image of packed 8-bit RGB pixels, row major.
// Pix holds Rect.Dy() rows of Stride bytes.
type RGB struct {
	Pix    []uint8
	Stride int
	Rect   image.Rectangle
}

// NewRGB returns a zero-filled (black) image of the given shape
func NewRGB(s Shape) *RGB {
	w, h := max(s.Width, 0), max(s.Height, 0)
	return &RGB{
		Pix:    make([]uint8, w*h*Channels),
		Stride: w * Channels,
		Rect:   image.Rect(0, 0, w, h),
	}
}

// FromPacked wraps a copy of tightly packed pixel data, converting it to
// canonical RGB order
func FromPacked(s Shape, pix []byte, order ChannelOrder) (*RGB, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid frame shape %s", s)
	}
	if len(pix) != s.Bytes() {
		return nil, fmt.Errorf("frame buffer holds %d bytes, want %d for %s", len(pix), s.Bytes(), s)
	}

	img := NewRGB(s)
	copy(img.Pix, pix)

	switch order {
	case OrderRGB:
	case OrderBGR:
		for i := 0; i < len(img.Pix); i += Channels {
			img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
		}
	default:
		return nil, fmt.Errorf("unsupported channel order %d", order)
	}

	return img, nil
}

// FromImage converts any image to RGB, dropping alpha. Premultiplied colors
// are used as-is, which is exact for opaque images.
func FromImage(src image.Image) *RGB {
	if rgb, ok := src.(*RGB); ok {
		return rgb.Clone()
	}

	b := src.Bounds()
	img := NewRGB(Shape{Height: b.Dy(), Width: b.Dx()})
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := (y - b.Min.Y) * img.Stride
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(src.At(x, y)).(color.RGBA)
			img.Pix[off] = c.R
			img.Pix[off+1] = c.G
			img.Pix[off+2] = c.B
			off += Channels
		}
	}
	return img
}

// Shape returns the image dimensions
func (p *RGB) Shape() Shape {
	return Shape{Height: p.Rect.Dy(), Width: p.Rect.Dx()}
}

// ColorModel implements image.Image
func (p *RGB) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds implements image.Image
func (p *RGB) Bounds() image.Rectangle {
	return p.Rect
}

// At implements image.Image
func (p *RGB) At(x, y int) color.Color {
	return p.RGBAt(x, y)
}

// RGBAt returns the opaque color at (x, y), or transparent black outside bounds
func (p *RGB) RGBAt(x, y int) color.RGBA {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := p.PixOffset(x, y)
	s := p.Pix[i : i+Channels : i+Channels]
	return color.RGBA{R: s[0], G: s[1], B: s[2], A: 0xff}
}

// SetRGB sets the pixel at (x, y); points outside bounds are ignored
func (p *RGB) SetRGB(x, y int, r, g, b uint8) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}
	i := p.PixOffset(x, y)
	p.Pix[i] = r
	p.Pix[i+1] = g
	p.Pix[i+2] = b
}

// PixOffset returns the index of the first byte of the pixel at (x, y)
func (p *RGB) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*Channels
}

// Fill paints every pixel with one color
func (p *RGB) Fill(r, g, b uint8) {
	for i := 0; i+Channels <= len(p.Pix); i += Channels {
		p.Pix[i] = r
		p.Pix[i+1] = g
		p.Pix[i+2] = b
	}
}

// IsZero reports whether every byte of the image is zero
func (p *RGB) IsZero() bool {
	for _, v := range p.Pix {
		if v != 0 {
			return false
		}
	}
	return true
}

// Clone returns a deep copy
func (p *RGB) Clone() *RGB {
	pix := make([]uint8, len(p.Pix))
	copy(pix, p.Pix)
	return &RGB{Pix: pix, Stride: p.Stride, Rect: p.Rect}
}
