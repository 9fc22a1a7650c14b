package raster

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/dunamismax/pixelvault/internal/imaging"
)

const watermarkPadding = 12

func (b *Buffer) Watermark(w imaging.Watermark) error {
	text := strings.TrimSpace(w.Text)
	if text == "" {
		return errors.New("watermark text is empty")
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Width(), b.Height()))
	draw.Draw(dst, dst.Bounds(), b.img, b.img.Bounds().Min, draw.Src)

	face := basicfont.Face7x13
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	height := metrics.Height.Ceil()

	drawer := &font.Drawer{Dst: dst, Face: face}
	width := drawer.MeasureString(text).Ceil()
	x, baseline := watermarkPosition(dst.Bounds(), width, height, ascent, w.Gravity)

	alpha := uint8(math.Round(w.NormalizedOpacity() * 255))
	drawer.Src = image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: alpha})
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)

	return b.replace(dst)
}

// watermarkPosition returns the left edge and baseline for a text box of
// textWidth x textHeight inside bounds.
func watermarkPosition(bounds image.Rectangle, textWidth, textHeight, ascent int, gravity imaging.Gravity) (int, int) {
	minX, minY := bounds.Min.X, bounds.Min.Y
	maxX, maxY := bounds.Max.X, bounds.Max.Y

	left := minX + watermarkPadding
	center := minX + (bounds.Dx()-textWidth)/2
	right := maxX - textWidth - watermarkPadding

	top := minY + watermarkPadding + ascent
	middle := minY + (bounds.Dy()-textHeight)/2 + ascent
	bottom := maxY - watermarkPadding

	var x, y int
	switch gravity {
	case imaging.GravityNorthWest:
		x, y = left, top
	case imaging.GravityNorth:
		x, y = center, top
	case imaging.GravityNorthEast:
		x, y = right, top
	case imaging.GravityWest:
		x, y = left, middle
	case imaging.GravityCenter:
		x, y = center, middle
	case imaging.GravityEast:
		x, y = right, middle
	case imaging.GravitySouthWest:
		x, y = left, bottom
	case imaging.GravitySouth:
		x, y = center, bottom
	default:
		x, y = right, bottom
	}
	return clamp(x, minX, maxX), clamp(y, minY+ascent, maxY)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
