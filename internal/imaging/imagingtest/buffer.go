// Package imagingtest provides an in-memory working buffer that records the
// operations applied to it.
package imagingtest

import (
	"fmt"
	"image/color"

	"github.com/dunamismax/pixelvault/internal/imaging"
)

type Buffer struct {
	W, H     int
	Space    imaging.ColorSpace
	Embedded *imaging.Profile
	Calls    []string
	Closed   bool
	// FailOn makes the named operation return an error.
	FailOn string
}

func NewBuffer(width, height int) *Buffer {
	return &Buffer{W: width, H: height, Space: imaging.ColorSpaceSRGB}
}

func (b *Buffer) record(call string) error {
	b.Calls = append(b.Calls, call)
	if b.FailOn != "" && b.FailOn == call {
		return fmt.Errorf("%s failed", call)
	}
	return nil
}

func (b *Buffer) Width() int { return b.W }
func (b *Buffer) Height() int { return b.H }
func (b *Buffer) ColorSpace() imaging.ColorSpace { return b.Space }
func (b *Buffer) Profile() *imaging.Profile { return b.Embedded }
func (b *Buffer) Close() { b.Closed = true }

func (b *Buffer) AttachProfile(p imaging.Profile) error {
	b.Embedded = &p
	return b.record("attach:" + p.Name)
}

func (b *Buffer) TransformProfile(p imaging.Profile) error {
	b.Embedded = &p
	return b.record("transform:" + p.Name)
}

func (b *Buffer) SetColorSpace(cs imaging.ColorSpace) error {
	b.Space = cs
	return b.record("colorspace:" + string(cs))
}

func (b *Buffer) Clone() (imaging.Buffer, error) {
	clone := *b
	clone.Calls = nil
	return &clone, b.record("clone")
}

func (b *Buffer) Resize(width, height int) error {
	b.W, b.H = width, height
	return b.record(fmt.Sprintf("resize:%dx%d", width, height))
}

func (b *Buffer) Crop(x, y, width, height int) error {
	b.W, b.H = width, height
	return b.record(fmt.Sprintf("crop:%d,%d,%dx%d", x, y, width, height))
}

func (b *Buffer) Rotate(degrees float64, _ color.Color) error {
	if int(degrees)%180 != 0 && int(degrees)%90 == 0 {
		b.W, b.H = b.H, b.W
	}
	return b.record(fmt.Sprintf("rotate:%g", degrees))
}

func (b *Buffer) Flip(d imaging.Direction) error {
	if d == imaging.Horizontal {
		return b.record("flip:horizontal")
	}
	return b.record("flip:vertical")
}

func (b *Buffer) Transpose() error {
	b.W, b.H = b.H, b.W
	return b.record("transpose")
}

func (b *Buffer) Transverse() error {
	b.W, b.H = b.H, b.W
	return b.record("transverse")
}

func (b *Buffer) Grayscale() error {
	b.Space = imaging.ColorSpaceGray
	return b.record("grayscale")
}

func (b *Buffer) Blur(sigma float64) error { return b.record(fmt.Sprintf("blur:%g", sigma)) }
func (b *Buffer) Sharpen(sigma float64) error { return b.record(fmt.Sprintf("sharpen:%g", sigma)) }
func (b *Buffer) Contrast(percent float64) error { return b.record(fmt.Sprintf("contrast:%g", percent)) }

func (b *Buffer) Strip() error {
	b.Embedded = nil
	return b.record("strip")
}

func (b *Buffer) Watermark(w imaging.Watermark) error {
	return b.record("watermark:" + w.Text)
}

var _ imaging.Buffer = (*Buffer)(nil)
