//go:build govips && cgo

package vips

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/dunamismax/pixelvault/internal/imaging"
)

// embeddedProfile stands for an ICC profile that came with the input bytes.
var embeddedProfile = imaging.Profile{Name: "embedded"}

type Buffer struct {
	ref     *govips.ImageRef
	profile *imaging.Profile
}

func newBuffer(ref *govips.ImageRef) *Buffer {
	b := &Buffer{ref: ref}
	if ref.HasICCProfile() {
		p := embeddedProfile
		b.profile = &p
	}
	return b
}

// Ref exposes the underlying libvips image.
func (b *Buffer) Ref() *govips.ImageRef { return b.ref }

func (b *Buffer) Width() int { return b.ref.Width() }

func (b *Buffer) Height() int { return b.ref.Height() }

func (b *Buffer) ColorSpace() imaging.ColorSpace {
	switch b.ref.Interpretation() {
	case govips.InterpretationCMYK:
		return imaging.ColorSpaceCMYK
	case govips.InterpretationBW, govips.InterpretationGrey16:
		return imaging.ColorSpaceGray
	case govips.InterpretationSRGB, govips.InterpretationRGB, govips.InterpretationRGB16:
		return imaging.ColorSpaceSRGB
	default:
		return imaging.ColorSpaceUnknown
	}
}

func (b *Buffer) Profile() *imaging.Profile { return b.profile }

func (b *Buffer) Close() { b.ref.Close() }

// AttachProfile records p as the input profile used by the next
// TransformProfile call.
func (b *Buffer) AttachProfile(p imaging.Profile) error {
	b.profile = &p
	return nil
}

func (b *Buffer) TransformProfile(p imaging.Profile) error {
	var err error
	if b.profile != nil && b.profile.Name != embeddedProfile.Name {
		err = b.ref.TransformICCProfileWithFallback(p.Path, b.profile.Path)
	} else {
		err = b.ref.TransformICCProfile(p.Path)
	}
	if err != nil {
		return fmt.Errorf("vips icc transform to %s: %w", p.Name, err)
	}
	b.profile = &p
	return nil
}

func (b *Buffer) SetColorSpace(cs imaging.ColorSpace) error {
	var interpretation govips.Interpretation
	switch cs {
	case imaging.ColorSpaceSRGB:
		interpretation = govips.InterpretationSRGB
	case imaging.ColorSpaceCMYK:
		interpretation = govips.InterpretationCMYK
	case imaging.ColorSpaceGray:
		interpretation = govips.InterpretationBW
	default:
		return fmt.Errorf("unsupported color space %q", cs)
	}
	if b.ref.Interpretation() == interpretation {
		return nil
	}
	return b.ref.ToColorSpace(interpretation)
}

func (b *Buffer) Clone() (imaging.Buffer, error) {
	ref, err := b.ref.Copy()
	if err != nil {
		return nil, fmt.Errorf("vips copy: %w", err)
	}
	out := &Buffer{ref: ref}
	if b.profile != nil {
		p := *b.profile
		out.profile = &p
	}
	return out, nil
}

func (b *Buffer) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid resize target %dx%d", width, height)
	}
	hscale := float64(width) / float64(b.ref.Width())
	vscale := float64(height) / float64(b.ref.Height())
	return b.ref.ResizeWithVScale(hscale, vscale, govips.KernelLanczos3)
}

func (b *Buffer) Crop(x, y, width, height int) error {
	return b.ref.ExtractArea(x, y, width, height)
}

// Rotate supports quarter turns only.
func (b *Buffer) Rotate(degrees float64, _ color.Color) error {
	turns := math.Mod(degrees, 360)
	if turns < 0 {
		turns += 360
	}
	switch turns {
	case 0:
		return nil
	case 90:
		return b.ref.Rotate(govips.Angle90)
	case 180:
		return b.ref.Rotate(govips.Angle180)
	case 270:
		return b.ref.Rotate(govips.Angle270)
	default:
		return fmt.Errorf("vips backend rotates in 90 degree steps, got %g", degrees)
	}
}

func (b *Buffer) Flip(d imaging.Direction) error {
	if d == imaging.Vertical {
		return b.ref.Flip(govips.DirectionVertical)
	}
	return b.ref.Flip(govips.DirectionHorizontal)
}

func (b *Buffer) Transpose() error {
	if err := b.ref.Rotate(govips.Angle90); err != nil {
		return err
	}
	return b.ref.Flip(govips.DirectionHorizontal)
}

func (b *Buffer) Transverse() error {
	if err := b.ref.Rotate(govips.Angle90); err != nil {
		return err
	}
	return b.ref.Flip(govips.DirectionVertical)
}

func (b *Buffer) Grayscale() error {
	return b.ref.ToColorSpace(govips.InterpretationBW)
}

func (b *Buffer) Blur(sigma float64) error {
	return b.ref.GaussianBlur(sigma)
}

func (b *Buffer) Sharpen(sigma float64) error {
	return b.ref.Sharpen(sigma, 1, 2)
}

func (b *Buffer) Contrast(percent float64) error {
	a := 1 + percent/100
	offset := 128 * (1 - a)
	bands := b.ref.Bands()
	scale := make([]float64, bands)
	shift := make([]float64, bands)
	for i := range scale {
		scale[i] = a
		shift[i] = offset
	}
	return b.ref.Linear(scale, shift)
}

func (b *Buffer) Strip() error {
	b.profile = nil
	return b.ref.RemoveMetadata()
}

func (b *Buffer) Watermark(w imaging.Watermark) error {
	text := strings.TrimSpace(w.Text)
	if text == "" {
		return fmt.Errorf("watermark text is empty")
	}

	label := &govips.LabelParams{
		Text:      text,
		Font:      "sans 24",
		Opacity:   float32(w.NormalizedOpacity()),
		Color:     govips.Color{R: 255, G: 255, B: 255},
		Alignment: alignment(w.Gravity),
	}
	label.Width.SetInt(max(1, b.ref.Width()-24))
	label.Height.SetInt(max(1, b.ref.Height()-24))
	label.OffsetX.SetInt(12)
	label.OffsetY.SetInt(12)

	if err := b.ref.Label(label); err != nil {
		return fmt.Errorf("vips label: %w", err)
	}
	return nil
}

func alignment(g imaging.Gravity) govips.Align {
	switch g {
	case imaging.GravityNorthWest, imaging.GravityWest, imaging.GravitySouthWest:
		return govips.AlignLow
	case imaging.GravityNorth, imaging.GravityCenter, imaging.GravitySouth:
		return govips.AlignCenter
	default:
		return govips.AlignHigh
	}
}

var _ imaging.Buffer = (*Buffer)(nil)
