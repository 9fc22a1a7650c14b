// Package raster is the pure-Go imaging backend. Pixel operations come from
// disintegration/imaging; codecs from the standard library and x/image.
package raster

import (
	"errors"
	"image"
	"image/color"

	imgpkg "github.com/disintegration/imaging"

	"github.com/dunamismax/pixelvault/internal/imaging"
)

var errEmptyImage = errors.New("operation produced an empty image")

type Buffer struct {
	img        image.Image
	colorSpace imaging.ColorSpace
	profile    *imaging.Profile
}

func New(img image.Image) *Buffer {
	return &Buffer{img: img, colorSpace: colorSpaceOf(img)}
}

func colorSpaceOf(img image.Image) imaging.ColorSpace {
	switch img.(type) {
	case *image.CMYK:
		return imaging.ColorSpaceCMYK
	case *image.Gray, *image.Gray16:
		return imaging.ColorSpaceGray
	default:
		return imaging.ColorSpaceSRGB
	}
}

// Image exposes the current pixels.
func (b *Buffer) Image() image.Image { return b.img }

func (b *Buffer) Width() int { return b.img.Bounds().Dx() }

func (b *Buffer) Height() int { return b.img.Bounds().Dy() }

func (b *Buffer) ColorSpace() imaging.ColorSpace { return b.colorSpace }

func (b *Buffer) Profile() *imaging.Profile { return b.profile }

func (b *Buffer) Close() {}

func (b *Buffer) AttachProfile(p imaging.Profile) error {
	b.profile = &p
	return nil
}

// TransformProfile has no ICC engine to call, so it converts through the
// standard library color models and records p as the new profile.
func (b *Buffer) TransformProfile(p imaging.Profile) error {
	if b.colorSpace == imaging.ColorSpaceCMYK {
		b.img = imgpkg.Clone(b.img)
	}
	b.profile = &p
	return nil
}

func (b *Buffer) SetColorSpace(cs imaging.ColorSpace) error {
	switch cs {
	case imaging.ColorSpaceGray:
		b.img = imgpkg.Grayscale(b.img)
	case imaging.ColorSpaceSRGB:
		if b.colorSpace == imaging.ColorSpaceCMYK {
			b.img = imgpkg.Clone(b.img)
		}
	case imaging.ColorSpaceCMYK:
		return errors.New("raster backend cannot convert to cmyk")
	}
	b.colorSpace = cs
	return nil
}

func (b *Buffer) Clone() (imaging.Buffer, error) {
	out := &Buffer{img: imgpkg.Clone(b.img), colorSpace: b.colorSpace}
	if b.profile != nil {
		p := *b.profile
		out.profile = &p
	}
	return out, nil
}

func (b *Buffer) Resize(width, height int) error {
	return b.replace(imgpkg.Resize(b.img, width, height, imgpkg.Lanczos))
}

func (b *Buffer) Crop(x, y, width, height int) error {
	origin := b.img.Bounds().Min
	rect := image.Rect(x, y, x+width, y+height).Add(origin)
	return b.replace(imgpkg.Crop(b.img, rect))
}

func (b *Buffer) Rotate(degrees float64, background color.Color) error {
	return b.replace(imgpkg.Rotate(b.img, -degrees, background))
}

func (b *Buffer) Flip(d imaging.Direction) error {
	if d == imaging.Vertical {
		return b.replace(imgpkg.FlipV(b.img))
	}
	return b.replace(imgpkg.FlipH(b.img))
}

func (b *Buffer) Transpose() error { return b.replace(imgpkg.Transpose(b.img)) }

func (b *Buffer) Transverse() error { return b.replace(imgpkg.Transverse(b.img)) }

func (b *Buffer) Grayscale() error {
	if err := b.replace(imgpkg.Grayscale(b.img)); err != nil {
		return err
	}
	b.colorSpace = imaging.ColorSpaceGray
	return nil
}

func (b *Buffer) Blur(sigma float64) error { return b.replace(imgpkg.Blur(b.img, sigma)) }

func (b *Buffer) Sharpen(sigma float64) error { return b.replace(imgpkg.Sharpen(b.img, sigma)) }

func (b *Buffer) Contrast(percent float64) error {
	return b.replace(imgpkg.AdjustContrast(b.img, percent))
}

func (b *Buffer) Strip() error {
	b.profile = nil
	return nil
}

func (b *Buffer) replace(img *image.NRGBA) error {
	if img == nil || img.Bounds().Empty() {
		return errEmptyImage
	}
	b.img = img
	if b.colorSpace == imaging.ColorSpaceCMYK {
		b.colorSpace = imaging.ColorSpaceSRGB
	}
	return nil
}

var _ imaging.Buffer = (*Buffer)(nil)
