// Package imaging defines the working buffer shared by decoders,
// transformations and encoders for the lifetime of one request.
package imaging

import "image/color"

type ColorSpace string

const (
	ColorSpaceUnknown ColorSpace = ""
	ColorSpaceSRGB    ColorSpace = "srgb"
	ColorSpaceCMYK    ColorSpace = "cmyk"
	ColorSpaceGray    ColorSpace = "gray"
)

type Direction int

const (
	Horizontal Direction = iota
	Vertical
)

// Buffer is a decoded image owned by the pipeline. Pixel work is delegated
// to whichever backend produced it; implementations are not safe for
// concurrent use.
type Buffer interface {
	Width() int
	Height() int
	ColorSpace() ColorSpace
	// Profile returns nil when no ICC profile is embedded or attached.
	Profile() *Profile
	// AttachProfile labels the pixels with p without converting them.
	AttachProfile(p Profile) error
	// TransformProfile converts the pixels from the current profile to p.
	TransformProfile(p Profile) error
	SetColorSpace(cs ColorSpace) error
	Clone() (Buffer, error)
	Close()

	Resize(width, height int) error
	Crop(x, y, width, height int) error
	// Rotate turns the image clockwise, filling uncovered corners with background.
	Rotate(degrees float64, background color.Color) error
	Flip(d Direction) error
	Transpose() error
	Transverse() error
	Grayscale() error
	Blur(sigma float64) error
	Sharpen(sigma float64) error
	// Contrast takes a percentage in [-100, 100].
	Contrast(percent float64) error
	// Strip drops metadata and embedded profiles.
	Strip() error
	Watermark(w Watermark) error
}
