package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/dunamismax/pixelvault/internal/apperrors"
	"github.com/dunamismax/pixelvault/internal/codec"
	"github.com/dunamismax/pixelvault/internal/imaging"
)

var ErrPixelLimitExceeded = errors.New("pixel limit exceeded")

var (
	FormatJPEG = codec.Format{MimeType: "image/jpeg", Extensions: []string{"jpg", "jpeg"}}
	FormatPNG  = codec.Format{MimeType: "image/png", Extensions: []string{"png"}}
	FormatGIF  = codec.Format{MimeType: "image/gif", Extensions: []string{"gif"}}
	FormatWebP = codec.Format{MimeType: "image/webp", Extensions: []string{"webp"}}
	FormatBMP  = codec.Format{MimeType: "image/bmp", Extensions: []string{"bmp"}}
	FormatTIFF = codec.Format{MimeType: "image/tiff", Extensions: []string{"tif", "tiff"}}
)

type Decoder struct {
	name      string
	formats   []codec.Format
	match     func([]byte) bool
	config    func(io.Reader) (image.Config, error)
	decode    func(io.Reader) (image.Image, error)
	maxPixels int
}

type Option func(*Decoder)

// WithMaxPixels rejects images whose width*height exceeds n. Zero disables the check.
func WithMaxPixels(n int) Option {
	return func(d *Decoder) { d.maxPixels = n }
}

// Decoders returns every raster decoder in registration order: the sniffing
// fallback first so the format-specific decoders end up in front of it.
func Decoders(opts ...Option) []codec.Decoder {
	return []codec.Decoder{
		NewSniffingDecoder(opts...),
		newDecoder("gif", FormatGIF, prefix("GIF8"), gif.DecodeConfig, gif.Decode, opts),
		newDecoder("png", FormatPNG, prefix("\x89PNG\r\n\x1a\n"), png.DecodeConfig, png.Decode, opts),
		newDecoder("jpeg", FormatJPEG, prefix("\xff\xd8\xff"), jpeg.DecodeConfig, jpeg.Decode, opts),
		newDecoder("webp", FormatWebP, isWebP, webp.DecodeConfig, webp.Decode, opts),
		newDecoder("bmp", FormatBMP, prefix("BM"), bmp.DecodeConfig, bmp.Decode, opts),
		newDecoder("tiff", FormatTIFF, isTIFF, tiff.DecodeConfig, tiff.Decode, opts),
	}
}

// NewSniffingDecoder accepts every format registered with the image package
// and declines bytes the image package cannot identify.
func NewSniffingDecoder(opts ...Option) *Decoder {
	return newDecoder(
		"sniff",
		codec.Format{},
		nil,
		func(r io.Reader) (image.Config, error) {
			cfg, _, err := image.DecodeConfig(r)
			return cfg, err
		},
		func(r io.Reader) (image.Image, error) {
			img, _, err := image.Decode(r)
			return img, err
		},
		opts,
	)
}

func newDecoder(
	name string,
	format codec.Format,
	match func([]byte) bool,
	config func(io.Reader) (image.Config, error),
	decode func(io.Reader) (image.Image, error),
	opts []Option,
) *Decoder {
	d := &Decoder{name: name, match: match, config: config, decode: decode}
	if format.MimeType != "" {
		d.formats = []codec.Format{format}
	} else {
		d.formats = []codec.Format{FormatJPEG, FormatPNG, FormatGIF, FormatWebP, FormatBMP, FormatTIFF}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Decoder) Formats() []codec.Format { return d.formats }

func (d *Decoder) Decode(blob []byte, mimeType string) (imaging.Buffer, error) {
	if d.match != nil && !d.match(blob) {
		return nil, codec.ErrNotApplicable
	}

	op := "raster." + d.name + ".decode"
	cfg, err := d.config(bytes.NewReader(blob))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, codec.ErrNotApplicable
		}
		return nil, apperrors.New(apperrors.CategoryCorruptInput, op, fmt.Errorf("read %s header: %w", mimeType, err))
	}
	if d.maxPixels > 0 && cfg.Width*cfg.Height > d.maxPixels {
		return nil, apperrors.New(
			apperrors.CategoryCorruptInput,
			op,
			fmt.Errorf("%w: %dx%d > %d", ErrPixelLimitExceeded, cfg.Width, cfg.Height, d.maxPixels),
		)
	}

	img, err := d.decode(bytes.NewReader(blob))
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryCorruptInput, op, fmt.Errorf("decode %s: %w", mimeType, err))
	}
	return New(img), nil
}

func prefix(magic string) func([]byte) bool {
	return func(blob []byte) bool {
		return bytes.HasPrefix(blob, []byte(magic))
	}
}

func isWebP(blob []byte) bool {
	return len(blob) >= 12 && string(blob[0:4]) == "RIFF" && string(blob[8:12]) == "WEBP"
}

func isTIFF(blob []byte) bool {
	return bytes.HasPrefix(blob, []byte("II*\x00")) || bytes.HasPrefix(blob, []byte("MM\x00*"))
}
