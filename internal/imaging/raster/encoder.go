package raster

import (
	"bytes"
	"fmt"

	imgpkg "github.com/disintegration/imaging"

	"github.com/dunamismax/pixelvault/internal/codec"
	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/imaging"
)

const defaultJPEGQuality = 90

type Encoder struct {
	name    string
	formats []codec.Format
	format  imgpkg.Format
}

// Encoders returns the raster encoders. WebP output needs the libvips backend.
func Encoders() []codec.Encoder {
	return []codec.Encoder{
		&Encoder{name: "jpeg", formats: []codec.Format{FormatJPEG}, format: imgpkg.JPEG},
		&Encoder{name: "png", formats: []codec.Format{FormatPNG}, format: imgpkg.PNG},
		&Encoder{name: "gif", formats: []codec.Format{FormatGIF}, format: imgpkg.GIF},
		&Encoder{name: "tiff", formats: []codec.Format{FormatTIFF}, format: imgpkg.TIFF},
		&Encoder{name: "bmp", formats: []codec.Format{FormatBMP}, format: imgpkg.BMP},
	}
}

func (e *Encoder) Formats() []codec.Format { return e.formats }

// Encode only accepts buffers produced by this backend.
func (e *Encoder) Encode(buf imaging.Buffer, img *domain.Image, _, _ string) error {
	rb, ok := buf.(*Buffer)
	if !ok {
		return codec.ErrNotApplicable
	}

	var opts []imgpkg.EncodeOption
	if e.format == imgpkg.JPEG {
		quality := defaultJPEGQuality
		if img.OutputQuality > 0 && img.OutputQuality <= 100 {
			quality = img.OutputQuality
		}
		opts = append(opts, imgpkg.JPEGQuality(quality))
	}

	var out bytes.Buffer
	if err := imgpkg.Encode(&out, rb.img, e.format, opts...); err != nil {
		return fmt.Errorf("raster %s encode: %w", e.name, err)
	}
	img.SetBlob(out.Bytes())
	img.Width = rb.Width()
	img.Height = rb.Height()
	return nil
}
