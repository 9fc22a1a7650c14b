//go:build govips && cgo

package vips

import (
	"fmt"
	"strings"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/dunamismax/pixelvault/internal/apperrors"
	"github.com/dunamismax/pixelvault/internal/codec"
	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/imaging"
)

var formats = []codec.Format{
	{MimeType: "image/jpeg", Extensions: []string{"jpg", "jpeg"}},
	{MimeType: "image/png", Extensions: []string{"png"}},
	{MimeType: "image/gif", Extensions: []string{"gif"}},
	{MimeType: "image/webp", Extensions: []string{"webp"}},
	{MimeType: "image/tiff", Extensions: []string{"tif", "tiff"}},
}

var mimeByImageType = map[govips.ImageType]string{
	govips.ImageTypeJPEG: "image/jpeg",
	govips.ImageTypePNG:  "image/png",
	govips.ImageTypeGIF:  "image/gif",
	govips.ImageTypeWEBP: "image/webp",
	govips.ImageTypeTIFF: "image/tiff",
}

type Decoder struct{}

func (Decoder) Formats() []codec.Format { return formats }

func (Decoder) Decode(blob []byte, mimeType string) (imaging.Buffer, error) {
	if _, ok := mimeByImageType[govips.DetermineImageType(blob)]; !ok {
		return nil, codec.ErrNotApplicable
	}
	ref, err := govips.NewImageFromBuffer(blob)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryCorruptInput, "vips.decode", fmt.Errorf("decode %s: %w", mimeType, err))
	}
	return newBuffer(ref), nil
}

type Encoder struct{}

func (Encoder) Formats() []codec.Format { return formats }

func (Encoder) Encode(buf imaging.Buffer, img *domain.Image, extension, mimeType string) error {
	vb, ok := buf.(*Buffer)
	if !ok {
		return codec.ErrNotApplicable
	}

	quality := 0
	if img.OutputQuality > 0 && img.OutputQuality <= 100 {
		quality = img.OutputQuality
	}

	var (
		data []byte
		err  error
	)
	switch formatFor(extension, mimeType) {
	case "jpeg":
		params := govips.NewJpegExportParams()
		if quality > 0 {
			params.Quality = quality
		}
		data, _, err = vb.ref.ExportJpeg(params)
	case "png":
		data, _, err = vb.ref.ExportPng(govips.NewPngExportParams())
	case "webp":
		params := govips.NewWebpExportParams()
		if quality > 0 {
			params.Quality = quality
		}
		data, _, err = vb.ref.ExportWebp(params)
	case "gif":
		data, _, err = vb.ref.ExportGIF(govips.NewGifExportParams())
	case "tiff":
		data, _, err = vb.ref.ExportTiff(govips.NewTiffExportParams())
	default:
		return codec.ErrNotApplicable
	}
	if err != nil {
		return fmt.Errorf("vips export %s: %w", extension, err)
	}

	img.SetBlob(data)
	img.Width = vb.Width()
	img.Height = vb.Height()
	return nil
}

func formatFor(extension, mimeType string) string {
	switch strings.ToLower(extension) {
	case "jpg", "jpeg":
		return "jpeg"
	case "png", "webp", "gif":
		return strings.ToLower(extension)
	case "tif", "tiff":
		return "tiff"
	}
	switch strings.ToLower(mimeType) {
	case "image/jpeg":
		return "jpeg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/tiff":
		return "tiff"
	}
	return ""
}
