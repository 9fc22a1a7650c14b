// Package codec selects decoder and encoder plugins by mime type and
// extension and keeps the canonical mime/extension mapping between them.
package codec

import (
	"errors"

	"github.com/dunamismax/pixelvault/internal/apperrors"
	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/imaging"
)

var (
	// ErrNotApplicable is returned by a plugin that cannot handle the given
	// input. The manager moves on to the next plugin in the chain.
	ErrNotApplicable = errors.New("plugin not applicable")

	// ErrNoDecoder means no decoder is registered for the mime type.
	ErrNoDecoder = errors.New("no decoder registered")
	// ErrDecodeFailed means every registered decoder declined the input.
	ErrDecodeFailed = errors.New("all decoders declined")
	// ErrNoEncoder means no encoder accepted the extension or mime type.
	ErrNoEncoder = errors.New("no encoder accepted")
)

// Format pairs a mime type with its extensions, canonical first.
type Format struct {
	MimeType   string
	Extensions []string
}

// Decoder turns raw bytes into a working buffer. Decode returns
// ErrNotApplicable to defer to the next decoder; any other error is final
// and reaches the caller untouched.
type Decoder interface {
	Formats() []Format
	Decode(blob []byte, mimeType string) (imaging.Buffer, error)
}

// Encoder writes buf into img's blob. Encode returns ErrNotApplicable to
// defer to the next encoder.
type Encoder interface {
	Formats() []Format
	Encode(buf imaging.Buffer, img *domain.Image, extension, mimeType string) error
}

func validateFormats(op string, formats []Format) error {
	if len(formats) == 0 {
		return apperrors.Errorf(apperrors.CategoryConfiguration, op, "plugin declares no mime types")
	}
	for _, f := range formats {
		if normalizeMime(f.MimeType) == "" {
			return apperrors.Errorf(apperrors.CategoryConfiguration, op, "plugin declares an empty mime type")
		}
		if len(f.Extensions) == 0 {
			return apperrors.Errorf(apperrors.CategoryConfiguration, op, "mime type %q declares no extensions", f.MimeType)
		}
		for _, ext := range f.Extensions {
			if normalizeExtension(ext) == "" {
				return apperrors.Errorf(apperrors.CategoryConfiguration, op, "mime type %q declares an empty extension", f.MimeType)
			}
		}
	}
	return nil
}
