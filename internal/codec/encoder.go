package codec

import (
	"errors"
	"fmt"

	"github.com/dunamismax/pixelvault/internal/apperrors"
	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/imaging"
	"go.uber.org/zap"
)

// EncoderManager keeps chains keyed by extension and by mime type, each in
// registration order.
type EncoderManager struct {
	formats     *FormatRegistry
	byExtension map[string][]Encoder
	byMime      map[string][]Encoder
	logger      *zap.Logger
}

func NewEncoderManager(logger *zap.Logger) *EncoderManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EncoderManager{
		formats:     NewFormatRegistry(),
		byExtension: make(map[string][]Encoder),
		byMime:      make(map[string][]Encoder),
		logger:      logger,
	}
}

func (m *EncoderManager) Register(e Encoder) error {
	if e == nil {
		return apperrors.Errorf(apperrors.CategoryConfiguration, "register encoder", "encoder is nil")
	}
	formats := e.Formats()
	if err := validateFormats("register encoder", formats); err != nil {
		return err
	}

	seenMime := make(map[string]bool)
	seenExt := make(map[string]bool)
	for _, f := range formats {
		mime := normalizeMime(f.MimeType)
		if !seenMime[mime] {
			seenMime[mime] = true
			m.byMime[mime] = append(m.byMime[mime], e)
		}
		for _, raw := range f.Extensions {
			ext := normalizeExtension(raw)
			if !seenExt[ext] {
				seenExt[ext] = true
				m.byExtension[ext] = append(m.byExtension[ext], e)
			}
			m.formats.Record(mime, ext)
		}
	}
	return nil
}

// Convert encodes buf into img. Encoders registered for extension are tried
// first and set img's mime type to the extension's canonical one; when they
// all decline and mimeType is given, encoders for mimeType are tried and set
// it verbatim. The error wraps ErrNoEncoder when nothing accepted.
func (m *EncoderManager) Convert(buf imaging.Buffer, img *domain.Image, extension, mimeType string) error {
	ext := normalizeExtension(extension)
	mime := normalizeMime(mimeType)

	if chain := m.byExtension[ext]; len(chain) > 0 {
		canonical, _ := m.formats.MimeTypeFor(ext)
		ok, err := m.try(chain, buf, img, ext, canonical)
		if err != nil {
			return err
		}
		if ok {
			img.MimeType = canonical
			img.Extension = ext
			return nil
		}
	}

	if mime != "" {
		if chain := m.byMime[mime]; len(chain) > 0 {
			canonical, _ := m.formats.ExtensionFor(mime)
			ok, err := m.try(chain, buf, img, canonical, mime)
			if err != nil {
				return err
			}
			if ok {
				img.MimeType = mime
				img.Extension = canonical
				return nil
			}
		}
	}

	return apperrors.New(
		apperrors.CategoryUnsupportedFormat,
		"encode",
		fmt.Errorf("%w for extension %q and mime type %q", ErrNoEncoder, extension, mimeType),
	)
}

func (m *EncoderManager) try(chain []Encoder, buf imaging.Buffer, img *domain.Image, ext, mime string) (bool, error) {
	for i, e := range chain {
		err := e.Encode(buf, img, ext, mime)
		if errors.Is(err, ErrNotApplicable) {
			m.logger.Debug("encoder declined", zap.String("extension", ext), zap.String("mime_type", mime), zap.Int("position", i))
			continue
		}
		if err != nil {
			return false, fmt.Errorf("encode %s: %w", ext, err)
		}
		return true, nil
	}
	return false, nil
}

func (m *EncoderManager) SupportsExtension(extension string) bool {
	return len(m.byExtension[normalizeExtension(extension)]) > 0
}

func (m *EncoderManager) SupportsMimeType(mimeType string) bool {
	return len(m.byMime[normalizeMime(mimeType)]) > 0
}

func (m *EncoderManager) MimeTypeFromExtension(extension string) (string, bool) {
	return m.formats.MimeTypeFor(extension)
}

func (m *EncoderManager) ExtensionFromMimeType(mimeType string) (string, bool) {
	return m.formats.ExtensionFor(mimeType)
}

func (m *EncoderManager) Extensions() []string {
	return m.formats.Extensions()
}

func (m *EncoderManager) MimeTypes() []string {
	return m.formats.MimeTypes()
}
