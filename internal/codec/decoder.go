package codec

import (
	"errors"
	"fmt"

	"github.com/dunamismax/pixelvault/internal/apperrors"
	"github.com/dunamismax/pixelvault/internal/imaging"
	"go.uber.org/zap"
)

// DecoderManager keeps one chain per mime type. The most recently
// registered decoder is tried first. It is built once at startup and only
// read afterwards.
type DecoderManager struct {
	formats  *FormatRegistry
	decoders map[string][]Decoder
	profiles imaging.Profiles
	logger   *zap.Logger
}

func NewDecoderManager(profiles imaging.Profiles, logger *zap.Logger) *DecoderManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecoderManager{
		formats:  NewFormatRegistry(),
		decoders: make(map[string][]Decoder),
		profiles: profiles,
		logger:   logger,
	}
}

func (m *DecoderManager) Register(d Decoder) error {
	if d == nil {
		return apperrors.Errorf(apperrors.CategoryConfiguration, "register decoder", "decoder is nil")
	}
	formats := d.Formats()
	if err := validateFormats("register decoder", formats); err != nil {
		return err
	}

	for _, f := range formats {
		mime := normalizeMime(f.MimeType)
		m.decoders[mime] = append([]Decoder{d}, m.decoders[mime]...)
		for _, ext := range f.Extensions {
			m.formats.Record(mime, ext)
		}
	}
	return nil
}

// Load decodes blob with the chain registered for mimeType. The error wraps
// ErrNoDecoder when nothing is registered and ErrDecodeFailed when every
// decoder declined; errors raised by a decoder are returned as is.
func (m *DecoderManager) Load(mimeType string, blob []byte) (imaging.Buffer, error) {
	mime := normalizeMime(mimeType)
	chain := m.decoders[mime]
	if len(chain) == 0 {
		return nil, apperrors.New(apperrors.CategoryUnsupportedFormat, "decode", fmt.Errorf("%w for %q", ErrNoDecoder, mimeType))
	}

	for i, d := range chain {
		buf, err := d.Decode(blob, mime)
		if errors.Is(err, ErrNotApplicable) {
			m.logger.Debug("decoder declined", zap.String("mime_type", mime), zap.Int("position", i))
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := m.normalizeColorSpace(buf); err != nil {
			buf.Close()
			return nil, apperrors.Wrap(apperrors.CategoryConfiguration, "normalize color space", err)
		}
		return buf, nil
	}

	return nil, apperrors.New(apperrors.CategoryUnsupportedFormat, "decode", fmt.Errorf("%w for %q", ErrDecodeFailed, mimeType))
}

// normalizeColorSpace converts profile-less CMYK pixels to sRGB through the
// bundled profiles so every later stage sees RGB data.
func (m *DecoderManager) normalizeColorSpace(buf imaging.Buffer) error {
	if buf.ColorSpace() != imaging.ColorSpaceCMYK || buf.Profile() != nil {
		return nil
	}
	if err := buf.AttachProfile(m.profiles.CMYK); err != nil {
		return fmt.Errorf("attach %s profile: %w", m.profiles.CMYK.Name, err)
	}
	if err := buf.TransformProfile(m.profiles.SRGB); err != nil {
		return fmt.Errorf("transform to %s profile: %w", m.profiles.SRGB.Name, err)
	}
	if err := buf.SetColorSpace(imaging.ColorSpaceSRGB); err != nil {
		return fmt.Errorf("set srgb color space: %w", err)
	}
	m.logger.Debug("converted untagged cmyk image to srgb")
	return nil
}

func (m *DecoderManager) ExtensionFromMimeType(mimeType string) (string, bool) {
	return m.formats.ExtensionFor(mimeType)
}

func (m *DecoderManager) SupportsMimeType(mimeType string) bool {
	return len(m.decoders[normalizeMime(mimeType)]) > 0
}

func (m *DecoderManager) MimeTypes() []string {
	return m.formats.MimeTypes()
}
