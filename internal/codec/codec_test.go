package codec

import (
	"errors"
	"net/http"
	"testing"

	"github.com/dunamismax/pixelvault/internal/apperrors"
	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/imaging"
	"github.com/dunamismax/pixelvault/internal/imaging/imagingtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDecoder struct {
	name    string
	formats []Format
	err     error
	buf     *imagingtest.Buffer
	calls   *[]string
}

func (d *stubDecoder) Formats() []Format { return d.formats }

func (d *stubDecoder) Decode(_ []byte, _ string) (imaging.Buffer, error) {
	if d.calls != nil {
		*d.calls = append(*d.calls, d.name)
	}
	if d.err != nil {
		return nil, d.err
	}
	if d.buf != nil {
		return d.buf, nil
	}
	return imagingtest.NewBuffer(4, 2), nil
}

type stubEncoder struct {
	name    string
	formats []Format
	err     error
	calls   *[]string
}

func (e *stubEncoder) Formats() []Format { return e.formats }

func (e *stubEncoder) Encode(_ imaging.Buffer, img *domain.Image, extension, mimeType string) error {
	if e.calls != nil {
		*e.calls = append(*e.calls, e.name+":"+extension+":"+mimeType)
	}
	if e.err != nil {
		return e.err
	}
	img.SetBlob([]byte(e.name))
	return nil
}

func formats(mime string, exts ...string) []Format {
	return []Format{{MimeType: mime, Extensions: exts}}
}

func TestDecoderManagerTriesMostRecentFirst(t *testing.T) {
	t.Parallel()

	var calls []string
	m := NewDecoderManager(imaging.DefaultProfiles(), nil)
	require.NoError(t, m.Register(&stubDecoder{name: "a", formats: formats("image/x", "x"), calls: &calls}))
	require.NoError(t, m.Register(&stubDecoder{name: "b", formats: formats("image/x", "x"), err: ErrNotApplicable, calls: &calls}))

	buf, err := m.Load("image/x", []byte("data"))
	require.NoError(t, err)
	assert.NotNil(t, buf)
	assert.Equal(t, []string{"b", "a"}, calls)
}

func TestDecoderManagerDistinguishesUnsupportedFromFailed(t *testing.T) {
	t.Parallel()

	m := NewDecoderManager(imaging.DefaultProfiles(), nil)
	require.NoError(t, m.Register(&stubDecoder{name: "a", formats: formats("image/x", "x"), err: ErrNotApplicable}))
	require.NoError(t, m.Register(&stubDecoder{name: "b", formats: formats("image/x", "x"), err: ErrNotApplicable}))

	_, err := m.Load("image/x", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecodeFailed)
	assert.NotErrorIs(t, err, ErrNoDecoder)

	_, err = m.Load("image/y", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoDecoder)
	assert.NotErrorIs(t, err, ErrDecodeFailed)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryUnsupportedFormat))
}

func TestDecoderManagerPropagatesCorruptInput(t *testing.T) {
	t.Parallel()

	var calls []string
	corrupt := apperrors.New(apperrors.CategoryCorruptInput, "decode", errors.New("truncated"))
	m := NewDecoderManager(imaging.DefaultProfiles(), nil)
	require.NoError(t, m.Register(&stubDecoder{name: "a", formats: formats("image/x", "x"), calls: &calls}))
	require.NoError(t, m.Register(&stubDecoder{name: "b", formats: formats("image/x", "x"), err: corrupt, calls: &calls}))

	_, err := m.Load("image/x", nil)
	assert.Same(t, corrupt, err)
	assert.Equal(t, []string{"b"}, calls)
}

func TestDecoderManagerCanonicalExtension(t *testing.T) {
	t.Parallel()

	m := NewDecoderManager(imaging.DefaultProfiles(), nil)
	require.NoError(t, m.Register(&stubDecoder{name: "a", formats: formats("image/png", "png")}))

	ext, ok := m.ExtensionFromMimeType("image/png")
	require.True(t, ok)
	assert.Equal(t, "png", ext)

	require.NoError(t, m.Register(&stubDecoder{name: "b", formats: formats("image/png", "jpg2")}))
	ext, ok = m.ExtensionFromMimeType("image/png")
	require.True(t, ok)
	assert.Equal(t, "png", ext)

	_, ok = m.ExtensionFromMimeType("image/gif")
	assert.False(t, ok)
	assert.True(t, m.SupportsMimeType("IMAGE/PNG"))
	assert.Equal(t, []string{"image/png"}, m.MimeTypes())
}

func TestDecoderManagerConvertsUntaggedCMYK(t *testing.T) {
	t.Parallel()

	cmyk := imagingtest.NewBuffer(10, 10)
	cmyk.Space = imaging.ColorSpaceCMYK

	m := NewDecoderManager(imaging.DefaultProfiles(), nil)
	require.NoError(t, m.Register(&stubDecoder{name: "a", formats: formats("image/jpeg", "jpg"), buf: cmyk}))

	buf, err := m.Load("image/jpeg", nil)
	require.NoError(t, err)
	assert.Equal(t, imaging.ColorSpaceSRGB, buf.ColorSpace())
	assert.Equal(t, []string{
		"attach:" + imaging.DefaultCMYKProfile.Name,
		"transform:" + imaging.DefaultSRGBProfile.Name,
		"colorspace:srgb",
	}, cmyk.Calls)
}

func TestDecoderManagerKeepsTaggedCMYK(t *testing.T) {
	t.Parallel()

	cmyk := imagingtest.NewBuffer(10, 10)
	cmyk.Space = imaging.ColorSpaceCMYK
	cmyk.Embedded = &imaging.Profile{Name: "embedded"}

	m := NewDecoderManager(imaging.DefaultProfiles(), nil)
	require.NoError(t, m.Register(&stubDecoder{name: "a", formats: formats("image/jpeg", "jpg"), buf: cmyk}))

	buf, err := m.Load("image/jpeg", nil)
	require.NoError(t, err)
	assert.Equal(t, imaging.ColorSpaceCMYK, buf.ColorSpace())
	assert.Empty(t, cmyk.Calls)
}

func TestDecoderManagerFixUpFailureClosesBuffer(t *testing.T) {
	t.Parallel()

	cmyk := imagingtest.NewBuffer(10, 10)
	cmyk.Space = imaging.ColorSpaceCMYK
	cmyk.FailOn = "transform:" + imaging.DefaultSRGBProfile.Name

	m := NewDecoderManager(imaging.DefaultProfiles(), nil)
	require.NoError(t, m.Register(&stubDecoder{name: "a", formats: formats("image/jpeg", "jpg"), buf: cmyk}))

	_, err := m.Load("image/jpeg", nil)
	assert.ErrorContains(t, err, "transform to")
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))
	assert.Equal(t, http.StatusInternalServerError, apperrors.StatusCode(err))
	assert.True(t, cmyk.Closed)
}

func TestRegisterRejectsMissingCapability(t *testing.T) {
	t.Parallel()

	tests := map[string][]Format{
		"no formats":      nil,
		"empty mime":      formats(" ", "x"),
		"no extensions":   formats("image/x"),
		"empty extension": formats("image/x", ""),
	}
	for name, fs := range tests {
		fs := fs
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := NewDecoderManager(imaging.DefaultProfiles(), nil).Register(&stubDecoder{formats: fs})
			assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))

			err = NewEncoderManager(nil).Register(&stubEncoder{formats: fs})
			assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))
		})
	}

	assert.Error(t, NewDecoderManager(imaging.DefaultProfiles(), nil).Register(nil))
	assert.Error(t, NewEncoderManager(nil).Register(nil))
}

func TestEncoderManagerExtensionChainInRegistrationOrder(t *testing.T) {
	t.Parallel()

	var calls []string
	m := NewEncoderManager(nil)
	require.NoError(t, m.Register(&stubEncoder{name: "a", formats: formats("image/jpeg", "jpg", "jpeg"), err: ErrNotApplicable, calls: &calls}))
	require.NoError(t, m.Register(&stubEncoder{name: "b", formats: formats("image/pjpeg", "jpg"), calls: &calls}))

	img := &domain.Image{}
	require.NoError(t, m.Convert(imagingtest.NewBuffer(1, 1), img, "JPG", ""))
	assert.Equal(t, []string{"a:jpg:image/jpeg", "b:jpg:image/jpeg"}, calls)
	assert.Equal(t, "image/jpeg", img.MimeType)
	assert.Equal(t, "jpg", img.Extension)
	assert.Equal(t, []byte("b"), img.Blob)
}

func TestEncoderManagerFallsBackToMimeType(t *testing.T) {
	t.Parallel()

	var calls []string
	m := NewEncoderManager(nil)
	require.NoError(t, m.Register(&stubEncoder{name: "png", formats: formats("image/png", "png"), calls: &calls}))

	img := &domain.Image{}
	require.NoError(t, m.Convert(imagingtest.NewBuffer(1, 1), img, "bogus", "image/png"))
	assert.Equal(t, []string{"png:png:image/png"}, calls)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, "png", img.Extension)
}

func TestEncoderManagerMimeFallbackAfterDecline(t *testing.T) {
	t.Parallel()

	m := NewEncoderManager(nil)
	require.NoError(t, m.Register(&stubEncoder{name: "webp", formats: formats("image/webp", "webp"), err: ErrNotApplicable}))
	require.NoError(t, m.Register(&stubEncoder{name: "png", formats: formats("image/png", "png")}))

	img := &domain.Image{}
	require.NoError(t, m.Convert(imagingtest.NewBuffer(1, 1), img, "webp", "image/png"))
	assert.Equal(t, "image/png", img.MimeType)
}

func TestEncoderManagerUnsupported(t *testing.T) {
	t.Parallel()

	m := NewEncoderManager(nil)
	require.NoError(t, m.Register(&stubEncoder{name: "png", formats: formats("image/png", "png"), err: ErrNotApplicable}))

	img := &domain.Image{MimeType: "image/gif"}
	err := m.Convert(imagingtest.NewBuffer(1, 1), img, "png", "")
	assert.ErrorIs(t, err, ErrNoEncoder)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryUnsupportedFormat))
	assert.Equal(t, "image/gif", img.MimeType)

	err = m.Convert(imagingtest.NewBuffer(1, 1), img, "tiff", "image/tiff")
	assert.ErrorIs(t, err, ErrNoEncoder)
}

func TestEncoderManagerPropagatesEncodeFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	m := NewEncoderManager(nil)
	require.NoError(t, m.Register(&stubEncoder{name: "png", formats: formats("image/png", "png"), err: boom}))

	err := m.Convert(imagingtest.NewBuffer(1, 1), &domain.Image{}, "png", "")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNoEncoder)
}

func TestEncoderManagerLookups(t *testing.T) {
	t.Parallel()

	m := NewEncoderManager(nil)
	require.NoError(t, m.Register(&stubEncoder{name: "jpeg", formats: formats("image/jpeg", "jpg", "jpeg")}))
	require.NoError(t, m.Register(&stubEncoder{name: "other", formats: formats("image/jpeg", "jpe")}))

	assert.True(t, m.SupportsExtension(".JPEG"))
	assert.True(t, m.SupportsExtension("jpe"))
	assert.False(t, m.SupportsExtension("png"))
	assert.True(t, m.SupportsMimeType("image/jpeg; charset=binary"))

	ext, ok := m.ExtensionFromMimeType("image/jpeg")
	require.True(t, ok)
	assert.Equal(t, "jpg", ext)

	mime, ok := m.MimeTypeFromExtension("jpe")
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", mime)

	assert.Equal(t, []string{"jpe", "jpeg", "jpg"}, m.Extensions())
	assert.Equal(t, []string{"image/jpeg"}, m.MimeTypes())
}

func TestFormatRegistryFirstWins(t *testing.T) {
	t.Parallel()

	r := NewFormatRegistry()
	r.Record("image/jpeg", "jpg")
	r.Record("image/jpeg", "jpeg")
	r.Record("image/pjpeg", "jpg")
	r.Record("", "ignored")

	ext, _ := r.ExtensionFor("image/jpeg")
	assert.Equal(t, "jpg", ext)
	ext, _ = r.ExtensionFor("image/pjpeg")
	assert.Equal(t, "jpg", ext)
	mime, _ := r.MimeTypeFor("jpg")
	assert.Equal(t, "image/jpeg", mime)
	mime, _ = r.MimeTypeFor("jpeg")
	assert.Equal(t, "image/jpeg", mime)
	_, ok := r.MimeTypeFor("ignored")
	assert.False(t, ok)
}
