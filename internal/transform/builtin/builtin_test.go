package builtin

import (
	"context"
	"net/http"
	"testing"

	"github.com/dunamismax/pixelvault/internal/apperrors"
	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/imaging/imagingtest"
	"github.com/dunamismax/pixelvault/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRegistry(t *testing.T) *transform.Registry {
	t.Helper()

	r := transform.NewRegistry(zap.NewNop())
	require.NoError(t, Register(r))
	r.AddInitializer(transform.LoggerInitializer(zap.NewNop()))
	require.NoError(t, r.Validate())
	return r
}

func apply(t *testing.T, w, h int, chain ...domain.Transformation) (*transform.Target, *imagingtest.Buffer, error) {
	t.Helper()

	buf := imagingtest.NewBuffer(w, h)
	target := &transform.Target{Image: domain.NewImage([]byte("src"), "image/png", "png", w, h), Buffer: buf}
	err := newRegistry(t).NewManager().ApplyTransformations(context.Background(), target, chain)
	return target, buf, err
}

func tr(name string, params domain.Params) domain.Transformation {
	return domain.Transformation{Name: name, Params: params}
}

func TestRegisterAll(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)
	for _, name := range Names() {
		h, err := r.Resolve(name)
		require.NoError(t, err, name)
		require.NotNil(t, h, name)
	}
	assert.Len(t, r.Names(), len(Names()))
	assert.Error(t, Register(r))
}

func TestRegisterAliases(t *testing.T) {
	t.Parallel()

	r := newRegistry(t)
	require.NoError(t, RegisterAliases(r, map[string]string{"shrink": "maxSize", "grey": TypePrefix + Desaturate}))
	require.NoError(t, r.Validate())

	shrink, err := r.Resolve("shrink")
	require.NoError(t, err)
	original, err := r.Resolve(MaxSize)
	require.NoError(t, err)
	assert.IsType(t, original, shrink)
	assert.NotSame(t, original, shrink)

	require.NoError(t, RegisterAliases(r, map[string]string{"bogus": "sepia"}))
	assert.Error(t, r.Validate())
}

func TestMaxSize(t *testing.T) {
	t.Parallel()

	target, buf, err := apply(t, 4000, 2000, tr(MaxSize, domain.Params{"width": 1000}))
	require.NoError(t, err)
	assert.Equal(t, []string{"resize:1000x500"}, buf.Calls)
	assert.Equal(t, 1000, target.Image.Width)
	assert.Equal(t, 500, target.Image.Height)
	assert.True(t, target.Image.Transformed)

	_, buf, err = apply(t, 400, 200, tr(MaxSize, domain.Params{"width": "1000", "height": "1000"}))
	require.NoError(t, err)
	assert.Empty(t, buf.Calls)

	_, buf, err = apply(t, 400, 200, tr(MaxSize, domain.Params{"width": 300, "height": 50}))
	require.NoError(t, err)
	assert.Equal(t, []string{"resize:100x50"}, buf.Calls)
}

func TestInvalidParamsAreClientErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		entry domain.Transformation
	}{
		{"maxSize without bounds", tr(MaxSize, nil)},
		{"resize with garbage", tr(Resize, domain.Params{"width": "wide"})},
		{"thumbnail bad fit", tr(Thumbnail, domain.Params{"fit": "stretch"})},
		{"crop without height", tr(Crop, domain.Params{"width": 10})},
		{"crop bad mode", tr(Crop, domain.Params{"width": 10, "height": 10, "mode": "diagonal"})},
		{"crop outside", tr(Crop, domain.Params{"width": 10, "height": 10, "x": 500})},
		{"rotate without angle", tr(Rotate, nil)},
		{"rotate bad bg", tr(Rotate, domain.Params{"angle": 90, "bg": "zz"})},
		{"blur negative", tr(Blur, domain.Params{"sigma": -1})},
		{"contrast out of range", tr(Contrast, domain.Params{"amount": 150})},
		{"compress too high", tr(Compress, domain.Params{"level": 101})},
		{"watermark without text", tr(Watermark, nil)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := apply(t, 400, 200, tt.entry)
			require.Error(t, err)
			assert.True(t, apperrors.IsCategory(err, apperrors.CategoryTransformation))
			assert.Equal(t, http.StatusBadRequest, apperrors.StatusCode(err))
		})
	}
}

func TestResizeKeepsAspect(t *testing.T) {
	t.Parallel()

	_, buf, err := apply(t, 400, 200, tr(Resize, domain.Params{"height": 50}))
	require.NoError(t, err)
	assert.Equal(t, []string{"resize:100x50"}, buf.Calls)

	_, buf, err = apply(t, 400, 200, tr(Resize, domain.Params{"width": 100, "height": 100}))
	require.NoError(t, err)
	assert.Equal(t, []string{"resize:100x100"}, buf.Calls)
}

func TestThumbnail(t *testing.T) {
	t.Parallel()

	target, buf, err := apply(t, 400, 200, tr(Thumbnail, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"resize:100x50", "crop:25,0,50x50"}, buf.Calls)
	assert.Equal(t, 50, target.Image.Width)
	assert.Equal(t, 50, target.Image.Height)

	_, buf, err = apply(t, 400, 200, tr(Thumbnail, domain.Params{"fit": "inset"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"resize:50x25"}, buf.Calls)
}

func TestCrop(t *testing.T) {
	t.Parallel()

	_, buf, err := apply(t, 400, 200, tr(Crop, domain.Params{"width": 100, "height": 100, "mode": "center"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"crop:150,50,100x100"}, buf.Calls)

	_, buf, err = apply(t, 400, 200, tr(Crop, domain.Params{"width": 100, "height": 100, "y": 20, "mode": "center-x"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"crop:150,20,100x100"}, buf.Calls)

	_, buf, err = apply(t, 400, 200, tr(Crop, domain.Params{"x": 350, "y": 150, "width": 100, "height": 100}))
	require.NoError(t, err)
	assert.Equal(t, []string{"crop:350,150,50x50"}, buf.Calls)
}

func TestCropCapabilities(t *testing.T) {
	t.Parallel()

	c := &crop{}
	input := transform.Size{Width: 4000, Height: 2000}

	region, ok := c.ExtractedRegion(domain.Params{"width": 1000, "height": 1000, "mode": "center"}, input)
	require.True(t, ok)
	assert.Equal(t, transform.Region{X: 1500, Y: 500, Width: 1000, Height: 1000}, region)
	assert.Equal(t, transform.NoConstraint(), c.MinimumInputSize(domain.Params{"width": 10, "height": 10}, input))

	_, ok = c.ExtractedRegion(domain.Params{"width": 1000}, input)
	assert.False(t, ok)
	assert.Equal(t, transform.StopResolving(), c.MinimumInputSize(domain.Params{"width": 1000}, input))

	params := domain.Params{"x": "100", "y": 50, "width": 1000, "height": 3, "mode": "center"}
	adjusted := c.AdjustParameters(0.25, params)
	assert.Equal(t, domain.Params{"x": 25, "y": 13, "width": 250, "height": 1, "mode": "center"}, adjusted)
	assert.Equal(t, "100", params["x"])
}

func TestRotateAndQuarterTurns(t *testing.T) {
	t.Parallel()

	target, buf, err := apply(t, 400, 200,
		tr(Rotate, domain.Params{"angle": "90", "bg": "fff"}),
		tr(Transpose, nil),
		tr(Transverse, nil),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"rotate:90", "transpose", "transverse"}, buf.Calls)
	assert.Equal(t, 200, target.Image.Width)
	assert.Equal(t, 400, target.Image.Height)

	assert.Equal(t, transform.Rotation(45), (&rotate{}).MinimumInputSize(domain.Params{"angle": 45}, transform.Size{}))
	assert.Equal(t, transform.StopResolving(), (&rotate{}).MinimumInputSize(nil, transform.Size{}))
	assert.Equal(t, transform.Rotation(90), (&quarterTurn{name: Transpose}).MinimumInputSize(nil, transform.Size{}))
}

func TestSimpleFilters(t *testing.T) {
	t.Parallel()

	target, buf, err := apply(t, 400, 200,
		tr(FlipHorizontally, nil),
		tr(FlipVertically, nil),
		tr(Desaturate, nil),
		tr(Blur, nil),
		tr(Sharpen, domain.Params{"sigma": "2.5"}),
		tr(Contrast, domain.Params{"amount": -20}),
		tr(Watermark, domain.Params{"text": "hi", "gravity": "north"}),
		tr(Strip, nil),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"flip:horizontal", "flip:vertical", "grayscale", "blur:1", "sharpen:2.5",
		"contrast:-20", "watermark:hi", "strip",
	}, buf.Calls)
	assert.Empty(t, target.Image.Metadata)
}

func TestCompressSetsQualityHint(t *testing.T) {
	t.Parallel()

	target, buf, err := apply(t, 400, 200, tr(Compress, domain.Params{"level": "40"}))
	require.NoError(t, err)
	assert.Empty(t, buf.Calls)
	assert.Equal(t, 40, target.Image.OutputQuality)
	assert.True(t, target.Image.Transformed)
}

func TestBufferFailureIsTransformationError(t *testing.T) {
	t.Parallel()

	buf := imagingtest.NewBuffer(400, 200)
	buf.FailOn = "flip:horizontal"
	target := &transform.Target{Image: &domain.Image{Width: 400, Height: 200}, Buffer: buf}

	err := newRegistry(t).NewManager().ApplyTransformations(context.Background(), target, []domain.Transformation{tr(FlipHorizontally, nil)})
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryTransformation))
	assert.Equal(t, http.StatusInternalServerError, apperrors.StatusCode(err))
	assert.False(t, target.Image.Transformed)
}

func TestMinimumInputSizeWithBuiltins(t *testing.T) {
	t.Parallel()

	m := newRegistry(t).NewManager()

	size, ok, err := m.MinimumImageInputSize(4000, 2000, []domain.Transformation{tr(MaxSize, domain.Params{"width": 1000})})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, transform.MinimumInputSize{Width: 1000, Height: 500, Index: 0}, size)

	chain := []domain.Transformation{
		tr(Crop, domain.Params{"width": 1000, "height": 1000}),
		tr(MaxSize, domain.Params{"width": 100}),
	}
	size, ok, err = m.MinimumImageInputSize(4000, 2000, chain)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, transform.MinimumInputSize{Width: 400, Height: 200, Index: 0}, size)

	require.NoError(t, m.AdjustImageTransformations(chain, 0.125, size.Index))
	assert.Equal(t, domain.Params{"width": 125, "height": 125}, chain[0].Params)
	assert.Equal(t, domain.Params{"width": 100}, chain[1].Params)

	_, ok, err = m.MinimumImageInputSize(4000, 2000, []domain.Transformation{
		tr(Crop, domain.Params{"width": 1000}),
		tr(MaxSize, domain.Params{"width": 100}),
	})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = m.MinimumImageInputSize(4000, 2000, []domain.Transformation{tr(Rotate, domain.Params{"angle": 90})})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	r, err := NewRegistry(zap.NewNop(),
		map[string]string{"shrink": MaxSize},
		map[string]domain.Preset{"avatar": {domain.Positional(Thumbnail), domain.Keyed("shrink", nil)}},
	)
	require.NoError(t, err)
	assert.True(t, r.Has("shrink"))
	assert.True(t, r.IsPreset("avatar"))

	_, err = NewRegistry(nil, nil, map[string]domain.Preset{"broken": {domain.Positional("nope")}})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))

	_, err = NewRegistry(nil, map[string]string{"bad": "builtin.unknown"}, nil)
	assert.Error(t, err)
}
