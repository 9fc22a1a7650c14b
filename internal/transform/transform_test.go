package transform

import (
	"context"
	"errors"
	"testing"

	"github.com/dunamismax/pixelvault/internal/apperrors"
	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/imaging/imagingtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type applied struct {
	name   string
	params domain.Params
}

type recorder struct {
	name string
	log  *[]applied
	err  error
}

func (r *recorder) Transform(_ context.Context, target *Target, params domain.Params) error {
	if r.log != nil {
		*r.log = append(*r.log, applied{name: r.name, params: params})
	}
	if r.err != nil {
		return r.err
	}
	target.Image.Transformed = true
	return nil
}

type constrained struct {
	recorder
	constraint Constraint
	consulted  *int
}

func (c *constrained) MinimumInputSize(_ domain.Params, _ Size) Constraint {
	if c.consulted != nil {
		*c.consulted++
	}
	return c.constraint
}

func (c *constrained) AdjustParameters(ratio float64, params domain.Params) domain.Params {
	out := params.Clone()
	if out == nil {
		out = domain.Params{}
	}
	out["ratio"] = ratio
	return out
}

type extractor struct {
	constrained
	region Region
}

func (e *extractor) ExtractedRegion(_ domain.Params, _ Size) (Region, bool) {
	return e.region, !e.region.Empty()
}

func newTarget() *Target {
	return &Target{Image: &domain.Image{Width: 4000, Height: 2000}, Buffer: imagingtest.NewBuffer(4000, 2000)}
}

func TestResolveCachesAndInitializesOnce(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	built := 0
	require.NoError(t, r.Register("resize", Factory(func() Handler {
		built++
		return &recorder{name: "resize"}
	})))

	var firstRuns, secondRuns []string
	r.AddInitializer(func(name string, _ Handler) { firstRuns = append(firstRuns, name) })
	r.AddInitializer(func(name string, _ Handler) { secondRuns = append(secondRuns, name) })

	h1, err := r.Resolve("resize")
	require.NoError(t, err)
	h2, err := r.NewManager().Transformation("resize")
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, 1, built)
	assert.Equal(t, []string{"resize"}, firstRuns)
	assert.Equal(t, []string{"resize"}, secondRuns)
}

func TestInitializersRunInRegistrationOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	require.NoError(t, r.Register("blur", Instance(&recorder{name: "blur"})))

	var order []int
	r.AddInitializer(func(string, Handler) { order = append(order, 1) })
	r.AddInitializer(nil)
	r.AddInitializer(func(string, Handler) { order = append(order, 2) })

	_, err := r.Resolve("blur")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, order)
}

func TestResolveByTypeIdentifier(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	require.NoError(t, r.RegisterType("builtin.resize", func() Handler { return &recorder{name: "typed"} }))
	require.NoError(t, r.Register("tiny", Type("builtin.resize")))
	require.NoError(t, r.Register("broken", Type("builtin.missing")))

	h, err := r.Resolve("tiny")
	require.NoError(t, err)
	assert.Equal(t, "typed", h.(*recorder).name)

	_, err = r.Resolve("broken")
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))
	assert.Error(t, r.Validate())
}

func TestResolveUnknown(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(nil).Resolve("nope")
	assert.ErrorIs(t, err, ErrUnknownTransformation)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryUnknownTransformation))
}

func TestRegisterRejectsBadDefinitions(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	require.NoError(t, r.Register("resize", Instance(&recorder{})))

	for name, err := range map[string]error{
		"duplicate":   r.Register("resize", Instance(&recorder{})),
		"empty name":  r.Register(" ", Instance(&recorder{})),
		"zero value":  r.Register("zero", Definition{}),
		"nil factory": r.Register("nilfactory", Factory(nil)),
		"empty type":  r.RegisterType("", func() Handler { return nil }),
		"nil ctor":    r.RegisterType("x", nil),
	} {
		assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration), name)
	}

	require.NoError(t, r.Register("nilhandler", Factory(func() Handler { return nil })))
	_, err := r.Resolve("nilhandler")
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))
}

func TestNamesAreSorted(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	for _, name := range []string{"rotate", "blur", "maxSize", "crop"} {
		require.NoError(t, r.Register(name, Instance(&recorder{name: name})))
	}
	assert.Equal(t, []string{"blur", "crop", "maxSize", "rotate"}, r.Names())
}

func TestPresetsAndValidate(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	require.NoError(t, r.Register("resize", Instance(&recorder{})))
	require.NoError(t, r.SetPreset("thumb", domain.Preset{domain.Positional("resize")}))
	assert.NoError(t, r.Validate())

	assert.True(t, r.Has("resize"))
	assert.True(t, r.Has("thumb"))
	assert.False(t, r.Has("crop"))
	assert.Equal(t, []string{"resize"}, r.Names())
	assert.Equal(t, []string{"thumb"}, r.PresetNames())

	assert.Error(t, r.SetPreset("", domain.Preset{domain.Positional("resize")}))
	assert.Error(t, r.SetPreset("empty", nil))
	assert.Error(t, r.SetPreset("unnamed", domain.Preset{domain.Positional("")}))

	require.NoError(t, r.SetPreset("dangling", domain.Preset{domain.Positional("crop")}))
	assert.ErrorContains(t, r.Validate(), `unknown transformation "crop"`)
}

func newApplyRegistry(t *testing.T, log *[]applied) *Registry {
	t.Helper()

	r := NewRegistry(zap.NewNop())
	for _, name := range []string{"resize", "desaturate", "crop"} {
		require.NoError(t, r.Register(name, Instance(&recorder{name: name, log: log})))
	}
	require.NoError(t, r.SetPreset("thumb", domain.Preset{domain.Positional("resize"), domain.Positional("desaturate")}))
	require.NoError(t, r.SetPreset("thumb2", domain.Preset{domain.Keyed("crop", domain.Params{"width": 10, "height": 10})}))
	return r
}

func TestApplyExpandsPositionalPreset(t *testing.T) {
	t.Parallel()

	var log []applied
	m := newApplyRegistry(t, &log).NewManager()

	err := m.ApplyTransformations(context.Background(), newTarget(), []domain.Transformation{
		{Name: "thumb", Params: domain.Params{"width": 50}},
	})
	require.NoError(t, err)
	assert.Equal(t, []applied{
		{name: "resize", params: domain.Params{"width": 50}},
		{name: "desaturate", params: domain.Params{"width": 50}},
	}, log)
	assert.True(t, m.HasAppliedTransformations())
}

func TestApplyMergesKeyedPreset(t *testing.T) {
	t.Parallel()

	var log []applied
	m := newApplyRegistry(t, &log).NewManager()
	request := domain.Params{"x": 5, "width": 999}

	err := m.ApplyTransformations(context.Background(), newTarget(), []domain.Transformation{
		{Name: "thumb2", Params: request},
	})
	require.NoError(t, err)
	assert.Equal(t, []applied{{name: "crop", params: domain.Params{"x": 5, "width": 10, "height": 10}}}, log)
	assert.Equal(t, domain.Params{"x": 5, "width": 999}, request)
}

func TestApplyRunsPlainEntriesInOrder(t *testing.T) {
	t.Parallel()

	var log []applied
	m := newApplyRegistry(t, &log).NewManager()
	target := newTarget()

	err := m.ApplyTransformations(context.Background(), target, []domain.Transformation{
		{Name: "crop", Params: domain.Params{"width": 1}},
		{Name: "thumb"},
		{Name: "desaturate"},
	})
	require.NoError(t, err)
	names := make([]string, 0, len(log))
	for _, a := range log {
		names = append(names, a.name)
	}
	assert.Equal(t, []string{"crop", "resize", "desaturate", "desaturate"}, names)
	assert.True(t, target.Image.Transformed)
}

func TestApplyUnknownTransformation(t *testing.T) {
	t.Parallel()

	var log []applied
	m := newApplyRegistry(t, &log).NewManager()

	err := m.ApplyTransformations(context.Background(), newTarget(), []domain.Transformation{
		{Name: "resize"},
		{Name: "sepia"},
		{Name: "crop"},
	})
	assert.ErrorIs(t, err, ErrUnknownTransformation)
	assert.Equal(t, 400, apperrors.StatusCode(err))
	assert.Len(t, log, 1)
	assert.False(t, m.HasAppliedTransformations())
}

func TestApplyPropagatesFailureUnchanged(t *testing.T) {
	t.Parallel()

	boom := errors.New("native library exploded")
	r := NewRegistry(nil)
	require.NoError(t, r.Register("explode", Instance(&recorder{name: "explode", err: boom})))

	err := r.NewManager().ApplyTransformations(context.Background(), newTarget(), []domain.Transformation{{Name: "explode"}})
	assert.Same(t, boom, err)
}

func TestApplyStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	var log []applied
	m := newApplyRegistry(t, &log).NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.ApplyTransformations(ctx, newTarget(), []domain.Transformation{{Name: "resize"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, log)
}

func TestApplyEmptyChain(t *testing.T) {
	t.Parallel()

	m := NewRegistry(nil).NewManager()
	require.NoError(t, m.ApplyTransformations(context.Background(), newTarget(), nil))
	assert.False(t, m.HasAppliedTransformations())
}

func TestMergeParams(t *testing.T) {
	t.Parallel()

	request := domain.Params{"x": 5, "width": 999}
	overrides := domain.Params{"width": 10, "height": 10}

	merged := MergeParams(request, overrides)
	assert.Equal(t, domain.Params{"x": 5, "width": 10, "height": 10}, merged)
	assert.Equal(t, domain.Params{"x": 5, "width": 999}, request)
	assert.Equal(t, domain.Params{"width": 10, "height": 10}, overrides)
	assert.Equal(t, domain.Params{}, MergeParams(nil, nil))
}

type loggerAware struct {
	recorder
	logger *zap.Logger
}

func (l *loggerAware) SetLogger(logger *zap.Logger) { l.logger = logger }

func TestLoggerInitializer(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	aware := &loggerAware{}
	require.NoError(t, r.Register("aware", Instance(aware)))
	require.NoError(t, r.Register("plain", Instance(&recorder{})))
	r.AddInitializer(LoggerInitializer(zap.NewNop()))

	_, err := r.Resolve("aware")
	require.NoError(t, err)
	_, err = r.Resolve("plain")
	require.NoError(t, err)
	assert.NotNil(t, aware.logger)
}
