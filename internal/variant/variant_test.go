package variant

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/dunamismax/pixelvault/internal/codec"
	"github.com/dunamismax/pixelvault/internal/imaging/raster"
	"github.com/dunamismax/pixelvault/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		width int
		cfg   func(*Config)
		want  []int
	}{
		{"defaults", 4000, nil, []int{125, 250, 500, 1000, 2000}},
		{"max width", 4000, func(c *Config) { c.MaxWidth = 1500 }, []int{125, 250, 500, 1000}},
		{"min diff", 4000, func(c *Config) { c.MinDiff = 0.6 }, []int{125, 500, 2000}},
		{"explicit widths", 4000, func(c *Config) { c.Widths = []int{300, 5000, 500, 0} }, []int{125, 250, 300, 500, 1000, 2000}},
		{"too small", 150, nil, nil},
		{"no scaling", 4000, func(c *Config) { c.ScaleFactor = 0; c.Widths = []int{800} }, []int{800}},
		{"empty original", 0, nil, nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			assert.Equal(t, tt.want, Plan(tt.width, cfg))
		})
	}
}

func TestMemoryIndex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Add(ctx, "a", Entry{Width: 500, Height: 250}))
	require.NoError(t, idx.Add(ctx, "a", Entry{Width: 125, Height: 62}))
	require.NoError(t, idx.Add(ctx, "a", Entry{Width: 500, Height: 251}))

	e, ok, err := idx.Smallest(ctx, "a", 200, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Entry{Width: 500, Height: 251}, e)

	e, ok, err = idx.Smallest(ctx, "a", 100, 100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 500, e.Width, "too short entries are skipped")

	_, ok, err = idx.Smallest(ctx, "a", 501, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = idx.Smallest(ctx, "a", 10, 300)
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := idx.List(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Width: 125, Height: 62}, {Width: 500, Height: 251}}, entries)

	require.NoError(t, idx.Delete(ctx, "a"))
	entries, err = idx.List(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseMember(t *testing.T) {
	t.Parallel()

	e, err := parseMember(member(Entry{Width: 640, Height: 480}))
	require.NoError(t, err)
	assert.Equal(t, Entry{Width: 640, Height: 480}, e)

	for _, bad := range []string{"640", "x:480", "640:y"} {
		_, err := parseMember(bad)
		assert.Error(t, err, bad)
	}
}

type memoryBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryBlobs) ReadObject(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return data, nil
}

func (m *memoryBlobs) WriteObject(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func newCache(t *testing.T, cfg Config) (*Cache, *memoryBlobs) {
	t.Helper()

	encoders := codec.NewEncoderManager(nil)
	for _, e := range raster.Encoders() {
		require.NoError(t, encoders.Register(e))
	}
	blobs := newMemoryBlobs()
	c, err := NewCache(cfg, NewMemoryIndex(), blobs, encoders, nil)
	require.NoError(t, err)
	return c, blobs
}

func TestGenerateAndResolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MinWidth = 50
	c, blobs := newCache(t, cfg)

	has, err := c.Has(ctx, "uploads/a.png")
	require.NoError(t, err)
	assert.False(t, has)

	source := raster.New(image.NewNRGBA(image.Rect(0, 0, 400, 200)))
	entries, err := c.Generate(ctx, "uploads/a.png", source)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Width: 50, Height: 25}, {Width: 100, Height: 50}, {Width: 200, Height: 100}}, entries)
	assert.Equal(t, 400, source.Width())
	assert.Equal(t, "image/jpeg", blobs.types[BlobKey("uploads/a.png", 100)])

	has, err = c.Has(ctx, "uploads/a.png")
	require.NoError(t, err)
	assert.True(t, has)

	match, ok, err := c.Resolve(ctx, "uploads/a.png", 400, transform.MinimumInputSize{Width: 80, Height: 40})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100, match.Width)
	assert.Equal(t, 50, match.Height)
	assert.Equal(t, "image/jpeg", match.MimeType)
	assert.InDelta(t, 0.25, match.Ratio, 1e-9)
	assert.NotEmpty(t, match.Blob)

	// A rotated chain needs a tall input: 50x100 is only met by the 200x100 variant.
	match, ok, err = c.Resolve(ctx, "uploads/a.png", 400, transform.MinimumInputSize{Width: 50, Height: 100})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 200, match.Width)
	assert.Equal(t, 100, match.Height)
	assert.InDelta(t, 0.5, match.Ratio, 1e-9)

	_, ok, err = c.Resolve(ctx, "uploads/a.png", 400, transform.MinimumInputSize{Width: 50, Height: 150})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.Resolve(ctx, "uploads/a.png", 400, transform.MinimumInputSize{Width: 300, Height: 150})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.Resolve(ctx, "uploads/missing.png", 400, transform.MinimumInputSize{Width: 10, Height: 5})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveDisabled(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Enabled = false
	c, _ := newCache(t, cfg)
	require.NoError(t, c.index.Add(context.Background(), "k", Entry{Width: 100, Height: 50}))

	_, ok, err := c.Resolve(context.Background(), "k", 400, transform.MinimumInputSize{Width: 10, Height: 5})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, c.Enabled())
}

func TestNewCacheRejectsUnknownExtension(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Extension = "heic"
	_, err := NewCache(cfg, NewMemoryIndex(), newMemoryBlobs(), codec.NewEncoderManager(nil), nil)
	assert.Error(t, err)
}
