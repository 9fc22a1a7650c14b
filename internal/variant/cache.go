package variant

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dunamismax/pixelvault/internal/codec"
	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/imaging"
	"github.com/dunamismax/pixelvault/internal/transform"
)

var tracer = otel.Tracer("pixelvault/variant")

// Blobs is the object storage the variant bytes live in.
type Blobs interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

// Match is a stored variant chosen to stand in for an original.
type Match struct {
	Blob     []byte
	MimeType string
	Width    int
	Height   int
	// Ratio is the variant width divided by the original width.
	Ratio float64
}

type Cache struct {
	cfg      Config
	index    Index
	blobs    Blobs
	encoders *codec.EncoderManager
	logger   *zap.Logger
}

func NewCache(cfg Config, index Index, blobs Blobs, encoders *codec.EncoderManager, logger *zap.Logger) (*Cache, error) {
	if index == nil || blobs == nil || encoders == nil {
		return nil, errors.New("variant cache needs an index, blob storage and encoders")
	}
	if cfg.Extension == "" {
		cfg.Extension = DefaultConfig().Extension
	}
	if !encoders.SupportsExtension(cfg.Extension) {
		return nil, fmt.Errorf("variant extension %q has no encoder", cfg.Extension)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{cfg: cfg, index: index, blobs: blobs, encoders: encoders, logger: logger}, nil
}

func (c *Cache) Enabled() bool { return c.cfg.Enabled }

// BlobKey is the object key of the variant of sourceKey that is width wide.
func BlobKey(sourceKey string, width int) string {
	return "variants/" + sourceKey + "/" + strconv.Itoa(width)
}

// Has reports whether any variant has been stored for sourceKey.
func (c *Cache) Has(ctx context.Context, sourceKey string) (bool, error) {
	entries, err := c.index.List(ctx, sourceKey)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// Generate stores every planned variant of buf, which holds the decoded
// original of sourceKey. buf itself is left untouched.
func (c *Cache) Generate(ctx context.Context, sourceKey string, buf imaging.Buffer) ([]Entry, error) {
	ctx, span := tracer.Start(ctx, "variant.generate")
	defer span.End()

	widths := Plan(buf.Width(), c.cfg)
	span.SetAttributes(attribute.String("variant.source", sourceKey), attribute.Int("variant.count", len(widths)))
	if len(widths) == 0 {
		return nil, nil
	}

	entries := make([]Entry, len(widths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, width := range widths {
		clone, err := buf.Clone()
		if err != nil {
			_ = g.Wait()
			return nil, fmt.Errorf("clone for variant %d: %w", width, err)
		}
		g.Go(func() error {
			defer clone.Close()
			e, err := c.store(gctx, sourceKey, clone, width, buf.Width(), buf.Height())
			if err != nil {
				return fmt.Errorf("variant %d: %w", width, err)
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	c.logger.Info("variants generated", zap.String("source", sourceKey), zap.Ints("widths", widths))
	return entries, nil
}

func (c *Cache) store(ctx context.Context, sourceKey string, buf imaging.Buffer, width, originalWidth, originalHeight int) (Entry, error) {
	height := max(1, int(math.Round(float64(originalHeight)*float64(width)/float64(originalWidth))))
	if err := buf.Resize(width, height); err != nil {
		return Entry{}, err
	}

	img := &domain.Image{Width: width, Height: height, OutputQuality: c.cfg.Quality}
	if err := c.encoders.Convert(buf, img, c.cfg.Extension, ""); err != nil {
		return Entry{}, err
	}
	if err := c.blobs.WriteObject(ctx, BlobKey(sourceKey, width), img.Blob, img.MimeType); err != nil {
		return Entry{}, err
	}

	e := Entry{Width: buf.Width(), Height: buf.Height()}
	if err := c.index.Add(ctx, sourceKey, e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Resolve picks the narrowest stored variant that still satisfies minimum
// for an original originalWidth pixels wide. ok is false when the original
// has to be used.
func (c *Cache) Resolve(ctx context.Context, sourceKey string, originalWidth int, minimum transform.MinimumInputSize) (Match, bool, error) {
	if !c.cfg.Enabled || originalWidth <= 0 {
		return Match{}, false, nil
	}

	ctx, span := tracer.Start(ctx, "variant.resolve")
	defer span.End()

	e, ok, err := c.index.Smallest(ctx, sourceKey, minimum.Width, minimum.Height)
	if err != nil || !ok || e.Width >= originalWidth {
		return Match{}, false, err
	}

	blob, err := c.blobs.ReadObject(ctx, BlobKey(sourceKey, e.Width))
	if err != nil {
		return Match{}, false, fmt.Errorf("read variant %d: %w", e.Width, err)
	}
	mime, _ := c.encoders.MimeTypeFromExtension(c.cfg.Extension)

	span.SetAttributes(attribute.Int("variant.width", e.Width))
	return Match{
		Blob:     blob,
		MimeType: mime,
		Width:    e.Width,
		Height:   e.Height,
		Ratio:    float64(e.Width) / float64(originalWidth),
	}, true, nil
}
