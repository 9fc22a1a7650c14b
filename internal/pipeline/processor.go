package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/dunamismax/pixelvault/internal/apperrors"
	"github.com/dunamismax/pixelvault/internal/codec"
	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/imaging"
	"github.com/dunamismax/pixelvault/internal/storage"
	"github.com/dunamismax/pixelvault/internal/transform"
	"github.com/dunamismax/pixelvault/internal/variant"
)

const SourceTypeLocalFile = domain.SourceTypeLocalFile

var ErrUnsupportedSourceType = errors.New("unsupported source_type")

var tracer = otel.Tracer("pixelvault/pipeline")

type Request struct {
	JobID      string
	SourceType string
	ObjectKey  string
	// SourceMimeType skips content sniffing when set.
	SourceMimeType  string
	Transformations []domain.Transformation
	// Extension and MimeType select the output format. Both empty keeps the
	// source format.
	Extension string
	MimeType  string
}

type Output struct {
	Path      string
	MimeType  string
	Extension string
	Bytes     int
	Width     int
	Height    int
}

type Result struct {
	Image          *domain.Image
	Output         Output
	SourceBytes    int
	SourceMimeType string
	// InputScale is the width ratio of the input actually decoded to the
	// original. It is 1 unless a variant was substituted.
	InputScale float64
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, img *domain.Image) (Output, error)
}

// VariantResolver offers a smaller pre-scaled input for a source.
type VariantResolver interface {
	Resolve(ctx context.Context, sourceKey string, originalWidth int, minimum transform.MinimumInputSize) (variant.Match, bool, error)
}

// Codecs bundles the decoder and encoder chains of one imaging backend.
type Codecs struct {
	Decoders *codec.DecoderManager
	Encoders *codec.EncoderManager
}

type Processor struct {
	fetcher         Fetcher
	emitter         Emitter
	codecs          Codecs
	transformations *transform.Registry
	variants        VariantResolver
	logger          *zap.Logger
}

type Option func(*Processor)

func WithVariants(v VariantResolver) Option {
	return func(p *Processor) { p.variants = v }
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func New(fetcher Fetcher, emitter Emitter, codecs Codecs, transformations *transform.Registry, opts ...Option) *Processor {
	p := &Processor{
		fetcher:         fetcher,
		emitter:         emitter,
		codecs:          codecs,
		transformations: transformations,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewLocalProcessor reads sources from and writes outputs to the local
// filesystem using the backend selected at build time.
func NewLocalProcessor(outputDir string, transformations *transform.Registry, logger *zap.Logger) (*Processor, error) {
	codecs, err := NewCodecs(imaging.DefaultProfiles(), logger)
	if err != nil {
		return nil, fmt.Errorf("build codecs: %w", err)
	}
	return New(LocalFileFetcher{}, LocalFileEmitter{OutputDir: outputDir}, codecs, transformations, WithLogger(logger)), nil
}

func (p *Processor) Codecs() Codecs { return p.codecs }

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	ctx, span := tracer.Start(ctx, "pipeline.process")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", req.JobID), attribute.Int("pipeline.transformations", len(req.Transformations)))

	source, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	mime := req.SourceMimeType
	if mime == "" {
		mime = DetectMimeType(source)
	}
	img, buf, err := p.decode(ctx, source, mime)
	if err != nil {
		return Result{}, fmt.Errorf("decode stage: %w", err)
	}
	defer func() { buf.Close() }()

	result := Result{Image: img, SourceBytes: len(source), SourceMimeType: mime, InputScale: 1}
	manager := p.transformations.NewManager()
	chain := domain.CloneChain(req.Transformations)

	if p.variants != nil && req.ObjectKey != "" {
		substitute, scale, err := p.substitute(ctx, manager, req.ObjectKey, img, chain)
		if err != nil {
			return Result{}, fmt.Errorf("variant stage: %w", err)
		}
		if substitute != nil {
			buf.Close()
			buf = substitute
			result.InputScale = scale
		}
	}

	applyCtx, applySpan := tracer.Start(ctx, "pipeline.transform")
	err = manager.ApplyTransformations(applyCtx, &transform.Target{Image: img, Buffer: buf}, chain)
	applySpan.End()
	if err != nil {
		return Result{}, fmt.Errorf("transform stage: %w", err)
	}

	extension, mimeType := req.Extension, req.MimeType
	if extension == "" && mimeType == "" {
		extension, mimeType = img.Extension, img.MimeType
	}
	if err := p.codecs.Encoders.Convert(buf, img, extension, mimeType); err != nil {
		return Result{}, fmt.Errorf("encode stage: %w", err)
	}

	out, err := p.emitter.Emit(ctx, req, img)
	if err != nil {
		return Result{}, fmt.Errorf("emit stage: %w", err)
	}
	result.Output = out

	p.logger.Debug("pipeline finished",
		zap.String("job_id", req.JobID),
		zap.String("mime_type", img.MimeType),
		zap.Int("width", img.Width),
		zap.Int("height", img.Height),
		zap.Float64("input_scale", result.InputScale),
		zap.Bool("transformed", manager.HasAppliedTransformations()),
	)
	return result, nil
}

// Load fetches and decodes the request source without transforming it.
// Callers own the returned buffer.
func (p *Processor) Load(ctx context.Context, req Request) (*domain.Image, imaging.Buffer, error) {
	source, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch stage: %w", err)
	}
	mime := req.SourceMimeType
	if mime == "" {
		mime = DetectMimeType(source)
	}
	img, buf, err := p.decode(ctx, source, mime)
	if err != nil {
		return nil, nil, fmt.Errorf("decode stage: %w", err)
	}
	return img, buf, nil
}

func (p *Processor) decode(ctx context.Context, blob []byte, mime string) (*domain.Image, imaging.Buffer, error) {
	_, span := tracer.Start(ctx, "pipeline.decode")
	defer span.End()
	span.SetAttributes(attribute.String("image.mime_type", mime))

	buf, err := p.codecs.Decoders.Load(mime, blob)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	ext, _ := p.codecs.Decoders.ExtensionFromMimeType(mime)
	return domain.NewImage(blob, mime, ext, buf.Width(), buf.Height()), buf, nil
}

// substitute swaps in a stored variant when the chain can run on a smaller
// input and rescales the chain for it. A nil buffer means the original stays.
// Variant lookups that fail are logged and treated as misses.
func (p *Processor) substitute(ctx context.Context, manager *transform.Manager, sourceKey string, img *domain.Image, chain []domain.Transformation) (imaging.Buffer, float64, error) {
	minimum, ok, err := manager.MinimumImageInputSize(img.Width, img.Height, chain)
	if err != nil || !ok {
		return nil, 0, err
	}

	match, found, err := p.variants.Resolve(ctx, sourceKey, img.Width, minimum)
	if err != nil {
		p.logger.Warn("variant lookup failed", zap.String("source", sourceKey), zap.Error(err))
		return nil, 0, nil
	}
	if !found {
		return nil, 0, nil
	}

	buf, err := p.codecs.Decoders.Load(match.MimeType, match.Blob)
	if err != nil {
		p.logger.Warn("variant decode failed", zap.String("source", sourceKey), zap.Int("width", match.Width), zap.Error(err))
		return nil, 0, nil
	}
	if err := manager.AdjustImageTransformations(chain, match.Ratio, minimum.Index); err != nil {
		buf.Close()
		return nil, 0, err
	}

	img.Width, img.Height = buf.Width(), buf.Height()
	p.logger.Debug("variant substituted",
		zap.String("source", sourceKey),
		zap.Int("min_width", minimum.Width),
		zap.Int("variant_width", match.Width),
		zap.Float64("ratio", match.Ratio),
	)
	return buf, match.Ratio, nil
}

// DetectMimeType sniffs the encoded bytes, recognizing TIFF which the
// net/http sniffer does not.
func DetectMimeType(blob []byte) string {
	if len(blob) >= 4 && (string(blob[:4]) == "II*\x00" || string(blob[:4]) == "MM\x00*") {
		return "image/tiff"
	}
	mime := http.DetectContentType(blob)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return mime
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

// LocalFileEmitter writes {OutputDir}/{job}.{ext}.
type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, img *domain.Image) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}
	if err := os.MkdirAll(e.OutputDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(e.OutputDir, outputName(req.JobID, img.Extension))
	return writeFile(fullPath, img)
}

// FileEmitter writes to one fixed path.
type FileEmitter struct {
	Path string
}

func (e FileEmitter) Emit(_ context.Context, _ Request, img *domain.Image) (Output, error) {
	if strings.TrimSpace(e.Path) == "" {
		return Output{}, errors.New("output path is required")
	}
	if dir := filepath.Dir(e.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Output{}, fmt.Errorf("create output dir: %w", err)
		}
	}
	return writeFile(e.Path, img)
}

func writeFile(path string, img *domain.Image) (Output, error) {
	if err := os.WriteFile(path, img.Blob, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}
	return outputFor(path, img), nil
}

func outputFor(path string, img *domain.Image) Output {
	return Output{
		Path:      path,
		MimeType:  img.MimeType,
		Extension: img.Extension,
		Bytes:     img.Filesize(),
		Width:     img.Width,
		Height:    img.Height,
	}
}

func outputName(jobID, extension string) string {
	return sanitizePathToken(jobID) + "." + sanitizePathToken(extension)
}

// IsClientError reports failures a retry with the same request cannot fix.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnsupportedSourceType) ||
		errors.Is(err, storage.ErrObjectNotFound) ||
		apperrors.IsClientError(err)
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
