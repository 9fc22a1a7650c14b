package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/dunamismax/pixelvault/internal/config"
	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/imaging"
	"github.com/dunamismax/pixelvault/internal/pipeline"
	"github.com/dunamismax/pixelvault/internal/queue"
	"github.com/dunamismax/pixelvault/internal/store"
	"github.com/dunamismax/pixelvault/internal/variant"
)

// Processor is the pipeline surface the worker drives.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
	Load(ctx context.Context, req pipeline.Request) (*domain.Image, imaging.Buffer, error)
}

type VariantCache interface {
	Enabled() bool
	Has(ctx context.Context, sourceKey string) (bool, error)
	Generate(ctx context.Context, sourceKey string, buf imaging.Buffer) ([]variant.Entry, error)
}

type VariantScheduler interface {
	EnqueueVariants(ctx context.Context, payload queue.VariantsPayload) (*asynq.TaskInfo, error)
}

// Deps are the collaborators built by the entrypoint. Variants and Scheduler
// may be nil when variant caching is off.
type Deps struct {
	Local     Processor
	Object    Processor
	Store     store.Store
	Variants  VariantCache
	Scheduler VariantScheduler
}

type Server struct {
	logger    *zap.Logger
	server    *asynq.Server
	sem       *semaphore.Weighted
	local     Processor
	object    Processor
	jobStore  store.JobStore
	usage     store.UsageStore
	variants  VariantCache
	scheduler VariantScheduler
	metrics   *metrics
	tracer    trace.Tracer
}

func NewServer(logger *zap.Logger, cfg config.Config, deps Deps) (*Server, error) {
	if deps.Object == nil || deps.Local == nil {
		return nil, errors.New("local and object processors are required")
	}
	if deps.Store == nil {
		return nil, errors.New("job store is required")
	}
	logger = logger.Named("worker")

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			cfg.Redis.ClientOpt(),
			asynq.Config{
				Concurrency: cfg.Worker.Concurrency,
				Queues: map[string]int{
					cfg.Queue.Name: 1,
				},
				Logger:   logger.Named("asynq").Sugar(),
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Warn("task failed",
						zap.String("type", task.Type()),
						zap.Int("retry", retried),
						zap.Int("max_retry", maxRetry),
						zap.Error(err),
					)
				}),
			},
		),
		sem:       semaphore.NewWeighted(int64(max(1, cfg.Worker.MaxActiveJobs))),
		local:     deps.Local,
		object:    deps.Object,
		jobStore:  deps.Store,
		usage:     deps.Store,
		variants:  deps.Variants,
		scheduler: deps.Scheduler,
		metrics:   newMetrics(),
		tracer:    otel.Tracer("pixelvault/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	return s.server.Run(s.mux())
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeRender, s.handleRender)
	mux.HandleFunc(queue.TypeVariants, s.handleVariants)
	return mux
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleRender(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseRenderPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.render", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.source_type", payload.SourceType),
		attribute.Int("job.transformations", len(payload.Transformations)),
	)
	defer span.End()
	defer s.observe(queue.TypeRender, startedAt, &outcome)

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	logger := s.logger.With(zap.String("job_id", payload.JobID), zap.String("source_type", payload.SourceType))
	logger.Info("rendering", zap.String("object_key", payload.ObjectKey), zap.Int("transformations", len(payload.Transformations)))

	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	request := pipeline.Request{
		JobID:           payload.JobID,
		SourceType:      payload.SourceType,
		ObjectKey:       payload.ObjectKey,
		Transformations: payload.Transformations,
		Extension:       payload.Extension,
		MimeType:        payload.MimeType,
	}

	result, err := s.processorFor(payload.SourceType).Process(ctx, request)
	if err != nil {
		s.setResult(ctx, payload.JobID, domain.JobStatusFailed, domain.JobResult{Error: err.Error()})
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		if pipeline.IsClientError(err) {
			logger.Info("render rejected", zap.Error(err))
			return fmt.Errorf("run pipeline: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("run pipeline: %w", err)
	}

	logger.Info("rendered",
		zap.String("output", result.Output.Path),
		zap.Int("width", result.Output.Width),
		zap.Int("height", result.Output.Height),
		zap.Float64("input_scale", result.InputScale),
	)
	s.setResult(ctx, payload.JobID, domain.JobStatusSucceeded, domain.JobResult{
		OutputKey:  result.Output.Path,
		MimeType:   result.Output.MimeType,
		Width:      result.Output.Width,
		Height:     result.Output.Height,
		Bytes:      result.Output.Bytes,
		InputScale: result.InputScale,
	})
	if result.InputScale < 1 {
		s.metrics.variantInputs.Inc()
	}
	s.recordUsage(ctx, payload.JobID, result, time.Since(startedAt))
	s.scheduleVariants(ctx, payload, result)

	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "rendered")
	return nil
}

func (s *Server) handleVariants(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseVariantsPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	if s.variants == nil || !s.variants.Enabled() {
		s.logger.Debug("variant generation disabled", zap.String("source", payload.SourceKey))
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "worker.variants", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(attribute.String("variant.source", payload.SourceKey))
	defer span.End()
	defer s.observe(queue.TypeVariants, startedAt, &outcome)

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if exists, err := s.variants.Has(ctx, payload.SourceKey); err != nil {
		return fmt.Errorf("check variants: %w", err)
	} else if exists {
		outcome = domain.JobStatusSucceeded
		return nil
	}

	_, buf, err := s.object.Load(ctx, pipeline.Request{
		JobID:          "variants",
		SourceType:     domain.SourceTypeObject,
		ObjectKey:      payload.SourceKey,
		SourceMimeType: payload.MimeType,
	})
	if err != nil {
		span.RecordError(err)
		if pipeline.IsClientError(err) {
			return fmt.Errorf("load source: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("load source: %w", err)
	}
	defer buf.Close()

	entries, err := s.variants.Generate(ctx, payload.SourceKey, buf)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "variant generation failed")
		return fmt.Errorf("generate variants: %w", err)
	}

	s.metrics.variantsWritten.Add(float64(len(entries)))
	s.logger.Info("variants generated", zap.String("source", payload.SourceKey), zap.Int("count", len(entries)))
	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "generated")
	return nil
}

func (s *Server) acquire(ctx context.Context) (func(), error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for image slot: %w", err)
	}
	s.metrics.activeJobs.Inc()
	return func() {
		s.metrics.activeJobs.Dec()
		s.sem.Release(1)
	}, nil
}

func (s *Server) observe(taskType string, startedAt time.Time, outcome *string) {
	s.metrics.taskDuration.WithLabelValues(taskType, *outcome).Observe(time.Since(startedAt).Seconds())
	s.metrics.tasksTotal.WithLabelValues(taskType, *outcome).Inc()
}

func (s *Server) processorFor(sourceType string) Processor {
	if sourceType == domain.SourceTypeLocalFile {
		return s.local
	}
	return s.object
}

// scheduleVariants queues generation for object sources that have none yet.
func (s *Server) scheduleVariants(ctx context.Context, payload queue.RenderPayload, result pipeline.Result) {
	if s.variants == nil || s.scheduler == nil || !s.variants.Enabled() {
		return
	}
	if payload.SourceType == domain.SourceTypeLocalFile || result.InputScale < 1 {
		return
	}

	exists, err := s.variants.Has(ctx, payload.ObjectKey)
	if err != nil {
		s.logger.Warn("variant index lookup failed", zap.String("source", payload.ObjectKey), zap.Error(err))
		return
	}
	if exists {
		return
	}

	next := queue.VariantsPayload{SourceKey: payload.ObjectKey, MimeType: result.SourceMimeType}
	if _, err := s.scheduler.EnqueueVariants(ctx, next); err != nil {
		s.logger.Warn("schedule variants failed", zap.String("source", payload.ObjectKey), zap.Error(err))
	}
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Warn("job status update failed", zap.String("job_id", jobID), zap.String("status", status), zap.Error(err))
	}
}

func (s *Server) setResult(ctx context.Context, jobID, status string, result domain.JobResult) {
	if _, err := s.jobStore.SetResult(ctx, jobID, status, result); err != nil {
		s.logger.Warn("job result update failed", zap.String("job_id", jobID), zap.String("status", status), zap.Error(err))
	}
}

func (s *Server) recordUsage(ctx context.Context, jobID string, result pipeline.Result, computeDuration time.Duration) {
	usage := domain.NewUsageLog(
		jobID,
		result.Output.Width,
		result.Output.Height,
		result.SourceBytes,
		result.Output.Bytes,
		computeDuration,
		result.InputScale,
	)
	if err := s.usage.RecordUsage(ctx, usage); err != nil {
		s.logger.Warn("usage log write failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	s.metrics.observeUsage(usage)
}
