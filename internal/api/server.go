package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dunamismax/pixelvault/internal/apperrors"
	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/queue"
	"github.com/dunamismax/pixelvault/internal/store"
)

type queueEnqueuer interface {
	EnqueueRender(ctx context.Context, payload queue.RenderPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

// TransformationCatalog is satisfied by *transform.Registry.
type TransformationCatalog interface {
	Has(name string) bool
	Names() []string
	PresetNames() []string
	Preset(name string) (domain.Preset, bool)
}

// FormatCatalog is satisfied by *codec.EncoderManager.
type FormatCatalog interface {
	SupportsExtension(extension string) bool
	SupportsMimeType(mimeType string) bool
	Extensions() []string
	MimeTypes() []string
}

type Deps struct {
	Queue           queueEnqueuer
	Store           store.JobStore
	Storage         objectStorage
	Transformations TransformationCatalog
	Formats         FormatCatalog
	RateLimiter     RateLimiter
}

type Server struct {
	logger          *zap.Logger
	queueClient     queueEnqueuer
	jobStore        store.JobStore
	storage         objectStorage
	transformations TransformationCatalog
	formats         FormatCatalog
	rateLimiter     RateLimiter
	presignTTL      time.Duration
	metrics         *metrics
	tracer          trace.Tracer
	mux             *http.ServeMux
}

func NewServer(logger *zap.Logger, deps Deps, presignTTL time.Duration) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	storage := deps.Storage
	if storage == nil {
		storage = unavailableObjectStorage{}
	}

	s := &Server{
		logger:          logger.Named("api"),
		queueClient:     deps.Queue,
		jobStore:        deps.Store,
		storage:         storage,
		transformations: deps.Transformations,
		formats:         deps.Formats,
		rateLimiter:     deps.RateLimiter,
		presignTTL:      presignTTL,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("pixelvault/api"),
		mux:             http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(context.Context, string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.metrics.withHTTPMetrics(s.withTracing(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /v1/transformations", s.handleListTransformations)
	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	s.mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("POST /v1/jobs/{id}/start", s.handleStartJob)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type presetView struct {
	Name    string   `json:"name"`
	Entries []string `json:"entries"`
}

func (s *Server) handleListTransformations(w http.ResponseWriter, _ *http.Request) {
	presets := make([]presetView, 0)
	for _, name := range s.transformations.PresetNames() {
		preset, _ := s.transformations.Preset(name)
		view := presetView{Name: name}
		for _, entry := range preset {
			view.Entries = append(view.Entries, entry.Name)
		}
		presets = append(presets, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transformations": s.transformations.Names(),
		"presets":         presets,
		"formats": map[string][]string{
			"extensions": s.formats.Extensions(),
			"mime_types": s.formats.MimeTypes(),
		},
	})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	chain, err := req.Chain()
	if err != nil {
		s.writeError(w, apperrors.StatusCode(err), err)
		return
	}
	if err := s.validateChain(chain); err != nil {
		s.writeError(w, apperrors.StatusCode(err), err)
		return
	}
	extension := strings.ToLower(strings.TrimSpace(req.Extension))
	mimeType := strings.ToLower(strings.TrimSpace(req.MimeType))
	if err := s.validateOutput(extension, mimeType); err != nil {
		s.writeError(w, apperrors.StatusCode(err), err)
		return
	}

	if !s.allow(w, r, "/v1/jobs", jobCost(chain)) {
		return
	}

	now := time.Now().UTC()
	jobID := uuid.NewString()
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))
	objectKey := strings.TrimSpace(req.ObjectKey)
	uploadState := "not_required"
	presignedPutURL := ""

	if sourceType == domain.SourceTypeS3Presigned {
		objectKey = fmt.Sprintf("uploads/%s/source", jobID)
		url, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.presignTTL)
		if err != nil {
			s.logger.Error("generate presigned url failed", zap.String("job_id", jobID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate upload URL"})
			return
		}
		presignedPutURL = url
		uploadState = "ready"
	}

	job := domain.Job{
		ID:              jobID,
		Status:          domain.JobStatusCreated,
		SourceType:      sourceType,
		ObjectKey:       objectKey,
		Transformations: chain,
		Extension:       extension,
		MimeType:        mimeType,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.jobStore.Create(r.Context(), job); err != nil {
		s.logger.Error("create job failed", zap.String("job_id", job.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create job"})
		return
	}
	s.metrics.observeJob(sourceType, chain)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
		"upload": map[string]string{
			"object_key":          job.ObjectKey,
			"presigned_put_url":   presignedPutURL,
			"presigned_url_state": uploadState,
		},
		"start_url": fmt.Sprintf("/v1/jobs/%s/start", job.ID),
	})
}

// validateChain rejects names that are neither transformations nor presets
// before anything is queued.
func (s *Server) validateChain(chain []domain.Transformation) error {
	for i, t := range chain {
		if !s.transformations.Has(t.Name) {
			return apperrors.Errorf(apperrors.CategoryUnknownTransformation, "validate chain",
				"transformations[%d]: unknown transformation %q", i, t.Name)
		}
	}
	return nil
}

// validateOutput mirrors the encoder lookup: an unsupported extension is
// fine when the mime type can still be encoded.
func (s *Server) validateOutput(extension, mimeType string) error {
	const op = "validate output"
	extOK := extension != "" && s.formats.SupportsExtension(extension)
	mimeOK := mimeType != "" && s.formats.SupportsMimeType(mimeType)
	switch {
	case extOK || mimeOK || (extension == "" && mimeType == ""):
		return nil
	case mimeType == "":
		return apperrors.Errorf(apperrors.CategoryUnsupportedFormat, op, "output extension %q is not supported", extension)
	case extension == "":
		return apperrors.Errorf(apperrors.CategoryUnsupportedFormat, op, "output mime type %q is not supported", mimeType)
	default:
		return apperrors.Errorf(apperrors.CategoryUnsupportedFormat, op,
			"neither output extension %q nor mime type %q is supported", extension, mimeType)
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if !s.allow(w, r, "/v1/jobs/{id}/start", 1) {
		return
	}

	if err := s.verifySourceExists(r.Context(), job); err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}

	taskInfo, err := s.queueClient.EnqueueRender(r.Context(), queue.RenderPayloadFor(job))
	if err != nil {
		s.logger.Error("enqueue failed", zap.String("job_id", job.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue job"})
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.jobStore.UpdateStatus(r.Context(), job.ID, domain.JobStatusQueued); err != nil {
		s.logger.Warn("update status failed", zap.String("job_id", job.ID), zap.Error(err))
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      domain.JobStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (domain.Job, bool) {
	jobID := strings.TrimSpace(r.PathValue("id"))
	if jobID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "job id is required"})
		return domain.Job{}, false
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Error("fetch job failed", zap.String("job_id", jobID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
		return domain.Job{}, false
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return domain.Job{}, false
	}
	return job, true
}

func (s *Server) verifySourceExists(ctx context.Context, job domain.Job) error {
	switch job.SourceType {
	case domain.SourceTypeLocalFile:
		if _, err := os.Stat(job.ObjectKey); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("source object is missing: %s", job.ObjectKey)
			}
			return fmt.Errorf("source object check failed: %w", err)
		}
		return nil
	default:
		exists, err := s.storage.ObjectExists(ctx, job.ObjectKey)
		if err != nil {
			return fmt.Errorf("source object check failed: %w", err)
		}
		if !exists {
			return fmt.Errorf("source object is missing: %s", job.ObjectKey)
		}
		return nil
	}
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]string{"error": err.Error()}
	label := "uncategorized"
	if category, ok := apperrors.CategoryOf(err); ok {
		body["category"] = string(category)
		label = string(category)
	}
	s.metrics.errorsTotal.WithLabelValues(label).Inc()
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
