package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dunamismax/pixelvault/internal/domain"
)

const (
	TypeRender   = "image:render"
	TypeVariants = "image:variants"
)

type RenderPayload struct {
	JobID           string                  `json:"job_id"`
	SourceType      string                  `json:"source_type"`
	ObjectKey       string                  `json:"object_key"`
	Transformations []domain.Transformation `json:"transformations"`
	Extension       string                  `json:"extension,omitempty"`
	MimeType        string                  `json:"mime_type,omitempty"`
	RequestedAt     time.Time               `json:"requested_at"`
}

// RenderPayloadFor copies everything the worker needs from a persisted job.
func RenderPayloadFor(job domain.Job) RenderPayload {
	return RenderPayload{
		JobID:           job.ID,
		SourceType:      job.SourceType,
		ObjectKey:       job.ObjectKey,
		Transformations: job.Transformations,
		Extension:       job.Extension,
		MimeType:        job.MimeType,
		RequestedAt:     time.Now().UTC(),
	}
}

type VariantsPayload struct {
	SourceKey string `json:"source_key"`
	MimeType  string `json:"mime_type,omitempty"`
}

func NewRenderTask(payload RenderPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal render payload: %w", err)
	}
	return asynq.NewTask(TypeRender, body), nil
}

func ParseRenderPayload(task *asynq.Task) (RenderPayload, error) {
	var payload RenderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RenderPayload{}, fmt.Errorf("unmarshal render payload: %w", err)
	}
	return payload, nil
}

func NewVariantsTask(payload VariantsPayload) (*asynq.Task, error) {
	if payload.SourceKey == "" {
		return nil, fmt.Errorf("variants payload: source_key is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal variants payload: %w", err)
	}
	return asynq.NewTask(TypeVariants, body), nil
}

func ParseVariantsPayload(task *asynq.Task) (VariantsPayload, error) {
	var payload VariantsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return VariantsPayload{}, fmt.Errorf("unmarshal variants payload: %w", err)
	}
	return payload, nil
}

// VariantsTaskID is stable per source so concurrent renders schedule one generation.
func VariantsTaskID(sourceKey string) string {
	return TypeVariants + ":" + sourceKey
}
