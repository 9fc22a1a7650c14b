package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"
	SourceTypeObject      = "object"
)

// CreateJobRequest accepts the chain either structured or in query form;
// both are concatenated in that order.
type CreateJobRequest struct {
	SourceType      string           `json:"source_type"`
	ObjectKey       string           `json:"object_key,omitempty"`
	Transformations []Transformation `json:"transformations,omitempty"`
	Query           []string         `json:"t,omitempty"`
	Extension       string           `json:"extension"`
	MimeType        string           `json:"mime_type,omitempty"`
}

type Job struct {
	ID              string           `json:"id"`
	Status          string           `json:"status"`
	SourceType      string           `json:"source_type"`
	ObjectKey       string           `json:"object_key"`
	Transformations []Transformation `json:"transformations"`
	Extension       string           `json:"extension"`
	MimeType        string           `json:"mime_type,omitempty"`
	Result          *JobResult       `json:"result,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type JobResult struct {
	OutputKey  string  `json:"output_key,omitempty"`
	MimeType   string  `json:"mime_type,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	Bytes      int     `json:"bytes,omitempty"`
	InputScale float64 `json:"input_scale,omitempty"`
	Error      string  `json:"error,omitempty"`
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	switch sourceType {
	case "":
		return errors.New("source_type is required")
	case SourceTypeLocalFile, SourceTypeObject:
		if strings.TrimSpace(r.ObjectKey) == "" {
			return fmt.Errorf("object_key is required for source_type=%s", sourceType)
		}
	case SourceTypeS3Presigned:
	default:
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if strings.TrimSpace(r.Extension) == "" && strings.TrimSpace(r.MimeType) == "" {
		return errors.New("extension or mime_type is required")
	}
	for i, t := range r.Transformations {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("transformations[%d].name is required", i)
		}
	}
	return nil
}

// Chain returns the structured entries followed by the parsed query entries.
func (r CreateJobRequest) Chain() ([]Transformation, error) {
	parsed, err := ParseTransformations(r.Query)
	if err != nil {
		return nil, err
	}
	chain := make([]Transformation, 0, len(r.Transformations)+len(parsed))
	for _, t := range r.Transformations {
		chain = append(chain, Transformation{Name: strings.TrimSpace(t.Name), Params: t.Params.Clone()})
	}
	return append(chain, parsed...), nil
}
