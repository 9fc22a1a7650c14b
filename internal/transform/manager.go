package transform

import (
	"context"

	"github.com/dunamismax/pixelvault/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("pixelvault/transform")

// Manager applies chains for one request. It is not safe for concurrent use.
type Manager struct {
	registry *Registry
	logger   *zap.Logger
	applied  bool
}

func (m *Manager) Transformation(name string) (Handler, error) {
	return m.registry.Resolve(name)
}

// ApplyTransformations runs chain against target in order, expanding
// presets on the way. Errors raised by a handler are returned unchanged and
// leave target partially transformed.
func (m *Manager) ApplyTransformations(ctx context.Context, target *Target, chain []domain.Transformation) error {
	for _, entry := range chain {
		preset, isPreset := m.registry.Preset(entry.Name)
		if !isPreset {
			if err := m.apply(ctx, target, entry.Name, entry.Params); err != nil {
				return err
			}
			continue
		}

		for _, presetEntry := range preset {
			params := entry.Params
			if !presetEntry.Positional() {
				params = MergeParams(entry.Params, presetEntry.Overrides)
			}
			if err := m.apply(ctx, target, presetEntry.Name, params); err != nil {
				return err
			}
		}
	}

	if len(chain) > 0 {
		m.applied = true
	}
	return nil
}

func (m *Manager) apply(ctx context.Context, target *Target, name string, params domain.Params) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	h, err := m.registry.Resolve(name)
	if err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "transform."+name)
	span.SetAttributes(attribute.Int("transform.params", len(params)))
	defer span.End()

	if err := h.Transform(ctx, target, params); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transformation failed")
		return err
	}
	m.logger.Debug("transformation applied", zap.String("name", name))
	return nil
}

// HasAppliedTransformations reports whether ApplyTransformations has run a
// non-empty chain.
func (m *Manager) HasAppliedTransformations() bool {
	return m.applied
}

// MergeParams returns request params overlaid with overrides. Neither input
// is modified.
func MergeParams(request, overrides domain.Params) domain.Params {
	merged := make(domain.Params, len(request)+len(overrides))
	for k, v := range request {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// LoggerAware handlers receive a named logger from LoggerInitializer.
type LoggerAware interface {
	SetLogger(logger *zap.Logger)
}

func LoggerInitializer(logger *zap.Logger) Initializer {
	return func(name string, h Handler) {
		if aware, ok := h.(LoggerAware); ok {
			aware.SetLogger(logger.Named(name))
		}
	}
}
