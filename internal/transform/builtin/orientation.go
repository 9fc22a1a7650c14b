package builtin

import (
	"context"

	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/imaging"
	"github.com/dunamismax/pixelvault/internal/transform"
	"go.uber.org/zap"
)

type rotate struct{ base }

func (t *rotate) angle(params domain.Params) (float64, error) {
	if !params.Has("angle") {
		return 0, invalidParams(Rotate, "angle is required")
	}
	return floatParam(Rotate, params, "angle", 0)
}

func (t *rotate) Transform(_ context.Context, target *transform.Target, params domain.Params) error {
	angle, err := t.angle(params)
	if err != nil {
		return err
	}
	bg, err := imaging.ParseColor(params.String("bg", "000000"))
	if err != nil {
		return invalidParams(Rotate, "bg: %v", err)
	}
	t.debug(Rotate, zap.Float64("angle", angle))
	return commit(Rotate, target, target.Buffer.Rotate(angle, bg))
}

func (t *rotate) MinimumInputSize(params domain.Params, _ transform.Size) transform.Constraint {
	angle, err := t.angle(params)
	if err != nil {
		return transform.StopResolving()
	}
	return transform.Rotation(angle)
}

func (t *rotate) AdjustParameters(_ float64, params domain.Params) domain.Params {
	return unchanged(params)
}

// quarterTurn covers transpose and transverse, both of which swap the axes.
type quarterTurn struct {
	base
	name string
}

func (t *quarterTurn) Transform(_ context.Context, target *transform.Target, _ domain.Params) error {
	t.debug(t.name)
	if t.name == Transverse {
		return commit(t.name, target, target.Buffer.Transverse())
	}
	return commit(t.name, target, target.Buffer.Transpose())
}

func (t *quarterTurn) MinimumInputSize(domain.Params, transform.Size) transform.Constraint {
	return transform.Rotation(90)
}

func (t *quarterTurn) AdjustParameters(_ float64, params domain.Params) domain.Params {
	return unchanged(params)
}
