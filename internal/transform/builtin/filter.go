package builtin

import (
	"context"

	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/imaging"
	"github.com/dunamismax/pixelvault/internal/transform"
	"go.uber.org/zap"
)

// simple wraps the parameterless buffer operations.
type simple struct {
	base
	name string
}

func (t *simple) Transform(_ context.Context, target *transform.Target, params domain.Params) error {
	t.debug(t.name, describe(params))
	buf := target.Buffer
	var err error
	switch t.name {
	case FlipHorizontally:
		err = buf.Flip(imaging.Horizontal)
	case FlipVertically:
		err = buf.Flip(imaging.Vertical)
	case Desaturate:
		err = buf.Grayscale()
	case Strip:
		err = buf.Strip()
		if err == nil {
			target.Image.Metadata = map[string]any{}
		}
	}
	return commit(t.name, target, err)
}

// filter covers blur and sharpen, which share a sigma param.
type filter struct {
	base
	name string
}

func (t *filter) Transform(_ context.Context, target *transform.Target, params domain.Params) error {
	sigma, err := floatParam(t.name, params, "sigma", 1)
	if err != nil {
		return err
	}
	if sigma <= 0 {
		return invalidParams(t.name, "sigma must be positive, got %g", sigma)
	}
	t.debug(t.name, zap.Float64("sigma", sigma))
	if t.name == Sharpen {
		return commit(t.name, target, target.Buffer.Sharpen(sigma))
	}
	return commit(t.name, target, target.Buffer.Blur(sigma))
}

type contrast struct{ base }

func (t *contrast) Transform(_ context.Context, target *transform.Target, params domain.Params) error {
	if !params.Has("amount") {
		return invalidParams(Contrast, "amount is required")
	}
	amount, err := floatParam(Contrast, params, "amount", 0)
	if err != nil {
		return err
	}
	if amount < -100 || amount > 100 {
		return invalidParams(Contrast, "amount must be within [-100, 100], got %g", amount)
	}
	t.debug(Contrast, zap.Float64("amount", amount))
	return commit(Contrast, target, target.Buffer.Contrast(amount))
}

// compress only records a quality hint for the encoder.
type compress struct{ base }

func (t *compress) Transform(_ context.Context, target *transform.Target, params domain.Params) error {
	if !params.Has("level") {
		return invalidParams(Compress, "level is required")
	}
	level, err := intParam(Compress, params, "level", 0, 1)
	if err != nil {
		return err
	}
	if level > 100 {
		return invalidParams(Compress, "level must be within [1, 100], got %d", level)
	}
	t.debug(Compress, zap.Int("level", level))
	target.Image.OutputQuality = level
	target.Image.Transformed = true
	return nil
}

type watermark struct{ base }

func (t *watermark) Transform(_ context.Context, target *transform.Target, params domain.Params) error {
	text := params.String("text", "")
	if text == "" {
		return invalidParams(Watermark, "text is required")
	}
	opacity, err := floatParam(Watermark, params, "opacity", imaging.DefaultWatermarkOpacity)
	if err != nil {
		return err
	}
	w := imaging.Watermark{Text: text, Opacity: opacity, Gravity: imaging.ParseGravity(params.String("gravity", ""))}
	t.debug(Watermark, zap.String("gravity", string(w.Gravity)))
	return commit(Watermark, target, target.Buffer.Watermark(w))
}
