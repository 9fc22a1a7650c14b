package builtin

import (
	"context"
	"math"

	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/transform"
	"go.uber.org/zap"
)

// bounds reads the optional width and height params; at least one must be set.
func bounds(name string, params domain.Params) (int, int, error) {
	width, err := intParam(name, params, "width", 0, 0)
	if err != nil {
		return 0, 0, err
	}
	height, err := intParam(name, params, "height", 0, 0)
	if err != nil {
		return 0, 0, err
	}
	if width == 0 && height == 0 {
		return 0, 0, invalidParams(name, "width or height is required")
	}
	return width, height, nil
}

// fitScale is the factor that fits width x height inside maxWidth x
// maxHeight, where zero means unbounded.
func fitScale(width, height, maxWidth, maxHeight int) float64 {
	scale := math.Inf(1)
	if maxWidth > 0 {
		scale = float64(maxWidth) / float64(width)
	}
	if maxHeight > 0 {
		scale = math.Min(scale, float64(maxHeight)/float64(height))
	}
	return scale
}

type maxSize struct{ base }

func (t *maxSize) Transform(_ context.Context, target *transform.Target, params domain.Params) error {
	maxWidth, maxHeight, err := bounds(MaxSize, params)
	if err != nil {
		return err
	}
	buf := target.Buffer
	scale := fitScale(buf.Width(), buf.Height(), maxWidth, maxHeight)
	if scale >= 1 {
		return nil
	}
	width, height := scaled(buf.Width(), buf.Height(), scale)
	t.debug(MaxSize, zap.Int("width", width), zap.Int("height", height))
	return commit(MaxSize, target, buf.Resize(width, height))
}

func (t *maxSize) MinimumInputSize(params domain.Params, input transform.Size) transform.Constraint {
	maxWidth, maxHeight, err := bounds(MaxSize, params)
	if err != nil {
		return transform.StopResolving()
	}
	scale := fitScale(input.Width, input.Height, maxWidth, maxHeight)
	if scale >= 1 {
		return transform.NoConstraint()
	}
	return transform.MinimumSize(float64(input.Width)*scale, float64(input.Height)*scale)
}

func (t *maxSize) AdjustParameters(_ float64, params domain.Params) domain.Params {
	return unchanged(params)
}

type resize struct{ base }

// target fills in a missing side from the aspect ratio of the input.
func (t *resize) target(params domain.Params, width, height int) (int, int, error) {
	w, h, err := bounds(Resize, params)
	if err != nil {
		return 0, 0, err
	}
	switch {
	case w == 0:
		w = max(1, int(math.Round(float64(width)*float64(h)/float64(height))))
	case h == 0:
		h = max(1, int(math.Round(float64(height)*float64(w)/float64(width))))
	}
	return w, h, nil
}

func (t *resize) Transform(_ context.Context, target *transform.Target, params domain.Params) error {
	buf := target.Buffer
	width, height, err := t.target(params, buf.Width(), buf.Height())
	if err != nil {
		return err
	}
	if width == buf.Width() && height == buf.Height() {
		return nil
	}
	t.debug(Resize, zap.Int("width", width), zap.Int("height", height))
	return commit(Resize, target, buf.Resize(width, height))
}

func (t *resize) MinimumInputSize(params domain.Params, input transform.Size) transform.Constraint {
	width, height, err := t.target(params, input.Width, input.Height)
	if err != nil {
		return transform.StopResolving()
	}
	return transform.MinimumSize(float64(width), float64(height))
}

func (t *resize) AdjustParameters(_ float64, params domain.Params) domain.Params {
	return unchanged(params)
}

const (
	fitOutbound = "outbound"
	fitInset    = "inset"
)

type thumbnail struct{ base }

func (t *thumbnail) options(params domain.Params) (width, height int, fit string, err error) {
	if width, err = intParam(Thumbnail, params, "width", 50, 1); err != nil {
		return 0, 0, "", err
	}
	if height, err = intParam(Thumbnail, params, "height", 50, 1); err != nil {
		return 0, 0, "", err
	}
	fit = params.String("fit", fitOutbound)
	if fit != fitOutbound && fit != fitInset {
		return 0, 0, "", invalidParams(Thumbnail, "fit must be %q or %q, got %q", fitOutbound, fitInset, fit)
	}
	return width, height, fit, nil
}

// scale is the resize factor applied to a width x height input before the
// outbound crop.
func (t *thumbnail) scale(width, height, targetWidth, targetHeight int, fit string) float64 {
	sx := float64(targetWidth) / float64(width)
	sy := float64(targetHeight) / float64(height)
	if fit == fitOutbound {
		return math.Max(sx, sy)
	}
	return math.Min(sx, sy)
}

func (t *thumbnail) Transform(_ context.Context, target *transform.Target, params domain.Params) error {
	targetWidth, targetHeight, fit, err := t.options(params)
	if err != nil {
		return err
	}
	buf := target.Buffer
	scale := t.scale(buf.Width(), buf.Height(), targetWidth, targetHeight, fit)
	t.debug(Thumbnail, zap.Int("width", targetWidth), zap.Int("height", targetHeight), zap.String("fit", fit))

	if fit == fitInset {
		if scale >= 1 {
			return nil
		}
		width, height := scaled(buf.Width(), buf.Height(), scale)
		return commit(Thumbnail, target, buf.Resize(width, height))
	}

	width, height := scaled(buf.Width(), buf.Height(), scale)
	width, height = max(width, targetWidth), max(height, targetHeight)
	if err := buf.Resize(width, height); err != nil {
		return failed(Thumbnail, err)
	}
	x, y := (width-targetWidth)/2, (height-targetHeight)/2
	return commit(Thumbnail, target, buf.Crop(x, y, targetWidth, targetHeight))
}

func (t *thumbnail) MinimumInputSize(params domain.Params, input transform.Size) transform.Constraint {
	targetWidth, targetHeight, fit, err := t.options(params)
	if err != nil {
		return transform.StopResolving()
	}
	scale := t.scale(input.Width, input.Height, targetWidth, targetHeight, fit)
	if scale >= 1 {
		return transform.NoConstraint()
	}
	return transform.MinimumSize(float64(input.Width)*scale, float64(input.Height)*scale)
}

func (t *thumbnail) AdjustParameters(_ float64, params domain.Params) domain.Params {
	return unchanged(params)
}
