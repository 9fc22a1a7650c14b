package builtin

import (
	"context"
	"math"

	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/transform"
	"go.uber.org/zap"
)

const (
	cropCenter  = "center"
	cropCenterX = "center-x"
	cropCenterY = "center-y"
)

type crop struct{ base }

// region resolves the crop rectangle against an input of width x height,
// clamping it to the input edges.
func (t *crop) region(params domain.Params, width, height int) (transform.Region, error) {
	if !params.Has("width") || !params.Has("height") {
		return transform.Region{}, invalidParams(Crop, "width and height are required")
	}
	w, err := intParam(Crop, params, "width", 0, 1)
	if err != nil {
		return transform.Region{}, err
	}
	h, err := intParam(Crop, params, "height", 0, 1)
	if err != nil {
		return transform.Region{}, err
	}
	x, err := intParam(Crop, params, "x", 0, 0)
	if err != nil {
		return transform.Region{}, err
	}
	y, err := intParam(Crop, params, "y", 0, 0)
	if err != nil {
		return transform.Region{}, err
	}

	switch mode := params.String("mode", ""); mode {
	case "":
	case cropCenter:
		x, y = (width-w)/2, (height-h)/2
	case cropCenterX:
		x = (width - w) / 2
	case cropCenterY:
		y = (height - h) / 2
	default:
		return transform.Region{}, invalidParams(Crop, "unknown mode %q", mode)
	}

	x, y = max(0, x), max(0, y)
	if x >= width || y >= height {
		return transform.Region{}, invalidParams(Crop, "region %d,%d is outside the %dx%d image", x, y, width, height)
	}
	return transform.Region{X: x, Y: y, Width: min(w, width-x), Height: min(h, height-y)}, nil
}

func (t *crop) Transform(_ context.Context, target *transform.Target, params domain.Params) error {
	buf := target.Buffer
	r, err := t.region(params, buf.Width(), buf.Height())
	if err != nil {
		return err
	}
	if r.X == 0 && r.Y == 0 && r.Width == buf.Width() && r.Height == buf.Height() {
		return nil
	}
	t.debug(Crop, zap.Int("x", r.X), zap.Int("y", r.Y), zap.Int("width", r.Width), zap.Int("height", r.Height))
	return commit(Crop, target, buf.Crop(r.X, r.Y, r.Width, r.Height))
}

func (t *crop) ExtractedRegion(params domain.Params, input transform.Size) (transform.Region, bool) {
	r, err := t.region(params, input.Width, input.Height)
	if err != nil {
		return transform.Region{}, false
	}
	return r, true
}

// MinimumInputSize does not bound the input on its own; the region it reads
// rescales the bound of later entries instead.
func (t *crop) MinimumInputSize(params domain.Params, input transform.Size) transform.Constraint {
	if _, ok := t.ExtractedRegion(params, input); !ok {
		return transform.StopResolving()
	}
	return transform.NoConstraint()
}

func (t *crop) AdjustParameters(ratio float64, params domain.Params) domain.Params {
	out := unchanged(params)
	for _, key := range []string{"x", "y", "width", "height"} {
		if !params.Has(key) {
			continue
		}
		v, err := params.Float(key, 0)
		if err != nil {
			continue
		}
		scaledValue := int(math.Round(v * ratio))
		if key == "width" || key == "height" {
			scaledValue = max(1, scaledValue)
		}
		out[key] = scaledValue
	}
	return out
}
