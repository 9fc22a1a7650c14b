// Package builtin provides the stock transformations. Pixel work is
// delegated to the working buffer, so every imaging backend gets the same
// set.
package builtin

import (
	"fmt"
	"math"
	"strings"

	"github.com/dunamismax/pixelvault/internal/apperrors"
	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/transform"
	"go.uber.org/zap"
)

const (
	MaxSize          = "maxSize"
	Resize           = "resize"
	Thumbnail        = "thumbnail"
	Crop             = "crop"
	Rotate           = "rotate"
	Transpose        = "transpose"
	Transverse       = "transverse"
	FlipHorizontally = "flipHorizontally"
	FlipVertically   = "flipVertically"
	Desaturate       = "desaturate"
	Strip            = "strip"
	Blur             = "blur"
	Sharpen          = "sharpen"
	Contrast         = "contrast"
	Compress         = "compress"
	Watermark        = "watermark"
)

// TypePrefix namespaces the type identifiers registered by Register.
const TypePrefix = "builtin."

var constructors = map[string]func() transform.Handler{
	MaxSize:          func() transform.Handler { return &maxSize{} },
	Resize:           func() transform.Handler { return &resize{} },
	Thumbnail:        func() transform.Handler { return &thumbnail{} },
	Crop:             func() transform.Handler { return &crop{} },
	Rotate:           func() transform.Handler { return &rotate{} },
	Transpose:        func() transform.Handler { return &quarterTurn{name: Transpose} },
	Transverse:       func() transform.Handler { return &quarterTurn{name: Transverse} },
	FlipHorizontally: func() transform.Handler { return &simple{name: FlipHorizontally} },
	FlipVertically:   func() transform.Handler { return &simple{name: FlipVertically} },
	Desaturate:       func() transform.Handler { return &simple{name: Desaturate} },
	Strip:            func() transform.Handler { return &simple{name: Strip} },
	Blur:             func() transform.Handler { return &filter{name: Blur} },
	Sharpen:          func() transform.Handler { return &filter{name: Sharpen} },
	Contrast:         func() transform.Handler { return &contrast{} },
	Compress:         func() transform.Handler { return &compress{} },
	Watermark:        func() transform.Handler { return &watermark{} },
}

// Names lists the builtin transformation names in registration order.
func Names() []string {
	return []string{
		MaxSize, Resize, Thumbnail, Crop, Rotate, Transpose, Transverse,
		FlipHorizontally, FlipVertically, Desaturate, Strip, Blur, Sharpen,
		Contrast, Compress, Watermark,
	}
}

// Register adds a type identifier for every builtin and a transformation of
// the same name backed by that type.
func Register(r *transform.Registry) error {
	for _, name := range Names() {
		if err := r.RegisterType(TypePrefix+name, constructors[name]); err != nil {
			return err
		}
		if err := r.Register(name, transform.Type(TypePrefix+name)); err != nil {
			return err
		}
	}
	return nil
}

// RegisterAliases adds extra names backed by builtin types. Targets may be
// given with or without TypePrefix.
func RegisterAliases(r *transform.Registry, aliases map[string]string) error {
	for alias, target := range aliases {
		id := strings.TrimSpace(target)
		if !strings.HasPrefix(id, TypePrefix) {
			id = TypePrefix + id
		}
		if err := r.Register(alias, transform.Type(id)); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a validated registry holding every builtin, the given
// aliases and presets. Handlers receive a logger named "transform".
func NewRegistry(logger *zap.Logger, aliases map[string]string, presets map[string]domain.Preset) (*transform.Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := transform.NewRegistry(logger)
	r.AddInitializer(transform.LoggerInitializer(logger.Named("transform")))
	if err := Register(r); err != nil {
		return nil, err
	}
	if err := RegisterAliases(r, aliases); err != nil {
		return nil, err
	}
	for name, preset := range presets {
		if err := r.SetPreset(name, preset); err != nil {
			return nil, err
		}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

type base struct {
	logger *zap.Logger
}

func (b *base) SetLogger(logger *zap.Logger) { b.logger = logger }

func (b *base) debug(name string, fields ...zap.Field) {
	if b.logger == nil {
		return
	}
	b.logger.Debug("transform", append([]zap.Field{zap.String("name", name)}, fields...)...)
}

func invalidParams(name, format string, args ...any) error {
	return apperrors.New(
		apperrors.CategoryTransformation,
		name,
		apperrors.Errorf(apperrors.CategoryInvalidParams, name+" params", format, args...),
	)
}

func failed(name string, err error) error {
	return apperrors.Wrap(apperrors.CategoryTransformation, name, err)
}

// commit copies the buffer's dimensions onto the descriptor after err-free
// pixel work.
func commit(name string, target *transform.Target, err error) error {
	if err != nil {
		return failed(name, err)
	}
	target.Image.SetDimensions(target.Buffer.Width(), target.Buffer.Height())
	return nil
}

// intParam reads key and rejects values below lo.
func intParam(name string, params domain.Params, key string, fallback, lo int) (int, error) {
	v, err := params.Int(key, fallback)
	if err != nil {
		return 0, invalidParams(name, "%v", err)
	}
	if v < lo {
		return 0, invalidParams(name, "%s must be at least %d, got %d", key, lo, v)
	}
	return v, nil
}

func floatParam(name string, params domain.Params, key string, fallback float64) (float64, error) {
	v, err := params.Float(key, fallback)
	if err != nil {
		return 0, invalidParams(name, "%v", err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalidParams(name, "%s must be finite", key)
	}
	return v, nil
}

func scaled(width, height int, scale float64) (int, int) {
	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	return max(1, w), max(1, h)
}

func unchanged(params domain.Params) domain.Params {
	if params == nil {
		return domain.Params{}
	}
	return params.Clone()
}

func describe(params domain.Params) zap.Field {
	return zap.String("params", fmt.Sprint(map[string]any(params)))
}
