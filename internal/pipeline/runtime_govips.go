//go:build govips && cgo

package pipeline

import (
	"sync"

	govips "github.com/davidbyttow/govips/v2/vips"
	"go.uber.org/zap"

	"github.com/dunamismax/pixelvault/internal/codec"
	"github.com/dunamismax/pixelvault/internal/imaging"
	"github.com/dunamismax/pixelvault/internal/imaging/raster"
	"github.com/dunamismax/pixelvault/internal/imaging/vips"
)

// Backend names the imaging backend compiled in.
const Backend = "vips"

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

func Startup() error {
	startupOnce.Do(func() {
		govips.LoggingSettings(nil, govips.LogLevelWarning)
		govips.Startup(&govips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   128 * 1024 * 1024,
			MaxCacheSize:  100,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	govips.Shutdown()
	started = false
}

// NewCodecs registers the raster plugins as fallbacks behind libvips:
// decoders registered later are tried first, encoders registered earlier are.
func NewCodecs(profiles imaging.Profiles, logger *zap.Logger, rasterOpts ...raster.Option) (Codecs, error) {
	if err := Startup(); err != nil {
		return Codecs{}, err
	}

	decoders := codec.NewDecoderManager(profiles, logger)
	for _, d := range raster.Decoders(rasterOpts...) {
		if err := decoders.Register(d); err != nil {
			return Codecs{}, err
		}
	}
	if err := decoders.Register(vips.Decoder{}); err != nil {
		return Codecs{}, err
	}

	encoders := codec.NewEncoderManager(logger)
	if err := encoders.Register(vips.Encoder{}); err != nil {
		return Codecs{}, err
	}
	for _, e := range raster.Encoders() {
		if err := encoders.Register(e); err != nil {
			return Codecs{}, err
		}
	}
	return Codecs{Decoders: decoders, Encoders: encoders}, nil
}
