//go:build !govips || !cgo

package pipeline

import (
	"go.uber.org/zap"

	"github.com/dunamismax/pixelvault/internal/codec"
	"github.com/dunamismax/pixelvault/internal/imaging"
	"github.com/dunamismax/pixelvault/internal/imaging/raster"
)

const Backend = "raster"

func Startup() error {
	return nil
}

func Shutdown() {}

func NewCodecs(profiles imaging.Profiles, logger *zap.Logger, rasterOpts ...raster.Option) (Codecs, error) {
	decoders := codec.NewDecoderManager(profiles, logger)
	for _, d := range raster.Decoders(rasterOpts...) {
		if err := decoders.Register(d); err != nil {
			return Codecs{}, err
		}
	}
	encoders := codec.NewEncoderManager(logger)
	for _, e := range raster.Encoders() {
		if err := encoders.Register(e); err != nil {
			return Codecs{}, err
		}
	}
	return Codecs{Decoders: decoders, Encoders: encoders}, nil
}
