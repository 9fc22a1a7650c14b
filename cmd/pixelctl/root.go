package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/dunamismax/pixelvault/internal/config"
	"github.com/dunamismax/pixelvault/internal/imaging"
	"github.com/dunamismax/pixelvault/internal/imaging/raster"
	"github.com/dunamismax/pixelvault/internal/logging"
	"github.com/dunamismax/pixelvault/internal/pipeline"
	"github.com/dunamismax/pixelvault/internal/transform"
	"github.com/dunamismax/pixelvault/internal/transform/builtin"
)

var (
	// configFile is the optional YAML config path.
	configFile string
	v          = config.New()
	c          config.Config
	logger     = zap.NewNop()
)

var rootCommand = &cobra.Command{
	Use:          "pixelctl",
	Short:        "Render images through the pixelvault transformation pipeline",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		c = cfg
		if logger, err = logging.New(c.Log); err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
		pipeline.Shutdown()
	},
}

func init() {
	rootCommand.AddCommand(renderCommand)
	rootCommand.AddCommand(minSizeCommand)
	rootCommand.AddCommand(formatsCommand)
	rootCommand.AddCommand(presetsCommand)

	flags := rootCommand.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file path")

	flags.Bool("dev", false, "development logging")
	bindPFlag(flags, "log.dev", "dev")
	flags.String("presets", "", "preset YAML file")
	bindPFlag(flags, "imaging.presetsFile", "presets")
	flags.Int("max-pixels", 0, "reject inputs larger than this many pixels (0 keeps the configured limit)")
	bindPFlag(flags, "imaging.maxPixels", "max-pixels")
}

func bindPFlag(flags *pflag.FlagSet, key, flag string) {
	if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
		panic(err)
	}
}

func newCodecs() (pipeline.Codecs, error) {
	codecs, err := pipeline.NewCodecs(imaging.DefaultProfiles(), logger.Named("codec"), raster.WithMaxPixels(c.Imaging.MaxPixels))
	if err != nil {
		return pipeline.Codecs{}, fmt.Errorf("build codecs: %w", err)
	}
	return codecs, nil
}

func newRegistry() (*transform.Registry, error) {
	presets, err := c.Imaging.Presets()
	if err != nil {
		return nil, err
	}
	return builtin.NewRegistry(logger, c.Imaging.Transformations, presets)
}
