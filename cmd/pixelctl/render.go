package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/pipeline"
)

var (
	inputPath       string
	outputPath      string
	transformations []string
	outputFormat    string
)

var renderCommand = &cobra.Command{
	Use:     "render",
	Short:   "Apply transformations to a local image",
	Example: "pixelctl render -i in.jpg -o out.png -t maxSize:width=200 -t desaturate",
	RunE: func(cmd *cobra.Command, args []string) error {
		chain, err := domain.ParseTransformations(transformations)
		if err != nil {
			return err
		}
		codecs, err := newCodecs()
		if err != nil {
			return err
		}
		registry, err := newRegistry()
		if err != nil {
			return err
		}

		extension := outputFormat
		if extension == "" {
			extension = strings.TrimPrefix(filepath.Ext(outputPath), ".")
		}
		processor := pipeline.New(
			pipeline.LocalFileFetcher{},
			pipeline.FileEmitter{Path: outputPath},
			codecs, registry, pipeline.WithLogger(logger.Named("pipeline")),
		)
		result, err := processor.Process(cmd.Context(), pipeline.Request{
			JobID:           "pixelctl",
			SourceType:      domain.SourceTypeLocalFile,
			ObjectKey:       inputPath,
			Transformations: chain,
			Extension:       extension,
		})
		if err != nil {
			return err
		}

		out := result.Output
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %dx%d %d bytes\n", out.Path, out.MimeType, out.Width, out.Height, out.Bytes)
		return nil
	},
}

func init() {
	flags := renderCommand.Flags()
	flags.StringVarP(&inputPath, "input", "i", "", "input image path")
	flags.StringVarP(&outputPath, "output", "o", "", "output image path")
	flags.StringArrayVarP(&transformations, "transformation", "t", nil, "transformation as name:key=value,key=value (repeatable)")
	flags.StringVarP(&outputFormat, "format", "f", "", "output extension, defaults to the output path extension")
	_ = renderCommand.MarkFlagRequired("input")
	_ = renderCommand.MarkFlagRequired("output")
}
