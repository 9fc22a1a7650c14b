package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/pipeline"
)

var minSizeCommand = &cobra.Command{
	Use:   "min-size",
	Short: "Report the smallest input a chain could run on without quality loss",
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

		processor := pipeline.New(pipeline.LocalFileFetcher{}, nil, codecs, registry)
		img, buf, err := processor.Load(cmd.Context(), pipeline.Request{
			JobID:      "pixelctl",
			SourceType: domain.SourceTypeLocalFile,
			ObjectKey:  inputPath,
		})
		if err != nil {
			return err
		}
		buf.Close()

		w := cmd.OutOrStdout()
		minimum, ok, err := registry.NewManager().MinimumImageInputSize(img.Width, img.Height, chain)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(w, "%dx%d: full resolution required\n", img.Width, img.Height)
			return nil
		}
		fmt.Fprintf(w, "%dx%d: minimum %dx%d up to entry %d\n", img.Width, img.Height, minimum.Width, minimum.Height, minimum.Index)
		return nil
	},
}

func init() {
	flags := minSizeCommand.Flags()
	flags.StringVarP(&inputPath, "input", "i", "", "input image path")
	flags.StringArrayVarP(&transformations, "transformation", "t", nil, "transformation as name:key=value,key=value (repeatable)")
	_ = minSizeCommand.MarkFlagRequired("input")
}
