package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dunamismax/pixelvault/internal/pipeline"
)

var formatsCommand = &cobra.Command{
	Use:   "formats",
	Short: "List the formats the compiled backend can decode and encode",
	RunE: func(cmd *cobra.Command, args []string) error {
		codecs, err := newCodecs()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "backend: %s\n", pipeline.Backend)
		fmt.Fprintf(w, "decode:  %s\n", strings.Join(codecs.Decoders.MimeTypes(), " "))
		fmt.Fprintf(w, "encode:  %s\n", strings.Join(codecs.Encoders.MimeTypes(), " "))
		fmt.Fprintf(w, "extensions: %s\n", strings.Join(codecs.Encoders.Extensions(), " "))
		return nil
	},
}
