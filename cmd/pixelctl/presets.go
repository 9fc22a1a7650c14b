package main

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/dunamismax/pixelvault/internal/domain"
)

var presetsCommand = &cobra.Command{
	Use:   "presets",
	Short: "List registered transformations and presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := newRegistry()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "transformations: %s\n", strings.Join(registry.Names(), " "))
		for _, name := range registry.PresetNames() {
			preset, _ := registry.Preset(name)
			entries := lo.Map(preset, func(e domain.PresetEntry, _ int) string {
				if e.Positional() {
					return e.Name
				}
				return domain.Transformation{Name: e.Name, Params: e.Overrides}.String()
			})
			fmt.Fprintf(w, "%s: %s\n", name, strings.Join(entries, " -> "))
		}
		return nil
	},
}
