// Package variant keeps pre-scaled copies of originals so a render can start
// from the smallest copy that still satisfies its minimum input size.
package variant

import (
	"math"
	"sort"

	"github.com/samber/lo"
)

type Config struct {
	Enabled bool `mapstructure:"enabled"`
	// ScaleFactor shrinks each planned width relative to the previous one.
	ScaleFactor float64 `mapstructure:"scaleFactor"`
	MinWidth    int     `mapstructure:"minWidth"`
	MaxWidth    int     `mapstructure:"maxWidth"`
	// MinDiff drops a width closer than this fraction to the last kept one.
	MinDiff     float64 `mapstructure:"minDiff"`
	Widths      []int   `mapstructure:"widths"`
	Extension   string  `mapstructure:"extension"`
	Quality     int     `mapstructure:"quality"`
	Concurrency int     `mapstructure:"concurrency"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		ScaleFactor: 0.5,
		MinWidth:    100,
		MaxWidth:    2048,
		MinDiff:     0.1,
		Extension:   "jpg",
		Quality:     90,
		Concurrency: 2,
	}
}

// Plan returns the variant widths for an original that is originalWidth
// pixels wide, ascending and all narrower than the original.
func Plan(originalWidth int, cfg Config) []int {
	if originalWidth <= 0 {
		return nil
	}

	var widths []int
	if cfg.ScaleFactor > 0 && cfg.ScaleFactor < 1 {
		last := 0
		for w := float64(originalWidth) * cfg.ScaleFactor; w >= float64(cfg.MinWidth) && w >= 1; w *= cfg.ScaleFactor {
			width := int(math.Round(w))
			if cfg.MaxWidth > 0 && width > cfg.MaxWidth {
				continue
			}
			if last > 0 && float64(last-width)/float64(last) < cfg.MinDiff {
				continue
			}
			widths = append(widths, width)
			last = width
		}
	}

	explicit := lo.Filter(cfg.Widths, func(w int, _ int) bool {
		return w > 0 && w < originalWidth
	})
	widths = lo.Uniq(append(widths, explicit...))
	sort.Ints(widths)
	return widths
}
