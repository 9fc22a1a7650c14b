package transform

import (
	"math"

	"github.com/dunamismax/pixelvault/internal/apperrors"
	"github.com/dunamismax/pixelvault/internal/domain"
)

// MinimumInputSize is the smallest input that still yields a correct result
// and the chain position that determined it.
type MinimumInputSize struct {
	Width  int
	Height int
	Index  int
}

// MinimumImageInputSize walks chain for an original of width x height. ok
// is false when the full original is required. The walk stops at the first
// preset entry since presets are only expanded when applied.
func (m *Manager) MinimumImageInputSize(width, height int, chain []domain.Transformation) (MinimumInputSize, bool, error) {
	if len(chain) == 0 || width <= 0 || height <= 0 {
		return MinimumInputSize{}, false, nil
	}

	originalWidth, originalHeight := float64(width), float64(height)
	minWidth, minHeight := originalWidth, originalHeight
	index := 0
	input := Size{Width: width, Height: height}
	var region *Region
	flip := false

walk:
	for i, entry := range chain {
		if m.registry.IsPreset(entry.Name) {
			break
		}
		h, err := m.registry.Resolve(entry.Name)
		if err != nil {
			return MinimumInputSize{}, false, err
		}

		if region == nil {
			if extractor, ok := h.(RegionExtractor); ok {
				if r, ok := extractor.ExtractedRegion(entry.Params, input); ok && !r.Empty() {
					region = &r
					index = i
				}
			}
		}

		constrained, ok := h.(SizeConstraint)
		if !ok {
			continue
		}
		c := constrained.MinimumInputSize(entry.Params, input)
		if err := c.validate(); err != nil {
			return MinimumInputSize{}, false, apperrors.Errorf(
				apperrors.CategoryPluginContract,
				"minimum input size",
				"transformation %q at position %d: %v", entry.Name, i, err,
			)
		}
		switch c.kind {
		case constraintNone:
			continue
		case constraintStop:
			break walk
		}

		if c.hasSize() && (c.width < minWidth || c.height < minHeight) {
			minWidth, minHeight = c.width, c.height
			if region == nil {
				index = i
			}
		}
		if c.swapsAxes() {
			input.Width, input.Height = input.Height, input.Width
			flip = !flip
		}
	}

	if region != nil && minWidth > 0 {
		originalRatio := originalWidth / originalHeight
		regionRatio := originalWidth / float64(region.Width)
		minWidth *= regionRatio
		minHeight = minWidth / originalRatio
	} else if flip {
		minWidth, minHeight = minHeight, minWidth
	}

	if minWidth >= originalWidth || minHeight >= originalHeight {
		return MinimumInputSize{}, false, nil
	}
	return MinimumInputSize{
		Width:  int(math.Ceil(minWidth)),
		Height: int(math.Ceil(minHeight)),
		Index:  index,
	}, true, nil
}

// AdjustImageTransformations rescales params in place for entries 0..index
// after a smaller input of ratio times the original width was substituted.
// A ratio of zero or less means nothing was substituted.
func (m *Manager) AdjustImageTransformations(chain []domain.Transformation, ratio float64, index int) error {
	if ratio <= 0 {
		return nil
	}
	for i := 0; i <= index && i < len(chain); i++ {
		if m.registry.IsPreset(chain[i].Name) {
			continue
		}
		h, err := m.registry.Resolve(chain[i].Name)
		if err != nil {
			return err
		}
		if constrained, ok := h.(SizeConstraint); ok {
			chain[i].Params = constrained.AdjustParameters(ratio, chain[i].Params)
		}
	}
	return nil
}
