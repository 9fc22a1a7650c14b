package imaging

import "strings"

// Gravity places a watermark on the canvas using compass directions.
type Gravity string

const (
	GravityNorthWest Gravity = "northwest"
	GravityNorth     Gravity = "north"
	GravityNorthEast Gravity = "northeast"
	GravityWest      Gravity = "west"
	GravityCenter    Gravity = "center"
	GravityEast      Gravity = "east"
	GravitySouthWest Gravity = "southwest"
	GravitySouth     Gravity = "south"
	GravitySouthEast Gravity = "southeast"
)

const DefaultWatermarkOpacity = 0.65

type Watermark struct {
	Text    string
	Opacity float64
	Gravity Gravity
}

// ParseGravity falls back to southeast for anything unrecognized.
func ParseGravity(s string) Gravity {
	switch g := Gravity(strings.ToLower(strings.TrimSpace(s))); g {
	case GravityNorthWest, GravityNorth, GravityNorthEast, GravityWest, GravityCenter,
		GravityEast, GravitySouthWest, GravitySouth:
		return g
	default:
		return GravitySouthEast
	}
}

// NormalizedOpacity clamps the opacity to (0, 1], using the default for
// unset values.
func (w Watermark) NormalizedOpacity() float64 {
	switch {
	case w.Opacity <= 0:
		return DefaultWatermarkOpacity
	case w.Opacity > 1:
		return 1
	default:
		return w.Opacity
	}
}
