package transform

import (
	"errors"
	"fmt"
	"math"

	"github.com/dunamismax/pixelvault/internal/domain"
)

// Size is the declared working size of the image at some point in a chain.
type Size struct {
	Width  int
	Height int
}

// Region is a rectangle of the input a transformation reads.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

type constraintKind int

const (
	constraintInvalid constraintKind = iota
	constraintNone
	constraintStop
	constraintBounded
)

// Constraint is a size-constraining transformation's answer about the input
// it needs. The zero value is malformed and rejected by the resolver.
type Constraint struct {
	kind     constraintKind
	width    float64
	height   float64
	rotation float64
	rotated  bool
}

// NoConstraint means the transformation does not bound the input size.
func NoConstraint() Constraint { return Constraint{kind: constraintNone} }

// StopResolving means no later entry can tighten the bound.
func StopResolving() Constraint { return Constraint{kind: constraintStop} }

// MinimumSize asks for at least width x height input pixels.
func MinimumSize(width, height float64) Constraint {
	return Constraint{kind: constraintBounded, width: width, height: height}
}

// Rotation reports a rotation without any size bound.
func Rotation(degrees float64) Constraint {
	return Constraint{kind: constraintBounded, rotation: degrees, rotated: true}
}

func (c Constraint) WithRotation(degrees float64) Constraint {
	c.rotation = degrees
	c.rotated = true
	return c
}

func (c Constraint) hasSize() bool {
	return c.width != 0 || c.height != 0
}

// swapsAxes reports a rotation that is a quarter turn but not a half turn.
func (c Constraint) swapsAxes() bool {
	return c.rotated && math.Mod(c.rotation, 180) != 0 && math.Mod(c.rotation, 90) == 0
}

func (c Constraint) validate() error {
	switch c.kind {
	case constraintNone, constraintStop:
		return nil
	case constraintBounded:
	default:
		return errors.New("unset constraint")
	}
	if !c.hasSize() && !c.rotated {
		return errors.New("constraint carries neither a size nor a rotation")
	}
	if c.hasSize() && !(positive(c.width) && positive(c.height)) {
		return fmt.Errorf("constraint size %gx%g is not positive", c.width, c.height)
	}
	if c.rotated && (math.IsNaN(c.rotation) || math.IsInf(c.rotation, 0)) {
		return fmt.Errorf("constraint rotation %g is not finite", c.rotation)
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// SizeConstraint is implemented by transformations whose output quality
// depends on the input resolution.
type SizeConstraint interface {
	MinimumInputSize(params domain.Params, input Size) Constraint
	// AdjustParameters rescales params for an input that is ratio times the
	// original width. It must not mutate params.
	AdjustParameters(ratio float64, params domain.Params) domain.Params
}

// RegionExtractor is implemented by transformations that read only part of
// their input. ok is false when no region applies.
type RegionExtractor interface {
	ExtractedRegion(params domain.Params, input Size) (region Region, ok bool)
}
