// Package sizing resolves the pixel size an animation is rasterized at.
package sizing

import (
	"image"
	"math"
)

// Input describes one sizing decision.
type Input struct {
	Native    image.Point // asset size in pixels at scale 1
	Requested image.Point // container or viewport size

	UseNativeSize bool
	FitIntoBox    bool
	Box           image.Point

	Dynamic   bool
	Threshold float64     // relative change that triggers a new size
	MaxSize   image.Point // zero axis means unbounded
	Step      int         // round down to a multiple of Step
}

// State is what the previous resolution produced.
type State struct {
	Size  image.Point
	Scale float64
}

// Result is the resolved render size.
type Result struct {
	State
	// Changed reports whether Size differs from the previous state and the
	// render target has to be reallocated.
	Changed bool
}

// Resolve maps in onto a target render size, applying dynamic-resolution
// hysteresis against prev. It never returns an axis smaller than 1.
func Resolve(in Input, prev State) Result {
	native := atLeastOne(in.Native)

	var size image.Point
	var scale float64

	switch {
	case in.UseNativeSize:
		size = native
		scale = 1
	case in.FitIntoBox:
		box := atLeastOne(in.Box)
		scale = math.Min(
			float64(box.X)/float64(native.X),
			float64(box.Y)/float64(native.Y),
		)
		size = image.Pt(
			int(math.Round(float64(native.X)*scale)),
			int(math.Round(float64(native.Y)*scale)),
		)
	default:
		size = in.Requested
		scale = float64(atLeastOne(size).X) / float64(native.X)
	}
	size = atLeastOne(size)

	if in.Dynamic {
		if prev.Size.X > 0 && prev.Size.Y > 0 && RelativeChange(prev.Size, size) <= in.Threshold {
			return Result{State: prev}
		}
		size = roundDown(size, in.Step)
		size = clampMax(size, in.MaxSize)
		scale = float64(size.X) / float64(native.X)
	}

	return Result{
		State:   State{Size: size, Scale: scale},
		Changed: size != prev.Size,
	}
}

// RelativeChange is the larger of the per-axis relative differences between
// from and to.
func RelativeChange(from, to image.Point) float64 {
	from = atLeastOne(from)
	dx := math.Abs(float64(to.X-from.X)) / float64(from.X)
	dy := math.Abs(float64(to.Y-from.Y)) / float64(from.Y)
	return math.Max(dx, dy)
}

func roundDown(p image.Point, step int) image.Point {
	if step <= 1 {
		return p
	}
	r := func(v int) int {
		if v < step {
			return step
		}
		return (v / step) * step
	}
	return image.Pt(r(p.X), r(p.Y))
}

func clampMax(p, max image.Point) image.Point {
	if max.X > 0 && p.X > max.X {
		p.X = max.X
	}
	if max.Y > 0 && p.Y > max.Y {
		p.Y = max.Y
	}
	return p
}

func atLeastOne(p image.Point) image.Point {
	if p.X < 1 {
		p.X = 1
	}
	if p.Y < 1 {
		p.Y = 1
	}
	return p
}
