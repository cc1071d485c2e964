package colormap

import (
	"sort"

	"github.com/vesselworks/tagetes/tensor"
)

// Default percentile clip bounds for depth visualization.
const (
	ClipLowPct  = 3.0
	ClipHighPct = 97.0
)

// Percentile returns the pct-th percentile (0-100) of values with linear
// interpolation between order statistics, computed over a sorted copy.
func Percentile(values []float64, pct float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if pct <= 0 {
		return sorted[0]
	}
	if pct >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := pct / 100 * float64(len(sorted)-1)
	lo := int(rank)
	frac := rank - float64(lo)
	if lo+1 >= len(sorted) {
		return sorted[lo]
	}
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// Render colorizes a depth map: values are clipped to the [3rd, 97th]
// percentile range, normalized linearly, and mapped through the ramp. The
// result is always a 3-channel unit-range tensor.
func Render(depth *tensor.Map, rm *Ramp) *tensor.Image {
	lo := Percentile(depth.Pix, ClipLowPct)
	hi := Percentile(depth.Pix, ClipHighPct)
	scale := 0.0
	if hi > lo {
		scale = 1 / (hi - lo)
	}

	out := tensor.NewImage(1, depth.H, depth.W, 3)
	for p, v := range depth.Pix {
		x := (v - lo) * scale
		r, g, b := rm.At(x)
		out.Pix[p*3+0] = float32(r)
		out.Pix[p*3+1] = float32(g)
		out.Pix[p*3+2] = float32(b)
	}
	return out
}
