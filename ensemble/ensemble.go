// Package ensemble fuses N stochastic depth predictions of the same scene
// into a single consensus depth map with a per-pixel uncertainty estimate.
//
// Each prediction carries an unknown affine scale/shift relative to true
// depth. Fuse jointly optimizes one (scale, shift) pair per sample and a
// shared fused map, alternating between recomputing the fused map and
// re-solving each sample's affine parameters in closed form, until the
// parameter update step drops below tolerance or the iteration budget runs
// out.
package ensemble

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/vesselworks/tagetes/tensor"
)

// Reduction selects the pixel-wise aggregation across aligned samples.
type Reduction string

const (
	ReduceMedian Reduction = "median"
	ReduceMean   Reduction = "mean"
)

// ParseReduction maps a reduction name to its Reduction value.
func ParseReduction(s string) (Reduction, error) {
	switch Reduction(s) {
	case ReduceMedian, ReduceMean:
		return Reduction(s), nil
	}
	return "", fmt.Errorf("unknown reduction %q", s)
}

// epsRange guards divisions by a sample's value range so a constant-valued
// sample yields large-but-finite parameters instead of Inf/NaN.
const epsRange = 1e-6

// epsDet is the determinant floor below which a per-sample solve is skipped
// as underdetermined (constant sample with no regularization).
const epsDet = 1e-12

// Config controls one Fuse call.
type Config struct {
	// Regularizer is the Tikhonov strength λ pulling each non-anchor
	// sample's (scale, shift) toward (1, 0).
	Regularizer float64
	// MaxIter bounds the outer iteration count.
	MaxIter int
	// Tol stops iteration early once the parameter update step, normalized
	// by the sample count, falls below it.
	Tol float64
	// Reduction is the pixel-wise aggregation, median or mean.
	Reduction Reduction
	// MaxRes, when positive, bounds the longer edge of the maps used during
	// optimization; larger inputs are downsampled for the solve and the
	// final parameters applied at full resolution.
	MaxRes int
	// OnIteration, when set, observes each outer iteration's step metric.
	OnIteration func(iter int, step float64)
}

// DefaultConfig mirrors the depth node's defaults.
func DefaultConfig() Config {
	return Config{
		Regularizer: 0.02,
		MaxIter:     5,
		Tol:         1e-3,
		Reduction:   ReduceMedian,
	}
}

// Result is the output of one Fuse call.
type Result struct {
	// Fused is the consensus map, contrast-stretched to [0, 1].
	Fused *tensor.Map
	// Uncertainty is the per-pixel standard deviation across the aligned
	// samples at the final parameters.
	Uncertainty *tensor.Map
	// Scales and Shifts are the converged affine parameters, one pair per
	// input sample. Scales[0], Shifts[0] are always exactly 1, 0.
	Scales, Shifts []float64
	// Iterations is the number of outer iterations run.
	Iterations int
	// Converged reports whether the step metric met Tol within MaxIter.
	Converged bool
}

// Fuse aligns and aggregates the sample set. All samples must share the same
// dimensions. A single-sample set bypasses optimization entirely and returns
// the renormalized input with zero uncertainty. Exhausting the iteration
// budget is not an error: the best-effort result is returned with
// Converged=false.
func Fuse(samples []*tensor.Map, cfg Config) (*Result, error) {
	n := len(samples)
	if n == 0 {
		return nil, fmt.Errorf("ensemble: empty sample set")
	}
	w, h := samples[0].W, samples[0].H
	for i, s := range samples {
		if s.W != w || s.H != h {
			return nil, fmt.Errorf("ensemble: sample %d is %dx%d, want %dx%d", i, s.W, s.H, w, h)
		}
	}
	if cfg.Reduction == "" {
		cfg.Reduction = ReduceMedian
	}

	if n == 1 {
		return &Result{
			Fused:       stretch(samples[0].Clone()),
			Uncertainty: tensor.NewMap(w, h),
			Scales:      []float64{1},
			Shifts:      []float64{0},
			Converged:   true,
		}, nil
	}

	// Optionally solve on a downsampled working set for speed.
	working := samples
	if cfg.MaxRes > 0 {
		ow, oh := tensor.FitWithin(w, h, cfg.MaxRes)
		if ow != w || oh != h {
			working = make([]*tensor.Map, n)
			for i, s := range samples {
				working[i] = s.Resample(ow, oh)
			}
		}
	}

	scales, shifts := initParams(working)
	aligned := make([]*tensor.Map, n)
	for i := range aligned {
		aligned[i] = tensor.NewMap(working[0].W, working[0].H)
	}

	st := solveState{
		samples: working,
		aligned: aligned,
		fused:   tensor.NewMap(working[0].W, working[0].H),
		scratch: make([]float64, n),
		cfg:     cfg,
	}

	var (
		iter      int
		converged bool
	)
	for iter = 1; iter <= cfg.MaxIter; iter++ {
		st.align(scales, shifts)
		st.reduce()
		step := st.refit(scales, shifts)
		log.Debug().Msgf("ensemble: iter %d step %.3e", iter, step)
		if cfg.OnIteration != nil {
			cfg.OnIteration(iter, step)
		}
		if step < cfg.Tol {
			converged = true
			break
		}
	}
	if iter > cfg.MaxIter {
		iter = cfg.MaxIter
	}

	// Finalize at full resolution with the converged parameters.
	fin := solveState{
		samples: samples,
		aligned: make([]*tensor.Map, n),
		fused:   tensor.NewMap(w, h),
		scratch: make([]float64, n),
		cfg:     cfg,
	}
	for i := range fin.aligned {
		fin.aligned[i] = tensor.NewMap(w, h)
	}
	fin.align(scales, shifts)
	fin.reduce()

	return &Result{
		Fused:       stretch(fin.fused),
		Uncertainty: fin.stddev(),
		Scales:      scales,
		Shifts:      shifts,
		Iterations:  iter,
		Converged:   converged,
	}, nil
}

// initParams seeds each sample's affine parameters from its own value range
// so the normalized sample starts in [0, 1]. Sample 0 is the gauge anchor and
// stays pinned at (1, 0); it is never optimized, which removes the global
// affine redundancy of the objective.
func initParams(samples []*tensor.Map) (scales, shifts []float64) {
	n := len(samples)
	scales = make([]float64, n)
	shifts = make([]float64, n)
	scales[0] = 1
	for i := 1; i < n; i++ {
		lo, hi := samples[i].Range()
		s := 1.0 / math.Max(hi-lo, epsRange)
		scales[i] = s
		shifts[i] = -lo * s
	}
	return scales, shifts
}

type solveState struct {
	samples []*tensor.Map
	aligned []*tensor.Map
	fused   *tensor.Map
	scratch []float64
	cfg     Config
}

// align applies the current affine parameters to every sample.
func (st *solveState) align(scales, shifts []float64) {
	for i, s := range st.samples {
		dst := st.aligned[i].Pix
		sc, sh := scales[i], shifts[i]
		for p, v := range s.Pix {
			dst[p] = sc*v + sh
		}
	}
}

// reduce recomputes the fused map as the configured pixel-wise aggregation
// across the aligned samples.
func (st *solveState) reduce() {
	n := len(st.aligned)
	npix := len(st.fused.Pix)
	if st.cfg.Reduction == ReduceMean {
		inv := 1.0 / float64(n)
		for p := 0; p < npix; p++ {
			sum := 0.0
			for _, a := range st.aligned {
				sum += a.Pix[p]
			}
			st.fused.Pix[p] = sum * inv
		}
		return
	}
	for p := 0; p < npix; p++ {
		for i, a := range st.aligned {
			st.scratch[i] = a.Pix[p]
		}
		sort.Float64s(st.scratch)
		if n%2 == 1 {
			st.fused.Pix[p] = st.scratch[n/2]
		} else {
			st.fused.Pix[p] = (st.scratch[n/2-1] + st.scratch[n/2]) / 2
		}
	}
}

// refit re-solves every non-anchor sample's (scale, shift) against the
// current fused map and returns the update step ‖Δparams‖₂ / N.
//
// Each solve minimizes mean((s·x + t − f)²) + λ((s−1)² + t²), a 2×2 linear
// system handled by Cramer's rule:
//
//	(Mxx+λ)·s + Mx·t = Mxf + λ
//	 Mx·s + (1+λ)·t  = Mf
//
// Means rather than sums keep λ independent of the pixel count. A solve with
// a vanishing determinant (constant sample, λ = 0) is skipped; the sample
// keeps its previous parameters.
func (st *solveState) refit(scales, shifts []float64) float64 {
	lambda := st.cfg.Regularizer
	fusedPix := st.fused.Pix
	invPix := 1.0 / float64(len(fusedPix))

	var deltaSq float64
	for i := 1; i < len(st.samples); i++ {
		x := st.samples[i].Pix
		var mx, mxx, mf, mxf float64
		for p, xv := range x {
			fv := fusedPix[p]
			mx += xv
			mxx += xv * xv
			mf += fv
			mxf += xv * fv
		}
		mx *= invPix
		mxx *= invPix
		mf *= invPix
		mxf *= invPix

		det := (mxx+lambda)*(1+lambda) - mx*mx
		if math.Abs(det) < epsDet {
			continue
		}
		s := ((mxf+lambda)*(1+lambda) - mx*mf) / det
		t := ((mxx+lambda)*mf - mx*(mxf+lambda)) / det

		ds, dt := s-scales[i], t-shifts[i]
		deltaSq += ds*ds + dt*dt
		scales[i], shifts[i] = s, t
	}
	return math.Sqrt(deltaSq) / float64(len(st.samples))
}

// stddev returns the per-pixel population standard deviation across the
// aligned samples.
func (st *solveState) stddev() *tensor.Map {
	n := float64(len(st.aligned))
	out := tensor.NewMap(st.fused.W, st.fused.H)
	for p := range out.Pix {
		var sum float64
		for _, a := range st.aligned {
			sum += a.Pix[p]
		}
		mean := sum / n
		var varSum float64
		for _, a := range st.aligned {
			d := a.Pix[p] - mean
			varSum += d * d
		}
		out.Pix[p] = math.Sqrt(varSum / n)
	}
	return out
}

// stretch renormalizes the map's global range to [0, 1] in place. A constant
// map becomes all zeros.
func stretch(m *tensor.Map) *tensor.Map {
	lo, hi := m.Range()
	inv := 1.0 / math.Max(hi-lo, epsRange)
	for p, v := range m.Pix {
		m.Pix[p] = (v - lo) * inv
	}
	return m
}
