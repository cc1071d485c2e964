// Package pipeline wraps the Marigold diffusion model behind a depth
// sampling interface. The real adapter drives an ONNX Runtime session and
// needs cgo; builds without cgo get a stub that fails with ErrCGORequired.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/vesselworks/tagetes/node"
	"github.com/vesselworks/tagetes/tensor"
)

// ErrCGORequired is returned when depth inference is attempted in a build
// without cgo, where ONNX Runtime is unavailable.
var ErrCGORequired = errors.New("pipeline: depth inference requires CGO support; rebuild with CGO_ENABLED=1")

// Precision selects the model variant loaded into the session.
type Precision string

const (
	FP32 Precision = "fp32"
	FP16 Precision = "fp16"
)

// ModelFile returns the checkpoint file name for the precision.
func (p Precision) ModelFile() string {
	if p == FP16 {
		return "model_fp16.onnx"
	}
	return "model.onnx"
}

// Options configures a sampler session.
type Options struct {
	// CheckpointDir holds the model files (see package checkpoint).
	CheckpointDir string
	// Precision picks the fp32 or fp16 model variant.
	Precision Precision
	// ORTLibraryPath points at the ONNX Runtime shared library; resolved
	// via ortlib when empty.
	ORTLibraryPath string
	// Tensor names in the model graph.
	InputName, LatentName, StepsName, OutputName string
}

// DefaultOptions returns the tensor names of the shipped model export.
func DefaultOptions() Options {
	return Options{
		Precision:  FP16,
		InputName:  "image",
		LatentName: "latent",
		StepsName:  "steps",
		OutputName: "depth",
	}
}

// DepthSampler produces stochastic depth estimates. One call handles one
// sub-batch of duplicated copies of a source image and returns one depth
// map per copy, normalized to [0, 1].
//
// Seed and progress reporting are per-invocation state, not session state:
// Reset rewinds the latent noise stream to sample zero under seed and
// directs one Advance tick per completed sample at progress (nil disables
// ticks). Callers holding a cached sampler must Reset before every run so
// identical seeds reproduce identical noise.
type DepthSampler interface {
	Reset(seed int64, progress node.Progress)
	Sample(ctx context.Context, batch *tensor.Image, steps int) ([]*tensor.Map, error)
	Close() error
}

// normalizeDepth clips raw model output to [-1, 1] and maps it to [0, 1].
func normalizeDepth(raw []float32, w, h int) *tensor.Map {
	m := tensor.NewMap(w, h)
	for i, v := range raw {
		if v < -1 {
			v = -1
		} else if v > 1 {
			v = 1
		}
		m.Pix[i] = (float64(v) + 1) / 2
	}
	return m
}

func validateBatch(batch *tensor.Image) error {
	if batch.C != 3 {
		return fmt.Errorf("pipeline: batch must be 3-channel, got %d", batch.C)
	}
	if batch.H%8 != 0 || batch.W%8 != 0 {
		return fmt.Errorf("pipeline: batch is %dx%d; dimensions must be multiples of 8", batch.W, batch.H)
	}
	return nil
}
