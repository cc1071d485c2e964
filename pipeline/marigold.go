//go:build cgo
// +build cgo

package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/x448/float16"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/vesselworks/tagetes/metrics"
	"github.com/vesselworks/tagetes/node"
	"github.com/vesselworks/tagetes/pipeline/ortlib"
	"github.com/vesselworks/tagetes/tensor"
)

// ortSampler drives the exported Marigold diffusion graph through ONNX
// Runtime. One Run performs the full configured denoising schedule for a
// sub-batch and yields one depth-like plane per batch element.
type ortSampler struct {
	session *ort.DynamicAdvancedSession
	opts    Options

	// Per-invocation state, set by Reset. seed anchors the latent noise
	// stream; nextIndex numbers samples across Sample calls so every
	// duplicated batch element draws distinct noise.
	seed      int64
	progress  node.Progress
	nextIndex int64
}

// Reset rewinds the noise stream for a new invocation. A cached session
// keeps its weights but must not keep the previous caller's seed, sample
// counter, or progress sink.
func (s *ortSampler) Reset(seed int64, progress node.Progress) {
	s.seed = seed
	s.progress = progress
	s.nextIndex = 0
}

// newSampler loads the model for opts and initializes the runtime
// environment if needed.
func newSampler(opts Options) (DepthSampler, error) {
	libPath := opts.ORTLibraryPath
	if libPath == "" {
		p, err := ortlib.Resolve(context.Background())
		if err != nil {
			return nil, err
		}
		libPath = p
	}
	if !ort.IsInitialized() {
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("pipeline: initialize onnxruntime: %w", err)
		}
	}

	modelPath := filepath.Join(opts.CheckpointDir, opts.Precision.ModelFile())
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("pipeline: model %s: %w", modelPath, err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{opts.InputName, opts.LatentName, opts.StepsName},
		[]string{opts.OutputName},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline: create session: %w", err)
	}
	log.Info().
		Str("model", modelPath).
		Str("precision", string(opts.Precision)).
		Msg("pipeline: model loaded")
	return &ortSampler{session: session, opts: opts}, nil
}

func (s *ortSampler) Close() error {
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	return nil
}

// Sample runs the denoising schedule for every element of the sub-batch and
// returns the normalized depth planes in batch order. Runtime errors (out of
// memory included) propagate unchanged; the caller bounds sub-batch size.
func (s *ortSampler) Sample(ctx context.Context, batch *tensor.Image, steps int) ([]*tensor.Map, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateBatch(batch); err != nil {
		return nil, err
	}
	b, h, w := batch.B, batch.H, batch.W

	images := toNCHW(batch)
	latents := make([]float32, 0, b*latentSize(w, h))
	for i := 0; i < b; i++ {
		latents = append(latents, Latents(s.seed, s.nextIndex+int64(i), latentSize(w, h))...)
	}

	imageShape := ort.NewShape(int64(b), 3, int64(h), int64(w))
	latentShape := ort.NewShape(int64(b), latentChannels, int64(h/8), int64(w/8))
	outputShape := ort.NewShape(int64(b), int64(h), int64(w))

	stepsTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(steps)})
	if err != nil {
		return nil, err
	}
	defer stepsTensor.Destroy()

	var raw []float32
	if s.opts.Precision == FP16 {
		raw, err = s.runFP16(images, latents, imageShape, latentShape, outputShape, stepsTensor)
	} else {
		raw, err = s.runFP32(images, latents, imageShape, latentShape, outputShape, stepsTensor)
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: inference: %w", err)
	}

	out := make([]*tensor.Map, b)
	plane := h * w
	for i := 0; i < b; i++ {
		out[i] = normalizeDepth(raw[i*plane:(i+1)*plane], w, h)
		metrics.SamplesInferred.Inc()
		if s.progress != nil {
			s.progress.Advance(1)
		}
	}
	s.nextIndex += int64(b)
	return out, nil
}

func (s *ortSampler) runFP32(images, latents []float32, imageShape, latentShape, outputShape ort.Shape, stepsTensor *ort.Tensor[int64]) ([]float32, error) {
	imageTensor, err := ort.NewTensor(imageShape, images)
	if err != nil {
		return nil, err
	}
	defer imageTensor.Destroy()
	latentTensor, err := ort.NewTensor(latentShape, latents)
	if err != nil {
		return nil, err
	}
	defer latentTensor.Destroy()
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return nil, err
	}
	defer outputTensor.Destroy()

	err = s.session.Run(
		[]ort.Value{imageTensor, latentTensor, stepsTensor},
		[]ort.Value{outputTensor},
	)
	if err != nil {
		return nil, err
	}
	data := outputTensor.GetData()
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

// runFP16 feeds and reads half-precision tensors, converting at the session
// boundary.
func (s *ortSampler) runFP16(images, latents []float32, imageShape, latentShape, outputShape ort.Shape, stepsTensor *ort.Tensor[int64]) ([]float32, error) {
	imageTensor, err := ort.NewCustomDataTensor(imageShape, halfBytes(images), ort.TensorElementDataTypeFloat16)
	if err != nil {
		return nil, err
	}
	defer imageTensor.Destroy()
	latentTensor, err := ort.NewCustomDataTensor(latentShape, halfBytes(latents), ort.TensorElementDataTypeFloat16)
	if err != nil {
		return nil, err
	}
	defer latentTensor.Destroy()

	n := int64(1)
	for _, d := range outputShape {
		n *= d
	}
	outputTensor, err := ort.NewCustomDataTensor(outputShape, make([]byte, n*2), ort.TensorElementDataTypeFloat16)
	if err != nil {
		return nil, err
	}
	defer outputTensor.Destroy()

	err = s.session.Run(
		[]ort.Value{imageTensor, latentTensor, stepsTensor},
		[]ort.Value{outputTensor},
	)
	if err != nil {
		return nil, err
	}

	data := outputTensor.GetData()
	out := make([]float32, n)
	for i := range out {
		bits := binary.LittleEndian.Uint16(data[i*2:])
		out[i] = float16.Frombits(bits).Float32()
	}
	return out, nil
}

// halfBytes converts float32 values to packed little-endian IEEE binary16.
func halfBytes(values []float32) []byte {
	out := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(v).Bits())
	}
	return out
}
