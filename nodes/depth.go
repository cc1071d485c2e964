// Package nodes implements the pack's processing nodes: Marigold depth
// estimation with test-time ensembling, depth colorization, depth remapping,
// and EXR export. Each node registers itself with the node registry.
package nodes

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vesselworks/tagetes/appconfig"
	"github.com/vesselworks/tagetes/checkpoint"
	"github.com/vesselworks/tagetes/ensemble"
	"github.com/vesselworks/tagetes/metrics"
	"github.com/vesselworks/tagetes/node"
	"github.com/vesselworks/tagetes/pipeline"
	"github.com/vesselworks/tagetes/tensor"
)

const categoryDepth = "depth"

func init() {
	node.Register(node.Definition{
		Type:        "MarigoldDepthEstimation",
		DisplayName: "Marigold Depth Estimation",
		Category:    categoryDepth,
		New:         func() (node.Node, error) { return NewMarigoldDepthEstimation(), nil },
	})
}

// MarigoldDepthEstimation estimates depth from RGB images by repeated
// stochastic diffusion sampling plus ensembling. The model session is cached
// across invocations; the host serializes calls, so the node is
// single-writer.
type MarigoldDepthEstimation struct {
	cache *pipeline.Cache

	// sampler overrides checkpoint resolution and the session cache when
	// set; used by tests and by callers that manage their own session.
	sampler pipeline.DepthSampler
}

// NewMarigoldDepthEstimation returns the node with an empty model cache.
func NewMarigoldDepthEstimation() *MarigoldDepthEstimation {
	return &MarigoldDepthEstimation{cache: pipeline.NewCache()}
}

// resolver builds a checkpoint resolver from the application config.
func resolver() *checkpoint.Resolver {
	cfg := appconfig.Get()
	r := &checkpoint.Resolver{
		Repo:    cfg.CheckpointRepo,
		BaseURL: cfg.HuggingFaceBaseURL,
	}
	if cfg.CheckpointDir != "" {
		r.Candidates = []string{cfg.CheckpointDir}
	}
	if cfg.Mirror.Bucket != "" {
		r.Mirror = &checkpoint.S3Mirror{
			Bucket:    cfg.Mirror.Bucket,
			Key:       cfg.Mirror.Key,
			Region:    cfg.Mirror.Region,
			AccessKey: cfg.Mirror.AccessKey,
			SecretKey: cfg.Mirror.SecretKey,
		}
	}
	return r
}

func (n *MarigoldDepthEstimation) Spec() node.Spec {
	return node.Spec{
		Type:        "MarigoldDepthEstimation",
		DisplayName: "Marigold Depth Estimation",
		Category:    categoryDepth,
		Inputs: []node.InputSpec{
			{Name: "image", Type: node.TypeImage},
			{Name: "seed", Type: node.TypeInt, Default: 123, Min: 0, Max: math.MaxInt64},
			{Name: "denoise_steps", Type: node.TypeInt, Default: 10, Min: 1, Max: 4096, Step: 1},
			{Name: "n_repeat", Type: node.TypeInt, Default: 10, Min: 1, Max: 4096, Step: 1},
			{Name: "regularizer_strength", Type: node.TypeFloat, Default: 0.02, Min: 0.001, Max: 4096, Step: 0.001},
			{Name: "reduction_method", Type: node.TypeEnum, Default: "median", Choices: []string{"median", "mean"}},
			{Name: "max_iter", Type: node.TypeInt, Default: 5, Min: 1, Max: 4096, Step: 1},
			{Name: "tol", Type: node.TypeFloat, Default: 1e-3, Min: 1e-6, Max: 1e-1, Step: 1e-6},
			{Name: "invert", Type: node.TypeBoolean, Default: true},
			{Name: "keep_model_loaded", Type: node.TypeBoolean, Default: true},
			{Name: "n_repeat_batch_size", Type: node.TypeInt, Default: 2, Min: 1, Max: 4096, Step: 1},
			{Name: "use_fp16", Type: node.TypeBoolean, Default: true},
		},
		Outputs: []node.OutputSpec{{Name: "ensembled_image", Type: node.TypeImage}},
	}
}

func (n *MarigoldDepthEstimation) Run(ctx context.Context, rt *node.Runtime, args node.Args) ([]any, error) {
	args, err := node.Validate(n.Spec(), args)
	if err != nil {
		return nil, err
	}
	image, _ := args.Image("image")
	seed, _ := args.Int("seed")
	steps, _ := args.Int("denoise_steps")
	nRepeat, _ := args.Int("n_repeat")
	regularizer, _ := args.Float("regularizer_strength")
	reductionName, _ := args.String("reduction_method")
	maxIter, _ := args.Int("max_iter")
	tol, _ := args.Float("tol")
	invert, _ := args.Bool("invert")
	keepLoaded, _ := args.Bool("keep_model_loaded")
	chunkSize, _ := args.Int("n_repeat_batch_size")
	useFP16, _ := args.Bool("use_fp16")

	reduction, err := ensemble.ParseReduction(reductionName)
	if err != nil {
		return nil, err
	}

	progress := rt.Progress
	if progress == nil {
		progress = node.NopProgress{}
	}
	progress.Begin(image.B * nRepeat)

	sampler, err := n.acquireSampler(ctx, int64(seed), useFP16, progress)
	if err != nil {
		return nil, err
	}

	out := make([]*tensor.Image, 0, image.B)
	for b := 0; b < image.B; b++ {
		single := pipeline.PrepareInput(image.Item(b))

		// N stochastic repeats, chunked to bound peak memory.
		samples := make([]*tensor.Map, 0, nRepeat)
		for done := 0; done < nRepeat; done += chunkSize {
			k := chunkSize
			if done+k > nRepeat {
				k = nRepeat - done
			}
			duplicated, err := single.Repeat(k)
			if err != nil {
				return nil, err
			}
			chunk, err := sampler.Sample(ctx, duplicated, steps)
			if err != nil {
				return nil, fmt.Errorf("depth sampling (image %d, repeat %d): %w", b, done, err)
			}
			samples = append(samples, chunk...)
		}
		// Ensembling is the memory-intensive stage; reclaim the duplicated
		// batches first.
		runtime.GC()

		fused, err := n.fuse(samples, ensemble.Config{
			Regularizer: regularizer,
			MaxIter:     maxIter,
			Tol:         tol,
			Reduction:   reduction,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, tensor.ReplicateGray(fused))
	}

	stacked, err := tensor.Stack(out)
	if err != nil {
		return nil, err
	}
	if invert {
		for i, v := range stacked.Pix {
			stacked.Pix[i] = 1 - v
		}
	}

	if !keepLoaded {
		if err := n.release(); err != nil {
			log.Warn().Err(err).Msg("depth: model teardown failed")
		}
		runtime.GC()
	}
	return []any{stacked}, nil
}

// fuse runs the ensemble solver, or passes a single sample through when only
// one repeat was requested.
func (n *MarigoldDepthEstimation) fuse(samples []*tensor.Map, cfg ensemble.Config) (*tensor.Map, error) {
	start := time.Now()
	res, err := ensemble.Fuse(samples, cfg)
	if err != nil {
		return nil, err
	}
	metrics.EnsembleDuration.Observe(time.Since(start).Seconds())
	if !res.Converged {
		metrics.EnsembleNonconverged.Inc()
		log.Warn().
			Int("iterations", res.Iterations).
			Float64("tol", cfg.Tol).
			Msg("depth: ensemble exhausted iteration budget, returning best-effort result")
	}
	return res.Fused, nil
}

// acquireSampler returns the session for this invocation, reusing the cached
// one when checkpoint and precision match. Reset runs unconditionally: seed
// and progress belong to the invocation, never to the cached session.
func (n *MarigoldDepthEstimation) acquireSampler(ctx context.Context, seed int64, useFP16 bool, progress node.Progress) (pipeline.DepthSampler, error) {
	if n.sampler != nil {
		n.sampler.Reset(seed, progress)
		return n.sampler, nil
	}
	dir, err := resolver().Resolve(ctx)
	if err != nil {
		return nil, err
	}
	opts := pipeline.DefaultOptions()
	opts.CheckpointDir = dir
	opts.ORTLibraryPath = appconfig.Get().ORTLibraryPath
	if useFP16 {
		opts.Precision = pipeline.FP16
	} else {
		opts.Precision = pipeline.FP32
	}
	sampler, err := n.cache.Get(opts)
	if err != nil {
		return nil, err
	}
	sampler.Reset(seed, progress)
	return sampler, nil
}

func (n *MarigoldDepthEstimation) release() error {
	if n.sampler != nil {
		return nil
	}
	return n.cache.Release()
}
