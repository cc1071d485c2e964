// depthrun estimates depth for a single image: it runs the Marigold depth
// node, optionally colorizes the result, and writes an OpenEXR file plus an
// optional PNG preview into the output directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"

	"github.com/vesselworks/tagetes/appconfig"
	"github.com/vesselworks/tagetes/node"
	_ "github.com/vesselworks/tagetes/nodes"
	"github.com/vesselworks/tagetes/tensor"
)

type consoleProgress struct {
	total int
	done  int
}

func (p *consoleProgress) Begin(total int) {
	p.total = total
	p.done = 0
}

func (p *consoleProgress) Advance(n int) {
	p.done += n
	fmt.Fprintf(os.Stderr, "\rsampling %d/%d", p.done, p.total)
	if p.done >= p.total {
		fmt.Fprintln(os.Stderr)
	}
}

func main() {
	var (
		inPath     string
		outDir     string
		prefix     string
		colorize   string
		preview    bool
		seed       int64
		steps      int
		nRepeat    int
		batchSize  int
		reduction  string
		lambda     float64
		maxIter    int
		tol        float64
		invert     bool
		fp16       bool
		keepLoaded bool
		verbose    bool
	)

	flag.StringVar(&inPath, "in", "", "Input image path (PNG/JPEG/GIF/WEBP)")
	flag.StringVar(&outDir, "out", "", "Output directory (default from config)")
	flag.StringVar(&prefix, "prefix", "tagetes_exr", "Output filename prefix")
	flag.StringVar(&colorize, "colorize", "", "Colormap name for a colorized EXR (empty = raw depth)")
	flag.BoolVar(&preview, "preview", false, "Also write a PNG preview next to the EXR")
	flag.Int64Var(&seed, "seed", 123, "Base random seed for latent noise")
	flag.IntVar(&steps, "steps", 10, "Denoising steps per sample")
	flag.IntVar(&nRepeat, "n-repeat", 10, "Stochastic repeats per image")
	flag.IntVar(&batchSize, "batch-size", 2, "Sub-batch size for repeats")
	flag.StringVar(&reduction, "reduction", "median", "Ensemble reduction: median or mean")
	flag.Float64Var(&lambda, "regularizer", 0.02, "Ensemble regularizer strength")
	flag.IntVar(&maxIter, "max-iter", 5, "Ensemble iteration budget")
	flag.Float64Var(&tol, "tol", 1e-3, "Ensemble convergence tolerance")
	flag.BoolVar(&invert, "invert", true, "Invert the depth map (near = bright)")
	flag.BoolVar(&fp16, "fp16", true, "Use the half-precision model")
	flag.BoolVar(&keepLoaded, "keep-loaded", false, "Keep the model session loaded on exit")
	flag.BoolVar(&verbose, "v", false, "Debug logging")
	flag.Parse()

	godotenv.Load()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if inPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --in is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, _, err := appconfig.Load()
	if err != nil {
		log.Warn().Err(err).Msg("config load failed, using defaults")
	}
	if outDir == "" {
		outDir = cfg.OutputDir
	}
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("create output directory")
	}

	img, err := loadImage(inPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", inPath).Msg("load input image")
	}

	ctx := context.Background()
	rt := &node.Runtime{Progress: &consoleProgress{}, OutputDir: outDir}

	depth, err := runNode(ctx, rt, "MarigoldDepthEstimation", node.Args{
		"image":                img,
		"seed":                 seed,
		"denoise_steps":        steps,
		"n_repeat":             nRepeat,
		"n_repeat_batch_size":  batchSize,
		"reduction_method":     reduction,
		"regularizer_strength": lambda,
		"max_iter":             maxIter,
		"tol":                  tol,
		"invert":               invert,
		"use_fp16":             fp16,
		"keep_model_loaded":    keepLoaded,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("depth estimation failed")
	}
	result := depth[0].(*tensor.Image)

	if colorize != "" {
		colored, err := runNode(ctx, rt, "ColorizeDepthmap", node.Args{
			"image":           result,
			"colorize_method": colorize,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("colorize failed")
		}
		result = colored[0].(*tensor.Image)
	}

	saved, err := runNode(ctx, rt, "SaveImageOpenEXR", node.Args{
		"image":           result,
		"filename_prefix": prefix,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("exr export failed")
	}
	log.Info().Str("url", saved[0].(string)).Msg("wrote depth map")

	if preview {
		name := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(inPath), filepath.Ext(inPath))+"_depth.png")
		if err := writePNG(name, result); err != nil {
			log.Fatal().Err(err).Msg("png preview failed")
		}
		log.Info().Str("path", name).Msg("wrote preview")
	}
}

// runNode constructs a registered node and invokes it.
func runNode(ctx context.Context, rt *node.Runtime, typ string, args node.Args) ([]any, error) {
	def, ok := node.Lookup(typ)
	if !ok {
		return nil, fmt.Errorf("node %s not registered", typ)
	}
	n, err := def.New()
	if err != nil {
		return nil, err
	}
	return n.Run(ctx, rt, args)
}

func loadImage(path string) (*tensor.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return tensor.FromImage(img), nil
}

func writePNG(path string, im *tensor.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, im.GoImage(0))
}
