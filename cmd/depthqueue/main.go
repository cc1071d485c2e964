// depthqueue batches depth estimation through a persistent job queue: it
// enqueues every image in a directory, then drains the queue sequentially,
// serving Prometheus metrics while it works.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"

	"github.com/vesselworks/tagetes/appconfig"
	"github.com/vesselworks/tagetes/metrics"
	"github.com/vesselworks/tagetes/node"
	_ "github.com/vesselworks/tagetes/nodes"
	"github.com/vesselworks/tagetes/runqueue"
	"github.com/vesselworks/tagetes/tensor"
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

func main() {
	var (
		enqueueDir  string
		queuePath   string
		metricsAddr string
		colorize    string
		seed        int64
		steps       int
		nRepeat     int
		fp16        bool
		invert      bool
		verbose     bool
	)

	flag.StringVar(&enqueueDir, "enqueue", "", "Directory of images to enqueue before draining")
	flag.StringVar(&queuePath, "queue", "", "Queue database path (default from config)")
	flag.StringVar(&metricsAddr, "metrics", "", "Prometheus listen address (default from config)")
	flag.StringVar(&colorize, "colorize", "", "Colormap name applied before export (empty = raw depth)")
	flag.Int64Var(&seed, "seed", 123, "Base random seed for latent noise")
	flag.IntVar(&steps, "steps", 10, "Denoising steps per sample")
	flag.IntVar(&nRepeat, "n-repeat", 10, "Stochastic repeats per image")
	flag.BoolVar(&fp16, "fp16", true, "Use the half-precision model")
	flag.BoolVar(&invert, "invert", true, "Invert the depth map (near = bright)")
	flag.BoolVar(&verbose, "v", false, "Debug logging")
	flag.Parse()

	godotenv.Load()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, _, err := appconfig.Load()
	if err != nil {
		log.Warn().Err(err).Msg("config load failed, using defaults")
	}
	if queuePath == "" {
		queuePath = cfg.QueuePath
	}
	if queuePath == "" {
		queuePath = appconfig.DefaultQueuePath()
	}
	if metricsAddr == "" {
		metricsAddr = cfg.MetricsAddr
	}
	outDir := cfg.OutputDir
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("create output directory")
	}

	queue, err := runqueue.Open(queuePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", queuePath).Msg("open queue")
	}
	defer queue.Close()

	if enqueueDir != "" {
		n, err := enqueueImages(queue, enqueueDir, node.Args{
			"seed":              seed,
			"denoise_steps":     steps,
			"n_repeat":          nRepeat,
			"use_fp16":          fp16,
			"invert":            invert,
			"keep_model_loaded": true,
		}, colorize)
		if err != nil {
			log.Fatal().Err(err).Msg("enqueue failed")
		}
		log.Info().Int("jobs", n).Str("dir", enqueueDir).Msg("enqueued images")
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
		log.Info().Str("addr", metricsAddr).Msg("serving metrics")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	drain(ctx, queue, outDir)
}

// enqueueImages creates one depth job per image file in dir.
func enqueueImages(queue *runqueue.Queue, dir string, params node.Args, colorize string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		job := map[string]any{
			"input":           filepath.Join(dir, e.Name()),
			"filename_prefix": strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
		}
		if colorize != "" {
			job["colorize"] = colorize
		}
		for k, v := range params {
			job[k] = v
		}
		if _, err := queue.Enqueue("MarigoldDepthEstimation", job); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// nodeSet constructs one instance per node type and reuses it for every job,
// so the depth node's model cache stays warm across the whole drain when jobs
// carry keep_model_loaded.
type nodeSet map[string]node.Node

func (s nodeSet) get(typ string) (node.Node, error) {
	if n, ok := s[typ]; ok {
		return n, nil
	}
	def, ok := node.Lookup(typ)
	if !ok {
		return nil, fmt.Errorf("node %s not registered", typ)
	}
	n, err := def.New()
	if err != nil {
		return nil, err
	}
	s[typ] = n
	return n, nil
}

func (s nodeSet) run(ctx context.Context, rt *node.Runtime, typ string, args node.Args) ([]any, error) {
	n, err := s.get(typ)
	if err != nil {
		return nil, err
	}
	return n.Run(ctx, rt, args)
}

// drain claims and runs jobs until the queue is empty or ctx is cancelled.
func drain(ctx context.Context, queue *runqueue.Queue, outDir string) {
	set := nodeSet{}
	for {
		if ctx.Err() != nil {
			log.Info().Msg("interrupted, leaving remaining jobs queued")
			return
		}
		job, err := queue.Claim()
		if err == runqueue.ErrEmpty {
			log.Info().Msg("queue drained")
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("claim job")
		}

		url, err := runJob(ctx, set, job, outDir)
		if err != nil {
			metrics.NodeRuns.WithLabelValues(job.NodeType, "error").Inc()
			log.Error().Err(err).Str("job", job.ID).Msg("job failed")
			if ferr := queue.Fail(job.ID, err.Error()); ferr != nil {
				log.Fatal().Err(ferr).Msg("record job failure")
			}
			continue
		}
		metrics.NodeRuns.WithLabelValues(job.NodeType, "ok").Inc()
		log.Info().Str("job", job.ID).Str("url", url).Msg("job done")
		if err := queue.Done(job.ID, url); err != nil {
			log.Fatal().Err(err).Msg("record job completion")
		}
	}
}

// runJob executes one depth job: estimate, optionally colorize, export.
func runJob(ctx context.Context, set nodeSet, job *runqueue.Job, outDir string) (string, error) {
	params := node.Args{}
	for k, v := range job.Params {
		params[k] = v
	}

	inPath, _ := params.String("input")
	if inPath == "" {
		return "", fmt.Errorf("job %s: missing input path", job.ID)
	}
	delete(params, "input")

	colorize, _ := params.String("colorize")
	delete(params, "colorize")

	prefix, _ := params.String("filename_prefix")
	if prefix == "" {
		prefix = "tagetes_exr"
	}
	delete(params, "filename_prefix")

	img, err := loadImage(inPath)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", inPath, err)
	}
	params["image"] = img

	rt := node.NewRuntime(outDir)
	out, err := set.run(ctx, rt, job.NodeType, params)
	if err != nil {
		return "", err
	}
	result := out[0].(*tensor.Image)

	if colorize != "" {
		colored, err := set.run(ctx, rt, "ColorizeDepthmap", node.Args{
			"image":           result,
			"colorize_method": colorize,
		})
		if err != nil {
			return "", err
		}
		result = colored[0].(*tensor.Image)
	}

	saved, err := set.run(ctx, rt, "SaveImageOpenEXR", node.Args{
		"image":           result,
		"filename_prefix": prefix,
	})
	if err != nil {
		return "", err
	}
	return saved[0].(string), nil
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
