// Package checkpoint locates the Marigold model weights on disk, falling
// back to an S3 mirror and then to the upstream HuggingFace repository when
// no local copy exists. Resolution is fatal when every source misses; there
// are no retries at this level.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"

	"github.com/vesselworks/tagetes/downloads"
	"github.com/vesselworks/tagetes/metrics"
	"github.com/vesselworks/tagetes/platform"
)

// ErrCheckpointNotFound is returned when no local, mirrored, or remote
// checkpoint could be located.
var ErrCheckpointNotFound = errors.New("checkpoint: no checkpoint directory found")

// Model files a checkpoint directory must provide. A directory qualifies as
// a checkpoint once ModelFile exists in it.
const (
	ModelFile     = "model.onnx"
	ModelFileFP16 = "model_fp16.onnx"
	ConfigFile    = "config.json"
)

// DefaultRepo is the upstream HuggingFace repository for Marigold weights.
const DefaultRepo = "Bingxin/Marigold"

// remoteManifest lists the files fetched from the repository.
var remoteManifest = []string{ModelFile, ModelFileFP16, ConfigFile}

// S3Mirror points at an archived checkpoint (zip, tar.gz or 7z) in an S3
// bucket.
type S3Mirror struct {
	Bucket    string
	Key       string
	Region    string
	AccessKey string
	SecretKey string
}

// Resolver locates a checkpoint directory.
type Resolver struct {
	// DataDir anchors the default candidate and fetch directories.
	DataDir string
	// Candidates are extra local directories checked before the defaults.
	Candidates []string
	// Repo is the HuggingFace repository id; DefaultRepo when empty.
	Repo string
	// Mirror, when set, is tried before the HuggingFace fetch.
	Mirror *S3Mirror
	// BaseURL overrides the HuggingFace endpoint, e.g. for a private hub.
	BaseURL string
	// HTTPClient performs the HuggingFace fetch; a default retrying client
	// is used when nil.
	HTTPClient *retryablehttp.Client
}

// dataDir anchors candidate and fetch directories, defaulting to the
// platform data directory.
func (r *Resolver) dataDir() string {
	if r.DataDir != "" {
		return r.DataDir
	}
	return platform.GetDataDir()
}

// localCandidates returns the ordered directories checked for an existing
// checkpoint, mirroring the reference node's folder list.
func (r *Resolver) localCandidates() []string {
	dirs := append([]string{}, r.Candidates...)
	dirs = append(dirs,
		filepath.Join(r.dataDir(), "checkpoints", "Marigold_v1_merged"),
		filepath.Join(r.dataDir(), "checkpoints", "Marigold"),
		r.fetchDir(),
	)
	return dirs
}

// fetchDir is where mirror and repository downloads are installed.
func (r *Resolver) fetchDir() string {
	return filepath.Join(r.dataDir(), "models", "diffusers", "Marigold")
}

// Resolve returns the first directory containing the model weights, fetching
// them if necessary. Order: local candidates, the S3 mirror, the HuggingFace
// repository.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	for _, dir := range r.localCandidates() {
		if hasCheckpoint(dir) {
			log.Debug().Str("dir", dir).Msg("checkpoint: using local weights")
			return dir, nil
		}
	}

	if r.Mirror != nil {
		dir, err := r.fetchMirror(ctx)
		if err == nil {
			return dir, nil
		}
		log.Warn().Err(err).Msg("checkpoint: s3 mirror fetch failed, trying upstream")
	}

	dir, err := r.fetchRepo(ctx)
	if err != nil {
		log.Error().Err(err).Msg("checkpoint: upstream fetch failed")
		return "", fmt.Errorf("%w: %v", ErrCheckpointNotFound, err)
	}
	return dir, nil
}

func hasCheckpoint(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ModelFile))
	return err == nil
}

// fetchMirror downloads the mirror archive and extracts it into the fetch
// directory.
func (r *Resolver) fetchMirror(ctx context.Context) (string, error) {
	m := r.Mirror
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(m.Region)}
	if m.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(m.AccessKey, m.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	obj, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.Bucket),
		Key:    aws.String(m.Key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("s3 %s/%s: %s", m.Bucket, m.Key, apiErr.ErrorCode())
		}
		return "", fmt.Errorf("s3 %s/%s: %w", m.Bucket, m.Key, err)
	}
	defer obj.Body.Close()

	archive := filepath.Join(os.TempDir(), filepath.Base(m.Key))
	f, err := os.Create(archive)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, obj.Body)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("download mirror archive: %w", err)
	}
	metrics.CheckpointFetchBytes.Add(float64(n))
	defer os.Remove(archive)

	dest := r.fetchDir()
	if err := os.MkdirAll(dest, 0755); err != nil {
		return "", err
	}
	if err := extractArchive(archive, dest); err != nil {
		return "", err
	}
	if !hasCheckpoint(dest) {
		return "", fmt.Errorf("mirror archive %s did not contain %s", m.Key, ModelFile)
	}
	log.Info().Str("dir", dest).Msg("checkpoint: installed from s3 mirror")
	return dest, nil
}

func extractArchive(archive, dest string) error {
	switch {
	case strings.HasSuffix(archive, ".zip"):
		return downloads.ExtractZip(archive, dest, "", nil)
	case strings.HasSuffix(archive, ".tar.gz"), strings.HasSuffix(archive, ".tgz"):
		return downloads.ExtractTarGz(archive, dest, nil)
	case strings.HasSuffix(archive, ".7z"):
		return downloads.Extract7z(archive, dest, "", nil)
	}
	return fmt.Errorf("unsupported archive format: %s", filepath.Base(archive))
}

// fetchRepo downloads the file manifest from the HuggingFace repository into
// the fetch directory.
func (r *Resolver) fetchRepo(ctx context.Context) (string, error) {
	repo := r.Repo
	if repo == "" {
		repo = DefaultRepo
	}
	client := r.HTTPClient
	if client == nil {
		client = retryablehttp.NewClient()
		client.RetryMax = 3
		client.Logger = nil
	}

	base := r.BaseURL
	if base == "" {
		base = "https://huggingface.co"
	}

	dest := r.fetchDir()
	if err := os.MkdirAll(dest, 0755); err != nil {
		return "", err
	}
	for _, name := range remoteManifest {
		url := fmt.Sprintf("%s/%s/resolve/main/%s", base, repo, name)
		log.Info().Str("url", url).Msg("checkpoint: fetching")
		if err := fetchFile(ctx, client, url, filepath.Join(dest, name)); err != nil {
			return "", fmt.Errorf("fetch %s: %w", name, err)
		}
	}
	if !hasCheckpoint(dest) {
		return "", fmt.Errorf("repository %s did not provide %s", repo, ModelFile)
	}
	return dest, nil
}

func fetchFile(ctx context.Context, client *retryablehttp.Client, url, dest string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	metrics.CheckpointFetchBytes.Add(float64(n))
	log.Debug().Str("file", filepath.Base(dest)).Str("size", downloads.FormatBytes(n)).Msg("checkpoint: fetched")
	return os.Rename(tmp, dest)
}
