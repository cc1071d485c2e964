package checkpoint

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-retryablehttp"
)

func writeModel(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ModelFile), []byte("onnx"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveLocalCandidateOrder(t *testing.T) {
	dataDir := t.TempDir()
	extra := filepath.Join(t.TempDir(), "extra")
	merged := filepath.Join(dataDir, "checkpoints", "Marigold_v1_merged")
	plain := filepath.Join(dataDir, "checkpoints", "Marigold")

	writeModel(t, extra)
	writeModel(t, merged)
	writeModel(t, plain)

	r := &Resolver{DataDir: dataDir, Candidates: []string{extra}}
	dir, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if dir != extra {
		t.Errorf("Resolve() = %q; configured extras should win, want %q", dir, extra)
	}

	// Without extras, the merged folder takes precedence.
	r = &Resolver{DataDir: dataDir}
	dir, err = r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if dir != merged {
		t.Errorf("Resolve() = %q; want %q", dir, merged)
	}
}

func TestResolveIgnoresIncompleteDir(t *testing.T) {
	dataDir := t.TempDir()
	// A candidate directory without the model file does not qualify.
	incomplete := filepath.Join(dataDir, "checkpoints", "Marigold_v1_merged")
	if err := os.MkdirAll(incomplete, 0755); err != nil {
		t.Fatal(err)
	}
	plain := filepath.Join(dataDir, "checkpoints", "Marigold")
	writeModel(t, plain)

	r := &Resolver{DataDir: dataDir}
	dir, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if dir != plain {
		t.Errorf("Resolve() = %q; want %q", dir, plain)
	}
}

func TestResolveFetchesFromRepo(t *testing.T) {
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requested = append(requested, req.URL.Path)
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = nil

	dataDir := t.TempDir()
	r := &Resolver{DataDir: dataDir, BaseURL: srv.URL, HTTPClient: client}
	dir, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if want := filepath.Join(dataDir, "models", "diffusers", "Marigold"); dir != want {
		t.Errorf("Resolve() = %q; want %q", dir, want)
	}
	if len(requested) != len(remoteManifest) {
		t.Fatalf("server saw %d requests; want %d", len(requested), len(remoteManifest))
	}
	if requested[0] != "/Bingxin/Marigold/resolve/main/"+ModelFile {
		t.Errorf("first request = %q", requested[0])
	}
	for _, name := range remoteManifest {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("fetched file %s missing: %v", name, err)
		}
	}
}

func TestResolveNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	}))
	defer srv.Close()

	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = nil

	r := &Resolver{DataDir: t.TempDir(), BaseURL: srv.URL, HTTPClient: client}
	_, err := r.Resolve(context.Background())
	if !errors.Is(err, ErrCheckpointNotFound) {
		t.Fatalf("Resolve() error = %v; want ErrCheckpointNotFound", err)
	}
}

func TestResolveSkipsFetchWhenLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Error("no request should reach the repository when a local checkpoint exists")
	}))
	defer srv.Close()

	dataDir := t.TempDir()
	writeModel(t, filepath.Join(dataDir, "checkpoints", "Marigold"))

	r := &Resolver{DataDir: dataDir, BaseURL: srv.URL}
	if _, err := r.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
}
