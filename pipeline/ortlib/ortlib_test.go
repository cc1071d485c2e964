package ortlib

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveEnvOverride(t *testing.T) {
	t.Setenv(EnvVar, "/opt/custom/libonnxruntime.so")
	p, err := Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if p != "/opt/custom/libonnxruntime.so" {
		t.Errorf("Resolve() = %q; want env override", p)
	}
}

func TestResolveInstalledCopy(t *testing.T) {
	t.Setenv(EnvVar, "")
	dataDir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataDir)

	dir := installDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	lib := filepath.Join(dir, LibName())
	if err := os.WriteFile(lib, []byte("so"), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if p != lib {
		t.Errorf("Resolve() = %q; want %q", p, lib)
	}
}

func TestDownloadURLPerArch(t *testing.T) {
	for _, arch := range []string{"amd64", "arm64"} {
		url := downloadURL(Version, arch)
		if url == "" {
			t.Errorf("downloadURL(%s) empty", arch)
		}
	}
}
