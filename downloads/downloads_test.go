package downloads

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, "archive.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeTarGz(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, "archive.tgz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractZipStripPrefix(t *testing.T) {
	dir := t.TempDir()
	archive := writeZip(t, dir, map[string]string{
		"bundle-1.0/model.onnx":  "model-bytes",
		"bundle-1.0/config.json": "{}",
	})

	dest := filepath.Join(dir, "out")
	if err := ExtractZip(archive, dest, "bundle-1.0/", nil); err != nil {
		t.Fatalf("ExtractZip error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "model.onnx"))
	if err != nil {
		t.Fatalf("extracted file missing: %v", err)
	}
	if string(data) != "model-bytes" {
		t.Errorf("extracted content = %q", data)
	}
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()
	archive := writeTarGz(t, dir, map[string]string{
		"a/b/file.txt": "hello",
	})

	dest := filepath.Join(dir, "out")
	if err := ExtractTarGz(archive, dest, nil); err != nil {
		t.Fatalf("ExtractTarGz error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "a", "b", "file.txt"))
	if err != nil {
		t.Fatalf("extracted file missing: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("extracted content = %q", data)
	}
}

func TestExtractFileFromZipMatch(t *testing.T) {
	dir := t.TempDir()
	archive := writeZip(t, dir, map[string]string{
		"lib/other.txt":              "nope",
		"lib/libonnxruntime.so.1.22": "shared-lib",
	})

	dest := filepath.Join(dir, "libonnxruntime.so")
	err := ExtractFileFromZip(archive, dest, func(name string) bool {
		return filepath.Base(name) == "libonnxruntime.so.1.22"
	}, nil)
	if err != nil {
		t.Fatalf("ExtractFileFromZip error = %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "shared-lib" {
		t.Errorf("extracted content = %q", data)
	}
}

func TestExtractFileFromZipNoMatch(t *testing.T) {
	dir := t.TempDir()
	archive := writeZip(t, dir, map[string]string{"a.txt": "x"})

	err := ExtractFileFromZip(archive, filepath.Join(dir, "out"), func(string) bool { return false }, nil)
	if err == nil {
		t.Fatal("expected error when no file matches")
	}
}

func TestDownloadFileResume(t *testing.T) {
	payload := []byte("0123456789abcdef")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rng := r.Header.Get("Range"); rng != "" {
			var from int64
			fmt.Sscanf(rng, "bytes=%d-", &from)
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", from, len(payload)-1, len(payload)))
			w.WriteHeader(http.StatusPartialContent)
			w.Write(payload[from:])
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "file.bin")
	// Simulate an interrupted download
	if err := os.WriteFile(dest, payload[:6], 0o644); err != nil {
		t.Fatal(err)
	}

	if err := DownloadFile(context.Background(), dest, srv.URL, nil); err != nil {
		t.Fatalf("DownloadFile error = %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Errorf("resumed file = %q, want %q", got, payload)
	}
}

func TestDownloadFileBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	err := DownloadFile(context.Background(), filepath.Join(t.TempDir(), "f"), srv.URL, nil)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q; want %q", tt.in, got, tt.want)
		}
	}
}
