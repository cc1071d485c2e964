// Package ortlib locates the ONNX Runtime shared library, downloading and
// extracting the official release archive when no local copy is found.
package ortlib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/vesselworks/tagetes/downloads"
	"github.com/vesselworks/tagetes/platform"
)

// Version is the ONNX Runtime release fetched when no library is installed.
const Version = "1.22.0"

// EnvVar overrides all resolution when set.
const EnvVar = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// LibName returns the platform-specific library file name.
func LibName() string {
	return "libonnxruntime" + platform.SharedLibExtension()
}

// installDir is where a downloaded runtime is kept.
func installDir() string {
	return filepath.Join(platform.GetDataDir(), "onnxruntime")
}

// candidates lists well-known locations checked before downloading.
func candidates() []string {
	paths := []string{filepath.Join(installDir(), LibName())}
	switch runtime.GOOS {
	case "windows":
		paths = append(paths, filepath.Join(platform.GetDataDir(), "onnxruntime.dll"))
	case "darwin":
		paths = append(paths,
			"/usr/local/lib/libonnxruntime.dylib",
			"/opt/homebrew/lib/libonnxruntime.dylib")
	default:
		paths = append(paths,
			"/usr/lib/libonnxruntime.so",
			"/usr/local/lib/libonnxruntime.so",
			"/usr/lib/x86_64-linux-gnu/libonnxruntime.so")
	}
	return paths
}

// downloadURL returns the official release archive for this OS and arch.
func downloadURL(version, arch string) string {
	base := "https://github.com/microsoft/onnxruntime/releases/download/v" + version + "/onnxruntime-"
	switch runtime.GOOS {
	case "windows":
		if arch == "arm64" {
			return base + "win-arm64-" + version + ".zip"
		}
		return base + "win-x64-" + version + ".zip"
	case "darwin":
		if arch == "arm64" {
			return base + "osx-arm64-" + version + ".tgz"
		}
		return base + "osx-x86_64-" + version + ".tgz"
	default:
		if arch == "arm64" {
			return base + "linux-aarch64-" + version + ".tgz"
		}
		return base + "linux-x64-" + version + ".tgz"
	}
}

// Resolve returns the path of a usable ONNX Runtime shared library: the
// environment override, then well-known local locations, then a download of
// the official release into the data directory.
func Resolve(ctx context.Context) (string, error) {
	if p := os.Getenv(EnvVar); p != "" {
		return p, nil
	}
	for _, p := range candidates() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return fetch(ctx)
}

func fetch(ctx context.Context) (string, error) {
	arch := runtime.GOARCH
	if arch != "amd64" && arch != "arm64" {
		return "", fmt.Errorf("ortlib: unsupported architecture %s", arch)
	}

	dir := installDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	cacheDir := platform.GetCacheDir()
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return "", err
	}
	url := downloadURL(Version, arch)
	archive := filepath.Join(cacheDir, filepath.Base(url))
	log.Info().Str("url", url).Msg("ortlib: downloading onnxruntime")

	if err := downloads.DownloadWithRetry(ctx, archive, url, nil); err != nil {
		return "", fmt.Errorf("ortlib: download onnxruntime: %w", err)
	}
	defer os.Remove(archive)

	dest := filepath.Join(dir, LibName())
	if err := extractLib(archive, dest); err != nil {
		return "", fmt.Errorf("ortlib: extract onnxruntime: %w", err)
	}
	return dest, nil
}

// extractLib pulls the main shared library out of a release archive. The
// library inside is versioned (libonnxruntime.so.1.22.0 on Linux,
// libonnxruntime.1.22.0.dylib on macOS, onnxruntime.dll on Windows).
func extractLib(archive, dest string) error {
	isLib := func(name string) bool {
		base := filepath.Base(name)
		switch runtime.GOOS {
		case "windows":
			return base == "onnxruntime.dll"
		case "darwin":
			return strings.HasPrefix(base, "libonnxruntime.") && strings.HasSuffix(base, ".dylib")
		default:
			return strings.Contains(base, "libonnxruntime.so.")
		}
	}
	if strings.HasSuffix(archive, ".zip") {
		return downloads.ExtractFileFromZip(archive, dest, isLib, nil)
	}
	return downloads.ExtractFileFromTarGz(archive, dest, isLib, nil)
}
