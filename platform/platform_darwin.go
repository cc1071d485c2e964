//go:build darwin
// +build darwin

package platform

import (
	"os"
	"path/filepath"
)

func getDataDir() string {
	// On macOS, use ~/Library/Application Support/AppName
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Library", "Application Support", AppDisplayName)
}

func getCacheDir() string {
	// On macOS, use ~/Library/Caches/AppName
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Library", "Caches", AppName)
}

func sharedLibExtension() string {
	return ".dylib"
}

func ensureExecutable(path string) error {
	// Set executable permissions (owner, group, others can execute)
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	// Add executable bit for owner
	return os.Chmod(path, info.Mode()|0111)
}
