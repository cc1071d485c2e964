// Package platform provides cross-platform utilities for directory paths and
// OS-specific file conventions.
package platform

// AppName is the application name used for directory naming
const AppName = "tagetes"

// AppDisplayName is the display name used on Windows and macOS
const AppDisplayName = "Tagetes"

// GetDataDir returns the application data directory.
// Windows: %APPDATA%\Tagetes
// Linux: ~/.local/share/tagetes
// Falls back to ~/.tagetes if XDG is not available.
func GetDataDir() string {
	return getDataDir()
}

// GetCacheDir returns the cache directory for downloaded archives.
// Windows: %APPDATA%\Tagetes
// Linux: ~/.cache/tagetes
func GetCacheDir() string {
	return getCacheDir()
}

// SharedLibExtension returns the shared library extension for the current platform.
// Windows: ".dll"
// Linux: ".so"
func SharedLibExtension() string {
	return sharedLibExtension()
}

// EnsureExecutable ensures a file has executable permissions.
// On Windows, this is a no-op.
// On Linux, this sets the executable bit.
func EnsureExecutable(path string) error {
	return ensureExecutable(path)
}
