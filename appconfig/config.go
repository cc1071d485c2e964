// Package appconfig loads and persists the application configuration: a JSON
// file in the platform data directory, deep-merged over defaults, with a
// TAGETES_* environment overlay applied last.
package appconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"

	"github.com/vesselworks/tagetes/platform"
)

// Config holds application configuration: checkpoint and output locations,
// the inference runtime, the job queue, and observability settings.
type Config struct {
	// OutputDir receives exported EXR and preview files.
	OutputDir string `json:"outputDir" env:"TAGETES_OUTPUT_DIR"`

	// Checkpoint resolution settings
	CheckpointDir      string `json:"checkpointDir" env:"TAGETES_CHECKPOINT_DIR"`
	CheckpointRepo     string `json:"checkpointRepo" env:"TAGETES_CHECKPOINT_REPO"`
	HuggingFaceBaseURL string `json:"huggingfaceBaseUrl" env:"TAGETES_HF_BASE_URL"`

	// ONNX Runtime shared library override; resolved automatically when empty
	ORTLibraryPath string `json:"ortLibraryPath" env:"TAGETES_ORT_LIBRARY_PATH"`

	// Job queue database path
	QueuePath string `json:"queuePath" env:"TAGETES_QUEUE_PATH"`

	// Prometheus listen address for the queue runner
	MetricsAddr string `json:"metricsAddr" env:"TAGETES_METRICS_ADDR"`

	LogLevel string `json:"logLevel" env:"TAGETES_LOG_LEVEL"`

	// S3 mirror for checkpoint archives; inactive when Bucket is empty
	Mirror struct {
		Bucket    string `json:"bucket" env:"TAGETES_S3_BUCKET"`
		Key       string `json:"key" env:"TAGETES_S3_KEY"`
		Region    string `json:"region" env:"TAGETES_S3_REGION"`
		AccessKey string `json:"accessKey" env:"TAGETES_S3_ACCESS_KEY"`
		SecretKey string `json:"secretKey" env:"TAGETES_S3_SECRET_KEY"`
	} `json:"mirror"`
}

var (
	cfgMu sync.RWMutex
	cfg   Config
)

// DefaultQueuePath returns the default job queue database path.
// Uses the platform-specific data directory.
func DefaultQueuePath() string {
	return filepath.Join(platform.GetDataDir(), "jobs.db")
}

// DefaultConfigDir returns the default config directory path.
// Uses the platform-specific data directory.
func DefaultConfigDir() string {
	return platform.GetDataDir()
}

// defaultOutputDir returns the default export path (~/tagetes-output).
func defaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tagetes-output"
	}
	return filepath.Join(home, "tagetes-output")
}

// defaultConfig returns a Config populated with sensible defaults.
func defaultConfig() Config {
	return Config{
		OutputDir:          defaultOutputDir(),
		CheckpointRepo:     "Bingxin/Marigold",
		HuggingFaceBaseURL: "https://huggingface.co",
		QueuePath:          DefaultQueuePath(),
		MetricsAddr:        "localhost:9180",
		LogLevel:           "info",
	}
}

// Get returns a copy of the current in-memory config.
func Get() Config {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return cfg
}

// Set replaces the in-memory config.
func Set(c Config) {
	cfgMu.Lock()
	cfg = c
	cfgMu.Unlock()
}

func isJSONObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func deepMergeJSON(dst, src map[string]json.RawMessage) {
	for k, v := range src {
		if existing, ok := dst[k]; ok && isJSONObject(existing) && isJSONObject(v) {
			var dstObj map[string]json.RawMessage
			var srcObj map[string]json.RawMessage
			if err := json.Unmarshal(existing, &dstObj); err != nil {
				dst[k] = v
				continue
			}
			if err := json.Unmarshal(v, &srcObj); err != nil {
				dst[k] = v
				continue
			}
			deepMergeJSON(dstObj, srcObj)
			merged, err := json.Marshal(dstObj)
			if err != nil {
				dst[k] = v
				continue
			}
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}

// getConfigPath returns the full path to the config.json file.
func getConfigPath() (string, error) {
	configDir := DefaultConfigDir()
	return filepath.Join(configDir, "config.json"), nil
}

// applyEnv overlays TAGETES_* environment variables onto c.
func applyEnv(c *Config) error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %v", err)
	}
	return nil
}

// Load reads the config from disk, applies environment overrides, and updates
// the in-memory config. It returns the config and path.
// If the config file doesn't exist, it creates one with default values.
func Load() (Config, string, error) {
	path, err := getConfigPath()
	if err != nil {
		return Config{}, "", err
	}

	// Ensure config directory exists
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return Config{}, "", fmt.Errorf("failed to create config directory %s: %v", configDir, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Config file doesn't exist - create it with defaults
			def := defaultConfig()
			savedPath, saveErr := Save(def)
			if saveErr != nil {
				return Config{}, path, fmt.Errorf("failed to create default config file: %v", saveErr)
			}
			if err := applyEnv(&def); err != nil {
				return Config{}, savedPath, err
			}
			Set(def)
			return def, savedPath, nil
		}
		return Config{}, path, fmt.Errorf("failed to read config file at %s: %v", path, err)
	}

	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, path, fmt.Errorf("failed to parse config JSON: %v", err)
	}

	// Merge defaults for any missing fields
	def := defaultConfig()
	if c.OutputDir == "" {
		c.OutputDir = def.OutputDir
	}
	if c.CheckpointRepo == "" {
		c.CheckpointRepo = def.CheckpointRepo
	}
	if c.HuggingFaceBaseURL == "" {
		c.HuggingFaceBaseURL = def.HuggingFaceBaseURL
	}
	if c.QueuePath == "" {
		c.QueuePath = def.QueuePath
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = def.MetricsAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	if err := applyEnv(&c); err != nil {
		return Config{}, path, err
	}

	Set(c)
	return c, path, nil
}

// Save writes the config to disk, creating the directory as needed. Returns
// the path. Unknown keys already present in the file are preserved.
func Save(c Config) (string, error) {
	path, err := getConfigPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return path, fmt.Errorf("failed to create config directory: %v", err)
	}
	base := map[string]json.RawMessage{}
	if existing, readErr := os.ReadFile(path); readErr == nil {
		var tmp map[string]json.RawMessage
		if err := json.Unmarshal(existing, &tmp); err == nil {
			base = tmp
		}
	}

	marshaled, err := json.Marshal(c)
	if err != nil {
		return path, fmt.Errorf("failed to marshal config: %v", err)
	}
	incoming := map[string]json.RawMessage{}
	if err := json.Unmarshal(marshaled, &incoming); err != nil {
		return path, fmt.Errorf("failed to map config JSON: %v", err)
	}

	deepMergeJSON(base, incoming)

	mergedData, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		return path, fmt.Errorf("failed to marshal merged config: %v", err)
	}
	if err := os.WriteFile(path, mergedData, 0644); err != nil {
		return path, fmt.Errorf("failed to write config file: %v", err)
	}
	Set(c)
	return path, nil
}
