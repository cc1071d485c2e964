package appconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfig verifies default configuration values
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.CheckpointRepo != "Bingxin/Marigold" {
		t.Errorf("Default CheckpointRepo = %q; want %q", cfg.CheckpointRepo, "Bingxin/Marigold")
	}

	if cfg.HuggingFaceBaseURL != "https://huggingface.co" {
		t.Errorf("Default HuggingFaceBaseURL = %q; want %q", cfg.HuggingFaceBaseURL, "https://huggingface.co")
	}

	if cfg.OutputDir == "" {
		t.Error("Default OutputDir should not be empty")
	}

	if cfg.QueuePath == "" {
		t.Error("Default QueuePath should not be empty")
	}

	if cfg.MetricsAddr == "" {
		t.Error("Default MetricsAddr should not be empty")
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Default LogLevel = %q; want %q", cfg.LogLevel, "info")
	}
}

// TestDefaultOutputDir verifies the output path generation
func TestDefaultOutputDir(t *testing.T) {
	path := defaultOutputDir()

	if filepath.Base(path) != "tagetes-output" {
		t.Errorf("Default output path should end with 'tagetes-output'; got %q", path)
	}

	home, err := os.UserHomeDir()
	if err == nil {
		expectedPath := filepath.Join(home, "tagetes-output")
		if path != expectedPath {
			t.Errorf("Default output path = %q; want %q", path, expectedPath)
		}
	}
}

// TestGetSet verifies Get/Set functions for in-memory config
func TestGetSet(t *testing.T) {
	// Save original and restore after test
	original := Get()
	defer Set(original)

	testConfig := Config{
		OutputDir:     "/test/output",
		CheckpointDir: "/test/checkpoints",
		QueuePath:     "/test/jobs.db",
		MetricsAddr:   "localhost:9999",
	}

	Set(testConfig)

	retrieved := Get()

	if retrieved.OutputDir != testConfig.OutputDir {
		t.Errorf("Get().OutputDir = %q; want %q", retrieved.OutputDir, testConfig.OutputDir)
	}
	if retrieved.CheckpointDir != testConfig.CheckpointDir {
		t.Errorf("Get().CheckpointDir = %q; want %q", retrieved.CheckpointDir, testConfig.CheckpointDir)
	}
	if retrieved.QueuePath != testConfig.QueuePath {
		t.Errorf("Get().QueuePath = %q; want %q", retrieved.QueuePath, testConfig.QueuePath)
	}
	if retrieved.MetricsAddr != testConfig.MetricsAddr {
		t.Errorf("Get().MetricsAddr = %q; want %q", retrieved.MetricsAddr, testConfig.MetricsAddr)
	}
}

// TestEnvOverlay verifies TAGETES_* variables override file values
func TestEnvOverlay(t *testing.T) {
	t.Setenv("TAGETES_CHECKPOINT_DIR", "/env/checkpoints")
	t.Setenv("TAGETES_S3_BUCKET", "env-bucket")

	c := defaultConfig()
	c.CheckpointDir = "/file/checkpoints"
	if err := applyEnv(&c); err != nil {
		t.Fatalf("applyEnv error = %v", err)
	}

	if c.CheckpointDir != "/env/checkpoints" {
		t.Errorf("CheckpointDir = %q; want env override", c.CheckpointDir)
	}
	if c.Mirror.Bucket != "env-bucket" {
		t.Errorf("Mirror.Bucket = %q; want %q", c.Mirror.Bucket, "env-bucket")
	}
	// Fields without a matching variable keep their value
	if c.CheckpointRepo != "Bingxin/Marigold" {
		t.Errorf("CheckpointRepo = %q; should be untouched", c.CheckpointRepo)
	}
}

// TestIsJSONObject tests the JSON object detection helper
func TestIsJSONObject(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{`{}`, true},
		{`{"key": "value"}`, true},
		{`  {  }  `, true},
		{`[]`, false},
		{`"string"`, false},
		{`123`, false},
		{`null`, false},
		{``, false},
	}

	for _, tt := range tests {
		result := isJSONObject([]byte(tt.input))
		if result != tt.expected {
			t.Errorf("isJSONObject(%q) = %v; want %v", tt.input, result, tt.expected)
		}
	}
}

// TestDeepMergeJSON tests the JSON merge functionality
func TestDeepMergeJSON(t *testing.T) {
	tests := []struct {
		name     string
		dst      string
		src      string
		expected string
	}{
		{
			name:     "Simple merge",
			dst:      `{"a": "1"}`,
			src:      `{"b": "2"}`,
			expected: `{"a":"1","b":"2"}`,
		},
		{
			name:     "Override value",
			dst:      `{"a": "1"}`,
			src:      `{"a": "2"}`,
			expected: `{"a":"2"}`,
		},
		{
			name:     "Nested merge",
			dst:      `{"nested": {"a": "1"}}`,
			src:      `{"nested": {"b": "2"}}`,
			expected: `{"nested":{"a":"1","b":"2"}}`,
		},
		{
			name:     "Add new nested",
			dst:      `{"a": "1"}`,
			src:      `{"nested": {"b": "2"}}`,
			expected: `{"a":"1","nested":{"b":"2"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst map[string]json.RawMessage
			var src map[string]json.RawMessage

			json.Unmarshal([]byte(tt.dst), &dst)
			json.Unmarshal([]byte(tt.src), &src)

			deepMergeJSON(dst, src)

			result, _ := json.Marshal(dst)

			// Parse both for comparison (order-independent)
			var resultMap, expectedMap map[string]interface{}
			json.Unmarshal(result, &resultMap)
			json.Unmarshal([]byte(tt.expected), &expectedMap)

			if !mapsEqual(resultMap, expectedMap) {
				t.Errorf("deepMergeJSON result = %s; want %s", result, tt.expected)
			}
		})
	}
}

// mapsEqual compares two maps recursively
func mapsEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if !valuesEqual(v, bv) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok {
			return false
		}
		return mapsEqual(av, bv)
	default:
		return a == b
	}
}

// TestConfigJSONMarshal verifies Config can be marshaled to JSON
func TestConfigJSONMarshal(t *testing.T) {
	cfg := defaultConfig()
	cfg.QueuePath = "/test/jobs.db"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("json.Marshal error = %v", err)
	}

	// Verify it's valid JSON
	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Result is not valid JSON: %v", err)
	}

	// Check expected keys exist
	expectedKeys := []string{"outputDir", "checkpointDir", "checkpointRepo", "huggingfaceBaseUrl", "ortLibraryPath", "queuePath", "metricsAddr", "logLevel", "mirror"}
	for _, key := range expectedKeys {
		if _, ok := parsed[key]; !ok {
			t.Errorf("Expected key %q not found in JSON output", key)
		}
	}
}

// TestConfigJSONUnmarshal verifies Config can be unmarshaled from JSON
func TestConfigJSONUnmarshal(t *testing.T) {
	jsonData := `{
		"outputDir": "/test/output",
		"checkpointDir": "/test/checkpoints",
		"checkpointRepo": "example/Depth",
		"queuePath": "/test/jobs.db",
		"mirror": {
			"bucket": "test-bucket",
			"key": "checkpoints/depth.zip",
			"region": "us-east-1"
		}
	}`

	var cfg Config
	if err := json.Unmarshal([]byte(jsonData), &cfg); err != nil {
		t.Fatalf("json.Unmarshal error = %v", err)
	}

	if cfg.OutputDir != "/test/output" {
		t.Errorf("OutputDir = %q; want %q", cfg.OutputDir, "/test/output")
	}
	if cfg.CheckpointRepo != "example/Depth" {
		t.Errorf("CheckpointRepo = %q; want %q", cfg.CheckpointRepo, "example/Depth")
	}
	if cfg.Mirror.Bucket != "test-bucket" {
		t.Errorf("Mirror.Bucket = %q; want %q", cfg.Mirror.Bucket, "test-bucket")
	}
	if cfg.Mirror.Region != "us-east-1" {
		t.Errorf("Mirror.Region = %q; want %q", cfg.Mirror.Region, "us-east-1")
	}
}

// TestConfigConcurrency tests concurrent access to Get/Set
func TestConfigConcurrency(t *testing.T) {
	// Save original and restore after test
	original := Get()
	defer Set(original)

	done := make(chan bool)

	// Writer goroutine
	go func() {
		for i := 0; i < 100; i++ {
			Set(Config{QueuePath: "/path"})
		}
		done <- true
	}()

	// Reader goroutine
	go func() {
		for i := 0; i < 100; i++ {
			_ = Get()
		}
		done <- true
	}()

	// Wait for both to complete
	<-done
	<-done
}
