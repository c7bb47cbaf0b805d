package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "config.json")
}

func writeTestConfig(t *testing.T, path string, cfg *Config) {
	t.Helper()
	if err := Save(path, cfg); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

func TestSave_ReloadRoundTrip(t *testing.T) {
	path := tempConfigPath(t)

	original := &Config{
		DataDir:  "/tmp/test-data",
		LogLevel: "debug",
	}
	original.Telegram.Token = "bot-token-456"
	original.FaceSwap.BaseURL = "https://swap.example.com/v1"
	original.FaceSwap.APIKey = "fs-test-round-trip"
	original.FaceSwap.PollIntervalSeconds = 7
	original.Pipeline.BatchSize = 4
	original.Pipeline.ContinueOnError = true
	original.Image.MaxAspectRatio = 2.5
	original.Pack.MinSuccess = 6
	original.Limits.Daily = 5

	// Save
	if err := Save(path, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Verify file exists
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file does not exist after Save: %v", err)
	}

	// Reload
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Compare key fields
	if loaded.DataDir != original.DataDir {
		t.Errorf("DataDir mismatch: %v != %v", loaded.DataDir, original.DataDir)
	}
	if loaded.LogLevel != original.LogLevel {
		t.Errorf("LogLevel mismatch: %v != %v", loaded.LogLevel, original.LogLevel)
	}
	if loaded.Telegram.Token != original.Telegram.Token {
		t.Errorf("Telegram.Token mismatch: %v != %v", loaded.Telegram.Token, original.Telegram.Token)
	}
	if loaded.FaceSwap.BaseURL != original.FaceSwap.BaseURL {
		t.Errorf("FaceSwap.BaseURL mismatch: %v != %v", loaded.FaceSwap.BaseURL, original.FaceSwap.BaseURL)
	}
	if loaded.FaceSwap.APIKey != original.FaceSwap.APIKey {
		t.Errorf("FaceSwap.APIKey mismatch: %v != %v", loaded.FaceSwap.APIKey, original.FaceSwap.APIKey)
	}
	if loaded.FaceSwap.PollIntervalSeconds != original.FaceSwap.PollIntervalSeconds {
		t.Errorf("PollIntervalSeconds mismatch: %v != %v", loaded.FaceSwap.PollIntervalSeconds, original.FaceSwap.PollIntervalSeconds)
	}
	if loaded.Pipeline.BatchSize != original.Pipeline.BatchSize {
		t.Errorf("Pipeline.BatchSize mismatch: %v != %v", loaded.Pipeline.BatchSize, original.Pipeline.BatchSize)
	}
	if loaded.Image.MaxAspectRatio != original.Image.MaxAspectRatio {
		t.Errorf("Image.MaxAspectRatio mismatch: %v != %v", loaded.Image.MaxAspectRatio, original.Image.MaxAspectRatio)
	}
	if loaded.Pack.MinSuccess != original.Pack.MinSuccess {
		t.Errorf("Pack.MinSuccess mismatch: %v != %v", loaded.Pack.MinSuccess, original.Pack.MinSuccess)
	}
	if loaded.Limits.Daily != original.Limits.Daily {
		t.Errorf("Limits.Daily mismatch: %v != %v", loaded.Limits.Daily, original.Limits.Daily)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Pipeline.BatchSize != 3 {
		t.Errorf("expected default batch_size=3, got %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Image.MaxSidePx != 512 {
		t.Errorf("expected default max_side_px=512, got %d", cfg.Image.MaxSidePx)
	}
	if cfg.Pack.MaxAttempts != 2 {
		t.Errorf("expected default pack.max_attempts=2, got %d", cfg.Pack.MaxAttempts)
	}
	if !cfg.Pipeline.ContinueOnError {
		t.Error("expected continue_on_error default true")
	}
	if !cfg.Pipeline.FallbackEnabled {
		t.Error("expected fallback_enabled default true")
	}
	if cfg.TemplatesPath != filepath.Join(cfg.DataDir, "templates.json") {
		t.Errorf("expected templates_path derived from data_dir, got %s", cfg.TemplatesPath)
	}

	// Defaults written to disk on first load
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected defaults written to %s: %v", path, err)
	}
}

func TestSave_AtomicWrite(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Verify no temp file left behind
	tmpPath := path + ".tmp"
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Errorf("temp file should not exist after successful save")
	}

	// Verify the file is valid JSON
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved config: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Errorf("saved file is not valid JSON: %v", err)
	}
}

func TestToMap(t *testing.T) {
	cfg := &Config{
		DataDir:  "/tmp/test",
		LogLevel: "debug",
	}
	cfg.FaceSwap.BaseURL = "https://swap.example.com/v1"
	cfg.Pipeline.BatchSize = 5

	m, err := ToMap(cfg)
	if err != nil {
		t.Fatalf("ToMap failed: %v", err)
	}

	if m["data_dir"] != "/tmp/test" {
		t.Errorf("expected data_dir=/tmp/test, got %v", m["data_dir"])
	}
	if m["log_level"] != "debug" {
		t.Errorf("expected log_level=debug, got %v", m["log_level"])
	}

	fs, ok := m["faceswap"].(map[string]any)
	if !ok {
		t.Fatalf("expected faceswap to be map, got %T", m["faceswap"])
	}
	if fs["base_url"] != "https://swap.example.com/v1" {
		t.Errorf("expected faceswap.base_url, got %v", fs["base_url"])
	}

	pl, ok := m["pipeline"].(map[string]any)
	if !ok {
		t.Fatalf("expected pipeline to be map, got %T", m["pipeline"])
	}
	// JSON numbers are float64
	if pl["batch_size"] != float64(5) {
		t.Errorf("expected pipeline.batch_size=5, got %v", pl["batch_size"])
	}
}

func TestListValues_NoMask(t *testing.T) {
	cfg := &Config{
		LogLevel: "info",
	}
	cfg.Telegram.Token = "bot-token-abcd"
	cfg.FaceSwap.APIKey = "fs-secret-key-1234"

	flat, err := ListValues(cfg, false)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}

	// Secrets should be unmasked
	if flat["telegram.token"] != "bot-token-abcd" {
		t.Errorf("expected unmasked telegram.token, got %v", flat["telegram.token"])
	}
	if flat["faceswap.api_key"] != "fs-secret-key-1234" {
		t.Errorf("expected unmasked faceswap.api_key, got %v", flat["faceswap.api_key"])
	}
	if flat["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", flat["log_level"])
	}
}

func TestListValues_WithMask(t *testing.T) {
	cfg := &Config{
		LogLevel: "info",
	}
	cfg.Telegram.Token = "bot-token-abcd"
	cfg.FaceSwap.APIKey = "fs-secret-key-1234"
	cfg.Limits.RedisPassword = "hunter2-present"

	flat, err := ListValues(cfg, true)
	if err != nil {
		t.Fatalf("ListValues failed: %v", err)
	}

	// Secrets should be masked
	if flat["telegram.token"] != "***abcd" {
		t.Errorf("expected masked telegram.token=***abcd, got %v", flat["telegram.token"])
	}
	if flat["faceswap.api_key"] != "***1234" {
		t.Errorf("expected masked faceswap.api_key=***1234, got %v", flat["faceswap.api_key"])
	}
	if flat["limits.redis_password"] != "***sent" {
		t.Errorf("expected masked limits.redis_password=***sent, got %v", flat["limits.redis_password"])
	}

	// Non-secrets should be unchanged
	if flat["log_level"] != "info" {
		t.Errorf("expected log_level=info, got %v", flat["log_level"])
	}
}

func TestGetValue_ExistingKey(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{
		LogLevel: "debug",
	}
	cfg.Pipeline.BatchSize = 8
	cfg.FaceSwap.BaseURL = "https://swap.example.com/v1"
	writeTestConfig(t, path, cfg)

	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "debug" {
		t.Errorf("expected log_level=debug, got %v", v)
	}

	v, err = GetValue(path, "faceswap.base_url")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "https://swap.example.com/v1" {
		t.Errorf("expected faceswap.base_url, got %v", v)
	}

	v, err = GetValue(path, "pipeline.batch_size")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	// JSON numbers are float64
	if v != float64(8) {
		t.Errorf("expected pipeline.batch_size=8, got %v (%T)", v, v)
	}
}

func TestGetValue_UnknownKey(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	writeTestConfig(t, path, cfg)

	_, err := GetValue(path, "nonexistent.key")
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	expected := "unknown config key: nonexistent.key"
	if err.Error() != expected {
		t.Errorf("expected error %q, got %q", expected, err.Error())
	}
}

func TestSetValue_String(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	cfg.FaceSwap.BaseURL = "https://swap.example.com/v1"
	writeTestConfig(t, path, cfg)

	// Set a string value
	if err := SetValue(path, "log_level", "debug"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	// Verify it was set
	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "debug" {
		t.Errorf("expected log_level=debug after set, got %v", v)
	}

	// Verify other values are preserved
	v, err = GetValue(path, "faceswap.base_url")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "https://swap.example.com/v1" {
		t.Errorf("expected faceswap.base_url preserved, got %v", v)
	}
}

func TestSetValue_Numeric(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{}
	cfg.Pipeline.BatchSize = 2
	writeTestConfig(t, path, cfg)

	// Set a numeric value (JSON parseable)
	if err := SetValue(path, "pipeline.batch_size", "16"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	v, err := GetValue(path, "pipeline.batch_size")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != float64(16) {
		t.Errorf("expected pipeline.batch_size=16, got %v (%T)", v, v)
	}
}

func TestSetValue_Boolean(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	writeTestConfig(t, path, cfg)

	// Set a boolean value (JSON parseable)
	if err := SetValue(path, "pipeline.continue_on_error", "true"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	v, err := GetValue(path, "pipeline.continue_on_error")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != true {
		t.Errorf("expected pipeline.continue_on_error=true, got %v (%T)", v, v)
	}
}

func TestSetValue_Float(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{}
	cfg.Image.MaxAspectRatio = 3.0
	writeTestConfig(t, path, cfg)

	if err := SetValue(path, "image.max_aspect_ratio", "2.5"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	v, err := GetValue(path, "image.max_aspect_ratio")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != 2.5 {
		t.Errorf("expected image.max_aspect_ratio=2.5, got %v (%T)", v, v)
	}
}

func TestSetValue_NewNestedKey(t *testing.T) {
	path := tempConfigPath(t)

	cfg := &Config{LogLevel: "info"}
	writeTestConfig(t, path, cfg)

	// Set a new nested key that doesn't exist in Config struct
	if err := SetValue(path, "custom.setting", "value"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	v, err := GetValue(path, "custom.setting")
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if v != "value" {
		t.Errorf("expected custom.setting=value, got %v", v)
	}
}

func TestSetValue_NonexistentFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist", "config.json")
	err := SetValue(path, "log_level", "debug")
	if err == nil {
		t.Fatal("expected error for nonexistent file, got nil")
	}
}

func TestGetValue_NonexistentFile(t *testing.T) {
	// File doesn't exist yet; Load will create it with defaults.
	path := tempConfigPath(t)

	v, err := GetValue(path, "log_level")
	if err != nil {
		t.Fatalf("GetValue on new config failed: %v", err)
	}
	// Default log_level is "info"
	if v != "info" {
		t.Errorf("expected default log_level=info, got %v", v)
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "config.json")

	cfg := &Config{LogLevel: "warn"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save should create parent directory, got: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file should exist: %v", err)
	}
}
