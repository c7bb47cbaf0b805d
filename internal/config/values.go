package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ToMap converts the config to a nested map via its JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return nested, nil
}

// ListValues returns the config as a flat dot-keyed map. When mask is
// true, secret values are masked for display.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	nested, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(nested)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue returns the value for a dot-separated key from the config
// file at path. The file is created with defaults if missing. Unknown
// keys set by hand in the file are still readable; the raw file is the
// source of truth here, not the Config struct.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	flat, err := readFlat(path)
	if err != nil {
		return nil, err
	}
	val, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return val, nil
}

// SetValue sets a single dot-separated key in the config file at path
// and writes the file back atomically. The value string is coerced to a
// JSON scalar when it parses as one ("true", "16", "0.3"), otherwise it
// is stored as a string. Keys not present in the Config struct are
// preserved as-is.
func SetValue(path, key, value string) error {
	flat, err := readFlat(path)
	if err != nil {
		return err
	}
	flat[key] = coerce(value)

	nested := Unflatten(flat)
	data, err := json.MarshalIndent(nested, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func readFlat(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return Flatten(nested), nil
}

// coerce converts a CLI string to a JSON scalar when it parses as one.
func coerce(value string) any {
	var v any
	if err := json.Unmarshal([]byte(value), &v); err == nil {
		switch v.(type) {
		case bool, float64:
			return v
		}
	}
	return value
}
