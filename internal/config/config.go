package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	TemplatesPath string `json:"templates_path"`
	Telegram      struct {
		Token string `json:"token"`
		Debug bool   `json:"debug"`
	} `json:"telegram"`
	FaceSwap struct {
		BaseURL             string `json:"base_url"`
		APIKey              string `json:"api_key"`
		PollIntervalSeconds int    `json:"poll_interval_seconds"`
		MaxWaitSeconds      int    `json:"max_wait_seconds"`
		SubmitMaxAttempts   int    `json:"submit_max_attempts"`
	} `json:"faceswap"`
	Pipeline struct {
		BatchSize              int  `json:"batch_size"`
		TemplateTimeoutSeconds int  `json:"template_timeout_seconds"`
		RunTimeoutSeconds      int  `json:"run_timeout_seconds"`
		MaxConcurrentRuns      int  `json:"max_concurrent_runs"`
		ContinueOnError        bool `json:"continue_on_error"`
		FallbackEnabled        bool `json:"fallback_enabled"`
		ProgressStepPercent    int  `json:"progress_step_percent"`
	} `json:"pipeline"`
	Image struct {
		MaxDownloadBytes int64   `json:"max_download_bytes"`
		MaxSidePx        int     `json:"max_side_px"`
		MinSidePx        int     `json:"min_side_px"`
		MaxAspectRatio   float64 `json:"max_aspect_ratio"`
		TargetBytes      int     `json:"target_bytes"`
	} `json:"image"`
	Pack struct {
		TitleFormat   string `json:"title_format"`
		MinSuccess    int    `json:"min_success"`
		MaxAttempts   int    `json:"max_attempts"`
		AppendDelayMs int    `json:"append_delay_ms"`
		RetryDelayMs  int    `json:"retry_delay_ms"`
	} `json:"pack"`
	Limits struct {
		Daily         int    `json:"daily"`
		Backend       string `json:"backend"`
		RedisAddr     string `json:"redis_addr"`
		RedisPassword string `json:"redis_password"`
		RedisDB       int    `json:"redis_db"`
	} `json:"limits"`
	Sweeper struct {
		Schedule             string `json:"schedule"`
		SessionMaxAgeMinutes int    `json:"session_max_age_minutes"`
	} `json:"sweeper"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".stickersmith"),
		LogLevel: "info",
	}
	cfg.FaceSwap.PollIntervalSeconds = 5
	cfg.FaceSwap.MaxWaitSeconds = 300
	cfg.FaceSwap.SubmitMaxAttempts = 3
	cfg.Pipeline.BatchSize = 3
	cfg.Pipeline.TemplateTimeoutSeconds = 120
	cfg.Pipeline.RunTimeoutSeconds = 900
	cfg.Pipeline.MaxConcurrentRuns = 4
	cfg.Pipeline.ContinueOnError = true
	cfg.Pipeline.FallbackEnabled = true
	cfg.Pipeline.ProgressStepPercent = 25
	cfg.Image.MaxDownloadBytes = 10 * 1024 * 1024
	cfg.Image.MaxSidePx = 512
	cfg.Image.MinSidePx = 128
	cfg.Image.MaxAspectRatio = 3.0
	cfg.Image.TargetBytes = 512 * 1024
	cfg.Pack.TitleFormat = "%s's stickers"
	cfg.Pack.MinSuccess = 5
	cfg.Pack.MaxAttempts = 2
	cfg.Pack.AppendDelayMs = 300
	cfg.Pack.RetryDelayMs = 600
	cfg.Limits.Daily = 3
	cfg.Limits.Backend = "file"
	cfg.Limits.RedisAddr = "localhost:6379"
	cfg.Sweeper.Schedule = "*/5 * * * *"
	cfg.Sweeper.SessionMaxAgeMinutes = 30

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}
	if apiKey := os.Getenv("FACESWAP_API_KEY"); apiKey != "" {
		cfg.FaceSwap.APIKey = apiKey
	}
	if baseURL := os.Getenv("FACESWAP_BASE_URL"); baseURL != "" {
		cfg.FaceSwap.BaseURL = baseURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Limits.RedisAddr = addr
	}
	if dataDir := os.Getenv("STICKERSMITH_DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if level := os.Getenv("STICKERSMITH_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if cfg.TemplatesPath == "" {
		cfg.TemplatesPath = filepath.Join(cfg.DataDir, "templates.json")
	}

	return cfg, nil
}

// Save writes the config to path atomically (tmp file + rename).
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
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
