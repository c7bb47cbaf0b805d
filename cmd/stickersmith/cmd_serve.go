package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/stickersmith/internal/catalog"
	"github.com/user/stickersmith/internal/config"
	"github.com/user/stickersmith/internal/faceswap"
	"github.com/user/stickersmith/internal/imaging"
	"github.com/user/stickersmith/internal/pack"
	"github.com/user/stickersmith/internal/pipeline"
	"github.com/user/stickersmith/internal/recorder"
	"github.com/user/stickersmith/internal/scheduler"
	"github.com/user/stickersmith/internal/session"
	"github.com/user/stickersmith/internal/telegram"
	"github.com/user/stickersmith/internal/types"
	"github.com/user/stickersmith/pkg/swapapi"
	"github.com/user/stickersmith/pkg/swapapi/fusion"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stickersmith daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "stickersmith.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

// newRecorder picks the usage backend from config. Both backends are
// wrapped fail-open so accounting outages never block users.
func newRecorder(cfg *config.Config) (types.Recorder, error) {
	switch cfg.Limits.Backend {
	case "", "file":
		return recorder.NewFailOpen(recorder.NewFileRecorder(cfg.DataDir, cfg.Limits.Daily)), nil
	case "redis":
		r := recorder.NewRedisRecorder(cfg.Limits.RedisAddr, cfg.Limits.RedisPassword, cfg.Limits.RedisDB, cfg.Limits.Daily)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Ping(pingCtx); err != nil {
			slog.Warn("redis unreachable, usage accounting degrades fail-open", "addr", cfg.Limits.RedisAddr, "error", err)
		}
		return recorder.NewFailOpen(r), nil
	default:
		return nil, fmt.Errorf("unknown limits backend %q (want file or redis)", cfg.Limits.Backend)
	}
}

// newRenderer builds the remote swap client, or nil when no backend is
// configured and every sticker will come from the local fallback.
func newRenderer(cfg *config.Config) pipeline.Renderer {
	if cfg.FaceSwap.BaseURL == "" || cfg.FaceSwap.APIKey == "" {
		slog.Warn("swap backend disabled (no base URL or API key), rendering fallback stickers only")
		return nil
	}

	api := fusion.New(&swapapi.Config{
		BaseURL: cfg.FaceSwap.BaseURL,
		APIKey:  cfg.FaceSwap.APIKey,
	})

	retry := faceswap.DefaultRetryPolicy()
	if cfg.FaceSwap.SubmitMaxAttempts > 0 {
		retry.MaxAttempts = cfg.FaceSwap.SubmitMaxAttempts
	}

	return faceswap.NewClient(api, faceswap.Options{
		PollInterval: time.Duration(cfg.FaceSwap.PollIntervalSeconds) * time.Second,
		MaxWait:      time.Duration(cfg.FaceSwap.MaxWaitSeconds) * time.Second,
		Retry:        retry,
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is not configured (run `stickersmith setup`)")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Write PID file
	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Template catalog; refuses to start on a broken catalog
	cat, err := catalog.Load(cfg.TemplatesPath)
	if err != nil {
		return err
	}

	// Usage recorder
	rec, err := newRecorder(cfg)
	if err != nil {
		return err
	}

	// Telegram gateway
	gw, err := telegram.NewGateway(cfg.Telegram.Token, telegram.Options{
		MaxFileBytes: cfg.Image.MaxDownloadBytes,
		Debug:        cfg.Telegram.Debug,
	})
	if err != nil {
		return fmt.Errorf("create telegram gateway: %w", err)
	}

	// Rendering backends
	renderer := newRenderer(cfg)
	var synth pipeline.Synthesizer
	if cfg.Pipeline.FallbackEnabled {
		synth = imaging.NewSynthesizer()
	}
	if renderer == nil && synth == nil {
		return fmt.Errorf("no rendering backend: configure faceswap or enable the fallback")
	}

	// Pipeline
	sessions := session.NewStore()
	normalizer := imaging.NewNormalizer(gw, imaging.Options{
		MaxDownloadBytes: cfg.Image.MaxDownloadBytes,
		MinSidePx:        cfg.Image.MinSidePx,
		MaxSidePx:        cfg.Image.MaxSidePx,
		MaxAspectRatio:   cfg.Image.MaxAspectRatio,
		TargetBytes:      cfg.Image.TargetBytes,
	})
	orchestrator := pipeline.NewOrchestrator(renderer, synth, pipeline.Options{
		BatchSize:       cfg.Pipeline.BatchSize,
		TemplateTimeout: time.Duration(cfg.Pipeline.TemplateTimeoutSeconds) * time.Second,
		ContinueOnError: cfg.Pipeline.ContinueOnError,
		ProgressStep:    cfg.Pipeline.ProgressStepPercent,
	})
	assembler := pack.NewAssembler(gw, pack.NewNamer(gw.BotUsername()), pack.Options{
		MinSuccess:  cfg.Pack.MinSuccess,
		AppendDelay: time.Duration(cfg.Pack.AppendDelayMs) * time.Millisecond,
		RetryDelay:  time.Duration(cfg.Pack.RetryDelayMs) * time.Millisecond,
	})
	controller := pipeline.NewController(pipeline.Deps{
		Sessions:     sessions,
		Messenger:    gw,
		Recorder:     rec,
		Normalizer:   normalizer,
		Orchestrator: orchestrator,
		Assembler:    assembler,
		Catalog:      cat,
	}, pipeline.ControllerOptions{
		RunTimeout:      time.Duration(cfg.Pipeline.RunTimeoutSeconds) * time.Second,
		TitleFormat:     cfg.Pack.TitleFormat,
		MaxPackAttempts: cfg.Pack.MaxAttempts,
		MaxConcurrent:   int64(cfg.Pipeline.MaxConcurrentRuns),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telegram adapter
	adapter := telegram.NewAdapter(gw, controller, sessions, rec, cat)
	go adapter.Start(ctx)

	// Session sweeper
	sched := scheduler.New()
	maxAge := time.Duration(cfg.Sweeper.SessionMaxAgeMinutes) * time.Minute
	if err := sched.Add("session-sweep", cfg.Sweeper.Schedule, func() {
		if n := sessions.ReapStale(maxAge); n > 0 {
			slog.Info("reaped stale sessions", "count", n)
		}
	}); err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	slog.Info("stickersmith started",
		"bot", gw.BotUsername(),
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"templates", cat.Len(),
		"swap_backend", renderer != nil,
		"fallback", synth != nil,
		"max_concurrent", cfg.Pipeline.MaxConcurrentRuns,
		"daily_limit", cfg.Limits.Daily,
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Clean up PID file before re-exec
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				// Re-write PID file since we failed to re-exec
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
