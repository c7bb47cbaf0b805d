package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/stickersmith/internal/config"
	"github.com/user/stickersmith/internal/recorder"
	"github.com/user/stickersmith/internal/types"
)

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageShowCmd)

	usageShowCmd.Flags().Int("limit", 20, "number of events to show")
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect usage accounting",
}

// tailer is the read side both usage backends share.
type tailer interface {
	CheckDailyLimit(ctx context.Context, userID int64) (types.Decision, error)
	Tail(ctx context.Context, userID int64, limit int) ([]*types.UsageEvent, error)
}

func usageBackend(ctx context.Context, cfg *config.Config) (tailer, error) {
	switch cfg.Limits.Backend {
	case "", "file":
		return recorder.NewFileRecorder(cfg.DataDir, cfg.Limits.Daily), nil
	case "redis":
		r := recorder.NewRedisRecorder(cfg.Limits.RedisAddr, cfg.Limits.RedisPassword, cfg.Limits.RedisDB, cfg.Limits.Daily)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := r.Ping(pingCtx); err != nil {
			return nil, fmt.Errorf("limits backend redis: %w", err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown limits backend %q (want file or redis)", cfg.Limits.Backend)
	}
}

var usageShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show a user's limit state and recent events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", args[0], err)
		}

		ctx := context.Background()
		rec, err := usageBackend(ctx, cfg)
		if err != nil {
			return err
		}

		decision, err := rec.CheckDailyLimit(ctx, userID)
		if err != nil {
			return fmt.Errorf("check daily limit: %w", err)
		}
		if decision.Allowed {
			fmt.Fprintf(os.Stdout, "User %d may start a generation today.\n", userID)
		} else {
			fmt.Fprintf(os.Stdout, "User %d is blocked: %s.\n", userID, decision.Reason)
		}

		limit, _ := cmd.Flags().GetInt("limit")
		events, err := rec.Tail(ctx, userID, limit)
		if err != nil {
			return fmt.Errorf("read events: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("No usage events recorded.")
			return nil
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "AT\tSTAGE\tRUN")
		for _, e := range events {
			runID, _ := e.Metadata["run_id"].(string)
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				e.At.Format("2006-01-02 15:04:05"),
				e.Stage,
				runID,
			)
		}
		return w.Flush()
	},
}
