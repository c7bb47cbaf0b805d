// internal/recorder/failopen.go
package recorder

import (
	"context"
	"log/slog"

	"github.com/user/stickersmith/internal/types"
)

// FailOpen wraps a Recorder so accounting outages never block a user:
// limit checks degrade to allowed, and write failures are logged and
// swallowed.
type FailOpen struct {
	inner types.Recorder
}

// NewFailOpen wraps the given recorder.
func NewFailOpen(inner types.Recorder) *FailOpen {
	return &FailOpen{inner: inner}
}

func (f *FailOpen) CheckDailyLimit(ctx context.Context, userID int64) (types.Decision, error) {
	decision, err := f.inner.CheckDailyLimit(ctx, userID)
	if err != nil {
		slog.Warn("usage limit check failed, allowing", "user_id", userID, "error", err)
		return types.Decision{Allowed: true, Reason: "usage accounting unavailable"}, nil
	}
	return decision, nil
}

func (f *FailOpen) RecordGeneration(ctx context.Context, userID int64) error {
	if err := f.inner.RecordGeneration(ctx, userID); err != nil {
		slog.Warn("usage record failed", "user_id", userID, "error", err)
	}
	return nil
}

func (f *FailOpen) LogEvent(ctx context.Context, userID int64, stage string, metadata map[string]any) error {
	if err := f.inner.LogEvent(ctx, userID, stage, metadata); err != nil {
		slog.Warn("usage event write failed", "user_id", userID, "stage", stage, "error", err)
	}
	return nil
}
