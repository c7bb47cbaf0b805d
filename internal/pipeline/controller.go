package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/stickersmith/internal/catalog"
	"github.com/user/stickersmith/internal/imaging"
	"github.com/user/stickersmith/internal/pack"
	"github.com/user/stickersmith/internal/session"
	"github.com/user/stickersmith/internal/types"
)

// User-facing replies. Kept in one place so the adapter tests can
// assert on them without chasing format strings through the flow.
const (
	msgBusy          = "I'm still working on your previous pack. Hang tight!"
	msgOverloaded    = "I'm at capacity right now. Please try again in a few minutes."
	msgProcessing    = "Got your photo! Rendering your stickers…"
	msgDownloadFail  = "I couldn't download that photo. Please send it again."
	msgGenerateFail  = "Something went wrong while rendering your stickers. Please try again later."
	msgPublishFail   = "Your stickers rendered, but publishing the pack failed. Please try again later."
	msgNoFace        = "I couldn't find a face in that photo. Please send a clear, well-lit photo of your face looking at the camera."
	msgTooFewRenders = "Too few stickers came out usable to publish a pack. Please try a different photo."
)

// Deps bundles the collaborators a Controller drives.
type Deps struct {
	Sessions     *session.Store
	Messenger    types.Messenger
	Recorder     types.Recorder
	Normalizer   *imaging.Normalizer
	Orchestrator *Orchestrator
	Assembler    *pack.Assembler
	Catalog      *catalog.Catalog
}

// ControllerOptions configure run-level behavior. Zero values fall
// back to defaults.
type ControllerOptions struct {
	RunTimeout      time.Duration
	TitleFormat     string
	MaxPackAttempts int
	MaxConcurrent   int64
}

// Controller owns one photo-to-pack run: admission, normalization,
// fan-out, assembly with recreation, and every user-facing reply along
// the way.
type Controller struct {
	deps            Deps
	runTimeout      time.Duration
	titleFormat     string
	maxPackAttempts int
	sem             *semaphore.Weighted
}

// NewController creates a Controller.
func NewController(deps Deps, opts ControllerOptions) *Controller {
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 15 * time.Minute
	}
	if opts.TitleFormat == "" {
		opts.TitleFormat = "%s's stickers"
	}
	if opts.MaxPackAttempts <= 0 {
		opts.MaxPackAttempts = 2
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	return &Controller{
		deps:            deps,
		runTimeout:      opts.RunTimeout,
		titleFormat:     opts.TitleFormat,
		maxPackAttempts: opts.MaxPackAttempts,
		sem:             semaphore.NewWeighted(opts.MaxConcurrent),
	}
}

// HandlePhoto runs the full pipeline for one incoming photo. All user
// communication happens inside; the returned error is for the caller's
// log only.
func (c *Controller) HandlePhoto(ctx context.Context, chatID, userID int64, firstName, photoRef string) error {
	if !c.sem.TryAcquire(1) {
		c.send(chatID, msgOverloaded)
		return nil
	}
	defer c.sem.Release(1)

	decision, _ := c.deps.Recorder.CheckDailyLimit(ctx, userID)
	if !decision.Allowed {
		c.send(chatID, "You've hit your daily limit: "+decision.Reason+". Come back tomorrow!")
		return nil
	}

	sess, err := c.deps.Sessions.Begin(chatID, userID)
	if err != nil {
		if errors.Is(err, session.ErrBusy) {
			c.send(chatID, msgBusy)
			return nil
		}
		return fmt.Errorf("begin session: %w", err)
	}

	runID := string(types.NewRunID())
	c.deps.Recorder.LogEvent(ctx, userID, "photo_received", map[string]any{"run_id": runID, "chat_id": chatID})
	slog.Info("generation started", "run_id", runID, "chat_id", chatID, "user_id", userID)

	c.deps.Messenger.SendChatAction(chatID, "upload_photo")
	statusMsgID, sendErr := c.deps.Messenger.SendMessage(chatID, msgProcessing)
	if sendErr != nil {
		slog.Warn("status message failed", "run_id", runID, "error", sendErr)
		statusMsgID = 0
	}

	runCtx, cancel := context.WithTimeout(ctx, c.runTimeout)
	defer cancel()

	result, err := c.run(runCtx, runID, chatID, userID, firstName, photoRef, statusMsgID)
	if err != nil {
		c.deps.Sessions.Finish(chatID, types.SessionError)
		return err
	}

	c.deps.Sessions.Finish(chatID, types.SessionCompleted)
	c.deps.Recorder.RecordGeneration(ctx, userID)
	c.deps.Recorder.LogEvent(ctx, userID, "pack_published", map[string]any{
		"run_id":    runID,
		"pack_name": result.Assembly.PackName,
		"requested": result.Requested,
		"actual":    result.Actual,
		"failed":    result.Failed,
		"took_ms":   time.Since(sess.StartedAt).Milliseconds(),
	})
	slog.Info("pack published",
		"run_id", runID,
		"pack", result.Assembly.PackName,
		"requested", result.Requested,
		"actual", result.Actual,
		"took", time.Since(sess.StartedAt).Round(time.Second))

	final := fmt.Sprintf("Your pack is ready: %s (%d stickers)", result.ShareLink, result.Actual)
	c.finish(chatID, statusMsgID, final)
	return nil
}

// run executes normalize, fan-out and assembly. Any returned error has
// already been reported to the user.
func (c *Controller) run(ctx context.Context, runID string, chatID, userID int64, firstName, photoRef string, statusMsgID int) (*pack.Result, error) {
	img, err := c.deps.Normalizer.Normalize(ctx, photoRef)
	if err != nil {
		var verr *imaging.ValidationError
		switch {
		case errors.As(err, &verr):
			c.deps.Recorder.LogEvent(ctx, userID, "photo_rejected", map[string]any{
				"run_id": runID,
				"kind":   string(types.ErrKindValidation),
				"detail": verr.Error(),
			})
			c.finish(chatID, statusMsgID, "That photo won't work: "+verr.Error())
			return nil, fmt.Errorf("photo rejected: %w", err)
		case errors.Is(err, imaging.ErrDownload):
			c.deps.Recorder.LogEvent(ctx, userID, "photo_rejected", map[string]any{
				"run_id": runID,
				"kind":   string(types.ErrKindDownload),
			})
			c.finish(chatID, statusMsgID, msgDownloadFail)
			return nil, fmt.Errorf("photo download: %w", err)
		default:
			c.finish(chatID, statusMsgID, msgGenerateFail)
			return nil, fmt.Errorf("normalize: %w", err)
		}
	}

	// One upload serves every template's swap job.
	srcURL := c.uploadSource(ctx, runID, userID, img)

	progress := func(percent, done, total int) {
		if statusMsgID == 0 {
			return
		}
		text := fmt.Sprintf("Rendering your stickers… %d%% (%d of %d)", percent, done, total)
		if err := c.deps.Messenger.EditMessage(chatID, statusMsgID, text); err != nil {
			slog.Debug("progress edit failed", "run_id", runID, "error", err)
		}
	}

	templates := c.deps.Catalog.Templates()
	c.deps.Recorder.LogEvent(ctx, userID, "generation_started", map[string]any{
		"run_id":    runID,
		"templates": len(templates),
	})

	outcomes, runErr := c.deps.Orchestrator.Run(ctx, templates, srcURL, img, progress)
	if runErr != nil {
		c.deps.Recorder.LogEvent(ctx, userID, "generation_failed", map[string]any{
			"run_id": runID,
			"reason": failReason(runErr),
		})
		c.finish(chatID, statusMsgID, msgGenerateFail)
		return nil, fmt.Errorf("run %s: %w", runID, runErr)
	}

	title := fmt.Sprintf(c.titleFormat, firstName)
	result, err := c.assemble(ctx, userID, title, outcomes)
	if err != nil {
		c.deps.Recorder.LogEvent(ctx, userID, "generation_failed", map[string]any{
			"run_id": runID,
			"reason": failReason(err),
		})
		if errors.Is(err, pack.ErrInsufficientOutput) {
			if AllFaceDetection(outcomes) {
				c.finish(chatID, statusMsgID, msgNoFace)
				return nil, fmt.Errorf("run %s: %w", runID, err)
			}
			c.finish(chatID, statusMsgID, msgTooFewRenders)
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
		c.finish(chatID, statusMsgID, msgPublishFail)
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	return result, nil
}

// assemble publishes the outcomes, recreating under a fresh name when
// the platform declares the container invalid, up to the attempt bound.
func (c *Controller) assemble(ctx context.Context, userID int64, title string, outcomes []types.TemplateOutcome) (*pack.Result, error) {
	var result *pack.Result
	var err error
	for attempt := 1; attempt <= c.maxPackAttempts; attempt++ {
		result, err = c.deps.Assembler.Assemble(ctx, userID, title, outcomes, attempt)
		if err == nil || !errors.Is(err, pack.ErrContainerInvalid) {
			return result, err
		}
		slog.Warn("pack container invalid, recreating", "user_id", userID, "attempt", attempt, "error", err)
	}
	return nil, err
}

// uploadSource pushes the normalized photo to the platform and returns
// its public URL. An empty return degrades the run to fallback-only.
func (c *Controller) uploadSource(ctx context.Context, runID string, userID int64, img *imaging.Image) string {
	fileRef, err := c.deps.Messenger.UploadFile(ctx, userID, img.Data)
	if err != nil {
		slog.Warn("source upload failed, falling back to local rendering", "run_id", runID, "error", err)
		return ""
	}
	url, err := c.deps.Messenger.FileURL(fileRef)
	if err != nil {
		slog.Warn("source url lookup failed, falling back to local rendering", "run_id", runID, "error", err)
		return ""
	}
	return url
}

// failReason labels a run failure for the audit trail.
func failReason(err error) string {
	switch {
	case errors.Is(err, pack.ErrInsufficientOutput):
		return "insufficient_output"
	case errors.Is(err, pack.ErrContainerInvalid):
		return "container_invalid"
	case errors.Is(err, ErrRunAborted):
		return "run_aborted"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// send posts a plain reply, logging instead of failing.
func (c *Controller) send(chatID int64, text string) {
	if _, err := c.deps.Messenger.SendMessage(chatID, text); err != nil {
		slog.Warn("reply failed", "chat_id", chatID, "error", err)
	}
}

// finish replaces the status message with the final text, or sends a
// fresh message when there is no status message to edit.
func (c *Controller) finish(chatID int64, statusMsgID int, text string) {
	if statusMsgID != 0 {
		if err := c.deps.Messenger.EditMessage(chatID, statusMsgID, text); err == nil {
			return
		}
	}
	c.send(chatID, text)
}
