package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/stickersmith/internal/faceswap"
	"github.com/user/stickersmith/internal/imaging"
	"github.com/user/stickersmith/internal/types"
)

// ErrRunAborted reports that a template failed while the run was
// configured to stop on the first hard failure.
var ErrRunAborted = errors.New("run aborted on first failure")

var errNoRenderer = errors.New("no swap backend configured")

// Renderer produces the swapped image for one template. Implementations
// must be safe for concurrent use.
type Renderer interface {
	Generate(ctx context.Context, sourceURL, targetURL string) ([]byte, error)
}

// Synthesizer renders a local stand-in when the remote renderer fails.
type Synthesizer interface {
	Synthesize(tpl *types.Template, img *imaging.Image) ([]byte, error)
}

// Options configure an Orchestrator. Zero values fall back to defaults.
type Options struct {
	BatchSize       int
	TemplateTimeout time.Duration
	ContinueOnError bool
	ProgressStep    int
}

// Orchestrator fans the user's photo out across templates: sequential
// batches, each batch rendered concurrently, one outcome per template.
type Orchestrator struct {
	renderer        Renderer    // nil when no swap backend is configured
	synth           Synthesizer // nil when fallback is disabled
	batchSize       int
	templateTimeout time.Duration
	continueOnError bool
	progressStep    int
}

// NewOrchestrator creates an Orchestrator. Either renderer or synth may
// be nil; with both nil every template fails with a configuration error.
func NewOrchestrator(renderer Renderer, synth Synthesizer, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 3
	}
	if opts.TemplateTimeout <= 0 {
		opts.TemplateTimeout = 2 * time.Minute
	}
	if opts.ProgressStep <= 0 || opts.ProgressStep > 100 {
		opts.ProgressStep = 25
	}
	return &Orchestrator{
		renderer:        renderer,
		synth:           synth,
		batchSize:       opts.BatchSize,
		templateTimeout: opts.TemplateTimeout,
		continueOnError: opts.ContinueOnError,
		progressStep:    opts.ProgressStep,
	}
}

// Run renders every template against the uploaded source image and
// returns one outcome per template, preserving input order. progress
// may be nil. When stop-on-failure is configured the returned outcomes
// cover only the batches that ran.
func (o *Orchestrator) Run(ctx context.Context, templates []types.Template, srcURL string, img *imaging.Image, progress ProgressFunc) ([]types.TemplateOutcome, error) {
	outcomes := make([]types.TemplateOutcome, len(templates))
	total := len(templates)
	lastMilestone := 0

	for start := 0; start < total; start += o.batchSize {
		end := min(start+o.batchSize, total)

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			tpl := templates[i]
			g.Go(func() error {
				outcomes[i] = o.renderOne(gctx, &tpl, srcURL, img)
				if outcomes[i].Status == types.OutcomeFailed && !o.continueOnError {
					return ErrRunAborted
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return outcomes, err
		}
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		if progress != nil {
			done := end
			percent := done * 100 / total
			if milestone := percent / o.progressStep; milestone > lastMilestone {
				lastMilestone = milestone
				progress(percent, done, total)
			}
		}
	}

	return outcomes, nil
}

// renderOne runs the remote swap for a single template and absorbs
// failures into the fallback synthesizer when one is configured. The
// outcome keeps the error kind of any absorbed failure.
func (o *Orchestrator) renderOne(ctx context.Context, tpl *types.Template, srcURL string, img *imaging.Image) types.TemplateOutcome {
	outcome := types.TemplateOutcome{TemplateID: tpl.ID, Emoji: tpl.EmojiGlyph}

	data, err := o.render(ctx, tpl, srcURL)
	if err == nil {
		outcome.Status = types.OutcomeSuccess
		outcome.Output = data
		return outcome
	}

	outcome.ErrorKind = classifyRenderError(err)
	slog.Warn("template render failed",
		"template", tpl.ID,
		"kind", outcome.ErrorKind,
		"error", err)

	if o.synth != nil {
		if stamped, serr := o.synth.Synthesize(tpl, img); serr == nil && len(stamped) > 0 {
			outcome.Status = types.OutcomeSuccess
			outcome.Output = stamped
			return outcome
		}
	}

	outcome.Status = types.OutcomeFailed
	return outcome
}

func (o *Orchestrator) render(ctx context.Context, tpl *types.Template, srcURL string) ([]byte, error) {
	if o.renderer == nil || srcURL == "" {
		return nil, errNoRenderer
	}
	tctx, cancel := context.WithTimeout(ctx, o.templateTimeout)
	defer cancel()
	return o.renderer.Generate(tctx, srcURL, tpl.SourceImageLocator)
}

func classifyRenderError(err error) types.ErrorKind {
	switch {
	case errors.Is(err, faceswap.ErrFaceDetection):
		return types.ErrKindFaceDetection
	case errors.Is(err, faceswap.ErrTaskTimeout), errors.Is(err, context.DeadlineExceeded):
		return types.ErrKindTaskTimeout
	case errors.Is(err, faceswap.ErrTaskFailed):
		return types.ErrKindTaskFailed
	case errors.Is(err, errNoRenderer):
		return types.ErrKindConfiguration
	default:
		return types.ErrKindNetwork
	}
}

// AllFaceDetection reports whether the run produced no successes and
// every failure was a face-detection one, meaning the photo itself is
// the likely problem.
func AllFaceDetection(outcomes []types.TemplateOutcome) bool {
	if len(outcomes) == 0 {
		return false
	}
	for _, o := range outcomes {
		if o.Status == types.OutcomeSuccess {
			return false
		}
		if o.ErrorKind != types.ErrKindFaceDetection {
			return false
		}
	}
	return true
}
