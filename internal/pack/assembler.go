package pack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/stickersmith/internal/types"
)

// Assembly failures callers branch on.
var (
	// ErrInsufficientOutput means too few rendered images survived to
	// justify a pack. It is returned before any remote call is made.
	ErrInsufficientOutput = errors.New("not enough rendered images for a pack")

	// ErrContainerInvalid means the platform rejected the pack container
	// repeatedly. The caller may recreate under a fresh name.
	ErrContainerInvalid = errors.New("pack container rejected by platform")
)

// The second container-invalid error within one assembly attempt
// abandons the container.
const invalidAbortThreshold = 2

// createAttempts bounds retries of the initial create call.
const createAttempts = 3

// Publisher is the slice of the platform gateway that assembly needs.
// types.Messenger satisfies it.
type Publisher interface {
	CreateCollection(ctx context.Context, ownerID int64, name, title string, first types.PackItem) error
	AppendToCollection(ctx context.Context, ownerID int64, name string, item types.PackItem) error
	GetCollection(ctx context.Context, name string) (*types.CollectionInfo, error)
	ShareableLink(name string) string
}

// Options configure an Assembler. Zero values fall back to defaults.
type Options struct {
	MinSuccess  int
	AppendDelay time.Duration
	RetryDelay  time.Duration
	Classifier  InvalidClassifier
}

// Assembler publishes rendered outcomes as a sticker pack: create the
// container with the first item, append the rest sequentially, retry
// stragglers through the strategy ladder, then verify the final count.
type Assembler struct {
	msgr        Publisher
	namer       *Namer
	minSuccess  int
	appendDelay time.Duration
	retryDelay  time.Duration
	isInvalid   InvalidClassifier
}

// NewAssembler creates an Assembler over the given publisher.
func NewAssembler(msgr Publisher, namer *Namer, opts Options) *Assembler {
	if opts.MinSuccess <= 0 {
		opts.MinSuccess = 1
	}
	if opts.AppendDelay <= 0 {
		opts.AppendDelay = 300 * time.Millisecond
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 600 * time.Millisecond
	}
	if opts.Classifier == nil {
		opts.Classifier = DefaultInvalidClassifier
	}
	return &Assembler{
		msgr:        msgr,
		namer:       namer,
		minSuccess:  opts.MinSuccess,
		appendDelay: opts.AppendDelay,
		retryDelay:  opts.RetryDelay,
		isInvalid:   opts.Classifier,
	}
}

// Result summarizes one published pack.
type Result struct {
	Assembly  types.PackAssembly
	Title     string
	ShareLink string
	Requested int // rendered items offered for publishing
	Actual    int // items the platform reports after assembly
	Failed    int // items abandoned after the retry ladder
}

// pendingAppend is an item queued for the strategy ladder together with
// the error that put it there.
type pendingAppend struct {
	item    types.PackItem
	lastErr error
}

// Assemble publishes the successful outcomes as one pack. The attempt
// number feeds name derivation so recreations never reuse a rejected
// name. Outcomes below the minimum fail with ErrInsufficientOutput
// before anything is sent to the platform.
func (a *Assembler) Assemble(ctx context.Context, ownerID int64, title string, outcomes []types.TemplateOutcome, attempt int) (*Result, error) {
	items := successfulItems(outcomes)
	if len(items) < a.minSuccess {
		return nil, fmt.Errorf("%d rendered, need %d: %w", len(items), a.minSuccess, ErrInsufficientOutput)
	}

	assembly := types.PackAssembly{
		PackName:    a.namer.PackName(ownerID, attempt),
		OwnerUserID: ownerID,
	}

	if err := a.create(ctx, &assembly, title, items[0]); err != nil {
		return nil, err
	}
	assembly.AppendedCount = 1
	slog.Info("pack created", "pack", assembly.PackName, "items", len(items))

	var retryQueue []pendingAppend
	for _, item := range items[1:] {
		if err := sleepCtx(ctx, a.appendDelay); err != nil {
			return nil, err
		}
		queueErr, err := a.appendOne(ctx, &assembly, item)
		if err != nil {
			return nil, err
		}
		if queueErr != nil {
			retryQueue = append(retryQueue, pendingAppend{item: item, lastErr: queueErr})
		}
	}

	for i := range retryQueue {
		appended, err := a.retryThroughStrategies(ctx, &assembly, &retryQueue[i])
		if err != nil {
			return nil, err
		}
		if !appended {
			pending := retryQueue[i]
			assembly.FailedAppends = append(assembly.FailedAppends, types.FailedAppend{
				TemplateID: pending.item.TemplateID,
				Emoji:      pending.item.Emoji,
				LastErr:    pending.lastErr.Error(),
			})
			slog.Warn("append abandoned after all strategies",
				"pack", assembly.PackName,
				"template", pending.item.TemplateID,
				"error", pending.lastErr)
		}
	}

	result := &Result{
		Assembly:  assembly,
		Title:     title,
		ShareLink: a.msgr.ShareableLink(assembly.PackName),
		Requested: len(items),
		Actual:    assembly.AppendedCount,
		Failed:    len(assembly.FailedAppends),
	}

	info, err := a.msgr.GetCollection(ctx, assembly.PackName)
	if err != nil {
		slog.Warn("pack verification failed", "pack", assembly.PackName, "error", err)
	} else {
		result.Actual = info.ItemCount
		if info.ItemCount != assembly.AppendedCount {
			slog.Warn("pack item count mismatch",
				"pack", assembly.PackName,
				"appended", assembly.AppendedCount,
				"reported", info.ItemCount)
		}
	}

	return result, nil
}

// create makes the container with the first item, retrying transient
// failures. Container-invalid responses count toward the abort
// threshold exactly like append-time ones.
func (a *Assembler) create(ctx context.Context, assembly *types.PackAssembly, title string, first types.PackItem) error {
	var lastErr error
	for try := 0; try < createAttempts; try++ {
		if try > 0 {
			if err := sleepCtx(ctx, a.retryDelay); err != nil {
				return err
			}
		}

		err := a.msgr.CreateCollection(ctx, assembly.OwnerUserID, assembly.PackName, title, first)
		if err == nil {
			return nil
		}
		lastErr = err

		if a.isInvalid(err) {
			assembly.InvalidAttempts++
			if assembly.InvalidAttempts >= invalidAbortThreshold {
				return fmt.Errorf("pack %s: %v: %w", assembly.PackName, err, ErrContainerInvalid)
			}
		}
	}
	return fmt.Errorf("creating pack %s: %w", assembly.PackName, lastErr)
}

// appendOne appends a single item, absorbing one container-invalid
// settle-and-retry. A non-nil queueErr moves the item to the strategy
// ladder; err is terminal once the container is declared invalid.
func (a *Assembler) appendOne(ctx context.Context, assembly *types.PackAssembly, item types.PackItem) (queueErr, err error) {
	for {
		aerr := a.msgr.AppendToCollection(ctx, assembly.OwnerUserID, assembly.PackName, item)
		if aerr == nil {
			assembly.AppendedCount++
			return nil, nil
		}
		if !a.isInvalid(aerr) {
			slog.Warn("append failed, queued for retry", "pack", assembly.PackName, "emoji", item.Emoji, "error", aerr)
			return aerr, nil
		}

		assembly.InvalidAttempts++
		if assembly.InvalidAttempts >= invalidAbortThreshold {
			return nil, fmt.Errorf("pack %s: %v: %w", assembly.PackName, aerr, ErrContainerInvalid)
		}
		if serr := sleepCtx(ctx, a.retryDelay); serr != nil {
			return nil, serr
		}
	}
}

// retryThroughStrategies walks the fallback strategies for one queued
// item, updating its lastErr as attempts fail. The original emoji was
// already tried on the first pass.
func (a *Assembler) retryThroughStrategies(ctx context.Context, assembly *types.PackAssembly, pending *pendingAppend) (bool, error) {
	for _, strat := range appendStrategies[1:] {
		if err := sleepCtx(ctx, a.retryDelay); err != nil {
			return false, err
		}

		retryItem := types.PackItem{
			TemplateID: pending.item.TemplateID,
			Data:       pending.item.Data,
			Emoji:      strat.emoji(pending.item.Emoji),
		}
		err := a.msgr.AppendToCollection(ctx, assembly.OwnerUserID, assembly.PackName, retryItem)
		if err == nil {
			assembly.AppendedCount++
			slog.Info("append recovered", "pack", assembly.PackName, "strategy", strat.name)
			return true, nil
		}
		pending.lastErr = err

		if a.isInvalid(err) {
			assembly.InvalidAttempts++
			if assembly.InvalidAttempts >= invalidAbortThreshold {
				return false, fmt.Errorf("pack %s: %v: %w", assembly.PackName, err, ErrContainerInvalid)
			}
		}
	}
	return false, nil
}

// successfulItems extracts the publishable items in outcome order.
func successfulItems(outcomes []types.TemplateOutcome) []types.PackItem {
	items := make([]types.PackItem, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Status == types.OutcomeSuccess && len(o.Output) > 0 {
			items = append(items, types.PackItem{TemplateID: o.TemplateID, Data: o.Output, Emoji: o.Emoji})
		}
	}
	return items
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
