package faceswap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/stickersmith/pkg/swapapi"
)

// Terminal job failures. Callers branch on these to decide between
// user guidance (face detection) and fallback rendering.
var (
	ErrFaceDetection = errors.New("no face detected in source photo")
	ErrTaskFailed    = errors.New("swap task failed")
	ErrTaskTimeout   = errors.New("swap task timed out")
)

// consecutive poll errors tolerated before the job is abandoned
const pollErrorBudget = 3

// JobHandle tracks one submitted swap job through its lifecycle.
type JobHandle struct {
	TaskID        string
	Status        string
	ResultLocator string
	ErrorDetail   string
}

// Options configure a Client. Zero values fall back to defaults.
type Options struct {
	PollInterval   time.Duration
	MaxWait        time.Duration
	MaxResultBytes int64
	Retry          *RetryPolicy
	Classify       Classifier
}

// Client drives swap jobs end to end: submit with retries, poll to a
// terminal state, then download the result bytes.
type Client struct {
	api            swapapi.API
	httpClient     *http.Client
	retry          *RetryPolicy
	classify       Classifier
	pollInterval   time.Duration
	maxWait        time.Duration
	maxResultBytes int64
}

// NewClient creates a Client over the given provider API.
func NewClient(api swapapi.API, opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 2 * time.Minute
	}
	if opts.MaxResultBytes <= 0 {
		opts.MaxResultBytes = 10 << 20
	}
	if opts.Retry == nil {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Classify == nil {
		opts.Classify = DefaultClassifier
	}
	return &Client{
		api:            api,
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		retry:          opts.Retry,
		classify:       opts.Classify,
		pollInterval:   opts.PollInterval,
		maxWait:        opts.MaxWait,
		maxResultBytes: opts.MaxResultBytes,
	}
}

// Submit queues a swap job. Transient submission failures are retried
// with backoff; 4xx provider responses fail immediately.
func (c *Client) Submit(ctx context.Context, sourceURL, targetURL string) (*JobHandle, error) {
	req := &swapapi.JobRequest{SourceURL: sourceURL, TargetURL: targetURL}

	var jobID string
	err := c.retry.Execute(ctx, func() error {
		id, err := c.api.SubmitJob(ctx, req)
		if err != nil {
			return err
		}
		jobID = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("submitting job: %w", err)
	}

	return &JobHandle{TaskID: jobID, Status: swapapi.StatusPending}, nil
}

// Await polls the job until it reaches a terminal state. On success the
// handle's ResultLocator is populated. A failed job is classified into
// ErrFaceDetection or ErrTaskFailed; a job still running after MaxWait
// returns ErrTaskTimeout.
func (c *Client) Await(ctx context.Context, handle *JobHandle) error {
	deadline := time.Now().Add(c.maxWait)
	pollErrors := 0

	for {
		status, err := c.api.GetJobStatus(ctx, handle.TaskID)
		if err != nil {
			pollErrors++
			if pollErrors >= pollErrorBudget {
				return fmt.Errorf("polling job %s: %w", handle.TaskID, err)
			}
			slog.Warn("job poll failed, will retry", "task_id", handle.TaskID, "error", err)
		} else {
			pollErrors = 0
			handle.Status = status.Status

			if status.Terminal() {
				if status.Status == swapapi.StatusSucceeded {
					if status.ResultURL == "" {
						return fmt.Errorf("job %s succeeded without a result: %w", handle.TaskID, ErrTaskFailed)
					}
					handle.ResultLocator = status.ResultURL
					return nil
				}
				handle.ErrorDetail = status.FailureMessage()
				if c.classify(handle.ErrorDetail) {
					return fmt.Errorf("job %s: %w", handle.TaskID, ErrFaceDetection)
				}
				if handle.ErrorDetail != "" {
					return fmt.Errorf("job %s: %s: %w", handle.TaskID, handle.ErrorDetail, ErrTaskFailed)
				}
				return fmt.Errorf("job %s: %w", handle.TaskID, ErrTaskFailed)
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("job %s still %s after %s: %w", handle.TaskID, handle.Status, c.maxWait, ErrTaskTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// Fetch downloads the finished job's result image.
func (c *Client) Fetch(ctx context.Context, handle *JobHandle) ([]byte, error) {
	if handle.ResultLocator == "" {
		return nil, fmt.Errorf("job %s has no result locator", handle.TaskID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, handle.ResultLocator, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading result: status %d", resp.StatusCode)
	}

	limited := io.LimitedReader{R: resp.Body, N: c.maxResultBytes + 1}
	data, err := io.ReadAll(&limited)
	if err != nil {
		return nil, fmt.Errorf("reading result: %w", err)
	}
	if int64(len(data)) > c.maxResultBytes {
		return nil, fmt.Errorf("result exceeds %d bytes", c.maxResultBytes)
	}

	return data, nil
}

// Generate runs the full job lifecycle for one template and returns the
// rendered image bytes.
func (c *Client) Generate(ctx context.Context, sourceURL, targetURL string) ([]byte, error) {
	handle, err := c.Submit(ctx, sourceURL, targetURL)
	if err != nil {
		return nil, err
	}
	if err := c.Await(ctx, handle); err != nil {
		return nil, err
	}
	return c.Fetch(ctx, handle)
}
