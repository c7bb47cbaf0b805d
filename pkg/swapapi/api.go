package swapapi

import "context"

// API defines the interface for interacting with face-swap backends.
// Implementations handle provider-specific details such as request
// formatting, authentication, and response parsing.
type API interface {
	// SubmitJob queues a swap job and returns the provider's job ID.
	SubmitJob(ctx context.Context, req *JobRequest) (string, error)

	// GetJobStatus fetches the current state of a previously submitted job.
	GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error)
}

// Config holds common configuration for swap providers.
type Config struct {
	BaseURL string
	APIKey  string
}
