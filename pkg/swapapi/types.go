package swapapi

import "fmt"

// Job status values reported by providers.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
)

// JobRequest describes a single swap job: the face taken from SourceURL
// is composited into the scene at TargetURL.
type JobRequest struct {
	SourceURL string         `json:"source_url"`
	TargetURL string         `json:"target_url"`
	Options   map[string]any `json:"options,omitempty"`
}

// JobStatus is a provider-neutral snapshot of a submitted job.
type JobStatus struct {
	JobID     string        `json:"job_id"`
	Status    string        `json:"status"`
	Progress  int           `json:"progress,omitempty"`
	ResultURL string        `json:"result_url,omitempty"`
	Error     *ErrorPayload `json:"error,omitempty"`
}

// ErrorPayload carries a provider's failure details for a failed job.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Terminal reports whether the job has reached a final state.
func (s *JobStatus) Terminal() bool {
	return s.Status == StatusSucceeded || s.Status == StatusFailed
}

// FailureMessage returns the provider's failure text for a failed job,
// or an empty string when no error detail was attached.
func (s *JobStatus) FailureMessage() string {
	if s.Error == nil {
		return ""
	}
	if s.Error.Code != "" && s.Error.Message != "" {
		return s.Error.Code + ": " + s.Error.Message
	}
	if s.Error.Message != "" {
		return s.Error.Message
	}
	return s.Error.Code
}

// HTTPError is returned when a provider responds with a non-success
// HTTP status. Callers can inspect StatusCode to decide whether the
// request is worth retrying.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}
