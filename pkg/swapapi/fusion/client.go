package fusion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/user/stickersmith/pkg/swapapi"
)

// Client implements the swapapi.API interface for fusion-style swap
// services: POST a job, then poll its status endpoint until terminal.
type Client struct {
	config     *swapapi.Config
	httpClient *http.Client
}

// New creates a new fusion client with the given configuration.
func New(config *swapapi.Config) *Client {
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// submitResponse is the fusion job submission response body.
type submitResponse struct {
	JobID string `json:"job_id"`
}

// statusResponse is the fusion job status response body.
type statusResponse struct {
	JobID    string    `json:"job_id"`
	Status   string    `json:"status"`
	Progress int       `json:"progress"`
	Output   *jobOut   `json:"output,omitempty"`
	Error    *jobError `json:"error,omitempty"`
}

type jobOut struct {
	ImageURL string `json:"image_url"`
}

type jobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SubmitJob queues a swap job and returns the provider's job ID.
func (c *Client) SubmitJob(ctx context.Context, req *swapapi.JobRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := c.config.BaseURL + "/jobs"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", &swapapi.HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var subResp submitResponse
	if err := json.Unmarshal(respBody, &subResp); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if subResp.JobID == "" {
		return "", fmt.Errorf("no job id in response")
	}

	return subResp.JobID, nil
}

// GetJobStatus fetches the current state of a previously submitted job.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*swapapi.JobStatus, error) {
	url := c.config.BaseURL + "/jobs/" + jobID
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &swapapi.HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var stResp statusResponse
	if err := json.Unmarshal(respBody, &stResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	status := &swapapi.JobStatus{
		JobID:    stResp.JobID,
		Status:   stResp.Status,
		Progress: stResp.Progress,
	}
	if stResp.Output != nil {
		status.ResultURL = stResp.Output.ImageURL
	}
	if stResp.Error != nil {
		status.Error = &swapapi.ErrorPayload{Code: stResp.Error.Code, Message: stResp.Error.Message}
	}

	return status, nil
}
