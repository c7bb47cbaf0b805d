package faceswap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/user/stickersmith/pkg/swapapi"
)

// stubAPI satisfies swapapi.API with scripted behavior.
type stubAPI struct {
	submitErrs  []error
	submitCalls int
	statuses    []*swapapi.JobStatus
	statusErrs  []error
	statusCalls int
}

func (s *stubAPI) SubmitJob(ctx context.Context, req *swapapi.JobRequest) (string, error) {
	s.submitCalls++
	if len(s.submitErrs) > 0 {
		err := s.submitErrs[0]
		s.submitErrs = s.submitErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return "job-1", nil
}

func (s *stubAPI) GetJobStatus(ctx context.Context, jobID string) (*swapapi.JobStatus, error) {
	s.statusCalls++
	if len(s.statusErrs) > 0 {
		err := s.statusErrs[0]
		s.statusErrs = s.statusErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(s.statuses) == 0 {
		return &swapapi.JobStatus{JobID: jobID, Status: swapapi.StatusProcessing}, nil
	}
	st := s.statuses[0]
	if len(s.statuses) > 1 {
		s.statuses = s.statuses[1:]
	}
	return st, nil
}

func testClient(api swapapi.API) *Client {
	return NewClient(api, Options{
		PollInterval: time.Millisecond,
		MaxWait:      time.Second,
		Retry:        fastPolicy(),
	})
}

func TestSubmit_RetriesTransient(t *testing.T) {
	api := &stubAPI{submitErrs: []error{
		errors.New("connection refused"),
		errors.New("connection reset"),
	}}
	client := testClient(api)

	handle, err := client.Submit(context.Background(), "src", "tgt")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if api.submitCalls != 3 {
		t.Errorf("expected 3 submit calls, got %d", api.submitCalls)
	}
	if handle.TaskID != "job-1" {
		t.Errorf("unexpected task id %q", handle.TaskID)
	}
	if handle.Status != swapapi.StatusPending {
		t.Errorf("fresh handle should be pending, got %q", handle.Status)
	}
}

func TestSubmit_FailsFastOnClientError(t *testing.T) {
	api := &stubAPI{submitErrs: []error{
		&swapapi.HTTPError{StatusCode: 422, Body: "target url unreachable"},
	}}
	client := testClient(api)

	_, err := client.Submit(context.Background(), "src", "tgt")
	if err == nil {
		t.Fatal("expected error")
	}
	if api.submitCalls != 1 {
		t.Errorf("4xx must not be retried, got %d calls", api.submitCalls)
	}
}

func TestAwait_Success(t *testing.T) {
	api := &stubAPI{statuses: []*swapapi.JobStatus{
		{JobID: "job-1", Status: swapapi.StatusPending},
		{JobID: "job-1", Status: swapapi.StatusProcessing, Progress: 50},
		{JobID: "job-1", Status: swapapi.StatusSucceeded, ResultURL: "https://cdn.example.com/out.jpg"},
	}}
	client := testClient(api)

	handle := &JobHandle{TaskID: "job-1", Status: swapapi.StatusPending}
	if err := client.Await(context.Background(), handle); err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if handle.ResultLocator != "https://cdn.example.com/out.jpg" {
		t.Errorf("result locator not captured: %q", handle.ResultLocator)
	}
	if handle.Status != swapapi.StatusSucceeded {
		t.Errorf("expected succeeded, got %q", handle.Status)
	}
}

func TestAwait_FaceDetectionFailure(t *testing.T) {
	api := &stubAPI{statuses: []*swapapi.JobStatus{
		{JobID: "job-1", Status: swapapi.StatusFailed, Error: &swapapi.ErrorPayload{Code: "no_face", Message: "No face detected in source image"}},
	}}
	client := testClient(api)

	handle := &JobHandle{TaskID: "job-1"}
	err := client.Await(context.Background(), handle)
	if !errors.Is(err, ErrFaceDetection) {
		t.Fatalf("expected ErrFaceDetection, got %v", err)
	}
	if handle.ErrorDetail == "" {
		t.Error("expected error detail to be recorded on the handle")
	}
}

func TestAwait_GenericFailure(t *testing.T) {
	api := &stubAPI{statuses: []*swapapi.JobStatus{
		{JobID: "job-1", Status: swapapi.StatusFailed, Error: &swapapi.ErrorPayload{Message: "internal renderer error"}},
	}}
	client := testClient(api)

	err := client.Await(context.Background(), &JobHandle{TaskID: "job-1"})
	if !errors.Is(err, ErrTaskFailed) {
		t.Fatalf("expected ErrTaskFailed, got %v", err)
	}
	if errors.Is(err, ErrFaceDetection) {
		t.Error("generic failure must not classify as face detection")
	}
}

func TestAwait_Timeout(t *testing.T) {
	api := &stubAPI{} // always processing
	client := NewClient(api, Options{
		PollInterval: time.Millisecond,
		MaxWait:      20 * time.Millisecond,
		Retry:        fastPolicy(),
	})

	err := client.Await(context.Background(), &JobHandle{TaskID: "job-1"})
	if !errors.Is(err, ErrTaskTimeout) {
		t.Fatalf("expected ErrTaskTimeout, got %v", err)
	}
}

func TestAwait_PollErrorBudget(t *testing.T) {
	api := &stubAPI{statusErrs: []error{
		errors.New("connection refused"),
		errors.New("connection refused"),
		errors.New("connection refused"),
		errors.New("connection refused"),
	}}
	client := testClient(api)

	err := client.Await(context.Background(), &JobHandle{TaskID: "job-1"})
	if err == nil {
		t.Fatal("expected error after poll budget exhausted")
	}
	if errors.Is(err, ErrTaskTimeout) {
		t.Error("poll failures should surface the poll error, not a timeout")
	}
	if api.statusCalls != pollErrorBudget {
		t.Errorf("expected %d poll attempts, got %d", pollErrorBudget, api.statusCalls)
	}
}

func TestAwait_TransientPollErrorRecovers(t *testing.T) {
	api := &stubAPI{
		statusErrs: []error{errors.New("connection refused"), nil},
		statuses: []*swapapi.JobStatus{
			{JobID: "job-1", Status: swapapi.StatusSucceeded, ResultURL: "https://cdn.example.com/out.jpg"},
		},
	}
	client := testClient(api)

	handle := &JobHandle{TaskID: "job-1"}
	if err := client.Await(context.Background(), handle); err != nil {
		t.Fatalf("expected recovery after one poll error, got %v", err)
	}
}

func TestAwait_SucceededWithoutResult(t *testing.T) {
	api := &stubAPI{statuses: []*swapapi.JobStatus{
		{JobID: "job-1", Status: swapapi.StatusSucceeded},
	}}
	client := testClient(api)

	err := client.Await(context.Background(), &JobHandle{TaskID: "job-1"})
	if !errors.Is(err, ErrTaskFailed) {
		t.Fatalf("success without a result must fail the job, got %v", err)
	}
}

func TestFetch(t *testing.T) {
	payload := []byte("rendered sticker bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	client := testClient(&stubAPI{})
	data, err := client.Fetch(context.Background(), &JobHandle{TaskID: "job-1", ResultLocator: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(payload) {
		t.Errorf("fetched bytes do not match")
	}
}

func TestFetch_RejectsOversize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 4096))
	}))
	defer server.Close()

	client := NewClient(&stubAPI{}, Options{MaxResultBytes: 1024, Retry: fastPolicy()})
	_, err := client.Fetch(context.Background(), &JobHandle{TaskID: "job-1", ResultLocator: server.URL})
	if err == nil {
		t.Fatal("expected error for oversize result")
	}
}

func TestGenerate(t *testing.T) {
	payload := []byte("final image")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	api := &stubAPI{statuses: []*swapapi.JobStatus{
		{JobID: "job-1", Status: swapapi.StatusProcessing},
		{JobID: "job-1", Status: swapapi.StatusSucceeded, ResultURL: server.URL},
	}}
	client := testClient(api)

	data, err := client.Generate(context.Background(), "src", "tgt")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(payload) {
		t.Error("generated bytes do not match")
	}
}

func TestDefaultClassifier(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"no_face: No face detected in source image", true},
		{"face not found", true},
		{"could not detect a face in the photo", true},
		{"FACE_NOT_DETECTED", true},
		{"internal renderer error", false},
		{"queue full", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := DefaultClassifier(tc.msg); got != tc.want {
			t.Errorf("DefaultClassifier(%q) = %v, want %v", tc.msg, got, tc.want)
		}
	}
}
