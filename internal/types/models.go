// internal/types/models.go
package types

import (
	"time"
)

// Template is one visual theme the user's face is composited into.
// Templates are immutable after catalog load.
type Template struct {
	ID                 TemplateID `json:"id"`
	DisplayName        string     `json:"display_name"`
	EmojiGlyph         string     `json:"emoji_glyph"`
	SourceImageLocator string     `json:"source_image_locator"`
	Description        string     `json:"description,omitempty"`
}

type SessionState string

const (
	SessionIdle       SessionState = "idle"
	SessionProcessing SessionState = "processing"
	SessionCompleted  SessionState = "completed"
	SessionError      SessionState = "error"
)

// GenerationSession tracks one chat's generation. Chats without an
// entry are idle; terminal entries linger until the sweeper reaps them.
type GenerationSession struct {
	ChatID    int64        `json:"chat_id"`
	UserID    int64        `json:"user_id"`
	State     SessionState `json:"state"`
	StartedAt time.Time    `json:"started_at"`
}

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
)

// ErrorKind labels the failure class recorded on a TemplateOutcome. A
// success outcome produced by the fallback synthesizer keeps the kind of
// the synthesis failure it absorbed.
type ErrorKind string

const (
	ErrKindNone          ErrorKind = ""
	ErrKindValidation    ErrorKind = "validation"
	ErrKindDownload      ErrorKind = "download"
	ErrKindNetwork       ErrorKind = "network"
	ErrKindFaceDetection ErrorKind = "face_detection"
	ErrKindTaskFailed    ErrorKind = "task_failed"
	ErrKindTaskTimeout   ErrorKind = "task_timeout"
	ErrKindConfiguration ErrorKind = "configuration"
)

// TemplateOutcome is the immutable result of processing one template.
type TemplateOutcome struct {
	TemplateID TemplateID    `json:"template_id"`
	Emoji      string        `json:"emoji"`
	Status     OutcomeStatus `json:"status"`
	Output     []byte        `json:"-"`
	ErrorKind  ErrorKind     `json:"error_kind,omitempty"`
}

// PackItem is one entry appended to a remote collection.
type PackItem struct {
	TemplateID TemplateID
	Data       []byte
	Emoji      string
}

// FailedAppend records one rendered item abandoned after the whole
// append retry ladder.
type FailedAppend struct {
	TemplateID TemplateID `json:"template_id"`
	Emoji      string     `json:"emoji"`
	LastErr    string     `json:"last_err,omitempty"`
}

// PackAssembly is the bookkeeping record for one attempt at publishing
// a pack.
type PackAssembly struct {
	PackName        string         `json:"pack_name"`
	OwnerUserID     int64          `json:"owner_user_id"`
	AppendedCount   int            `json:"appended_count"`
	InvalidAttempts int            `json:"invalid_attempts"`
	FailedAppends   []FailedAppend `json:"failed_appends,omitempty"`
}

type CollectionInfo struct {
	Title     string `json:"title"`
	ItemCount int    `json:"item_count"`
}

// Decision is the daily-limit verdict from the usage recorder.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// UsageEvent is one audit record emitted through the usage recorder.
type UsageEvent struct {
	ID       EventID        `json:"id"`
	UserID   int64          `json:"user_id"`
	Seq      int64          `json:"seq"`
	Stage    string         `json:"stage"`
	At       time.Time      `json:"at"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
