// internal/types/ids.go
package types

import "github.com/google/uuid"

type TemplateID string
type RunID string
type EventID string

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewEventID() EventID {
	return EventID(uuid.New().String())
}

// ShortID returns the first 8 characters of a fresh UUID, used as the
// random segment of derived pack names.
func ShortID() string {
	return uuid.New().String()[:8]
}
