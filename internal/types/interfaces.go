// internal/types/interfaces.go
package types

import (
	"context"
)

// Messenger is the messaging-gateway seam: chat replies, file transfer,
// and the remote ordered collection ("pack") operations.
type Messenger interface {
	SendMessage(chatID int64, text string) (int, error)
	EditMessage(chatID int64, messageID int, text string) error
	SendChatAction(chatID int64, kind string) error
	DownloadFile(ctx context.Context, fileRef string) ([]byte, error)
	FileURL(fileRef string) (string, error)
	UploadFile(ctx context.Context, ownerID int64, data []byte) (string, error)
	CreateCollection(ctx context.Context, ownerID int64, name, title string, first PackItem) error
	AppendToCollection(ctx context.Context, ownerID int64, name string, item PackItem) error
	GetCollection(ctx context.Context, name string) (*CollectionInfo, error)
	ShareableLink(name string) string
	BotUsername() string
}

// Recorder is the usage/audit seam. Callers treat it as fail-open: a
// recorder outage never blocks generation.
type Recorder interface {
	CheckDailyLimit(ctx context.Context, userID int64) (Decision, error)
	RecordGeneration(ctx context.Context, userID int64) error
	LogEvent(ctx context.Context, userID int64, stage string, metadata map[string]any) error
}
