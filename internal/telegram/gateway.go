package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/stickersmith/internal/types"
)

// defaultMaxFileBytes bounds photo downloads from the file API. The Bot
// API itself refuses to serve files over 20 MB.
const defaultMaxFileBytes = 20 << 20

const shareLinkBase = "https://t.me/addstickers/"

// Gateway implements the messaging seam over the Telegram Bot API.
type Gateway struct {
	bot     *tgbotapi.BotAPI
	http    *http.Client
	maxFile int64
}

// Options configure the Gateway. Zero values fall back to defaults.
type Options struct {
	MaxFileBytes int64
	Debug        bool
}

// NewGateway authenticates against the Bot API and wraps it.
func NewGateway(token string, opts Options) (*Gateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	bot.Debug = opts.Debug

	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = defaultMaxFileBytes
	}
	return &Gateway{
		bot:     bot,
		http:    &http.Client{Timeout: 60 * time.Second},
		maxFile: opts.MaxFileBytes,
	}, nil
}

// SendMessage posts a plain-text message and returns its message id.
func (g *Gateway) SendMessage(chatID int64, text string) (int, error) {
	sent, err := g.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sent.MessageID, nil
}

// EditMessage replaces the text of a previously sent message.
func (g *Gateway) EditMessage(chatID int64, messageID int, text string) error {
	if _, err := g.bot.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		return fmt.Errorf("edit message %d: %w", messageID, err)
	}
	return nil
}

// SendChatAction shows a typing-style indicator in the chat.
func (g *Gateway) SendChatAction(chatID int64, kind string) error {
	if _, err := g.bot.Request(tgbotapi.NewChatAction(chatID, kind)); err != nil {
		return fmt.Errorf("chat action: %w", err)
	}
	return nil
}

// DownloadFile fetches a file's bytes by its file id, bounded by the
// configured size cap.
func (g *Gateway) DownloadFile(ctx context.Context, fileRef string) ([]byte, error) {
	url, err := g.bot.GetFileDirectURL(fileRef)
	if err != nil {
		return nil, fmt.Errorf("resolve file %s: %w", fileRef, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	limited := &io.LimitedReader{R: resp.Body, N: g.maxFile + 1}
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > g.maxFile {
		return nil, fmt.Errorf("file exceeds %d byte limit", g.maxFile)
	}
	return data, nil
}

// FileURL resolves a file id to its direct download URL.
func (g *Gateway) FileURL(fileRef string) (string, error) {
	url, err := g.bot.GetFileDirectURL(fileRef)
	if err != nil {
		return "", fmt.Errorf("resolve file %s: %w", fileRef, err)
	}
	return url, nil
}

// UploadFile pushes raw image bytes to Telegram's file store without
// posting to any chat, and returns the assigned file id.
func (g *Gateway) UploadFile(ctx context.Context, ownerID int64, data []byte) (string, error) {
	resp, err := g.bot.Request(tgbotapi.UploadStickerConfig{
		UserID:     ownerID,
		PNGSticker: tgbotapi.FileBytes{Name: "source.png", Bytes: data},
	})
	if err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}

	var file tgbotapi.File
	if err := json.Unmarshal(resp.Result, &file); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	if file.FileID == "" {
		return "", fmt.Errorf("no file id in upload response")
	}
	return file.FileID, nil
}

// CreateCollection creates the named sticker set seeded with its first
// sticker. Telegram requires a set to be born non-empty.
func (g *Gateway) CreateCollection(ctx context.Context, ownerID int64, name, title string, first types.PackItem) error {
	cfg := tgbotapi.NewStickerSetConfig{
		UserID:     ownerID,
		Name:       name,
		Title:      title,
		PNGSticker: tgbotapi.FileBytes{Name: "sticker.png", Bytes: first.Data},
		Emojis:     first.Emoji,
	}
	if _, err := g.bot.Request(cfg); err != nil {
		return fmt.Errorf("create sticker set %s: %w", name, err)
	}
	return nil
}

// AppendToCollection adds one sticker to an existing set.
func (g *Gateway) AppendToCollection(ctx context.Context, ownerID int64, name string, item types.PackItem) error {
	cfg := tgbotapi.AddStickerConfig{
		UserID:     ownerID,
		Name:       name,
		PNGSticker: tgbotapi.FileBytes{Name: "sticker.png", Bytes: item.Data},
		Emojis:     item.Emoji,
	}
	if _, err := g.bot.Request(cfg); err != nil {
		return fmt.Errorf("append to sticker set %s: %w", name, err)
	}
	return nil
}

// GetCollection fetches the set as the platform sees it.
func (g *Gateway) GetCollection(ctx context.Context, name string) (*types.CollectionInfo, error) {
	set, err := g.bot.GetStickerSet(tgbotapi.GetStickerSetConfig{Name: name})
	if err != nil {
		return nil, fmt.Errorf("get sticker set %s: %w", name, err)
	}
	return &types.CollectionInfo{
		Title:     set.Title,
		ItemCount: len(set.Stickers),
	}, nil
}

// ShareableLink returns the public add-stickers URL for a set name.
func (g *Gateway) ShareableLink(name string) string {
	return shareLinkBase + name
}

// BotUsername returns the authenticated bot's username.
func (g *Gateway) BotUsername() string {
	return g.bot.Self.UserName
}
