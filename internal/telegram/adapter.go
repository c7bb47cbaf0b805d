package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/stickersmith/internal/catalog"
	"github.com/user/stickersmith/internal/session"
	"github.com/user/stickersmith/internal/types"
)

const maxTelegramMessage = 4096

// PhotoHandler runs the photo-to-pack pipeline for one incoming photo.
type PhotoHandler interface {
	HandlePhoto(ctx context.Context, chatID, userID int64, firstName, photoRef string) error
}

// Adapter bridges Telegram updates to the sticker pipeline.
type Adapter struct {
	gw       *Gateway
	photos   PhotoHandler
	sessions *session.Store
	recorder types.Recorder
	catalog  *catalog.Catalog
}

// NewAdapter creates a Telegram adapter on top of an authenticated
// gateway.
func NewAdapter(gw *Gateway, photos PhotoHandler, sessions *session.Store, recorder types.Recorder, cat *catalog.Catalog) *Adapter {
	return &Adapter{
		gw:       gw,
		photos:   photos,
		sessions: sessions,
		recorder: recorder,
		catalog:  cat,
	}
}

// Start begins long-polling for Telegram updates. Each photo runs in its
// own goroutine; admission control lives in the pipeline.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.gw.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.gw.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}

	if len(msg.Photo) > 0 {
		photo := largestPhoto(msg.Photo)
		chatID, userID := msg.Chat.ID, msg.From.ID
		name := displayName(msg.From)
		go func() {
			if err := a.photos.HandlePhoto(ctx, chatID, userID, name, photo.FileID); err != nil {
				slog.Error("photo run failed", "chat_id", chatID, "user_id", userID, "error", err)
			}
		}()
		return
	}

	if msg.Document != nil {
		a.sendResponse(msg.Chat.ID, "That arrived as a file. Please send it as a photo (compressed) so I can read it.")
		return
	}

	if msg.Text != "" {
		a.sendResponse(msg.Chat.ID, "Send me a photo of your face and I'll turn it into a sticker pack. Try /help for details.")
	}
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		a.sendResponse(chatID, fmt.Sprintf(
			"Hello! Send me a clear photo of your face and I'll turn it into a sticker pack with one sticker for each of %d themes. Use /templates to see them.",
			a.catalog.Len()))

	case "help":
		a.sendResponse(chatID, "Send one photo of your face, looking at the camera, and wait for your pack link.\n\n"+
			"/status - check on a running generation\n"+
			"/templates - list the sticker themes\n\n"+
			"Photos must be JPEG or PNG. One generation per chat at a time.")

	case "templates":
		a.sendResponse(chatID, a.templatesText())

	case "status":
		a.sendResponse(chatID, a.statusText(ctx, chatID, msg.From.ID))

	default:
		a.sendResponse(chatID, "Unknown command. Available: /start, /help, /status, /templates")
	}
}

// templatesText renders the catalog as a bullet list.
func (a *Adapter) templatesText() string {
	var b strings.Builder
	b.WriteString("Your pack will have one sticker per theme:\n")
	for _, tpl := range a.catalog.Templates() {
		if tpl.Description != "" {
			fmt.Fprintf(&b, "\n%s %s: %s", tpl.EmojiGlyph, tpl.DisplayName, tpl.Description)
		} else {
			fmt.Fprintf(&b, "\n%s %s", tpl.EmojiGlyph, tpl.DisplayName)
		}
	}
	return b.String()
}

// statusText reports this chat's session state and, when relevant, the
// user's quota standing.
func (a *Adapter) statusText(ctx context.Context, chatID, userID int64) string {
	var b strings.Builder

	sess, ok := a.sessions.Get(chatID)
	switch {
	case !ok:
		b.WriteString("No generation in progress. Send me a photo to get started!")
	case sess.State == types.SessionProcessing:
		fmt.Fprintf(&b, "Rendering your stickers (started %s ago).", time.Since(sess.StartedAt).Round(time.Second))
	case sess.State == types.SessionCompleted:
		b.WriteString("Your last pack finished. Send another photo for a new one!")
	default:
		b.WriteString("Your last run failed. Send a photo to try again.")
	}

	if decision, err := a.recorder.CheckDailyLimit(ctx, userID); err == nil && !decision.Allowed {
		b.WriteString("\nYou've hit today's limit; come back tomorrow.")
	}
	return b.String()
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	for _, part := range splitMessage(text) {
		if _, err := a.gw.SendMessage(chatID, part); err != nil {
			slog.Warn("send response failed", "chat_id", chatID, "error", err)
		}
	}
}

// largestPhoto picks the biggest variant Telegram offers for a photo.
func largestPhoto(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}

// displayName picks something to call the user in the pack title.
func displayName(user *tgbotapi.User) string {
	if user.FirstName != "" {
		return user.FirstName
	}
	if user.UserName != "" {
		return user.UserName
	}
	return "Someone"
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
