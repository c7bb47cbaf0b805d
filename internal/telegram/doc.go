// Package telegram binds the bot to the Telegram platform: the Gateway
// implements the messaging seam and the Adapter long-polls for updates.
package telegram

import (
	"github.com/user/stickersmith/internal/imaging"
	"github.com/user/stickersmith/internal/pack"
	"github.com/user/stickersmith/internal/types"
)

// Compile-time interface compliance checks.
var _ types.Messenger = (*Gateway)(nil)
var _ imaging.Fetcher = (*Gateway)(nil)
var _ pack.Publisher = (*Gateway)(nil)
