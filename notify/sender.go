package notify

import (
	"context"

	"github.com/sheraliortiqboyev4-del/spy-bot/events"
)

// Sender delivers HTML-formatted content to an owner's private chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, html string) error
	// SendFile uploads a local file with an optional caption.
	SendFile(ctx context.Context, chatID int64, path string, caption string) error
	// SendMedia re-sends media by its original transport handle.
	SendMedia(ctx context.Context, chatID int64, media events.Media, caption string) error
}
