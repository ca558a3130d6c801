package botapi

import (
	"context"
	"fmt"
	"path"

	"github.com/sheraliortiqboyev4-del/spy-bot/events"
	"github.com/sheraliortiqboyev4-del/spy-bot/recovery"
)

// sendMethods maps media kinds to the typed Bot API send method and its
// file field.
var sendMethods = map[events.MediaKind][2]string{
	events.MediaPhoto:     {"sendPhoto", "photo"},
	events.MediaVideo:     {"sendVideo", "video"},
	events.MediaVoice:     {"sendVoice", "voice"},
	events.MediaVideoNote: {"sendVideoNote", "video_note"},
	events.MediaDocument:  {"sendDocument", "document"},
	events.MediaSticker:   {"sendSticker", "sticker"},
	events.MediaAnimation: {"sendAnimation", "animation"},
	events.MediaAudio:     {"sendAudio", "audio"},
}

func (c *Client) SendText(ctx context.Context, chatID int64, html string) error {
	return c.SendMessage(ctx, chatID, html, ParseModeHTML)
}

func (c *Client) SendFile(ctx context.Context, chatID int64, filePath, caption string) error {
	return c.SendDocument(ctx, chatID, filePath, "", caption)
}

// SendMedia re-sends media by Bot API file id. Handles issued by other
// transports cannot be referenced here.
func (c *Client) SendMedia(ctx context.Context, chatID int64, media events.Media, caption string) error {
	if media.Handle.Origin != events.OriginBotAPI {
		return fmt.Errorf("%w: %s handle cannot be sent by the bot", recovery.ErrUnavailable, media.Handle.Origin)
	}
	m, ok := sendMethods[media.Kind]
	if !ok {
		return fmt.Errorf("unsupported media kind %q", media.Kind)
	}
	switch media.Kind {
	case events.MediaVideoNote, events.MediaSticker:
		caption = ""
	}
	return c.SendByFileID(ctx, m[0], m[1], chatID, media.Handle.FileID, caption)
}

// Fetch resolves a Bot API file id and opens its content.
func (c *Client) Fetch(ctx context.Context, handle events.MediaHandle) (*recovery.Download, error) {
	f, err := c.GetFile(ctx, handle.FileID)
	if err != nil {
		if IsBadRequest(err) {
			return nil, fmt.Errorf("%w: %v", recovery.ErrUnavailable, err)
		}
		return nil, err
	}
	body, size, err := c.Download(ctx, f.FilePath)
	if err != nil {
		return nil, err
	}
	if f.FileSize > size {
		size = f.FileSize
	}
	return &recovery.Download{Body: body, Name: path.Base(f.FilePath), Size: size}, nil
}
