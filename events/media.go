package events

import "strings"

type MediaKind string

const (
	MediaNone      MediaKind = ""
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaVoice     MediaKind = "voice"
	MediaVideoNote MediaKind = "video_note"
	MediaDocument  MediaKind = "document"
	MediaSticker   MediaKind = "sticker"
	MediaAnimation MediaKind = "animation"
	MediaAudio     MediaKind = "audio"
)

// Origin names the transport that issued a media handle; only that
// transport can turn the handle back into bytes.
type Origin string

const (
	OriginBotAPI  Origin = "botapi"
	OriginGateway Origin = "gateway"
)

// MediaHandle is an opaque reference usable to fetch media bytes.
type MediaHandle struct {
	Origin       Origin `json:"origin"`
	ConnectionID string `json:"connection_id,omitempty"`
	FileID       string `json:"file_id"`
}

func (h MediaHandle) IsZero() bool {
	return strings.TrimSpace(h.FileID) == ""
}

// Key identifies the handle across origins.
func (h MediaHandle) Key() string {
	return string(h.Origin) + ":" + h.ConnectionID + ":" + h.FileID
}

type Media struct {
	Kind     MediaKind   `json:"kind,omitempty"`
	Handle   MediaHandle `json:"handle"`
	FileName string      `json:"file_name,omitempty"`
}

func (m Media) Present() bool {
	return m.Kind != MediaNone && !m.Handle.IsZero()
}

// Label is the placeholder shown when a message carries no text.
func (k MediaKind) Label() string {
	switch k {
	case MediaPhoto:
		return "📷 [Photo]"
	case MediaVideo:
		return "🎥 [Video]"
	case MediaVoice:
		return "🎤 [Voice message]"
	case MediaVideoNote:
		return "⭕ [Video note]"
	case MediaDocument:
		return "📁 [File]"
	case MediaSticker:
		return "[Sticker]"
	case MediaAnimation:
		return "[GIF]"
	case MediaAudio:
		return "🎵 [Audio]"
	default:
		return ""
	}
}

// Extension is the file extension used when the transport gives no name.
func (k MediaKind) Extension() string {
	switch k {
	case MediaPhoto:
		return ".jpg"
	case MediaVideo, MediaVideoNote, MediaAnimation:
		return ".mp4"
	case MediaVoice:
		return ".ogg"
	case MediaSticker:
		return ".webp"
	case MediaAudio:
		return ".mp3"
	default:
		return ".bin"
	}
}
