package botapi

import "strings"

type Update struct {
	UpdateID                int64                    `json:"update_id"`
	Message                 *Message                 `json:"message,omitempty"`
	EditedMessage           *Message                 `json:"edited_message,omitempty"`
	BusinessConnection      *BusinessConnection      `json:"business_connection,omitempty"`
	BusinessMessage         *Message                 `json:"business_message,omitempty"`
	EditedBusinessMessage   *Message                 `json:"edited_business_message,omitempty"`
	DeletedBusinessMessages *BusinessMessagesDeleted `json:"deleted_business_messages,omitempty"`
}

type Message struct {
	MessageID            int64    `json:"message_id"`
	Date                 int64    `json:"date,omitempty"`
	EditDate             int64    `json:"edit_date,omitempty"`
	BusinessConnectionID string   `json:"business_connection_id,omitempty"`
	Chat                 *Chat    `json:"chat,omitempty"`
	From                 *User    `json:"from,omitempty"`
	ReplyTo              *Message `json:"reply_to_message,omitempty"`
	Text                 string   `json:"text,omitempty"`
	Caption              string   `json:"caption,omitempty"`
	// Entities inside caption text.
	CaptionEntities     []Entity `json:"caption_entities,omitempty"`
	HasProtectedContent bool     `json:"has_protected_content,omitempty"`
	HasMediaSpoiler     bool     `json:"has_media_spoiler,omitempty"`
	MediaGroupID        string   `json:"media_group_id,omitempty"`

	Photo     []PhotoSize `json:"photo,omitempty"`
	Video     *FileRef    `json:"video,omitempty"`
	Voice     *FileRef    `json:"voice,omitempty"`
	VideoNote *FileRef    `json:"video_note,omitempty"`
	Document  *FileRef    `json:"document,omitempty"`
	Sticker   *FileRef    `json:"sticker,omitempty"`
	Animation *FileRef    `json:"animation,omitempty"`
	Audio     *FileRef    `json:"audio,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"` // private|group|supergroup|channel
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// DisplayName renders "First Last (@username)" with whatever parts exist.
func DisplayName(u *User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	username := strings.TrimSpace(u.Username)
	switch {
	case name != "" && username != "":
		return name + " (@" + username + ")"
	case name != "":
		return name
	case username != "":
		return "@" + username
	default:
		return ""
	}
}

type Entity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// FileRef covers the file fields shared by video, voice, document and the
// other single-file attachments.
type FileRef struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type BusinessConnection struct {
	ID         string `json:"id"`
	User       *User  `json:"user,omitempty"`
	UserChatID int64  `json:"user_chat_id"`
	Date       int64  `json:"date,omitempty"`
	IsEnabled  bool   `json:"is_enabled"`
}

type BusinessMessagesDeleted struct {
	BusinessConnectionID string  `json:"business_connection_id"`
	Chat                 *Chat   `json:"chat,omitempty"`
	MessageIDs           []int64 `json:"message_ids"`
}

type File struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
}

type response[T any] struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Result      T      `json:"result"`
}
