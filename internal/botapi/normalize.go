package botapi

import (
	"time"

	"github.com/sheraliortiqboyev4-del/spy-bot/events"
)

// mediaOf picks the attachment of m. Photos use the largest size.
func mediaOf(m *Message) events.Media {
	ref := func(kind events.MediaKind, f *FileRef) events.Media {
		return events.Media{
			Kind:     kind,
			Handle:   events.MediaHandle{Origin: events.OriginBotAPI, FileID: f.FileID},
			FileName: f.FileName,
		}
	}
	switch {
	case len(m.Photo) > 0:
		best := m.Photo[len(m.Photo)-1]
		return events.Media{Kind: events.MediaPhoto, Handle: events.MediaHandle{Origin: events.OriginBotAPI, FileID: best.FileID}}
	case m.Video != nil:
		return ref(events.MediaVideo, m.Video)
	case m.VideoNote != nil:
		return ref(events.MediaVideoNote, m.VideoNote)
	case m.Voice != nil:
		return ref(events.MediaVoice, m.Voice)
	case m.Animation != nil:
		return ref(events.MediaAnimation, m.Animation)
	case m.Document != nil:
		return ref(events.MediaDocument, m.Document)
	case m.Sticker != nil:
		return ref(events.MediaSticker, m.Sticker)
	case m.Audio != nil:
		return ref(events.MediaAudio, m.Audio)
	}
	return events.Media{}
}

// atRisk flags content the sender restricted or may soon withdraw.
func atRisk(m *Message) bool {
	return m.HasProtectedContent || m.HasMediaSpoiler || m.MediaGroupID != "" || len(m.CaptionEntities) > 0
}

func toMessage(m *Message) events.Message {
	out := events.Message{
		MessageID: m.MessageID,
		Media:     mediaOf(m),
		AtRisk:    atRisk(m),
	}
	if m.Chat != nil {
		out.ConversationID = m.Chat.ID
	}
	if m.From != nil {
		out.SenderID = m.From.ID
		out.SenderName = DisplayName(m.From)
	}
	out.Text = m.Text
	if out.Text == "" {
		out.Text = m.Caption
	}
	if m.Date > 0 {
		out.SentAt = time.Unix(m.Date, 0).UTC()
	}
	if m.ReplyTo != nil {
		reply := toMessage(m.ReplyTo)
		reply.ReplyTo = nil
		if reply.ConversationID == 0 {
			reply.ConversationID = out.ConversationID
		}
		out.ReplyTo = &reply
	}
	return out
}

// EventFromUpdate converts a business update into a normalized event. ok is
// false for updates that carry no business message.
func EventFromUpdate(u Update) (events.Event, bool) {
	switch {
	case u.BusinessMessage != nil:
		return messageEvent(events.KindNew, u.BusinessMessage)
	case u.EditedBusinessMessage != nil:
		return messageEvent(events.KindEdited, u.EditedBusinessMessage)
	case u.DeletedBusinessMessages != nil:
		d := u.DeletedBusinessMessages
		if d.Chat == nil || len(d.MessageIDs) == 0 {
			return events.Event{}, false
		}
		return events.Event{
			Kind:           events.KindDeleted,
			ConnectionID:   d.BusinessConnectionID,
			ConversationID: d.Chat.ID,
			DeletedIDs:     append([]int64(nil), d.MessageIDs...),
		}, true
	}
	return events.Event{}, false
}

func messageEvent(kind events.Kind, m *Message) (events.Event, bool) {
	if m.Chat == nil || m.BusinessConnectionID == "" {
		return events.Event{}, false
	}
	msg := toMessage(m)
	return events.Event{
		Kind:           kind,
		ConnectionID:   m.BusinessConnectionID,
		ConversationID: m.Chat.ID,
		Message:        &msg,
	}, true
}
