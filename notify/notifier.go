// Package notify renders change reports as Telegram HTML and delivers them
// to the owner.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sheraliortiqboyev4-del/spy-bot/events"
	"github.com/sheraliortiqboyev4-del/spy-bot/shadow"
)

const (
	MediaUnavailableText = "⚠️ Media could not be recovered."
	DeletedMissText      = "🗑 <b>Message deleted!</b>\n(content not captured)"
)

type Options struct {
	// Signature is appended to every report when set.
	Signature string
	Logger    *slog.Logger
}

type Notifier struct {
	sender    Sender
	signature string
	logger    *slog.Logger
}

func New(sender Sender, opts Options) *Notifier {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		sender:    sender,
		signature: strings.TrimSpace(opts.Signature),
		logger:    logger,
	}
}

func (n *Notifier) sign(body string) string {
	if n.signature == "" {
		return body
	}
	return body + "\n\n" + escape(n.signature)
}

// EditReport renders one before/after report. old is nil when the previous
// version was never observed.
func (n *Notifier) EditReport(old *shadow.ObservedMessage, updated events.Message) string {
	oldContent := notCapturedText
	if old != nil {
		oldContent = observedContent(*old)
	}
	budget := (maxTextRunes - 256) / 2
	var b strings.Builder
	fmt.Fprintf(&b, "✏️ <b>%s edited a message:</b>\n\n", senderLabel(updated.SenderName))
	b.WriteString("<b>Old:</b>\n")
	b.WriteString(blockquote(truncateContent(oldContent, budget)))
	b.WriteString("\n\n<b>New:</b>\n")
	b.WriteString(blockquote(truncateContent(updated.ContentText(), budget)))
	return n.sign(b.String())
}

func (n *Notifier) SendEdit(ctx context.Context, owner int64, old *shadow.ObservedMessage, updated events.Message) error {
	if err := n.sender.SendText(ctx, owner, n.EditReport(old, updated)); err != nil {
		return fmt.Errorf("send edit report: %w", err)
	}
	return nil
}

// DeleteReport renders the caption describing a deleted message.
func (n *Notifier) DeleteReport(old shadow.ObservedMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🗑 <b>%s deleted a message:</b>\n\n", senderLabel(old.SenderName))
	b.WriteString(blockquote(truncateContent(observedContent(old), maxCaptionRunes-256)))
	return n.sign(b.String())
}

// SendDelete delivers the report for a cached deleted message. A recovered
// file is attached; otherwise the media is re-sent by its original handle;
// when that fails the report goes out as text marked media unavailable.
func (n *Notifier) SendDelete(ctx context.Context, owner int64, old shadow.ObservedMessage) error {
	report := n.DeleteReport(old)

	if old.RecoveredPath != "" {
		caption := report + "\n\n" + savedFileLine(old.RecoveredPath)
		err := n.sender.SendFile(ctx, owner, old.RecoveredPath, caption)
		if err == nil {
			return nil
		}
		n.logger.Warn("notify_send_file_error", "owner_id", owner, "message_id", old.MessageID, "error", err.Error())
		return n.fallbackText(ctx, owner, report, err)
	}

	if old.Media.Present() {
		err := n.redeliver(ctx, owner, old.Media, report)
		if err == nil {
			return nil
		}
		n.logger.Warn("notify_redeliver_error", "owner_id", owner, "message_id", old.MessageID, "kind", string(old.Media.Kind), "error", err.Error())
		return n.fallbackText(ctx, owner, report, err)
	}

	if old.Media.Kind != events.MediaNone {
		report += "\n" + MediaUnavailableText
	}
	if err := n.sender.SendText(ctx, owner, report); err != nil {
		return fmt.Errorf("send delete report: %w", err)
	}
	return nil
}

// redeliver sends media by handle. Video notes and stickers cannot carry a
// caption, so the report goes first as text.
func (n *Notifier) redeliver(ctx context.Context, owner int64, media events.Media, report string) error {
	switch media.Kind {
	case events.MediaVideoNote, events.MediaSticker:
		if err := n.sender.SendText(ctx, owner, report); err != nil {
			return err
		}
		if err := n.sender.SendMedia(ctx, owner, media, ""); err != nil {
			return errMediaAfterReport{err}
		}
		return nil
	default:
		return n.sender.SendMedia(ctx, owner, media, report)
	}
}

type errMediaAfterReport struct{ err error }

func (e errMediaAfterReport) Error() string { return e.err.Error() }
func (e errMediaAfterReport) Unwrap() error { return e.err }

func (n *Notifier) fallbackText(ctx context.Context, owner int64, report string, cause error) error {
	var after errMediaAfterReport
	if errors.As(cause, &after) {
		// The report itself already went out.
		return n.send(ctx, owner, MediaUnavailableText, "send media unavailable notice")
	}
	return n.send(ctx, owner, report+"\n"+MediaUnavailableText, "send delete fallback")
}

func (n *Notifier) send(ctx context.Context, owner int64, text, op string) error {
	if err := n.sender.SendText(ctx, owner, text); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SendDeleteMiss tells the owner a message vanished before it was observed.
func (n *Notifier) SendDeleteMiss(ctx context.Context, owner int64) error {
	return n.send(ctx, owner, n.sign(DeletedMissText), "send delete notice")
}

// SendRecovered delivers a file recovered on the owner's request.
func (n *Notifier) SendRecovered(ctx context.Context, owner int64, msg shadow.ObservedMessage) error {
	var b strings.Builder
	fmt.Fprintf(&b, "💾 <b>Saved from %s</b>", senderLabel(msg.SenderName))
	if msg.Text != "" {
		b.WriteString("\n\n")
		b.WriteString(blockquote(truncateContent(msg.Text, maxCaptionRunes-256)))
	}
	if err := n.sender.SendFile(ctx, owner, msg.RecoveredPath, n.sign(b.String())); err != nil {
		return fmt.Errorf("send recovered file: %w", err)
	}
	return nil
}

// SendMediaUnavailable tells the owner a requested file could not be
// recovered.
func (n *Notifier) SendMediaUnavailable(ctx context.Context, owner int64) error {
	return n.send(ctx, owner, n.sign(MediaUnavailableText), "send media unavailable notice")
}

// SendCaptureNotice tells the owner that protected media was saved as it
// arrived.
func (n *Notifier) SendCaptureNotice(ctx context.Context, owner int64, msg shadow.ObservedMessage) error {
	text := fmt.Sprintf("🔒 <b>Protected %s from %s saved.</b>\n%s",
		escape(strings.ReplaceAll(string(msg.Media.Kind), "_", " ")),
		senderLabel(msg.SenderName),
		savedFileLine(msg.RecoveredPath))
	return n.send(ctx, owner, n.sign(text), "send capture notice")
}

// SendText delivers an already formatted HTML message.
func (n *Notifier) SendText(ctx context.Context, owner int64, html string) error {
	return n.send(ctx, owner, html, "send text")
}

func observedContent(m shadow.ObservedMessage) string {
	if m.Text != "" {
		return m.Text
	}
	if label := m.Media.Kind.Label(); label != "" {
		return label
	}
	return "(empty message)"
}
