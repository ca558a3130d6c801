// Package monitor turns live connection events into shadow cache updates,
// media recovery and owner reports.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sheraliortiqboyev4-del/spy-bot/events"
	"github.com/sheraliortiqboyev4-del/spy-bot/identity"
	"github.com/sheraliortiqboyev4-del/spy-bot/recovery"
	"github.com/sheraliortiqboyev4-del/spy-bot/shadow"
)

type Resolver interface {
	Resolve(ctx context.Context, handle string) (int64, error)
	Register(ctx context.Context, handle string, owner int64) error
}

type Recoverer interface {
	FetchAndStore(ctx context.Context, media events.Media, destDir string) (string, error)
}

// Reporter is implemented by *notify.Notifier.
type Reporter interface {
	SendEdit(ctx context.Context, owner int64, old *shadow.ObservedMessage, updated events.Message) error
	SendDelete(ctx context.Context, owner int64, old shadow.ObservedMessage) error
	SendDeleteMiss(ctx context.Context, owner int64) error
	SendRecovered(ctx context.Context, owner int64, msg shadow.ObservedMessage) error
	SendMediaUnavailable(ctx context.Context, owner int64) error
	SendCaptureNotice(ctx context.Context, owner int64, msg shadow.ObservedMessage) error
}

type Options struct {
	// MediaRoot holds one directory per owner for recovered files.
	MediaRoot string
	// CaptureNotice sends a short notice when at-risk media is saved on
	// arrival.
	CaptureNotice bool
	Logger        *slog.Logger
	Now           func() time.Time
}

type Monitor struct {
	cache     *shadow.Cache
	resolver  Resolver
	recoverer Recoverer
	reporter  Reporter
	opts      Options
	logger    *slog.Logger
}

func New(cache *shadow.Cache, resolver Resolver, recoverer Recoverer, reporter Reporter, opts Options) *Monitor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		cache:     cache,
		resolver:  resolver,
		recoverer: recoverer,
		reporter:  reporter,
		opts:      opts,
		logger:    opts.Logger,
	}
}

func (m *Monitor) Cache() *shadow.Cache {
	return m.cache
}

// HandleEvent processes one event from the connection identified by
// connectionID. Events whose owner cannot be resolved are dropped with an
// error wrapping identity.ErrNotFound.
func (m *Monitor) HandleEvent(ctx context.Context, connectionID string, ev events.Event) error {
	if ev.ConnectionID == "" {
		ev.ConnectionID = connectionID
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	owner, err := m.resolver.Resolve(ctx, ev.ConnectionID)
	if err != nil {
		m.logger.Warn("monitor_unattributed_event",
			"connection_id", ev.ConnectionID,
			"conversation_id", ev.ConversationID,
			"kind", string(ev.Kind),
			"error", err.Error(),
		)
		return err
	}
	key := shadow.ConversationKey{OwnerID: owner, ConversationID: ev.ConversationID}

	switch ev.Kind {
	case events.KindNew:
		if err := m.resolver.Register(ctx, ev.ConnectionID, owner); err != nil {
			m.logger.Warn("monitor_register_error", "connection_id", ev.ConnectionID, "owner_id", owner, "error", err.Error())
		}
		return m.onNew(ctx, owner, key, *ev.Message)
	case events.KindEdited:
		return m.onEdited(ctx, owner, key, *ev.Message)
	case events.KindDeleted:
		return m.onDeleted(ctx, owner, key, ev.DeletedIDs)
	}
	return nil
}

func (m *Monitor) onNew(ctx context.Context, owner int64, key shadow.ConversationKey, msg events.Message) error {
	observed := shadow.FromEvent(msg, m.opts.Now())
	m.cache.Record(key, observed)

	if msg.AtRisk && msg.Media.Present() {
		m.captureAtRisk(ctx, owner, key, observed)
	}
	if msg.ReplyTo != nil && msg.SenderID == owner {
		return m.onOwnerReply(ctx, owner, key, *msg.ReplyTo)
	}
	return nil
}

func (m *Monitor) captureAtRisk(ctx context.Context, owner int64, key shadow.ConversationKey, observed shadow.ObservedMessage) {
	path, err := m.recoverer.FetchAndStore(ctx, observed.Media, m.ownerDir(owner))
	if err != nil {
		m.logger.Warn("monitor_eager_recovery_error",
			"owner_id", owner,
			"conversation_id", key.ConversationID,
			"message_id", observed.MessageID,
			"reason", string(recovery.ReasonOf(err)),
			"error", err.Error(),
		)
		return
	}
	attached := m.cache.Update(key, observed.MessageID, func(o *shadow.ObservedMessage) {
		o.RecoveredPath = path
	})
	m.logger.Info("monitor_media_captured", "owner_id", owner, "message_id", observed.MessageID, "kind", string(observed.Media.Kind), "attached", attached)
	if !m.opts.CaptureNotice {
		return
	}
	observed.RecoveredPath = path
	if err := m.reporter.SendCaptureNotice(ctx, owner, observed); err != nil {
		m.logger.Warn("monitor_capture_notice_error", "owner_id", owner, "error", err.Error())
	}
}

// onOwnerReply delivers the media of the message the owner replied to,
// downloading it first when no copy was saved.
func (m *Monitor) onOwnerReply(ctx context.Context, owner int64, key shadow.ConversationKey, replied events.Message) error {
	cached, ok := m.cache.Lookup(key, replied.MessageID)
	switch {
	case ok && cached.RecoveredPath != "":
		return m.reporter.SendRecovered(ctx, owner, cached)
	case ok && cached.Media.Present():
		path, err := m.recoverer.FetchAndStore(ctx, cached.Media, m.ownerDir(owner))
		if err != nil {
			return m.lazyFailed(ctx, owner, replied.MessageID, err)
		}
		m.cache.Update(key, replied.MessageID, func(o *shadow.ObservedMessage) { o.RecoveredPath = path })
		cached.RecoveredPath = path
		return m.reporter.SendRecovered(ctx, owner, cached)
	case !ok && replied.Media.Present():
		path, err := m.recoverer.FetchAndStore(ctx, replied.Media, m.ownerDir(owner))
		if err != nil {
			return m.lazyFailed(ctx, owner, replied.MessageID, err)
		}
		if replied.ConversationID == 0 {
			replied.ConversationID = key.ConversationID
		}
		observed := shadow.FromEvent(replied, m.opts.Now())
		observed.RecoveredPath = path
		m.cache.Record(key, observed)
		return m.reporter.SendRecovered(ctx, owner, observed)
	}
	return nil
}

func (m *Monitor) lazyFailed(ctx context.Context, owner, messageID int64, err error) error {
	m.logger.Warn("monitor_lazy_recovery_error", "owner_id", owner, "message_id", messageID, "reason", string(recovery.ReasonOf(err)), "error", err.Error())
	if sendErr := m.reporter.SendMediaUnavailable(ctx, owner); sendErr != nil {
		err = errors.Join(err, sendErr)
	}
	return fmt.Errorf("recover replied message %d: %w", messageID, err)
}

func (m *Monitor) onEdited(ctx context.Context, owner int64, key shadow.ConversationKey, msg events.Message) error {
	old, found := m.cache.Lookup(key, msg.MessageID)

	var sendErr error
	if found && old.Text == msg.Text {
		m.logger.Debug("monitor_edit_suppressed", "owner_id", owner, "message_id", msg.MessageID)
	} else {
		var prev *shadow.ObservedMessage
		if found {
			prev = &old
		}
		if err := m.reporter.SendEdit(ctx, owner, prev, msg); err != nil {
			sendErr = fmt.Errorf("report edit of %d: %w", msg.MessageID, err)
			m.logger.Warn("monitor_edit_report_error", "owner_id", owner, "message_id", msg.MessageID, "error", err.Error())
		} else {
			m.logger.Info("monitor_edit_reported", "owner_id", owner, "conversation_id", key.ConversationID, "message_id", msg.MessageID, "cached", found)
		}
	}

	updated := shadow.FromEvent(msg, m.opts.Now())
	if found && old.RecoveredPath != "" && old.Media.Handle.Key() == msg.Media.Handle.Key() {
		updated.RecoveredPath = old.RecoveredPath
	}
	m.cache.Record(key, updated)
	if updated.RecoveredPath == "" && msg.AtRisk && msg.Media.Present() {
		m.captureAtRisk(ctx, owner, key, updated)
	}
	return sendErr
}

func (m *Monitor) onDeleted(ctx context.Context, owner int64, key shadow.ConversationKey, ids []int64) error {
	var errs []error
	for _, id := range ids {
		if err := m.reportDeleted(ctx, owner, key, id); err != nil {
			m.logger.Warn("monitor_delete_report_error", "owner_id", owner, "conversation_id", key.ConversationID, "message_id", id, "error", err.Error())
			errs = append(errs, fmt.Errorf("report delete of %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Monitor) reportDeleted(ctx context.Context, owner int64, key shadow.ConversationKey, id int64) error {
	old, ok := m.cache.Lookup(key, id)
	if !ok {
		return m.reporter.SendDeleteMiss(ctx, owner)
	}
	if err := m.reporter.SendDelete(ctx, owner, old); err != nil {
		return err
	}
	m.logger.Info("monitor_delete_reported", "owner_id", owner, "conversation_id", key.ConversationID, "message_id", id, "recovered", old.RecoveredPath != "")
	return nil
}

func (m *Monitor) ownerDir(owner int64) string {
	return recovery.OwnerDir(m.opts.MediaRoot, owner)
}

// IsUnattributed reports whether err came from an event without a known
// owner.
func IsUnattributed(err error) bool {
	return errors.Is(err, identity.ErrNotFound)
}
