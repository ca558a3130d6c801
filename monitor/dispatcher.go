package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/sheraliortiqboyev4-del/spy-bot/events"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/worker"
)

const (
	DefaultMaxConcurrency = 16
	defaultBacklogWarn    = 256
)

var ErrClosed = worker.ErrClosed

type EventHandler interface {
	HandleEvent(ctx context.Context, connectionID string, ev events.Event) error
}

// Stream is a live connection yielding normalized events until it closes.
type Stream interface {
	ID() string
	Events() <-chan events.Event
}

type DispatcherOptions struct {
	MaxConcurrency int
	// BacklogWarn logs monitor_lane_backlog whenever one conversation's
	// queue grows by this many events.
	BacklogWarn int
	Logger         *slog.Logger
}

type job struct {
	connectionID string
	event        events.Event
}

type workerKey struct {
	connectionID   string
	conversationID int64
}

// Dispatcher runs one worker per conversation so events of a conversation
// are handled in arrival order while different conversations proceed in
// parallel, bounded by MaxConcurrency.
type Dispatcher struct {
	handler EventHandler
	logger  *slog.Logger
	lanes   *worker.Lanes[workerKey, job]
}

func NewDispatcher(ctx context.Context, handler EventHandler, opts DispatcherOptions) *Dispatcher {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.BacklogWarn <= 0 {
		opts.BacklogWarn = defaultBacklogWarn
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Dispatcher{handler: handler, logger: opts.Logger}
	d.lanes = worker.NewLanes[workerKey](ctx, d.handle, worker.Options[workerKey, job]{
		Concurrency: opts.MaxConcurrency,
		BacklogWarn: opts.BacklogWarn,
		OnBacklog:   d.logBacklog,
		OnPanic:     d.logPanic,
	})
	return d
}

// Dispatch queues ev for its conversation worker and returns without
// waiting for earlier events of that conversation.
func (d *Dispatcher) Dispatch(ctx context.Context, connectionID string, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.ConnectionID == "" {
		ev.ConnectionID = connectionID
	}
	key := workerKey{connectionID: ev.ConnectionID, conversationID: ev.ConversationID}
	return d.lanes.Submit(key, job{connectionID: ev.ConnectionID, event: ev})
}

func (d *Dispatcher) logBacklog(key workerKey, queued int) {
	d.logger.Warn("monitor_lane_backlog",
		"connection_id", key.connectionID,
		"conversation_id", key.conversationID,
		"queued", queued,
	)
}

func (d *Dispatcher) handle(ctx context.Context, j job) {
	if err := d.handler.HandleEvent(ctx, j.connectionID, j.event); err != nil {
		if IsUnattributed(err) {
			return
		}
		d.logger.Warn("monitor_event_error",
			"connection_id", j.connectionID,
			"conversation_id", j.event.ConversationID,
			"kind", string(j.event.Kind),
			"error", err.Error(),
		)
	}
}

func (d *Dispatcher) logPanic(j job, r any) {
	d.logger.Error("monitor_worker_panic",
		"connection_id", j.connectionID,
		"conversation_id", j.event.ConversationID,
		"kind", string(j.event.Kind),
		"panic", fmt.Sprint(r),
		"stack", string(debug.Stack()),
	)
}

// Attach pumps events from s until it closes, ctx ends or the dispatcher
// is closed.
func (d *Dispatcher) Attach(ctx context.Context, s Stream) {
	err := d.lanes.Go(func(lanesCtx context.Context) {
		id := s.ID()
		d.logger.Info("monitor_stream_attached", "connection_id", id)
		defer d.logger.Info("monitor_stream_detached", "connection_id", id)
		ch := s.Events()
		for {
			select {
			case <-ctx.Done():
				return
			case <-lanesCtx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if err := d.Dispatch(ctx, id, ev); err != nil {
					if errors.Is(err, ErrClosed) || ctx.Err() != nil || lanesCtx.Err() != nil {
						return
					}
					d.logger.Warn("monitor_dispatch_error", "connection_id", id, "error", err.Error())
				}
			}
		}
	})
	if err != nil {
		d.logger.Warn("monitor_attach_error", "connection_id", s.ID(), "error", err.Error())
	}
}

// Workers reports conversations with queued or running events.
func (d *Dispatcher) Workers() int {
	return d.lanes.Len()
}

// Close stops accepting events, cancels in-flight work and waits for all
// workers and attached streams to return.
func (d *Dispatcher) Close() {
	d.lanes.Close()
}
