package botapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sheraliortiqboyev4-del/spy-bot/events"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/worker"
)

const defaultUserConcurrency = 8

type Sink interface {
	Dispatch(ctx context.Context, connectionID string, ev events.Event) error
}

type Registrar interface {
	Register(ctx context.Context, handle string, owner int64) error
}

type PollerOptions struct {
	Timeout  time.Duration
	Commands *Commands
	// UserConcurrency caps private-chat work (commands, login steps,
	// greetings) running at once across users.
	UserConcurrency int
	Logger          *slog.Logger
}

// Poller long-polls the Bot API, feeds business events to the sink and
// answers private chat commands.
type Poller struct {
	client    *Client
	sink      Sink
	registrar Registrar
	commands  *Commands
	timeout   time.Duration
	userConc  int
	logger    *slog.Logger
}

// userJobs serializes work per Telegram user id off the polling loop.
type userJobs = worker.Lanes[int64, func(context.Context)]

func NewPoller(client *Client, sink Sink, registrar Registrar, opts PollerOptions) *Poller {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserConcurrency <= 0 {
		opts.UserConcurrency = defaultUserConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Poller{
		client:    client,
		sink:      sink,
		registrar: registrar,
		commands:  opts.Commands,
		timeout:   opts.Timeout,
		userConc:  opts.UserConcurrency,
		logger:    opts.Logger,
	}
}

// Run polls until ctx is canceled. Business events go to the sink; anything
// that talks back to a user runs on that user's lane so a slow reply or
// login step never holds up the loop.
func (p *Poller) Run(ctx context.Context) error {
	users := worker.NewLanes[int64](ctx, func(ctx context.Context, fn func(context.Context)) {
		fn(ctx)
	}, worker.Options[int64, func(context.Context)]{
		Concurrency: p.userConc,
		OnPanic: func(_ func(context.Context), r any) {
			p.logger.Error("telegram_user_job_panic", "panic", fmt.Sprint(r))
		},
	})
	defer users.Close()

	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, next, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if IsPollTimeout(err) {
				continue
			}
			p.logger.Warn("telegram_get_updates_error", "error", err.Error())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		offset = next
		for _, u := range updates {
			p.route(ctx, users, u)
		}
	}
}

// HandleUpdate processes u to completion on the calling goroutine.
func (p *Poller) HandleUpdate(ctx context.Context, u Update) {
	p.route(ctx, nil, u)
}

func (p *Poller) route(ctx context.Context, users *userJobs, u Update) {
	switch {
	case u.BusinessConnection != nil:
		p.onBusinessConnection(ctx, users, u.BusinessConnection)
		return
	case u.Message != nil:
		if m := u.Message; m.From != nil {
			p.forUser(ctx, users, m.From.ID, func(ctx context.Context) { p.onPrivateMessage(ctx, m) })
		}
		return
	}
	ev, ok := EventFromUpdate(u)
	if !ok {
		return
	}
	if err := p.sink.Dispatch(ctx, ev.ConnectionID, ev); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Warn("telegram_dispatch_error", "update_id", u.UpdateID, "connection_id", ev.ConnectionID, "error", err.Error())
	}
}

// forUser runs fn on the lane for user, or inline when users is nil.
func (p *Poller) forUser(ctx context.Context, users *userJobs, user int64, fn func(context.Context)) {
	if users == nil {
		fn(ctx)
		return
	}
	if err := users.Submit(user, fn); err != nil && ctx.Err() == nil {
		p.logger.Warn("telegram_user_job_error", "user_id", user, "error", err.Error())
	}
}

// onBusinessConnection registers the handle before returning so later
// events of the same batch resolve; the greeting is sent on the owner's lane.
func (p *Poller) onBusinessConnection(ctx context.Context, users *userJobs, bc *BusinessConnection) {
	if bc.User == nil || bc.ID == "" {
		return
	}
	owner := bc.User.ID
	if !bc.IsEnabled {
		p.logger.Info("telegram_business_disconnected", "connection_id", bc.ID, "owner_id", owner)
		return
	}
	if err := p.registrar.Register(ctx, bc.ID, owner); err != nil {
		p.logger.Warn("telegram_business_register_error", "connection_id", bc.ID, "owner_id", owner, "error", err.Error())
		return
	}
	p.logger.Info("telegram_business_connected", "connection_id", bc.ID, "owner_id", owner)
	chatID := bc.UserChatID
	if chatID == 0 {
		chatID = owner
	}
	p.forUser(ctx, users, owner, func(ctx context.Context) {
		if err := p.client.SendText(ctx, chatID, connectedText); err != nil {
			p.logger.Warn("telegram_send_error", "chat_id", chatID, "error", err.Error())
		}
	})
}

func (p *Poller) onPrivateMessage(ctx context.Context, m *Message) {
	if p.commands == nil || m.Chat == nil || m.Chat.Type != "private" || m.From == nil || m.Text == "" {
		return
	}
	reply := p.commands.Reply(ctx, m.From.ID, m.Text)
	if reply == "" {
		return
	}
	if err := p.client.SendText(ctx, m.Chat.ID, reply); err != nil {
		p.logger.Warn("telegram_send_error", "chat_id", m.Chat.ID, "error", err.Error())
	}
}
