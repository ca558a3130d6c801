// Package app owns the long-lived components and wires them together.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sheraliortiqboyev4-del/spy-bot/db"
	"github.com/sheraliortiqboyev4-del/spy-bot/events"
	"github.com/sheraliortiqboyev4-del/spy-bot/identity"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/botapi"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/fsstore"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/gateway"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/httpserver"
	"github.com/sheraliortiqboyev4-del/spy-bot/kv"
	"github.com/sheraliortiqboyev4-del/spy-bot/monitor"
	"github.com/sheraliortiqboyev4-del/spy-bot/notify"
	"github.com/sheraliortiqboyev4-del/spy-bot/onboarding"
	"github.com/sheraliortiqboyev4-del/spy-bot/recovery"
	"github.com/sheraliortiqboyev4-del/spy-bot/shadow"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	BotToken    string
	BotBaseURL  string
	PollTimeout time.Duration
	AdminID     int64

	MaxPerConversation int
	StateDir           string
	MediaDir           string
	RecoveryMaxBytes   int64
	Coalesce           bool
	Signature          string
	CaptureNotice      bool
	MaxConcurrency     int

	// StoreDriver is one of file, sqlite or memory.
	StoreDriver string
	SQLiteDSN   string

	GatewayEnabled bool
	GatewayURL     string
	GatewayToken   string

	ServerEnabled bool
	ServerBind    string
	ServerPort    int
}

type App struct {
	cfg    Config
	logger *slog.Logger

	Store      kv.Store
	Resolver   *identity.Resolver
	Cache      *shadow.Cache
	Recoverer  *recovery.Recoverer
	Notifier   *notify.Notifier
	Monitor    *monitor.Monitor
	Dispatcher *monitor.Dispatcher
	Bot        *botapi.Client
	Poller     *botapi.Poller
	Gateway    *gateway.Client
	Onboarding *onboarding.Manager
	Server     *httpserver.Server

	streams *streamSet
}

// New builds every component. ctx bounds the dispatcher and launched
// streams.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, fmt.Errorf("missing telegram.bot_token")
	}
	startedAt := time.Now()

	store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger, Store: store, streams: &streamSet{}}
	a.Resolver = identity.New(store, identity.Options{Logger: logger})
	a.Cache = shadow.New(cfg.MaxPerConversation)

	httpClient := &http.Client{Timeout: cfg.PollTimeout + 30*time.Second}
	a.Bot = botapi.NewClient(httpClient, cfg.BotBaseURL, cfg.BotToken)

	router := recovery.Router{events.OriginBotAPI: a.Bot}
	if cfg.GatewayEnabled {
		a.Gateway, err = gateway.NewClient(cfg.GatewayURL, cfg.GatewayToken, gateway.Options{Logger: logger})
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		router[events.OriginGateway] = a.Gateway
	}

	a.Recoverer = recovery.New(router, recovery.Options{
		MaxBytes: cfg.RecoveryMaxBytes,
		Coalesce: cfg.Coalesce,
		Logger:   logger,
	})
	a.Notifier = notify.New(a.Bot, notify.Options{Signature: cfg.Signature, Logger: logger})
	a.Monitor = monitor.New(a.Cache, a.Resolver, a.Recoverer, a.Notifier, monitor.Options{
		MediaRoot:     cfg.MediaDir,
		CaptureNotice: cfg.CaptureNotice,
		Logger:        logger,
	})
	a.Dispatcher = monitor.NewDispatcher(ctx, a.Monitor, monitor.DispatcherOptions{
		MaxConcurrency: cfg.MaxConcurrency,
		Logger:         logger,
	})

	commands := &botapi.Commands{
		Connections: a.Resolver,
		Cache:       a.Cache,
		AdminID:     cfg.AdminID,
		StartedAt:   startedAt,
	}
	if a.Gateway != nil {
		a.Onboarding = onboarding.NewManager(a.Gateway, store, a.Resolver, a.launcher(), onboarding.Options{
			StreamContext: ctx,
			Logger:        logger,
		})
		commands.Onboarding = a.Onboarding
	}
	a.Poller = botapi.NewPoller(a.Bot, a.Dispatcher, a.Resolver, botapi.PollerOptions{
		Timeout:  cfg.PollTimeout,
		Commands: commands,
		Logger:   logger,
	})
	if cfg.ServerEnabled {
		a.Server = httpserver.New(a.Resolver, a.Cache, httpserver.Options{
			Bind:      cfg.ServerBind,
			Port:      cfg.ServerPort,
			StartedAt: startedAt,
			Logger:    logger,
		})
	}
	return a, nil
}

// OpenStore opens the durable record store selected by cfg.StoreDriver.
func OpenStore(cfg Config) (kv.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StoreDriver)) {
	case "", "file":
		return kv.NewFileStore(cfg.StateDir)
	case "sqlite":
		dsn := strings.TrimSpace(cfg.SQLiteDSN)
		if dsn == "" {
			dsn = filepath.Join(cfg.StateDir, "spybot.sqlite")
		}
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := fsstore.EnsureDir(filepath.Dir(dsn), 0o700); err != nil {
				return nil, err
			}
		}
		dbCfg := db.DefaultConfig()
		dbCfg.DSN = dsn
		gdb, err := db.Open(dbCfg)
		if err != nil {
			return nil, err
		}
		return kv.NewSQLStore(gdb)
	case "memory":
		return kv.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store.driver: %s", cfg.StoreDriver)
	}
}

// Run loads durable state, resumes stored sessions and serves until ctx is
// cancelled. It always releases resources before returning.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	if err := a.Resolver.Load(ctx); err != nil {
		return fmt.Errorf("load connections: %w", err)
	}
	me, err := a.Bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	a.logger.Info("spybot_start", "bot", me.Username, "connections", len(a.Resolver.Connections()))
	if a.Onboarding != nil {
		if _, err := a.Onboarding.ResumeAll(ctx); err != nil {
			a.logger.Warn("spybot_resume_error", "error", err.Error())
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Poller.Run(gctx) })
	if a.Server != nil {
		g.Go(func() error { return a.Server.Run(gctx) })
	}
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops streams and workers, flushes pending registrations and closes
// the store.
func (a *App) Close() {
	a.streams.closeAll()
	a.Dispatcher.Close()
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Resolver.Flush(flushCtx); err != nil {
		a.logger.Warn("spybot_flush_error", "pending", a.Resolver.Pending(), "error", err.Error())
	}
	if err := a.Store.Close(); err != nil {
		a.logger.Warn("spybot_store_close_error", "error", err.Error())
	}
}

func (a *App) launcher() onboarding.Launcher {
	return &trackingLauncher{dispatcher: a.Dispatcher, streams: a.streams}
}

// trackingLauncher attaches streams to the dispatcher and remembers the
// closable ones for shutdown.
type trackingLauncher struct {
	dispatcher *monitor.Dispatcher
	streams    *streamSet
}

func (l *trackingLauncher) Attach(ctx context.Context, s monitor.Stream) {
	if c, ok := s.(io.Closer); ok {
		l.streams.add(s.ID(), c)
	}
	l.dispatcher.Attach(ctx, s)
}

type streamSet struct {
	mu    sync.Mutex
	byID  map[string]io.Closer
	order []string
}

// add replaces and closes any earlier stream with the same id.
func (s *streamSet) add(id string, c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byID == nil {
		s.byID = make(map[string]io.Closer)
	}
	if prev, ok := s.byID[id]; ok && prev != c {
		_ = prev.Close()
	} else if !ok {
		s.order = append(s.order, id)
	}
	s.byID[id] = c
}

func (s *streamSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *streamSet) closeAll() {
	s.mu.Lock()
	closers := make([]io.Closer, 0, len(s.order))
	for _, id := range s.order {
		closers = append(closers, s.byID[id])
	}
	s.byID = nil
	s.order = nil
	s.mu.Unlock()
	for _, c := range closers {
		_ = c.Close()
	}
}
