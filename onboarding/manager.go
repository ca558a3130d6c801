// Package onboarding drives the phone, code and optional password login that
// produces a durable session and a live event stream.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sheraliortiqboyev4-del/spy-bot/kv"
	"golang.org/x/sync/errgroup"
)

const sessionPrefix = "session/"

type Step string

const (
	StepIdle             Step = "idle"
	StepAwaitingPhone    Step = "awaiting_phone"
	StepAwaitingCode     Step = "awaiting_code"
	StepAwaitingPassword Step = "awaiting_password"
	// StepDone is reported once a login completes; it is never stored.
	StepDone Step = "done"
)

// State is the in-flight login of one owner.
type State struct {
	OwnerID   int64
	AttemptID string
	Step      Step
	Phone     string
	CodeHash  string
	Challenge string
	StartedAt time.Time
}

func (s State) challenge() Challenge {
	return Challenge{Handle: s.Challenge, CodeHash: s.CodeHash}
}

type SessionRecord struct {
	OwnerID      int64     `json:"owner_id"`
	ConnectionID string    `json:"connection_id"`
	Blob         []byte    `json:"blob"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func SessionKey(owner int64) string {
	return sessionPrefix + strconv.FormatInt(owner, 10)
}

type Options struct {
	// StreamContext bounds launched streams. Defaults to
	// context.Background().
	StreamContext  context.Context
	ResumeParallel int
	Logger         *slog.Logger
	Now            func() time.Time
}

type Manager struct {
	transport Transport
	store     kv.Store
	registrar Registrar
	launcher  Launcher
	streamCtx context.Context
	parallel  int
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	states map[int64]State
	// live is the attached connection per owner; a newer login replaces it.
	live map[int64]LiveConnection
}

func NewManager(transport Transport, store kv.Store, registrar Registrar, launcher Launcher, opts Options) *Manager {
	if opts.StreamContext == nil {
		opts.StreamContext = context.Background()
	}
	if opts.ResumeParallel <= 0 {
		opts.ResumeParallel = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		transport: transport,
		store:     store,
		registrar: registrar,
		launcher:  launcher,
		streamCtx: opts.StreamContext,
		parallel:  opts.ResumeParallel,
		logger:    opts.Logger,
		now:       opts.Now,
		states:    make(map[int64]State),
		live:      make(map[int64]LiveConnection),
	}
}

// State returns the in-flight attempt of owner. ok is false when idle.
func (m *Manager) State(owner int64) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[owner]
	return st, ok
}

// Start begins a new attempt, replacing and releasing any in-flight one.
func (m *Manager) Start(ctx context.Context, owner int64) State {
	st := State{
		OwnerID:   owner,
		AttemptID: uuid.NewString(),
		Step:      StepAwaitingPhone,
		StartedAt: m.now().UTC(),
	}
	m.mu.Lock()
	prev, had := m.states[owner]
	m.states[owner] = st
	m.mu.Unlock()
	if had {
		m.release(ctx, prev)
	}
	m.logger.Info("onboarding_started", "owner_id", owner)
	return st
}

// Cancel drops the in-flight attempt and reports whether there was one.
func (m *Manager) Cancel(ctx context.Context, owner int64) bool {
	m.mu.Lock()
	st, ok := m.states[owner]
	delete(m.states, owner)
	m.mu.Unlock()
	if ok {
		m.release(ctx, st)
		m.logger.Info("onboarding_canceled", "owner_id", owner, "step", string(st.Step))
	}
	return ok
}

func (m *Manager) release(ctx context.Context, st State) {
	if st.Challenge == "" {
		return
	}
	if err := m.transport.Release(ctx, st.challenge()); err != nil {
		m.logger.Warn("onboarding_release_error", "owner_id", st.OwnerID, "error", err.Error())
	}
}

// SubmitPhone requests a login code. It is accepted while idle or awaiting
// a phone number.
func (m *Manager) SubmitPhone(ctx context.Context, owner int64, raw string) (State, error) {
	st, ok := m.State(owner)
	if !ok {
		st = m.Start(ctx, owner)
	} else if st.Step != StepAwaitingPhone {
		return st, fmt.Errorf("%w: %s", ErrWrongStep, st.Step)
	}
	phone, err := NormalizePhone(raw)
	if err != nil {
		return st, err
	}

	ch, err := m.transport.BeginLogin(ctx, phone)
	if err != nil {
		return m.fail(ctx, st, "begin_login", err)
	}
	next := st
	next.Step = StepAwaitingCode
	next.Phone = phone
	next.Challenge = ch.Handle
	next.CodeHash = ch.CodeHash
	if err := m.commit(st, next); err != nil {
		m.release(ctx, next)
		return st, err
	}
	m.logger.Info("onboarding_code_sent", "owner_id", owner)
	return next, nil
}

func (m *Manager) SubmitCode(ctx context.Context, owner int64, raw string) (State, error) {
	st, err := m.expect(owner, StepAwaitingCode)
	if err != nil {
		return st, err
	}
	code, err := NormalizeCode(raw)
	if err != nil {
		return st, err
	}

	conn, err := m.transport.SubmitCode(ctx, st.challenge(), st.Phone, code)
	if errors.Is(err, ErrPasswordRequired) {
		next := st
		next.Step = StepAwaitingPassword
		if err := m.commit(st, next); err != nil {
			return st, err
		}
		m.logger.Info("onboarding_password_required", "owner_id", owner)
		return next, nil
	}
	if err != nil {
		return m.fail(ctx, st, "submit_code", err)
	}
	return m.finish(ctx, st, conn)
}

func (m *Manager) SubmitPassword(ctx context.Context, owner int64, password string) (State, error) {
	st, err := m.expect(owner, StepAwaitingPassword)
	if err != nil {
		return st, err
	}
	if password == "" {
		return st, &LoginError{Code: "password_empty", Message: "Password must not be empty.", Retry: true}
	}
	conn, err := m.transport.SubmitPassword(ctx, st.challenge(), password)
	if err != nil {
		return m.fail(ctx, st, "submit_password", err)
	}
	return m.finish(ctx, st, conn)
}

// Handle routes chat input to the step the owner is at and returns the
// reply to show. handled is false when no attempt is in flight.
func (m *Manager) Handle(ctx context.Context, owner int64, text string) (reply string, handled bool) {
	st, ok := m.State(owner)
	if !ok {
		return "", false
	}
	var next State
	var err error
	switch st.Step {
	case StepAwaitingPhone:
		next, err = m.SubmitPhone(ctx, owner, text)
	case StepAwaitingCode:
		next, err = m.SubmitCode(ctx, owner, text)
	case StepAwaitingPassword:
		next, err = m.SubmitPassword(ctx, owner, text)
	default:
		return "", false
	}
	if err != nil && next.Step != StepDone {
		if retryable(err) {
			return "❌ " + Message(err), true
		}
		return "❌ " + Message(err) + "\nLogin canceled. Send /login to try again.", true
	}
	return Prompt(next.Step, err), true
}

// Prompt is the chat text shown after reaching step.
func Prompt(step Step, err error) string {
	switch step {
	case StepAwaitingPhone:
		return "📱 Send your phone number in international format, e.g. +998901234567."
	case StepAwaitingCode:
		return "🔑 Enter the login code you received. Separate the digits with dots, e.g. 1.2.3.4.5."
	case StepAwaitingPassword:
		return "🔐 Two-step verification is enabled. Send your password."
	case StepDone:
		if err != nil {
			return "✅ Connected. The session could not be saved and will need a new login after restart."
		}
		return "✅ Connected. Edited and deleted messages will be reported here."
	}
	return ""
}

func (m *Manager) expect(owner int64, step Step) (State, error) {
	st, ok := m.State(owner)
	if !ok {
		return State{OwnerID: owner, Step: StepIdle}, ErrNoAttempt
	}
	if st.Step != step {
		return st, fmt.Errorf("%w: %s", ErrWrongStep, st.Step)
	}
	return st, nil
}

// commit replaces cur with next unless the attempt changed meanwhile.
func (m *Manager) commit(cur, next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	live, ok := m.states[cur.OwnerID]
	if !ok || live.AttemptID != cur.AttemptID {
		return ErrSuperseded
	}
	m.states[cur.OwnerID] = next
	return nil
}

func (m *Manager) drop(st State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	live, ok := m.states[st.OwnerID]
	if !ok || live.AttemptID != st.AttemptID {
		return false
	}
	delete(m.states, st.OwnerID)
	return true
}

// fail keeps the step for retryable rejections and resets to idle for
// everything else.
func (m *Manager) fail(ctx context.Context, st State, op string, err error) (State, error) {
	if retryable(err) {
		m.logger.Info("onboarding_rejected", "owner_id", st.OwnerID, "op", op, "error", err.Error())
		return st, err
	}
	m.logger.Warn("onboarding_failed", "owner_id", st.OwnerID, "op", op, "step", string(st.Step), "error", err.Error())
	if m.drop(st) {
		m.release(ctx, st)
	}
	return State{OwnerID: st.OwnerID, Step: StepIdle}, err
}

// finish persists the session, registers the connection and launches its
// stream. A persistence failure is returned alongside StepDone; the stream
// runs regardless.
func (m *Manager) finish(ctx context.Context, st State, conn LiveConnection) (State, error) {
	if !m.drop(st) {
		_ = conn.Close()
		return st, ErrSuperseded
	}
	done := State{OwnerID: st.OwnerID, Step: StepDone, Phone: st.Phone, StartedAt: st.StartedAt}

	var persistErr error
	blob, err := m.transport.SerializeSession(ctx, conn)
	if err != nil {
		persistErr = fmt.Errorf("%w: serialize session: %v", kv.ErrPersistence, err)
	} else {
		rec := SessionRecord{OwnerID: st.OwnerID, ConnectionID: conn.ID(), Blob: blob, UpdatedAt: m.now().UTC()}
		if err := m.store.Upsert(ctx, SessionKey(st.OwnerID), rec); err != nil {
			persistErr = fmt.Errorf("save session: %w", err)
		}
	}
	if persistErr != nil {
		m.logger.Warn("onboarding_session_persist_error", "owner_id", st.OwnerID, "error", persistErr.Error())
	}

	m.attach(ctx, st.OwnerID, conn)
	m.logger.Info("onboarding_completed", "owner_id", st.OwnerID, "connection_id", conn.ID(), "persisted", persistErr == nil)
	return done, persistErr
}

func (m *Manager) attach(ctx context.Context, owner int64, conn LiveConnection) {
	if m.registrar != nil {
		if err := m.registrar.Register(ctx, conn.ID(), owner); err != nil {
			m.logger.Warn("onboarding_register_error", "owner_id", owner, "connection_id", conn.ID(), "error", err.Error())
		}
	}
	if m.launcher != nil {
		m.launcher.Attach(m.streamCtx, conn)
	}

	m.mu.Lock()
	prev := m.live[owner]
	m.live[owner] = conn
	m.mu.Unlock()
	if prev != nil && prev != conn {
		if err := prev.Close(); err != nil {
			m.logger.Warn("onboarding_replaced_close_error", "owner_id", owner, "connection_id", prev.ID(), "error", err.Error())
		}
		m.logger.Info("onboarding_connection_replaced", "owner_id", owner, "old_connection_id", prev.ID(), "connection_id", conn.ID())
	}
}

// ResumeAll reopens every stored session. Individual failures are logged and
// do not stop the others; it returns the number of resumed sessions.
func (m *Manager) ResumeAll(ctx context.Context) (int, error) {
	recs, err := m.store.Scan(ctx, sessionPrefix)
	if err != nil {
		return 0, fmt.Errorf("scan sessions: %w", err)
	}
	var (
		mu      sync.Mutex
		resumed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallel)
	for _, rec := range recs {
		rec := rec
		g.Go(func() error {
			var sr SessionRecord
			if err := rec.Decode(&sr); err != nil {
				m.logger.Warn("onboarding_resume_decode_error", "key", rec.Key, "error", err.Error())
				return nil
			}
			if sr.OwnerID == 0 {
				sr.OwnerID, _ = strconv.ParseInt(strings.TrimPrefix(rec.Key, sessionPrefix), 10, 64)
			}
			conn, err := m.transport.ResumeSession(gctx, sr.Blob)
			if err != nil {
				m.logger.Warn("onboarding_resume_error", "owner_id", sr.OwnerID, "error", err.Error())
				return nil
			}
			m.attach(gctx, sr.OwnerID, conn)
			mu.Lock()
			resumed++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	m.logger.Info("onboarding_resumed", "sessions", len(recs), "resumed", resumed)
	return resumed, nil
}
