package onboarding

import (
	"context"

	"github.com/sheraliortiqboyev4-del/spy-bot/monitor"
)

// Challenge identifies a pending login on the transport.
type Challenge struct {
	Handle   string `json:"handle"`
	CodeHash string `json:"code_hash"`
}

// LiveConnection is an authorized session streaming events.
type LiveConnection interface {
	monitor.Stream
	Close() error
}

type Transport interface {
	BeginLogin(ctx context.Context, phone string) (Challenge, error)
	// SubmitCode returns ErrPasswordRequired when a password step follows.
	SubmitCode(ctx context.Context, ch Challenge, phone, code string) (LiveConnection, error)
	SubmitPassword(ctx context.Context, ch Challenge, password string) (LiveConnection, error)
	SerializeSession(ctx context.Context, conn LiveConnection) ([]byte, error)
	ResumeSession(ctx context.Context, blob []byte) (LiveConnection, error)
	// Release drops a challenge that will not be completed.
	Release(ctx context.Context, ch Challenge) error
}

type Launcher interface {
	Attach(ctx context.Context, s monitor.Stream)
}

type Registrar interface {
	Register(ctx context.Context, handle string, owner int64) error
}
