package botapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sheraliortiqboyev4-del/spy-bot/identity"
	"github.com/sheraliortiqboyev4-del/spy-bot/onboarding"
	"github.com/sheraliortiqboyev4-del/spy-bot/shadow"
	"golang.org/x/net/html"
)

type Onboarding interface {
	Start(ctx context.Context, owner int64) onboarding.State
	Cancel(ctx context.Context, owner int64) bool
	Handle(ctx context.Context, owner int64, text string) (string, bool)
}

type ConnectionView interface {
	IsConnected(owner int64) bool
	Connections() []identity.ConnectionRecord
}

type CacheStats interface {
	Stats() shadow.Stats
}

// Commands answers private chat commands and forwards other private text
// to an in-flight login.
type Commands struct {
	// Onboarding is nil when no session gateway is configured.
	Onboarding  Onboarding
	Connections ConnectionView
	Cache       CacheStats
	AdminID     int64
	StartedAt   time.Time
	Now         func() time.Time
}

const (
	startText = "👋 <b>Welcome!</b>\nI report edited and deleted messages from your business chats and save protected media.\n\n" +
		"Connect me in Settings → Telegram Business → Chatbots, or send /login to link an account by phone."
	notConnectedText = "❌ <b>Not connected.</b>\nAdd this bot in Settings → Telegram Business → Chatbots, or send /login."
	connectedText    = "✅ <b>Connected.</b> Edited and deleted messages will be reported here."
	loginOffText     = "Login by phone is not enabled on this bot."
)

// Reply returns the answer to text sent by userID in a private chat, or ""
// when nothing should be sent.
func (c *Commands) Reply(ctx context.Context, userID int64, text string) string {
	text = strings.TrimSpace(text)
	cmd, _ := splitCommand(text)
	switch cmd {
	case "/start":
		return startText
	case "/status":
		if c.Connections != nil && c.Connections.IsConnected(userID) {
			return connectedText
		}
		return notConnectedText
	case "/login":
		if c.Onboarding == nil {
			return loginOffText
		}
		c.Onboarding.Start(ctx, userID)
		return html.EscapeString(onboarding.Prompt(onboarding.StepAwaitingPhone, nil))
	case "/cancel":
		if c.Onboarding != nil && c.Onboarding.Cancel(ctx, userID) {
			return "Login canceled."
		}
		return "Nothing to cancel."
	case "/stats":
		if c.AdminID == 0 || userID != c.AdminID {
			return ""
		}
		return c.stats()
	}
	if c.Onboarding == nil || strings.HasPrefix(text, "/") {
		return ""
	}
	reply, _ := c.Onboarding.Handle(ctx, userID, text)
	return html.EscapeString(reply)
}

func (c *Commands) stats() string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	var conns int
	if c.Connections != nil {
		conns = len(c.Connections.Connections())
	}
	var st shadow.Stats
	if c.Cache != nil {
		st = c.Cache.Stats()
	}
	up := now().Sub(c.StartedAt).Round(time.Second)
	h := int(up.Hours())
	m := int(up.Minutes()) % 60
	s := int(up.Seconds()) % 60
	return fmt.Sprintf("📊 <b>Bot stats</b>\n\n👤 <b>Connections:</b> %d\n📨 <b>Cached messages:</b> %d in %d chats\n⏳ <b>Uptime:</b> %d:%02d:%02d",
		conns, st.Messages, st.Partitions, h, m, s)
}

// splitCommand returns the command without any @botname suffix.
func splitCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, rest, _ := strings.Cut(text, " ")
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(rest)
}
