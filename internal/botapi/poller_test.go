package botapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sheraliortiqboyev4-del/spy-bot/events"
	"github.com/sheraliortiqboyev4-del/spy-bot/identity"
	"github.com/sheraliortiqboyev4-del/spy-bot/onboarding"
	"github.com/sheraliortiqboyev4-del/spy-bot/shadow"
)

type captureSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *captureSink) Dispatch(_ context.Context, connectionID string, ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

type mapRegistrar map[string]int64

func (r mapRegistrar) Register(_ context.Context, handle string, owner int64) error {
	r[handle] = owner
	return nil
}

type sentMessage struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func newBotServer(t *testing.T) (*httptest.Server, *[]sentMessage) {
	t.Helper()
	var mu sync.Mutex
	sent := []sentMessage{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var msg sentMessage
		_ = json.Unmarshal(raw, &msg)
		mu.Lock()
		sent = append(sent, msg)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &sent
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEventFromUpdate(t *testing.T) {
	raw := `{"update_id":1,"business_message":{
		"message_id":10,"date":1700000000,"business_connection_id":"bc-1",
		"chat":{"id":555,"type":"private"},
		"from":{"id":7,"first_name":"Ali","username":"ali"},
		"caption":"look","has_protected_content":true,
		"photo":[{"file_id":"small"},{"file_id":"big"}],
		"reply_to_message":{"message_id":9,"voice":{"file_id":"v9"}}
	}}`
	var u Update
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	ev, ok := EventFromUpdate(u)
	if !ok {
		t.Fatalf("EventFromUpdate() ok = false")
	}
	if ev.Kind != events.KindNew || ev.ConnectionID != "bc-1" || ev.ConversationID != 555 {
		t.Fatalf("event = %+v", ev)
	}
	m := ev.Message
	if m.Text != "look" || m.SenderName != "Ali (@ali)" || !m.AtRisk || m.Media.Kind != events.MediaPhoto || m.Media.Handle.FileID != "big" {
		t.Fatalf("message = %+v", m)
	}
	if m.ReplyTo == nil || m.ReplyTo.Media.Kind != events.MediaVoice || m.ReplyTo.ConversationID != 555 {
		t.Fatalf("reply = %+v", m.ReplyTo)
	}
	if err := ev.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestEventFromDeletedUpdate(t *testing.T) {
	u := Update{DeletedBusinessMessages: &BusinessMessagesDeleted{BusinessConnectionID: "bc-1", Chat: &Chat{ID: 5}, MessageIDs: []int64{1, 2}}}
	ev, ok := EventFromUpdate(u)
	if !ok || ev.Kind != events.KindDeleted || len(ev.DeletedIDs) != 2 {
		t.Fatalf("EventFromUpdate() = %+v, %v", ev, ok)
	}
	if _, ok := EventFromUpdate(Update{Message: &Message{MessageID: 1}}); ok {
		t.Fatalf("plain message should not become an event")
	}
}

func TestAtRiskHeuristics(t *testing.T) {
	cases := []struct {
		m    Message
		want bool
	}{
		{Message{}, false},
		{Message{HasProtectedContent: true}, true},
		{Message{HasMediaSpoiler: true}, true},
		{Message{MediaGroupID: "g"}, true},
		{Message{CaptionEntities: []Entity{{Type: "bold"}}}, true},
	}
	for i, tc := range cases {
		if got := atRisk(&tc.m); got != tc.want {
			t.Fatalf("case %d atRisk() = %v", i, got)
		}
	}
}

func TestPollerBusinessConnection(t *testing.T) {
	srv, sent := newBotServer(t)
	reg := mapRegistrar{}
	p := NewPoller(NewClient(srv.Client(), srv.URL, "TOKEN"), &captureSink{}, reg, PollerOptions{Logger: quietLogger()})

	p.HandleUpdate(context.Background(), Update{BusinessConnection: &BusinessConnection{ID: "bc-9", User: &User{ID: 42}, UserChatID: 42, IsEnabled: true}})
	if reg["bc-9"] != 42 {
		t.Fatalf("registrar = %+v", reg)
	}
	if len(*sent) != 1 || (*sent)[0].ChatID != 42 || !strings.Contains((*sent)[0].Text, "Connected") {
		t.Fatalf("sent = %+v", *sent)
	}
}

func TestPollerDispatchesBusinessEvents(t *testing.T) {
	srv, _ := newBotServer(t)
	sink := &captureSink{}
	p := NewPoller(NewClient(srv.Client(), srv.URL, "TOKEN"), sink, mapRegistrar{}, PollerOptions{Logger: quietLogger()})
	p.HandleUpdate(context.Background(), Update{EditedBusinessMessage: &Message{MessageID: 3, BusinessConnectionID: "bc", Chat: &Chat{ID: 5}, Text: "x"}})
	if len(sink.events) != 1 || sink.events[0].Kind != events.KindEdited {
		t.Fatalf("events = %+v", sink.events)
	}
}

type fakeOnboarding struct {
	started  []int64
	canceled bool
	handled  []string
}

func (f *fakeOnboarding) Start(_ context.Context, owner int64) onboarding.State {
	f.started = append(f.started, owner)
	return onboarding.State{OwnerID: owner, Step: onboarding.StepAwaitingPhone}
}

func (f *fakeOnboarding) Cancel(context.Context, int64) bool { return f.canceled }

func (f *fakeOnboarding) Handle(_ context.Context, owner int64, text string) (string, bool) {
	f.handled = append(f.handled, text)
	return "code <sent>", true
}

type fakeConnections map[int64]bool

func (f fakeConnections) IsConnected(owner int64) bool { return f[owner] }
func (f fakeConnections) Connections() []identity.ConnectionRecord {
	out := make([]identity.ConnectionRecord, 0, len(f))
	for owner := range f {
		out = append(out, identity.ConnectionRecord{OwnerID: owner})
	}
	return out
}

type fixedStats shadow.Stats

func (f fixedStats) Stats() shadow.Stats { return shadow.Stats(f) }

func TestCommandsReply(t *testing.T) {
	ob := &fakeOnboarding{}
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Commands{
		Onboarding:  ob,
		Connections: fakeConnections{42: true},
		Cache:       fixedStats{Partitions: 2, Messages: 17},
		AdminID:     1,
		StartedAt:   started,
		Now:         func() time.Time { return started.Add(3*time.Hour + 4*time.Minute + 5*time.Second) },
	}
	ctx := context.Background()

	if got := c.Reply(ctx, 42, "/status"); got != connectedText {
		t.Fatalf("/status connected = %q", got)
	}
	if got := c.Reply(ctx, 43, "/status@spy_bot"); got != notConnectedText {
		t.Fatalf("/status not connected = %q", got)
	}
	if got := c.Reply(ctx, 42, "/login"); !strings.Contains(got, "phone number") || len(ob.started) != 1 {
		t.Fatalf("/login = %q", got)
	}
	if got := c.Reply(ctx, 42, "/cancel"); got != "Nothing to cancel." {
		t.Fatalf("/cancel = %q", got)
	}
	if got := c.Reply(ctx, 42, "+998901234567"); got != "code &lt;sent&gt;" {
		t.Fatalf("text reply = %q", got)
	}
	if got := c.Reply(ctx, 42, "/stats"); got != "" {
		t.Fatalf("/stats for non-admin = %q", got)
	}
	stats := c.Reply(ctx, 1, "/stats")
	if !strings.Contains(stats, "Connections:</b> 1") || !strings.Contains(stats, "17 in 2 chats") || !strings.Contains(stats, "3:04:05") {
		t.Fatalf("/stats = %q", stats)
	}
	if got := c.Reply(ctx, 42, "/unknown"); got != "" {
		t.Fatalf("unknown command = %q", got)
	}
}

func TestCommandsWithoutOnboarding(t *testing.T) {
	c := &Commands{}
	if got := c.Reply(context.Background(), 42, "/login"); got != loginOffText {
		t.Fatalf("/login = %q", got)
	}
	if got := c.Reply(context.Background(), 42, "hello"); got != "" {
		t.Fatalf("text = %q", got)
	}
}

type blockingOnboarding struct {
	fakeOnboarding
	entered chan struct{}
}

func (b *blockingOnboarding) Handle(ctx context.Context, owner int64, text string) (string, bool) {
	close(b.entered)
	<-ctx.Done()
	return "", false
}

type signalSink struct {
	got chan events.Event
}

func (s signalSink) Dispatch(_ context.Context, _ string, ev events.Event) error {
	s.got <- ev
	return nil
}

func TestPollerRunKeepsBusinessEventsFlowingDuringLogin(t *testing.T) {
	var polls int32
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/getUpdates") {
			_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
			return
		}
		mu.Lock()
		polls++
		first := polls == 1
		mu.Unlock()
		if first {
			_, _ = w.Write([]byte(`{"ok":true,"result":[
				{"update_id":1,"message":{"message_id":1,"chat":{"id":10,"type":"private"},"from":{"id":10},"text":"+15551234567"}},
				{"update_id":2,"edited_business_message":{"message_id":3,"business_connection_id":"bc","chat":{"id":5},"text":"x"}}
			]}`))
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(20 * time.Millisecond):
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	}))
	t.Cleanup(srv.Close)

	ob := &blockingOnboarding{entered: make(chan struct{})}
	sink := signalSink{got: make(chan events.Event, 1)}
	p := NewPoller(NewClient(srv.Client(), srv.URL, "TOKEN"), sink, mapRegistrar{}, PollerOptions{
		Timeout:  time.Second,
		Commands: &Commands{Onboarding: ob},
		Logger:   quietLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-ob.entered:
	case <-time.After(3 * time.Second):
		t.Fatalf("login step never started")
	}
	select {
	case ev := <-sink.got:
		if ev.Kind != events.KindEdited {
			t.Fatalf("event kind = %s", ev.Kind)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("business event held up by a pending login step")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
