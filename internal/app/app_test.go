package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sheraliortiqboyev4-del/spy-bot/internal/botapi"
	"github.com/stretchr/testify/require"
)

type botRecorder struct {
	mu   sync.Mutex
	sent []map[string]any
}

func (b *botRecorder) handler(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	if strings.HasSuffix(r.URL.Path, "/getMe") {
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"spy","username":"spy_bot"}}`))
		return
	}
	var payload map[string]any
	_ = json.Unmarshal(raw, &payload)
	b.mu.Lock()
	b.sent = append(b.sent, payload)
	b.mu.Unlock()
	_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
}

func (b *botRecorder) waitFor(t *testing.T, match func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		for _, p := range b.sent {
			if match(p) {
				b.mu.Unlock()
				return p
			}
		}
		b.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no matching request among %d sent", len(b.sent))
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T, rec *botRecorder) *App {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	dir := t.TempDir()
	a, err := New(ctx, Config{
		BotToken:    "T",
		BotBaseURL:  srv.URL,
		PollTimeout: time.Second,
		StateDir:    dir,
		MediaDir:    filepath.Join(dir, "media"),
		StoreDriver: "memory",
	}, quietLogger())
	require.NoError(t, err)
	return a
}

func decodeUpdate(t *testing.T, raw string) botapi.Update {
	t.Helper()
	var u botapi.Update
	require.NoError(t, json.Unmarshal([]byte(raw), &u))
	return u
}

func TestAppReportsEditToOwner(t *testing.T) {
	rec := &botRecorder{}
	a := newTestApp(t, rec)
	defer a.Close()
	ctx := context.Background()

	a.Poller.HandleUpdate(ctx, decodeUpdate(t, `{"update_id":1,"business_connection":{
		"id":"bc-1","user":{"id":42,"first_name":"Owner"},"user_chat_id":42,"is_enabled":true}}`))
	a.Poller.HandleUpdate(ctx, decodeUpdate(t, `{"update_id":2,"business_message":{
		"message_id":10,"date":1700000000,"business_connection_id":"bc-1",
		"chat":{"id":555,"type":"private"},"from":{"id":7,"first_name":"Ali"},"text":"hello"}}`))
	a.Poller.HandleUpdate(ctx, decodeUpdate(t, `{"update_id":3,"edited_business_message":{
		"message_id":10,"date":1700000000,"business_connection_id":"bc-1",
		"chat":{"id":555,"type":"private"},"from":{"id":7,"first_name":"Ali"},"text":"bye"}}`))

	report := rec.waitFor(t, func(p map[string]any) bool {
		text, _ := p["text"].(string)
		return strings.Contains(text, "hello") && strings.Contains(text, "bye")
	})
	require.EqualValues(t, 42, report["chat_id"])

	owner, err := a.Resolver.Resolve(ctx, "bc-1")
	require.NoError(t, err)
	require.Equal(t, int64(42), owner)
	require.Equal(t, 1, a.Cache.Stats().Messages)
}

func TestAppReportsDeleteMiss(t *testing.T) {
	rec := &botRecorder{}
	a := newTestApp(t, rec)
	defer a.Close()
	ctx := context.Background()

	require.NoError(t, a.Resolver.Register(ctx, "bc-2", 43))
	a.Poller.HandleUpdate(ctx, decodeUpdate(t, `{"update_id":4,"deleted_business_messages":{
		"business_connection_id":"bc-2","chat":{"id":556,"type":"private"},"message_ids":[99]}}`))

	rec.waitFor(t, func(p map[string]any) bool {
		text, _ := p["text"].(string)
		chat, _ := p["chat_id"].(float64)
		return chat == 43 && strings.Contains(text, "content not captured")
	})
}

func TestOpenStoreDrivers(t *testing.T) {
	dir := t.TempDir()
	for _, driver := range []string{"", "file", "memory", "sqlite"} {
		store, err := OpenStore(Config{StoreDriver: driver, StateDir: dir})
		require.NoError(t, err, driver)
		require.NoError(t, store.Upsert(context.Background(), "connection/x", map[string]int{"owner_id": 1}), driver)
		require.NoError(t, store.Close(), driver)
	}
	_, err := OpenStore(Config{StoreDriver: "redis", StateDir: dir})
	require.Error(t, err)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(context.Background(), Config{StoreDriver: "memory"}, quietLogger())
	require.Error(t, err)
}

type closeCounter struct{ n int }

func (c *closeCounter) Close() error { c.n++; return nil }

func TestStreamSetReplacesAndClosesAll(t *testing.T) {
	var s streamSet
	first, second, other := &closeCounter{}, &closeCounter{}, &closeCounter{}
	s.add("conn-1", first)
	s.add("conn-1", second)
	s.add("conn-2", other)
	require.Equal(t, 1, first.n)
	require.Equal(t, 2, s.len())

	s.closeAll()
	require.Equal(t, 1, second.n)
	require.Equal(t, 1, other.n)
	require.Equal(t, 0, s.len())
}
