package httpserver

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sheraliortiqboyev4-del/spy-bot/identity"
	"github.com/sheraliortiqboyev4-del/spy-bot/kv"
	"github.com/sheraliortiqboyev4-del/spy-bot/shadow"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *identity.Resolver, *shadow.Cache) {
	t.Helper()
	resolver := identity.New(kv.NewMemoryStore(), identity.Options{})
	cache := shadow.New(10)
	srv := New(resolver, cache, Options{StartedAt: time.Now().Add(-time.Minute)})
	return srv, resolver, cache
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, resolver, cache := newTestServer(t)
	require.NoError(t, resolver.Register(context.Background(), "conn-a", 42))
	cache.Record(shadow.ConversationKey{OwnerID: 42, ConversationID: 7}, shadow.ObservedMessage{MessageID: 1, Text: "hi"})

	rec := get(t, srv.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.OK)
	require.Equal(t, 1, body.Connections)
	require.Equal(t, 1, body.CachedMessages)
	require.Equal(t, 1, body.Conversations)
	require.GreaterOrEqual(t, body.UptimeSeconds, int64(59))
}

func TestGetConnection(t *testing.T) {
	srv, resolver, _ := newTestServer(t)
	require.NoError(t, resolver.Register(context.Background(), "conn-a", 42))

	rec := get(t, srv.Handler(), "/v1/connections/conn-a")
	require.Equal(t, http.StatusOK, rec.Code)
	var body connectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(42), body.OwnerID)

	rec = get(t, srv.Handler(), "/v1/connections/unknown")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListConnections(t *testing.T) {
	srv, resolver, _ := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, resolver.Register(ctx, "conn-b", 2))
	require.NoError(t, resolver.Register(ctx, "conn-a", 1))

	rec := get(t, srv.Handler(), "/v1/connections")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Connections []connectionResponse `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Connections, 2)
}

func TestRunStopsOnCancel(t *testing.T) {
	resolver := identity.New(kv.NewMemoryStore(), identity.Options{})
	srv := New(resolver, shadow.New(1), Options{Bind: "127.0.0.1", Port: freePort(t)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}
