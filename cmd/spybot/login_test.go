package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sheraliortiqboyev4-del/spy-bot/identity"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/clifmt"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/gateway"
	"github.com/sheraliortiqboyev4-del/spy-bot/kv"
	"github.com/sheraliortiqboyev4-del/spy-bot/onboarding"
)

func fakeGateway(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/login":
			_, _ = io.WriteString(w, `{"handle":"h-1","code_hash":"ch"}`)
		case "/v1/login/code":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["code"] != "12345" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"error":"PHONE_CODE_INVALID","message":"Wrong code.","retry":true}`)
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"SESSION_PASSWORD_NEEDED"}`)
		case "/v1/login/password":
			_, _ = io.WriteString(w, `{"connection_id":"conn-9"}`)
		case "/v1/sessions/conn-9/export":
			_ = json.NewEncoder(w).Encode(map[string][]byte{"blob": []byte("session")})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func stdinFile(t *testing.T, lines ...string) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stdin")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestRunLoginStoresSession(t *testing.T) {
	clifmt.SetColor(false)
	srv := fakeGateway(t)
	gw, err := gateway.NewClient(srv.URL, "", gateway.Options{})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	store := kv.NewMemoryStore()
	resolver := identity.New(store, identity.Options{})
	mgr := onboarding.NewManager(gw, store, resolver, closingLauncher{}, onboarding.Options{})

	var out bytes.Buffer
	in := stdinFile(t, "+998 90 123 45 67", "1.1.1.1.1", "1.2.3.4.5", "hunter2")
	if err := runLogin(context.Background(), mgr, 42, in, &out); err != nil {
		t.Fatalf("runLogin() error = %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "Wrong code.") {
		t.Fatalf("output missing retry message:\n%s", out.String())
	}

	var rec onboarding.SessionRecord
	ok, err := store.Get(context.Background(), onboarding.SessionKey(42), &rec)
	if err != nil || !ok {
		t.Fatalf("session not stored: ok=%v err=%v", ok, err)
	}
	if string(rec.Blob) != "session" || rec.ConnectionID != "conn-9" {
		t.Fatalf("session = %+v", rec)
	}
	if owner, _ := resolver.OwnerForConnection("conn-9"); owner != 42 {
		t.Fatalf("owner = %d", owner)
	}
}
