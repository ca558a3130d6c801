package botapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sheraliortiqboyev4-del/spy-bot/events"
	"github.com/sheraliortiqboyev4-del/spy-bot/recovery"
)

func TestGetUpdatesAdvancesOffset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/botTOKEN/getUpdates") {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("offset"); got != "7" {
			t.Fatalf("offset = %q, want 7", got)
		}
		if !strings.Contains(r.URL.Query().Get("allowed_updates"), "deleted_business_messages") {
			t.Fatalf("allowed_updates = %q", r.URL.Query().Get("allowed_updates"))
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":[{"update_id":7},{"update_id":9,"business_message":{"message_id":1}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "TOKEN")
	updates, next, err := c.GetUpdates(context.Background(), 7, time.Second)
	if err != nil {
		t.Fatalf("GetUpdates() error = %v", err)
	}
	if len(updates) != 2 || next != 10 {
		t.Fatalf("GetUpdates() = %d updates, next %d", len(updates), next)
	}
	if updates[1].BusinessMessage == nil || updates[1].BusinessMessage.MessageID != 1 {
		t.Fatalf("business message not decoded: %+v", updates[1])
	}
}

func TestFetchDownloadsFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getFile"):
			if r.URL.Query().Get("file_id") != "AgAD" {
				t.Fatalf("file_id = %q", r.URL.Query().Get("file_id"))
			}
			_, _ = w.Write([]byte(`{"ok":true,"result":{"file_id":"AgAD","file_size":5,"file_path":"photos/file_3.jpg"}}`))
		case r.URL.Path == "/file/botTOKEN/photos/file_3.jpg":
			_, _ = w.Write([]byte("jpeg!"))
		default:
			t.Fatalf("unexpected request: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "TOKEN")
	dl, err := c.Fetch(context.Background(), events.MediaHandle{Origin: events.OriginBotAPI, FileID: "AgAD"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	defer dl.Body.Close()
	raw, _ := io.ReadAll(dl.Body)
	if string(raw) != "jpeg!" || dl.Name != "file_3.jpg" || dl.Size != 5 {
		t.Fatalf("Fetch() = %q name=%q size=%d", raw, dl.Name, dl.Size)
	}
}

func TestFetchExpiredHandleIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: invalid file_id"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "TOKEN")
	_, err := c.Fetch(context.Background(), events.MediaHandle{Origin: events.OriginBotAPI, FileID: "gone"})
	if !errors.Is(err, recovery.ErrUnavailable) {
		t.Fatalf("Fetch() error = %v, want ErrUnavailable", err)
	}
}

func TestSendMediaUsesTypedMethod(t *testing.T) {
	var paths []string
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		bodies = append(bodies, body)
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "TOKEN")
	ctx := context.Background()
	voice := events.Media{Kind: events.MediaVoice, Handle: events.MediaHandle{Origin: events.OriginBotAPI, FileID: "v1"}}
	if err := c.SendMedia(ctx, 42, voice, "<b>deleted</b>"); err != nil {
		t.Fatalf("SendMedia(voice) error = %v", err)
	}
	note := events.Media{Kind: events.MediaVideoNote, Handle: events.MediaHandle{Origin: events.OriginBotAPI, FileID: "n1"}}
	if err := c.SendMedia(ctx, 42, note, "ignored"); err != nil {
		t.Fatalf("SendMedia(video_note) error = %v", err)
	}

	if !strings.HasSuffix(paths[0], "/sendVoice") || bodies[0]["voice"] != "v1" || bodies[0]["parse_mode"] != "HTML" {
		t.Fatalf("voice request = %s %+v", paths[0], bodies[0])
	}
	if !strings.HasSuffix(paths[1], "/sendVideoNote") || bodies[1]["video_note"] != "n1" {
		t.Fatalf("video note request = %s %+v", paths[1], bodies[1])
	}
	if _, ok := bodies[1]["caption"]; ok {
		t.Fatalf("video note should not carry a caption")
	}

	gw := events.Media{Kind: events.MediaPhoto, Handle: events.MediaHandle{Origin: events.OriginGateway, FileID: "x"}}
	if err := c.SendMedia(ctx, 42, gw, ""); !errors.Is(err, recovery.ErrUnavailable) {
		t.Fatalf("SendMedia(gateway) error = %v", err)
	}
}

func TestSendFileUploadsDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo_1.jpg")
	if err := os.WriteFile(path, []byte("img"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendDocument") {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm() error = %v", err)
		}
		if r.FormValue("chat_id") != "42" || r.FormValue("parse_mode") != "HTML" || r.FormValue("caption") != "<b>saved</b>" {
			t.Fatalf("form = %+v", r.MultipartForm.Value)
		}
		f, hdr, err := r.FormFile("document")
		if err != nil {
			t.Fatalf("FormFile() error = %v", err)
		}
		raw, _ := io.ReadAll(f)
		if hdr.Filename != "photo_1.jpg" || string(raw) != "img" {
			t.Fatalf("upload = %q %q", hdr.Filename, raw)
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "TOKEN")
	if err := c.SendFile(context.Background(), 42, path, "<b>saved</b>"); err != nil {
		t.Fatalf("SendFile() error = %v", err)
	}
}

func TestRequestErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "TOKEN")
	err := c.SendText(context.Background(), 1, "hi")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.StatusCode != http.StatusForbidden {
		t.Fatalf("SendText() error = %v", err)
	}
	if !strings.Contains(err.Error(), "blocked by the user") {
		t.Fatalf("error text = %q", err.Error())
	}
	if IsBadRequest(err) {
		t.Fatalf("IsBadRequest() = true for 403")
	}
}

func TestDownloadOutlivesRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("part-1,"))
		w.(http.Flusher).Flush()
		time.Sleep(150 * time.Millisecond)
		_, _ = w.Write([]byte("part-2"))
	}))
	defer srv.Close()

	hc := srv.Client()
	hc.Timeout = 50 * time.Millisecond
	c := NewClient(hc, srv.URL, "TOKEN")
	body, _, err := c.Download(context.Background(), "videos/file_1.mp4")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body error = %v", err)
	}
	if string(raw) != "part-1,part-2" {
		t.Fatalf("body = %q", raw)
	}

	ctx, cancel := context.WithCancel(context.Background())
	body, _, err = c.Download(ctx, "videos/file_1.mp4")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer body.Close()
	cancel()
	if _, err := io.ReadAll(body); err == nil {
		t.Fatalf("read after cancel succeeded, want context error")
	}
}
