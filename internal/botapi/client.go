package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sheraliortiqboyev4-del/spy-bot/internal/outputfmt"
)

const (
	DefaultBaseURL = "https://api.telegram.org"
	ParseModeHTML  = "HTML"
)

// AllowedUpdates are the update types the poller asks for.
var AllowedUpdates = []string{
	"message",
	"business_connection",
	"business_message",
	"edited_business_message",
	"deleted_business_messages",
}

type Client struct {
	http *http.Client
	// files has no overall timeout so large downloads are bounded by ctx only.
	files   *http.Client
	baseURL string
	token   string
}

func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    httpClient,
		files:   WithoutTimeout(httpClient),
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// WithoutTimeout returns a copy of hc sharing its transport but with no
// overall deadline, for streaming bodies whose length is unknown.
func WithoutTimeout(hc *http.Client) *http.Client {
	cp := *hc
	cp.Timeout = 0
	return &cp
}

type RequestError struct {
	Method      string
	StatusCode  int
	ErrorCode   int
	Description string
	Body        string
}

func (e *RequestError) Error() string {
	if e == nil {
		return "telegram request failed"
	}
	desc := strings.TrimSpace(e.Description)
	if desc == "" {
		desc = strings.TrimSpace(e.Body)
	}
	if desc == "" {
		return fmt.Sprintf("telegram %s http %d", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("telegram %s http %d: %s", e.Method, e.StatusCode, desc)
}

// IsBadRequest reports a 400 answer, which Telegram uses for expired or
// inaccessible file ids.
func IsBadRequest(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && (reqErr.StatusCode == http.StatusBadRequest || reqErr.ErrorCode == http.StatusBadRequest)
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

func (c *Client) postJSON(ctx context.Context, method string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

func decodeResult[T any](raw []byte, status int, method string) (T, error) {
	var out response[T]
	_ = json.Unmarshal(raw, &out)
	if status < 200 || status >= 300 || !out.OK {
		return out.Result, &RequestError{
			Method:      method,
			StatusCode:  status,
			ErrorCode:   out.ErrorCode,
			Description: out.Description,
			Body:        strings.TrimSpace(string(raw)),
		}
	}
	return out.Result, nil
}

// send runs req and strips the token from transport error URLs.
func (c *Client) send(hc *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := hc.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = outputfmt.SanitizeErrorText(ue.URL)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(req *http.Request, method string, out any) error {
	hc := c.http
	if strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/") {
		hc = c.files
	}
	resp, err := c.send(hc, req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	result, err := decodeResult[json.RawMessage](raw, resp.StatusCode, method)
	if err != nil {
		return err
	}
	if out == nil || len(result) == 0 {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.methodURL("getMe"), nil)
	if err != nil {
		return nil, err
	}
	var out User
	if err := c.do(req, "getMe", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUpdates long-polls for updates after offset and returns the next
// offset to use.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(secs))
	if offset > 0 {
		q.Set("offset", strconv.FormatInt(offset, 10))
	}
	allowed, _ := json.Marshal(AllowedUpdates)
	q.Set("allowed_updates", string(allowed))

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.methodURL("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, offset, err
	}
	var out []Update
	if err := c.do(req, "getUpdates", &out); err != nil {
		return nil, offset, err
	}
	next := offset
	for _, u := range out {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return out, next, nil
}

func IsPollTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "client.timeout exceeded")
}

func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, fmt.Errorf("missing file_id")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.methodURL("getFile")+"?file_id="+url.QueryEscape(fileID), nil)
	if err != nil {
		return nil, err
	}
	var out File
	if err := c.do(req, "getFile", &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.FilePath) == "" {
		return nil, fmt.Errorf("telegram getFile: missing file_path")
	}
	return &out, nil
}

// Download opens the file at filePath as returned by GetFile. The caller
// closes the body.
func (c *Client) Download(ctx context.Context, filePath string) (io.ReadCloser, int64, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return nil, 0, fmt.Errorf("missing file_path")
	}
	u := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, strings.TrimLeft(filePath, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.send(c.files, req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, 0, &RequestError{Method: "download", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return resp.Body, resp.ContentLength, nil
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text, parseMode string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	return c.postJSON(ctx, "sendMessage", sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             parseMode,
		DisableWebPagePreview: true,
	}, nil)
}

// SendByFileID re-sends an existing file id with one of the typed send
// methods, e.g. sendPhoto with field "photo".
func (c *Client) SendByFileID(ctx context.Context, method, field string, chatID int64, fileID, caption string) error {
	payload := map[string]any{
		"chat_id": chatID,
		field:     fileID,
	}
	if caption = strings.TrimSpace(caption); caption != "" {
		payload["caption"] = caption
		payload["parse_mode"] = ParseModeHTML
	}
	return c.postJSON(ctx, method, payload, nil)
}

// SendDocument uploads a local file.
func (c *Client) SendDocument(ctx context.Context, chatID int64, filePath, filename, caption string) error {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return fmt.Errorf("missing file path")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("path is a directory: %s", filePath)
	}

	filename = strings.TrimSpace(filename)
	if filename == "" {
		filename = filepath.Base(filePath)
	}
	caption = strings.TrimSpace(caption)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		defer mw.Close()

		_ = mw.WriteField("chat_id", strconv.FormatInt(chatID, 10))
		if caption != "" {
			_ = mw.WriteField("caption", caption)
			_ = mw.WriteField("parse_mode", ParseModeHTML)
		}

		part, err := mw.CreateFormFile("document", filename)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendDocument"), pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, "sendDocument", nil)
}
