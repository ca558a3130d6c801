// Package gateway talks to the session gateway that holds user-account
// sessions: login steps, session export and resume, media download and the
// live event stream.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sheraliortiqboyev4-del/spy-bot/events"
	"github.com/sheraliortiqboyev4-del/spy-bot/onboarding"
	"github.com/sheraliortiqboyev4-del/spy-bot/recovery"
)

const errPasswordNeeded = "SESSION_PASSWORD_NEEDED"

type Options struct {
	HTTPClient *http.Client
	// ReconnectDelay is the pause between stream reconnects.
	ReconnectDelay time.Duration
	EventBuffer    int
	Logger         *slog.Logger
}

type Client struct {
	http *http.Client
	// media shares http's transport without the overall timeout; media
	// bodies are bounded by the caller's context.
	media   *http.Client
	baseURL string
	token   string
	opts    Options
}

func NewClient(baseURL, token string, opts Options) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("gateway url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("gateway url: %w", err)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	media := *opts.HTTPClient
	media.Timeout = 0
	return &Client{http: opts.HTTPClient, media: &media, baseURL: baseURL, token: strings.TrimSpace(token), opts: opts}, nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Retry   bool   `json:"retry,omitempty"`
}

// APIError is a non-2xx gateway answer.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Retry      bool
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	return fmt.Sprintf("gateway http %d: %s", e.StatusCode, msg)
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		if eb.Error == "" {
			eb.Message = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Code: eb.Error, Message: eb.Message, Retry: eb.Retry}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gateway %s %s: decode: %w", method, path, err)
	}
	return nil
}

// loginError maps gateway rejections onto the onboarding error contract.
func loginError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Code == errPasswordNeeded {
		return onboarding.ErrPasswordRequired
	}
	if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Code
		}
		return &onboarding.LoginError{Code: apiErr.Code, Message: msg, Retry: apiErr.Retry}
	}
	return err
}

type loginResponse struct {
	Handle   string `json:"handle"`
	CodeHash string `json:"code_hash"`
}

type sessionResponse struct {
	ConnectionID string `json:"connection_id"`
}

func (c *Client) BeginLogin(ctx context.Context, phone string) (onboarding.Challenge, error) {
	var out loginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/login", map[string]string{"phone": phone}, &out); err != nil {
		return onboarding.Challenge{}, loginError(err)
	}
	if out.Handle == "" {
		return onboarding.Challenge{}, fmt.Errorf("gateway login: empty handle")
	}
	return onboarding.Challenge{Handle: out.Handle, CodeHash: out.CodeHash}, nil
}

func (c *Client) SubmitCode(ctx context.Context, ch onboarding.Challenge, phone, code string) (onboarding.LiveConnection, error) {
	payload := map[string]string{"handle": ch.Handle, "code_hash": ch.CodeHash, "phone": phone, "code": code}
	var out sessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/login/code", payload, &out); err != nil {
		return nil, loginError(err)
	}
	return c.connection(out.ConnectionID)
}

func (c *Client) SubmitPassword(ctx context.Context, ch onboarding.Challenge, password string) (onboarding.LiveConnection, error) {
	payload := map[string]string{"handle": ch.Handle, "password": password}
	var out sessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/login/password", payload, &out); err != nil {
		return nil, loginError(err)
	}
	return c.connection(out.ConnectionID)
}

func (c *Client) Release(ctx context.Context, ch onboarding.Challenge) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/login/"+url.PathEscape(ch.Handle), nil, nil)
}

type exportResponse struct {
	Blob []byte `json:"blob"`
}

func (c *Client) SerializeSession(ctx context.Context, conn onboarding.LiveConnection) ([]byte, error) {
	var out exportResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(conn.ID())+"/export", nil, &out); err != nil {
		return nil, err
	}
	if len(out.Blob) == 0 {
		return nil, fmt.Errorf("gateway export: empty session")
	}
	return out.Blob, nil
}

func (c *Client) ResumeSession(ctx context.Context, blob []byte) (onboarding.LiveConnection, error) {
	var out sessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions/resume", map[string][]byte{"blob": blob}, &out); err != nil {
		return nil, err
	}
	return c.connection(out.ConnectionID)
}

func (c *Client) connection(id string) (onboarding.LiveConnection, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("gateway returned empty connection id")
	}
	return newStream(c, id), nil
}

// Fetch downloads media referenced by a gateway handle.
func (c *Client) Fetch(ctx context.Context, handle events.MediaHandle) (*recovery.Download, error) {
	path := "/v1/media/" + url.PathEscape(handle.ConnectionID) + "/" + url.PathEscape(handle.FileID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.media.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: gateway http %d", recovery.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	name := ""
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, after, ok := strings.Cut(cd, "filename="); ok {
			name = strings.Trim(after, `"`)
		}
	}
	return &recovery.Download{Body: resp.Body, Name: name, Size: resp.ContentLength}, nil
}

func (c *Client) streamURL(connectionID string) (string, error) {
	u, err := url.Parse(c.baseURL + "/v1/stream")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("connection_id", connectionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
