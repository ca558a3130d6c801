package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sheraliortiqboyev4-del/spy-bot/events"
)

// Stream is a live session. Events start flowing on the first Events call
// and the socket reconnects until Close.
type Stream struct {
	client *Client
	id     string
	logger *slog.Logger

	out    chan events.Event
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func newStream(c *Client, id string) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		client: c,
		id:     id,
		logger: c.opts.Logger.With("connection_id", id),
		out:    make(chan events.Event, c.opts.EventBuffer),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (s *Stream) ID() string {
	return s.id
}

func (s *Stream) Events() <-chan events.Event {
	s.once.Do(func() { go s.run() })
	return s.out
}

func (s *Stream) Close() error {
	s.cancel()
	s.once.Do(func() { close(s.done); close(s.out) })
	<-s.done
	return nil
}

func (s *Stream) run() {
	defer close(s.done)
	defer close(s.out)
	for {
		if s.ctx.Err() != nil {
			return
		}
		conn, err := s.connect()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Warn("gateway_stream_connect_error", "error", err.Error())
			if err := sleepWithContext(s.ctx, s.client.opts.ReconnectDelay); err != nil {
				return
			}
			continue
		}
		s.logger.Info("gateway_stream_connected")
		readErr := s.consume(conn)
		_ = conn.Close()
		if s.ctx.Err() != nil {
			return
		}
		if readErr != nil {
			s.logger.Warn("gateway_stream_read_error", "error", readErr.Error())
		}
		if err := sleepWithContext(s.ctx, s.client.opts.ReconnectDelay); err != nil {
			return
		}
	}
}

func (s *Stream) connect() (*websocket.Conn, error) {
	u, err := s.client.streamURL(s.id)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if s.client.token != "" {
		header.Set("Authorization", "Bearer "+s.client.token)
	}
	dialer := *websocket.DefaultDialer
	conn, _, err := dialer.DialContext(s.ctx, u, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (s *Stream) consume(conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-s.ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		var ev events.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.logger.Warn("gateway_stream_decode_error", "error", err.Error())
			continue
		}
		if ev.ConnectionID == "" {
			ev.ConnectionID = s.id
		}
		markOrigin(&ev, s.id)
		select {
		case s.out <- ev:
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	}
}

// markOrigin tags media handles so recovery routes them back here.
func markOrigin(ev *events.Event, connectionID string) {
	mark := func(m *events.Message) {
		if m == nil || m.Media.Handle.IsZero() {
			return
		}
		m.Media.Handle.Origin = events.OriginGateway
		if m.Media.Handle.ConnectionID == "" {
			m.Media.Handle.ConnectionID = connectionID
		}
	}
	if ev.Message != nil {
		mark(ev.Message)
		mark(ev.Message.ReplyTo)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
