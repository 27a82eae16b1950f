package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/status"
	"go.uber.org/zap"
)

// WebSocketOptions configures a WebSocket transport.
type WebSocketOptions struct {
	URL          string
	Token        string
	Bus          *bus.Bus
	Status       *status.Machine // optional link state tracking
	Logger       *zap.Logger
	Dialer       *websocket.Dialer
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// WebSocket is a Transport over a reconnecting websocket connection.
// Joined rooms are replayed after every reconnect.
type WebSocket struct {
	registry

	opts WebSocketOptions

	connMu sync.Mutex
	conn   *websocket.Conn

	// writeMu serializes writes; gorilla connections allow one concurrent writer.
	writeMu sync.Mutex
}

var _ Transport = (*WebSocket)(nil)

// NewWebSocket creates the transport. Call Run to connect.
func NewWebSocket(opts WebSocketOptions) (*WebSocket, error) {
	if opts.URL == "" {
		return nil, errors.New("websocket url is required")
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	w := &WebSocket{opts: opts}
	w.registry.init(opts.Logger)
	return w, nil
}

// Connected reports whether a connection is currently open.
func (w *WebSocket) Connected() bool {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	return w.conn != nil
}

// Run connects and keeps the connection alive until ctx is cancelled.
func (w *WebSocket) Run(ctx context.Context) error {
	defer w.setLink(status.Stopped)
	backoff := w.opts.MinBackoff
	for {
		w.setLink(status.Connecting)
		connectedAt := time.Now()
		err := w.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		w.setLink(status.Reconnecting)
		if time.Since(connectedAt) > w.opts.MaxBackoff {
			backoff = w.opts.MinBackoff
		}
		w.log.Warn("websocket disconnected", zap.Error(err), zap.Duration("retry_in", backoff))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff = min(backoff*2, w.opts.MaxBackoff)
	}
}

func (w *WebSocket) setLink(to status.State) {
	if err := w.opts.Status.Transition(to); err != nil {
		w.log.Debug("link state unchanged", zap.Error(err))
	}
}

func (w *WebSocket) session(ctx context.Context) error {
	header := http.Header{}
	if w.opts.Token != "" {
		header.Set("Authorization", "Bearer "+w.opts.Token)
	}
	conn, resp, err := w.opts.Dialer.DialContext(ctx, w.opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()

	done := make(chan struct{})
	defer func() {
		close(done)
		w.connMu.Lock()
		w.conn = nil
		w.connMu.Unlock()
		_ = conn.Close()
		w.opts.Bus.Emit(bus.KindTransportDisconnected, w.opts.URL)
	}()

	readTimeout := 2 * w.opts.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	rooms := w.Rooms()
	for _, room := range rooms {
		if err := w.writeControl(conn, controlJoinRoom, room); err != nil {
			return fmt.Errorf("replay join %s: %w", room, err)
		}
	}
	w.log.Info("websocket connected", zap.String("url", w.opts.URL), zap.Int("rooms", len(rooms)))
	w.opts.Bus.Emit(bus.KindTransportConnected, w.opts.URL)
	w.setLink(status.Online)

	go w.keepAlive(ctx, conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			w.log.Warn("dropping malformed frame", zap.Int("bytes", len(data)), zap.Error(err))
			continue
		}
		w.dispatch(f.Event, f.Data)
	}
}

// keepAlive pings until the session ends and closes the connection on ctx cancel.
func (w *WebSocket) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(w.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			w.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(w.opts.WriteTimeout))
			w.writeMu.Unlock()
			_ = conn.Close()
			return
		case <-ticker.C:
			w.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			w.writeMu.Unlock()
			if err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (w *WebSocket) writeControl(conn *websocket.Conn, event, room string) error {
	data, err := json.Marshal(roomRequest{Room: room})
	if err != nil {
		return err
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout))
	return conn.WriteJSON(Frame{Event: event, Data: data, TS: time.Now().UnixMilli()})
}

func (w *WebSocket) current() *websocket.Conn {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	return w.conn
}

// JoinRoom subscribes to a room. Joining twice is a no-op; while
// disconnected the room is joined on the next connect.
func (w *WebSocket) JoinRoom(room string) error {
	if !w.addRoom(room) {
		return nil
	}
	conn := w.current()
	if conn == nil {
		return nil
	}
	if err := w.writeControl(conn, controlJoinRoom, room); err != nil {
		return fmt.Errorf("join room %s: %w", room, err)
	}
	return nil
}

// LeaveRoom unsubscribes from a room.
func (w *WebSocket) LeaveRoom(room string) error {
	if !w.removeRoom(room) {
		return nil
	}
	conn := w.current()
	if conn == nil {
		return nil
	}
	if err := w.writeControl(conn, controlLeaveRoom, room); err != nil {
		return fmt.Errorf("leave room %s: %w", room, err)
	}
	return nil
}
