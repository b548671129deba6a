package capture

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/fdtrace/internal/logging"
	"github.com/muurk/fdtrace/internal/version"
)

const (
	// Time allowed to establish the collector connection
	dialTimeout = 10 * time.Second

	// Time allowed to write a message to the collector
	writeWait = 10 * time.Second
)

// WebSocketSink streams sections to a remote collector, one binary message
// per section.
type WebSocketSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// DialWebSocketSink connects to the collector at rawURL. name is passed to
// the collector as the initial trace name.
func DialWebSocketSink(ctx context.Context, rawURL, name string) (*WebSocketSink, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid collector URL: %w", err)
	}
	q := u.Query()
	q.Set("name", name)
	u.RawQuery = q.Encode()

	header := http.Header{"User-Agent": []string{version.UserAgent()}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to collector: %w", err)
	}
	logging.Info("Connected to trace collector",
		zap.String("url", u.String()),
	)
	return &WebSocketSink{conn: conn}, nil
}

// WebSocketSinks returns a factory opening one collector connection per
// test.
func WebSocketSinks(rawURL string) SinkFactory {
	return func(name string) (Sink, error) {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		return DialWebSocketSink(ctx, rawURL, name)
	}
}

// Write sends p as a single binary message.
func (w *WebSocketSink) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return 0, err
	}
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, fmt.Errorf("failed to send section: %w", err)
	}
	return len(p), nil
}

// Sync is a no-op: every Write is already on the wire.
func (w *WebSocketSink) Sync() error {
	return nil
}

// Close performs the websocket closing handshake.
func (w *WebSocketSink) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	return w.conn.Close()
}
