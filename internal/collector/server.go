package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/fdtrace/internal/logging"
	"github.com/muurk/fdtrace/internal/trace"
)

const (
	// Path is the websocket endpoint.
	Path = "/trace"

	// DefaultPort is the port collectors listen on unless configured.
	DefaultPort = 9190

	// Time allowed to read the next message from a capture session
	readWait = 5 * time.Minute

	// Maximum message size allowed from a capture session
	maxMessageSize = trace.HeaderSize + trace.MaxPayload
)

// Server accepts capture sessions and records their traces.
type Server struct {
	// Dir receives the trace files.
	Dir string

	upgrader websocket.Upgrader
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns int
	files []string
}

// NewServer creates a server writing traces to dir.
func NewServer(dir string) *Server {
	return &Server{
		Dir: dir,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 4 << 10,
		},
	}
}

// Handler returns the HTTP handler serving Path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.serveTrace)
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then waits for open
// connections to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info("Collector listening",
		zap.String("address", ln.Addr().String()),
		zap.String("dir", s.Dir),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Collector shutdown incomplete", zap.Error(err))
	}
	s.Wait()
	return nil
}

// Wait blocks until every accepted connection has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Files returns the paths of every trace file written so far.
func (s *Server) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.files...)
}

func (s *Server) serveTrace(w http.ResponseWriter, r *http.Request) {
	s.wg.Add(1)
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	s.mu.Lock()
	s.conns++
	n := s.conns
	s.mu.Unlock()

	name := r.URL.Query().Get("name")
	if name == "" {
		host, _, _ := net.SplitHostPort(r.RemoteAddr)
		name = fmt.Sprintf("%s-%d", host, n)
	}
	logging.Info("Capture session connected",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.UserAgent()),
		zap.String("name", name),
	)

	if err := s.handleConnection(conn, r.RemoteAddr, name); err != nil {
		logging.Error("Capture session failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
	}
}

// handleConnection records the sections of one capture session.
func (s *Server) handleConnection(conn *websocket.Conn, remoteAddr, name string) error {
	logging.LogConnection(remoteAddr, "websocket_upgraded")

	rec := newRecorder(s.Dir, name)
	defer func() {
		if err := rec.close(); err != nil {
			logging.Error("Failed to close trace", zap.Error(err))
		}
		s.mu.Lock()
		s.files = append(s.files, rec.files...)
		s.mu.Unlock()
		_ = conn.Close()
		logging.LogConnection(remoteAddr, "websocket_closed")
	}()

	conn.SetReadLimit(maxMessageSize)
	messageNum := 0

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readWait)); err != nil {
			return err
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info("Connection closed by capture session",
					zap.String("remote_addr", remoteAddr),
				)
				return nil
			}
			if errors.Is(err, io.EOF) || websocket.IsUnexpectedCloseError(err) {
				logging.Info("Connection dropped",
					zap.String("remote_addr", remoteAddr),
					zap.Error(err),
				)
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}

		messageNum++
		logging.LogWebSocketMessage(remoteAddr, "received", msgType, data)

		switch msgType {
		case websocket.BinaryMessage:
			sect, err := decodeMessage(data)
			if err != nil {
				logging.Warn("Dropping malformed message",
					zap.String("remote_addr", remoteAddr),
					zap.Int("message_num", messageNum),
					zap.Error(err),
				)
				logging.LogRawBytes("Malformed message", data)
				continue
			}
			if err := rec.write(sect); err != nil {
				return err
			}

		case websocket.TextMessage:
			logging.Info("Received text message",
				zap.String("remote_addr", remoteAddr),
				zap.String("content", string(data)),
			)
		}
	}
}

// decodeMessage parses a message holding exactly one section.
func decodeMessage(data []byte) (*trace.Section, error) {
	sect, err := trace.ReadSection(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty message")
		}
		return nil, err
	}
	if extra := len(data) - trace.HeaderSize - len(sect.Payload); extra != 0 {
		return nil, fmt.Errorf("%d trailing bytes after %s section", extra, sect.Kind)
	}
	return sect, nil
}
