// Package server exposes the interview protocol over HTTP.
//
// Each websocket connection gets its own [protocol.Dispatcher]. A read loop
// decodes frames into a bounded mailbox and the dispatcher consumes them in
// order, so one connection's handlers never run concurrently with each other.
// The package also serves a read-only session snapshot endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/mockvox/internal/observe"
	"github.com/MrWong99/mockvox/internal/protocol"
	"github.com/MrWong99/mockvox/internal/session"
)

const (
	defaultWSPath      = "/v1/interview"
	defaultMailboxSize = 64
	defaultCloseGrace  = 10 * time.Second
	defaultWriteWait   = 10 * time.Second
)

// Config holds the dependencies and tuning knobs for a [Server].
type Config struct {
	// Dispatch is the template configuration for every connection's
	// dispatcher. Dispatch.Registry also backs the snapshot endpoint.
	Dispatch protocol.Config

	// WSPath is the websocket route. Default: "/v1/interview".
	WSPath string

	// AllowedOrigins are host patterns accepted on upgrade in addition to
	// same-origin requests.
	AllowedOrigins []string

	// ReadLimit caps one inbound message. Zero keeps the websocket default.
	ReadLimit int64

	// MailboxSize is the number of frames buffered between the read loop and
	// the dispatcher. Default: 64.
	MailboxSize int

	// CloseGrace is how long a closing connection waits for background speech
	// before it is cancelled. Default: 10s.
	CloseGrace time.Duration

	// WriteWait bounds one outbound frame write. Default: 10s.
	WriteWait time.Duration

	// Metrics records connection gauges. Default: [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger is the base logger. Default: [slog.Default].
	Logger *slog.Logger
}

// Server serves interview websockets and the session snapshot endpoint.
type Server struct {
	cfg     Config
	metrics *observe.Metrics
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	conns  sync.WaitGroup
}

// New creates a Server. Zero-value config fields are replaced with defaults.
func New(cfg Config) *Server {
	if cfg.WSPath == "" {
		cfg.WSPath = defaultWSPath
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = defaultMailboxSize
	}
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = defaultCloseGrace
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Dispatch.Metrics == nil {
		cfg.Dispatch.Metrics = cfg.Metrics
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dispatch.Registry == nil {
		cfg.Dispatch.Registry = session.NewRegistry()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds the interview routes to mux:
//
//	GET <WSPath>             websocket upgrade
//	GET /v1/sessions/{id}    session snapshot
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+s.cfg.WSPath, s.handleInterview)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleSnapshot)
}

// Handler returns a mux serving only the interview routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// Shutdown closes every open connection and waits for them to finish or for
// ctx to expire. Upgrades after Shutdown are refused with 503.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ── websocket ────────────────────────────────────────────────────────────────

func (s *Server) handleInterview(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.conns.Done()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	if s.cfg.ReadLimit > 0 {
		ws.SetReadLimit(s.cfg.ReadLimit)
	}

	connID := uuid.NewString()
	logger := observe.WithTrace(s.logger, r.Context()).With("conn_id", connID)
	logger.Info("connection opened", "remote", r.RemoteAddr)

	s.metrics.ActiveConnections.Add(r.Context(), 1)
	defer s.metrics.ActiveConnections.Add(context.Background(), -1)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, func() {
		_ = ws.Close(websocket.StatusGoingAway, "server shutting down")
	})
	defer stop()

	d := protocol.NewDispatcher(s.cfg.Dispatch, &wsConn{ws: ws, wait: s.cfg.WriteWait}, logger)
	mailbox := make(chan protocol.Frame, s.cfg.MailboxSize)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		d.Run(ctx, mailbox)
	}()

	err = readLoop(ctx, ws, mailbox)
	close(mailbox)
	cancel()
	<-dispatched

	closeCtx, closeCancel := context.WithTimeout(context.Background(), s.cfg.CloseGrace)
	d.Close(closeCtx)
	closeCancel()

	switch status := websocket.CloseStatus(err); {
	case s.ctx.Err() != nil:
		logger.Info("connection closed by shutdown")
	case status != -1:
		logger.Info("connection closed by client", "status", status.String())
	case errors.Is(err, context.Canceled):
		logger.Info("connection closed")
	default:
		logger.Warn("connection read failed", "err", err)
		_ = ws.Close(websocket.StatusInternalError, "read failed")
	}
	_ = ws.CloseNow()
}

// track registers a connection unless the server is shutting down.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns.Add(1)
	return true
}

// readLoop moves inbound frames into mailbox until the connection fails or
// ctx is cancelled. It blocks while the mailbox is full.
func readLoop(ctx context.Context, ws *websocket.Conn, mailbox chan<- protocol.Frame) error {
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}
		f := protocol.Frame{Binary: typ == websocket.MessageBinary, Data: data}
		select {
		case mailbox <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// wsConn adapts a websocket to [protocol.Conn].
type wsConn struct {
	ws   *websocket.Conn
	wait time.Duration
}

func (c *wsConn) WriteText(ctx context.Context, p []byte) error {
	return c.write(ctx, websocket.MessageText, p)
}

func (c *wsConn) WriteBinary(ctx context.Context, p []byte) error {
	return c.write(ctx, websocket.MessageBinary, p)
}

func (c *wsConn) write(ctx context.Context, typ websocket.MessageType, p []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.wait)
	defer cancel()
	return c.ws.Write(ctx, typ, p)
}

// ── snapshot ─────────────────────────────────────────────────────────────────

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	rec, err := s.cfg.Dispatch.Registry.Get(r.PathValue("id"))
	if errors.Is(err, session.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: protocol.CodeSessionNotFound})
		return
	}
	if err != nil {
		s.logger.Error("session lookup failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: protocol.CodeServerException})
		return
	}
	writeJSON(w, http.StatusOK, rec.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
