package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/bridge"
)

// Commands is the bridge surface exposed over the wire.
type Commands interface {
	SetLockedPackages(ids []string) bool
	StartMonitoringUnit() bool
	StopMonitoringUnit() bool
	CheckOverlayPermission() bool
	RequestOverlayPermission(ctx context.Context) bool
	OpenAccessibilitySettings() bool
	Unlock(tag string) bool
	Lock() bool
	Status(ctx context.Context) bridge.Status
}

// Recorder receives connection and request counts.
type Recorder interface {
	Connection(delta int)
	Request(method string, ok bool)
}

type nopRecorder struct{}

func (nopRecorder) Connection(int)       {}
func (nopRecorder) Request(string, bool) {}

// Config holds server configuration.
type Config struct {
	Addr            string        // Listen address, e.g. 127.0.0.1:7420
	RequestTimeout  time.Duration // Upper bound for a single command
	ShutdownTimeout time.Duration // Grace period for open connections on stop
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:7420",
		RequestTimeout:  5 * time.Minute,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Server serves commands on /ws, metrics on /metrics and liveness on /healthz.
type Server struct {
	config   Config
	commands Commands
	metrics  http.Handler
	recorder Recorder
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	conns    map[*websocket.Conn]struct{}
}

// ServerOption configures optional server collaborators.
type ServerOption func(*Server)

// WithMetrics serves h on /metrics and records traffic through r.
func WithMetrics(h http.Handler, r Recorder) ServerOption {
	return func(s *Server) {
		s.metrics = h
		if r != nil {
			s.recorder = r
		}
	}
}

// NewServer creates a server for commands.
func NewServer(config Config, commands Commands, logger *zap.Logger, opts ...ServerOption) *Server {
	s := &Server{
		config:   config,
		commands: commands,
		recorder: nopRecorder{},
		logger:   logger,
		conns:    make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameHostOrigin,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Listen binds the configured address and returns the bound address.
func (s *Server) Listen() (net.Addr, error) {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return ln.Addr(), nil
}

// Serve handles connections until ctx is canceled. Listen must be called first.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server is not listening")
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	// Hijacked websocket connections are not closed by Shutdown.
	srv.RegisterOnShutdown(s.closeConnections)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.logger.Info("command server listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("command server shutdown incomplete", zap.Error(err))
	}
	<-errCh
	s.logger.Info("command server stopped")
	return ctx.Err()
}

// HandleWebSocket upgrades the request and serves commands until the peer leaves.
// Commands on one connection run concurrently; responses are written by a
// single writer.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.track(conn, true)
	defer s.track(conn, false)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan Response, 16)
	writerDone := make(chan struct{})
	go s.writePump(conn, send, writerDone)

	var inflight sync.WaitGroup
	s.readPump(ctx, conn, send, &inflight)

	cancel()
	inflight.Wait()
	close(send)
	<-writerDone
}

func (s *Server) track(conn *websocket.Conn, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if open {
		s.conns[conn] = struct{}{}
		s.recorder.Connection(1)
		return
	}
	if _, ok := s.conns[conn]; ok {
		delete(s.conns, conn)
		s.recorder.Connection(-1)
	}
}

func (s *Server) closeConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, send chan<- Response, inflight *sync.WaitGroup) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var req Request
		if err := json.Unmarshal(message, &req); err != nil {
			s.logger.Warn("malformed command", zap.Error(err))
			send <- Response{OK: false, Error: "malformed request"}
			continue
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			send <- s.dispatch(ctx, req)
		}()
	}
}

func (s *Server) writePump(conn *websocket.Conn, send <-chan Response, done chan<- struct{}) {
	defer close(done)

	for resp := range send {
		if err := conn.WriteJSON(resp); err != nil {
			s.logger.Debug("websocket write error", zap.Error(err))
			// Keep draining so handlers never block on a dead connection.
			for range send {
			}
			return
		}
	}
}

// dispatch runs one command and builds its response.
func (s *Server) dispatch(ctx context.Context, req Request) (resp Response) {
	resp = Response{ID: req.ID}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered panic in command handler",
				zap.String("method", req.Method),
				zap.Any("panic", r))
			resp = Response{ID: req.ID, OK: false, Error: "internal error"}
		}
		s.recorder.Request(req.Method, resp.OK)
	}()

	switch req.Method {
	case MethodSetLockedPackages:
		ids, err := decodePackages(req.Params, s.logger)
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.OK = s.commands.SetLockedPackages(ids)

	case MethodStartOverlayService:
		resp.OK = s.commands.StartMonitoringUnit()

	case MethodStopOverlayService:
		resp.OK = s.commands.StopMonitoringUnit()

	case MethodCheckOverlayPermission:
		resp.OK = s.commands.CheckOverlayPermission()

	case MethodRequestOverlayPermission:
		resp.OK = s.commands.RequestOverlayPermission(ctx)

	case MethodOpenAccessibilitySettings:
		resp.OK = s.commands.OpenAccessibilitySettings()

	case MethodUnlock:
		var params UnlockParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = "params must be an object with a tag"
			return resp
		}
		resp.OK = s.commands.Unlock(params.Tag)

	case MethodLock:
		resp.OK = s.commands.Lock()

	case MethodStatus:
		result, err := json.Marshal(toStatusResult(s.commands.Status(ctx)))
		if err != nil {
			resp.Error = err.Error()
			return resp
		}
		resp.OK = true
		resp.Result = result

	default:
		resp.Error = fmt.Sprintf("unknown method %q", req.Method)
	}
	return resp
}

func toStatusResult(st bridge.Status) StatusResult {
	res := StatusResult{
		Running:   st.Running,
		Selection: st.Selection,
	}
	if res.Selection == nil {
		res.Selection = []string{}
	}
	if st.Unit != nil {
		res.Foreground = st.Unit.Foreground.Current
		res.Previous = st.Unit.Foreground.Previous
		res.Overlay = st.Unit.Overlay.String()
		res.Pending = st.Unit.Pending
	}
	return res
}

// sameHostOrigin accepts clients without an Origin header (CLI, native UI)
// and browser pages served from the same host.
func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}
