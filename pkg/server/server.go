// Package server exposes the widget over WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/realtime-ai/assistant-widget/pkg/config"
	"github.com/realtime-ai/assistant-widget/pkg/connection"
	"github.com/realtime-ai/assistant-widget/pkg/metrics"
)

// Config holds the configuration for the widget server.
type Config struct {
	// Addr is the address to listen on (e.g., ":8080").
	Addr string

	// Path is the WebSocket endpoint path.
	Path string

	// AuthToken is the bearer token for authentication.
	// If empty, authentication is disabled.
	AuthToken string

	// MaxSessionsPerIP limits sessions per IP address.
	// 0 means no limit.
	MaxSessionsPerIP int

	// TrustProxyHeaders takes the client IP from X-Forwarded-For or
	// X-Real-IP. Enable it only behind a proxy that sets them.
	TrustProxyHeaders bool

	// AllowedOrigins restricts the Origin header of upgrades. Empty or "*"
	// allows any origin.
	AllowedOrigins []string

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	WebSocket connection.WebSocketConfig
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		Path:              "/v1/widget",
		MaxSessionsPerIP:  4,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		WebSocket:         connection.DefaultWebSocketConfig(),
	}
}

// ConfigFrom maps the file configuration onto a server Config.
func ConfigFrom(c config.Config) Config {
	cfg := DefaultConfig()
	cfg.Addr = c.Addr()
	cfg.AuthToken = c.Server.AuthToken
	cfg.MaxSessionsPerIP = c.Server.MaxSessionsPerIP
	cfg.TrustProxyHeaders = c.Server.TrustProxyHeaders
	cfg.AllowedOrigins = c.Server.AllowedOrigins
	if d := c.Server.ReadHeaderTimeout.ToDuration(); d > 0 {
		cfg.ReadHeaderTimeout = d
	}
	if d := c.Server.ShutdownTimeout.ToDuration(); d > 0 {
		cfg.ShutdownTimeout = d
	}
	if d := c.Server.WriteTimeout.ToDuration(); d > 0 {
		cfg.WebSocket.WriteWait = d
	}
	if d := c.Server.PingInterval.ToDuration(); d > 0 {
		cfg.WebSocket.PingPeriod = d
		cfg.WebSocket.PongWait = d * 10 / 9
	}
	return cfg
}

// Server accepts widget clients and runs one panel per connection.
type Server struct {
	cfg     Config
	factory PanelFactory

	log      zerolog.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	sessions   map[string]*Session
	sessionsMu sync.RWMutex

	ipSessions   map[string]int
	ipSessionsMu sync.Mutex

	httpServer *http.Server
	mux        *http.ServeMux
	routesOnce sync.Once
	upgrader   websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithGatherer selects the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates a server building panels with factory.
func New(cfg Config, factory PanelFactory, opts ...Option) *Server {
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:        cfg,
		factory:    factory,
		log:        log.Logger.With().Str("component", "server").Logger(),
		gatherer:   prometheus.DefaultGatherer,
		sessions:   make(map[string]*Session),
		ipSessions: make(map[string]int),
		mux:        http.NewServeMux(),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// RegisterHandler registers an HTTP handler on the server's mux.
// Must be called before Start.
func (s *Server) RegisterHandler(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, handler)
}

// Handler returns the HTTP handler serving the widget endpoints.
func (s *Server) Handler() http.Handler {
	s.routesOnce.Do(func() {
		s.mux.HandleFunc(s.cfg.Path, s.handleWebSocket)
		s.mux.HandleFunc("/healthz", s.handleHealth)
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	})
	return s.mux
}

// Start starts listening in the background.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}

	s.log.Info().Str("addr", s.cfg.Addr).Str("path", s.cfg.Path).Msg("widget server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Run starts the server and blocks until ctx ends, then stops it within
// the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.Stop(stopCtx)
}

// Stop closes every session and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()

	s.sessionsMu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessionsMu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 || slices.Contains(s.cfg.AllowedOrigins, "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	return strings.TrimPrefix(authHeader, "Bearer ") == s.cfg.AuthToken
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.metrics.RecordConnectionDenied("unauthorized")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !s.checkOrigin(r) {
		s.metrics.RecordConnectionDenied("origin")
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	clientIP := getClientIP(r, s.cfg.TrustProxyHeaders)
	if !s.reserveIP(clientIP) {
		s.metrics.RecordConnectionDenied("ip_limit")
		http.Error(w, "Too many sessions from this IP", http.StatusTooManyRequests)
		return
	}
	defer s.releaseIP(clientIP)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("ip", clientIP).Msg("websocket upgrade failed")
		return
	}

	peerID := uuid.NewString()
	conn := connection.NewWebSocketConnectionWithConfig(peerID, ws, s.cfg.WebSocket, s.log)

	sess, err := newSession(s.ctx, conn, s.factory, s.log, s.metrics)
	if err != nil {
		s.log.Error().Err(err).Str("peer", peerID).Msg("failed to create panel")
		_ = ws.SetWriteDeadline(time.Now().Add(s.cfg.WebSocket.WriteWait))
		_ = ws.WriteJSON(connection.MustMessage(connection.MsgError, connection.ErrorPayload{
			Code:    CodePanelFailed,
			Message: err.Error(),
		}))
		_ = conn.Close()
		return
	}

	s.registerSession(sess, clientIP)
	defer s.unregisterSession(sess)

	sess.Start()
	<-conn.Done()
	sess.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"sessions": s.SessionCount(),
	})
}

func (s *Server) reserveIP(ip string) bool {
	s.ipSessionsMu.Lock()
	defer s.ipSessionsMu.Unlock()
	if s.cfg.MaxSessionsPerIP > 0 && s.ipSessions[ip] >= s.cfg.MaxSessionsPerIP {
		return false
	}
	s.ipSessions[ip]++
	return true
}

func (s *Server) releaseIP(ip string) {
	s.ipSessionsMu.Lock()
	defer s.ipSessionsMu.Unlock()
	s.ipSessions[ip]--
	if s.ipSessions[ip] <= 0 {
		delete(s.ipSessions, ip)
	}
}

// registerSession adds a session to the server.
func (s *Server) registerSession(sess *Session, clientIP string) {
	s.sessionsMu.Lock()
	s.sessions[sess.ID] = sess
	s.sessionsMu.Unlock()

	s.metrics.RecordConnectionOpened()
	s.log.Info().Str("session", sess.ID).Str("ip", clientIP).Msg("session registered")
}

// unregisterSession removes a session from the server.
func (s *Server) unregisterSession(sess *Session) {
	s.sessionsMu.Lock()
	delete(s.sessions, sess.ID)
	s.sessionsMu.Unlock()

	s.metrics.RecordConnectionClosed()
	s.log.Info().Str("session", sess.ID).Msg("session unregistered")
}

// GetSession returns a session by ID.
func (s *Server) GetSession(sessionID string) *Session {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return s.sessions[sessionID]
}

// SessionCount returns the number of active sessions.
func (s *Server) SessionCount() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

// getClientIP returns the peer address, or the forwarded client address
// when trustProxy is set.
func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
