package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultWSWriteWait  = 10 * time.Second
	DefaultWSPongWait   = 60 * time.Second
	DefaultWSPingPeriod = 54 * time.Second // Must be less than pongWait
	DefaultWSSendQueue  = 256
	DefaultWSReadLimit  = 1 << 20
)

// ErrClosed is reported when sending on a closed connection.
var ErrClosed = errors.New("connection closed")

// WebSocketConfig holds configuration for WebSocket connection.
type WebSocketConfig struct {
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
	// SendQueue is the outbound queue length. Messages beyond it are dropped.
	SendQueue int
	// ReadLimit caps the size of one inbound frame in bytes.
	ReadLimit int64
}

// DefaultWebSocketConfig returns the default WebSocket configuration.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:  DefaultWSWriteWait,
		PongWait:   DefaultWSPongWait,
		PingPeriod: DefaultWSPingPeriod,
		SendQueue:  DefaultWSSendQueue,
		ReadLimit:  DefaultWSReadLimit,
	}
}

func (c *WebSocketConfig) setDefaults() {
	d := DefaultWebSocketConfig()
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.SendQueue <= 0 {
		c.SendQueue = d.SendQueue
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = d.ReadLimit
	}
}

type websocketConnection struct {
	peerID string
	conn   *websocket.Conn
	cfg    WebSocketConfig
	log    zerolog.Logger

	mu      sync.RWMutex
	handler Handler
	closed  bool

	outChan chan Message

	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
	started sync.Once
	done    chan struct{}
}

var _ Connection = (*websocketConnection)(nil)

// NewWebSocketConnection wraps an upgraded WebSocket with default config.
func NewWebSocketConnection(peerID string, conn *websocket.Conn) Connection {
	return NewWebSocketConnectionWithConfig(peerID, conn, DefaultWebSocketConfig(), log.Logger)
}

// NewWebSocketConnectionWithConfig wraps an upgraded WebSocket. Nothing is
// read or written until Start.
func NewWebSocketConnectionWithConfig(peerID string, conn *websocket.Conn, cfg WebSocketConfig, logger zerolog.Logger) Connection {
	cfg.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &websocketConnection{
		peerID:  peerID,
		conn:    conn,
		cfg:     cfg,
		log:     logger.With().Str("peer", peerID).Logger(),
		handler: NoOpHandler{},
		outChan: make(chan Message, cfg.SendQueue),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (w *websocketConnection) PeerID() string {
	return w.peerID
}

func (w *websocketConnection) RegisterHandler(handler Handler) {
	if handler == nil {
		handler = NoOpHandler{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = handler
}

func (w *websocketConnection) getHandler() Handler {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.handler
}

func (w *websocketConnection) Start() {
	w.started.Do(func() {
		w.getHandler().OnStateChange(w, ConnectionStateConnected)

		w.conn.SetReadLimit(w.cfg.ReadLimit)
		_ = w.conn.SetReadDeadline(time.Now().Add(w.cfg.PongWait))
		w.conn.SetPongHandler(func(string) error {
			return w.conn.SetReadDeadline(time.Now().Add(w.cfg.PongWait))
		})

		go w.readPump()
		go w.writePump()
		go w.pingPump()
	})
}

func (w *websocketConnection) Done() <-chan struct{} {
	return w.done
}

func (w *websocketConnection) readPump() {
	defer w.Close()

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				w.log.Warn().Err(err).Msg("websocket read error")
				w.getHandler().OnError(w, err)
			}
			return
		}

		msg, err := ParseMessage(data)
		if err != nil {
			w.log.Debug().Err(err).Msg("dropping malformed frame")
			w.getHandler().OnError(w, err)
			continue
		}
		w.getHandler().OnMessage(w, msg)
	}
}

func (w *websocketConnection) writePump() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case msg := <-w.outChan:
			_ = w.conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteWait))
			if err := w.conn.WriteJSON(msg); err != nil {
				w.log.Warn().Err(err).Str("type", string(msg.Type)).Msg("websocket write error")
				w.getHandler().OnError(w, err)
				w.Close()
				return
			}
		}
	}
}

func (w *websocketConnection) pingPump() {
	ticker := time.NewTicker(w.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(w.cfg.WriteWait)
			if err := w.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				w.log.Debug().Err(err).Msg("websocket ping failed")
				w.Close()
				return
			}
		}
	}
}

func (w *websocketConnection) Send(msg Message) bool {
	w.mu.RLock()
	closed := w.closed
	w.mu.RUnlock()
	if closed {
		return false
	}

	select {
	case <-w.ctx.Done():
		return false
	case w.outChan <- msg:
		return true
	default:
		w.log.Warn().Str("type", string(msg.Type)).Msg("outbound queue full, dropping message")
		return false
	}
}

func (w *websocketConnection) Close() error {
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()

		w.cancel()

		deadline := time.Now().Add(w.cfg.WriteWait)
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = w.conn.Close()
		close(w.done)

		w.getHandler().OnStateChange(w, ConnectionStateClosed)
	})
	return nil
}
