package connector

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSConfig - параметры websocket-соединения фида
type WSConfig struct {
	InitialDelay   time.Duration // первая пауза перед переподключением
	MaxDelay       time.Duration // потолок exponential backoff
	MaxRetries     int           // 0 = без ограничения попыток
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
	Header         http.Header // дополнительные заголовки handshake (авторизация)
}

// DefaultWSConfig - backoff 2s, 4s, 8s, 16s
func DefaultWSConfig() WSConfig {
	return WSConfig{
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		MaxRetries:     0,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
	}
}

// Состояния соединения
type wsState int32

const (
	wsDisconnected wsState = iota
	wsConnecting
	wsConnected
	wsReconnecting
	wsClosed
)

func (s wsState) String() string {
	switch s {
	case wsDisconnected:
		return "disconnected"
	case wsConnecting:
		return "connecting"
	case wsConnected:
		return "connected"
	case wsReconnecting:
		return "reconnecting"
	case wsClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// wsConn держит websocket-соединение с автоматическим переподключением.
// При разрыве: exponential backoff, после восстановления - повторная
// отправка всех накопленных подписок. Входящие сообщения уходят в
// onMessage; обработчик не должен блокироваться надолго.
type wsConn struct {
	url string
	cfg WSConfig
	log *zap.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	state      int32 // atomic wsState
	retryCount int32 // atomic

	onMessage    func([]byte)
	onConnect    func()
	onDisconnect func(error)

	subs   []interface{} // подписки для восстановления
	subsMu sync.Mutex

	closeCh chan struct{}
}

func newWSConn(url string, cfg WSConfig, log *zap.Logger) *wsConn {
	return &wsConn{
		url:     url,
		cfg:     cfg,
		log:     log,
		closeCh: make(chan struct{}),
	}
}

func (w *wsConn) getState() wsState {
	return wsState(atomic.LoadInt32(&w.state))
}

// connect выполняет первичное подключение и запускает pump-горутины
func (w *wsConn) connect() error {
	select {
	case <-w.closeCh:
		return fmt.Errorf("ws: connection closed")
	default:
	}

	atomic.StoreInt32(&w.state, int32(wsConnecting))
	if err := w.dial(); err != nil {
		atomic.StoreInt32(&w.state, int32(wsDisconnected))
		return err
	}

	atomic.StoreInt32(&w.state, int32(wsConnected))
	atomic.StoreInt32(&w.retryCount, 0)

	if w.onConnect != nil {
		w.onConnect()
	}

	go w.readPump()
	go w.pingPump()

	w.log.Info("websocket connected", zap.String("url", w.url))
	return nil
}

func (w *wsConn) dial() error {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: w.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, w.url, w.cfg.Header)
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
	}

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()

	if err := w.resubscribe(); err != nil {
		w.log.Warn("resubscribe after connect failed", zap.Error(err))
	}
	return nil
}

// send отправляет сообщение и запоминает его как подписку,
// если subscription=true (будет переотправлено после reconnect)
func (w *wsConn) send(msg interface{}, subscription bool) error {
	if subscription {
		w.subsMu.Lock()
		w.subs = append(w.subs, msg)
		w.subsMu.Unlock()
	}

	if w.getState() != wsConnected {
		return fmt.Errorf("ws: not connected (state %s)", w.getState())
	}

	w.connMu.RLock()
	conn := w.conn
	w.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("ws: no connection")
	}
	return conn.WriteJSON(msg)
}

func (w *wsConn) resubscribe() error {
	w.subsMu.Lock()
	subs := make([]interface{}, len(w.subs))
	copy(subs, w.subs)
	w.subsMu.Unlock()

	w.connMu.RLock()
	conn := w.conn
	w.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("ws: no connection")
	}

	for _, sub := range subs {
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("ws resubscribe: %w", err)
		}
	}
	if len(subs) > 0 {
		w.log.Info("resubscribed", zap.Int("channels", len(subs)))
	}
	return nil
}

func (w *wsConn) readPump() {
	for {
		select {
		case <-w.closeCh:
			return
		default:
		}

		w.connMu.RLock()
		conn := w.conn
		w.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			w.handleDisconnect(err)
			return
		}
		if w.onMessage != nil {
			w.onMessage(message)
		}
	}
}

func (w *wsConn) pingPump() {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.closeCh:
			return
		case <-ticker.C:
			if w.getState() != wsConnected {
				return
			}

			w.connMu.RLock()
			conn := w.conn
			w.connMu.RUnlock()
			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(w.cfg.PongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.handleDisconnect(err)
				return
			}
		}
	}
}

func (w *wsConn) handleDisconnect(err error) {
	select {
	case <-w.closeCh:
		return
	default:
	}

	// Повторная обработка одного разрыва (readPump и pingPump) - no-op
	st := w.getState()
	if st == wsReconnecting || st == wsClosed {
		return
	}
	atomic.StoreInt32(&w.state, int32(wsReconnecting))

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connMu.Unlock()

	if w.onDisconnect != nil {
		w.onDisconnect(err)
	}
	if err != nil {
		w.log.Warn("websocket disconnected", zap.Error(err))
	}

	go w.reconnectLoop()
}

func (w *wsConn) reconnectLoop() {
	delay := w.cfg.InitialDelay

	for {
		select {
		case <-w.closeCh:
			return
		default:
		}

		attempt := atomic.AddInt32(&w.retryCount, 1)
		if w.cfg.MaxRetries > 0 && int(attempt) > w.cfg.MaxRetries {
			w.log.Error("reconnect attempts exhausted",
				zap.Int("max_retries", w.cfg.MaxRetries))
			atomic.StoreInt32(&w.state, int32(wsDisconnected))
			return
		}

		w.log.Info("reconnecting",
			zap.Duration("delay", delay),
			zap.Int32("attempt", attempt))

		select {
		case <-w.closeCh:
			return
		case <-time.After(delay):
		}

		if err := w.dial(); err != nil {
			w.log.Warn("reconnect failed", zap.Error(err))
			delay *= 2
			if delay > w.cfg.MaxDelay {
				delay = w.cfg.MaxDelay
			}
			continue
		}

		atomic.StoreInt32(&w.state, int32(wsConnected))
		atomic.StoreInt32(&w.retryCount, 0)
		if w.onConnect != nil {
			w.onConnect()
		}
		w.log.Info("websocket reconnected")

		go w.readPump()
		go w.pingPump()
		return
	}
}

func (w *wsConn) close() error {
	select {
	case <-w.closeCh:
		return nil
	default:
		close(w.closeCh)
	}
	atomic.StoreInt32(&w.state, int32(wsClosed))

	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.conn != nil {
		err := w.conn.Close()
		w.conn = nil
		return err
	}
	return nil
}
