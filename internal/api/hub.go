package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// hub fans snapshot updates out to connected WebSocket clients.
type hub struct {
	logger *zap.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]*sync.Mutex
}

func newHub(logger *zap.Logger) *hub {
	return &hub{
		logger: logger,
		conns:  make(map[*websocket.Conn]*sync.Mutex),
	}
}

// add registers a connection and starts its keepalive loop.
func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = &sync.Mutex{}
	h.mu.Unlock()

	go h.keepalive(conn)
	go h.drain(conn)
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.conns[conn]
	delete(h.conns, conn)
	h.mu.Unlock()

	if ok {
		conn.Close()
	}
}

// keepalive pings the peer so half-open connections get reaped.
func (h *hub) keepalive(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		h.mu.Lock()
		writeMu, ok := h.conns[conn]
		h.mu.Unlock()
		if !ok {
			return
		}

		writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := conn.WriteMessage(websocket.PingMessage, nil)
		writeMu.Unlock()
		if err != nil {
			h.remove(conn)
			return
		}
	}
}

// drain discards inbound frames; the stream is push-only but reads are
// required for close/pong processing.
func (h *hub) drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(conn)
			return
		}
	}
}

// broadcast sends one JSON message to every connected client, dropping
// connections that fail to accept the write.
func (h *hub) broadcast(message any) {
	h.mu.Lock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(h.conns))
	for conn, writeMu := range h.conns {
		conns[conn] = writeMu
	}
	h.mu.Unlock()

	for conn, writeMu := range conns {
		writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := conn.WriteJSON(message)
		writeMu.Unlock()
		if err != nil {
			h.logger.Debug("Dropping slow websocket client", zap.Error(err))
			h.remove(conn)
		}
	}
}

// closeAll tears down every connection.
func (h *hub) closeAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[*websocket.Conn]*sync.Mutex)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
