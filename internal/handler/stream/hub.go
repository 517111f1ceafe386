package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"OptEdge/internal/domain/models"
	domrepo "OptEdge/internal/domain/repository"
	"OptEdge/internal/service/metrics"
	applogger "OptEdge/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub broadcasts alerts to websocket subscribers of /ws/alerts. Slow or
// dead clients are dropped; broadcasting never blocks the alert stream.
type Hub struct {
	mu        sync.Mutex
	clients   map[*websocket.Conn]struct{}
	broadcast chan []byte
	l         *applogger.Logger
}

func NewHub(buffer int, l *applogger.Logger) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	metrics.Register()
	return &Hub{
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan []byte, buffer),
		l:         l,
	}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/alerts", h.Serve)
}

// Run writes queued messages to every client until ctx is done, then
// closes all connections.
func (h *Hub) Run(ctx context.Context) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.broadcast:
			h.write(websocket.TextMessage, msg)
		case <-ping.C:
			h.write(websocket.PingMessage, nil)
		}
	}
}

// PublishAlert queues a for broadcast. It drops the alert when the queue is full.
func (h *Hub) PublishAlert(_ context.Context, a models.Alert) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- b:
	default:
		h.l.Warn("ws broadcast queue full, alert dropped", applogger.String("kind", string(a.Kind)))
	}
	return nil
}

// Serve upgrades the request and keeps reading so control frames are
// processed; the client is removed when the read fails.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.l.Warn("ws upgrade error", applogger.Error(err))
		return nil
	}
	h.add(conn)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSClients.Set(float64(n))
	h.l.Debug("ws client connected", applogger.String("remote", conn.RemoteAddr().String()), applogger.Int("clients", n))
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		_ = conn.Close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WSClients.Set(float64(n))
}

func (h *Hub) write(messageType int, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(messageType, msg); err != nil {
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
	metrics.WSClients.Set(float64(len(h.clients)))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(writeWait))
		_ = conn.Close()
		delete(h.clients, conn)
	}
	metrics.WSClients.Set(0)
}

var _ domrepo.AlertSink = (*Hub)(nil)
