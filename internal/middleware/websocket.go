package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Operator boxes sit on the venue LAN; origin checks are left to the
		// reverse proxy when one is deployed.
		return true
	},
}

// Hub fans assessment/remediation events out to connected WebSocket
// clients. Consoles subscribe to watch fleet checks land in real time.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.RWMutex
	logger     *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mutex.Lock()
			h.clients[conn] = true
			h.mutex.Unlock()
			h.log("websocket client connected")

		case conn := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mutex.Unlock()
			h.log("websocket client disconnected")

		case message := <-h.broadcast:
			var dead []*websocket.Conn
			h.mutex.RLock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					h.log("websocket write error", zap.Error(err))
					dead = append(dead, conn)
				}
			}
			h.mutex.RUnlock()
			if len(dead) > 0 {
				h.mutex.Lock()
				for _, conn := range dead {
					delete(h.clients, conn)
					conn.Close()
				}
				h.mutex.Unlock()
			}
		}
	}
}

// Broadcast queues a message for every connected client. Non-blocking: when
// the buffer is full the message is dropped rather than stalling a check.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.log("websocket broadcast buffer full, event dropped")
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and parks the connection until the
// client goes away. Inbound messages are ignored; the stream is one-way.
func (h *Hub) HandleWebSocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log("websocket upgrade error", zap.Error(err))
			return
		}

		h.register <- conn
		defer func() {
			h.unregister <- conn
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.log("websocket error", zap.Error(err))
				}
				break
			}
		}
	}
}

func (h *Hub) log(msg string, fields ...zap.Field) {
	if h.logger != nil {
		h.logger.Debug(msg, fields...)
	}
}
