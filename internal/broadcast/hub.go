package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub는 테넌트 단위 이벤트 브로드캐스트 허브입니다.
// 구독자는 자신의 테넌트 채널 이벤트만 수신하며, 전달은 at-most-once
// (송신 버퍼가 가득 차면 해당 클라이언트의 이벤트는 버려짐)입니다.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clients map[*Client]bool
	mutex   sync.RWMutex
}

// Client는 WebSocket 구독자를 나타냅니다
type Client struct {
	id        string
	companyID string
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	logger    *zap.Logger
}

// Envelope는 구독자에게 전달되는 이벤트 포맷입니다
type Envelope struct {
	Event string    `json:"event"`
	Data  any       `json:"data"`
	TS    time.Time `json:"ts"`
}

// HubConfig는 브로드캐스트 허브 설정
type HubConfig struct {
	Logger *zap.Logger
}

// NewHub는 새로운 브로드캐스트 허브를 생성합니다
func NewHub(config HubConfig) *Hub {
	return &Hub{
		logger: config.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 개발 모드: 모든 origin 허용
			},
		},
		clients: make(map[*Client]bool),
	}
}

// HandleWebSocket은 WebSocket 연결을 테넌트 구독자로 등록합니다
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, companyID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection",
			zap.Error(err),
		)
		return
	}

	clientID := "sub-" + uuid.NewString()[:8]
	client := &Client{
		id:        clientID,
		companyID: companyID,
		conn:      conn,
		send:      make(chan []byte, 256),
		hub:       h,
		logger:    h.logger.With(zap.String("client_id", clientID), zap.String("company_id", companyID)),
	}

	h.registerClient(client)

	// 읽기/쓰기 고루틴 시작
	go client.writePump()
	go client.readPump()

	client.logger.Info("Broadcast subscriber connected",
		zap.String("remote_addr", r.RemoteAddr),
	)
}

// Publish는 한 테넌트의 구독자 전원에게 이벤트를 전달합니다
func (h *Hub) Publish(companyID, event string, payload any) {
	data, err := json.Marshal(Envelope{
		Event: event,
		Data:  payload,
		TS:    time.Now(),
	})
	if err != nil {
		h.logger.Error("Failed to marshal broadcast event",
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		if client.companyID != companyID {
			continue
		}
		select {
		case client.send <- data:
		default:
			client.logger.Warn("Send channel full, dropping event",
				zap.String("event", event),
			)
		}
	}
}

// registerClient는 구독자를 등록합니다
func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[client] = true

	h.logger.Info("Subscriber registered",
		zap.String("client_id", client.id),
		zap.Int("total_clients", len(h.clients)),
	)
}

// unregisterClient는 구독자를 등록 해제합니다
func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, exists := h.clients[client]; exists {
		delete(h.clients, client)
		close(client.send)

		h.logger.Info("Subscriber unregistered",
			zap.String("client_id", client.id),
			zap.Int("total_clients", len(h.clients)),
		)
	}
}

// readPump은 연결 종료 감지를 위해 수신 메시지를 소비합니다.
// 이벤트 채널은 단방향이므로 수신 내용 자체는 무시합니다.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
	}
}

// writePump은 이벤트를 구독자에게 씁니다
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.logger.Error("Failed to write message", zap.Error(err))
			break
		}
	}
}

// ClientCount는 연결된 구독자 수를 반환합니다
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Close는 모든 구독자 연결을 종료합니다
func (h *Hub) Close() {
	h.logger.Info("Closing broadcast hub")

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		// 여기서 맵에서 빠지므로 readPump의 unregister는 no-op이 됨.
		// send는 여기서 닫아야 writePump이 종료됨
		close(client.send)
		client.conn.Close()
		delete(h.clients, client)
	}
}
