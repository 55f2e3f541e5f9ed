package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Atul7206/stuwork-backend/internal/pkg/metrics"

	"github.com/gorilla/websocket"
)

// 服务端推送事件名。
const (
	EventNewNotification   = "new_notification"
	EventApplicationUpdate = "application_update"
	EventJobUpdate         = "job_update"
	EventNewApplication    = "new_application"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 16
)

// Publisher 是注入到各服务中的推送能力。
//
// 推送是尽力而为、至多一次：没有确认、没有重试，慢客户端直接丢帧。
type Publisher interface {
	Publish(userID uint, event string, payload interface{})
}

// frame 是下发给客户端的 JSON 帧。
type frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub 维护按用户分组的广播房间。
//
// 同一用户的所有连接（多端登录）共享一个房间，Publish 对房间内所有连接生效。
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	rooms  map[uint]map[*client]struct{}
	closed bool
}

type client struct {
	userID uint
	conn   *websocket.Conn
	send   chan []byte
}

// NewHub 创建 Hub。allowedOrigin 为空时放行所有来源（本地开发）。
func NewHub(logger *slog.Logger, allowedOrigin string) *Hub {
	return &Hub{
		logger: logger,
		rooms:  make(map[uint]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || origin == "" || origin == allowedOrigin
			},
		},
	}
}

// Join 将一个已通过身份验证的请求升级为 WebSocket 连接并加入用户房间。
//
// 调用方必须在调用前完成令牌校验；Join 只负责传输层。
func (h *Hub) Join(w http.ResponseWriter, r *http.Request, userID uint) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return nil
	}
	room, ok := h.rooms[userID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[userID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	metrics.RealtimeConnections.Inc()
	if h.logger != nil {
		h.logger.Info("realtime client connected", slog.Uint64("user_id", uint64(userID)))
	}

	go c.writePump()
	go c.readPump(h)
	return nil
}

// Publish 向用户房间内的所有连接推送一帧。
//
// 发送缓冲已满的连接直接丢帧（慢消费者不拖垮发布方）。
func (h *Hub) Publish(userID uint, event string, payload interface{}) {
	data, err := json.Marshal(frame{Event: event, Data: payload})
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("marshal realtime event failed", slog.String("event", event), slog.String("error", err.Error()))
		}
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[userID] {
		select {
		case c.send <- data:
			metrics.RealtimeEventsTotal.WithLabelValues(event, "pushed").Inc()
		default:
			metrics.RealtimeEventsTotal.WithLabelValues(event, "dropped").Inc()
			if h.logger != nil {
				h.logger.Warn("realtime event dropped, slow client",
					slog.Uint64("user_id", uint64(userID)),
					slog.String("event", event),
				)
			}
		}
	}
}

// RoomSize 返回某用户当前的连接数。
func (h *Hub) RoomSize(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// Close 关闭所有连接，之后的 Join 会被直接拒绝。
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for userID, room := range h.rooms {
		for c := range room {
			close(c.send)
		}
		delete(h.rooms, userID)
	}
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.userID]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.userID)
	}
}

// readPump 只消费控制帧与客户端关闭；客户端不向服务端发业务消息。
func (c *client) readPump(h *Hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
		metrics.RealtimeConnections.Dec()
		if h.logger != nil {
			h.logger.Info("realtime client disconnected", slog.Uint64("user_id", uint64(c.userID)))
		}
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
