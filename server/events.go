package server

import (
	"net/http"
	"sync"
	"time"

	"trackvault/core/auth"
	"trackvault/logger"

	"github.com/gorilla/websocket"
)

// EventType 事件类型
type EventType string

const (
	// EventTrackReady a processing track became playable.
	EventTrackReady EventType = "track_ready"
	// EventPlaylistUpdated a track list changed shape (insert, delete, reorder).
	EventPlaylistUpdated EventType = "playlist_updated"
)

// Event is pushed to the subscriptions of the affected user.
type Event struct {
	Type      EventType `json:"type"`
	TrackID   int64     `json:"trackId,omitempty"`
	AlbumID   int64     `json:"albumId,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

var eventUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventClient 一个订阅连接，写操作全部走缓冲通道
type eventClient struct {
	hub    *EventHub
	conn   *websocket.Conn
	userID int64
	send   chan Event
}

// writePump 串行写出事件，连接由它负责关闭
func (c *eventClient) writePump() {
	defer c.conn.Close()
	for evt := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(evt); err != nil {
			logger.Warn("websocket write failed, dropping client",
				logger.Int64("userId", c.userID), logger.ErrorField(err))
			c.hub.drop(c)
			return
		}
	}
}

// EventHub fans server-side state changes out to websocket subscribers.
// Events are scoped to the owning user; a slow client is dropped rather
// than allowed to stall the broadcast.
type EventHub struct {
	mu      sync.Mutex
	clients map[*eventClient]struct{}
}

// NewEventHub 创建事件中心
func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[*eventClient]struct{})}
}

// Broadcast 向该用户的所有连接推送事件
func (h *EventHub) Broadcast(userID int64, evt Event) {
	evt.Timestamp = time.Now().UnixMilli()

	h.mu.Lock()
	targets := make([]*eventClient, 0, len(h.clients))
	for c := range h.clients {
		if c.userID == userID {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		select {
		case c.send <- evt:
		default:
			// 发送缓冲区满，客户端跟不上了
			h.drop(c)
		}
	}
}

func (h *EventHub) add(c *eventClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *EventHub) drop(c *eventClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// HandleEvents 升级连接并保持到客户端断开
// WebSocket 无法通过 header 传递 token，从查询参数读取
func (h *EventHub) HandleEvents(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ParseToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := eventUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := &eventClient{hub: h, conn: conn, userID: claims.UserID, send: make(chan Event, 16)}
	h.add(client)
	go client.writePump()
	defer h.drop(client)

	// Drain reads until the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
