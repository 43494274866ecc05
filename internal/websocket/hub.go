package websocket

import (
	"encoding/json"
	"sync"
)

// BadgeRefreshMessage 看板角标刷新消息
type BadgeRefreshMessage struct {
	Type           string `json:"type"`
	BusinessUnitID string `json:"business_unit_id"`
}

// Hub 管理所有 WebSocket 连接
type Hub struct {
	// 已注册的客户端
	clients map[*Client]bool

	// 广播消息到所有客户端
	Broadcast chan []byte

	// 注册新客户端
	Register chan *Client

	// 注销客户端
	Unregister chan *Client

	stop chan struct{}

	// 保护 clients map
	mu sync.RWMutex
}

// NewHub 创建新的 Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		Broadcast:  make(chan []byte),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}
}

// Run 运行 Hub, 直到调用 Stop
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return

		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case message := <-h.Broadcast:
			h.deliver(message, func(*Client) bool { return true })
		}
	}
}

// Stop 停止 Hub 并关闭所有客户端
func (h *Hub) Stop() {
	close(h.stop)
}

// remove 删除客户端, 调用方持有写锁
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
}

// deliver 向匹配的客户端发送消息, 发送队列已满的客户端被断开
func (h *Hub) deliver(message []byte, match func(*Client) bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for client := range h.clients {
		if !match(client) {
			continue
		}
		select {
		case client.Send <- message:
			sent++
		default:
			h.remove(client)
		}
	}
	return sent
}

// BroadcastToUser 向特定用户广播消息
func (h *Hub) BroadcastToUser(userID string, message []byte) int {
	return h.deliver(message, func(c *Client) bool { return c.UserID == userID })
}

// BroadcastToBusinessUnit 向业务单元内的客户端广播消息
func (h *Hub) BroadcastToBusinessUnit(businessUnitID string, message []byte) int {
	return h.deliver(message, func(c *Client) bool { return c.BusinessUnitID == businessUnitID })
}

// NotifyBadgeRefresh 通知业务单元刷新看板角标
func (h *Hub) NotifyBadgeRefresh(businessUnitID string) int {
	payload, _ := json.Marshal(BadgeRefreshMessage{Type: "badges.refresh", BusinessUnitID: businessUnitID})
	return h.BroadcastToBusinessUnit(businessUnitID, payload)
}

// HasClient 检查客户端是否存在
func (h *Hub) HasClient(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.ID == clientID {
			return true
		}
	}
	return false
}

// GetClientCount 获取客户端数量
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
