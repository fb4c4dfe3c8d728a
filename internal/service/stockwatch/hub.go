// internal/service/stockwatch/hub.go
package stockwatch

import (
	"context"
	"sync"

	"atlas/internal/pkg/logger"
)

// Hub 维护所有活跃的 WebSocket 订阅者并负责事件广播。
// 注册、注销和广播都走 channel，由 Run 单协程串行处理，
// clients 本身不需要再加锁。
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg
	done       chan struct{}

	mu     sync.RWMutex
	closed bool
}

type broadcastMsg struct {
	productID string // 为空表示对所有订阅者广播
	payload   []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg, 256),
		done:       make(chan struct{}),
	}
}

// add 把订阅者交给 Run 协程。hub 已停止时返回 false，
// 此时连接由调用方负责关闭。
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// remove 注销订阅者。hub 停止后是 no-op，send channel
// 已在 shutdown 里统一关闭。
func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Run 处理注册/注销/广播，直到 ctx 取消。
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.register:
			h.clients[client] = struct{}{}
			logger.Logger().Info().Str("client_id", client.id).Int("clients", len(h.clients)).
				Msg("stock watch client connected")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			logger.Logger().Info().Str("client_id", client.id).Int("clients", len(h.clients)).
				Msg("stock watch client disconnected")
		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.wants(msg.productID) {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					// 写缓冲打满说明客户端跟不上，踢掉防止拖垮整个 hub
					delete(h.clients, client)
					close(client.send)
					logger.Logger().Warn().Str("client_id", client.id).
						Msg("🛑 slow stock watch client dropped")
				}
			}
		}
	}
}

// Broadcast 把一条事件推给关注 productID 的订阅者。
// productID 为空表示订单级事件，所有订阅者都会收到。
func (h *Hub) Broadcast(productID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	select {
	case h.broadcast <- broadcastMsg{productID: productID, payload: payload}:
	default:
		logger.Logger().Warn().Msg("stock watch broadcast buffer full, dropping event")
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	close(h.done)
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}
