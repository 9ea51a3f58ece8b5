package realtime

import (
	"context"
	log "log/slog"
	"sync"
)

// Client 一个本地 WebSocket 连接的发送端
type Client struct {
	ID   string
	send chan []byte
}

func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{ID: id, send: make(chan []byte, buffer)}
}

// Send 写协程从这里读取待发送的帧，Hub 注销连接时关闭
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Hub 本实例的连接表与房间表
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
	joined  map[string]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		joined:  make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// Unregister 移除连接及其全部房间订阅，并关闭发送队列
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}
	for roomID := range h.joined[connID] {
		members := h.rooms[roomID]
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(h.joined, connID)
	delete(h.clients, connID)
	close(c.send)
}

// Join 订阅房间，重复加入无副作用；连接不存在返回 false
func (h *Hub) Join(connID, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return false
	}
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[connID] = c

	rooms, ok := h.joined[connID]
	if !ok {
		rooms = make(map[string]struct{})
		h.joined[connID] = rooms
	}
	rooms[roomID] = struct{}{}
	return true
}

// RoomsOf 连接当前订阅的房间
func (h *Hub) RoomsOf(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	res := make([]string, 0, len(h.joined[connID]))
	for roomID := range h.joined[connID] {
		res = append(res, roomID)
	}
	return res
}

// Count 当前连接数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DeliverRoom 投递给房间内的本地连接，返回成功入队的数量
func (h *Hub) DeliverRoom(roomID string, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, c := range h.rooms[roomID] {
		if offer(c, frame) {
			n++
		}
	}
	return n
}

// DeliverAll 投递给全部本地连接
func (h *Hub) DeliverAll(frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, c := range h.clients {
		if offer(c, frame) {
			n++
		}
	}
	return n
}

// 队列已满说明客户端消费过慢，直接丢弃
func offer(c *Client, frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		log.Warn("ws send buffer full, frame dropped", "connID", c.ID)
		return false
	}
}

// PublishRoom 单实例部署时直接作为 Dispatcher 的下游
func (h *Hub) PublishRoom(_ context.Context, roomID string, frame []byte) error {
	h.DeliverRoom(roomID, frame)
	return nil
}

func (h *Hub) PublishGlobal(_ context.Context, frame []byte) error {
	h.DeliverAll(frame)
	return nil
}

// Close 关闭全部连接队列并清空房间表
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.clients {
		close(c.send)
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]*Client)
	h.joined = make(map[string]map[string]struct{})
}
