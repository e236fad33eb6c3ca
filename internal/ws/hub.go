package ws

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Hub tracks analytics subscribers and the {TICKER}_{topic} groups they
// joined. The streamer only recomputes groups with at least one member.
type Hub struct {
	name       string
	clients    map[*Client]bool
	groups     map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zap.Logger
}

func NewHub(name string, logger *zap.Logger) *Hub {
	return &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		groups:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations until ctx is cancelled, then disconnects
// everyone. Call in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down", zap.String("hub", h.name), zap.Int("clients", h.ClientCount()))
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("hub", h.name), zap.String("connID", client.connID))

		case client := <-h.unregister:
			if h.remove(client) {
				h.logger.Debug("client unregistered", zap.String("hub", h.name), zap.String("connID", client.connID))
			}
		}
	}
}

// remove drops client from the hub and every group it joined. It reports
// false if the client was already gone.
func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return false
	}
	delete(h.clients, client)
	for group := range client.groups {
		h.leaveLocked(client, group)
	}
	client.closeSend()
	return true
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	close(h.done)
	for client := range h.clients {
		client.closeSend()
	}
	h.clients = make(map[*Client]bool)
	h.groups = make(map[string]map[*Client]bool)
}

// drop schedules a client for removal unless the hub has stopped.
func (h *Hub) drop(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// JoinGroup subscribes client to group.
func (h *Hub) JoinGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.groups[group]
	if members == nil {
		members = make(map[*Client]bool)
		h.groups[group] = members
	}
	members[client] = true
	client.groups[group] = true

	h.logger.Debug("client joined group",
		zap.String("hub", h.name),
		zap.String("connID", client.connID),
		zap.String("group", group),
		zap.Int("members", len(members)),
	)
}

// LeaveGroup unsubscribes client from group.
func (h *Hub) LeaveGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, group)

	h.logger.Debug("client left group",
		zap.String("hub", h.name),
		zap.String("connID", client.connID),
		zap.String("group", group),
	)
}

// leaveLocked requires h.mu held for writing. Empty groups are deleted so
// the streamer stops computing them.
func (h *Hub) leaveLocked(client *Client, group string) {
	if members, ok := h.groups[group]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	delete(client.groups, group)
}

// ActiveGroups returns the groups with at least one member, sorted.
func (h *Hub) ActiveGroups() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	groups := make([]string, 0, len(h.groups))
	for group := range h.groups {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	return groups
}

// GroupSizes returns the member count of each active group.
func (h *Hub) GroupSizes() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sizes := make(map[string]int, len(h.groups))
	for group, members := range h.groups {
		sizes[group] = len(members)
	}
	return sizes
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastFrame queues frame for every member of group, each in its
// negotiated encoding. Members whose buffer is full are disconnected.
func (h *Hub) BroadcastFrame(group string, frame *Frame) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.groups[group]))
	for client := range h.groups[group] {
		members = append(members, client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		msg := frame.JSON
		if client.protocol == protocolProtobuf {
			msg = frame.Protobuf
		}
		if !client.enqueue(msg) {
			h.logger.Debug("send buffer full, disconnecting", zap.String("connID", client.connID), zap.String("group", group))
			go h.drop(client)
		}
	}
}
