package broadcast

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
)

// sendBufferSize bounds the outbound queue of one client.
const sendBufferSize = 256

// Conn is the transport a client writes frames to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Frame is the envelope of every server to client message.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Shaper builds the payload one viewer receives. Returning false skips the viewer.
type Shaper func(viewer domain.Principal) (any, bool)

// Client represents one connected WebSocket session.
type Client struct {
	ID        string
	Principal domain.Principal

	conn      Conn
	send      chan []byte
	groups    map[string]struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client bound to principal for its lifetime.
func NewClient(id string, principal domain.Principal, conn Conn) *Client {
	return &Client{
		ID:        id,
		Principal: principal,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		groups:    make(map[string]struct{}),
		done:      make(chan struct{}),
	}
}

// Done is closed once the client's write pump has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) closeConn() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// writePump delivers queued frames in order. After a write error the queue
// is drained until the hub closes it.
func (c *Client) writePump(logger types.Logger) {
	defer close(c.done)
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Warn("Write failed, closing client", "clientID", c.ID, "error", err)
			c.closeConn()
			for range c.send {
			}
			return
		}
	}
}

// Hub manages connected clients, their transport groups and fan-out.
type Hub struct {
	clients     map[string]*Client            // clientID -> Client
	groups      map[string]map[string]*Client // group -> clientID -> Client
	byPrincipal map[string]map[string]*Client // principalID -> clientID -> Client
	evict       chan *Client
	done        chan struct{}
	mu          sync.RWMutex
	logger      types.Logger
}

// NewHub creates a new Hub.
func NewHub(logger types.Logger) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		groups:      make(map[string]map[string]*Client),
		byPrincipal: make(map[string]map[string]*Client),
		evict:       make(chan *Client, 64),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run closes clients that fell behind until ctx is cancelled, then closes
// every remaining client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllClients()
			close(h.done)
			return
		case client := <-h.evict:
			h.logger.Warn("Closing slow client", "clientID", client.ID)
			client.closeConn()
		}
	}
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

// closeAllClients closes all connected client connections.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
		client.closeConn()
	}
	h.clients = make(map[string]*Client)
	h.groups = make(map[string]map[string]*Client)
	h.byPrincipal = make(map[string]map[string]*Client)
}

// Register adds a client to the hub and starts its write pump.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	addTo(h.byPrincipal, client.Principal.ID, client)
	h.mu.Unlock()

	go client.writePump(h.logger)
	h.logger.Debug("Client registered", "clientID", client.ID, "principalID", client.Principal.ID)
}

// Unregister removes a client from the hub and every group it joined, and
// returns those groups. Frames already queued are still delivered.
func (h *Hub) Unregister(clientID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return nil
	}
	delete(h.clients, clientID)
	removeFrom(h.byPrincipal, client.Principal.ID, clientID)

	groups := make([]string, 0, len(client.groups))
	for group := range client.groups {
		removeFrom(h.groups, group, clientID)
		groups = append(groups, group)
	}
	client.groups = make(map[string]struct{})
	close(client.send)

	sort.Strings(groups)
	h.logger.Debug("Client unregistered", "clientID", clientID, "groups", len(groups))
	return groups
}

// JoinGroup adds a client to a transport group.
func (h *Hub) JoinGroup(clientID, group string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return false
	}
	client.groups[group] = struct{}{}
	addTo(h.groups, group, client)
	return true
}

// LeaveGroup removes a client from a transport group.
func (h *Hub) LeaveGroup(clientID, group string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return false
	}
	if _, in := client.groups[group]; !in {
		return false
	}
	delete(client.groups, group)
	removeFrom(h.groups, group, clientID)
	return true
}

// JoinPrincipalToGroup adds every live client of principalID to group and
// returns the ids of clients that were not already in it.
func (h *Hub) JoinPrincipalToGroup(principalID, group string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var joined []string
	for clientID, client := range h.byPrincipal[principalID] {
		if _, in := client.groups[group]; in {
			continue
		}
		client.groups[group] = struct{}{}
		addTo(h.groups, group, client)
		joined = append(joined, clientID)
	}
	sort.Strings(joined)
	return joined
}

// RemovePrincipalFromGroup removes every client of principalID from group
// and returns their ids.
func (h *Hub) RemovePrincipalFromGroup(principalID, group string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var removed []string
	for clientID, client := range h.byPrincipal[principalID] {
		if _, in := client.groups[group]; !in {
			continue
		}
		delete(client.groups, group)
		removeFrom(h.groups, group, clientID)
		removed = append(removed, clientID)
	}
	sort.Strings(removed)
	return removed
}

// DropGroup removes every client from group and returns their ids.
func (h *Hub) DropGroup(group string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.groups[group]
	removed := make([]string, 0, len(members))
	for clientID, client := range members {
		delete(client.groups, group)
		removed = append(removed, clientID)
	}
	delete(h.groups, group)
	sort.Strings(removed)
	return removed
}

// Client returns a client by ID.
func (h *Hub) Client(clientID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[clientID]
}

// GroupClients returns all clients in a group ordered by id.
func (h *Hub) GroupClients(group string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedClients(h.groups[group])
}

// PrincipalClients returns all live clients of a principal ordered by id.
func (h *Hub) PrincipalClients(principalID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sortedClients(h.byPrincipal[principalID])
}

// InGroup reports whether a client is in a group.
func (h *Hub) InGroup(clientID, group string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.groups[group][clientID]
	return ok
}

// Emit sends one frame to a single client.
func (h *Hub) Emit(clientID, event string, data any) {
	frame, ok := h.marshal(event, data)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, ok := h.clients[clientID]; ok {
		h.enqueue(client, frame)
	}
}

// EmitToPrincipal sends every live client of a principal the payload shaped for it.
func (h *Hub) EmitToPrincipal(principalID, event string, shape Shaper) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, client := range h.byPrincipal[principalID] {
		payload, ok := shape(client.Principal)
		if !ok {
			continue
		}
		if frame, ok := h.marshal(event, payload); ok {
			h.enqueue(client, frame)
			delivered++
		}
	}
	return delivered
}

// Broadcast sends the same frame to every client in a group.
func (h *Hub) Broadcast(group, event string, data any) {
	frame, ok := h.marshal(event, data)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.groups[group] {
		h.enqueue(client, frame)
	}
}

// EmitToGroup sends each client in a group the payload shaped for its principal.
func (h *Hub) EmitToGroup(group, event string, shape Shaper) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.groups[group] {
		payload, ok := shape(client.Principal)
		if !ok {
			continue
		}
		if frame, ok := h.marshal(event, payload); ok {
			h.enqueue(client, frame)
		}
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GroupCount returns the number of non-empty groups.
func (h *Hub) GroupCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups)
}

func (h *Hub) marshal(event string, data any) ([]byte, bool) {
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		h.logger.Error("Failed to marshal frame", "event", event, "error", err)
		return nil, false
	}
	return frame, true
}

// enqueue must be called with h.mu held.
func (h *Hub) enqueue(client *Client, frame []byte) {
	select {
	case client.send <- frame:
	default:
		select {
		case h.evict <- client:
		default:
		}
	}
}

func addTo(index map[string]map[string]*Client, key string, client *Client) {
	set := index[key]
	if set == nil {
		set = make(map[string]*Client)
		index[key] = set
	}
	set[client.ID] = client
}

func removeFrom(index map[string]map[string]*Client, key, clientID string) {
	set := index[key]
	if set == nil {
		return
	}
	delete(set, clientID)
	if len(set) == 0 {
		delete(index, key)
	}
}

func sortedClients(set map[string]*Client) []*Client {
	clients := make([]*Client, 0, len(set))
	for _, client := range set {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients
}
