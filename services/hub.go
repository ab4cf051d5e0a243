package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"qteams/logging"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Message types exchanged over the team websocket.
const (
	MessageTeamUpdate       = "team_update"
	MessageTeamDeleted      = "team_deleted"
	MessageTeamState        = "team_state"
	MessagePing             = "ping"
	MessagePong             = "pong"
	MessageRequestTeamState = "request_team_state"
	MessageError            = "error"
)

// TeamStateProvider resolves the per-viewer state sent on request.
type TeamStateProvider interface {
	State(ctx context.Context, teamID, viewerID uint) (*TeamState, error)
}

// Hub keeps the websocket subscribers of every team and pushes team
// changes to them. It implements TeamNotifier.
type Hub struct {
	clients    map[uint]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
	states     TeamStateProvider
	log        *logging.Logger
}

type Client struct {
	hub      *Hub
	id       string
	socket   *websocket.Conn
	send     chan []byte
	teamID   uint
	userID   uint
	username string
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

func NewHub(states TeamStateProvider, log *logging.Logger) *Hub {
	if log == nil {
		log = logging.Nop()
	}
	return &Hub{
		clients:    make(map[uint]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		states:     states,
		log:        log,
	}
}

// Run processes registrations until ctx is cancelled, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for teamID, clients := range h.clients {
				for client := range clients {
					close(client.send)
				}
				delete(h.clients, teamID)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			if h.clients[client.teamID] == nil {
				h.clients[client.teamID] = make(map[*Client]bool)
			}
			h.clients[client.teamID][client] = true
			count := len(h.clients[client.teamID])
			h.mutex.Unlock()
			h.log.WithTeam(client.teamID).WithUser(client.userID).
				Debug("client registered", "client_id", client.id, "clients", count)
			go client.sendState()

		case client := <-h.unregister:
			h.mutex.Lock()
			h.removeLocked(client)
			h.mutex.Unlock()
			h.log.WithTeam(client.teamID).WithUser(client.userID).
				Debug("client unregistered", "client_id", client.id)
		}
	}
}

// removeLocked drops client and closes its send channel once. The caller
// holds the write lock.
func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.clients[client.teamID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.teamID)
	}
}

// BroadcastToTeam sends a message to every subscriber of teamID. Clients
// whose buffer is full are dropped.
func (h *Hub) BroadcastToTeam(teamID uint, messageType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		h.log.WithTeam(teamID).Error("failed to marshal message", "type", messageType, "error", err)
		return
	}

	h.mutex.Lock()
	sent := 0
	for client := range h.clients[teamID] {
		select {
		case client.send <- data:
			sent++
		default:
			h.log.WithTeam(teamID).WithUser(client.userID).Warn("client send buffer full, disconnecting", "client_id", client.id)
			h.removeLocked(client)
		}
	}
	h.mutex.Unlock()

	h.log.WithTeam(teamID).Debug("broadcast", "type", messageType, "clients", sent)
}

func (h *Hub) TeamChanged(_ context.Context, snapshot *TeamSnapshot) {
	h.BroadcastToTeam(snapshot.TeamID, MessageTeamUpdate, snapshot)
}

// TeamDeleted tells the subscribers and disconnects them.
func (h *Hub) TeamDeleted(_ context.Context, teamID uint) {
	clients := h.ClientCount(teamID)
	h.BroadcastToTeam(teamID, MessageTeamDeleted, map[string]uint{"team_id": teamID})

	h.mutex.Lock()
	for client := range h.clients[teamID] {
		h.removeLocked(client)
	}
	h.mutex.Unlock()
	h.log.WithTeam(teamID).Debug("team deleted, clients disconnected", "clients", clients)
}

// ClientCount returns the number of subscribers of teamID.
func (h *Hub) ClientCount(teamID uint) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients[teamID])
}

// ConnectedUsers lists the distinct users subscribed to teamID.
func (h *Hub) ConnectedUsers(teamID uint) []uint {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	seen := make(map[uint]bool)
	var users []uint
	for client := range h.clients[teamID] {
		if !seen[client.userID] {
			seen[client.userID] = true
			users = append(users, client.userID)
		}
	}
	return users
}

// RegisterClient attaches an upgraded connection to teamID and starts its
// pumps. The current state is sent once the hub has registered it. It
// returns nil when the hub has stopped.
func (h *Hub) RegisterClient(conn *websocket.Conn, teamID, userID uint, username string) *Client {
	client := &Client{
		hub:      h,
		id:       uuid.NewString(),
		socket:   conn,
		send:     make(chan []byte, 256),
		teamID:   teamID,
		userID:   userID,
		username: username,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return nil
	}

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithTeam(c.teamID).WithUser(c.userID).Warn("websocket read error", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(MessageError, "invalid message")
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case MessagePing:
		c.reply(MessagePong, "pong")
	case MessageRequestTeamState:
		c.sendState()
	default:
		c.hub.log.WithTeam(c.teamID).WithUser(c.userID).Debug("unknown message type", "type", msg.Type)
		c.reply(MessageError, "unknown message type")
	}
}

func (c *Client) sendState() {
	if c.hub.states == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	state, err := c.hub.states.State(ctx, c.teamID, c.userID)
	if err != nil {
		c.reply(MessageError, err.Error())
		return
	}
	state.Connected = c.hub.ConnectedUsers(c.teamID)
	c.reply(MessageTeamState, state)
}

// reply queues a message for this client only. It is a no-op once the
// client has been removed.
func (c *Client) reply(messageType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		return
	}

	c.hub.mutex.RLock()
	defer c.hub.mutex.RUnlock()
	if !c.hub.clients[c.teamID][c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
