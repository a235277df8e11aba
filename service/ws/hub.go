package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one websocket connection. Send is buffered; a client whose buffer
// is full gets the frame dropped rather than blocking the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uint
}

// Hub maintains active clients and per-room subscription sets.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	rooms      map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Stop ends the Run loop. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for room, members := range h.rooms {
					delete(members, client)
					if len(members) == 0 {
						delete(h.rooms, room)
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
		}
	}
}

// JoinRoom subscribes a client to a room. Joining twice is a no-op.
func (h *Hub) JoinRoom(room string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[client] = true
}

// LeaveRoom removes a client from a room's subscription set.
func (h *Hub) LeaveRoom(room string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// BroadcastToRoom delivers a frame to every member of a room.
func (h *Hub) BroadcastToRoom(room string, frame []byte) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for client := range h.rooms[room] {
		members = append(members, client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		select {
		case client.send <- frame:
		default:
			// drop if the client's send buffer is full
		}
	}
}

// Send delivers a frame to a single client.
func (h *Hub) Send(client *Client, frame []byte) {
	select {
	case client.send <- frame:
	default:
	}
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// WritePump pumps frames from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
