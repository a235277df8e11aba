package ws

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/studysphere/studysphere-server/cmd/utils"
	"github.com/studysphere/studysphere-server/service/posts"
	"github.com/studysphere/studysphere-server/service/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler owns the hub and translates inbound realtime intents into post
// mutations plus room broadcasts.
type Handler struct {
	repo posts.PostRepository
	hub  *Hub
}

func NewHandler(repo posts.PostRepository) *Handler {
	hub := NewHub()
	go hub.Run()

	return &Handler{
		repo: repo,
		hub:  hub,
	}
}

// Hub exposes the hub so HTTP handlers can broadcast too.
func (h *Handler) Hub() *Hub {
	return h.hub
}

// Close stops the hub's run loop during shutdown.
func (h *Handler) Close() {
	h.hub.Stop()
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades the connection and starts the pumps. The token
// arrives as a query parameter because browser websocket clients cannot set
// headers.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("Authorization")
	}
	userID, err := utils.UserIDFromToken(token)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	log.Printf("WebSocket connection established for user %d", userID)

	client := &Client{
		hub:    h.hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
	}

	h.hub.register <- client

	go client.WritePump()
	go h.handleClientMessages(client)
}

func (h *Handler) handleClientMessages(client *Client) {
	defer func() {
		h.hub.unregister <- client
		client.conn.Close()
	}()

	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			break
		}

		env, err := protocol.Unmarshal(frame)
		if err != nil {
			log.Printf("error decoding frame: %v", err)
			continue
		}

		switch env.Event {
		case protocol.EventJoinGroupRoom:
			h.handleJoinRoom(client, env)
		case protocol.EventToggleLikePost:
			h.handleToggleLike(client, env)
		case protocol.EventCommentPost:
			h.handleComment(client, env)
		default:
			h.sendError(client, fmt.Sprintf("Unknown event: %s", env.Event))
		}
	}
}

func (h *Handler) handleJoinRoom(client *Client, env protocol.Envelope) {
	var payload protocol.JoinRoom
	if err := env.Decode(&payload); err != nil {
		h.sendError(client, err.Error())
		return
	}
	if payload.GroupID == "" {
		h.sendError(client, "Missing group_id")
		return
	}

	userID := fmt.Sprint(client.userID)
	room := protocol.GroupRoom(payload.GroupID)
	h.hub.JoinRoom(room, client)

	frame, err := protocol.Marshal(protocol.EventGroupNotification, protocol.Notification{
		Message: fmt.Sprintf("User %s joined group %s", userID, payload.GroupID),
		GroupID: payload.GroupID,
		UserID:  userID,
	})
	if err != nil {
		log.Printf("error encoding notification: %v", err)
		return
	}
	h.hub.BroadcastToRoom(room, frame)
}

func (h *Handler) handleToggleLike(client *Client, env protocol.Envelope) {
	var payload protocol.ToggleLike
	if err := env.Decode(&payload); err != nil {
		h.sendError(client, err.Error())
		return
	}
	if payload.PostID == "" {
		h.sendError(client, "Missing post_id")
		return
	}

	// the connection's JWT identity is authoritative, not the payload
	userID := fmt.Sprint(client.userID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := h.repo.SetLike(ctx, payload.PostID, userID, payload.IsLiking)
	if err != nil {
		h.sendError(client, err.Error())
		return
	}

	event := protocol.EventPostLiked
	if !payload.IsLiking {
		event = protocol.EventPostUnliked
	}
	likes := result.Likes
	frame, err := protocol.Marshal(event, protocol.LikeChanged{
		PostID: payload.PostID,
		UserID: userID,
		Likes:  &likes,
	})
	if err != nil {
		log.Printf("error encoding like broadcast: %v", err)
		return
	}
	h.hub.BroadcastToRoom(protocol.GroupRoom(result.GroupID), frame)
}

func (h *Handler) handleComment(client *Client, env protocol.Envelope) {
	var payload protocol.CommentPost
	if err := env.Decode(&payload); err != nil {
		h.sendError(client, err.Error())
		return
	}
	if payload.PostID == "" || payload.Comment == "" {
		h.sendError(client, "Missing post_id or comment")
		return
	}

	userID := fmt.Sprint(client.userID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := h.repo.AddComment(ctx, payload.PostID, userID, payload.Comment)
	if err != nil {
		h.sendError(client, err.Error())
		return
	}

	comments := result.Comments
	frame, err := protocol.Marshal(protocol.EventPostCommented, protocol.Commented{
		PostID:   payload.PostID,
		Comment:  payload.Comment,
		UserID:   userID,
		Comments: &comments,
	})
	if err != nil {
		log.Printf("error encoding comment broadcast: %v", err)
		return
	}
	h.hub.BroadcastToRoom(protocol.GroupRoom(result.GroupID), frame)
}

// sendError reports a handling failure to the offending connection only.
func (h *Handler) sendError(client *Client, message string) {
	frame, err := protocol.Marshal(protocol.EventError, protocol.ErrorMessage{Message: message})
	if err != nil {
		log.Printf("error encoding error frame: %v", err)
		return
	}
	h.hub.Send(client, frame)
}
