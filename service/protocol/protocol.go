// Package protocol defines the realtime event contract shared by the
// websocket hub and the client SDK. Every frame on the wire is an Envelope;
// the Event field selects the payload shape.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Event names. Outbound means client-to-server intent, inbound means
// server-to-client broadcast.
const (
	// outbound
	EventJoinGroupRoom  = "join_group_room"
	EventToggleLikePost = "toggle_like_post"
	EventCommentPost    = "comment_post"

	// inbound
	EventPostLiked         = "post_liked"
	EventPostUnliked       = "post_unliked"
	EventPostCommented     = "post_commented"
	EventNewGroupPost      = "new_group_post"
	EventGroupNotification = "group_notification"
	EventError             = "error"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type JoinRoom struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
}

type ToggleLike struct {
	PostID   string `json:"post_id"`
	UserID   string `json:"user_id"`
	IsLiking bool   `json:"is_liking"`
}

type CommentPost struct {
	PostID  string `json:"post_id"`
	Comment string `json:"comment"`
	UserID  string `json:"user_id"`
}

// LikeChanged is broadcast as post_liked or post_unliked. Likes carries the
// authoritative total; it is a pointer so receivers can distinguish "absent"
// from zero and fall back to a relative update.
type LikeChanged struct {
	PostID string `json:"post_id"`
	UserID string `json:"user_id"`
	Likes  *int   `json:"likes,omitempty"`
}

type Commented struct {
	PostID   string `json:"post_id"`
	Comment  string `json:"comment"`
	UserID   string `json:"user_id"`
	Comments *int   `json:"comments,omitempty"`
}

type Notification struct {
	Message string `json:"message"`
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

// GroupRoom names the broadcast room for a study group.
func GroupRoom(groupID string) string {
	return "group_" + groupID
}

// Marshal wraps a payload in an Envelope and encodes the frame.
func Marshal(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Unmarshal decodes a wire frame into an Envelope.
func Unmarshal(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decoding frame: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("frame missing event name")
	}
	return env, nil
}

// Decode parses the envelope payload into v.
func (e Envelope) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Event, err)
	}
	return nil
}
