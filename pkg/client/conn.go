package client

import (
	"fmt"
	"log"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/studysphere/studysphere-server/service/protocol"
)

// Emitter sends a named event to the server. The realtime path is
// fire-and-forget: Emit returns once the frame is written, not when the
// server has processed it.
type Emitter interface {
	Emit(event string, payload interface{}) error
}

// Conn wraps a websocket connection with the event protocol. A Conn is shared
// by every component in a session; writes are serialized internally.
type Conn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the server's realtime endpoint. The auth token is passed
// as a query parameter, matching the server's websocket handler.
func Dial(serverURL, token string) (*Conn, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime endpoint: %w", err)
	}

	return &Conn{
		conn: conn,
		done: make(chan struct{}),
	}, nil
}

func (c *Conn) Emit(event string, payload interface{}) error {
	frame, err := protocol.Marshal(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Listen reads inbound frames and dispatches them to handler until the
// connection is closed. Malformed frames are logged and skipped.
func (c *Conn) Listen(handler func(protocol.Envelope)) {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("realtime read error: %v", err)
			}
			return
		}

		env, err := protocol.Unmarshal(frame)
		if err != nil {
			log.Printf("skipping malformed frame: %v", err)
			continue
		}
		handler(env)
	}
}

// Close tears down the connection and stops the read loop.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
