// Package hubapi exposes the bridge to the smart-home hub over a websocket:
// attribute updates and lifecycle events are broadcast to all connected hub
// clients, and command/setup requests are routed to the bridge.
package hubapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hubgrid/androidtv-bridge/internal/domain/bridge"
	"github.com/hubgrid/androidtv-bridge/internal/domain/session"
	"github.com/hubgrid/androidtv-bridge/internal/infra/metadata"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 25 * time.Second
	readTimeout  = 60 * time.Second
)

// Message is the envelope for both directions of the hub websocket.
type Message struct {
	Kind     string          `json:"kind"`
	MsgID    int             `json:"msg_id,omitempty"`
	DeviceID string          `json:"device_id,omitempty"`
	Code     int             `json:"code,omitempty"`
	Error    string          `json:"error,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Event is the payload of broadcast event messages.
type Event struct {
	Event      string         `json:"event"`
	DeviceID   string         `json:"device_id"`
	Address    string         `json:"address,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// client is one connected hub with a serialized writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// Server is the hub-facing websocket server.
type Server struct {
	bridge   *bridge.Bridge
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewServer creates the server and subscribes it to bridge events.
func NewServer(b *bridge.Bridge) *Server {
	s := &Server{
		bridge: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The hub connects from the local network, not a browser.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
	b.OnEvent(s.broadcast)
	return s
}

// ServeHTTP upgrades the connection and serves it until it drops.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("remote", r.RemoteAddr).Msg("Websocket upgrade failed")
		return
	}

	c := &client{conn: conn}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	log.Info().Str("remote", r.RemoteAddr).Msg("Hub client connected")

	go s.keepalive(c)
	s.readLoop(c)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	conn.Close()
	log.Info().Str("remote", r.RemoteAddr).Msg("Hub client disconnected")
}

func (s *Server) readLoop(c *client) {
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Hub connection dropped")
			}
			return
		}
		s.dispatch(c, msg)
	}
}

func (s *Server) keepalive(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := c.conn.WriteMessage(websocket.PingMessage, nil)
		c.mu.Unlock()
		if err != nil {
			return
		}
	}
}

// broadcast fans a session event out to every connected hub client.
func (s *Server) broadcast(event session.Event) {
	payload := Event{
		Event:    event.Kind.String(),
		DeviceID: event.DeviceID,
		Address:  event.Address,
	}
	if event.Kind == session.EventUpdate {
		payload.Attributes = event.Attributes
	}

	if log.Debug().Enabled() {
		raw, _ := json.Marshal(payload)
		log.Debug().Str("event", payload.Event).Str("device", event.DeviceID).
			Str("payload", metadata.FilterDataURIs(string(raw))).Msg("Broadcasting event")
	}

	msg := Message{Kind: "event"}
	msg.Payload, _ = json.Marshal(payload)

	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.writeJSON(msg); err != nil {
			log.Debug().Err(err).Msg("Event broadcast to client failed")
		}
	}
}

func (s *Server) reply(c *client, req Message, code session.Status, payload any, errMsg string) {
	msg := Message{
		Kind:     req.Kind + "_result",
		MsgID:    req.MsgID,
		DeviceID: req.DeviceID,
		Code:     int(code),
		Error:    errMsg,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("kind", req.Kind).Msg("Failed to encode reply payload")
			msg.Code = int(session.StatusServerError)
		} else {
			msg.Payload = raw
		}
	}
	if err := c.writeJSON(msg); err != nil {
		log.Debug().Err(err).Str("kind", msg.Kind).Msg("Reply write failed")
	}
}
