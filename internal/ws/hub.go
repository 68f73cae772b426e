// Package ws owns the websocket transport: connection lifecycle, fan-out to
// operator observers, and per-connection delivery. What the messages mean is
// the coordinator's business, reached through the EventHandler interface.
package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"examdesk-backend/internal/middleware"
	"examdesk-backend/internal/models"
)

// EventHandler receives connection lifecycle events and inbound messages.
type EventHandler interface {
	HandleMessage(c *Client, env models.Envelope)
	HandleDisconnect(c *Client)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Hub struct {
	mu        sync.RWMutex
	clients   map[uuid.UUID]*Client
	observers map[uuid.UUID]*Client
	handler   EventHandler
	jwt       *middleware.JWTAuth
}

func NewHub(jwt *middleware.JWTAuth) *Hub {
	return &Hub{
		clients:   make(map[uuid.UUID]*Client),
		observers: make(map[uuid.UUID]*Client),
		jwt:       jwt,
	}
}

// SetHandler must be called before the hub serves connections; it is separate
// from the constructor because the coordinator needs the hub to notify through.
func (h *Hub) SetHandler(handler EventHandler) {
	h.handler = handler
}

// HandleStation upgrades an exam station connection. Stations are deliberately
// unauthenticated at the transport level; their identity is the machine UUID
// carried in the join event.
func (h *Hub) HandleStation(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, RoleStation)
}

// HandleObserver upgrades an operator panel connection, authenticated by a JWT
// in the token query parameter (browsers can't set headers on websockets).
func (h *Hub) HandleObserver(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if _, _, err := h.jwt.ValidateToken(tokenStr); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	h.serve(w, r, RoleObserver)
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, role string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	client := newClient(h, conn, role, r.RemoteAddr)

	h.mu.Lock()
	h.clients[client.ID] = client
	if role == RoleObserver {
		h.observers[client.ID] = client
	}
	total := len(h.clients)
	h.mu.Unlock()

	log.Printf("ws: %s connected %s from %s (total: %d)", role, client.ID, client.RemoteIP, total)

	go client.writePump()
	go client.readPump()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	delete(h.clients, c.ID)
	delete(h.observers, c.ID)
	h.mu.Unlock()

	if !ok {
		return
	}
	close(c.send)
	log.Printf("ws: %s disconnected %s", c.Role, c.ID)
	h.handler.HandleDisconnect(c)
}

// SendTo delivers one message to one connection. A full send buffer drops the
// message rather than blocking the caller on a stalled peer.
func (h *Hub) SendTo(connID uuid.UUID, msgType string, payload any) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.deliver(c, msgType, payload)
}

// BroadcastObservers fans a message out to every operator panel connection.
func (h *Hub) BroadcastObservers(msgType string, payload any) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.observers))
	for _, c := range h.observers {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, msgType, payload)
	}
}

// SendError reports a user-visible failure back over the connection.
func (h *Hub) SendError(connID uuid.UUID, message string) {
	h.SendTo(connID, models.MsgError, models.ErrorPayload{Message: message})
}

func (h *Hub) deliver(c *Client, msgType string, payload any) {
	data, err := json.Marshal(models.Outbound{Type: msgType, Payload: payload})
	if err != nil {
		log.Printf("ws: marshal %s: %v", msgType, err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("ws: dropping %s to slow %s %s", msgType, c.Role, c.ID)
	}
}
