// Package collab fans annotation changes out to every viewer of an image.
// Clients connect per image item; elements they draw are stored through
// the hub's saver and announced to the whole room.
package collab

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
	"github.com/tilescope/tilescope/backend-go/internal/collab/protocol"
	"github.com/tilescope/tilescope/backend-go/internal/metrics"
)

// ElementSaver stores one element drawn by a client.
type ElementSaver func(ctx context.Context, annotationID string, el annotation.Element) (annotation.Element, error)

type Room struct {
	itemID    string
	clients   map[string]*Client // clientID -> client
	presences map[string]*protocol.PresencePayload
	seq       int64
}

func NewRoom(itemID string) *Room {
	return &Room{
		itemID:    itemID,
		clients:   make(map[string]*Client),
		presences: make(map[string]*protocol.PresencePayload),
	}
}

type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]*Room // itemID -> room
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	save       ElementSaver
	log        *slog.Logger
}

func NewHub(save ElementSaver) *Hub {
	return &Hub{
		rooms:      make(map[string]*Room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		save:       save,
		log:        slog.Default(),
	}
}

// Run serializes joins and leaves until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.closeSend()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.closeSend()
	}
}

// Clients returns how many clients are connected to an item.
func (h *Hub) Clients(itemID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if room, ok := h.rooms[itemID]; ok {
		return len(room.clients)
	}
	return 0
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.ItemID]
	if !ok {
		room = NewRoom(client.ItemID)
		h.rooms[client.ItemID] = room
	}
	room.clients[client.ClientID] = client
	seq := room.seq
	state := presenceState(room)
	h.mu.Unlock()
	metrics.ClientConnected()

	if welcome, err := protocol.NewMessage(protocol.TypeWelcome, protocol.WelcomePayload{ClientID: client.ClientID, UserID: client.UserID, Seq: seq}); err == nil {
		client.Send(welcome)
	}
	if state != nil {
		client.Send(state)
	}

	if join, err := protocol.NewMessage(protocol.TypePresenceJoin, protocol.PresenceJoinPayload{UserID: client.UserID, DisplayName: client.DisplayName}); err == nil {
		join.UserID = client.UserID
		h.broadcastToRoom(client.ItemID, join, client.ClientID)
	}

	h.log.Info("client joined", "user", client.UserID, "item", client.ItemID)
}

func presenceState(room *Room) *protocol.Message {
	all := make(map[string]*protocol.PresencePayload, len(room.presences))
	for k, v := range room.presences {
		all[k] = v
	}
	msg, err := protocol.NewMessage(protocol.TypePresenceState, protocol.PresenceStatePayload{Presences: all})
	if err != nil {
		slog.Error("marshal presence state", "error", err)
		return nil
	}
	return msg
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.ItemID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := room.clients[client.ClientID]; !ok {
		h.mu.Unlock()
		return
	}

	delete(room.clients, client.ClientID)
	client.closeSend()
	delete(room.presences, client.UserID)

	if len(room.clients) == 0 {
		delete(h.rooms, client.ItemID)
	}
	h.mu.Unlock()
	metrics.ClientDisconnected()

	if leave, err := protocol.NewMessage(protocol.TypePresenceLeave, protocol.PresenceLeavePayload{UserID: client.UserID}); err == nil {
		leave.UserID = client.UserID
		h.broadcastToRoom(client.ItemID, leave, "")
	}

	h.log.Info("client left", "user", client.UserID, "item", client.ItemID)
}

func (h *Hub) handleMessage(ctx context.Context, sender *Client, msg *protocol.Message) {
	metrics.CountMessage(msg.Type)
	switch msg.Type {
	case protocol.TypePresenceUpdate:
		h.handlePresenceUpdate(sender, msg)
	case protocol.TypeElementCreated:
		h.handleElementCreated(ctx, sender, msg)
	default:
		h.log.Warn("unknown message type", "type", msg.Type, "user", sender.UserID)
		if reply, err := protocol.NewMessage(protocol.TypeError, protocol.ErrorPayload{Message: "unknown message type " + msg.Type}); err == nil {
			sender.Send(reply)
		}
	}
}

func (h *Hub) handlePresenceUpdate(sender *Client, msg *protocol.Message) {
	var presence protocol.PresencePayload
	if err := json.Unmarshal(msg.Payload, &presence); err != nil {
		h.log.Warn("invalid presence payload", "error", err)
		return
	}
	presence.DisplayName = sender.DisplayName

	h.mu.Lock()
	room, ok := h.rooms[sender.ItemID]
	if ok {
		room.presences[sender.UserID] = &presence
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	out, err := protocol.NewMessage(protocol.TypePresenceUpdate, presence)
	if err != nil {
		return
	}
	out.UserID = sender.UserID
	h.broadcastToRoom(sender.ItemID, out, sender.ClientID)
}

// AnnotationChanged announces a change made outside the hub, such as
// through the HTTP API.
func (h *Hub) AnnotationChanged(itemID, annotationID string) {
	h.announceChange(itemID, annotationID, "")
}

func (h *Hub) announceChange(itemID, annotationID, userID string) int64 {
	h.mu.Lock()
	room, ok := h.rooms[itemID]
	if !ok {
		h.mu.Unlock()
		return 0
	}
	room.seq++
	seq := room.seq
	h.mu.Unlock()

	msg, err := protocol.NewMessage(protocol.TypeAnnotationChanged, protocol.AnnotationChangedPayload{AnnotationID: annotationID, UserID: userID, ServerSeq: seq})
	if err != nil {
		return seq
	}
	msg.Seq = seq
	h.broadcastToRoom(itemID, msg, "")
	return seq
}

func (h *Hub) broadcastToRoom(itemID string, msg *protocol.Message, excludeClientID string) {
	h.mu.RLock()
	room, ok := h.rooms[itemID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	clients := make([]*Client, 0, len(room.clients))
	for _, c := range room.clients {
		if c.ClientID != excludeClientID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Send(msg)
	}
}
