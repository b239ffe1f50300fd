// Package relay connects a viewer's event bus to the collaboration hub.
// Elements drawn locally are sent to the server, the element under the
// pointer is shared as presence, and changes made by anyone are reported
// back so the host can re-fetch.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tilescope/tilescope/backend-go/internal/collab/protocol"
	"github.com/tilescope/tilescope/backend-go/internal/events"
)

var ErrClosed = errors.New("relay closed")

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

type Config struct {
	// URL is the server base, http(s) or ws(s).
	URL    string
	ItemID string
	// Target is the annotation that locally drawn elements are added to.
	// Drawn elements are not forwarded when it is empty.
	Target string
	// OnChanged runs from the read loop for every annotation.changed message.
	OnChanged func(annotationID string)
	Logger    *slog.Logger
}

type Relay struct {
	cfg  Config
	bus  *events.Bus
	log  *slog.Logger
	out  chan *protocol.Message
	mu   sync.Mutex
	wait map[string]struct{} // request ids awaiting ack or nack
	seq  int64
}

func New(bus *events.Bus, cfg Config) *Relay {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		cfg:  cfg,
		bus:  bus,
		log:  log,
		out:  make(chan *protocol.Message, sendBuffer),
		wait: make(map[string]struct{}),
	}
}

// Endpoint returns the websocket URL for the configured item.
func (r *Relay) Endpoint() (string, error) {
	u, err := url.Parse(r.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/items/" + url.PathEscape(r.cfg.ItemID)
	return u.String(), nil
}

// Run dials the hub and relays until ctx ends or the connection drops.
func (r *Relay) Run(ctx context.Context) error {
	endpoint, err := r.Endpoint()
	if err != nil {
		return err
	}
	// Subscribe first; events raised while dialing wait in the send buffer.
	unsubscribe := []func(){
		r.bus.Subscribe(events.TopicAnnotationCreated, r.onCreated),
		r.bus.Subscribe(events.TopicMouseOn, r.onMouseOn),
		r.bus.Subscribe(events.TopicMouseOff, r.onMouseOff),
	}
	defer func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}()

	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.readLoop(ctx, conn) })
	g.Go(func() error { return r.writeLoop(ctx, conn) })
	err = g.Wait()
	if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}
	return err
}

// Seq is the last server sequence number seen.
func (r *Relay) Seq() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// Pending returns how many forwarded elements have not been answered.
func (r *Relay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.wait)
}

func (r *Relay) onCreated(payload any) {
	created, ok := payload.(events.CreatedPayload)
	if !ok || r.cfg.Target == "" {
		return
	}
	requestID := uuid.NewString()
	msg, err := protocol.NewMessage(protocol.TypeElementCreated, protocol.ElementCreatedPayload{
		RequestID:    requestID,
		AnnotationID: r.cfg.Target,
		Element:      created.Element,
	})
	if err != nil {
		r.log.Error("encode element", "error", err)
		return
	}
	r.mu.Lock()
	r.wait[requestID] = struct{}{}
	r.mu.Unlock()
	r.enqueue(msg)
}

func (r *Relay) onMouseOn(payload any) {
	p, ok := payload.(events.MousePayload)
	if !ok {
		return
	}
	r.sendPresence(protocol.PresencePayload{
		Cursor:    &protocol.CursorPos{X: p.X, Y: p.Y},
		Highlight: &protocol.HighlightRef{AnnotationID: p.AnnotationID, ElementID: p.ElementID},
	})
}

func (r *Relay) onMouseOff(payload any) {
	p, ok := payload.(events.MousePayload)
	if !ok {
		return
	}
	r.sendPresence(protocol.PresencePayload{Cursor: &protocol.CursorPos{X: p.X, Y: p.Y}})
}

func (r *Relay) sendPresence(p protocol.PresencePayload) {
	msg, err := protocol.NewMessage(protocol.TypePresenceUpdate, p)
	if err != nil {
		return
	}
	r.enqueue(msg)
}

// enqueue never blocks; bus handlers run on the caller's goroutine.
func (r *Relay) enqueue(msg *protocol.Message) {
	select {
	case r.out <- msg:
	default:
		r.log.Warn("relay buffer full, dropping message", "type", msg.Type)
	}
}

func (r *Relay) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case msg := <-r.out:
			data, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("marshal %s: %w", msg.Type, err)
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return fmt.Errorf("write %s: %w", msg.Type, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Relay) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			r.log.Warn("invalid message from hub", "error", err)
			continue
		}
		r.handle(&msg)
	}
}

func (r *Relay) handle(msg *protocol.Message) {
	if msg.Seq > 0 {
		r.mu.Lock()
		if msg.Seq > r.seq {
			r.seq = msg.Seq
		}
		r.mu.Unlock()
	}

	switch msg.Type {
	case protocol.TypeWelcome:
		var p protocol.WelcomePayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			r.mu.Lock()
			r.seq = p.Seq
			r.mu.Unlock()
			r.log.Info("relay connected", "item", r.cfg.ItemID, "client", p.ClientID)
		}
	case protocol.TypeElementAck:
		var p protocol.ElementAckPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			r.settle(p.RequestID)
			r.log.Debug("element stored", "annotation", p.AnnotationID, "element", p.ElementID)
		}
	case protocol.TypeElementNack:
		var p protocol.ElementNackPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			r.settle(p.RequestID)
			r.log.Warn("element rejected", "request", p.RequestID, "reason", p.Reason)
		}
	case protocol.TypeAnnotationChanged:
		var p protocol.AnnotationChangedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			r.log.Warn("invalid annotation.changed payload", "error", err)
			return
		}
		if r.cfg.OnChanged != nil {
			r.cfg.OnChanged(p.AnnotationID)
		}
	case protocol.TypeError:
		var p protocol.ErrorPayload
		json.Unmarshal(msg.Payload, &p)
		r.log.Warn("hub error", "message", p.Message)
	}
}

func (r *Relay) settle(requestID string) {
	r.mu.Lock()
	delete(r.wait, requestID)
	r.mu.Unlock()
}
