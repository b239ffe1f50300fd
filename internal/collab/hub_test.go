package collab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
	"github.com/tilescope/tilescope/backend-go/internal/collab/protocol"
)

type savedElement struct {
	annotationID string
	element      annotation.Element
}

func newTestServer(t *testing.T, save ElementSaver) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(save)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		q := r.URL.Query()
		client := NewClient(hub, conn, q.Get("user"), q.Get("user"), q.Get("item"), q.Get("client"))
		client.Serve(r.Context())
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, item, user, client string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?item=" + item + "&user=" + user + "&client=" + client
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

// readUntil skips messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) protocol.Message {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := readMessage(t, conn)
		if msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("no %s message", msgType)
	return protocol.Message{}
}

func writeMessage(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	data, _ := json.Marshal(msg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitForClients(t *testing.T, hub *Hub, item string, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.Clients(item) != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients on %s = %d, want %d", item, hub.Clients(item), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWelcomeAndPresenceState(t *testing.T) {
	_, srv := newTestServer(t, nil)
	conn := dial(t, srv, "item1", "alice", "c1")

	welcome := readMessage(t, conn)
	if welcome.Type != protocol.TypeWelcome {
		t.Fatalf("first message = %s, want welcome", welcome.Type)
	}
	var p protocol.WelcomePayload
	json.Unmarshal(welcome.Payload, &p)
	if p.ClientID != "c1" || p.UserID != "alice" {
		t.Errorf("welcome = %+v", p)
	}
	if state := readMessage(t, conn); state.Type != protocol.TypePresenceState {
		t.Errorf("second message = %s, want presence.state", state.Type)
	}
}

func TestPresenceBroadcast(t *testing.T) {
	hub, srv := newTestServer(t, nil)
	alice := dial(t, srv, "item1", "alice", "c1")
	readUntil(t, alice, protocol.TypePresenceState)
	bob := dial(t, srv, "item1", "bob", "c2")
	readUntil(t, bob, protocol.TypePresenceState)
	waitForClients(t, hub, "item1", 2)

	join := readUntil(t, alice, protocol.TypePresenceJoin)
	if join.UserID != "bob" {
		t.Errorf("join from %q, want bob", join.UserID)
	}

	writeMessage(t, bob, protocol.TypePresenceUpdate, protocol.PresencePayload{
		Highlight: &protocol.HighlightRef{AnnotationID: "ann1", ElementID: "el1"},
	})
	update := readUntil(t, alice, protocol.TypePresenceUpdate)
	var p protocol.PresencePayload
	json.Unmarshal(update.Payload, &p)
	if update.UserID != "bob" || p.Highlight == nil || p.Highlight.ElementID != "el1" {
		t.Errorf("update = %+v %+v", update, p)
	}
	if p.DisplayName != "bob" {
		t.Errorf("display name = %q", p.DisplayName)
	}

	bob.Close(websocket.StatusNormalClosure, "")
	leave := readUntil(t, alice, protocol.TypePresenceLeave)
	if leave.UserID != "bob" {
		t.Errorf("leave from %q", leave.UserID)
	}
	waitForClients(t, hub, "item1", 1)
}

func TestRoomsAreIsolated(t *testing.T) {
	hub, srv := newTestServer(t, nil)
	a := dial(t, srv, "item1", "alice", "c1")
	readUntil(t, a, protocol.TypePresenceState)
	b := dial(t, srv, "item2", "bob", "c2")
	readUntil(t, b, protocol.TypePresenceState)
	waitForClients(t, hub, "item2", 1)

	hub.AnnotationChanged("item2", "ann9")
	msg := readUntil(t, b, protocol.TypeAnnotationChanged)
	var p protocol.AnnotationChangedPayload
	json.Unmarshal(msg.Payload, &p)
	if p.AnnotationID != "ann9" || p.ServerSeq != 1 {
		t.Errorf("changed = %+v", p)
	}

	hub.AnnotationChanged("item1", "ann1")
	msg = readUntil(t, a, protocol.TypeAnnotationChanged)
	json.Unmarshal(msg.Payload, &p)
	if p.AnnotationID != "ann1" {
		t.Errorf("item1 saw change for %q", p.AnnotationID)
	}
}

func TestElementCreated(t *testing.T) {
	saved := make(chan savedElement, 1)
	hub, srv := newTestServer(t, func(ctx context.Context, annotationID string, el annotation.Element) (annotation.Element, error) {
		el.ID = "el_stored"
		saved <- savedElement{annotationID, el}
		return el, nil
	})
	alice := dial(t, srv, "item1", "alice", "c1")
	readUntil(t, alice, protocol.TypePresenceState)
	bob := dial(t, srv, "item1", "bob", "c2")
	readUntil(t, bob, protocol.TypePresenceState)
	waitForClients(t, hub, "item1", 2)

	writeMessage(t, alice, protocol.TypeElementCreated, protocol.ElementCreatedPayload{
		RequestID:    "r1",
		AnnotationID: "ann1",
		Element:      annotation.Element{Type: annotation.KindPoint, Center: []float64{1, 2, 0}},
	})

	got := <-saved
	if got.annotationID != "ann1" || got.element.Type != annotation.KindPoint {
		t.Errorf("saved %+v", got)
	}

	ack := readUntil(t, alice, protocol.TypeElementAck)
	var a protocol.ElementAckPayload
	json.Unmarshal(ack.Payload, &a)
	if a.RequestID != "r1" || a.ElementID != "el_stored" || a.ServerSeq != 1 {
		t.Errorf("ack = %+v", a)
	}

	changed := readUntil(t, bob, protocol.TypeAnnotationChanged)
	var c protocol.AnnotationChangedPayload
	json.Unmarshal(changed.Payload, &c)
	if c.AnnotationID != "ann1" || c.UserID != "alice" {
		t.Errorf("changed = %+v", c)
	}
}

func TestElementCreatedNack(t *testing.T) {
	tests := []struct {
		name    string
		save    ElementSaver
		payload protocol.ElementCreatedPayload
		reason  string
	}{
		{
			name: "missing annotation",
			save: func(context.Context, string, annotation.Element) (annotation.Element, error) {
				return annotation.Element{}, nil
			},
			payload: protocol.ElementCreatedPayload{RequestID: "r1"},
			reason:  "annotationId is required",
		},
		{
			name:    "no storage",
			payload: protocol.ElementCreatedPayload{RequestID: "r2", AnnotationID: "ann1"},
			reason:  "element storage unavailable",
		},
		{
			name: "save fails",
			save: func(context.Context, string, annotation.Element) (annotation.Element, error) {
				return annotation.Element{}, errors.New("boom")
			},
			payload: protocol.ElementCreatedPayload{RequestID: "r3", AnnotationID: "ann1"},
			reason:  "boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newTestServer(t, tt.save)
			conn := dial(t, srv, "item1", "alice", "c1")
			readUntil(t, conn, protocol.TypePresenceState)

			writeMessage(t, conn, protocol.TypeElementCreated, tt.payload)
			msg := readUntil(t, conn, protocol.TypeElementNack)
			var p protocol.ElementNackPayload
			json.Unmarshal(msg.Payload, &p)
			if p.RequestID != tt.payload.RequestID || p.Reason != tt.reason {
				t.Errorf("nack = %+v", p)
			}
		})
	}
}

func TestUnknownMessageType(t *testing.T) {
	_, srv := newTestServer(t, nil)
	conn := dial(t, srv, "item1", "alice", "c1")
	readUntil(t, conn, protocol.TypePresenceState)

	writeMessage(t, conn, "bogus", struct{}{})
	msg := readUntil(t, conn, protocol.TypeError)
	var p protocol.ErrorPayload
	json.Unmarshal(msg.Payload, &p)
	if !strings.Contains(p.Message, "bogus") {
		t.Errorf("error = %q", p.Message)
	}
}
