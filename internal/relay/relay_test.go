package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
	"github.com/tilescope/tilescope/backend-go/internal/collab"
	"github.com/tilescope/tilescope/backend-go/internal/collab/protocol"
	"github.com/tilescope/tilescope/backend-go/internal/events"
)

func TestEndpoint(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws/items/item1"},
		{"https://example.com/viewer/", "wss://example.com/viewer/ws/items/item1"},
		{"ws://host", "ws://host/ws/items/item1"},
	}
	for _, tt := range tests {
		r := New(events.NewBus(), Config{URL: tt.base, ItemID: "item1"})
		got, err := r.Endpoint()
		if err != nil {
			t.Fatalf("Endpoint(%q): %v", tt.base, err)
		}
		if got != tt.want {
			t.Errorf("Endpoint(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

type hubServer struct {
	hub   *collab.Hub
	srv   *httptest.Server
	saved chan annotation.Element
}

func newHubServer(t *testing.T) *hubServer {
	t.Helper()
	hs := &hubServer{saved: make(chan annotation.Element, 4)}
	hs.hub = collab.NewHub(func(ctx context.Context, annotationID string, el annotation.Element) (annotation.Element, error) {
		el.ID = "el_" + annotationID
		hs.saved <- el
		return el, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	go hs.hub.Run(ctx)

	r := mux.NewRouter()
	var n atomic.Int32
	r.HandleFunc("/ws/items/{itemId}", func(w http.ResponseWriter, req *http.Request) {
		conn, err := websocket.Accept(w, req, nil)
		if err != nil {
			return
		}
		id := fmt.Sprintf("c%d", n.Add(1))
		collab.NewClient(hs.hub, conn, id, id, mux.Vars(req)["itemId"], id).Serve(req.Context())
	})
	hs.srv = httptest.NewServer(r)
	t.Cleanup(func() {
		hs.srv.Close()
		cancel()
	})
	return hs
}

func (hs *hubServer) waitClients(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hs.hub.Clients("item1") != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hs.hub.Clients("item1"), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func startRelay(t *testing.T, r *Relay) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestForwardsCreatedElements(t *testing.T) {
	hs := newHubServer(t)
	bus := events.NewBus()
	changed := make(chan string, 4)
	r := New(bus, Config{
		URL:       hs.srv.URL,
		ItemID:    "item1",
		Target:    "ann1",
		OnChanged: func(id string) { changed <- id },
	})
	startRelay(t, r)
	hs.waitClients(t, 1)

	bus.Publish(events.TopicAnnotationCreated, events.CreatedPayload{
		Element: annotation.Element{Type: annotation.KindPoint, Center: []float64{3, 4, 0}},
	})

	select {
	case el := <-hs.saved:
		if el.Type != annotation.KindPoint || el.Center[0] != 3 {
			t.Errorf("saved %+v", el)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("element never reached the hub")
	}

	select {
	case id := <-changed:
		if id != "ann1" {
			t.Errorf("changed %q, want ann1", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no annotation.changed")
	}

	deadline := time.Now().Add(5 * time.Second)
	for r.Pending() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("pending = %d after ack", r.Pending())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if r.Seq() != 1 {
		t.Errorf("seq = %d, want 1", r.Seq())
	}
}

func TestNoTargetDropsCreated(t *testing.T) {
	bus := events.NewBus()
	r := New(bus, Config{URL: "http://unused", ItemID: "item1"})
	r.onCreated(events.CreatedPayload{Element: annotation.Element{Type: annotation.KindPoint}})
	if r.Pending() != 0 || len(r.out) != 0 {
		t.Errorf("pending %d queued %d, want nothing", r.Pending(), len(r.out))
	}
}

func TestSharesHighlightAsPresence(t *testing.T) {
	hs := newHubServer(t)
	bus := events.NewBus()
	startRelay(t, New(bus, Config{URL: hs.srv.URL, ItemID: "item1"}))
	hs.waitClients(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	peer, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(hs.srv.URL, "http")+"/ws/items/item1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer peer.Close(websocket.StatusNormalClosure, "")
	hs.waitClients(t, 2)

	bus.Publish(events.TopicMouseOn, events.MousePayload{AnnotationID: "ann1", ElementID: "el1", X: 5, Y: 6})

	for {
		_, data, err := peer.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg protocol.Message
		json.Unmarshal(data, &msg)
		if msg.Type != protocol.TypePresenceUpdate {
			continue
		}
		var p protocol.PresencePayload
		json.Unmarshal(msg.Payload, &p)
		if p.Highlight == nil || p.Highlight.AnnotationID != "ann1" || p.Highlight.ElementID != "el1" {
			t.Errorf("highlight = %+v", p.Highlight)
		}
		if p.Cursor == nil || p.Cursor.X != 5 {
			t.Errorf("cursor = %+v", p.Cursor)
		}
		return
	}
}
