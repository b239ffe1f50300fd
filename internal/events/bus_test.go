package events

import "testing"

func TestPublishReachesSubscribers(t *testing.T) {
	bus := NewBus()
	var got []any
	bus.Subscribe(TopicReset, func(p any) { got = append(got, p) })
	bus.Subscribe(TopicReset, func(p any) { got = append(got, p) })

	bus.Publish(TopicReset, ResetPayload{AnnotationID: "a"})

	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if p, ok := got[0].(ResetPayload); !ok || p.AnnotationID != "a" {
		t.Errorf("unexpected payload %#v", got[0])
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	off := bus.Subscribe(TopicImageRendered, func(any) { calls++ })
	bus.Publish(TopicImageRendered, nil)
	off()
	off()
	bus.Publish(TopicImageRendered, nil)

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if n := bus.Subscribers(TopicImageRendered); n != 0 {
		t.Errorf("expected no subscribers, got %d", n)
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	bus := NewBus()
	calls := 0
	var off func()
	off = bus.Subscribe(TopicMouseClick, func(any) {
		calls++
		off()
	})
	bus.Subscribe(TopicMouseClick, func(any) { calls++ })

	bus.Publish(TopicMouseClick, MousePayload{})
	bus.Publish(TopicMouseClick, MousePayload{})

	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	bus := NewBus()
	called := false
	bus.Subscribe(TopicMouseOn, func(any) { called = true })
	bus.Publish(TopicMouseOff, MousePayload{})
	if called {
		t.Error("handler for another topic was invoked")
	}
}
