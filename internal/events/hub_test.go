package events

import (
	"encoding/json"
	"testing"
)

func TestHubBroadcast(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish("one")
	if got := <-a; got != "one" {
		t.Errorf("a got %q", got)
	}
	if got := <-b; got != "one" {
		t.Errorf("b got %q", got)
	}

	h.Unsubscribe(b)
	h.Publish("two")
	if got := <-a; got != "two" {
		t.Errorf("a got %q", got)
	}
	if _, ok := <-b; ok {
		t.Error("unsubscribed channel still open")
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()

	// Fill the buffer and then some; Publish must never block.
	for i := 0; i < cap(ch)+5; i++ {
		h.Publish("evt")
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered = %d, want full buffer %d", len(ch), cap(ch))
	}
}

func TestMakeEvent(t *testing.T) {
	s := MakeEvent("r1", "record_sent", 1, map[string]any{"listing_id": "j1"})

	var e Event
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		t.Fatal(err)
	}
	if e.Type != "record_sent" || e.Version != 1 || e.RunID != "r1" {
		t.Fatalf("event = %+v", e)
	}
	var data map[string]string
	if err := json.Unmarshal(e.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data["listing_id"] != "j1" {
		t.Errorf("data = %v", data)
	}
	if e.At.IsZero() {
		t.Error("timestamp not set")
	}

	// nil data stays absent, not "null"
	s = MakeEvent("", "ping", 1, nil)
	e = Event{}
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		t.Fatal(err)
	}
	if len(e.Data) != 0 {
		t.Errorf("data = %s", e.Data)
	}
}
