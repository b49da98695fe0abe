package api

import (
    "testing"
    "time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewBroker()
    sid := "cs1"
    ch := b.Subscribe(sid)
    defer func() { recover() }() // ignore close panic if already closed

    evt := SSEEvent{Type: "test.event", Data: map[string]any{"x": 1}}
    b.Publish(sid, evt)

    select {
    case got := <-ch:
        if got.Type != evt.Type { t.Fatalf("got type %s, want %s", got.Type, evt.Type) }
        if got.Data["x"].(int) != 1 { t.Fatalf("bad payload: %+v", got.Data) }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }

    b.Unsubscribe(sid, ch)
    select {
    case _, ok := <-ch:
        if ok { t.Fatal("channel should be closed after unsubscribe") }
    case <-time.After(50 * time.Millisecond):
        // acceptable if already drained and closed
    }
}

func TestBrokerDropsWhenSubscriberSlow(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe("cs2")
    // fill the buffer past capacity; Publish must not block
    for i := 0; i < 20; i++ {
        b.Publish("cs2", SSEEvent{Type: "evt", Data: map[string]any{"i": i}})
    }
    if len(ch) != cap(ch) { t.Fatalf("expected full channel, got %d/%d", len(ch), cap(ch)) }
    b.Unsubscribe("cs2", ch)
}
