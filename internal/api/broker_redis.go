package api

import (
    "context"
    "encoding/json"
    "io"
    "os"
    "sync"
    "time"

    redis "github.com/redis/go-redis/v9"
)

type EventBroker interface {
    Subscribe(sessionID string) chan SSEEvent
    Unsubscribe(sessionID string, ch chan SSEEvent)
    Publish(sessionID string, evt SSEEvent)
}

// In-memory broker already implemented in broker.go and satisfies EventBroker

// RedisBroker implements EventBroker over Redis Pub/Sub so multiple API
// replicas fan conversion events out to whichever node holds the stream.
type RedisBroker struct {
    rdb  *redis.Client
    mu   sync.Mutex
    subs map[chan SSEEvent]io.Closer
}

func NewRedisBroker() (*RedisBroker, error) {
    url := os.Getenv("REDIS_URL")
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    rdb := redis.NewClient(opt)
    return &RedisBroker{rdb: rdb, subs: map[chan SSEEvent]io.Closer{}}, nil
}

func (b *RedisBroker) Subscribe(sessionID string) chan SSEEvent {
    ch := make(chan SSEEvent, 16)
    ctx := context.Background()
    ps := b.rdb.Subscribe(ctx, b.chanName(sessionID))
    // initial consume to ensure subscription
    _, _ = ps.Receive(ctx)
    b.track(ch, ps)
    go b.pump(ps.Channel(), ch)
    return ch
}

func (b *RedisBroker) track(ch chan SSEEvent, closer io.Closer) {
    b.mu.Lock()
    defer b.mu.Unlock()
    b.subs[ch] = closer
}

// pump forwards published events until the pubsub channel closes. It is
// the only closer of ch; Unsubscribe must tear down the pubsub instead
// of touching ch, or a concurrent publish would hit a closed channel.
func (b *RedisBroker) pump(msgs <-chan *redis.Message, ch chan SSEEvent) {
    defer close(ch)
    for msg := range msgs {
        var evt SSEEvent
        if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
            select { case ch <- evt: default: }
        }
    }
}

func (b *RedisBroker) Unsubscribe(sessionID string, ch chan SSEEvent) {
    b.mu.Lock()
    closer := b.subs[ch]
    delete(b.subs, ch)
    b.mu.Unlock()
    // closing the pubsub ends ps.Channel(), which lets the pump exit and
    // close ch exactly once
    if closer != nil { _ = closer.Close() }
}

func (b *RedisBroker) Publish(sessionID string, evt SSEEvent) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    data, _ := json.Marshal(evt)
    _ = b.rdb.Publish(ctx, b.chanName(sessionID), data).Err()
}

func (b *RedisBroker) chanName(sessionID string) string { return "conversion:" + sessionID }
