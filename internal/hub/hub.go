package hub

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Emitter is what producers of notifications depend on.
type Emitter interface {
	Emit(kind string, payload any)
}

type Notification struct {
	Kind    string
	Payload any
}

type Listener func(Notification)

type subscriber struct {
	id int
	fn Listener
}

const allKinds = "*"

// Hub delivers notifications synchronously to local listeners and, when configured,
// mirrors them to a redis channel for out-of-process observers.
type Hub struct {
	mutex  sync.RWMutex
	nextID int
	subs   map[string][]subscriber

	sugar  *zap.SugaredLogger
	mirror chan []byte
}

func New(sugar *zap.SugaredLogger) *Hub {
	return &Hub{
		subs:  make(map[string][]subscriber),
		sugar: sugar,
	}
}

// Subscribe registers fn for one kind and returns a function removing it.
func (h *Hub) Subscribe(kind string, fn Listener) func() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.nextID++
	id := h.nextID
	h.subs[kind] = append(h.subs[kind], subscriber{id: id, fn: fn})

	return func() { h.unsubscribe(kind, id) }
}

func (h *Hub) SubscribeAll(fn Listener) func() {
	return h.Subscribe(allKinds, fn)
}

func (h *Hub) unsubscribe(kind string, id int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	subs := h.subs[kind]
	for i := range subs {
		if subs[i].id == id {
			h.subs[kind] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}

	// delete kind from map if nobody listens to it
	if len(h.subs[kind]) == 0 {
		delete(h.subs, kind)
	}
}

// Emit calls listeners in subscription order, kind-specific ones first. The listener
// list is copied before the calls, so listeners may subscribe, unsubscribe or emit.
func (h *Hub) Emit(kind string, payload any) {
	h.mutex.RLock()
	targets := make([]subscriber, 0, len(h.subs[kind])+len(h.subs[allKinds]))
	targets = append(targets, h.subs[kind]...)
	targets = append(targets, h.subs[allKinds]...)
	mirror := h.mirror
	h.mutex.RUnlock()

	notification := Notification{Kind: kind, Payload: payload}
	for _, s := range targets {
		s.fn(notification)
	}

	if mirror != nil {
		h.publish(mirror, kind, payload)
	}
}

func (h *Hub) publish(mirror chan []byte, kind string, payload any) {
	frame, err := Frame(kind, payload)
	if err != nil {
		h.sugar.Errorf("Framing notification [%s] for redis failed: %v", kind, err)
		return
	}

	select {
	case mirror <- frame:
	default:
		h.sugar.Warnf("Redis mirror queue is full, dropping notification [%s]", kind)
	}
}

// Frame encodes a notification as "kind\n" followed by its json payload.
func Frame(kind string, payload any) ([]byte, error) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	msgTypeStr := fmt.Sprintf("%s\n", kind)

	var buf bytes.Buffer
	buf.Grow(len(msgTypeStr) + len(jsonBytes))
	buf.WriteString(msgTypeStr)
	buf.Write(jsonBytes)

	return buf.Bytes(), nil
}

// MirrorToRedis publishes every later notification to channel until ctx is done.
// Publishing happens on its own goroutine so Emit never waits on the network.
func (h *Hub) MirrorToRedis(ctx context.Context, redisClient *redis.Client, channel string) {
	queue := make(chan []byte, 256)

	h.mutex.Lock()
	h.mirror = queue
	h.mutex.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				h.mutex.Lock()
				if h.mirror == queue {
					h.mirror = nil
				}
				h.mutex.Unlock()
				return
			case frame := <-queue:
				publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				err := redisClient.Publish(publishCtx, channel, string(frame)).Err()
				cancel()
				if err != nil {
					h.sugar.Warnf("Publishing notification to redis channel [%s] failed: %v", channel, err)
				}
			}
		}
	}()
}
