package stream

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

const spotChannel = "cluster:spots:broadcast"

// Hub fans formatted spot lines out to websocket watchers. With a Redis
// client configured, lines travel via pub/sub so watchers on every process
// see them; without one, delivery is direct and process-local.
type Hub struct {
	redis    *redis.Client
	watchers map[*Watcher]struct{}
	mu       sync.RWMutex
}

type Watcher struct {
	Send chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:    redisClient,
		watchers: map[*Watcher]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register() *Watcher {
	w := &Watcher{Send: make(chan []byte, 64)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.watchers[w] = struct{}{}
	return w
}

func (h *Hub) Unregister(w *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.watchers[w]; ok {
		delete(h.watchers, w)
		close(w.Send)
	}
}

// Broadcast delivers one formatted spot line. Slow watchers are skipped
// rather than blocking the poller.
func (h *Hub) Broadcast(line string) {
	if h.redis != nil {
		if err := h.redis.Publish(context.Background(), spotChannel, line).Err(); err != nil {
			log.Printf("stream hub: redis publish error: %v", err)
		}
		return
	}

	h.deliver([]byte(line))
}

func (h *Hub) deliver(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for w := range h.watchers {
		select {
		case w.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	pubsub := h.redis.Subscribe(context.Background(), spotChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.deliver([]byte(msg.Payload))
	}
}
