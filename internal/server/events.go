package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/hark/internal/turn"
)

// subscriberBuffer bounds per-subscriber queues; a stalled reader loses
// events rather than stalling the publisher.
const subscriberBuffer = 64

// EventHub broadcasts turn lifecycle events to any number of WebSocket
// subscribers. Publish satisfies the controller's event sink, so the hub can
// be wired directly into the turn loop.
type EventHub struct {
	mu   sync.Mutex
	subs map[chan turn.Event]struct{}
}

// NewEventHub returns an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[chan turn.Event]struct{})}
}

// Publish fans ev out to all subscribers without blocking.
func (h *EventHub) Publish(ev turn.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *EventHub) subscribe() chan turn.Event {
	ch := make(chan turn.Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) unsubscribe(ch chan turn.Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// Subscribers reports the current subscriber count.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Handle upgrades the request to a WebSocket and streams events as JSON text
// messages until the client disconnects.
func (h *EventHub) Handle(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("event feed accept failed", "error", err)
		return
	}
	defer c.Close(websocket.StatusNormalClosure, "")

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	ctx := r.Context()
	// Reads are discarded; they only surface the peer closing.
	go func() {
		for {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("event marshal failed", "error", err)
				continue
			}
			if err := c.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}
