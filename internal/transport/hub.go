package transport

import (
	"encoding/json"
	"fmt"
	"sync"

	"whiteboard/internal/domain"
)

// Hub is an in-process publish/subscribe transport. Messages are delivered
// synchronously to every subscriber of a channel except the sender.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*subscriber]struct{}
}

type subscriber struct {
	id string
	fn func(sender string, payload []byte)
}

func NewHub() *Hub {
	return &Hub{channels: make(map[string]map[*subscriber]struct{})}
}

// Publish delivers message to every subscriber of channel. Messages must be
// JSON so they can cross a websocket unchanged.
func (h *Hub) Publish(channel string, message []byte) error {
	if !json.Valid(message) {
		return fmt.Errorf("%w: payload for %s is not JSON", domain.ErrValidation, channel)
	}
	h.PublishFrom("", channel, message)
	return nil
}

// PublishFrom delivers message to every subscriber of channel other than
// sender and returns how many received it.
func (h *Hub) PublishFrom(sender, channel string, message []byte) int {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.channels[channel]))
	for s := range h.channels[channel] {
		if sender == "" || s.id != sender {
			subs = append(subs, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range subs {
		s.fn(sender, message)
	}
	return len(subs)
}

// Subscribe registers handler for channel.
func (h *Hub) Subscribe(channel string, handler func(payload []byte)) func() {
	return h.SubscribeAs("", channel, func(_ string, payload []byte) { handler(payload) })
}

// SubscribeAs registers fn under id so that messages published by id are
// not echoed back to it.
func (h *Hub) SubscribeAs(id, channel string, fn func(sender string, payload []byte)) func() {
	s := &subscriber{id: id, fn: fn}
	h.mu.Lock()
	set := h.channels[channel]
	if set == nil {
		set = make(map[*subscriber]struct{})
		h.channels[channel] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set := h.channels[channel]; set != nil {
				delete(set, s)
				if len(set) == 0 {
					delete(h.channels, channel)
				}
			}
		})
	}
}

// Subscribers returns the number of subscribers on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
