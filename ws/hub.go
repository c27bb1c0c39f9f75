package ws

import (
	"encoding/json"
	"sync"

	"messenger_backend/internal/logger"
	"messenger_backend/internal/services/delivery"
)

// Envelope is the outbound event frame.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub multiplexes clients over typed broadcast topics: every authenticated
// connection sits in its personal user topic, and joins conversation topics
// on request. The hub implements delivery.Emitter.
type Hub struct {
	mu      sync.RWMutex
	topics  map[delivery.Topic]map[*Client]bool
	clients map[*Client]map[delivery.Topic]bool
}

func NewHub() *Hub {
	return &Hub{
		topics:  make(map[delivery.Topic]map[*Client]bool),
		clients: make(map[*Client]map[delivery.Topic]bool),
	}
}

// Subscribe adds the client to a topic. Authorization happens before this
// call; the hub only does bookkeeping.
func (h *Hub) Subscribe(client *Client, topic delivery.Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Client]bool)
	}
	h.topics[topic][client] = true

	if h.clients[client] == nil {
		h.clients[client] = make(map[delivery.Topic]bool)
	}
	h.clients[client][topic] = true
}

func (h *Hub) Unsubscribe(client *Client, topic delivery.Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropSubscription(client, topic)
}

// RemoveClient drops the client from every topic it joined.
func (h *Hub) RemoveClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for topic := range h.clients[client] {
		h.dropSubscription(client, topic)
	}
	delete(h.clients, client)
}

// dropSubscription must run under h.mu. Empty topic sets are removed so the
// map does not accumulate dead conversation topics.
func (h *Hub) dropSubscription(client *Client, topic delivery.Topic) {
	if set, ok := h.topics[topic]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
	if topics, ok := h.clients[client]; ok {
		delete(topics, topic)
	}
}

// Emit marshals the event once and enqueues it for every client subscribed
// to any of the topics. A client reachable through several topics receives
// the event exactly once. A client with a full send buffer misses the
// event; the reconnect catch-up pass recovers the state.
func (h *Hub) Emit(event string, payload any, topics ...delivery.Topic) {
	frame, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		logger.Error("failed to marshal event", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	seen := make(map[*Client]bool)
	for _, topic := range topics {
		for client := range h.topics[topic] {
			if seen[client] {
				continue
			}
			seen[client] = true
			select {
			case client.Send <- frame:
			default:
				logger.Warn("send buffer full, dropping event",
					"event", event, "user_id", client.UserID, "connection_id", client.ID)
			}
		}
	}
	h.mu.RUnlock()
}

// SubscriberCount reports how many clients sit in a topic.
func (h *Hub) SubscriberCount(topic delivery.Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
