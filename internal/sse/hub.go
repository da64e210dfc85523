package sse

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dimitrije/starter-api/pkg/dto"
)

// Client is one open event stream. Every client follows exactly one
// subject; the store only lets a credential watch its own record.
type Client struct {
	ID      string
	Subject string
	Send    chan []byte
}

type subjectMessage struct {
	Subject string
	Event   dto.RecordEvent
}

type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *subjectMessage
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *subjectMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run dispatches registrations and broadcasts until ctx is cancelled.
// Remaining clients have their Send channel closed on exit.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for id, client := range h.clients {
			delete(h.clients, id)
			close(client.Send)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg.Event)
			if err != nil {
				continue
			}
			h.mu.RLock()
			for _, client := range h.clients {
				if client.Subject != msg.Subject {
					continue
				}
				select {
				case client.Send <- data:
				default:
					// Client buffer full, skip
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register reports false when the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) ClientCount(subject string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if c.Subject == subject {
			n++
		}
	}
	return n
}

// BroadcastRecordEvent fans a record change out to every stream watching
// subject.
func (h *Hub) BroadcastRecordEvent(subject string, event dto.RecordEvent) {
	select {
	case h.broadcast <- &subjectMessage{Subject: subject, Event: event}:
	case <-h.done:
	}
}
