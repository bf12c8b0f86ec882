package transport

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Event is the JSON envelope for everything pushed down a websocket.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Pool tracks live websocket clients by connection ID and implements the
// hub's push primitive. It is safe for concurrent use.
type Pool struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     zerolog.Logger
}

func NewPool(log zerolog.Logger) *Pool {
	return &Pool{
		clients: make(map[string]*Client),
		log:     log.With().Str("component", "transport").Logger(),
	}
}

// Push marshals an event envelope and queues it on the target connection.
// A full send buffer means the client stopped draining; it is dropped so
// one slow socket never blocks the caller or other targets.
func (p *Pool) Push(connID, event string, payload any) error {
	p.mu.RLock()
	c, ok := p.clients[connID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %s is gone", connID)
	}

	data, err := json.Marshal(Event{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}

	select {
	case <-c.done:
		return fmt.Errorf("connection %s is closing", connID)
	case c.send <- data:
		return nil
	default:
		p.Remove(connID)
		return fmt.Errorf("connection %s send buffer full, dropping client", connID)
	}
}

func (p *Pool) add(c *Client) {
	p.mu.Lock()
	p.clients[c.ID] = c
	p.mu.Unlock()
}

// Remove forgets a client and signals its write pump to stop, which closes
// the socket. The send channel itself is never closed: pushes race with
// removal, and sending on an open channel is always safe. Safe to call more
// than once.
func (p *Pool) Remove(connID string) {
	p.mu.Lock()
	c, ok := p.clients[connID]
	delete(p.clients, connID)
	p.mu.Unlock()

	if ok {
		c.closeOnce.Do(func() { close(c.done) })
	}
}

// Len reports the number of tracked clients.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}
