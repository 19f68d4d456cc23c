// Package websocket pushes the live roster to connected browsers. The Hub
// implements the MapRenderer contract: every successful roster reload is
// broadcast as a "roster" message carrying the offset marker list, and a
// newly registered client immediately receives the latest one.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-devradar-backend/internal/domain"
)

// Message types.
const (
	MessageTypeRoster = "roster"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
)

// Message is one websocket frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

var wsClients = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "devradar_ws_clients",
	Help: "Connected websocket clients.",
})

func init() {
	prometheus.MustRegister(wsClients)
}

// Hub tracks clients and fans broadcasts out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	log        zerolog.Logger
	done       chan struct{}
	stopOnce   sync.Once

	mu   sync.RWMutex
	last *Message
}

// NewHub creates a Hub. It does nothing until Run is called.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		log:        log,
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// closes every client. A Hub is run once. Lifecycle events are drained before broadcasts so a
// client registered just before a broadcast receives it.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			n := h.ClientCount()
			h.stopOnce.Do(func() { close(h.done) })
			h.closeAll()
			h.log.Info().Str("component", "websocket-hub").Int("clients_closed", n).Msg("websocket hub stopped")
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.Register:
			h.add(c)
			continue
		case c := <-h.Unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			continue
		case c := <-h.Register:
			h.add(c)
		case c := <-h.Unregister:
			h.remove(c)
		case m := <-h.broadcast:
			h.fanOut(m)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	last := h.last
	n := len(h.clients)
	h.mu.Unlock()
	wsClients.Set(float64(n))

	if last != nil {
		select {
		case c.send <- *last:
		default:
		}
	}
	h.log.Debug().Uint64("client_id", c.id).Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	wsClients.Set(float64(n))
	h.log.Debug().Uint64("client_id", c.id).Int("total_clients", n).Msg("websocket client disconnected")
}

// fanOut delivers m in client-id order. Clients whose buffer is full are
// dropped.
func (h *Hub) fanOut(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m.Type == MessageTypeRoster {
		cp := m
		h.last = &cp
	}
	for _, c := range h.sortedLocked() {
		select {
		case c.send <- m:
		default:
			close(c.send)
			delete(h.clients, c)
			h.log.Warn().Uint64("client_id", c.id).Msg("websocket client too slow; dropped")
		}
	}
	wsClients.Set(float64(len(h.clients)))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.sortedLocked() {
		close(c.send)
		delete(h.clients, c)
	}
	wsClients.Set(0)
}

func (h *Hub) sortedLocked() []*Client {
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Render implements the roster renderer. It never blocks; when the
// broadcast queue is full the update is dropped and the next reload
// supersedes it.
func (h *Hub) Render(markers []domain.Marker) {
	h.BroadcastJSON(MessageTypeRoster, markers)
}

// BroadcastJSON queues a message for every client.
func (h *Hub) BroadcastJSON(messageType string, data any) {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
	default:
		h.log.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage encodes msg as a JSON frame.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
