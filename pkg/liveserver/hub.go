package liveserver

import (
	"context"
	"sort"
	"sync"

	"tradesim/internal/core"
	"tradesim/internal/trading/account"
	"tradesim/internal/trading/position"
)

// Client represents a WebSocket client connection
type Client struct {
	id     string
	send   chan Message
	mu     sync.Mutex
	closed bool
}

func NewClient(id string) *Client {
	return &Client{
		id:   id,
		send: make(chan Message, 256),
	}
}

// Send queues msg without blocking and reports whether it was accepted.
func (c *Client) Send(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) GetSendChan() <-chan Message {
	return c.send
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub fans messages out to connected clients. It remembers the latest
// snapshot per symbol and replays them to each client on connect.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	latestMu sync.RWMutex
	latest   map[string]Message // symbol -> last snapshot

	logger core.ILogger
}

func NewHub(logger core.ILogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		latest:     make(map[string]Message),
		logger:     logger.WithField("component", "live_hub"),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			for _, msg := range h.Latest() {
				client.Send(msg)
			}
			h.logger.Info("Client registered", "client_id", client.id, "total_clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Client unregistered", "client_id", client.id, "total_clients", total)

		case message := <-h.broadcast:
			h.mu.RLock()
			clientList := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clientList = append(clientList, client)
			}
			h.mu.RUnlock()

			for _, client := range clientList {
				if !client.Send(message) {
					// slow or gone
					select {
					case h.unregister <- client:
					default:
					}
				}
			}
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast queues msg for every client, dropping it if the hub is backed up.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Broadcast channel full, dropping message", "type", msg.Type)
	}
}

// PublishSnapshot records and broadcasts the latest state of symbol.
func (h *Hub) PublishSnapshot(symbol string, ledger account.Snapshot, tracker account.TrackerSnapshot) {
	msg := NewSnapshotMessage(symbol, ledger, tracker)
	h.latestMu.Lock()
	h.latest[symbol] = msg
	h.latestMu.Unlock()
	h.Broadcast(msg)
}

// PublishRecord broadcasts a closed position.
func (h *Hub) PublishRecord(rec position.Record) {
	h.Broadcast(NewPositionClosedMessage(rec))
}

// Latest returns the last snapshot message of every symbol.
func (h *Hub) Latest() []Message {
	h.latestMu.RLock()
	defer h.latestMu.RUnlock()
	symbols := make([]string, 0, len(h.latest))
	for sym := range h.latest {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	out := make([]Message, 0, len(symbols))
	for _, sym := range symbols {
		out = append(out, h.latest[sym])
	}
	return out
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
