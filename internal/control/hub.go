// Package control exposes the recorder over a status websocket: every state
// transition fans out to all subscribers, and incoming record/halt commands
// delegate to the recorder.
package control

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cablewatch/cablewatch/internal/ingest"
)

// sendQueueSize bounds each subscriber's send queue. Status frames are
// idempotent, so a slow consumer loses intermediate frames, never the latest.
const sendQueueSize = 16

type client struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// enqueue appends msg to the client's queue, dropping the oldest pending
// frame when full. The handler's read loop may still enqueue while the hub
// shuts the client down, so a closed queue silently drops the frame.
func (c *client) enqueue(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for {
		select {
		case c.send <- msg:
			return
		default:
			select {
			case <-c.send:
			default:
			}
		}
	}
}

// closeSend closes the queue exactly once, ending the client's writePump.
func (c *client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Hub fans status frames out to every connected subscriber, each through its
// own queue so per-connection FIFO holds and a slow consumer cannot stall the
// recorder loop.
type Hub struct {
	log        *slog.Logger
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	wg         sync.WaitGroup
}

// NewHub returns an unstarted Hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Start launches the hub loop.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.run()
}

// Close disconnects every subscriber with a GOING_AWAY close frame and stops
// the hub loop.
func (h *Hub) Close() {
	close(h.done)
	h.wg.Wait()
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			for c := range h.clients {
				_ = c.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stopping ingest service"),
					time.Now().Add(2*time.Second),
				)
				c.closeSend()
				delete(h.clients, c)
			}
			h.log.Debug("control hub stopped, all subscribers disconnected")
			return
		case c := <-h.register:
			h.clients[c] = true
			h.log.Debug("control subscriber connected", slog.Int("total", len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.closeSend()
				h.log.Debug("control subscriber disconnected", slog.Int("total", len(h.clients)))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				c.enqueue(msg)
			}
		}
	}
}

// BroadcastStatus fans a status snapshot out to every subscriber.
func (h *Hub) BroadcastStatus(sts ingest.Status) {
	data, err := json.Marshal(sts)
	if err != nil {
		h.log.Error("marshalling status frame", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}
