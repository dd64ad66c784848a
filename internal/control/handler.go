package control

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/cablewatch/cablewatch/internal/ingest"
)

// Controller is the recorder surface the control plane drives.
type Controller interface {
	RequestRecording() bool
	RequestHalt() bool
	Status() ingest.Status
}

type commandReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades /api/ingest requests and speaks the command protocol: a
// status frame on connect, then single-token text commands answered with
// command-reply frames.
type Handler struct {
	hub  *Hub
	ctrl Controller
	log  *slog.Logger
}

// NewHandler returns a Handler broadcasting through hub and driving ctrl.
func NewHandler(hub *Hub, ctrl Controller, log *slog.Logger) *Handler {
	return &Handler{hub: hub, ctrl: ctrl, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendQueueSize)}
	select {
	case h.hub.register <- c:
	case <-h.hub.done:
		conn.Close()
		return
	}
	go c.writePump()

	if data, err := json.Marshal(h.ctrl.Status()); err == nil {
		c.enqueue(data)
	}

	h.readLoop(c)
}

func (h *Handler) readLoop(c *client) {
	defer func() {
		select {
		case h.hub.unregister <- c:
		case <-h.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		reply := commandReply{Type: "command-reply", Message: h.execute(string(data))}
		if payload, err := json.Marshal(reply); err == nil {
			c.enqueue(payload)
		}
	}
}

func (h *Handler) execute(cmd string) string {
	switch cmd {
	case "record":
		if h.ctrl.RequestRecording() {
			return "ok"
		}
		return "state error: curently recording"
	case "halt":
		if h.ctrl.RequestHalt() {
			return "ok"
		}
		return "state error: curently not recording"
	default:
		return fmt.Sprintf("invalid command: '%s'", cmd)
	}
}
