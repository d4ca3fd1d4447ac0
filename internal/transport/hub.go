// Package transport carries console commands to connected voice-switch
// clients over WebSocket and feeds their status events back.
package transport

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/flowpbx/voiceswitch/internal/command"
)

// sendQueueSize is the per-connection outbound buffer. Commands beyond it
// are dropped.
const sendQueueSize = 64

// writeTimeout bounds a single frame write to a slow client.
const writeTimeout = 10 * time.Second

// StatusHandler receives inbound status events for one console.
type StatusHandler interface {
	HandleStatus(evt command.StatusEvent) bool
}

// inboundFrame is a message received from a client.
type inboundFrame struct {
	Type   string `json:"type"`
	Call   string `json:"call"`
	Status string `json:"status"`
}

type client struct {
	id   string
	conn net.Conn
	out  chan []byte
}

// Hub fans console commands out to subscribed connections.
type Hub struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[string]*client

	statsMu sync.Mutex
	sent    map[string]uint64
	dropped uint64
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With("subsystem", "transport"),
		subs:   make(map[string]map[string]*client),
		sent:   make(map[string]uint64),
	}
}

// Sender returns the command sender for a console.
func (h *Hub) Sender(consoleID string) command.Sender {
	return command.SenderFunc(func(cmd command.Command) {
		h.Publish(consoleID, cmd)
	})
}

// Publish queues cmd on every connection subscribed to consoleID.
func (h *Hub) Publish(consoleID string, cmd command.Command) {
	data, err := json.Marshal(cmd)
	if err != nil {
		h.logger.Error("encoding command", "console_id", consoleID, "type", cmd.Type, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.subs[consoleID]))
	for _, c := range h.subs[consoleID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		select {
		case c.out <- data:
			delivered++
		default:
			h.logger.Warn("send queue full, dropping command", "console_id", consoleID, "conn_id", c.id, "type", cmd.Type)
		}
	}

	h.statsMu.Lock()
	h.sent[cmd.Type]++
	if delivered == 0 {
		h.dropped++
	}
	h.statsMu.Unlock()

	if delivered == 0 {
		h.logger.Debug("no transport subscriber for command", "console_id", consoleID, "type", cmd.Type)
	}
}

// ServeWS upgrades the request and serves one connection for consoleID
// until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, consoleID string, handler StatusHandler) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "console_id", consoleID, "error", err)
		return
	}

	// The server's read and write timeouts still apply to the hijacked conn.
	conn.SetDeadline(time.Time{})

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		out:  make(chan []byte, sendQueueSize),
	}
	h.register(consoleID, c)
	h.logger.Info("transport connected", "console_id", consoleID, "conn_id", c.id, "remote_addr", r.RemoteAddr)

	done := make(chan struct{})
	go h.writeLoop(c, done)

	h.readLoop(consoleID, c, handler)

	h.unregister(consoleID, c)
	close(done)
	conn.Close()
	h.logger.Info("transport disconnected", "console_id", consoleID, "conn_id", c.id)
}

func (h *Hub) readLoop(consoleID string, c *client, handler StatusHandler) {
	for {
		data, op, err := wsutil.ReadClientData(c.conn)
		if err != nil {
			return
		}
		if op != ws.OpText {
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.logger.Debug("ignoring malformed frame", "console_id", consoleID, "error", err)
			continue
		}
		if frame.Type != "status" {
			h.logger.Debug("ignoring frame", "console_id", consoleID, "type", frame.Type)
			continue
		}
		handler.HandleStatus(command.StatusEvent{Call: frame.Call, Status: frame.Status})
	}
}

func (h *Hub) writeLoop(c *client, done <-chan struct{}) {
	for {
		select {
		case data := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpText, data); err != nil {
				h.logger.Debug("websocket write failed", "conn_id", c.id, "error", err)
				c.conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Hub) register(consoleID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[consoleID] == nil {
		h.subs[consoleID] = make(map[string]*client)
	}
	h.subs[consoleID][c.id] = c
}

func (h *Hub) unregister(consoleID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[consoleID], c.id)
	if len(h.subs[consoleID]) == 0 {
		delete(h.subs, consoleID)
	}
}

// Connections returns the number of open connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.subs {
		n += len(subs)
	}
	return n
}

// CommandCounts returns the number of commands published per type.
func (h *Hub) CommandCounts() map[string]uint64 {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	out := make(map[string]uint64, len(h.sent))
	for k, v := range h.sent {
		out[k] = v
	}
	return out
}

// Undelivered returns the number of commands that reached no connection.
func (h *Hub) Undelivered() uint64 {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return h.dropped
}
