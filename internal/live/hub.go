// Package live pushes committed status changes to websocket subscribers of
// an item.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erazemk/sledilnik/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// Message is what subscribers receive for every change.
type Message struct {
	Type  string      `json:"type"`
	Item  model.Item  `json:"item"`
	Event model.Event `json:"event"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks subscribers per item.
type Hub struct {
	upgrader websocket.Upgrader

	mu   sync.RWMutex
	subs map[string]map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[string]map[*client]struct{}),
	}
}

// ServeItem upgrades the request and streams changes of itemID until the
// peer goes away.
func (h *Hub) ServeItem(w http.ResponseWriter, r *http.Request, itemID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "item", itemID, "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.add(itemID, c)
	slog.Debug("live subscriber joined", "item", itemID)

	go h.writePump(c)
	h.readPump(itemID, c)
}

func (h *Hub) add(itemID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[itemID] == nil {
		h.subs[itemID] = make(map[*client]struct{})
	}
	h.subs[itemID][c] = struct{}{}
}

func (h *Hub) remove(itemID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[itemID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.subs, itemID)
	}
	close(c.send)
}

// readPump drains the connection so control frames are handled, and
// unsubscribes once the peer closes.
func (h *Hub) readPump(itemID string, c *client) {
	defer func() {
		h.remove(itemID, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ItemChanged broadcasts a change to the item's subscribers. Slow
// subscribers whose buffer is full miss the message.
func (h *Hub) ItemChanged(_ context.Context, item model.Item, ev model.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.subs[item.ID]
	if len(set) == 0 {
		return
	}

	msg, err := json.Marshal(Message{Type: "status_changed", Item: item, Event: ev})
	if err != nil {
		slog.Error("encoding live message", "item", item.ID, "error", err)
		return
	}
	for c := range set {
		select {
		case c.send <- msg:
		default:
			slog.Warn("live subscriber too slow, dropping message", "item", item.ID)
		}
	}
}

// Subscribers returns how many connections follow itemID.
func (h *Hub) Subscribers(itemID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[itemID])
}
