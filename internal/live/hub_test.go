package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erazemk/sledilnik/internal/model"
)

func dialItem(t *testing.T, h *Hub, itemID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeItem(w, r, itemID)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	waitFor(t, func() bool { return h.Subscribers(itemID) == 1 })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubDeliversItemChanges(t *testing.T) {
	h := NewHub()
	conn := dialItem(t, h, "item-1")

	item := model.Item{ID: "item-1", Name: "Coffee", CurrentStatus: model.StatusInTransit}
	ev := model.Event{ID: "ev-1", ItemID: "item-1", Status: model.StatusInTransit, Timestamp: time.Now().UTC()}
	h.ItemChanged(context.Background(), item, ev)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "status_changed" || msg.Event.ID != "ev-1" || msg.Item.CurrentStatus != model.StatusInTransit {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestHubIgnoresOtherItems(t *testing.T) {
	h := NewHub()
	conn := dialItem(t, h, "item-1")

	h.ItemChanged(context.Background(), model.Item{ID: "item-2"}, model.Event{ItemID: "item-2"})

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected no message for another item")
	}
}

func TestHubUnsubscribesOnClose(t *testing.T) {
	h := NewHub()
	conn := dialItem(t, h, "item-1")

	conn.Close()
	waitFor(t, func() bool { return h.Subscribers("item-1") == 0 })

	// Broadcasting to an item without subscribers is a no-op.
	h.ItemChanged(context.Background(), model.Item{ID: "item-1"}, model.Event{ItemID: "item-1"})
}
