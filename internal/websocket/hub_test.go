package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
)

func testHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testClientWithBuffer(h *Hub, size int) *Client {
	return &Client{hub: h, feed: make(chan []byte, size)}
}

func TestHubBroadcast(t *testing.T) {
	h := testHub()

	a := testClientWithBuffer(h, feedBufferSize)
	b := testClientWithBuffer(h, feedBufferSize)
	h.Register(a)
	h.Register(b)

	if h.ClientCount() != 2 {
		t.Fatalf("client count = %d, want 2", h.ClientCount())
	}

	h.Broadcast(Message{Event: "member_checked_in", MemberID: 7})

	for _, c := range []*Client{a, b} {
		select {
		case data := <-c.feed:
			var msg Message
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("unmarshal broadcast: %v", err)
			}
			if msg.Event != "member_checked_in" || msg.MemberID != 7 {
				t.Errorf("message = %+v", msg)
			}
		default:
			t.Error("client did not receive broadcast")
		}
	}
}

func TestHubDropsWhenClientBufferFull(t *testing.T) {
	h := testHub()

	slow := testClientWithBuffer(h, 1)
	h.Register(slow)

	// Second message must not block the broadcaster.
	h.Broadcast(Message{Event: "payment_completed", MemberID: 1})
	h.Broadcast(Message{Event: "payment_completed", MemberID: 2})

	if len(slow.feed) != 1 {
		t.Errorf("buffered = %d, want 1", len(slow.feed))
	}
}

func TestHubUnregister(t *testing.T) {
	h := testHub()

	c := testClientWithBuffer(h, feedBufferSize)
	h.Register(c)
	h.Unregister(c)

	if h.ClientCount() != 0 {
		t.Errorf("client count = %d, want 0", h.ClientCount())
	}

	// Channel is closed so the write pump exits.
	if _, ok := <-c.feed; ok {
		t.Error("expected feed channel to be closed")
	}

	// Double unregister must not panic.
	h.Unregister(c)
}
