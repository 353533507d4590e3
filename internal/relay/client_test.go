package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/lcrispim/hush/internal/bus"
	"github.com/lcrispim/hush/internal/protocol"
)

// testRelay is a minimal relay: accepts one websocket, pushes the given
// frames, then echoes nothing and waits for client frames on inbound.
func testRelay(t *testing.T, frames [][]byte, inbound chan []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		for _, f := range frames {
			if err := conn.Write(ctx, websocket.MessageText, f); err != nil {
				return
			}
		}
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if inbound != nil {
				inbound <- data
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientDeliversDecodedEvents(t *testing.T) {
	frames := [][]byte{
		[]byte(`{"type":"task_ended","payload":{"chat_id":"c1"}}`),
		[]byte(`this is not a valid frame`),
		[]byte(`{"type":"chat_deleted","payload":{"chat_id":"c2"}}`),
	}
	srv := testRelay(t, frames, nil)

	b := bus.New()
	ch, unsub := b.Subscribe("relay.", 32)
	defer unsub()

	c := NewClient(srv.URL, time.Second, b, nil)
	c.Start(context.Background())
	defer c.Stop()

	var kinds []string
	var events []protocol.InboundEvent
	deadline := time.After(3 * time.Second)
	for len(events) < 2 {
		select {
		case evt := <-ch:
			kinds = append(kinds, evt.Kind)
			if evt.Kind == KindEvent {
				events = append(events, evt.Payload.(protocol.InboundEvent))
			}
		case <-deadline:
			t.Fatalf("timeout; saw kinds %v", kinds)
		}
	}

	if kinds[0] != KindConnected {
		t.Errorf("first event = %q, want relay.connected", kinds[0])
	}
	if _, ok := events[0].(*protocol.TaskEnded); !ok {
		t.Errorf("events[0] = %T, want *TaskEnded", events[0])
	}
	// The malformed frame was dropped, not delivered and not fatal.
	if _, ok := events[1].(*protocol.ChatDeleted); !ok {
		t.Errorf("events[1] = %T, want *ChatDeleted", events[1])
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1", time.Second, bus.New(), nil)
	err := c.Send(context.Background(), protocol.SetActiveChat{ChatID: "c1"})
	if err != ErrDisconnected {
		t.Errorf("Send error = %v, want ErrDisconnected", err)
	}
}

func TestSendReachesRelay(t *testing.T) {
	inbound := make(chan []byte, 1)
	srv := testRelay(t, nil, inbound)

	b := bus.New()
	ch, unsub := b.Subscribe(KindConnected, 1)
	defer unsub()

	c := NewClient(srv.URL, time.Second, b, nil)
	c.Start(context.Background())
	defer c.Stop()

	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for connect")
	}

	if err := c.Send(context.Background(), protocol.DeleteSuggestion{ID: "s1"}); err != nil {
		t.Fatal(err)
	}

	select {
	case data := <-inbound:
		if string(data) == "" {
			t.Error("empty frame received")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for frame at relay")
	}
}
