package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tryon_backend/outfit"

	"github.com/gorilla/websocket"
)

func dialBroadcaster(t *testing.T, b *Broadcaster) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return ev
}

func waitForClients(t *testing.T, b *Broadcaster, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", b.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcaster_DeliversProgress(t *testing.T) {
	b := NewBroadcaster(DefaultBroadcasterConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	conn := dialBroadcaster(t, b)
	if ev := readEvent(t, conn); ev.Type != EventConnected {
		t.Fatalf("first event = %q, want %q", ev.Type, EventConnected)
	}
	waitForClients(t, b, 1)

	b.Report(outfit.ProgressEvent{
		CorrelationID: "req-1",
		Step:          outfit.StepCompose,
		Index:         0,
		Total:         2,
		Item:          "jacket",
		Time:          time.Now(),
	})

	ev := readEvent(t, conn)
	if ev.Type != EventProgress {
		t.Fatalf("event type = %q, want %q", ev.Type, EventProgress)
	}
	data, _ := json.Marshal(ev.Data)
	var got outfit.ProgressEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if got.CorrelationID != "req-1" || got.Step != outfit.StepCompose || got.Item != "jacket" || got.Total != 2 {
		t.Errorf("progress = %+v", got)
	}
}

func TestBroadcaster_ClientDisconnect(t *testing.T) {
	b := NewBroadcaster(DefaultBroadcasterConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	conn := dialBroadcaster(t, b)
	readEvent(t, conn)
	waitForClients(t, b, 1)

	conn.Close()
	waitForClients(t, b, 0)
}

func TestBroadcaster_ShutdownClosesClients(t *testing.T) {
	b := NewBroadcaster(DefaultBroadcasterConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	conn := dialBroadcaster(t, b)
	readEvent(t, conn)
	waitForClients(t, b, 1)

	cancel()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after shutdown = %v, want going-away close", err)
	}
	if b.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after shutdown", b.ClientCount())
	}
}

func TestBroadcaster_PublishDropsWhenFull(t *testing.T) {
	cfg := DefaultBroadcasterConfig()
	cfg.QueueSize = 1
	b := NewBroadcaster(cfg, nil)

	// Run is not started, so the queue fills
	b.Publish(Event{Type: EventProgress})
	b.Publish(Event{Type: EventProgress})
	if len(b.queue) != 1 {
		t.Errorf("queue length = %d, want 1", len(b.queue))
	}
}

func TestServer_WebSocketRequiresPassword(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PasswordHash = "$2a$04$invalidinvalidinvalidinvalidinvalidinvalidinvalidinva"
	s := NewServer(cfg, newTestRouter(), NewBroadcaster(DefaultBroadcasterConfig(), nil), nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial succeeded without a password")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Errorf("handshake response = %v, want 401", resp)
	}
}
