package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/biathlonbet/internal/cache/memory"
	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

func newTestHub(t *testing.T) (*Hub, *memory.SignalBus, string) {
	t.Helper()
	bus := memory.NewSignalBus(0)
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "server"})
	ts := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(ts.Close)
	return hub, bus, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestHandleWSAfterRunReturns(t *testing.T) {
	hub, _, url := newTestHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := hub.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("read = %v, want going-away close", err)
	}
}

func TestShutdownDuringReplay(t *testing.T) {
	hub, bus, url := newTestHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()

	for i := 0; i < maxReplay; i++ {
		if err := bus.StreamAppend(context.Background(), domain.EventStream, []byte(`{"type":"round_created"}`)); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if err := conn.WriteJSON(clientMsg{Action: "replay", Since: "0"}); err != nil {
					return
				}
			}
		}()
		// Drain until the hub hangs up.
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.SetReadDeadline(time.Now().Add(10 * time.Second))
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	finished := make(chan struct{})
	go func() { wg.Wait(); close(finished) }()
	select {
	case <-finished:
	case <-time.After(10 * time.Second):
		t.Fatal("clients were not disconnected after shutdown")
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	c := &client{send: make(chan []byte, 1)}
	if !c.enqueue([]byte("a")) {
		t.Fatal("enqueue into empty buffer failed")
	}
	if c.enqueue([]byte("b")) {
		t.Fatal("enqueue into full buffer succeeded")
	}
	c.closeSend()
	c.closeSend()
	if c.enqueue([]byte("c")) {
		t.Fatal("enqueue after close succeeded")
	}
}
