package dashboard

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/localmcp/localmcp/internal/probe"
	"github.com/localmcp/localmcp/internal/registry"
)

var ackRe = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] Connected to log stream$`)

// newStreamServer serves a dashboard over cfg with the hub broadcast loop
// running on a fast tick.
func newStreamServer(t *testing.T, cfg registry.Config) (*httptest.Server, *Hub) {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	if err := registry.Save(cfgPath, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	metrics := NewMetrics()
	prober := probe.New(time.Second)
	hub := NewHub(cfgPath, prober, 50*time.Millisecond, metrics)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(New(cfgPath, prober, hub, metrics).Handler())
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, hub
}

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one contains substr.
func readUntil(t *testing.T, conn *websocket.Conn, substr string) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < 200; i++ {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %q: %v", substr, err)
		}
		if strings.Contains(string(msg), substr) {
			return string(msg)
		}
	}
	t.Fatalf("no frame containing %q after 200 reads", substr)
	return ""
}

func TestStreamAckAndStatusTransition(t *testing.T) {
	mock := newMockEndpoint(t, `{"tools":[]}`, `{}`)
	srv, _ := newStreamServer(t, registry.Config{
		Services: []registry.Entry{{Name: "Alpha", URL: mock.srv.URL, Enabled: true}},
		Models:   []registry.Entry{{Name: "Beta", URL: mock.srv.URL, Enabled: true}},
	})
	conn := dialStream(t, srv)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, ack, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if !ackRe.Match(ack) {
		t.Fatalf("ack = %q, want timestamped connect line", ack)
	}

	line := readUntil(t, conn, "] Service Alpha is online")
	if !regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] Service Alpha is online$`).MatchString(line) {
		t.Errorf("status line = %q, want timestamped form", line)
	}
	readUntil(t, conn, "] Model Beta is online")

	mock.healthy.Store(false)
	readUntil(t, conn, "] Service Alpha is offline")
	readUntil(t, conn, "] Model Beta is offline")
}

func TestStreamSkipsDisabled(t *testing.T) {
	mock := newMockEndpoint(t, `{"tools":[]}`, `{}`)
	srv, _ := newStreamServer(t, registry.Config{
		Services: []registry.Entry{{Name: "Dormant", URL: mock.srv.URL, Enabled: false}},
		Models:   []registry.Entry{},
	})
	conn := dialStream(t, srv)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read ack: %v", err)
	}

	// Several ticks pass; the disabled entry must produce neither probes
	// nor stream lines.
	time.Sleep(300 * time.Millisecond)
	if n := mock.healthHit.Load(); n != 0 {
		t.Errorf("disabled entry probed %d times", n)
	}

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, msg, err := conn.ReadMessage(); err == nil {
		t.Errorf("unexpected frame %q for disabled-only config", msg)
	}
}

func TestStreamClientRemovedOnClose(t *testing.T) {
	mock := newMockEndpoint(t, `{"tools":[]}`, `{}`)
	srv, hub := newStreamServer(t, registry.Config{
		Services: []registry.Entry{{Name: "Alpha", URL: mock.srv.URL, Enabled: true}},
		Models:   []registry.Entry{},
	})
	conn := dialStream(t, srv)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if n := hub.clientCount(); n != 1 {
		t.Fatalf("clientCount = %d, want 1", n)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.clientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not removed after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBroadcastDropsOldest(t *testing.T) {
	h := NewHub("unused", nil, time.Hour, NewMetrics())
	c := &client{id: "c1", send: make(chan string, 2)}
	h.clients[c.id] = c

	h.broadcast("one")
	h.broadcast("two")
	h.broadcast("three")

	if got := <-c.send; got != "two" {
		t.Errorf("first queued = %q, want %q (oldest dropped)", got, "two")
	}
	if got := <-c.send; got != "three" {
		t.Errorf("second queued = %q, want %q", got, "three")
	}
	if len(c.send) != 0 {
		t.Errorf("queue not drained, %d left", len(c.send))
	}
}
