package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/localmcp/localmcp/internal/probe"
	"github.com/localmcp/localmcp/internal/registry"
)

// DefaultInterval is the pause between status broadcast rounds.
const DefaultInterval = 30 * time.Second

// sendQueueSize bounds the per-client queue. When a client falls this far
// behind, the oldest queued lines are dropped so the stream stays fresh.
const sendQueueSize = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is one connected log stream consumer. Its queue is drained by a
// dedicated writer goroutine so a stalled connection never blocks broadcasts
// to the others.
type client struct {
	id   string
	conn *websocket.Conn
	send chan string
}

// Hub broadcasts service and model status lines to all connected WebSocket
// clients. One shared probe round runs per tick; clients receive the same
// lines through their own bounded queues.
type Hub struct {
	configPath string
	prober     *probe.Prober
	interval   time.Duration
	metrics    *Metrics

	mu      sync.Mutex
	clients map[string]*client
}

// NewHub creates a Hub probing the entries at configPath every interval.
func NewHub(configPath string, prober *probe.Prober, interval time.Duration, metrics *Metrics) *Hub {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Hub{
		configPath: configPath,
		prober:     prober,
		interval:   interval,
		metrics:    metrics,
		clients:    make(map[string]*client),
	}
}

// Run ticks until ctx is canceled. Each tick reloads the registry, probes
// every enabled entry, and broadcasts one status line per entry.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *Hub) tick(ctx context.Context) {
	if h.clientCount() == 0 {
		return
	}

	cfg, err := registry.Load(h.configPath)
	if err != nil {
		slog.Error("status round: load config", slog.Any("error", err))
		return
	}

	ts := time.Now().Format(time.DateTime)
	for _, line := range h.statusLines(ctx, cfg, ts) {
		h.broadcast(line)
	}
	h.metrics.roundDone("stream")
}

// statusLines probes every enabled entry and formats one line per entry,
// services first.
func (h *Hub) statusLines(ctx context.Context, cfg registry.Config, ts string) []string {
	services := h.prober.ProbeAll(ctx, registry.Enabled(cfg.Services))
	models := h.prober.ProbeAll(ctx, registry.Enabled(cfg.Models))
	h.metrics.observeStatuses("service", services)
	h.metrics.observeStatuses("model", models)

	lines := make([]string, 0, len(services)+len(models))
	for _, st := range services {
		lines = append(lines, fmt.Sprintf("[%s] Service %s is %s", ts, st.Name, stateWord(st.Healthy)))
	}
	for _, st := range models {
		lines = append(lines, fmt.Sprintf("[%s] Model %s is %s", ts, st.Name, stateWord(st.Healthy)))
	}
	return lines
}

func stateWord(healthy bool) string {
	if healthy {
		return "online"
	}
	return "offline"
}

// ServeWS upgrades the request, registers the client, sends the connect
// acknowledgement, and blocks reading until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan string, sendQueueSize),
	}
	// Queued before registration so the acknowledgement is always the first
	// frame and no broadcast can close the channel underneath this send.
	c.send <- fmt.Sprintf("[%s] Connected to log stream", time.Now().Format(time.DateTime))

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.metrics.streamClients.Inc()
	slog.Info("log stream client connected", slog.String("client", c.id))

	go h.writer(c)

	// Discard inbound frames; the read loop exists to notice the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

// writer drains one client's queue. A failed write removes the client, which
// closes the queue and ends the loop.
func (h *Hub) writer(c *client) {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			h.remove(c)
			return
		}
	}
}

// broadcast enqueues line for every client. A full queue drops its oldest
// entry rather than blocking the round.
func (h *Hub) broadcast(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.clients {
		select {
		case c.send <- line:
		default:
			select {
			case <-c.send:
			default:
			}
			select {
			case c.send <- line:
			default:
			}
		}
	}
}

// remove unregisters a client, closing its queue and connection. Safe to
// call from both the reader and the writer; only the first call acts.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	c.conn.Close()
	h.metrics.streamClients.Dec()
	slog.Info("log stream client disconnected", slog.String("client", c.id))
}

func (h *Hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
