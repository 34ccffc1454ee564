// Package logstream pushes audit records to websocket subscribers as JSON text frames.
// A subscriber may narrow the stream with query parameters:
//
//	ws://host/logs?category=staff,cheat&important=true
package logstream

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/argus-labs/sledgehammer/pkg/hammer/logsink"
	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 15 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
)

// Config holds the log stream settings.
type Config struct {
	// Addr is the listen address of the stream. Empty disables it.
	Addr string `env:"HAMMER_LOGSTREAM_ADDR"`
	// Path is the HTTP path subscribers connect to.
	Path string `env:"HAMMER_LOGSTREAM_PATH" envDefault:"/logs"`
}

func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return cfg, eris.Wrap(err, "failed to parse log stream config")
	}
	if cfg.Addr != "" && !strings.HasPrefix(cfg.Path, "/") {
		return cfg, eris.Errorf("log stream path must start with /, got %q", cfg.Path)
	}
	return cfg, nil
}

// Hub is a log sink that fans records out to websocket subscribers. A subscriber that
// cannot keep up loses records instead of slowing down dispatch.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	upgrader websocket.Upgrader
	dropped  atomic.Uint64
	log      zerolog.Logger
}

var _ logsink.Sink = (*Hub)(nil)

type Option func(*Hub)

func WithLogger(log zerolog.Logger) Option {
	return func(h *Hub) { h.log = log }
}

// WithCheckOrigin replaces the origin check. The default accepts only same-origin requests.
func WithCheckOrigin(check func(r *http.Request) bool) Option {
	return func(h *Hub) { h.upgrader.CheckOrigin = check }
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnLogEntry queues rec for every subscriber whose filter accepts it.
func (h *Hub) OnLogEntry(rec logsink.Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to encode log record")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.filter.accepts(rec) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

// ServeHTTP upgrades the request and streams records until the subscriber goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer), filter: f}
	if !h.add(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.log.Debug().Str("remote", r.RemoteAddr).Msg("log subscriber connected")

	go c.writeLoop()
	c.readLoop()

	h.remove(c)
	h.log.Debug().Str("remote", r.RemoteAddr).Msg("log subscriber disconnected")
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many records were dropped for slow subscribers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
		close(c.send)
	}
	h.closed = true
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}

// ListenAndServe serves the hub on addr at path until ctx is cancelled.
func (h *Hub) ListenAndServe(ctx context.Context, addr, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.log.Info().Str("addr", addr).Str("path", path).Msg("log stream listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return eris.Wrap(err, "log stream server failed")
	case <-ctx.Done():
	}

	h.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "failed to shut down log stream server")
	}
	return nil
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	filter filter
}

// readLoop discards inbound frames and returns when the connection fails or closes.
func (c *client) readLoop() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(websocket.TextMessage, data); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *client) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return eris.Wrap(err, "failed to set write deadline")
	}
	return eris.Wrap(c.conn.WriteMessage(messageType, data), "failed to write message")
}

type filter struct {
	categories    []logsink.Category
	importantOnly bool
}

func parseFilter(r *http.Request) (filter, error) {
	var f filter
	q := r.URL.Query()
	for _, raw := range strings.Split(q.Get("category"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		c, err := logsink.ParseCategory(raw)
		if err != nil {
			return f, err
		}
		f.categories = append(f.categories, c)
	}
	switch strings.ToLower(q.Get("important")) {
	case "", "false", "0":
	case "true", "1":
		f.importantOnly = true
	default:
		return f, eris.Errorf("invalid important flag %q", q.Get("important"))
	}
	return f, nil
}

func (f filter) accepts(rec logsink.Record) bool {
	if f.importantOnly && !rec.Important {
		return false
	}
	return len(f.categories) == 0 || slices.Contains(f.categories, rec.Category)
}
