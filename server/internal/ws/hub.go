package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/obsidianstack/logship/server/internal/api"
	"github.com/obsidianstack/logship/server/internal/store"
)

// EventPeers names every message the hub sends.
const EventPeers = "peers"

const (
	writeWait  = 10 * time.Second
	pongWait   = time.Minute
	pingEvery  = pongWait * 9 / 10
	queueDepth = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Message is the JSON envelope of every push.
type Message struct {
	Event string               `json:"event"`
	Data  api.SnapshotResponse `json:"data"`
}

// Hub streams peer snapshots to connected WebSocket clients.
type Hub struct {
	store    *store.Store
	interval time.Duration
	wake     chan struct{}

	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	stopped bool
}

// subscriber is one connected client. out is closed exactly once by drop.
type subscriber struct {
	conn *websocket.Conn
	out  chan []byte
}

// New creates a Hub that reads peers from st and pushes every interval.
func New(st *store.Store, interval time.Duration) *Hub {
	return &Hub{
		store:    st,
		interval: interval,
		wake:     make(chan struct{}, 1),
		subs:     make(map[*subscriber]struct{}),
	}
}

// Notify schedules a push ahead of the next tick. It never blocks, and
// calls made before the push happens coalesce.
func (h *Hub) Notify() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Run pushes snapshots until ctx is cancelled, then disconnects every
// client and refuses new ones.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.stop()
			return
		case <-t.C:
		case <-h.wake:
		}
		msg, err := h.encode()
		if err != nil {
			slog.Error("ws: encode snapshot", "err", err)
			continue
		}
		h.publish(msg)
	}
}

// ServeHTTP upgrades the request, sends the current snapshot, and then
// relays pushes until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s := &subscriber{conn: conn, out: make(chan []byte, queueDepth)}
	if msg, err := h.encode(); err == nil {
		s.out <- msg
	}
	if !h.add(s) {
		conn.Close()
		return
	}
	defer h.drop(s)

	go s.writeLoop()
	s.readLoop()
}

func (h *Hub) encode() ([]byte, error) {
	return json.Marshal(Message{Event: EventPeers, Data: api.BuildSnapshot(h.store)})
}

func (h *Hub) add(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.subs[s] = struct{}{}
	return true
}

func (h *Hub) drop(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.out)
	}
}

// publish queues msg for every client. A client whose queue is full is
// disconnected.
func (h *Hub) publish(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.out <- msg:
		default:
			slog.Debug("ws: dropping slow client", "remote", s.conn.RemoteAddr().String())
			delete(h.subs, s)
			close(s.out)
		}
	}
}

func (h *Hub) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for s := range h.subs {
		delete(h.subs, s)
		close(s.out)
	}
}

// writeLoop owns all writes to the connection.
func (s *subscriber) writeLoop() {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards client frames and returns when the connection fails or
// the pong deadline passes.
func (s *subscriber) readLoop() {
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
