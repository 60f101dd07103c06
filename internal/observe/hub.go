// Package observe streams demo polls to websocket clients.
package observe

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/san-kum/dropsim/internal/demo"
)

const (
	MsgType      = "POLL"
	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
	sendBuffer   = 16
)

// PoseMsg carries a pose with the quaternion in x, y, z, w order.
type PoseMsg struct {
	Position    [3]float64 `json:"position"`
	Orientation [4]float64 `json:"orientation"`
}

type PollMsg struct {
	Type   string             `json:"type"`
	Tick   int                `json:"tick"`
	TimeMS int64              `json:"time_ms"`
	Keys   map[int]int        `json:"keys,omitempty"`
	Poses  map[string]PoseMsg `json:"poses,omitempty"`
}

func Encode(p demo.Poll) PollMsg {
	msg := PollMsg{Type: MsgType, Tick: p.Tick, TimeMS: p.At.UnixMilli(), Keys: p.Keys}
	if p.Poses != nil {
		msg.Poses = make(map[string]PoseMsg, len(p.Poses))
		for name, pose := range p.Poses {
			q := pose.Orientation
			msg.Poses[name] = PoseMsg{
				Position:    pose.Position,
				Orientation: [4]float64{q.V[0], q.V[1], q.V[2], q.W},
			}
		}
	}
	return msg
}

// Hub fans polls out to connected clients. Slow clients miss polls rather
// than stall the demo loop.
type Hub struct {
	// PosesOnly drops polls that carry no poses.
	PosesOnly bool

	log      *log.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[chan []byte]struct{}),
	}
}

// Observe implements demo.Observer.
func (h *Hub) Observe(p demo.Poll) {
	if h.PosesOnly && p.Poses == nil {
		return
	}
	b, err := json.Marshal(Encode(p))
	if err != nil {
		h.log.Printf("encode poll %d: %v", p.Tick, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c <- b:
		default:
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) join() chan []byte {
	c := make(chan []byte, sendBuffer)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) leave(c chan []byte) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Close drops every client; their handlers return once their sockets close.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c)
		delete(h.clients, c)
	}
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		out := h.join()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				h.leave(out)
				return
			case b, ok := <-out:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					h.leave(out)
					return
				}
			}
		}
	}
}

// Mux serves the feed at /ws and the current body names at /bodies.
func (h *Hub) Mux(bodies []string) *http.ServeMux {
	names := append([]string(nil), bodies...)
	sort.Strings(names)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.Handler())
	mux.HandleFunc("/bodies", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(names)
	})
	return mux
}

func isLoopbackRemote(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
