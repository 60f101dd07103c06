package observe

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"
	"github.com/san-kum/dropsim/internal/demo"
	"github.com/san-kum/dropsim/internal/engine"
)

func samplePoll(tick int, withPoses bool) demo.Poll {
	p := demo.Poll{Tick: tick, At: time.UnixMilli(1700000000000), Keys: map[int]int{113: 3}}
	if withPoses {
		p.Poses = map[string]engine.Pose{
			"duck": {
				Position:    mgl64.Vec3{3, 3, 10},
				Orientation: mgl64.Quat{W: 0.5, V: mgl64.Vec3{0.1, 0.2, 0.3}},
			},
		}
	}
	return p
}

func TestEncode(t *testing.T) {
	msg := Encode(samplePoll(4, true))
	if msg.Type != MsgType || msg.Tick != 4 || msg.TimeMS != 1700000000000 {
		t.Errorf("unexpected header %+v", msg)
	}
	duck := msg.Poses["duck"]
	if duck.Orientation != [4]float64{0.1, 0.2, 0.3, 0.5} {
		t.Errorf("orientation not x,y,z,w: %v", duck.Orientation)
	}
	if Encode(samplePoll(1, false)).Poses != nil {
		t.Error("unsampled poll should carry no poses")
	}
}

func dial(t *testing.T, srv *httptest.Server, hub *Hub, want int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() < want {
		if time.Now().After(deadline) {
			t.Fatal("client never joined")
		}
		time.Sleep(time.Millisecond)
	}
	return conn
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(log.New(&bytes.Buffer{}, "", 0))
	srv := httptest.NewServer(hub.Mux([]string{"floor", "duck"}))
	defer srv.Close()
	defer hub.Close()

	a := dial(t, srv, hub, 1)
	defer a.Close()
	b := dial(t, srv, hub, 2)
	defer b.Close()

	hub.Observe(samplePoll(10, true))

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg PollMsg
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if msg.Tick != 10 || msg.Keys[113] != 3 {
			t.Errorf("unexpected message %+v", msg)
		}
		if msg.Poses["duck"].Position != [3]float64{3, 3, 10} {
			t.Errorf("unexpected duck pose %+v", msg.Poses["duck"])
		}
	}
}

func TestHubPosesOnly(t *testing.T) {
	hub := NewHub(log.New(&bytes.Buffer{}, "", 0))
	hub.PosesOnly = true
	srv := httptest.NewServer(hub.Mux(nil))
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv, hub, 1)
	defer conn.Close()

	hub.Observe(samplePoll(1, false))
	hub.Observe(samplePoll(2, true))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg PollMsg
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msg.Tick != 2 {
		t.Errorf("expected the sampled poll first, got tick %d", msg.Tick)
	}
}

func TestHubClientLeaves(t *testing.T) {
	hub := NewHub(log.New(&bytes.Buffer{}, "", 0))
	srv := httptest.NewServer(hub.Mux(nil))
	defer srv.Close()

	conn := dial(t, srv, hub, 1)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never left")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBodiesEndpoint(t *testing.T) {
	hub := NewHub(log.New(&bytes.Buffer{}, "", 0))
	srv := httptest.NewServer(hub.Mux([]string{"part1", "floor"}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/bodies")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		t.Fatal(err)
	}
	if strings.Join(names, ",") != "floor,part1" {
		t.Errorf("unexpected bodies %v", names)
	}

	post, err := http.Post(srv.URL+"/bodies", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", post.StatusCode)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:5000", true},
		{"[::1]:5000", true},
		{"10.0.0.2:5000", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := isLoopbackRemote(tt.addr); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.addr, tt.want, got)
		}
	}
}
