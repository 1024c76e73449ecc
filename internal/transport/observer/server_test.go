package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"foodrun.game/internal/protocol"
	"foodrun.game/internal/sim/geom"
	"foodrun.game/internal/sim/scene"
)

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:1234": true,
		"[::1]:80":       true,
		"10.0.0.2:5555":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}

func TestHub_MirrorsNodes(t *testing.T) {
	h := NewHub(Options{}, nil)
	h.Add(scene.Node{ID: "b", Kind: "apple"})
	h.Add(scene.Node{ID: "a", Kind: "banana"})
	h.Remove(scene.Node{ID: "b"})
	h.Remove(scene.Node{ID: "missing"})

	nodes := h.Nodes()
	if len(nodes) != 1 || nodes[0].ID != "a" {
		t.Fatalf("nodes=%+v", nodes)
	}
}

func TestHub_StreamsSnapshotThenChanges(t *testing.T) {
	h := NewHub(Options{}, nil)
	h.Add(scene.Node{ID: "wall#0", Kind: "wall", Position: geom.Vec3{1, 2, 3}, Scale: 1})

	srv := httptest.NewServer(h.WSHandler())
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var snap protocol.SceneSnapshotMsg
	read(t, conn, &snap)
	if snap.Type != protocol.TypeSceneSnapshot || len(snap.Nodes) != 1 || snap.Nodes[0].Pos != [3]float64{1, 2, 3} {
		t.Fatalf("snapshot=%+v", snap)
	}

	h.Add(scene.Node{ID: "e1", Kind: "apple", ModelRef: "models/apple.glb"})
	h.Remove(scene.Node{ID: "e1"})

	var add, rem protocol.NodeMsg
	read(t, conn, &add)
	read(t, conn, &rem)
	if add.Type != protocol.TypeNodeAdd || add.Node.Model != "models/apple.glb" {
		t.Fatalf("add=%+v", add)
	}
	if rem.Type != protocol.TypeNodeRemove || rem.Node.ID != "e1" {
		t.Fatalf("remove=%+v", rem)
	}
}

func TestHub_DropsSlowObserver(t *testing.T) {
	h := NewHub(Options{ClientBuffer: 2}, nil)
	id, ch := h.join() // snapshot occupies one slot
	h.Add(scene.Node{ID: "x"})
	h.Add(scene.Node{ID: "y"})

	if h.Clients() != 0 || h.Dropped() != 1 {
		t.Fatalf("clients=%d dropped=%d", h.Clients(), h.Dropped())
	}
	n := 0
	for range ch {
		n++
	}
	if n != 2 {
		t.Fatalf("queued=%d", n)
	}
	h.leave(id) // already gone; must not double close
}

func TestSceneHandler_ForbidsRemote(t *testing.T) {
	h := NewHub(Options{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/observer/scene", nil)
	req.RemoteAddr = "10.1.2.3:4000"
	rec := httptest.NewRecorder()
	h.SceneHandler()(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("code=%d", rec.Code)
	}

	h = NewHub(Options{AllowRemote: true}, nil)
	rec = httptest.NewRecorder()
	h.SceneHandler()(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
}

func read(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}
