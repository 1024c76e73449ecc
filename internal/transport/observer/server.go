// Package observer streams the scene graph to read-only viewers. The Hub is
// the world's scene.Host: the simulation attaches and detaches nodes, the
// Hub mirrors them and fans the changes out to connected observers.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"foodrun.game/internal/protocol"
	"foodrun.game/internal/sim/scene"
)

type Options struct {
	// AllowRemote admits non-loopback observers.
	AllowRemote bool
	// ClientBuffer is the per-observer queue; a full queue drops the observer.
	ClientBuffer int
}

type Hub struct {
	log  *log.Logger
	opts Options

	mu      sync.Mutex
	nodes   map[string]scene.Node
	clients map[string]chan []byte

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64
}

func NewHub(opts Options, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.ClientBuffer <= 0 {
		opts.ClientBuffer = 1024
	}
	return &Hub{
		log:     logger,
		opts:    opts,
		nodes:   map[string]scene.Node{},
		clients: map[string]chan []byte{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Add implements scene.Host. It never blocks the caller.
func (h *Hub) Add(n scene.Node) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nodes[n.ID] = n
	h.broadcastLocked(protocol.TypeNodeAdd, n)
}

// Remove implements scene.Host.
func (h *Hub) Remove(n scene.Node) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.nodes[n.ID]; !ok {
		return
	}
	delete(h.nodes, n.ID)
	h.broadcastLocked(protocol.TypeNodeRemove, n)
}

// Nodes returns the attached nodes ordered by id.
func (h *Hub) Nodes() []scene.Node {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nodesLocked()
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped counts observers disconnected for falling behind.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) nodesLocked() []scene.Node {
	out := make([]scene.Node, 0, len(h.nodes))
	for _, n := range h.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (h *Hub) snapshotLocked() []byte {
	nodes := h.nodesLocked()
	msg := protocol.SceneSnapshotMsg{
		Type:            protocol.TypeSceneSnapshot,
		ProtocolVersion: protocol.Version,
		Nodes:           make([]protocol.SceneNode, 0, len(nodes)),
	}
	for _, n := range nodes {
		msg.Nodes = append(msg.Nodes, wireNode(n))
	}
	b, _ := json.Marshal(msg)
	return b
}

func (h *Hub) broadcastLocked(typ string, n scene.Node) {
	if len(h.clients) == 0 {
		return
	}
	b, err := json.Marshal(protocol.NodeMsg{Type: typ, ProtocolVersion: protocol.Version, Node: wireNode(n)})
	if err != nil {
		h.log.Printf("observer: marshal %s: %v", typ, err)
		return
	}
	for id, ch := range h.clients {
		select {
		case ch <- b:
		default:
			// A lagging observer would see a torn scene; make it reconnect.
			close(ch)
			delete(h.clients, id)
			h.dropped.Add(1)
			h.log.Printf("observer=%s dropped (queue full)", id)
		}
	}
}

// join registers a client and queues the current scene as its first
// message, under one lock so no change is missed or duplicated.
func (h *Hub) join() (string, chan []byte) {
	id := fmt.Sprintf("O%d", h.nextID.Add(1))
	ch := make(chan []byte, h.opts.ClientBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	ch <- h.snapshotLocked()
	h.clients[id] = ch
	return id, ch
}

func (h *Hub) leave(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[id]; ok {
		close(ch)
		delete(h.clients, id)
	}
}

func (h *Hub) allowed(r *http.Request) bool {
	return h.opts.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

// SceneHandler serves the current scene as one SCENE_SNAPSHOT document.
func (h *Hub) SceneHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !h.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h.mu.Lock()
		b := h.snapshotLocked()
		h.mu.Unlock()
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write(b)
	}
}

func (h *Hub) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !h.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, out := h.join()
		defer h.leave(id)
		h.log.Printf("observer=%s connected from %s", id, r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-out:
					if !ok {
						writeErr <- nil
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"), time.Now().Add(time.Second))
						_ = conn.Close()
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Reader loop: observers only talk to keep the connection alive.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		h.log.Printf("observer=%s disconnected", id)
	}
}

func wireNode(n scene.Node) protocol.SceneNode {
	return protocol.SceneNode{
		ID:    n.ID,
		Kind:  n.Kind,
		Model: n.ModelRef,
		Pos:   [3]float64{n.Position[0], n.Position[1], n.Position[2]},
		Scale: n.Scale,
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
