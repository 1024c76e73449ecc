package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"foodrun.game/internal/sim/world"
	"foodrun.game/internal/transport/observer"
	"foodrun.game/internal/transport/worldapi"
	"foodrun.game/internal/transport/ws"
)

type routes struct {
	World  *world.World
	Hub    *observer.Hub
	Player *ws.Server
	API    *worldapi.Server
	Index  runtimeIndex

	EnableAdmin bool
	EnablePprof bool
}

func (rt routes) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", rt.metrics)

	if rt.EnableAdmin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(rt.World.Status())
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			tick, err := rt.World.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})
	}
	if rt.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	if rt.Hub != nil {
		mux.HandleFunc("/v1/observer/scene", rt.Hub.SceneHandler())
		mux.HandleFunc("/v1/observer/ws", rt.Hub.WSHandler())
	}
	if rt.Player != nil {
		mux.HandleFunc("/v1/ws", rt.Player.Handler())
	}
	if rt.API != nil {
		rt.API.Register(mux)
	}
	return mux
}

// metrics writes a minimal Prometheus exposition.
func (rt routes) metrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	st := rt.World.Status()
	id := st.WorldID

	fmt.Fprintf(rw, "# HELP foodrun_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE foodrun_world_tick gauge\n")
	fmt.Fprintf(rw, "foodrun_world_tick{world=%q} %d\n", id, st.Tick)

	fmt.Fprintf(rw, "# HELP foodrun_spawner_state Spawner state (1 for the current state).\n")
	fmt.Fprintf(rw, "# TYPE foodrun_spawner_state gauge\n")
	for _, sp := range st.Spawners {
		fmt.Fprintf(rw, "foodrun_spawner_state{world=%q,spawner=%q,state=%q} 1\n", id, sp.ID, sp.State)
	}

	fmt.Fprintf(rw, "# HELP foodrun_inventory_items Items held by the character.\n")
	fmt.Fprintf(rw, "# TYPE foodrun_inventory_items gauge\n")
	for _, s := range st.Inventory {
		fmt.Fprintf(rw, "foodrun_inventory_items{world=%q,item=%q} %d\n", id, s.Item, s.Count)
	}

	if rt.Hub != nil {
		fmt.Fprintf(rw, "# HELP foodrun_observer_clients Connected scene observers.\n")
		fmt.Fprintf(rw, "# TYPE foodrun_observer_clients gauge\n")
		fmt.Fprintf(rw, "foodrun_observer_clients{world=%q} %d\n", id, rt.Hub.Clients())
		fmt.Fprintf(rw, "# HELP foodrun_observer_dropped_total Observers dropped for falling behind.\n")
		fmt.Fprintf(rw, "# TYPE foodrun_observer_dropped_total counter\n")
		fmt.Fprintf(rw, "foodrun_observer_dropped_total{world=%q} %d\n", id, rt.Hub.Dropped())
	}

	if rt.Index != nil {
		s := rt.Index.Stats()
		fmt.Fprintf(rw, "# HELP foodrun_index_queue_depth Index writer backlog.\n")
		fmt.Fprintf(rw, "# TYPE foodrun_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "foodrun_index_queue_depth{world=%q} %d\n", id, s.QueueDepth)
		fmt.Fprintf(rw, "# HELP foodrun_index_dropped_total Index requests dropped under backpressure.\n")
		fmt.Fprintf(rw, "# TYPE foodrun_index_dropped_total counter\n")
		fmt.Fprintf(rw, "foodrun_index_dropped_total{world=%q,kind=%q} %d\n", id, "events", s.DropEventsTotal)
		fmt.Fprintf(rw, "foodrun_index_dropped_total{world=%q,kind=%q} %d\n", id, "saves", s.DropSavesTotal)
		fmt.Fprintf(rw, "foodrun_index_dropped_total{world=%q,kind=%q} %d\n", id, "snapshots", s.DropSnapshotTotal)
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
