// Package worldapi is the editor's HTTP surface: read and save the level
// file, inspect and toggle spawners, and read the collection ledger.
package worldapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"foodrun.game/internal/persistence/indexdb"
	plog "foodrun.game/internal/persistence/log"
	"foodrun.game/internal/persistence/worldstore"
	"foodrun.game/internal/protocol"
	"foodrun.game/internal/sim/world"
	"foodrun.game/internal/sim/worldfile"
)

const maxWorldBytes = 8 << 20

// World is the running simulation, as seen from HTTP handlers.
type World interface {
	Status() world.Status
	Reload(ctx context.Context, f *worldfile.File, digest string) error
	SetSpawnerActive(ctx context.Context, id string, active bool) error
}

// Index is the read model; nil disables the ledger endpoints.
type Index interface {
	RecordWorldSave(save indexdb.WorldSave)
	CollectionTotals(ctx context.Context, worldID string) ([]indexdb.ItemTotal, error)
	RecentCollections(ctx context.Context, worldID string, limit int) ([]indexdb.Collection, error)
	WorldSaves(ctx context.Context, worldID string, limit int) ([]indexdb.WorldSaveRow, error)
}

type EditLog interface {
	WriteEdit(e plog.EditEntry) error
}

type Server struct {
	WorldID string
	Store   *worldstore.Store
	World   World
	Index   Index
	Edits   EditLog
	Log     *log.Logger

	now func() time.Time
}

var discard = log.New(io.Discard, "", 0)

func (s *Server) logger() *log.Logger {
	if s.Log == nil {
		return discard
	}
	return s.Log
}

func (s *Server) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Register mounts every /api/ route on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("/api/world", cors(http.HandlerFunc(s.handleWorld)))
	mux.Handle("/api/world/saves", cors(http.HandlerFunc(s.handleSaves)))
	mux.Handle("/api/spawners", cors(http.HandlerFunc(s.handleSpawners)))
	mux.Handle("/api/spawners/", cors(http.HandlerFunc(s.handleSpawnerActive)))
	mux.Handle("/api/status", cors(http.HandlerFunc(s.handleStatus)))
	mux.Handle("/api/collections", cors(http.HandlerFunc(s.handleCollections)))
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		h := rw.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			rw.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func (s *Server) handleWorld(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		raw, err := s.Store.Read()
		if err != nil {
			s.logger().Printf("world read: %v", err)
			writeJSON(rw, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write(raw)
	case http.MethodPost:
		s.saveWorld(rw, r)
	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) saveWorld(rw http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWorldBytes+1))
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, apiError(protocol.ErrBadRequest, err.Error()))
		return
	}
	if len(raw) > maxWorldBytes {
		writeJSON(rw, http.StatusRequestEntityTooLarge, apiError(protocol.ErrBadRequest, "world payload too large"))
		return
	}

	res, err := s.Store.Save(raw)
	if err != nil {
		if errors.Is(err, worldstore.ErrInvalidWorld) {
			writeJSON(rw, http.StatusBadRequest, apiError(protocol.ErrWorldInvalid, err.Error()))
			return
		}
		s.logger().Printf("world save: %v", err)
		writeJSON(rw, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	s.logger().Printf("world saved: objects=%d spawners=%d instances=%d bytes=%d backup=%q",
		res.Stats.Objects, res.Stats.Spawners, res.Stats.Instances, res.Bytes, res.Backup)

	now := s.clock()
	if s.Index != nil {
		s.Index.RecordWorldSave(indexdb.WorldSave{
			WorldID:    s.WorldID,
			Digest:     res.Digest,
			PrevDigest: res.PrevDigest,
			Bytes:      res.Bytes,
			BackupPath: res.Backup,
			Source:     "api",
			SavedAt:    now,
		})
	}
	if s.Edits != nil {
		if err := s.Edits.WriteEdit(plog.EditEntry{
			TimeUnixMs: now.UnixMilli(),
			WorldID:    s.WorldID,
			Digest:     res.Digest,
			PrevDigest: res.PrevDigest,
			Bytes:      res.Bytes,
			Backup:     res.Backup,
			Source:     "api",
		}); err != nil {
			s.logger().Printf("edit log: %v", err)
		}
	}
	// The file watcher would pick this up too; the world ignores a digest it
	// already runs.
	if s.World != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.World.Reload(ctx, res.File, res.Digest); err != nil {
			s.logger().Printf("world reload after save: %v", err)
		}
	}

	writeJSON(rw, http.StatusOK, map[string]any{
		"message": "World data saved successfully",
		"digest":  res.Digest,
		"stats": map[string]int{
			"objects":   res.Stats.Objects,
			"spawners":  res.Stats.Spawners,
			"instances": res.Stats.Instances,
		},
	})
}

func (s *Server) handleSaves(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.Index == nil {
		writeJSON(rw, http.StatusOK, map[string]any{"saves": []indexdb.WorldSaveRow{}})
		return
	}
	saves, err := s.Index.WorldSaves(r.Context(), s.WorldID, queryLimit(r, 20))
	if err != nil {
		writeJSON(rw, http.StatusInternalServerError, apiError(protocol.ErrInternal, err.Error()))
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"saves": saves})
}

func (s *Server) handleSpawners(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	st := s.World.Status()
	writeJSON(rw, http.StatusOK, map[string]any{"tick": st.Tick, "spawners": st.Spawners})
}

// handleSpawnerActive serves POST /api/spawners/{id}/active.
func (s *Server) handleSpawnerActive(rw http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/spawners/")
	id, rest, ok := strings.Cut(path, "/")
	if !ok || rest != "active" || id == "" {
		writeJSON(rw, http.StatusNotFound, apiError(protocol.ErrNotFound, "no such route"))
		return
	}
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&body); err != nil || body.Active == nil {
		writeJSON(rw, http.StatusBadRequest, apiError(protocol.ErrBadRequest, `expected {"active": bool}`))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	err := s.World.SetSpawnerActive(ctx, id, *body.Active)
	switch {
	case errors.Is(err, world.ErrUnknownSpawner):
		writeJSON(rw, http.StatusNotFound, apiError(protocol.ErrNotFound, "unknown spawner "+id))
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(rw, http.StatusServiceUnavailable, apiError(protocol.ErrWorldBusy, err.Error()))
	case err != nil:
		writeJSON(rw, http.StatusInternalServerError, apiError(protocol.ErrInternal, err.Error()))
	default:
		s.logger().Printf("spawner=%s active=%v", id, *body.Active)
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "id": id, "active": *body.Active})
	}
}

func (s *Server) handleStatus(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(rw, http.StatusOK, s.World.Status())
}

func (s *Server) handleCollections(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.Index == nil {
		writeJSON(rw, http.StatusOK, map[string]any{"totals": []indexdb.ItemTotal{}, "recent": []indexdb.Collection{}})
		return
	}
	totals, err := s.Index.CollectionTotals(r.Context(), s.WorldID)
	if err != nil {
		writeJSON(rw, http.StatusInternalServerError, apiError(protocol.ErrInternal, err.Error()))
		return
	}
	recent, err := s.Index.RecentCollections(r.Context(), s.WorldID, queryLimit(r, 50))
	if err != nil {
		writeJSON(rw, http.StatusInternalServerError, apiError(protocol.ErrInternal, err.Error()))
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"totals": totals, "recent": recent})
}

func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > 1000 {
		n = 1000
	}
	return n
}

func apiError(code, message string) map[string]any {
	return map[string]any{"error": message, "code": code}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
