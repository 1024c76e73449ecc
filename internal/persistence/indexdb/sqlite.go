package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"foodrun.game/internal/persistence/snapshot"
	"foodrun.game/internal/sim/catalogs"
	"foodrun.game/internal/sim/spawner"
	"foodrun.game/internal/sim/tuning"
)

// SQLiteIndex is a secondary, queryable index of the world's history. Writes
// are queued and applied by one goroutine; the JSONL logs and snapshot files
// remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB
	// ro serves queries; WAL lets it read while the writer holds a tx.
	ro *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEvents    atomic.Uint64
	dropSaves     atomic.Uint64
	dropSnapshots atomic.Uint64
}

type reqKind int

const (
	reqEvents reqKind = iota + 1
	reqWorldSave
	reqSnapshot
	// reqSync is a barrier: the writer commits and closes done.
	reqSync
)

type req struct {
	kind reqKind

	worldID  string
	tick     uint64
	events   []spawner.Event
	save     WorldSave
	snapshot snapshotRow
	done     chan struct{}
}

// WorldSave describes one accepted world file write.
type WorldSave struct {
	WorldID    string
	Digest     string
	PrevDigest string
	Bytes      int
	BackupPath string
	Source     string
	SavedAt    time.Time
}

type snapshotRow struct {
	WorldID        string
	Tick           uint64
	Path           string
	WorldDigest    string
	InventoryTotal int
	Spawners       int
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropEventsTotal   uint64 `json:"drop_events_total"`
	DropSavesTotal    uint64 `json:"drop_saves_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// The pragma goes in the DSN so every pooled reader gets it.
	ro, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ro.SetMaxOpenConns(4)

	s := &SQLiteIndex{
		db: db,
		ro: ro,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS spawner_events (
			world_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			spawner_id TEXT NOT NULL,
			entity_id TEXT,
			item_id TEXT,
			quantity INTEGER NOT NULL,
			state TEXT,
			message TEXT,
			at_ms INTEGER NOT NULL,
			PRIMARY KEY (world_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_spawner_events_spawner_tick ON spawner_events(spawner_id, tick);`,
		`CREATE TABLE IF NOT EXISTS collections (
			world_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			entity_id TEXT NOT NULL,
			spawner_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			at_ms INTEGER NOT NULL,
			PRIMARY KEY (world_id, entity_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_collections_item ON collections(item_id);`,
		`CREATE TABLE IF NOT EXISTS world_saves (
			digest TEXT NOT NULL,
			world_id TEXT NOT NULL,
			prev_digest TEXT,
			bytes INTEGER NOT NULL,
			backup_path TEXT,
			source TEXT NOT NULL,
			saved_at TEXT NOT NULL,
			PRIMARY KEY (world_id, saved_at)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			world_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			path TEXT NOT NULL,
			world_digest TEXT NOT NULL,
			inventory_total INTEGER NOT NULL,
			spawners INTEGER NOT NULL,
			PRIMARY KEY (world_id, tick)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		if s.ro != nil {
			_ = s.ro.Close()
		}
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropEventsTotal:   s.dropEvents.Load(),
		DropSavesTotal:    s.dropSaves.Load(),
		DropSnapshotTotal: s.dropSnapshots.Load(),
	}
}

// RecordEvents implements the world ledger. It never blocks the caller.
func (s *SQLiteIndex) RecordEvents(worldID string, tick uint64, events []spawner.Event) {
	if s == nil || s.closed.Load() || len(events) == 0 {
		return
	}
	evs := make([]spawner.Event, len(events))
	copy(evs, events)
	select {
	case s.ch <- req{kind: reqEvents, worldID: worldID, tick: tick, events: evs}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropEvents.Add(1)
	}
}

func (s *SQLiteIndex) RecordWorldSave(save WorldSave) {
	if s == nil || s.closed.Load() || save.Digest == "" {
		return
	}
	if save.SavedAt.IsZero() {
		save.SavedAt = time.Now()
	}
	select {
	case s.ch <- req{kind: reqWorldSave, save: save}:
	default:
		s.dropSaves.Add(1)
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	total := 0
	for _, n := range snap.Inventory {
		total += n
	}
	r := snapshotRow{
		WorldID:        snap.Header.WorldID,
		Tick:           snap.Header.Tick,
		Path:           path,
		WorldDigest:    snap.WorldDigest,
		InventoryTotal: total,
		Spawners:       len(snap.Spawners),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshots.Add(1)
	}
}

// Sync waits until everything queued so far is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil || cats == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	raw := map[string][]byte{}
	read := func(name, path string) {
		b, err := os.ReadFile(path)
		if err != nil {
			return
		}
		raw[name] = b
	}
	if configDir != "" {
		read("items_defs", filepath.Join(configDir, "items.json"))
		read("structures", filepath.Join(configDir, "structures.json"))
	}

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if b := raw["items_defs"]; len(b) > 0 {
		rows = append(rows, kv{name: "items_defs", digest: cats.Items.DefsDigest, json: b})
	}
	if b, _ := json.Marshal(cats.Items.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "items_palette", digest: cats.Items.PaletteDigest, json: b})
	}
	if b := raw["structures"]; len(b) > 0 {
		rows = append(rows, kv{name: "structures", digest: cats.Structures.Digest, json: b})
	}

	// Tuning: store the values we actually apply (canonical JSON).
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		digest := hex.EncodeToString(sum[:])
		rows = append(rows, kv{name: "tuning", digest: digest, json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO spawner_events(world_id,tick,seq,type,spawner_id,entity_id,item_id,quantity,state,message,at_ms) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertCollection, _ := s.db.Prepare(`INSERT OR REPLACE INTO collections(world_id,tick,entity_id,spawner_id,item_id,quantity,at_ms) VALUES(?,?,?,?,?,?,?)`)
	insertSave, _ := s.db.Prepare(`INSERT OR REPLACE INTO world_saves(digest,world_id,prev_digest,bytes,backup_path,source,saved_at) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(world_id,tick,path,world_digest,inventory_total,spawners) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEvent, insertCollection, insertSave, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	idle := time.NewTicker(commitMaxWait / 4)
	defer idle.Stop()

	handle := func(r req) {
		if r.kind == reqSync {
			commit()
			close(r.done)
			return
		}
		begin()
		if tx == nil {
			return
		}
		switch r.kind {
		case reqEvents:
			for i, ev := range r.events {
				if insertEvent == nil {
					break
				}
				if _, err := tx.Stmt(insertEvent).Exec(
					r.worldID,
					int64(r.tick),
					i,
					string(ev.Type),
					ev.SpawnerID,
					ev.EntityID,
					ev.ItemID,
					ev.Quantity,
					string(ev.State),
					ev.Message,
					ev.At.UnixMilli(),
				); err != nil {
					rollback()
					break
				}
				opCount++
				if ev.Type != spawner.EventCollect || insertCollection == nil {
					continue
				}
				if _, err := tx.Stmt(insertCollection).Exec(
					r.worldID,
					int64(r.tick),
					ev.EntityID,
					ev.SpawnerID,
					ev.ItemID,
					ev.Quantity,
					ev.At.UnixMilli(),
				); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqWorldSave:
			sv := r.save
			if insertSave != nil {
				if _, err := tx.Stmt(insertSave).Exec(
					sv.Digest,
					sv.WorldID,
					sv.PrevDigest,
					sv.Bytes,
					sv.BackupPath,
					sv.Source,
					sv.SavedAt.UTC().Format(time.RFC3339Nano),
				); err != nil {
					rollback()
					return
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					sn.WorldID,
					int64(sn.Tick),
					sn.Path,
					sn.WorldDigest,
					sn.InventoryTotal,
					sn.Spawners,
				); err != nil {
					rollback()
					return
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			handle(r)
		case <-idle.C:
			flushIfNeeded()
		}
	}
}
