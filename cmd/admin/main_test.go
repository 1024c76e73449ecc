package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"foodrun.game/internal/persistence/indexdb"
	persistlog "foodrun.game/internal/persistence/log"
	"foodrun.game/internal/persistence/worldstore"
	"foodrun.game/internal/sim/worldfile"
)

const (
	worldOld = `{"objects":[],"spawners":[{"id":"s1","position":{"x":0,"y":1,"z":0},"itemIds":["apple"]}]}`
	worldNew = `{"objects":[{"id":"wall","instances":[{"x":1,"y":0,"z":0}]}],"spawners":[]}`
)

func TestRestoreBackup_ByIndexAndName(t *testing.T) {
	dir := t.TempDir()
	store := worldstore.New(filepath.Join(dir, "world.json"), filepath.Join(dir, "backups"), 0)
	first, err := store.Save([]byte(worldOld))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Save([]byte(worldNew)); err != nil {
		t.Fatalf("save: %v", err)
	}

	res, err := restoreBackup(store, "-1")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if res.Digest != first.Digest || res.Stats.Spawners != 1 {
		t.Fatalf("restored %+v, want digest %s", res, first.Digest)
	}
	cur, _ := store.Read()
	if worldfile.Digest(cur) != first.Digest {
		t.Fatalf("live file was not restored")
	}

	// Restoring backed up the newer file too.
	all, _ := store.Backups()
	if len(all) != 2 {
		t.Fatalf("backups=%v", all)
	}
	if _, err := restoreBackup(store, filepath.Base(all[1])); err != nil {
		t.Fatalf("restore by name: %v", err)
	}
	if _, err := restoreBackup(store, "7"); err == nil {
		t.Fatalf("out of range index accepted")
	}
	if _, err := restoreBackup(store, "nope.zst"); err == nil {
		t.Fatalf("unknown name accepted")
	}
}

func TestReadEdits_StreamsLoggedEntries(t *testing.T) {
	dir := t.TempDir()
	l := persistlog.NewEditLogger(dir)
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	want := []worldstore.SaveResult{
		{Digest: "aaa", Bytes: 10},
		{Digest: "bbb", PrevDigest: "aaa", Bytes: 12, Backup: "b1"},
	}
	for _, r := range want {
		if err := l.WriteEdit(editEntry("main", r, now)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got []persistlog.EditEntry
	err := readEdits(dir, func(e persistlog.EditEntry) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[1].PrevDigest != "aaa" || got[1].Source != "restore" || got[0].TimeUnixMs != now.UnixMilli() {
		t.Fatalf("got=%+v", got)
	}
}

type fakeLedger struct{ gotLimit int }

func (f *fakeLedger) CollectionTotals(context.Context, string) ([]indexdb.ItemTotal, error) {
	return []indexdb.ItemTotal{{ItemID: "apple", Quantity: 3, Collections: 2}}, nil
}

func (f *fakeLedger) RecentCollections(_ context.Context, _ string, limit int) ([]indexdb.Collection, error) {
	f.gotLimit = limit
	return []indexdb.Collection{{Tick: 4, ItemID: "apple"}}, nil
}

func (f *fakeLedger) WorldSaves(context.Context, string, int) ([]indexdb.WorldSaveRow, error) {
	return nil, nil
}

func (f *fakeLedger) LatestSnapshot(context.Context, string) (string, uint64, bool, error) {
	return "", 0, false, nil
}

func TestRunQuery(t *testing.T) {
	ctx := context.Background()
	l := &fakeLedger{}
	rows, err := runQuery(ctx, l, "main", "totals", 5)
	if err != nil || len(rows) != 1 {
		t.Fatalf("totals rows=%v err=%v", rows, err)
	}
	if _, err := runQuery(ctx, l, "main", "collections", 0); err != nil || l.gotLimit != 20 {
		t.Fatalf("collections limit=%d err=%v", l.gotLimit, err)
	}
	if _, err := runQuery(ctx, l, "main", "snapshot", 5); err == nil {
		t.Fatalf("missing snapshot should error")
	}
	if _, err := runQuery(ctx, l, "main", "agents", 5); err == nil {
		t.Fatalf("unknown query accepted")
	}
}

func TestDo_PostsJSONAndReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/spawners/vault/active" && r.Method == http.MethodPost &&
			r.Header.Get("Content-Type") == "application/json" {
			_, _ = rw.Write([]byte(`{"id":"vault","active":false}`))
			return
		}
		http.Error(rw, `{"error":"nope"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	cl := srv.Client()
	b, err := do(cl, http.MethodPost, endpoint(srv.URL+"/", "/api/spawners/vault/active"), []byte(`{"active":false}`))
	if err != nil || !strings.Contains(string(b), `"active":false`) {
		t.Fatalf("body=%s err=%v", b, err)
	}
	b, err = do(cl, http.MethodGet, endpoint(srv.URL, "/admin/v1/state"), nil)
	if err == nil || !strings.Contains(string(b), "nope") {
		t.Fatalf("expected 404 error with body, got body=%s err=%v", b, err)
	}
}
