package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"foodrun.game/internal/persistence/snapshot"
)

func writeDummy(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func snapAt(tick uint64, digest string) snapshot.SnapshotV1 {
	return snapshot.SnapshotV1{
		Header:      snapshot.Header{Version: 1, WorldID: "main", Tick: tick},
		WorldDigest: digest,
	}
}

func TestRevisions_ArchivesLastSnapshotOfOldWorld(t *testing.T) {
	worldDir := t.TempDir()
	r := NewRevisions(worldDir)
	r.now = func() time.Time { return time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC) }

	oldDigest := "aaaaaaaaaaaaaaaaaaaa"
	p1 := filepath.Join(worldDir, "snapshots", "100.snap.zst")
	p2 := filepath.Join(worldDir, "snapshots", "200.snap.zst")
	p3 := filepath.Join(worldDir, "snapshots", "300.snap.zst")
	writeDummy(t, p1, "one")
	writeDummy(t, p2, "two")
	writeDummy(t, p3, "three")

	if _, ok, err := r.Observe(p1, snapAt(100, oldDigest)); ok || err != nil {
		t.Fatalf("first snapshot archived: ok=%v err=%v", ok, err)
	}
	if _, ok, err := r.Observe(p2, snapAt(200, oldDigest)); ok || err != nil {
		t.Fatalf("same revision archived: ok=%v err=%v", ok, err)
	}
	dst, ok, err := r.Observe(p3, snapAt(300, "bbbb"))
	if err != nil || !ok {
		t.Fatalf("revision change not archived: ok=%v err=%v", ok, err)
	}
	if want := filepath.Join(worldDir, "archives", "world_aaaaaaaaaaaa", "200.snap.zst"); dst != want {
		t.Fatalf("dst=%s want %s", dst, want)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "two" {
		t.Fatalf("archived %q", got)
	}

	b, err := os.ReadFile(filepath.Join(filepath.Dir(dst), "meta.json"))
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	var meta RevisionArchiveMeta
	if err := json.Unmarshal(b, &meta); err != nil {
		t.Fatalf("meta json: %v", err)
	}
	if meta.EndTick != 200 || meta.NextDigest != "bbbb" || meta.WorldDigest != oldDigest {
		t.Fatalf("meta=%+v", meta)
	}
}

func TestRevisions_MissingSnapshotFileErrors(t *testing.T) {
	worldDir := t.TempDir()
	r := NewRevisions(worldDir)
	_, _, _ = r.Observe(filepath.Join(worldDir, "gone.snap.zst"), snapAt(1, "a"))
	if _, ok, err := r.Observe(filepath.Join(worldDir, "next.snap.zst"), snapAt(2, "b")); ok || err == nil {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}
