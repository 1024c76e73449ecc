package log

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"foodrun.game/internal/sim/character"
	"foodrun.game/internal/sim/spawner"
	"foodrun.game/internal/sim/world"
)

func TestJSONLZstdWriter_RotatesByHour(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "x")
	now := time.Date(2026, 5, 1, 9, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if err := w.Write(map[string]int{"i": i}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"i": 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(dir, "x")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	want := []string{
		filepath.Join(dir, "x-2026-05-01-09.jsonl.zst"),
		filepath.Join(dir, "x-2026-05-01-10.jsonl.zst"),
	}
	if len(files) != 2 || files[0] != want[0] || files[1] != want[1] {
		t.Fatalf("files=%v", files)
	}

	var seen []int
	for _, f := range files {
		err := ReadFile(f, func(line []byte) error {
			var v map[string]int
			if err := json.Unmarshal(line, &v); err != nil {
				return err
			}
			seen = append(seen, v["i"])
			return nil
		})
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	if len(seen) != 4 || seen[0] != 0 || seen[3] != 3 {
		t.Fatalf("seen=%v", seen)
	}
}

func TestJSONLZstdWriter_AppendsAfterReopen(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		w := NewJSONLZstdWriter(dir, "x")
		w.now = func() time.Time { return now }
		if err := w.Write(map[string]int{"i": i}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	var n int
	files, _ := Files(dir, "x")
	if len(files) != 1 {
		t.Fatalf("files=%v", files)
	}
	if err := ReadFile(files[0], func([]byte) error { n++; return nil }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 2 {
		t.Fatalf("lines=%d want 2", n)
	}
}

func TestTickLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	entries := []world.TickLogEntry{
		{Tick: 1, TimeUnixMs: 1000, Input: character.Input{Forward: true}, Pos: [3]float64{0, 2, -0.15}},
		{Tick: 9, TimeUnixMs: 1150, Pos: [3]float64{0, 2, -1.2}, Events: []spawner.Event{
			{Type: spawner.EventCollect, SpawnerID: "kitchen", ItemID: "apple", Quantity: 2},
		}},
	}
	for _, e := range entries {
		if err := l.WriteTick(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got []world.TickLogEntry
	if err := ReadTicks(dir, func(e world.TickLogEntry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].Input != entries[0].Input || got[1].Events[0].ItemID != "apple" {
		t.Fatalf("got=%+v", got)
	}
}

func TestEditLogger(t *testing.T) {
	dir := t.TempDir()
	l := NewEditLogger(dir)
	if err := l.WriteEdit(EditEntry{WorldID: "main", Digest: "abc", Bytes: 10, Source: "api"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, err := Files(filepath.Join(dir, "edits"), "edits")
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
}
