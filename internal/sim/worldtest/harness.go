package worldtest

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"foodrun.game/internal/persistence/snapshot"
	"foodrun.game/internal/protocol"
	"foodrun.game/internal/sim/catalogs"
	"foodrun.game/internal/sim/character"
	"foodrun.game/internal/sim/geom"
	"foodrun.game/internal/sim/tuning"
	world "foodrun.game/internal/sim/world"
	"foodrun.game/internal/sim/worldfile"
)

// Start is the fixed clock origin used by every harness world.
var Start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Step()/StepN() issue input via StepOnce() on a virtual clock
// - Out carries STATE JSON; the last one is decoded into LastState()
// - Snapshot/Debug* helpers provide deterministic preconditions
//
// It avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T    *testing.T
	Cats *catalogs.Catalogs
	File *worldfile.File
	W    *world.World

	out  chan []byte
	last protocol.StateMsg
}

// Fixture holds the configs a harness world is built from.
type Fixture struct {
	Tuning tuning.Tuning
	Cats   *catalogs.Catalogs
	File   *worldfile.File
	Digest string
}

// LoadFixture reads tuning.yaml, the catalogs and world.json from dir.
func LoadFixture(t *testing.T, dir string) Fixture {
	t.Helper()
	tune, err := tuning.Load(filepath.Join(dir, "tuning.yaml"))
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	cats, err := catalogs.Load(dir)
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	f, raw, err := worldfile.Load(filepath.Join(dir, "world.json"))
	if err != nil {
		t.Fatalf("load world: %v", err)
	}
	return Fixture{Tuning: tune, Cats: cats, File: f, Digest: worldfile.Digest(raw)}
}

func (fx Fixture) Config(id string, seed int64) world.WorldConfig {
	return world.WorldConfig{
		ID:       id,
		Tuning:   fx.Tuning,
		Catalogs: fx.Cats,
		Seed:     seed,
		Start:    Start,
	}
}

func NewHarness(t *testing.T, fx Fixture, seed int64) *Harness {
	t.Helper()
	w, err := world.New(fx.Config("test", seed), fx.File, fx.Digest)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return NewHarnessWithWorld(t, w, fx)
}

// NewHarnessWithWorld is like NewHarness, but uses an already-constructed world instance.
// This is useful for snapshot round-trip tests where the snapshot is imported first.
func NewHarnessWithWorld(t *testing.T, w *world.World, fx Fixture) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}
	h := &Harness{T: t, Cats: fx.Cats, File: fx.File, W: w, out: make(chan []byte, 4)}
	if !w.DebugSubscribe(h.out) {
		t.Fatalf("DebugSubscribe returned false")
	}
	t.Cleanup(w.Close)
	return h
}

// Now is the virtual time of the next tick.
func (h *Harness) Now() time.Time {
	return Start.Add(time.Duration(h.W.CurrentTick()) * h.W.Config().Tuning.TickInterval())
}

func (h *Harness) Step(in character.Input) protocol.StateMsg {
	h.T.Helper()
	h.W.StepOnce(in, h.Now())
	h.drain()
	return h.last
}

func (h *Harness) StepN(in character.Input, n int) protocol.StateMsg {
	h.T.Helper()
	for i := 0; i < n; i++ {
		h.Step(in)
	}
	return h.last
}

// StepFor runs ticks covering d of simulated time.
func (h *Harness) StepFor(in character.Input, d time.Duration) protocol.StateMsg {
	h.T.Helper()
	n := int(d / h.W.Config().Tuning.TickInterval())
	return h.StepN(in, n+1)
}

// StepUntil steps until cond holds or max ticks pass; it reports whether
// cond was met.
func (h *Harness) StepUntil(in character.Input, max int, cond func(protocol.StateMsg) bool) bool {
	h.T.Helper()
	for i := 0; i < max; i++ {
		if cond(h.Step(in)) {
			return true
		}
	}
	return false
}

func (h *Harness) LastState() protocol.StateMsg { return h.last }

func (h *Harness) SetPosition(pos geom.Vec3) {
	h.T.Helper()
	if !h.W.DebugSetPosition(pos) {
		h.T.Fatalf("DebugSetPosition returned false")
	}
}

func (h *Harness) AddInventory(item string, delta int) {
	h.T.Helper()
	if !h.W.DebugAddInventory(item, delta) {
		h.T.Fatalf("DebugAddInventory returned false")
	}
}

func (h *Harness) Snapshot() (tick uint64, snap snapshot.SnapshotV1) {
	h.T.Helper()
	// Keep tick stable: export at currentTick-1 then import would restore to currentTick.
	cur := h.W.CurrentTick()
	if cur == 0 {
		return 0, h.W.ExportSnapshot(0)
	}
	tick = cur - 1
	return tick, h.W.ExportSnapshot(tick)
}

// SpawnerState returns the spawner entry from the last STATE.
func (h *Harness) SpawnerState(id string) (protocol.SpawnerState, bool) {
	for _, s := range h.last.Spawners {
		if s.ID == id {
			return s, true
		}
	}
	return protocol.SpawnerState{}, false
}

func (h *Harness) InventoryCount(item string) int {
	for _, st := range h.last.Inventory {
		if st.Item == item {
			return st.Count
		}
	}
	return 0
}

func (h *Harness) drain() {
	h.T.Helper()
	var last []byte
	for {
		select {
		case b := <-h.out:
			last = b
			continue
		default:
		}
		break
	}
	if len(last) == 0 {
		return
	}
	var msg protocol.StateMsg
	if err := json.Unmarshal(last, &msg); err != nil {
		h.T.Fatalf("unmarshal STATE: %v", err)
	}
	h.last = msg
}
