package world

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"foodrun.game/internal/persistence/snapshot"
	"foodrun.game/internal/protocol"
	"foodrun.game/internal/sim/catalogs"
	"foodrun.game/internal/sim/character"
	"foodrun.game/internal/sim/spawner"
	"foodrun.game/internal/sim/tuning"
	"foodrun.game/internal/sim/worldfile"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

const testWorld = `{
  "player": {"spawn": {"x": 0, "y": 2, "z": 0}},
  "objects": [
    {"id": "wall", "instances": [{"x": 0, "y": 0, "z": -20}]}
  ],
  "spawners": [
    {"id": "near", "type": "item", "position": {"x": 0, "y": 1, "z": -3},
     "itemIds": ["apple"], "quantities": [{"min": 1, "max": 1}], "cooldownMs": 1000},
    {"id": "far", "position": {"x": 50, "y": 1, "z": 50}, "itemIds": ["banana"], "cooldownMs": 1000}
  ]
}`

type memTickLog struct{ entries []TickLogEntry }

func (m *memTickLog) WriteTick(e TickLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

type memLedger struct{ events []spawner.Event }

func (m *memLedger) RecordEvents(_ string, _ uint64, evs []spawner.Event) {
	m.events = append(m.events, evs...)
}

func testCatalogs(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	items, err := catalogs.NewItemCatalog([]catalogs.ItemDef{
		{ID: "apple", Kind: "FOOD", Model: "apple.glb"},
		{ID: "banana", Kind: "FOOD", Model: "banana.glb"},
	})
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	structs, err := catalogs.NewStructureCatalog([]catalogs.StructureDef{
		{ID: "wall", Solid: true, Size: [3]float64{40, 4, 0.5}, Offset: [3]float64{0, 2, 0}},
	})
	if err != nil {
		t.Fatalf("structures: %v", err)
	}
	return &catalogs.Catalogs{Items: items, Structures: structs}
}

func newTestWorld(t *testing.T, raw string) *World {
	t.Helper()
	f, err := worldfile.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	w, err := New(WorldConfig{
		ID:       "test",
		Tuning:   tuning.Defaults(),
		Catalogs: testCatalogs(t),
		Seed:     42,
		Start:    t0,
	}, f, "digest-1")
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	return w
}

func at(w *World, tick int) time.Time {
	return t0.Add(time.Duration(tick) * w.cfg.Tuning.TickInterval())
}

func TestTick_SpawnsThenCollectsByProximity(t *testing.T) {
	w := newTestWorld(t, testWorld)
	ledger := &memLedger{}
	tl := &memTickLog{}
	w.SetLedger(ledger)
	w.SetTickLogger(tl)

	w.StepOnce(character.Input{}, at(w, 0))
	near, _ := w.Spawner("near")
	if near.State() != spawner.StateActive {
		t.Fatalf("near state=%s", near.State())
	}
	// spawner at z=-3 is 3.16 away from the eye position (0,2,0)
	if w.Inventory().Total() != 0 {
		t.Fatalf("collected from too far away")
	}

	collectedAt := -1
	for i := 1; i < 60; i++ {
		w.StepOnce(character.Input{Forward: true}, at(w, i))
		if w.Inventory().Count("apple") == 1 {
			collectedAt = i
			break
		}
	}
	if collectedAt < 0 {
		t.Fatalf("never collected; pos=%v", w.Character().Position)
	}
	if near.State() != spawner.StateCollecting {
		t.Fatalf("state=%s want COLLECTING", near.State())
	}
	pos := w.Character().Position
	if d := near.Position().Sub(pos).Len(); d > 2.0 {
		t.Fatalf("collected at distance %v", d)
	}

	var collects int
	for _, ev := range ledger.events {
		if ev.Type == spawner.EventCollect {
			collects++
		}
	}
	if collects != 1 {
		t.Fatalf("ledger collects=%d", collects)
	}
	if len(tl.entries) == 0 || tl.entries[0].Tick != 0 {
		t.Fatalf("tick log=%+v", tl.entries)
	}
}

func TestTick_RespawnAfterCooldown(t *testing.T) {
	w := newTestWorld(t, testWorld)
	near, _ := w.Spawner("near")
	w.StepOnce(character.Input{}, at(w, 0))
	// walk onto the spawner and stay there
	i := 1
	for ; w.Inventory().Count("apple") == 0 && i < 60; i++ {
		w.StepOnce(character.Input{Forward: true}, at(w, i))
	}
	collectTick := i - 1

	// standing still on top of the spawn point: the respawned apple is
	// collected on the first tick it is live
	ticksPerCooldown := int(time.Second / w.cfg.Tuning.TickInterval())
	for j := i; j <= collectTick+ticksPerCooldown+2; j++ {
		w.StepOnce(character.Input{}, at(w, j))
	}
	if got := w.Inventory().Count("apple"); got != 2 {
		t.Fatalf("apples=%d want 2 (state=%s)", got, near.State())
	}
}

func TestTick_FarSpawnerUntouched(t *testing.T) {
	w := newTestWorld(t, testWorld)
	for i := 0; i < 10; i++ {
		w.StepOnce(character.Input{}, at(w, i))
	}
	far, _ := w.Spawner("far")
	if far.State() != spawner.StateActive || far.Live().Collected() {
		t.Fatalf("far state=%s", far.State())
	}
}

func TestTick_WallBlocksMovement(t *testing.T) {
	w := newTestWorld(t, `{"objects":[{"id":"wall","instances":[{"x":0,"y":0,"z":-2}]}],"spawners":[]}`)
	for i := 0; i < 120; i++ {
		w.StepOnce(character.Input{Forward: true}, at(w, i))
	}
	// wall face at z=-1.75, radius 0.5
	if z := w.Character().Position[2]; z < -1.25-1e-9 {
		t.Fatalf("walked through wall: z=%v", z)
	}
	if w.Character().Position[1] != 2.0 {
		t.Fatalf("y=%v", w.Character().Position[1])
	}
}

func TestConfigErrorDoesNotHaltTick(t *testing.T) {
	w := newTestWorld(t, `{"objects":[],"spawners":[
	  {"id":"bad","position":{"x":0,"y":1,"z":0},"itemIds":["durian"]},
	  {"id":"good","position":{"x":9,"y":1,"z":9},"itemIds":["apple"]}
	]}`)
	for i := 0; i < 5; i++ {
		w.StepOnce(character.Input{}, at(w, i))
	}
	bad, _ := w.Spawner("bad")
	good, _ := w.Spawner("good")
	if bad.State() != spawner.StateEmpty || good.State() != spawner.StateActive {
		t.Fatalf("bad=%s good=%s", bad.State(), good.State())
	}
	if w.CurrentTick() != 5 {
		t.Fatalf("tick=%d", w.CurrentTick())
	}
}

func TestReload_KeepsInventoryAndPosition(t *testing.T) {
	w := newTestWorld(t, testWorld)
	w.StepOnce(character.Input{}, at(w, 0))
	w.Inventory().AddItem("banana", 2)
	for i := 1; i < 5; i++ {
		w.StepOnce(character.Input{Right: true}, at(w, i))
	}
	pos := w.Character().Position
	old, _ := w.Spawner("near")

	f, err := worldfile.Parse([]byte(`{"objects":[],"spawners":[{"id":"new","position":{"x":30,"y":1,"z":0},"itemIds":["apple"]}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	w.handleReload(reloadReq{File: f, Digest: "digest-2"})

	if _, ok := w.Spawner("near"); ok {
		t.Fatalf("old spawner survived reload")
	}
	if old.Live() != nil || old.State() != spawner.StateInactive {
		t.Fatalf("old spawner not closed")
	}
	if w.Character().Position != pos || w.Inventory().Count("banana") != 2 {
		t.Fatalf("state lost across reload")
	}
	if w.WorldDigest() != "digest-2" || w.Collision().Len() != 0 {
		t.Fatalf("reload not applied")
	}
	w.StepOnce(character.Input{}, at(w, 5))
	if sp, _ := w.Spawner("new"); sp.State() != spawner.StateActive {
		t.Fatalf("new spawner state=%s", sp.State())
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	w := newTestWorld(t, testWorld)
	w.StepOnce(character.Input{}, at(w, 0))
	w.Inventory().AddItem("apple", 3)
	far, _ := w.Spawner("far")
	far.SetActive(false)
	for i := 1; i < 10; i++ {
		w.StepOnce(character.Input{Right: true}, at(w, i))
	}
	snap := w.ExportSnapshot(9)

	w2 := newTestWorld(t, testWorld)
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if w2.Character().Position != w.Character().Position {
		t.Fatalf("pos=%v want %v", w2.Character().Position, w.Character().Position)
	}
	if w2.Inventory().Count("apple") != 3 || w2.CurrentTick() != 10 {
		t.Fatalf("inventory/tick not restored")
	}
	far2, _ := w2.Spawner("far")
	if far2.State() != spawner.StateInactive {
		t.Fatalf("far state=%s", far2.State())
	}

	snap.Header.WorldID = "other"
	if err := w2.ImportSnapshot(snap); err == nil {
		t.Fatalf("expected world id mismatch")
	}
}

func TestSnapshotRestoresSpawnerSwitchedOn(t *testing.T) {
	raw := strings.Replace(testWorld, `"itemIds": ["banana"], "cooldownMs": 1000}`,
		`"itemIds": ["banana"], "cooldownMs": 1000, "active": false}`, 1)
	w := newTestWorld(t, raw)
	far, _ := w.Spawner("far")
	if far.State() != spawner.StateInactive {
		t.Fatalf("far should start switched off, state=%s", far.State())
	}
	far.SetActive(true)
	w.StepOnce(character.Input{}, at(w, 0))
	if far.State() == spawner.StateInactive {
		t.Fatalf("far did not switch on")
	}
	snap := w.ExportSnapshot(0)

	w2 := newTestWorld(t, raw)
	if err := w2.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	w2.StepOnce(character.Input{}, at(w2, 1))
	far2, _ := w2.Spawner("far")
	if far2.State() == spawner.StateInactive {
		t.Fatalf("resumed far is switched off again")
	}
}

func TestSnapshotCadence(t *testing.T) {
	w := newTestWorld(t, testWorld)
	w.cfg.Tuning.SnapshotEveryTicks = 3
	ch := make(chan snapshot.SnapshotV1, 4)
	w.SetSnapshotSink(ch)
	for i := 0; i < 7; i++ {
		w.StepOnce(character.Input{}, at(w, i))
	}
	if len(ch) != 2 {
		t.Fatalf("snapshots=%d want 2 (ticks 3 and 6)", len(ch))
	}
	if s := <-ch; s.Header.Tick != 3 {
		t.Fatalf("first snapshot tick=%d", s.Header.Tick)
	}
}

func TestPublish_StateMessage(t *testing.T) {
	w := newTestWorld(t, testWorld)
	out := make(chan []byte, 1)
	w.subs[out] = struct{}{}
	w.StepOnce(character.Input{}, at(w, 0))
	w.StepOnce(character.Input{}, at(w, 1))

	var msg protocol.StateMsg
	if err := json.Unmarshal(<-out, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != protocol.TypeState || msg.Tick != 1 || len(msg.Spawners) != 2 {
		t.Fatalf("msg=%+v", msg)
	}
	if msg.Inventory == nil {
		t.Fatalf("inventory must encode as an array")
	}
	if st := w.Status(); st.Tick != 1 || len(st.Spawners) != 2 {
		t.Fatalf("status=%+v", st)
	}
}

func TestRun_ServesRequests(t *testing.T) {
	f, _ := worldfile.Parse([]byte(testWorld))
	tune := tuning.Defaults()
	tune.TickRateHz = 200
	w, err := New(WorldConfig{ID: "run", Tuning: tune, Catalogs: testCatalogs(t), Seed: 1}, f, "d1")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	out := make(chan []byte, 4)
	w.Subscribe(out)
	select {
	case <-out:
	case <-ctx.Done():
		t.Fatalf("no STATE received")
	}

	if err := w.SetSpawnerActive(ctx, "far", false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if err := w.SetSpawnerActive(ctx, "nope", false); !errors.Is(err, ErrUnknownSpawner) {
		t.Fatalf("err=%v", err)
	}
	ran := make(chan struct{})
	if !w.Post(func() { close(ran) }) {
		t.Fatalf("post rejected")
	}
	<-ran

	var farState spawner.State
	for _, s := range w.Status().Spawners {
		if s.ID == "far" {
			farState = s.State
		}
	}
	if farState != spawner.StateInactive {
		t.Fatalf("far=%s", farState)
	}

	w.Stop()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	w.Close()
}

func TestTickLog_OnlyChangesAndEvents(t *testing.T) {
	w := newTestWorld(t, `{"objects":[],"spawners":[]}`)
	tl := &memTickLog{}
	w.SetTickLogger(tl)
	inputs := []character.Input{{}, {}, {Forward: true}, {Forward: true}, {Forward: true}, {}}
	for i, in := range inputs {
		w.StepOnce(in, at(w, i))
	}
	var ticks []uint64
	for _, e := range tl.entries {
		ticks = append(ticks, e.Tick)
	}
	if len(ticks) != 3 || ticks[0] != 0 || ticks[1] != 2 || ticks[2] != 5 {
		t.Fatalf("logged ticks=%v want [0 2 5]", ticks)
	}
	snap := w.ExportSnapshot(5)
	if snap.Character.Input != (snapshot.InputV1{}) {
		t.Fatalf("snapshot input=%+v", snap.Character.Input)
	}
}
