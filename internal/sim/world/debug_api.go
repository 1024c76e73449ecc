package world

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"foodrun.game/internal/sim/geom"
)

// ---- Debug/Test Helpers ----
//
// These helpers let black-box tests in sibling packages (e.g. internal/sim/worldtest)
// set up preconditions without reaching into world internals.
//
// They are NOT safe to call concurrently with Run(). Use them only from the
// goroutine driving StepOnce().

// DebugSubscribe registers out for STATE messages without a running loop.
func (w *World) DebugSubscribe(out chan []byte) bool {
	if w == nil || out == nil {
		return false
	}
	w.subs[out] = struct{}{}
	return true
}

func (w *World) DebugSetPosition(pos geom.Vec3) bool {
	if w == nil {
		return false
	}
	st := w.player.State()
	w.player.Restore(pos, geom.Vec3{}, st.Yaw)
	return true
}

func (w *World) DebugAddInventory(item string, delta int) bool {
	if w == nil || item == "" || delta <= 0 {
		return false
	}
	w.inventory.AddItem(item, delta)
	return true
}

// DebugStateDigest hashes the deterministic part of the world state:
// character, inventory and spawner states with their rolled drops.
// Entity ids are random and left out.
func (w *World) DebugStateDigest() string {
	if w == nil {
		return ""
	}
	type spawnerDigest struct {
		ID       string
		State    string
		ItemID   string
		Quantity int
	}
	d := struct {
		Tick      uint64
		Pos       geom.Vec3
		Vel       geom.Vec3
		Grounded  bool
		Inventory map[string]int
		Spawners  []spawnerDigest
	}{
		Tick:      w.tick.Load(),
		Pos:       w.player.State().Position,
		Vel:       w.player.State().Velocity,
		Grounded:  w.player.State().Grounded,
		Inventory: w.inventory.Snapshot(),
	}
	for _, sp := range w.spawners {
		info := sp.Info()
		sd := spawnerDigest{ID: info.ID, State: string(info.State)}
		if info.Entity != nil {
			sd.ItemID = info.Entity.ItemID
			sd.Quantity = info.Entity.Quantity
		}
		d.Spawners = append(d.Spawners, sd)
	}
	b, _ := json.Marshal(d)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
