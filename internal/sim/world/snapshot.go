package world

import (
	"context"
	"errors"
	"fmt"

	"foodrun.game/internal/persistence/snapshot"
	"foodrun.game/internal/sim/geom"
	"foodrun.game/internal/sim/spawner"
)

func (w *World) ExportSnapshot(tick uint64) snapshot.SnapshotV1 {
	cs := w.player.State()
	snap := snapshot.SnapshotV1{
		Header:      snapshot.Header{Version: 1, WorldID: w.cfg.ID, Tick: tick},
		TickRate:    w.cfg.Tuning.TickRateHz,
		ClockUnixMs: w.clock.Now().UnixMilli(),
		WorldDigest: w.worldDigest,
		Character: snapshot.CharacterV1{
			Pos:      cs.Position,
			Vel:      cs.Velocity,
			Yaw:      cs.Yaw,
			Grounded: cs.Grounded,
			Input: snapshot.InputV1{
				Forward:  w.input.Forward,
				Backward: w.input.Backward,
				Left:     w.input.Left,
				Right:    w.input.Right,
				Jump:     w.input.Jump,
				Yaw:      w.input.Yaw,
			},
		},
		Inventory: w.inventory.Snapshot(),
	}
	for _, sp := range w.spawners {
		info := sp.Info()
		sv := snapshot.SpawnerV1{ID: info.ID, State: string(info.State)}
		if !info.LastSpawn.IsZero() {
			sv.LastSpawnUnixMs = info.LastSpawn.UnixMilli()
		}
		if e := info.Entity; e != nil && !e.Collected {
			sv.EntityItem = e.ItemID
			sv.EntityQuantity = e.Quantity
		}
		snap.Spawners = append(snap.Spawners, sv)
	}
	return snap
}

// ImportSnapshot restores the character, the inventory and whether each
// spawner was switched on or off. Items respawn fresh on the next update.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != 1 {
		return fmt.Errorf("unsupported snapshot version: %d", snap.Header.Version)
	}
	if snap.Header.WorldID != "" && snap.Header.WorldID != w.cfg.ID {
		return fmt.Errorf("snapshot world id mismatch: world=%s snap=%s", w.cfg.ID, snap.Header.WorldID)
	}
	w.player.Restore(geom.Vec3(snap.Character.Pos), geom.Vec3(snap.Character.Vel), snap.Character.Yaw)
	w.player.SetGrounded(snap.Character.Grounded)
	w.inventory.Restore(snap.Inventory)
	for _, sv := range snap.Spawners {
		sp, ok := w.byID[sv.ID]
		if !ok {
			continue
		}
		sp.SetActive(spawner.State(sv.State) != spawner.StateInactive)
	}
	w.tick.Store(snap.Header.Tick + 1)
	if snap.WorldDigest != "" && snap.WorldDigest != w.worldDigest {
		w.log.Printf("world=%s snapshot taken against a different world file; spawner states may not line up", w.cfg.ID)
	}
	w.publishStatus(w.tick.Load(), w.clock.Now())
	return nil
}

func (w *World) maybeSnapshot(tick uint64) {
	every := w.cfg.Tuning.SnapshotEveryTicks
	if w.snapshotSink == nil || every <= 0 || tick == 0 || tick%uint64(every) != 0 {
		return
	}
	select {
	case w.snapshotSink <- w.ExportSnapshot(tick):
	default:
		w.log.Printf("world=%s snapshot sink backpressure at tick %d", w.cfg.ID, tick)
	}
}

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Tick uint64
	Err  string
}

// RequestSnapshot asks the world loop goroutine to enqueue a snapshot.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (w *World) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	if w == nil || w.admin == nil {
		return 0, errors.New("admin snapshot not available")
	}
	resp := make(chan adminSnapshotResp, 1)
	select {
	case w.admin <- adminSnapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *World) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if len(reqs) == 0 {
		return
	}
	cur := w.tick.Load()
	snapTick := uint64(0)
	if cur > 0 {
		snapTick = cur - 1
	}

	errStr := ""
	if w.snapshotSink == nil {
		errStr = "snapshot sink not configured"
	} else {
		select {
		case w.snapshotSink <- w.ExportSnapshot(snapTick):
		default:
			errStr = "snapshot sink backpressure"
		}
	}

	resp := adminSnapshotResp{Tick: snapTick, Err: errStr}
	for _, r := range reqs {
		if r.Resp == nil {
			continue
		}
		select {
		case r.Resp <- resp:
		default:
			// Client timed out; don't block the sim loop.
		}
	}
}
