package world

import (
	"encoding/json"
	"time"

	"foodrun.game/internal/protocol"
	"foodrun.game/internal/sim/character"
	"foodrun.game/internal/sim/inventory"
	"foodrun.game/internal/sim/spawner"
)

// Status is an immutable summary published once per tick for readers on
// other goroutines (HTTP handlers, handshakes).
type Status struct {
	WorldID     string            `json:"world_id"`
	Tick        uint64            `json:"tick"`
	TimeUnixMs  int64             `json:"time_unix_ms"`
	WorldDigest string            `json:"world_digest"`
	Character   character.State   `json:"character"`
	Spawners    []spawner.Info    `json:"spawners"`
	Inventory   []inventory.Stack `json:"inventory"`
}

func (w *World) Status() Status {
	if s := w.status.Load(); s != nil {
		return *s
	}
	return Status{WorldID: w.cfg.ID}
}

func (w *World) publishStatus(tick uint64, now time.Time) {
	infos := make([]spawner.Info, 0, len(w.spawners))
	for _, sp := range w.spawners {
		infos = append(infos, sp.Info())
	}
	w.status.Store(&Status{
		WorldID:     w.cfg.ID,
		Tick:        tick,
		TimeUnixMs:  now.UnixMilli(),
		WorldDigest: w.worldDigest,
		Character:   w.player.State(),
		Spawners:    infos,
		Inventory:   w.inventory.Stacks(),
	})
}

func (w *World) publish(tick uint64, now time.Time, events []spawner.Event) {
	w.publishStatus(tick, now)
	if len(w.subs) == 0 {
		return
	}
	b, err := json.Marshal(w.stateMsg(tick, now, events))
	if err != nil {
		w.log.Printf("world=%s state marshal: %v", w.cfg.ID, err)
		return
	}
	for ch := range w.subs {
		sendLatest(ch, b)
	}
}

func (w *World) stateMsg(tick uint64, now time.Time, events []spawner.Event) protocol.StateMsg {
	cs := w.player.State()
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		TimeUnixMs:      now.UnixMilli(),
		Character: protocol.CharacterState{
			Pos:      cs.Position,
			Vel:      cs.Velocity,
			Yaw:      cs.Yaw,
			Grounded: cs.Grounded,
		},
		Spawners:  make([]protocol.SpawnerState, 0, len(w.spawners)),
		Inventory: make([]protocol.ItemStack, 0),
	}
	for _, sp := range w.spawners {
		info := sp.Info()
		ss := protocol.SpawnerState{ID: info.ID, Kind: info.Kind, State: string(info.State), Pos: info.Position}
		if e := info.Entity; e != nil {
			ss.Entity = &protocol.EntityState{
				ID:        e.ID,
				ItemID:    e.ItemID,
				Quantity:  e.Quantity,
				Pos:       e.Position,
				Collected: e.Collected,
			}
		}
		msg.Spawners = append(msg.Spawners, ss)
	}
	for _, st := range w.inventory.Stacks() {
		msg.Inventory = append(msg.Inventory, protocol.ItemStack{Item: st.Item, Count: st.Count})
	}
	for _, ev := range events {
		msg.Events = append(msg.Events, protocol.Event{
			Type:      string(ev.Type),
			SpawnerID: ev.SpawnerID,
			EntityID:  ev.EntityID,
			ItemID:    ev.ItemID,
			Quantity:  ev.Quantity,
			State:     string(ev.State),
			Message:   ev.Message,
		})
	}
	return msg
}
