package main

import (
	"math"
	"testing"

	"foodrun.game/internal/protocol"
)

func TestSteer_FacesNearestItem(t *testing.T) {
	st := &protocol.StateMsg{
		Tick:      5,
		Character: protocol.CharacterState{Pos: [3]float64{0, 1.6, 0}, Yaw: 2},
		Spawners: []protocol.SpawnerState{
			{ID: "far", Entity: &protocol.EntityState{Pos: [3]float64{0, 1, -20}}},
			{ID: "gone", Entity: &protocol.EntityState{Pos: [3]float64{1, 1, 0}, Collected: true}},
			{ID: "near", Entity: &protocol.EntityState{Pos: [3]float64{3, 1, 0}}},
		},
	}
	in := steer(st, 120)
	if !in.Forward || in.Jump {
		t.Fatalf("input=%+v", in)
	}
	// Facing +X: forward is (-sin, -cos) = (1, 0).
	if math.Abs(-math.Sin(in.Yaw)-1) > 1e-9 || math.Abs(math.Cos(in.Yaw)) > 1e-9 {
		t.Fatalf("yaw=%v", in.Yaw)
	}
}

func TestSteer_KeepsHeadingWithoutItemsAndJumps(t *testing.T) {
	st := &protocol.StateMsg{Tick: 240, Character: protocol.CharacterState{Yaw: 0.5}}
	in := steer(st, 120)
	if in.Yaw != 0.5 || !in.Jump {
		t.Fatalf("input=%+v", in)
	}
	if steer(st, 0).Jump {
		t.Fatalf("jump_every=0 jumped")
	}
}
