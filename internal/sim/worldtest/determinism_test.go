package worldtest

import (
	"testing"

	"foodrun.game/internal/sim/character"
)

func script(tick int) character.Input {
	switch {
	case tick < 40:
		return character.Input{Forward: true}
	case tick < 80:
		return character.Input{Left: true, Yaw: 0.3}
	case tick < 120:
		return character.Input{Backward: true, Jump: tick%20 == 0}
	default:
		return character.Input{Forward: tick%3 == 0}
	}
}

func TestDeterminism_SameSeedSameInputs(t *testing.T) {
	fx := LoadFixture(t, configsDir)
	h1 := NewHarness(t, fx, 42)
	h2 := NewHarness(t, fx, 42)

	for i := 0; i < 700; i++ {
		h1.Step(script(i))
		h2.Step(script(i))
		if d1, d2 := h1.W.DebugStateDigest(), h2.W.DebugStateDigest(); d1 != d2 {
			t.Fatalf("tick %d: digest mismatch %s vs %s", i, d1, d2)
		}
	}
	if h1.LastState().Character != h2.LastState().Character {
		t.Fatalf("character diverged: %+v vs %+v", h1.LastState().Character, h2.LastState().Character)
	}
}
