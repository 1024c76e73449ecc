package character

import (
	"math"
	"testing"

	"foodrun.game/internal/sim/collision"
	"foodrun.game/internal/sim/geom"
	"foodrun.game/internal/sim/tuning"
)

func newController(spawn geom.Vec3) *Controller {
	return New(tuning.Defaults().Character, spawn)
}

func TestStep_ClampsToFloor(t *testing.T) {
	c := newController(geom.Vec3{0, 1.5, 0})
	c.Step(Input{}, nil)
	s := c.State()
	if s.Position[1] != 2.0 || s.Velocity[1] != 0 || !s.Grounded {
		t.Fatalf("state=%+v", s)
	}
}

func TestStep_StaysOnFloorOverManyTicks(t *testing.T) {
	c := newController(geom.Vec3{0, 2, 0})
	for i := 0; i < 1000; i++ {
		c.Step(Input{}, nil)
		if y := c.State().Position[1]; y < 2.0 {
			t.Fatalf("tick %d: y=%v below floor", i, y)
		}
	}
	if !c.State().Grounded || !c.State().JumpReady {
		t.Fatalf("should be grounded")
	}
}

func TestStep_FallsThenLands(t *testing.T) {
	c := newController(geom.Vec3{0, 5, 0})
	c.Step(Input{}, nil)
	s := c.State()
	if s.Grounded || math.Abs(s.Velocity[1]+0.01) > 1e-12 || math.Abs(s.Position[1]-4.99) > 1e-12 {
		t.Fatalf("after first tick: %+v", s)
	}
	for i := 0; i < 200 && !c.State().Grounded; i++ {
		c.Step(Input{}, nil)
	}
	if c.State().Position[1] != 2.0 {
		t.Fatalf("did not land on floor: %+v", c.State())
	}
}

func TestStep_JumpOnlyWhenGrounded(t *testing.T) {
	c := newController(geom.Vec3{0, 2, 0})
	c.Step(Input{}, nil) // settle
	c.Step(Input{Jump: true}, nil)
	s := c.State()
	if s.Grounded || s.Velocity[1] != 0.25 || math.Abs(s.Position[1]-2.25) > 1e-12 {
		t.Fatalf("after jump: %+v", s)
	}
	// holding jump in the air does not add impulse
	c.Step(Input{Jump: true}, nil)
	if v := c.State().Velocity[1]; math.Abs(v-0.24) > 1e-12 {
		t.Fatalf("vy=%v want 0.24", v)
	}
}

type blockAll struct{}

func (blockAll) QueryBlocking(geom.Vec3, float64) bool { return true }
func (blockAll) QueryGroundSupport(geom.Vec3) bool     { return false }

func TestStep_BlockedFallingGrounds(t *testing.T) {
	c := newController(geom.Vec3{0, 5, 0})
	c.Step(Input{Forward: true}, blockAll{})
	s := c.State()
	if !s.Grounded || s.Velocity[1] != 0 || s.Position != (geom.Vec3{0, 5, 0}) {
		t.Fatalf("state=%+v", s)
	}
}

func TestStep_BlockedRisingStopsWithoutGrounding(t *testing.T) {
	c := newController(geom.Vec3{0, 5, 0})
	c.state.Velocity[1] = 0.5
	c.Step(Input{}, blockAll{})
	s := c.State()
	if s.Grounded || s.Velocity[1] != 0 {
		t.Fatalf("state=%+v", s)
	}
}

func TestStep_MovesAlongYaw(t *testing.T) {
	c := newController(geom.Vec3{0, 2, 0})
	c.Step(Input{Forward: true}, nil)
	if p := c.Position(); math.Abs(p[2]+0.15) > 1e-12 || math.Abs(p[0]) > 1e-12 {
		t.Fatalf("forward at yaw 0: %v", p)
	}
	c = newController(geom.Vec3{0, 2, 0})
	c.Step(Input{Right: true, Yaw: math.Pi / 2}, nil)
	// yaw +90 faces -X; right is -Z
	if p := c.Position(); math.Abs(p[2]+0.15) > 1e-12 || math.Abs(p[0]) > 1e-12 {
		t.Fatalf("right at yaw 90: %v", p)
	}
	c = newController(geom.Vec3{0, 2, 0})
	c.Step(Input{Forward: true, Backward: true}, nil)
	if p := c.Position(); p[0] != 0 || p[2] != 0 {
		t.Fatalf("opposing keys should cancel: %v", p)
	}
}

func TestStep_WallRevertsOnlyBlockedAxis(t *testing.T) {
	// wall face at z = -0.6, spanning x
	wall := collision.Volume{ID: "wall", Box: geom.AABB{Min: geom.Vec3{-10, 0, -1}, Max: geom.Vec3{10, 4, -0.6}}}
	w := collision.NewWorld([]collision.Volume{wall}, 2.1)
	c := newController(geom.Vec3{0, 2, 0})
	c.Step(Input{Forward: true, Right: true}, w)
	p := c.Position()
	if p[2] != 0 {
		t.Fatalf("forward into wall should revert: z=%v", p[2])
	}
	if math.Abs(p[0]-0.15) > 1e-12 {
		t.Fatalf("strafe should still apply: x=%v", p[0])
	}
}

func TestStep_Disabled(t *testing.T) {
	c := newController(geom.Vec3{0, 5, 0})
	c.SetEnabled(false)
	c.Step(Input{Forward: true}, nil)
	if c.Position() != (geom.Vec3{0, 5, 0}) {
		t.Fatalf("disabled controller moved")
	}
}
