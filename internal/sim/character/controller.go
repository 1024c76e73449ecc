// Package character integrates the player character: gravity, jumping and
// axis-by-axis collision response against static geometry.
package character

import (
	"math"

	"foodrun.game/internal/sim/geom"
	"foodrun.game/internal/sim/tuning"
)

// Blocker is the collision surface the controller consults before committing
// any movement. *collision.World implements it.
type Blocker interface {
	QueryBlocking(center geom.Vec3, radius float64) bool
	QueryGroundSupport(origin geom.Vec3) bool
}

// Input is one tick of player intent. Yaw is the facing angle in radians
// around +Y; yaw 0 faces -Z.
type Input struct {
	Forward  bool    `json:"forward"`
	Backward bool    `json:"backward"`
	Left     bool    `json:"left"`
	Right    bool    `json:"right"`
	Jump     bool    `json:"jump"`
	Yaw      float64 `json:"yaw"`
}

type State struct {
	Position  geom.Vec3
	Velocity  geom.Vec3
	Yaw       float64
	Grounded  bool
	JumpReady bool
	Speed     float64
	Radius    float64
}

type Controller struct {
	cfg     tuning.Character
	state   State
	enabled bool
}

func New(cfg tuning.Character, spawn geom.Vec3) *Controller {
	return &Controller{
		cfg: cfg,
		state: State{
			Position: spawn,
			Speed:    cfg.MoveSpeed,
			Radius:   cfg.CollisionRadius,
		},
		enabled: true,
	}
}

func (c *Controller) State() State { return c.state }

func (c *Controller) Position() geom.Vec3 { return c.state.Position }

func (c *Controller) Enabled() bool { return c.enabled }

// SetEnabled gates Step; a disabled controller keeps its state untouched.
func (c *Controller) SetEnabled(v bool) { c.enabled = v }

// Restore replaces position, velocity and facing (snapshot resume, reload).
func (c *Controller) Restore(pos, vel geom.Vec3, yaw float64) {
	c.state.Position = pos
	c.state.Velocity = vel
	c.state.Yaw = yaw
	c.state.Grounded = false
	c.state.JumpReady = false
}

// SetGrounded restores the support flag recorded in a snapshot.
func (c *Controller) SetGrounded(g bool) {
	c.state.Grounded = g
	c.state.JumpReady = g
}

// Step advances one tick. A nil Blocker never blocks.
func (c *Controller) Step(in Input, world Blocker) {
	if !c.enabled {
		return
	}
	if world == nil {
		world = openSpace{}
	}
	s := &c.state
	s.Yaw = in.Yaw

	s.Velocity[1] -= c.cfg.Gravity

	if in.Jump && s.Grounded {
		s.Velocity[1] = c.cfg.JumpImpulse
		s.Grounded = false
	}

	candidate := s.Position.Add(geom.Vec3{0, s.Velocity[1], 0})
	if world.QueryBlocking(candidate, s.Radius) {
		if s.Velocity[1] < 0 {
			s.Grounded = true
		}
		s.Velocity[1] = 0
	} else {
		s.Position = candidate
	}

	if s.Position[1] < c.cfg.FloorHeight || world.QueryGroundSupport(s.Position) {
		if s.Position[1] < c.cfg.FloorHeight {
			s.Position[1] = c.cfg.FloorHeight
		}
		s.Velocity[1] = 0
		s.Grounded = true
	}

	forward, right := basis(s.Yaw)
	axis := func(dir geom.Vec3, amount float64) {
		if amount == 0 {
			return
		}
		next := s.Position.Add(dir.Mul(amount))
		if !world.QueryBlocking(next, s.Radius) {
			s.Position = next
		}
	}
	axis(forward, s.Speed*boolAxis(in.Forward, in.Backward))
	axis(right, s.Speed*boolAxis(in.Right, in.Left))

	s.JumpReady = s.Grounded
}

// basis returns the horizontal forward and right unit vectors for yaw.
func basis(yaw float64) (forward, right geom.Vec3) {
	sin, cos := math.Sincos(yaw)
	return geom.Vec3{-sin, 0, -cos}, geom.Vec3{cos, 0, -sin}
}

func boolAxis(pos, neg bool) float64 {
	switch {
	case pos && !neg:
		return 1
	case neg && !pos:
		return -1
	}
	return 0
}

type openSpace struct{}

func (openSpace) QueryBlocking(geom.Vec3, float64) bool { return false }
func (openSpace) QueryGroundSupport(geom.Vec3) bool     { return false }
