// Package scene is the narrow boundary between the simulation and whatever
// presents it. The simulation attaches and detaches nodes; it never looks at
// how they are drawn.
package scene

import (
	"fmt"

	"foodrun.game/internal/sim/geom"
)

type Node struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	ModelRef string    `json:"model"`
	Position geom.Vec3 `json:"pos"`
	Scale    float64   `json:"scale"`
	Spin     float64   `json:"spin,omitempty"`
}

// Host receives attach/detach requests. Calls happen on the simulation
// goroutine.
type Host interface {
	Add(n Node)
	Remove(n Node)
}

// Loader resolves a model reference asynchronously. done must be invoked on
// the simulation goroutine (implementations post it back), exactly once.
type Loader interface {
	Load(ref string, done func(error))
}

// TransientResourceError is a visual that could not be loaded. Gameplay
// proceeds without it.
type TransientResourceError struct {
	Ref string
	Err error
}

func (e *TransientResourceError) Error() string {
	return fmt.Sprintf("asset %q: %v", e.Ref, e.Err)
}

func (e *TransientResourceError) Unwrap() error { return e.Err }

// NopHost discards everything.
type NopHost struct{}

func (NopHost) Add(Node)    {}
func (NopHost) Remove(Node) {}

// ImmediateLoader completes every load synchronously and successfully.
type ImmediateLoader struct{}

func (ImmediateLoader) Load(_ string, done func(error)) { done(nil) }
