package spawner

import (
	"math"

	"github.com/google/uuid"

	"foodrun.game/internal/sim/geom"
	"foodrun.game/internal/sim/scene"
)

// Collectible is one spawned item. Collect and release are idempotent.
type Collectible struct {
	ID       string
	ItemID   string
	Quantity int
	Position geom.Vec3

	host      scene.Host
	node      *scene.Node
	collected bool
	despawned bool
	spin      float64
}

func newCollectible(drop Drop, pos geom.Vec3) *Collectible {
	return &Collectible{
		ID:       uuid.NewString(),
		ItemID:   drop.ItemID,
		Quantity: drop.Quantity,
		Position: pos,
	}
}

// attach shows the entity through host.
func (c *Collectible) attach(host scene.Host, drop Drop) {
	if host == nil || c.despawned {
		return
	}
	n := scene.Node{
		ID:       c.ID,
		Kind:     "collectible",
		ModelRef: drop.Model,
		Position: c.Position,
		Scale:    drop.Scale,
	}
	c.host = host
	c.node = &n
	host.Add(n)
}

func (c *Collectible) Collected() bool { return c.collected }

func (c *Collectible) Despawned() bool { return c.despawned }

func (c *Collectible) HasVisual() bool { return c.node != nil }

func (c *Collectible) Spin() float64 { return c.spin }

// Collect reports true only for the first call.
func (c *Collectible) Collect() bool {
	if c.collected || c.despawned {
		return false
	}
	c.collected = true
	return true
}

// Cleanup releases the visual after a collection.
func (c *Collectible) Cleanup() error {
	return c.release("cleanup")
}

// Despawn releases the entity without a collection (teardown).
func (c *Collectible) Despawn() error {
	return c.release("despawn")
}

func (c *Collectible) release(op string) error {
	if c.despawned {
		return &StateConsistencyWarning{EntityID: c.ID, Op: op, State: "despawned"}
	}
	c.despawned = true
	if c.node != nil && c.host != nil {
		c.host.Remove(*c.node)
	}
	c.node = nil
	return nil
}

// advance turns the idle spin by rate radians per second.
func (c *Collectible) advance(seconds, rate float64) {
	if c.collected || c.despawned || seconds <= 0 {
		return
	}
	c.spin = math.Mod(c.spin+seconds*rate, 2*math.Pi)
}
