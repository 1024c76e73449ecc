package spawner

import (
	"errors"
	"io"
	"log"
	"math/rand"
	"time"

	"foodrun.game/internal/sim/geom"
	"foodrun.game/internal/sim/scene"
	"foodrun.game/internal/sim/timers"
	"foodrun.game/internal/sim/worldfile"
)

type State string

const (
	StateInactive   State = "INACTIVE"
	StateEmpty      State = "EMPTY"
	StateActive     State = "ACTIVE"
	StateCollecting State = "COLLECTING"
	StateCooldown   State = "COOLDOWN"
)

// Collector receives the effect of a collection.
type Collector interface {
	AddItem(itemID string, quantity int)
}

// Scheduler is the simulation clock; *timers.Queue implements it.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) timers.Handle
}

// Spawner is the capability set every spawner kind exposes to the world.
type Spawner interface {
	ID() string
	Position() geom.Vec3
	State() State
	Live() *Collectible
	Spawn()
	Update(now time.Time)
	Collect(c Collector) bool
	SetActive(active bool)
	Info() Info
	Close()
}

type EventType string

const (
	EventSpawn       EventType = "SPAWN"
	EventCollect     EventType = "COLLECT"
	EventDespawn     EventType = "DESPAWN"
	EventConfigError EventType = "CONFIG_ERROR"
	EventState       EventType = "STATE"
)

type Event struct {
	Type      EventType `json:"type"`
	SpawnerID string    `json:"spawner_id"`
	EntityID  string    `json:"entity_id,omitempty"`
	ItemID    string    `json:"item_id,omitempty"`
	Quantity  int       `json:"quantity,omitempty"`
	State     State     `json:"state,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

type Config struct {
	Spawner         worldfile.Spawner
	Kinds           *Kinds
	DefaultCooldown time.Duration
	CleanupDelay    time.Duration
	SpinRate        float64 // radians per second

	Clock  Scheduler
	Host   scene.Host
	Loader scene.Loader
	Rand   *rand.Rand
	Logger *log.Logger

	OnEvent func(Event)
}

// Engine is the state machine behind one spawn point. It holds at most one
// live Collectible and is driven only from the simulation goroutine.
type Engine struct {
	cfg      Config
	cooldown time.Duration
	log      *log.Logger

	state     State
	entity    *Collectible
	lastSpawn time.Time

	spawning       bool
	respawnPending bool
	timers         []timers.Handle
	epoch          uint64
	closed         bool

	lastUpdate    time.Time
	lastConfigErr string
}

func NewEngine(cfg Config) *Engine {
	if cfg.Host == nil {
		cfg.Host = scene.NopHost{}
	}
	if cfg.Loader == nil {
		cfg.Loader = scene.ImmediateLoader{}
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Clock == nil {
		cfg.Clock = timers.NewQueue(time.Now())
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	cooldown := cfg.DefaultCooldown
	if cfg.Spawner.CooldownMs != nil {
		cooldown = time.Duration(*cfg.Spawner.CooldownMs) * time.Millisecond
	}
	e := &Engine{cfg: cfg, cooldown: cooldown, log: logger, state: StateEmpty}
	if !cfg.Spawner.InitiallyActive() {
		e.state = StateInactive
	}
	return e
}

func (e *Engine) ID() string { return e.cfg.Spawner.ID }

func (e *Engine) Position() geom.Vec3 { return e.cfg.Spawner.Position.Vec3() }

func (e *Engine) State() State { return e.state }

func (e *Engine) LastSpawn() time.Time { return e.lastSpawn }

// Live returns the entity currently owned by the spawner, collected or not.
func (e *Engine) Live() *Collectible { return e.entity }

// Spawn creates a new collectible unless one is live, one is being created,
// or the spawner is inactive.
func (e *Engine) Spawn() {
	if e.closed || e.spawning {
		return
	}
	switch e.state {
	case StateInactive, StateActive, StateCollecting:
		return
	}
	if e.entity != nil {
		e.release()
	}

	kind, err := e.cfg.Kinds.Lookup(e.cfg.Spawner.Kind())
	if err != nil {
		e.configError(err)
		return
	}
	drop, err := kind.Roll(e.cfg.Spawner, e.cfg.Rand)
	if err != nil {
		e.configError(err)
		return
	}

	e.spawning = true
	epoch := e.epoch
	e.cfg.Loader.Load(drop.Model, func(loadErr error) {
		if e.closed || e.epoch != epoch {
			return
		}
		e.finishSpawn(drop, loadErr)
	})
}

func (e *Engine) finishSpawn(drop Drop, loadErr error) {
	e.spawning = false
	if e.state == StateInactive {
		return
	}
	ent := newCollectible(drop, e.Position())
	if loadErr != nil {
		var tre *scene.TransientResourceError
		if !errors.As(loadErr, &tre) {
			loadErr = &scene.TransientResourceError{Ref: drop.Model, Err: loadErr}
		}
		e.log.Printf("spawner=%s entity=%s spawned without visual: %v", e.ID(), ent.ID, loadErr)
	} else {
		ent.attach(e.cfg.Host, drop)
	}

	e.cancelTimers()
	e.entity = ent
	e.lastSpawn = e.cfg.Clock.Now()
	e.lastConfigErr = ""
	e.setState(StateActive)
	e.emit(Event{Type: EventSpawn, EntityID: ent.ID, ItemID: ent.ItemID, Quantity: ent.Quantity})
}

// Collect delivers the live entity to c. Only the first call for an entity
// has an effect.
func (e *Engine) Collect(c Collector) bool {
	if e.closed || e.state != StateActive || e.entity == nil {
		return false
	}
	ent := e.entity
	if !ent.Collect() {
		e.log.Printf("spawner=%s %v", e.ID(), &StateConsistencyWarning{EntityID: ent.ID, Op: "collect", State: "collected"})
		return false
	}
	if c != nil {
		c.AddItem(ent.ItemID, ent.Quantity)
	}
	e.setState(StateCollecting)
	e.emit(Event{Type: EventCollect, EntityID: ent.ID, ItemID: ent.ItemID, Quantity: ent.Quantity})

	e.schedule(e.cfg.CleanupDelay, e.cleanup)
	e.respawnPending = true
	e.schedule(e.cooldown, func() {
		e.respawnPending = false
		if e.state == StateCollecting {
			e.cleanup()
		}
		if e.state == StateCooldown {
			e.setState(StateEmpty)
		}
		e.Spawn()
	})
	return true
}

// cleanup runs once the collection effect has played out.
func (e *Engine) cleanup() {
	if e.entity != nil && e.entity.Collected() {
		e.release()
	}
	if e.state != StateCollecting {
		return
	}
	if e.respawnPending {
		e.setState(StateCooldown)
	} else {
		e.setState(StateEmpty)
	}
}

// Update is the per-tick hook: idle animation for a live entity, otherwise a
// guarded respawn once the cooldown has elapsed since the last spawn.
func (e *Engine) Update(now time.Time) {
	if e.closed || e.state == StateInactive {
		e.lastUpdate = now
		return
	}
	if e.entity != nil {
		if !e.lastUpdate.IsZero() {
			e.entity.advance(now.Sub(e.lastUpdate).Seconds(), e.cfg.SpinRate)
		}
		e.lastUpdate = now
		return
	}
	e.lastUpdate = now
	if e.state != StateEmpty || e.spawning || e.respawnPending {
		return
	}
	if e.lastSpawn.IsZero() || now.Sub(e.lastSpawn) > e.cooldown {
		e.Spawn()
	}
}

// SetActive(false) cancels every pending timer and suppresses the spawner;
// SetActive(true) resumes it, spawning at once when nothing is live.
func (e *Engine) SetActive(active bool) {
	if e.closed {
		return
	}
	if !active {
		if e.state == StateInactive {
			return
		}
		e.cancelTimers()
		e.spawning = false
		if e.entity != nil && e.entity.Collected() {
			e.release()
		}
		e.setState(StateInactive)
		return
	}
	if e.state != StateInactive {
		return
	}
	if e.entity != nil && !e.entity.Collected() {
		e.setState(StateActive)
		return
	}
	e.setState(StateEmpty)
	e.Spawn()
}

// Close tears the spawner down; it cannot be reused.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.cancelTimers()
	e.spawning = false
	if e.entity != nil {
		e.release()
	}
	e.state = StateInactive
	e.closed = true
}

func (e *Engine) release() {
	ent := e.entity
	e.entity = nil
	var err error
	if ent.Collected() {
		err = ent.Cleanup()
	} else {
		err = ent.Despawn()
	}
	if err != nil {
		e.log.Printf("spawner=%s %v", e.ID(), err)
		return
	}
	e.emit(Event{Type: EventDespawn, EntityID: ent.ID, ItemID: ent.ItemID})
}

func (e *Engine) configError(err error) {
	cerr := &ConfigurationError{SpawnerID: e.ID(), Err: err}
	if e.state != StateEmpty {
		e.setState(StateEmpty)
	}
	msg := cerr.Error()
	if msg == e.lastConfigErr {
		return
	}
	e.lastConfigErr = msg
	e.log.Printf("spawner=%s %v", e.ID(), cerr)
	e.emit(Event{Type: EventConfigError, Message: msg})
}

// schedule registers a callback that becomes a no-op once the timers are
// cancelled.
func (e *Engine) schedule(d time.Duration, fn func()) {
	epoch := e.epoch
	live := e.timers[:0]
	for _, h := range e.timers {
		if h.Pending() {
			live = append(live, h)
		}
	}
	e.timers = live
	h := e.cfg.Clock.AfterFunc(d, func() {
		if e.closed || e.epoch != epoch {
			return
		}
		fn()
	})
	e.timers = append(e.timers, h)
}

func (e *Engine) cancelTimers() {
	for _, h := range e.timers {
		h.Cancel()
	}
	e.timers = nil
	e.respawnPending = false
	e.epoch++
}

// PendingTimers counts scheduled callbacks that have not fired.
func (e *Engine) PendingTimers() int {
	n := 0
	for _, h := range e.timers {
		if h.Pending() {
			n++
		}
	}
	return n
}

func (e *Engine) setState(s State) {
	if e.state == s {
		return
	}
	e.state = s
	e.emit(Event{Type: EventState, State: s})
}

func (e *Engine) emit(ev Event) {
	if e.cfg.OnEvent == nil {
		return
	}
	ev.SpawnerID = e.ID()
	ev.At = e.cfg.Clock.Now()
	e.cfg.OnEvent(ev)
}

// Info is a read-only view for state publishing and persistence.
type Info struct {
	ID         string      `json:"id"`
	Kind       string      `json:"kind"`
	State      State       `json:"state"`
	Position   geom.Vec3   `json:"pos"`
	CooldownMs int64       `json:"cooldown_ms"`
	LastSpawn  time.Time   `json:"last_spawn,omitempty"`
	Entity     *EntityInfo `json:"entity,omitempty"`
}

type EntityInfo struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	Quantity  int       `json:"quantity"`
	Position  geom.Vec3 `json:"pos"`
	Collected bool      `json:"collected"`
	Visual    bool      `json:"visual"`
	Spin      float64   `json:"spin"`
}

func (e *Engine) Info() Info {
	info := Info{
		ID:         e.ID(),
		Kind:       e.cfg.Spawner.Kind(),
		State:      e.state,
		Position:   e.Position(),
		CooldownMs: e.cooldown.Milliseconds(),
		LastSpawn:  e.lastSpawn,
	}
	if ent := e.entity; ent != nil {
		info.Entity = &EntityInfo{
			ID:        ent.ID,
			ItemID:    ent.ItemID,
			Quantity:  ent.Quantity,
			Position:  ent.Position,
			Collected: ent.Collected(),
			Visual:    ent.HasVisual(),
			Spin:      ent.Spin(),
		}
	}
	return info
}
