package world

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"foodrun.game/internal/persistence/snapshot"
	"foodrun.game/internal/sim/character"
	"foodrun.game/internal/sim/collision"
	"foodrun.game/internal/sim/geom"
	"foodrun.game/internal/sim/inventory"
	"foodrun.game/internal/sim/spawner"
	"foodrun.game/internal/sim/timers"
	"foodrun.game/internal/sim/worldfile"
)

var ErrUnknownSpawner = errors.New("unknown spawner")

// World is a single-threaded authoritative simulation of one character in
// one level. All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig
	log *log.Logger

	tick  atomic.Uint64
	clock *timers.Queue

	collision *collision.World
	player    *character.Controller
	inventory *inventory.Inventory
	spawners  []spawner.Spawner
	byID      map[string]spawner.Spawner

	worldDigest string
	playerSpawn geom.Vec3
	playerYaw   float64

	input     character.Input
	lastInput character.Input
	loggedAny bool
	events    []spawner.Event
	subs      map[chan []byte]struct{}

	inputs      chan character.Input
	posts       chan func()
	reloads     chan reloadReq
	activeReq   chan setActiveReq
	subscribe   chan chan []byte
	unsubscribe chan chan []byte
	admin       chan adminSnapshotReq
	stop        chan struct{}
	stopOnce    sync.Once

	// Optional sinks (may be nil). Implemented in internal/persistence/*.
	tickLogger TickLogger
	ledger     Ledger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1

	status atomic.Pointer[Status]
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// Ledger indexes spawner events; it must not block the caller.
type Ledger interface {
	RecordEvents(worldID string, tick uint64, events []spawner.Event)
}

type TickLogEntry struct {
	Tick       uint64          `json:"tick"`
	TimeUnixMs int64           `json:"time_unix_ms"`
	Input      character.Input `json:"input"`
	Pos        [3]float64      `json:"pos"`
	Events     []spawner.Event `json:"events"`
}

func New(cfg WorldConfig, file *worldfile.File, worldDigest string) (*World, error) {
	if file == nil {
		return nil, fmt.Errorf("world %s: nil world file", cfg.ID)
	}
	cfg.applyDefaults()
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	w := &World{
		cfg:         cfg,
		log:         logger,
		clock:       timers.NewQueue(cfg.Start),
		inventory:   inventory.New(),
		byID:        map[string]spawner.Spawner{},
		subs:        map[chan []byte]struct{}{},
		inputs:      make(chan character.Input, 1),
		posts:       make(chan func(), 256),
		reloads:     make(chan reloadReq, 4),
		activeReq:   make(chan setActiveReq, 16),
		subscribe:   make(chan chan []byte, 16),
		unsubscribe: make(chan chan []byte, 16),
		admin:       make(chan adminSnapshotReq, 4),
		stop:        make(chan struct{}),
	}

	w.playerSpawn, w.playerYaw = spawnPoint(file, cfg.Tuning.Character.FloorHeight)
	w.player = character.New(cfg.Tuning.Character, w.playerSpawn)
	w.player.Restore(w.playerSpawn, geom.Vec3{}, w.playerYaw)

	w.applyWorld(file, worldDigest)
	w.publishStatus(0, cfg.Start)
	return w, nil
}

func spawnPoint(f *worldfile.File, floor float64) (geom.Vec3, float64) {
	if f.Player != nil && f.Player.Spawn != nil {
		return f.Player.Spawn.Vec3(), f.Player.Yaw
	}
	yaw := 0.0
	if f.Player != nil {
		yaw = f.Player.Yaw
	}
	return geom.Vec3{0, floor, 0}, yaw
}

// applyWorld replaces static geometry and spawners. Character state and the
// inventory carry over.
func (w *World) applyWorld(f *worldfile.File, digest string) {
	for _, sp := range w.spawners {
		sp.Close()
	}
	w.spawners = nil
	w.byID = map[string]spawner.Spawner{}

	col, problems := collision.Build(f.Objects, w.cfg.Catalogs.Structures, w.cfg.Tuning.Character.StandingDistance)
	for _, p := range problems {
		w.log.Printf("world=%s geometry: %v", w.cfg.ID, p)
	}
	w.collision = col

	for _, sc := range f.Spawners {
		e := spawner.NewEngine(spawner.Config{
			Spawner:         sc,
			Kinds:           w.cfg.Kinds,
			DefaultCooldown: w.cfg.Tuning.Spawning.DefaultCooldown(),
			CleanupDelay:    w.cfg.Tuning.Spawning.CleanupDelay(),
			SpinRate:        w.cfg.SpinRate,
			Clock:           w.clock,
			Host:            w.cfg.Host,
			Loader:          w.cfg.Loader,
			Rand:            rand.New(rand.NewSource(spawnerSeed(w.cfg.Seed, sc.ID))),
			Logger:          w.log,
			OnEvent:         w.recordEvent,
		})
		w.spawners = append(w.spawners, e)
		w.byID[sc.ID] = e
	}
	w.worldDigest = digest
	st := f.Stats()
	w.log.Printf("world=%s loaded objects=%d instances=%d volumes=%d spawners=%d",
		w.cfg.ID, st.Objects, st.Instances, col.Len(), st.Spawners)
}

func spawnerSeed(seed int64, id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return seed ^ int64(h.Sum64())
}

func (w *World) recordEvent(ev spawner.Event) {
	w.events = append(w.events, ev)
}

// stepAt runs one tick: due timers, movement, then spawner updates and
// proximity collection against the committed position.
func (w *World) stepAt(now time.Time) TickLogEntry {
	tick := w.tick.Load()
	w.clock.Advance(now)
	now = w.clock.Now()

	w.player.Step(w.input, w.collision)
	pos := w.player.Position()

	radius := w.cfg.Tuning.Spawning.CollectionRadius
	for _, sp := range w.spawners {
		sp.Update(now)
		if sp.State() != spawner.StateActive {
			continue
		}
		ent := sp.Live()
		if ent == nil || ent.Collected() {
			continue
		}
		if ent.Position.Sub(pos).Len() <= radius {
			sp.Collect(w.inventory)
		}
	}

	events := w.events
	w.events = nil
	entry := TickLogEntry{
		Tick:       tick,
		TimeUnixMs: now.UnixMilli(),
		Input:      w.input,
		Pos:        pos,
		Events:     events,
	}
	// Ticks are logged when something happened or the input changed, so a
	// replay can carry the last input forward over the gaps.
	if w.tickLogger != nil && (len(events) > 0 || !w.loggedAny || w.input != w.lastInput) {
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.log.Printf("world=%s tick log: %v", w.cfg.ID, err)
		}
		w.loggedAny = true
		w.lastInput = w.input
	}
	if w.ledger != nil && len(events) > 0 {
		w.ledger.RecordEvents(w.cfg.ID, tick, events)
	}

	w.publish(tick, now, events)
	w.maybeSnapshot(tick)
	w.tick.Add(1)
	return entry
}

// StepOnce advances the world by a single tick at now with the given input,
// using the same ordering as the run loop. Intended for tests and tools.
func (w *World) StepOnce(in character.Input, now time.Time) TickLogEntry {
	w.input = in
	return w.stepAt(now)
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.Tuning.TickRateHz
}

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// The accessors below are for the world goroutine and tests.

func (w *World) Character() character.State { return w.player.State() }

func (w *World) Controller() *character.Controller { return w.player }

func (w *World) Inventory() *inventory.Inventory { return w.inventory }

func (w *World) Collision() *collision.World { return w.collision }

func (w *World) Spawner(id string) (spawner.Spawner, bool) {
	sp, ok := w.byID[id]
	return sp, ok
}

func (w *World) Spawners() []spawner.Spawner {
	out := make([]spawner.Spawner, len(w.spawners))
	copy(out, w.spawners)
	return out
}

func (w *World) WorldDigest() string { return w.worldDigest }

func (w *World) SetTickLogger(l TickLogger) { w.tickLogger = l }

func (w *World) SetLedger(l Ledger) { w.ledger = l }

func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

// Close tears down every spawner. Call after Run returns.
func (w *World) Close() {
	for _, sp := range w.spawners {
		sp.Close()
	}
}
