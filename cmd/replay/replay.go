package main

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"foodrun.game/internal/persistence/snapshot"
	"foodrun.game/internal/sim/character"
	"foodrun.game/internal/sim/spawner"
	"foodrun.game/internal/sim/world"
)

// posTolerance absorbs nothing but float formatting in the JSON log.
const posTolerance = 1e-9

type report struct {
	FirstTick uint64
	LastTick  uint64
	Stepped   uint64
	Checked   uint64
	Collected map[string]int
}

func (r report) items() []string {
	out := make([]string, 0, len(r.Collected))
	for id := range r.Collected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// replayer re-runs character movement from a snapshot and checks it against
// the tick log. Unlogged ticks carry the last input forward: the server logs
// every tick whose input differs from the previous logged one.
type replayer struct {
	w        *world.World
	in       character.Input
	next     uint64
	at       time.Time
	interval time.Duration
	toTick   uint64
	rep      report
}

func newReplayer(w *world.World, snap snapshot.SnapshotV1, interval time.Duration, toTick uint64) *replayer {
	si := snap.Character.Input
	return &replayer{
		w: w,
		in: character.Input{
			Forward:  si.Forward,
			Backward: si.Backward,
			Left:     si.Left,
			Right:    si.Right,
			Jump:     si.Jump,
			Yaw:      si.Yaw,
		},
		next:     w.CurrentTick(),
		at:       timeOf(snap),
		interval: interval,
		toTick:   toTick,
		rep:      report{FirstTick: w.CurrentTick(), Collected: map[string]int{}},
	}
}

func timeOf(snap snapshot.SnapshotV1) time.Time { return time.UnixMilli(snap.ClockUnixMs) }

var errDone = errors.New("replay reached to_tick")

func (r *replayer) apply(e world.TickLogEntry) error {
	if e.Tick < r.next {
		return nil
	}
	if r.toTick != 0 && e.Tick > r.toTick {
		return errDone
	}
	for r.next < e.Tick {
		r.at = r.at.Add(r.interval)
		r.w.StepOnce(r.in, r.at)
		r.next++
		r.rep.Stepped++
	}

	r.in = e.Input
	r.at = time.UnixMilli(e.TimeUnixMs)
	got := r.w.StepOnce(r.in, r.at)
	r.next++
	r.rep.Stepped++
	r.rep.Checked++
	r.rep.LastTick = e.Tick

	if got.Tick != e.Tick {
		return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", got.Tick, e.Tick)
	}
	for i := 0; i < 3; i++ {
		if math.Abs(got.Pos[i]-e.Pos[i]) > posTolerance {
			return fmt.Errorf("position mismatch at tick %d: got=%v want=%v", e.Tick, got.Pos, e.Pos)
		}
	}
	for _, ev := range e.Events {
		if ev.Type == spawner.EventCollect {
			r.rep.Collected[ev.ItemID] += ev.Quantity
		}
	}
	return nil
}
