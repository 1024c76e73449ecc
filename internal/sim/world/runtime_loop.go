package world

import (
	"context"
	"time"

	"foodrun.game/internal/sim/character"
	"foodrun.game/internal/sim/worldfile"
)

func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Tuning.TickInterval())
	defer ticker.Stop()

	// wake fires between ticks when a spawner timer falls due.
	wake := time.NewTimer(time.Hour)
	defer wake.Stop()

	var pendingAdmin []adminSnapshotReq

	for {
		w.armWake(wake)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case in := <-w.inputs:
			w.input = in
		case fn := <-w.posts:
			fn()
		case req := <-w.reloads:
			w.handleReload(req)
		case req := <-w.activeReq:
			w.handleSetActive(req)
		case ch := <-w.subscribe:
			w.subs[ch] = struct{}{}
		case ch := <-w.unsubscribe:
			delete(w.subs, ch)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case now := <-wake.C:
			w.clock.Advance(now)
		case now := <-ticker.C:
			w.stepAt(now)
			w.handleAdminSnapshotRequests(pendingAdmin)
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) armWake(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	due, ok := w.clock.NextDue()
	if !ok {
		return
	}
	d := time.Until(due)
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// SubmitInput replaces the character's intent; the newest input wins.
// Safe to call from any goroutine.
func (w *World) SubmitInput(in character.Input) {
	sendLatest(w.inputs, in)
}

// Post runs fn on the world goroutine. It blocks only while the queue is
// full and reports false once the world has stopped.
func (w *World) Post(fn func()) bool {
	select {
	case w.posts <- fn:
		return true
	case <-w.stop:
		return false
	}
}

// Subscribe registers out for per-tick STATE messages. Delivery drops the
// oldest message when out is full.
func (w *World) Subscribe(out chan []byte) {
	select {
	case w.subscribe <- out:
	case <-w.stop:
	}
}

func (w *World) Unsubscribe(out chan []byte) {
	select {
	case w.unsubscribe <- out:
	case <-w.stop:
	}
}

type reloadReq struct {
	File   *worldfile.File
	Digest string
	Resp   chan struct{}
}

// Reload swaps in a new level. The file must already be validated.
func (w *World) Reload(ctx context.Context, f *worldfile.File, digest string) error {
	resp := make(chan struct{}, 1)
	select {
	case w.reloads <- reloadReq{File: f, Digest: digest, Resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-resp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *World) handleReload(req reloadReq) {
	if req.File != nil && req.Digest != w.worldDigest {
		w.applyWorld(req.File, req.Digest)
		w.publishStatus(w.tick.Load(), w.clock.Now())
	}
	if req.Resp != nil {
		req.Resp <- struct{}{}
	}
}

type setActiveReq struct {
	ID     string
	Active bool
	Resp   chan error
}

// SetSpawnerActive toggles a spawner from another goroutine.
func (w *World) SetSpawnerActive(ctx context.Context, id string, active bool) error {
	resp := make(chan error, 1)
	select {
	case w.activeReq <- setActiveReq{ID: id, Active: active, Resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *World) handleSetActive(req setActiveReq) {
	var err error
	if sp, ok := w.byID[req.ID]; ok {
		sp.SetActive(req.Active)
		w.publishStatus(w.tick.Load(), w.clock.Now())
	} else {
		err = ErrUnknownSpawner
	}
	if req.Resp != nil {
		req.Resp <- err
	}
}

func sendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
