// Package timers is a deferred-callback queue driven by an explicit clock.
//
// It is not safe for concurrent use: the owning simulation goroutine
// schedules, cancels and advances it.
package timers

import (
	"container/heap"
	"time"
)

type Queue struct {
	now  time.Time
	seq  uint64
	heap timerHeap
}

type timer struct {
	due      time.Time
	seq      uint64
	fn       func()
	index    int
	canceled bool
}

// Handle cancels a scheduled callback.
type Handle struct {
	q *Queue
	t *timer
}

func NewQueue(start time.Time) *Queue {
	return &Queue{now: start}
}

func (q *Queue) Now() time.Time { return q.now }

func (q *Queue) Len() int { return len(q.heap) }

// AfterFunc schedules fn to run once the clock reaches Now()+d.
func (q *Queue) AfterFunc(d time.Duration, fn func()) Handle {
	if d < 0 {
		d = 0
	}
	q.seq++
	t := &timer{due: q.now.Add(d), seq: q.seq, fn: fn}
	heap.Push(&q.heap, t)
	return Handle{q: q, t: t}
}

// Cancel reports whether the callback was still pending.
func (h Handle) Cancel() bool {
	if h.t == nil || h.t.canceled || h.t.index < 0 {
		return false
	}
	h.t.canceled = true
	heap.Remove(&h.q.heap, h.t.index)
	return true
}

func (h Handle) Pending() bool {
	return h.t != nil && !h.t.canceled && h.t.index >= 0
}

// NextDue returns the deadline of the earliest pending callback.
func (q *Queue) NextDue() (time.Time, bool) {
	if len(q.heap) == 0 {
		return time.Time{}, false
	}
	return q.heap[0].due, true
}

// Advance moves the clock to `to` (never backwards) and runs every callback
// due at or before it in (due, schedule order). The clock reads each
// callback's own deadline while it runs, so timers scheduled from inside a
// callback are relative to that deadline and fire in the same call when due.
func (q *Queue) Advance(to time.Time) int {
	fired := 0
	for len(q.heap) > 0 {
		next := q.heap[0]
		if next.due.After(to) {
			break
		}
		heap.Pop(&q.heap)
		if next.due.After(q.now) {
			q.now = next.due
		}
		next.fn()
		fired++
	}
	if to.After(q.now) {
		q.now = to
	}
	return fired
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
