package timers

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestAdvance_FiresInDueOrder(t *testing.T) {
	q := NewQueue(t0)
	var got []string
	q.AfterFunc(300*time.Millisecond, func() { got = append(got, "c") })
	q.AfterFunc(100*time.Millisecond, func() { got = append(got, "a") })
	q.AfterFunc(100*time.Millisecond, func() { got = append(got, "b") })

	if n := q.Advance(t0.Add(99 * time.Millisecond)); n != 0 {
		t.Fatalf("fired %d early", n)
	}
	if n := q.Advance(t0.Add(300 * time.Millisecond)); n != 3 {
		t.Fatalf("fired=%d want 3", n)
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("order=%v", got)
	}
	if q.Len() != 0 {
		t.Fatalf("len=%d", q.Len())
	}
}

func TestCancel(t *testing.T) {
	q := NewQueue(t0)
	fired := false
	h := q.AfterFunc(time.Second, func() { fired = true })
	if !h.Pending() {
		t.Fatalf("expected pending")
	}
	if !h.Cancel() {
		t.Fatalf("first cancel should report pending")
	}
	if h.Cancel() {
		t.Fatalf("second cancel should be a no-op")
	}
	q.Advance(t0.Add(2 * time.Second))
	if fired {
		t.Fatalf("canceled callback ran")
	}
	var zero Handle
	if zero.Cancel() || zero.Pending() {
		t.Fatalf("zero handle should be inert")
	}
}

func TestCancelAfterFire(t *testing.T) {
	q := NewQueue(t0)
	h := q.AfterFunc(time.Millisecond, func() {})
	q.Advance(t0.Add(time.Millisecond))
	if h.Pending() || h.Cancel() {
		t.Fatalf("fired timer should not be cancelable")
	}
}

func TestNestedSchedulingUsesCallbackDeadline(t *testing.T) {
	q := NewQueue(t0)
	var at []time.Duration
	q.AfterFunc(100*time.Millisecond, func() {
		at = append(at, q.Now().Sub(t0))
		q.AfterFunc(50*time.Millisecond, func() {
			at = append(at, q.Now().Sub(t0))
		})
	})
	q.Advance(t0.Add(time.Second))
	if len(at) != 2 || at[0] != 100*time.Millisecond || at[1] != 150*time.Millisecond {
		t.Fatalf("at=%v", at)
	}
	if !q.Now().Equal(t0.Add(time.Second)) {
		t.Fatalf("now=%v", q.Now())
	}
}

func TestNextDue(t *testing.T) {
	q := NewQueue(t0)
	if _, ok := q.NextDue(); ok {
		t.Fatalf("empty queue has no deadline")
	}
	q.AfterFunc(2*time.Second, func() {})
	h := q.AfterFunc(time.Second, func() {})
	if due, _ := q.NextDue(); !due.Equal(t0.Add(time.Second)) {
		t.Fatalf("due=%v", due)
	}
	h.Cancel()
	if due, _ := q.NextDue(); !due.Equal(t0.Add(2 * time.Second)) {
		t.Fatalf("due after cancel=%v", due)
	}
}
