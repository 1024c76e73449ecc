package inventory

import "sort"

// Inventory is the collector side of a collection. It is owned by the
// simulation goroutine.
type Inventory struct {
	counts map[string]int
}

func New() *Inventory {
	return &Inventory{counts: map[string]int{}}
}

// AddItem ignores non-positive quantities and empty ids.
func (inv *Inventory) AddItem(itemID string, quantity int) {
	if itemID == "" || quantity <= 0 {
		return
	}
	inv.counts[itemID] += quantity
}

func (inv *Inventory) Count(itemID string) int { return inv.counts[itemID] }

func (inv *Inventory) Total() int {
	n := 0
	for _, c := range inv.counts {
		n += c
	}
	return n
}

// Snapshot returns a copy of the counts.
func (inv *Inventory) Snapshot() map[string]int {
	out := make(map[string]int, len(inv.counts))
	for k, v := range inv.counts {
		out[k] = v
	}
	return out
}

func (inv *Inventory) Restore(counts map[string]int) {
	inv.counts = make(map[string]int, len(counts))
	for k, v := range counts {
		if k != "" && v > 0 {
			inv.counts[k] = v
		}
	}
}

type Stack struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// Stacks lists the counts ordered by item id.
func (inv *Inventory) Stacks() []Stack {
	out := make([]Stack, 0, len(inv.counts))
	for k, v := range inv.counts {
		out = append(out, Stack{Item: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}
