package spawner

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"foodrun.game/internal/sim/catalogs"
	"foodrun.game/internal/sim/worldfile"
)

var (
	ErrUnknownKind = errors.New("unknown spawner type")
	ErrEmptyPool   = errors.New("empty itemIds")
	ErrBadQuantity = errors.New("invalid quantity range")
)

// Drop is what one spawn produces.
type Drop struct {
	ItemID   string
	Quantity int
	Model    string
	Scale    float64
}

// Kind is a spawner variant selected by the world file's "type".
type Kind interface {
	Name() string
	Roll(cfg worldfile.Spawner, rng *rand.Rand) (Drop, error)
}

// Kinds is an explicit registry of spawner variants.
type Kinds struct {
	byName map[string]Kind
}

func NewKinds(kinds ...Kind) *Kinds {
	k := &Kinds{byName: map[string]Kind{}}
	for _, kind := range kinds {
		k.byName[kind.Name()] = kind
	}
	return k
}

func (k *Kinds) Lookup(name string) (Kind, error) {
	if k != nil {
		if kind, ok := k.byName[name]; ok {
			return kind, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownKind, name)
}

func (k *Kinds) Names() []string {
	if k == nil {
		return nil
	}
	out := make([]string, 0, len(k.byName))
	for n := range k.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ItemRegistry resolves item ids; catalogs.ItemCatalog implements it.
type ItemRegistry interface {
	Item(id string) (catalogs.ItemDef, error)
}

type itemKind struct {
	items ItemRegistry
}

// ItemKind spawns one catalog item picked uniformly from the spawner's pool,
// with a quantity uniform over the paired inclusive range.
func ItemKind(items ItemRegistry) Kind {
	return itemKind{items: items}
}

func (itemKind) Name() string { return worldfile.KindItem }

func (k itemKind) Roll(cfg worldfile.Spawner, rng *rand.Rand) (Drop, error) {
	if len(cfg.ItemIDs) == 0 {
		return Drop{}, ErrEmptyPool
	}
	i := rng.Intn(len(cfg.ItemIDs))
	id := cfg.ItemIDs[i]
	if k.items == nil {
		return Drop{}, fmt.Errorf("%w: %q", catalogs.ErrUnknownItem, id)
	}
	def, err := k.items.Item(id)
	if err != nil {
		return Drop{}, err
	}
	q := cfg.QuantityFor(i)
	if q.Min < 1 || q.Max < q.Min {
		return Drop{}, fmt.Errorf("%w for %s: [%d,%d]", ErrBadQuantity, id, q.Min, q.Max)
	}
	return Drop{
		ItemID:   def.ID,
		Quantity: q.Min + rng.Intn(q.Max-q.Min+1),
		Model:    def.Model,
		Scale:    def.Scale,
	}, nil
}
