package plan

import (
	"errors"
	"fmt"
	"math"

	"minigames/internal/capacity"
	"minigames/internal/catalog"
	"minigames/internal/domain"
)

var ErrUnknownItem = errors.New("unknown item")

// Builder holds the ordered, capacity-bounded selection for one round. It is
// not safe for concurrent use.
type Builder struct {
	cat        *catalog.Catalog
	budget     capacity.Budget
	order      []string
	placements map[string]domain.Placement
	load       capacity.Load
}

func NewBuilder(cat *catalog.Catalog, budget capacity.Budget) *Builder {
	return &Builder{
		cat:        cat,
		budget:     budget,
		placements: map[string]domain.Placement{},
	}
}

// Place appends id to the plan. Placing an item that is already placed
// returns its current placement unchanged.
func (b *Builder) Place(id string) (domain.Placement, error) {
	it, ok := b.cat.Get(id)
	if !ok {
		return domain.Placement{}, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	if p, placed := b.placements[id]; placed {
		return p, nil
	}
	if err := capacity.Check(it, b.load, b.budget); err != nil {
		return domain.Placement{}, err
	}
	b.order = append(b.order, id)
	b.repack()
	return b.placements[id], nil
}

// Move re-appends an already placed item at the end of the plan.
func (b *Builder) Move(id string) (domain.Placement, error) {
	if !b.cat.Has(id) {
		return domain.Placement{}, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	if !b.Remove(id) {
		return b.Place(id)
	}
	// removing freed exactly this item's share, so the re-append always fits
	b.order = append(b.order, id)
	b.repack()
	return b.placements[id], nil
}

// Remove reports whether id was placed.
func (b *Builder) Remove(id string) bool {
	idx := b.position(id)
	if idx < 0 {
		return false
	}
	b.order = append(b.order[:idx], b.order[idx+1:]...)
	b.repack()
	return true
}

func (b *Builder) Clear() {
	if len(b.order) == 0 {
		return
	}
	b.order = nil
	b.repack()
}

// IsComplete is the planner start rule: every catalog item is placed and
// the placed cost fills the capacity exactly.
func (b *Builder) IsComplete() bool {
	if len(b.order) != b.cat.Len() {
		return false
	}
	return math.Abs(b.load.Cost-b.budget.Capacity) <= capacity.Tolerance
}

func (b *Builder) repack() {
	b.placements = make(map[string]domain.Placement, len(b.order))
	b.load = capacity.Load{}
	for i, id := range b.order {
		it, _ := b.cat.Get(id)
		b.placements[id] = domain.Placement{ItemID: id, Index: i, Offset: b.load.Cost, Cost: it.Cost}
		b.load = b.load.Add(it)
	}
}

func (b *Builder) position(id string) int {
	for i, cur := range b.order {
		if cur == id {
			return i
		}
	}
	return -1
}

func (b *Builder) Contains(id string) bool {
	_, ok := b.placements[id]
	return ok
}

func (b *Builder) Len() int { return len(b.order) }

func (b *Builder) Used() float64 { return b.load.Cost }

func (b *Builder) Weight() float64 { return b.load.Weight }

func (b *Builder) Remaining() float64 { return b.budget.Remaining(b.load) }

func (b *Builder) Budget() capacity.Budget { return b.budget }

func (b *Builder) Catalog() *catalog.Catalog { return b.cat }

// Placements returns placements in plan order.
func (b *Builder) Placements() []domain.Placement {
	out := make([]domain.Placement, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.placements[id])
	}
	return out
}

// Items returns the placed items in plan order. The slice is a fresh copy and
// is used as the immutable execution snapshot.
func (b *Builder) Items() []domain.Item {
	out := make([]domain.Item, 0, len(b.order))
	for _, id := range b.order {
		it, _ := b.cat.Get(id)
		out = append(out, it)
	}
	return out
}

// Available returns catalog items not currently placed, in catalog order.
func (b *Builder) Available() []domain.Item {
	var out []domain.Item
	for _, it := range b.cat.Items() {
		if !b.Contains(it.ID) {
			out = append(out, it)
		}
	}
	return out
}

// Slots maps each whole unit of capacity to the id occupying it, "" when
// free. Fractional costs occupy the slots they start in.
func (b *Builder) Slots() []string {
	n := int(math.Ceil(b.budget.Capacity - capacity.Tolerance))
	if n < 0 {
		n = 0
	}
	slots := make([]string, n)
	for _, id := range b.order {
		p := b.placements[id]
		start := int(math.Floor(p.Offset + capacity.Tolerance))
		end := int(math.Ceil(p.Offset + p.Cost - capacity.Tolerance))
		for i := start; i < end && i < n; i++ {
			slots[i] = id
		}
	}
	return slots
}
