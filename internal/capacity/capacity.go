package capacity

import (
	"errors"
	"fmt"

	"minigames/internal/domain"
)

// Tolerance absorbs float round-off when comparing sums of costs.
const Tolerance = 1e-9

var ErrCapacityExceeded = errors.New("capacity exceeded")

// ExceededError describes a rejected placement.
type ExceededError struct {
	ItemID    string
	Resource  string // "capacity" or "weight"
	Need      float64
	Remaining float64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("item %s needs %g %s, %g remaining", e.ItemID, e.Need, e.Resource, e.Remaining)
}

func (e *ExceededError) Is(target error) bool { return target == ErrCapacityExceeded }

// Budget is the per-round limit. MaxWeight of zero means unlimited.
type Budget struct {
	Capacity  float64
	MaxWeight float64
}

// Load is the running total of placed items.
type Load struct {
	Cost   float64
	Weight float64
}

func (l Load) Add(it domain.Item) Load {
	return Load{Cost: l.Cost + it.Cost, Weight: l.Weight + it.Weight}
}

func (l Load) Sub(it domain.Item) Load {
	return Load{Cost: l.Cost - it.Cost, Weight: l.Weight - it.Weight}
}

func (b Budget) Remaining(l Load) float64 {
	return b.Capacity - l.Cost
}

// Fits reports whether the item could ever be placed under b, independent of
// current occupancy.
func Fits(it domain.Item, b Budget) bool {
	return Check(it, Load{}, b) == nil
}

func CanPlace(it domain.Item, l Load, b Budget) bool {
	return Check(it, l, b) == nil
}

// Check returns an *ExceededError when adding it to l would break b.
func Check(it domain.Item, l Load, b Budget) error {
	if l.Cost+it.Cost > b.Capacity+Tolerance {
		return &ExceededError{ItemID: it.ID, Resource: "capacity", Need: it.Cost, Remaining: b.Capacity - l.Cost}
	}
	if b.MaxWeight > 0 && l.Weight+it.Weight > b.MaxWeight+Tolerance {
		return &ExceededError{ItemID: it.ID, Resource: "weight", Need: it.Weight, Remaining: b.MaxWeight - l.Weight}
	}
	return nil
}
