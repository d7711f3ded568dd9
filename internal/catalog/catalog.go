package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"minigames/internal/domain"
)

// Catalog is the ordered, read-only set of items available in a round.
type Catalog struct {
	items  []domain.Item
	index  map[string]int
	digest string
}

// New validates items and indexes them by id. Order is preserved.
func New(items []domain.Item) (*Catalog, error) {
	c := &Catalog{
		items: make([]domain.Item, 0, len(items)),
		index: make(map[string]int, len(items)),
	}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.index[it.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate item %s", it.ID)
		}
		c.index[it.ID] = len(c.items)
		c.items = append(c.items, it)
	}
	raw, err := json.Marshal(c.items)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(raw)
	c.digest = hex.EncodeToString(sum[:])
	return c, nil
}

func (c *Catalog) Get(id string) (domain.Item, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.Item{}, false
	}
	return c.items[i], true
}

func (c *Catalog) Has(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Items returns a copy in catalog order.
func (c *Catalog) Items() []domain.Item {
	out := make([]domain.Item, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Catalog) Len() int { return len(c.items) }

// Digest is the sha256 of the JSON item list; it changes whenever the round's
// items change.
func (c *Catalog) Digest() string { return c.digest }

// TotalCost sums the cost of every item in the catalog.
func (c *Catalog) TotalCost() float64 {
	var sum float64
	for _, it := range c.items {
		sum += it.Cost
	}
	return sum
}
