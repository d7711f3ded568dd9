package rounds

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/google/uuid"

	"minigames/internal/config"
	"minigames/internal/domain"
)

//go:generate mockgen -destination=mock_generator_test.go -package=rounds_test minigames/internal/rounds Generator

// Generator draws the item list for a round that has no preset.
type Generator interface {
	Generate(roundNumber int) ([]domain.Item, error)
}

var (
	shapes    = []string{"cup", "plate", "bowl", "bottle", "glass", "teapot"}
	materials = []string{"ceramic", "glass", "metal", "wood"}
)

// RandomGenerator is a seeded tray item generator. The same seed and round
// number always produce the same items.
type RandomGenerator struct {
	Config config.GeneratorConfig
}

func NewRandomGenerator(cfg config.GeneratorConfig) RandomGenerator {
	return RandomGenerator{Config: cfg}
}

func (g RandomGenerator) Generate(roundNumber int) ([]domain.Item, error) {
	c := g.Config
	if c.MaxItems < c.MinItems || c.MinItems < 0 {
		return nil, fmt.Errorf("generator: invalid item count range %d..%d", c.MinItems, c.MaxItems)
	}
	if c.MaxSize <= 0 || c.MaxHeight <= 0 {
		return nil, fmt.Errorf("generator: max_size and max_height must be positive")
	}
	rng := rand.New(rand.NewPCG(uint64(c.Seed), uint64(roundNumber)))
	n := c.MinItems
	if c.MaxItems > c.MinItems {
		n += rng.IntN(c.MaxItems - c.MinItems + 1)
	}
	items := make([]domain.Item, 0, n)
	for i := 0; i < n; i++ {
		id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%d|%d|%d", c.Seed, roundNumber, i))).String()
		shape := shapes[rng.IntN(len(shapes))]
		items = append(items, domain.Item{
			ID:       id[:8],
			Title:    shape,
			Cost:     float64(1 + rng.IntN(c.MaxSize)),
			Height:   1 + rng.IntN(c.MaxHeight),
			Weight:   round1(rng.Float64() * c.MaxWeight),
			Value:    math.Round(1 + rng.Float64()*math.Max(0, c.MaxValue-1)),
			Shape:    shape,
			Material: materials[rng.IntN(len(materials))],
		})
	}
	return items, nil
}

// FixedGenerator replays the same item list every round.
type FixedGenerator []domain.Item

func (f FixedGenerator) Generate(int) ([]domain.Item, error) {
	out := make([]domain.Item, len(f))
	copy(out, f)
	return out, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
