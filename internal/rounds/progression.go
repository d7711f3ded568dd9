package rounds

import (
	"fmt"

	"minigames/internal/domain"
)

// Shape is the per-game template for rounds that are generated rather than
// taken from presets.
type Shape struct {
	Game        domain.Game
	Capacity    float64
	MaxWeight   float64
	LabelFormat string
}

// Progression tracks the round number and cumulative earnings of one game
// session and resolves the round configuration for each number.
type Progression struct {
	shape    Shape
	presets  []domain.Round
	gen      Generator
	number   int
	current  domain.Round
	total    float64
	credited map[int]float64
}

// New starts at round 1. Presets are cycled by (n-1) mod len; without presets
// gen draws the items; without either the built-in default round is used.
func New(shape Shape, presets []domain.Round, gen Generator) (*Progression, error) {
	if !shape.Game.Valid() {
		return nil, fmt.Errorf("rounds: unknown game %q", shape.Game)
	}
	for _, r := range presets {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	p := &Progression{
		shape:    shape,
		presets:  append([]domain.Round(nil), presets...),
		gen:      gen,
		credited: map[int]float64{},
	}
	if err := p.load(1); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Progression) resolve(n int) (domain.Round, error) {
	if len(p.presets) > 0 {
		return p.presets[(n-1)%len(p.presets)], nil
	}
	if p.gen == nil {
		return DefaultRound(p.shape.Game), nil
	}
	items, err := p.gen.Generate(n)
	if err != nil {
		return domain.Round{}, fmt.Errorf("generate round %d: %w", n, err)
	}
	format := p.shape.LabelFormat
	if format == "" {
		format = "Round %d"
	}
	r := domain.Round{
		ID:        n,
		Label:     fmt.Sprintf(format, n),
		Game:      p.shape.Game,
		Capacity:  p.shape.Capacity,
		MaxWeight: p.shape.MaxWeight,
		Items:     items,
	}
	if err := r.Validate(); err != nil {
		return domain.Round{}, err
	}
	return r, nil
}

func (p *Progression) load(n int) error {
	r, err := p.resolve(n)
	if err != nil {
		return err
	}
	p.number = n
	p.current = r
	return nil
}

func (p *Progression) Current() domain.Round { return p.current }

func (p *Progression) Number() int { return p.number }

// Advance moves to the next round. On error the current round is kept.
func (p *Progression) Advance() (domain.Round, error) {
	if err := p.load(p.number + 1); err != nil {
		return domain.Round{}, err
	}
	return p.current, nil
}

// Credit adds the earnings of the current round to the total. A round is
// credited at most once.
func (p *Progression) Credit(amount float64) {
	if _, done := p.credited[p.number]; done {
		return
	}
	p.credited[p.number] = amount
	p.total += amount
}

func (p *Progression) Total() float64 { return p.total }

// Restart reopens the current round. Earnings already credited for it are
// withdrawn so the replay is credited again.
func (p *Progression) Restart() {
	if amount, ok := p.credited[p.number]; ok {
		p.total -= amount
		delete(p.credited, p.number)
	}
}
