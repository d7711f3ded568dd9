package rounds_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"minigames/internal/config"
	"minigames/internal/domain"
	"minigames/internal/rounds"
)

func trayShape() rounds.Shape {
	return rounds.Shape{Game: domain.GameTray, Capacity: 9, LabelFormat: "Mesa %d"}
}

func TestPresetsCycle(t *testing.T) {
	presets := []domain.Round{
		{ID: 1, Label: "Dia 1", Game: domain.GamePlanner, Capacity: 2, Items: []domain.Item{{ID: "a", Cost: 2, Value: 1}}},
		{ID: 2, Label: "Dia 2", Game: domain.GamePlanner, Capacity: 3, Items: []domain.Item{{ID: "b", Cost: 3, Value: 2}}},
	}
	p, err := rounds.New(rounds.Shape{Game: domain.GamePlanner}, presets, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Number())
	assert.Equal(t, "Dia 1", p.Current().Label)

	r, err := p.Advance()
	require.NoError(t, err)
	assert.Equal(t, "Dia 2", r.Label)

	r, err = p.Advance()
	require.NoError(t, err)
	assert.Equal(t, 3, p.Number())
	assert.Equal(t, "Dia 1", r.Label)
}

func TestEmptyConfigFallsBackToDefault(t *testing.T) {
	p, err := rounds.New(rounds.Shape{Game: domain.GamePlanner}, nil, nil)
	require.NoError(t, err)
	r := p.Current()
	assert.Equal(t, "Dia 1", r.Label)
	assert.Equal(t, 8.0, r.Capacity)
	require.Len(t, r.Items, 5)

	next, err := p.Advance()
	require.NoError(t, err)
	assert.Equal(t, r.Items, next.Items)
}

func TestGeneratorDrawsEachRound(t *testing.T) {
	ctrl := gomock.NewController(t)
	gen := NewMockGenerator(ctrl)
	gomock.InOrder(
		gen.EXPECT().Generate(1).Return([]domain.Item{{ID: "x", Cost: 1, Value: 2}}, nil),
		gen.EXPECT().Generate(2).Return([]domain.Item{{ID: "y", Cost: 4, Value: 9, Weight: 2}}, nil),
	)

	p, err := rounds.New(trayShape(), nil, gen)
	require.NoError(t, err)
	assert.Equal(t, "Mesa 1", p.Current().Label)
	assert.Equal(t, "x", p.Current().Items[0].ID)

	r, err := p.Advance()
	require.NoError(t, err)
	assert.Equal(t, "Mesa 2", r.Label)
	assert.Equal(t, 9.0, r.Capacity)
	assert.Equal(t, "y", r.Items[0].ID)
}

func TestGeneratorFailureKeepsCurrentRound(t *testing.T) {
	ctrl := gomock.NewController(t)
	gen := NewMockGenerator(ctrl)
	gen.EXPECT().Generate(1).Return([]domain.Item{{ID: "x", Cost: 1}}, nil)
	gen.EXPECT().Generate(2).Return(nil, errors.New("boom"))

	p, err := rounds.New(trayShape(), nil, gen)
	require.NoError(t, err)
	_, err = p.Advance()
	require.Error(t, err)
	assert.Equal(t, 1, p.Number())
	assert.Equal(t, "x", p.Current().Items[0].ID)
}

func TestGeneratedItemsMustSatisfyInvariants(t *testing.T) {
	ctrl := gomock.NewController(t)
	gen := NewMockGenerator(ctrl)
	gen.EXPECT().Generate(1).Return([]domain.Item{{ID: "neg", Cost: 1, Weight: -1}}, nil)

	_, err := rounds.New(trayShape(), nil, gen)
	require.Error(t, err)
}

func TestCreditOncePerRound(t *testing.T) {
	p, err := rounds.New(trayShape(), nil, rounds.FixedGenerator{{ID: "a", Cost: 1, Value: 5}})
	require.NoError(t, err)
	p.Credit(5)
	p.Credit(5)
	assert.Equal(t, 5.0, p.Total())

	p.Restart()
	assert.Equal(t, 0.0, p.Total())
	p.Credit(4)
	_, err = p.Advance()
	require.NoError(t, err)
	p.Credit(6)
	assert.Equal(t, 10.0, p.Total())
}

func TestRandomGeneratorDeterministic(t *testing.T) {
	cfg := config.Default().Tray.Generator
	g := rounds.NewRandomGenerator(cfg)

	a, err := g.Generate(3)
	require.NoError(t, err)
	b, err := g.Generate(3)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	require.GreaterOrEqual(t, len(a), cfg.MinItems)
	require.LessOrEqual(t, len(a), cfg.MaxItems)
	seen := map[string]bool{}
	for _, it := range a {
		require.NoError(t, it.Validate())
		assert.False(t, seen[it.ID], "duplicate id %s", it.ID)
		seen[it.ID] = true
		assert.GreaterOrEqual(t, it.Cost, 1.0)
		assert.LessOrEqual(t, it.Cost, float64(cfg.MaxSize))
		assert.LessOrEqual(t, it.Weight, cfg.MaxWeight)
	}
}

func TestRandomGeneratorRejectsBadRange(t *testing.T) {
	g := rounds.NewRandomGenerator(config.GeneratorConfig{MinItems: 5, MaxItems: 2, MaxSize: 1, MaxHeight: 1})
	_, err := g.Generate(1)
	require.Error(t, err)
}
