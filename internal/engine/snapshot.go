package engine

import (
	"minigames/internal/domain"
)

// Snapshot is the read-only view handed to renderers once per frame.
type Snapshot struct {
	Game          domain.Game        `json:"game" enum:"planner,tray"`
	Phase         domain.Phase       `json:"phase" enum:"selection,execution,result"`
	Frame         int64              `json:"frame"`
	RoundNumber   int                `json:"round_number"`
	RoundID       int                `json:"round_id"`
	RoundLabel    string             `json:"round_label"`
	Capacity      float64            `json:"capacity"`
	MaxWeight     float64            `json:"max_weight,omitempty"`
	CatalogDigest string             `json:"catalog_digest"`
	Catalog       []domain.Item      `json:"catalog"`
	Available     []domain.Item      `json:"available"`
	Placements    []domain.Placement `json:"placements"`
	Slots         []string           `json:"slots"`
	Used          float64            `json:"used"`
	Remaining     float64            `json:"remaining"`
	Weight        float64            `json:"weight"`
	CanStart      bool               `json:"can_start"`
	Execution     *ExecutionView     `json:"execution,omitempty"`
	Result        *ResultView        `json:"result,omitempty"`
	TotalEarnings float64            `json:"total_earnings"`
	Holding       bool               `json:"holding"`
	Sprinting     bool               `json:"sprinting"`
}

// ExecutionView is the cursor of the running (or finished) simulation.
type ExecutionView struct {
	CurrentItemID string  `json:"current_item_id,omitempty"`
	Index         int     `json:"index"`
	Progress      float64 `json:"progress"`
	Elapsed       float64 `json:"elapsed"`
	Capacity      float64 `json:"capacity,omitempty"`
	Outcome       float64 `json:"outcome"`
	Position      float64 `json:"position,omitempty"`
	Target        float64 `json:"target,omitempty"`
	Speed         float64 `json:"speed,omitempty"`
	Running       bool    `json:"running"`
}

type ResultView struct {
	Outcome  float64 `json:"outcome"`
	Display  float64 `json:"display"`
	Earnings float64 `json:"earnings"`
}

// Snapshot copies the current state. The returned value shares nothing with
// the game.
func (g *Game) Snapshot() Snapshot {
	s := Snapshot{
		Game:          g.opts.Game,
		Phase:         g.phase,
		Frame:         g.frame,
		RoundNumber:   g.progress.Number(),
		RoundID:       g.round.ID,
		RoundLabel:    g.round.Label,
		Capacity:      g.round.Capacity,
		MaxWeight:     g.round.MaxWeight,
		CatalogDigest: g.cat.Digest(),
		Catalog:       g.cat.Items(),
		Available:     g.builder.Available(),
		Placements:    g.builder.Placements(),
		Slots:         g.builder.Slots(),
		Used:          g.builder.Used(),
		Remaining:     g.builder.Remaining(),
		Weight:        g.builder.Weight(),
		TotalEarnings: g.progress.Total(),
		Holding:       g.holding,
		Sprinting:     g.sprinting,
	}
	if g.phase == domain.PhaseSelection {
		s.CanStart = g.opts.Game == domain.GameTray || g.builder.IsComplete()
	}
	if g.phase != domain.PhaseSelection {
		s.Execution = g.executionView()
	}
	if g.phase == domain.PhaseResult {
		s.Result = &ResultView{Outcome: g.outcome, Display: RoundOutcome(g.outcome), Earnings: g.earnings}
	}
	return s
}

func (g *Game) executionView() *ExecutionView {
	if g.opts.Game == domain.GameTray {
		w := g.walk
		return &ExecutionView{
			Progress: w.Progress(),
			Elapsed:  w.Elapsed,
			Outcome:  w.Earned(),
			Position: w.Position,
			Target:   w.Target,
			Speed:    g.opts.Speed.Speed(w.Weight, w.Sprinting),
			Running:  w.Running,
		}
	}
	t := g.tasks
	v := &ExecutionView{
		Index:    t.Index,
		Progress: t.Progress(),
		Elapsed:  t.Elapsed,
		Capacity: t.Capacity,
		Outcome:  t.Outcome,
		Running:  t.Running,
	}
	if cur, ok := t.Current(); ok {
		v.CurrentItemID = cur.ID
	}
	return v
}
