package sim

import (
	"fmt"
	"math"

	"minigames/internal/domain"
)

type SpeedMode string

const (
	SpeedWeighted SpeedMode = "weighted"
	SpeedFixed    SpeedMode = "fixed"
)

// SpeedModel maps carried weight and sprint input to distance per simulated
// second.
type SpeedModel struct {
	Mode               SpeedMode `yaml:"mode" json:"mode"`
	Base               float64   `yaml:"base" json:"base"`
	Min                float64   `yaml:"min" json:"min"`
	WeightPenalty      float64   `yaml:"weight_penalty" json:"weight_penalty"`
	MaxWeightInfluence float64   `yaml:"max_weight_influence" json:"max_weight_influence"`
	SprintMultiplier   float64   `yaml:"sprint_multiplier" json:"sprint_multiplier"`
}

func (m SpeedModel) Validate() error {
	switch m.Mode {
	case SpeedWeighted, SpeedFixed, "":
	default:
		return fmt.Errorf("unknown speed mode %q", m.Mode)
	}
	if m.Base <= 0 {
		return fmt.Errorf("speed base must be positive")
	}
	if m.Min < 0 || m.WeightPenalty < 0 || m.MaxWeightInfluence < 0 || m.SprintMultiplier < 0 {
		return fmt.Errorf("speed parameters must be non-negative")
	}
	return nil
}

// Speed is non-increasing in weight. Weight beyond MaxWeightInfluence has no
// further effect. Sprint only applies in fixed mode.
func (m SpeedModel) Speed(weight float64, sprint bool) float64 {
	if m.Mode == SpeedFixed {
		v := m.Base
		if sprint && m.SprintMultiplier > 0 {
			v *= m.SprintMultiplier
		}
		return v
	}
	w := math.Max(0, weight)
	if m.MaxWeightInfluence > 0 {
		w = math.Min(w, m.MaxWeightInfluence)
	}
	return math.Max(m.Min, m.Base-m.WeightPenalty*w)
}

// WalkState is the tray crossing state. Load is the immutable tray snapshot.
type WalkState struct {
	Load      []domain.Item `json:"load"`
	Weight    float64       `json:"weight"`
	Value     float64       `json:"value"`
	Position  float64       `json:"position"`
	Target    float64       `json:"target"`
	Elapsed   float64       `json:"elapsed"`
	Holding   bool          `json:"holding"`
	Sprinting bool          `json:"sprinting"`
	Arrived   bool          `json:"arrived"`
	Running   bool          `json:"running"`
}

func StartWalk(load []domain.Item, target float64) WalkState {
	l := make([]domain.Item, len(load))
	copy(l, load)
	s := WalkState{Load: l, Target: target, Running: true}
	for _, it := range l {
		s.Weight += it.Weight
		s.Value += it.Value
	}
	if target <= 0 {
		s.Arrived = true
		s.Running = false
	}
	return s
}

// AdvanceWalk moves the waiter while the directional input is held.
func AdvanceWalk(s WalkState, delta float64, m SpeedModel) WalkState {
	if !s.Running || !s.Holding || delta <= 0 {
		return s
	}
	speed := m.Speed(s.Weight, s.Sprinting)
	if speed <= 0 {
		return s
	}
	need := (s.Target - s.Position) / speed
	if delta >= need {
		s.Elapsed += need
		s.Position = s.Target
		s.Arrived = true
		s.Running = false
		return s
	}
	s.Elapsed += delta
	s.Position += speed * delta
	return s
}

func (s WalkState) Done() bool { return !s.Running }

// Progress is the fraction of the floor crossed.
func (s WalkState) Progress() float64 {
	if s.Target <= 0 {
		return 1
	}
	return math.Min(1, s.Position/s.Target)
}

// Earned is the value credited on arrival.
func (s WalkState) Earned() float64 {
	if !s.Arrived {
		return 0
	}
	return s.Value
}
