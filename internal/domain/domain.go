package domain

import (
	"errors"
	"fmt"
)

type Game string

const (
	GamePlanner Game = "planner"
	GameTray    Game = "tray"
)

func (g Game) Valid() bool {
	return g == GamePlanner || g == GameTray
}

type Phase string

const (
	PhaseSelection Phase = "selection"
	PhaseExecution Phase = "execution"
	PhaseResult    Phase = "result"
)

// Item is a selectable task or tray object. Cost is hours for planner tasks
// and tray slots for tray objects; Value is relevance or money.
type Item struct {
	ID       string  `json:"id"`
	Title    string  `json:"title,omitempty"`
	Cost     float64 `json:"cost"`
	Value    float64 `json:"value"`
	Weight   float64 `json:"weight,omitempty"`
	Height   int     `json:"height,omitempty"`
	Shape    string  `json:"shape,omitempty"`
	Material string  `json:"material,omitempty"`
}

func (it Item) Validate() error {
	if it.ID == "" {
		return errors.New("item id is required")
	}
	if it.Cost < 0 {
		return fmt.Errorf("item %s: cost must be non-negative", it.ID)
	}
	if it.Value < 0 {
		return fmt.Errorf("item %s: value must be non-negative", it.ID)
	}
	if it.Weight < 0 {
		return fmt.Errorf("item %s: weight must be non-negative", it.ID)
	}
	return nil
}

// Round is immutable once started.
type Round struct {
	ID        int     `json:"id"`
	Label     string  `json:"label"`
	Game      Game    `json:"game" enum:"planner,tray"`
	Capacity  float64 `json:"capacity"`
	MaxWeight float64 `json:"max_weight,omitempty"`
	Items     []Item  `json:"items"`
}

func (r Round) Validate() error {
	if !r.Game.Valid() {
		return fmt.Errorf("round %d: unknown game %q", r.ID, r.Game)
	}
	if r.Capacity <= 0 {
		return fmt.Errorf("round %d: capacity must be positive", r.ID)
	}
	if r.MaxWeight < 0 {
		return fmt.Errorf("round %d: max weight must be non-negative", r.ID)
	}
	seen := make(map[string]bool, len(r.Items))
	for _, it := range r.Items {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("round %d: %w", r.ID, err)
		}
		if seen[it.ID] {
			return fmt.Errorf("round %d: duplicate item %s", r.ID, it.ID)
		}
		seen[it.ID] = true
	}
	return nil
}

// Placement is the derived position of a placed item: Offset is the start
// hour (planner) or first slot (tray), Index is the order position.
type Placement struct {
	ItemID string  `json:"item_id"`
	Index  int     `json:"index"`
	Offset float64 `json:"offset"`
	Cost   float64 `json:"cost"`
}

type RoundResult struct {
	ID          int64   `json:"id"`
	SessionID   string  `json:"session_id"`
	Game        Game    `json:"game"`
	RoundID     int     `json:"round_id"`
	RoundNumber int     `json:"round_number"`
	Label       string  `json:"label"`
	Outcome     float64 `json:"outcome"`
	Earnings    float64 `json:"earnings"`
	Elapsed     float64 `json:"elapsed"`
	ItemCount   int     `json:"item_count"`
	CompletedAt string  `json:"completed_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}

// Session is one player's run of one game.
type Session struct {
	ID        string `json:"id"`
	PlayerID  string `json:"player_id"`
	Game      Game   `json:"game" enum:"planner,tray"`
	CreatedAt string `json:"created_at" format:"date-time"`
	EndedAt   string `json:"ended_at,omitempty" format:"date-time"`
}

// APIKey authenticates a player. Only the hash is stored.
type APIKey struct {
	ID        string `json:"id"`
	PlayerID  string `json:"player_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
