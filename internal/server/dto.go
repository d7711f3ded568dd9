package server

import (
	"encoding/json"
	"time"

	"minigames/internal/domain"
	"minigames/internal/engine"
)

// Request payloads

type CreateSessionRequest struct {
	Game domain.Game `json:"game" enum:"planner,tray"`
}

type CommandRequest struct {
	Kind    engine.CommandKind `json:"kind" enum:"select_item,deselect_item,move_item,clear_plan,start_execution,acknowledge_result,reset,set_directional_hold,set_sprint_hold,tick"`
	ItemID  string             `json:"item_id,omitempty"`
	Hold    bool               `json:"hold,omitempty"`
	DeltaMs float64            `json:"delta_ms,omitempty" minimum:"0"`
}

type DevLoginRequest struct {
	PlayerID string `json:"player_id"`
}

// Response payloads

type SessionResponse struct {
	Session  domain.Session   `json:"session"`
	Live     bool             `json:"live"`
	Snapshot *engine.Snapshot `json:"snapshot,omitempty"`
}

type CommandResponse struct {
	Applied  bool            `json:"applied"`
	Code     string          `json:"code,omitempty" enum:"capacity_exceeded,unknown_item,invalid_phase,plan_incomplete,unsupported_command,unknown_command,rate_limited,internal_error"`
	Reason   string          `json:"reason,omitempty"`
	Details  map[string]any  `json:"details,omitempty"`
	Snapshot engine.Snapshot `json:"snapshot"`
}

type ResultsResponse struct {
	Items         []domain.RoundResult `json:"items"`
	TotalEarnings float64              `json:"total_earnings"`
}

type GameInfo struct {
	Game     domain.Game          `json:"game" enum:"planner,tray"`
	Commands []engine.CommandKind `json:"commands"`
	// StartNeedsFullPlan is true when execution only starts from a complete
	// plan. Tray rounds start with any load.
	StartNeedsFullPlan bool         `json:"start_needs_full_plan"`
	FirstRound         domain.Round `json:"first_round"`
}

type GamesResponse struct {
	Items []GameInfo `json:"items"`
}

type SessionsResponse struct {
	Items []domain.Session `json:"items"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	SessionID  string         `json:"session_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type WhoAmIResponse struct {
	PlayerID string `json:"player_id"`
	Source   string `json:"source"`
}

// Conversion helpers

func (r CommandRequest) command() engine.Command {
	return engine.Command{
		Kind:   r.Kind,
		ItemID: r.ItemID,
		Hold:   r.Hold,
		Delta:  time.Duration(r.DeltaMs * float64(time.Millisecond)),
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		SessionID:  e.SessionID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, eventResponse(e))
	}
	return out
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}
