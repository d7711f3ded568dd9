package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"minigames/internal/domain"
)

type CommandKind string

const (
	CmdSelectItem         CommandKind = "select_item"
	CmdDeselectItem       CommandKind = "deselect_item"
	CmdMoveItem           CommandKind = "move_item"
	CmdClearPlan          CommandKind = "clear_plan"
	CmdStartExecution     CommandKind = "start_execution"
	CmdAcknowledgeResult  CommandKind = "acknowledge_result"
	CmdReset              CommandKind = "reset"
	CmdSetDirectionalHold CommandKind = "set_directional_hold"
	CmdSetSprintHold      CommandKind = "set_sprint_hold"
	CmdTick               CommandKind = "tick"
)

// CommandKinds lists every command in the order they are documented.
var CommandKinds = []CommandKind{
	CmdSelectItem, CmdDeselectItem, CmdMoveItem, CmdClearPlan, CmdStartExecution,
	CmdAcknowledgeResult, CmdReset, CmdSetDirectionalHold, CmdSetSprintHold, CmdTick,
}

// Command is one input to the game. ItemID is used by the item commands,
// Hold by the hold commands and Delta by tick.
type Command struct {
	Kind   CommandKind   `json:"kind"`
	ItemID string        `json:"item_id,omitempty"`
	Hold   bool          `json:"hold,omitempty"`
	Delta  time.Duration `json:"delta,omitempty"`
}

func Select(id string) Command   { return Command{Kind: CmdSelectItem, ItemID: id} }
func Deselect(id string) Command { return Command{Kind: CmdDeselectItem, ItemID: id} }
func Move(id string) Command     { return Command{Kind: CmdMoveItem, ItemID: id} }
func Start() Command             { return Command{Kind: CmdStartExecution} }
func Acknowledge() Command       { return Command{Kind: CmdAcknowledgeResult} }
func Reset() Command             { return Command{Kind: CmdReset} }
func ClearPlan() Command         { return Command{Kind: CmdClearPlan} }
func Tick(d time.Duration) Command {
	return Command{Kind: CmdTick, Delta: d}
}
func DirectionalHold(on bool) Command { return Command{Kind: CmdSetDirectionalHold, Hold: on} }
func SprintHold(on bool) Command      { return Command{Kind: CmdSetSprintHold, Hold: on} }

// Apply validates cmd against the current phase and applies it. A returned
// error means the game state did not change.
func (g *Game) Apply(ctx context.Context, cmd Command) error {
	err := g.apply(ctx, cmd)
	if err != nil {
		g.rejected++
		g.log().Debug("command rejected", "game", g.opts.Game, "kind", cmd.Kind, "item", cmd.ItemID, "phase", g.phase, "err", err)
		return err
	}
	if cmd.Kind != CmdTick {
		g.record(ctx, "command.applied", "command", string(cmd.Kind), commandPayload(cmd))
	}
	return nil
}

// Tick advances the game by one frame of real time d.
func (g *Game) Tick(ctx context.Context, d time.Duration) error {
	return g.Apply(ctx, Tick(d))
}

func (g *Game) apply(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CmdTick:
		if cmd.Delta < 0 {
			return fmt.Errorf("tick delta must be non-negative")
		}
		if err := g.advance(ctx, cmd.Delta); err != nil {
			return err
		}
		g.frame++
		return nil
	case CmdSelectItem:
		if err := g.requireSelection(); err != nil {
			return err
		}
		_, err := g.builder.Place(cmd.ItemID)
		return err
	case CmdDeselectItem:
		if err := g.requireSelection(); err != nil {
			return err
		}
		if !g.cat.Has(cmd.ItemID) {
			return fmt.Errorf("%w: %s", ErrUnknownItem, cmd.ItemID)
		}
		g.builder.Remove(cmd.ItemID)
		return nil
	case CmdMoveItem:
		if err := g.requireSelection(); err != nil {
			return err
		}
		_, err := g.builder.Move(cmd.ItemID)
		return err
	case CmdClearPlan:
		if err := g.requireSelection(); err != nil {
			return err
		}
		g.builder.Clear()
		return nil
	case CmdStartExecution:
		return g.start(ctx)
	case CmdAcknowledgeResult:
		return g.nextRound(ctx)
	case CmdReset:
		return g.reset(ctx)
	case CmdSetDirectionalHold:
		if g.opts.Game != domain.GameTray {
			return ErrUnsupportedCommand
		}
		g.holding = cmd.Hold
		g.walk.Holding = cmd.Hold
		return nil
	case CmdSetSprintHold:
		if g.opts.Game != domain.GameTray {
			return ErrUnsupportedCommand
		}
		g.sprinting = cmd.Hold
		g.walk.Sprinting = cmd.Hold
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Kind)
}

func (g *Game) requireSelection() error {
	if g.phase != domain.PhaseSelection {
		return fmt.Errorf("%w: %s", ErrInvalidPhase, g.phase)
	}
	return nil
}

func commandPayload(cmd Command) map[string]any {
	p := map[string]any{"kind": cmd.Kind}
	if cmd.ItemID != "" {
		p["item_id"] = cmd.ItemID
	}
	if cmd.Kind == CmdSetDirectionalHold || cmd.Kind == CmdSetSprintHold {
		p["hold"] = cmd.Hold
	}
	return p
}

// IsRejection reports whether err is one of the recoverable command
// rejections rather than an internal failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidPhase) ||
		errors.Is(err, ErrUnknownItem) ||
		errors.Is(err, ErrUnknownCommand) ||
		errors.Is(err, ErrUnsupportedCommand) ||
		errors.Is(err, ErrPlanIncomplete) ||
		errors.Is(err, ErrCapacityExceeded)
}
