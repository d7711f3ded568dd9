package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"minigames/internal/capacity"
	"minigames/internal/catalog"
	"minigames/internal/config"
	"minigames/internal/domain"
	"minigames/internal/plan"
	"minigames/internal/rounds"
	"minigames/internal/sim"
)

var (
	ErrInvalidPhase       = errors.New("command not allowed in current phase")
	ErrUnknownItem        = plan.ErrUnknownItem
	ErrCapacityExceeded   = capacity.ErrCapacityExceeded
	ErrUnknownCommand     = errors.New("unknown command")
	ErrUnsupportedCommand = errors.New("command not supported by this game")
	ErrPlanIncomplete     = errors.New("plan must place every task and fill the day exactly")
)

// Recorder receives the journal of a game. Failures are logged and never
// block gameplay.
type Recorder interface {
	RecordEvent(ctx context.Context, evtType, entityKind, entityID string, payload map[string]any) error
	RecordResult(ctx context.Context, res domain.RoundResult) error
}

type Options struct {
	Game        domain.Game
	Clock       sim.Clock
	Epsilon     float64
	Target      float64
	Speed       sim.SpeedModel
	AutoAdvance time.Duration
	Logger      *slog.Logger
	Recorder    Recorder
	Now         func() time.Time
}

// OptionsFromConfig picks the per-game tuning out of cfg.
func OptionsFromConfig(cfg *config.Config, game domain.Game) Options {
	if game == domain.GameTray {
		return Options{
			Game:        game,
			Clock:       cfg.TrayClock(),
			Epsilon:     sim.DefaultEpsilon,
			Target:      cfg.Tray.TargetDistance,
			Speed:       cfg.Tray.Speed,
			AutoAdvance: seconds(cfg.Tray.AutoAdvanceSeconds),
		}
	}
	return Options{
		Game:        domain.GamePlanner,
		Clock:       cfg.PlannerClock(),
		Epsilon:     cfg.Planner.Epsilon,
		AutoAdvance: seconds(cfg.Planner.AutoAdvanceSeconds),
	}
}

// ProgressionFromConfig builds the round source for game. Tray games without
// presets draw items from the seeded generator.
func ProgressionFromConfig(cfg *config.Config, game domain.Game) (*rounds.Progression, error) {
	if game == domain.GameTray {
		shape := rounds.Shape{Game: game, Capacity: cfg.Tray.SlotLimit, MaxWeight: cfg.Tray.MaxWeight, LabelFormat: "Mesa %d"}
		var gen rounds.Generator
		if cfg.Tray.Generator.MaxItems > 0 {
			gen = rounds.NewRandomGenerator(cfg.Tray.Generator)
		}
		return rounds.New(shape, cfg.TrayRounds(), gen)
	}
	shape := rounds.Shape{Game: game, Capacity: 8, LabelFormat: "Dia %d"}
	return rounds.New(shape, cfg.PlannerRounds(), nil)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Game is the controller for one player's session of one minigame. It owns
// all per-round state and is not safe for concurrent use.
type Game struct {
	opts     Options
	progress *rounds.Progression

	round   domain.Round
	cat     *catalog.Catalog
	builder *plan.Builder
	phase   domain.Phase

	tasks sim.TaskState
	walk  sim.WalkState

	holding   bool
	sprinting bool

	outcome   float64
	earnings  float64
	resultFor time.Duration
	frame     int64
	rejected  int64
}

func New(opts Options, progress *rounds.Progression) (*Game, error) {
	if !opts.Game.Valid() {
		return nil, fmt.Errorf("unknown game %q", opts.Game)
	}
	if progress == nil {
		return nil, errors.New("round progression is required")
	}
	if opts.Game == domain.GameTray {
		if opts.Target <= 0 {
			return nil, errors.New("tray target distance must be positive")
		}
		if err := opts.Speed.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.Epsilon <= 0 {
		opts.Epsilon = sim.DefaultEpsilon
	}
	g := &Game{opts: opts, progress: progress}
	if err := g.enterRound(progress.Current()); err != nil {
		return nil, err
	}
	return g, nil
}

// NewFromConfig wires a game from the effective config.
func NewFromConfig(cfg *config.Config, game domain.Game, logger *slog.Logger, rec Recorder) (*Game, error) {
	progress, err := ProgressionFromConfig(cfg, game)
	if err != nil {
		return nil, err
	}
	opts := OptionsFromConfig(cfg, game)
	opts.Logger = logger
	opts.Recorder = rec
	return New(opts, progress)
}

func (g *Game) log() *slog.Logger {
	if g.opts.Logger != nil {
		return g.opts.Logger
	}
	return slog.Default()
}

func (g *Game) now() time.Time {
	if g.opts.Now != nil {
		return g.opts.Now()
	}
	return time.Now()
}

func (g *Game) enterRound(r domain.Round) error {
	cat, err := catalog.New(r.Items)
	if err != nil {
		return fmt.Errorf("round %d: %w", r.ID, err)
	}
	g.round = r
	g.cat = cat
	g.builder = plan.NewBuilder(cat, capacity.Budget{Capacity: r.Capacity, MaxWeight: r.MaxWeight})
	g.phase = domain.PhaseSelection
	g.tasks = sim.TaskState{}
	g.walk = sim.WalkState{}
	g.outcome = 0
	g.earnings = 0
	g.resultFor = 0
	return nil
}

func ensurePhaseTransition(from, to domain.Phase) error {
	switch from {
	case domain.PhaseSelection:
		if to == domain.PhaseExecution || to == domain.PhaseSelection {
			return nil
		}
	case domain.PhaseExecution:
		if to == domain.PhaseResult {
			return nil
		}
	case domain.PhaseResult:
		if to == domain.PhaseSelection {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidPhase, from, to)
}

func (g *Game) setPhase(ctx context.Context, to domain.Phase) error {
	from := g.phase
	if err := ensurePhaseTransition(from, to); err != nil {
		return err
	}
	g.phase = to
	if from != to {
		g.log().Info("phase changed", "game", g.opts.Game, "round", g.progress.Number(), "from", from, "to", to)
		g.record(ctx, "phase.changed", "round", fmt.Sprint(g.progress.Number()), map[string]any{"from": from, "to": to})
	}
	return nil
}

func (g *Game) record(ctx context.Context, evtType, kind, id string, payload map[string]any) {
	if g.opts.Recorder == nil {
		return
	}
	if err := g.opts.Recorder.RecordEvent(ctx, evtType, kind, id, payload); err != nil {
		g.log().Warn("record event failed", "type", evtType, "err", err)
	}
}

func (g *Game) Phase() domain.Phase { return g.phase }

func (g *Game) GameKind() domain.Game { return g.opts.Game }

func (g *Game) Round() domain.Round { return g.round }

func (g *Game) RoundNumber() int { return g.progress.Number() }

func (g *Game) TotalEarnings() float64 { return g.progress.Total() }

func (g *Game) Frame() int64 { return g.frame }

// Rejections counts commands refused since the game started.
func (g *Game) Rejections() int64 { return g.rejected }

func (g *Game) start(ctx context.Context) error {
	if g.phase != domain.PhaseSelection {
		return ErrInvalidPhase
	}
	if g.opts.Game == domain.GamePlanner && !g.builder.IsComplete() {
		return ErrPlanIncomplete
	}
	schedule := g.builder.Items()
	if err := g.setPhase(ctx, domain.PhaseExecution); err != nil {
		return err
	}
	g.outcome = 0
	g.earnings = 0
	if g.opts.Game == domain.GameTray {
		g.walk = sim.StartWalk(schedule, g.opts.Target)
		g.walk.Holding = g.holding
		g.walk.Sprinting = g.sprinting
		if g.walk.Done() {
			return g.finish(ctx)
		}
		return nil
	}
	g.tasks = sim.StartTasks(schedule, g.round.Capacity)
	if g.tasks.Done() {
		return g.finish(ctx)
	}
	return nil
}

func (g *Game) advance(ctx context.Context, d time.Duration) error {
	switch g.phase {
	case domain.PhaseExecution:
		delta := g.opts.Clock.SimDelta(d)
		if g.opts.Game == domain.GameTray {
			g.walk = sim.AdvanceWalk(g.walk, delta, g.opts.Speed)
			if g.walk.Done() {
				return g.finish(ctx)
			}
			return nil
		}
		g.tasks = sim.AdvanceTasks(g.tasks, delta, g.opts.Epsilon)
		if g.tasks.Done() {
			return g.finish(ctx)
		}
	case domain.PhaseResult:
		if g.opts.AutoAdvance <= 0 {
			return nil
		}
		waited := g.resultFor + g.opts.Clock.Clamp(d)
		if waited >= g.opts.AutoAdvance {
			g.log().Debug("result auto-advance", "after", waited)
			return g.nextRound(ctx)
		}
		g.resultFor = waited
	}
	return nil
}

func (g *Game) finish(ctx context.Context) error {
	if err := g.setPhase(ctx, domain.PhaseResult); err != nil {
		return err
	}
	res := domain.RoundResult{
		Game:        g.opts.Game,
		RoundID:     g.round.ID,
		RoundNumber: g.progress.Number(),
		Label:       g.round.Label,
		CompletedAt: g.now().UTC().Format(time.RFC3339),
	}
	if g.opts.Game == domain.GameTray {
		g.outcome = g.walk.Earned()
		res.Elapsed = g.walk.Elapsed
		res.ItemCount = len(g.walk.Load)
	} else {
		g.outcome = g.tasks.Outcome
		res.Elapsed = g.tasks.Elapsed
		res.ItemCount = len(g.tasks.Schedule)
	}
	g.earnings = g.outcome
	g.progress.Credit(g.earnings)
	g.resultFor = 0
	res.Outcome = g.outcome
	res.Earnings = g.earnings
	g.log().Info("round completed", "game", g.opts.Game, "round", res.RoundNumber, "outcome", RoundOutcome(g.outcome), "total", g.progress.Total())
	if g.opts.Recorder != nil {
		if err := g.opts.Recorder.RecordResult(ctx, res); err != nil {
			g.log().Warn("record result failed", "err", err)
		}
	}
	return nil
}

func (g *Game) nextRound(ctx context.Context) error {
	if g.phase != domain.PhaseResult {
		return ErrInvalidPhase
	}
	r, err := g.progress.Advance()
	if err != nil {
		return err
	}
	if err := g.setPhase(ctx, domain.PhaseSelection); err != nil {
		return err
	}
	return g.enterRound(r)
}

// reset clears the plan in selection and replays the same round from result.
// It is rejected during execution, which must run through to its result.
func (g *Game) reset(ctx context.Context) error {
	switch g.phase {
	case domain.PhaseSelection:
		g.builder.Clear()
		return nil
	case domain.PhaseResult:
		g.progress.Restart()
		if err := g.setPhase(ctx, domain.PhaseSelection); err != nil {
			return err
		}
		return g.enterRound(g.round)
	}
	return ErrInvalidPhase
}

// RoundOutcome rounds an outcome to one decimal for display.
func RoundOutcome(v float64) float64 {
	return math.Round(v*10) / 10
}
