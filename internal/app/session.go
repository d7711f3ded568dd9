package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"

	"minigames/internal/config"
	"minigames/internal/domain"
	"minigames/internal/engine"
	"minigames/internal/events"
	"minigames/internal/repo"
)

// ResolveConfig prefers an explicit file, then the workspace minigames.yml,
// then the built-in defaults.
func ResolveConfig(workspace, file string) (*config.Config, error) {
	if file != "" {
		return config.FromFile(file)
	}
	return config.LoadOptional(workspace)
}

// ResultHook is notified after a round result is journaled.
type ResultHook func(ctx context.Context, res domain.RoundResult)

type Deps struct {
	DB       *sql.DB
	Config   *config.Config
	Logger   *slog.Logger
	OnResult ResultHook
	Now      func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Session couples a running game with its journal. Every call into the
// game goes through Do so commands and ticks never interleave.
type Session struct {
	Info     domain.Session
	Repo     repo.Repo
	mu       sync.Mutex
	game     *engine.Game
	lastSeen time.Time
}

// NewSession journals a new session and starts round 1 of game.
func NewSession(ctx context.Context, deps Deps, game domain.Game, playerID string) (*Session, error) {
	if !game.Valid() {
		return nil, fmt.Errorf("unknown game %q", game)
	}
	if playerID == "" {
		playerID = "local"
	}
	info := domain.Session{
		ID:        xid.New().String(),
		PlayerID:  playerID,
		Game:      game,
		CreatedAt: deps.now().UTC().Format(time.RFC3339),
	}
	r := repo.Repo{DB: deps.DB}
	if err := r.InsertSession(ctx, info); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", info.ID)
	j := &journal{repo: r, writer: events.Writer{Now: deps.Now}, sessionID: info.ID, onResult: deps.OnResult}
	g, err := engine.NewFromConfig(deps.Config, game, logger, j)
	if err != nil {
		return nil, err
	}
	if _, err := j.writer.Append(ctx, r.DB, events.TypeSessionCreated, info.ID, "session", info.ID,
		events.EventPayload{"game": game, "player_id": playerID, "round": g.RoundNumber()}); err != nil {
		return nil, err
	}
	logger.Info("session created", "game", game, "player", playerID)
	return &Session{Info: info, Repo: r, game: g, lastSeen: deps.now()}, nil
}

// Do runs fn with exclusive access to the game.
func (s *Session) Do(fn func(g *engine.Game) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.game)
}

// Apply runs one command and returns the snapshot taken right after it.
func (s *Session) Apply(ctx context.Context, cmd engine.Command) (engine.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cmd.Kind != engine.CmdTick {
		s.lastSeen = time.Now()
	}
	err := s.game.Apply(ctx, cmd)
	return s.game.Snapshot(), err
}

func (s *Session) Snapshot() engine.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.Snapshot()
}

// Idle reports how long the session has gone without player commands.
func (s *Session) Idle(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// End marks the session finished in the journal.
func (s *Session) End(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.Repo.EndSession(ctx, s.Info.ID, now); err != nil {
		return err
	}
	_, err := events.Writer{}.Append(ctx, s.Repo.DB, events.TypeSessionEnded, s.Info.ID, "session", s.Info.ID, nil)
	return err
}

type journal struct {
	repo      repo.Repo
	writer    events.Writer
	sessionID string
	onResult  ResultHook
}

func (j *journal) RecordEvent(ctx context.Context, evtType, entityKind, entityID string, payload map[string]any) error {
	_, err := j.writer.Append(ctx, j.repo.DB, evtType, j.sessionID, entityKind, entityID, payload)
	return err
}

func (j *journal) RecordResult(ctx context.Context, res domain.RoundResult) error {
	res.SessionID = j.sessionID
	tx, err := j.repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	id, err := j.repo.InsertRoundResult(ctx, tx, res)
	if err != nil {
		return err
	}
	res.ID = id
	if _, err := j.writer.Append(ctx, tx, events.TypeRoundCompleted, j.sessionID, "round", fmt.Sprint(res.RoundNumber), events.EventPayload{
		"result_id":    id,
		"outcome":      res.Outcome,
		"earnings":     res.Earnings,
		"round_number": res.RoundNumber,
		"label":        res.Label,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if j.onResult != nil {
		j.onResult(ctx, res)
	}
	return nil
}
