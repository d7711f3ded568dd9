package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"minigames/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func (r Repo) InsertSession(ctx context.Context, s domain.Session) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO sessions(id,player_id,game,created_at) VALUES (?,?,?,?)`,
		s.ID, s.PlayerID, string(s.Game), s.CreatedAt)
	return err
}

func (r Repo) EndSession(ctx context.Context, id, endedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE sessions SET ended_at=? WHERE id=? AND ended_at IS NULL`, endedAt, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var s domain.Session
	var game string
	var ended sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,player_id,game,created_at,ended_at FROM sessions WHERE id=?`, id).
		Scan(&s.ID, &s.PlayerID, &game, &s.CreatedAt, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Game = domain.Game(game)
	if ended.Valid {
		s.EndedAt = ended.String
	}
	return s, nil
}

// ListSessions returns sessions newest first, optionally for one player.
func (r Repo) ListSessions(ctx context.Context, playerID string) ([]domain.Session, error) {
	query := `SELECT id,player_id,game,created_at,COALESCE(ended_at,'') FROM sessions`
	var args []any
	if playerID != "" {
		query += ` WHERE player_id=?`
		args = append(args, playerID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Session
	for rows.Next() {
		var s domain.Session
		var game string
		if err := rows.Scan(&s.ID, &s.PlayerID, &game, &s.CreatedAt, &s.EndedAt); err != nil {
			return nil, err
		}
		s.Game = domain.Game(game)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r Repo) InsertRoundResult(ctx context.Context, tx *sql.Tx, res domain.RoundResult) (int64, error) {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	out, err := exec(ctx, `INSERT INTO round_results(session_id,game,round_id,round_number,label,outcome,earnings,elapsed,item_count,completed_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		res.SessionID, string(res.Game), res.RoundID, res.RoundNumber, res.Label, res.Outcome, res.Earnings, res.Elapsed, res.ItemCount, res.CompletedAt)
	if err != nil {
		return 0, fmt.Errorf("insert round result: %w", err)
	}
	return out.LastInsertId()
}

// ListRoundResults returns results in completion order.
func (r Repo) ListRoundResults(ctx context.Context, sessionID string, limit int) ([]domain.RoundResult, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if sessionID != "" {
		clauses = append(clauses, "session_id=?")
		args = append(args, sessionID)
	}
	query := fmt.Sprintf(`SELECT id,session_id,game,round_id,round_number,label,outcome,earnings,elapsed,item_count,completed_at FROM round_results WHERE %s ORDER BY id ASC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RoundResult
	for rows.Next() {
		var res domain.RoundResult
		var game string
		if err := rows.Scan(&res.ID, &res.SessionID, &game, &res.RoundID, &res.RoundNumber, &res.Label, &res.Outcome, &res.Earnings, &res.Elapsed, &res.ItemCount, &res.CompletedAt); err != nil {
			return nil, err
		}
		res.Game = domain.Game(game)
		out = append(out, res)
	}
	return out, rows.Err()
}

// SessionEarnings sums the earnings recorded for a session.
func (r Repo) SessionEarnings(ctx context.Context, sessionID string) (float64, error) {
	var total float64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(SUM(earnings),0) FROM round_results WHERE session_id=?`, sessionID).Scan(&total)
	return total, err
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.SessionID, &e.EntityKind, &entityID, &e.Payload); err != nil {
			return nil, err
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEvents returns the newest events first. A positive cursor limits the
// page to ids below it.
func (r Repo) LatestEvents(ctx context.Context, limit int, cursor int64, sessionID, evtType string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if sessionID != "" {
		clauses = append(clauses, "session_id=?")
		args = append(args, sessionID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,session_id,entity_kind,entity_id,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsAfter returns events with ids greater than the cursor in ascending
// order. An empty sessionID spans every session.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, sessionID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"id>?"}
	args := []any{cursor}
	if sessionID != "" {
		clauses = append(clauses, "session_id=?")
		args = append(args, sessionID)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,session_id,entity_kind,entity_id,payload_json FROM events WHERE %s ORDER BY id ASC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// LatestEventID returns the newest event id, 0 when the journal is empty.
// An empty sessionID spans every session.
func (r Repo) LatestEventID(ctx context.Context, sessionID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id=?`
		args = append(args, sessionID)
	}
	var id int64
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id)
	return id, err
}
