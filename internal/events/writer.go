package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeCommandApplied = "command.applied"
	TypePhaseChanged   = "phase.changed"
	TypeRoundCompleted = "round.completed"
	TypeSessionCreated = "session.created"
	TypeSessionEnded   = "session.ended"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append journals one event and returns its id.
func (w Writer) Append(ctx context.Context, ex Execer, evtType, sessionID, entityKind, entityID string, payload EventPayload) (int64, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}
	res, err := ex.ExecContext(ctx, `INSERT INTO events(ts,type,session_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339Nano), evtType, sessionID, entityKind, nullable(entityID), string(data))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
