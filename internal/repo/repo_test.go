package repo_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minigames/internal/db"
	"minigames/internal/domain"
	"minigames/internal/events"
	"minigames/internal/migrate"
	"minigames/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Name: "repo-" + xid.New().String()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	applied, err := migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	require.NotEmpty(t, applied)
	return repo.Repo{DB: conn}
}

func TestMigrateIsIdempotent(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	v, err := migrate.Version(ctx, r.DB)
	require.NoError(t, err)
	ms, err := migrate.Migrations()
	require.NoError(t, err)
	assert.Equal(t, ms[len(ms)-1].Version, v)

	applied, err := migrate.Migrate(ctx, r.DB)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestSessionLifecycle(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	s := domain.Session{ID: "s1", PlayerID: "ana", Game: domain.GameTray, CreatedAt: "2024-01-01T00:00:00Z"}
	require.NoError(t, r.InsertSession(ctx, s))

	got, err := r.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, s, got)

	require.NoError(t, r.EndSession(ctx, "s1", "2024-01-01T01:00:00Z"))
	assert.True(t, errors.Is(r.EndSession(ctx, "s1", "x"), repo.ErrNotFound))

	_, err = r.GetSession(ctx, "nope")
	assert.True(t, errors.Is(err, repo.ErrNotFound))

	list, err := r.ListSessions(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "2024-01-01T01:00:00Z", list[0].EndedAt)
}

func TestRoundResultsLedger(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	require.NoError(t, r.InsertSession(ctx, domain.Session{ID: "s1", PlayerID: "p", Game: domain.GamePlanner, CreatedAt: "2024-01-01T00:00:00Z"}))
	for i, outcome := range []float64{18, 12.5} {
		_, err := r.InsertRoundResult(ctx, nil, domain.RoundResult{
			SessionID: "s1", Game: domain.GamePlanner, RoundID: 1, RoundNumber: i + 1,
			Label: "Dia 1", Outcome: outcome, Earnings: outcome, Elapsed: 8, ItemCount: 5,
			CompletedAt: "2024-01-01T00:00:00Z",
		})
		require.NoError(t, err)
	}
	results, err := r.ListRoundResults(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[1].RoundNumber)
	total, err := r.SessionEarnings(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 30.5, total)

	_, err = r.InsertRoundResult(ctx, nil, domain.RoundResult{SessionID: "ghost", Game: domain.GamePlanner, Label: "x", CompletedAt: "t"})
	require.Error(t, err, "foreign key to sessions is enforced")
}

func TestEventsJournal(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	w := events.Writer{}
	var last int64
	for _, typ := range []string{events.TypeSessionCreated, events.TypeCommandApplied, events.TypePhaseChanged} {
		id, err := w.Append(ctx, r.DB, typ, "s1", "session", "s1", events.EventPayload{"n": 1})
		require.NoError(t, err)
		assert.Greater(t, id, last)
		last = id
	}
	_, err := w.Append(ctx, r.DB, events.TypeCommandApplied, "s2", "command", "", nil)
	require.NoError(t, err)

	latest, err := r.LatestEvents(ctx, 2, 0, "s1", "")
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, events.TypePhaseChanged, latest[0].Type)

	after, err := r.EventsAfter(ctx, 10, latest[1].ID, "s1")
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.JSONEq(t, `{"n":1}`, after[0].Payload)

	maxID, err := r.LatestEventID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, last, maxID)

	typed, err := r.LatestEvents(ctx, 10, 0, "", events.TypeCommandApplied)
	require.NoError(t, err)
	assert.Len(t, typed, 2)
}

func TestAPIKeys(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	k, err := r.RegisterAPIKey(ctx, "ana", "laptop", " secret ")
	require.NoError(t, err)
	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("secret"))
	require.NoError(t, err)
	assert.Equal(t, k.ID, got.ID)
	assert.Equal(t, "ana", got.PlayerID)

	_, err = r.GetAPIKeyByHash(ctx, repo.HashAPIKey("other"))
	assert.True(t, errors.Is(err, repo.ErrNotFound))

	keys, err := r.ListAPIKeys(ctx, "ana")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
	require.NoError(t, r.DeleteAPIKey(ctx, k.ID))
	keys, err = r.ListAPIKeys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = r.RegisterAPIKey(ctx, "", "x", "k")
	require.Error(t, err)
}
