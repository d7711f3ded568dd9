package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minigames/internal/config"
	"minigames/internal/db"
	"minigames/internal/domain"
	"minigames/internal/events"
	"minigames/internal/migrate"
	"minigames/internal/repo"
)

type delivery struct {
	header http.Header
	body   webhookEvent
	raw    []byte
}

type receiver struct {
	mu   sync.Mutex
	got  []delivery
	fail bool
}

func (rc *receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.fail {
		http.Error(w, "down", http.StatusServiceUnavailable)
		return
	}
	var evt webhookEvent
	_ = json.Unmarshal(data, &evt)
	rc.got = append(rc.got, delivery{header: r.Header.Clone(), body: evt, raw: data})
	w.WriteHeader(http.StatusNoContent)
}

func (rc *receiver) deliveries() []delivery {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]delivery(nil), rc.got...)
}

func newJournal(t *testing.T) (repo.Repo, string) {
	t.Helper()
	conn, err := db.Open(db.Config{Name: "hooks-" + xid.New().String()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	r := repo.Repo{DB: conn}
	sessionID := xid.New().String()
	require.NoError(t, r.InsertSession(context.Background(), domain.Session{
		ID: sessionID, PlayerID: "ana", Game: domain.GamePlanner, CreatedAt: "2026-01-01T00:00:00Z",
	}))
	return r, sessionID
}

func appendEvent(t *testing.T, r repo.Repo, sessionID, evtType string) int64 {
	t.Helper()
	id, err := events.Writer{}.Append(context.Background(), r.DB, evtType, sessionID, "round", "1", events.EventPayload{"outcome": 18})
	require.NoError(t, err)
	return id
}

func TestWebhookDeliversFilteredEventsWithSignature(t *testing.T) {
	r, sessionID := newJournal(t)
	rc := &receiver{}
	hook := httptest.NewServer(rc)
	defer hook.Close()

	appendEvent(t, r, sessionID, events.TypeRoundCompleted) // before start, skipped
	d := newWebhookDispatcher(r, []config.WebhookConfig{{
		URL:    hook.URL,
		Events: []string{events.TypeRoundCompleted},
		Secret: "s3cret",
	}}, slog.Default())
	require.NotNil(t, d)
	ctx := context.Background()
	d.cursorFor(ctx, 0)

	appendEvent(t, r, sessionID, events.TypeCommandApplied)
	want := appendEvent(t, r, sessionID, events.TypeRoundCompleted)
	d.dispatchAll(ctx)

	got := rc.deliveries()
	require.Len(t, got, 1)
	assert.Equal(t, want, got[0].body.ID)
	assert.Equal(t, sessionID, got[0].body.SessionID)
	assert.Equal(t, events.TypeRoundCompleted, got[0].header.Get("X-Minigames-Event"))
	assert.Equal(t, sessionID, got[0].header.Get("X-Minigames-Session"))
	assert.Equal(t, "sha256="+signPayload("s3cret", got[0].raw), got[0].header.Get("X-Minigames-Signature"))
	assert.JSONEq(t, `{"outcome":18}`, string(got[0].body.Payload))

	d.dispatchAll(ctx)
	assert.Len(t, rc.deliveries(), 1, "cursor must not replay delivered events")
}

func TestWebhookRetriesAfterFailure(t *testing.T) {
	r, sessionID := newJournal(t)
	rc := &receiver{fail: true}
	hook := httptest.NewServer(rc)
	defer hook.Close()

	d := newWebhookDispatcher(r, []config.WebhookConfig{{URL: hook.URL}}, slog.Default())
	ctx := context.Background()
	d.cursorFor(ctx, 0)
	appendEvent(t, r, sessionID, events.TypeRoundCompleted)

	d.dispatchAll(ctx)
	assert.Empty(t, rc.deliveries())

	rc.mu.Lock()
	rc.fail = false
	rc.mu.Unlock()
	d.dispatchAll(ctx)
	assert.Len(t, rc.deliveries(), 1)
}

func TestWebhookDispatcherDisabled(t *testing.T) {
	r, _ := newJournal(t)
	off := false
	assert.Nil(t, newWebhookDispatcher(r, nil, slog.Default()))
	assert.Nil(t, newWebhookDispatcher(r, []config.WebhookConfig{{URL: "http://x", Enabled: &off}}, slog.Default()))
	assert.Nil(t, newWebhookDispatcher(r, []config.WebhookConfig{{URL: " "}}, slog.Default()))
}

func TestEventFilter(t *testing.T) {
	all := newEventFilter([]string{" ", ""})
	assert.True(t, all.match("anything"))
	some := newEventFilter([]string{"round.completed"})
	assert.True(t, some.match("round.completed"))
	assert.False(t, some.match("command.applied"))
}
