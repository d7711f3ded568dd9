package minigamessdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minigames/internal/config"
	"minigames/internal/db"
	"minigames/internal/migrate"
	"minigames/internal/server"
	minigamessdk "minigames/sdk/go"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	conn, err := db.Open(db.Config{Name: "sdk-" + xid.New().String()})
	require.NoError(t, err)
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	cfg := config.Default()
	cfg.Server.FrameRateHz = 0
	cfg.Server.CommandsPerSecond = 0
	cfg.Planner.TimeScale = 20
	host, err := server.NewHost(server.HostConfig{DB: conn, Config: cfg})
	require.NoError(t, err)
	h, err := server.New(server.Config{Host: host, Auth: server.AuthConfig{JWTSecret: "sdk", EnableDevLogin: true}})
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		srv.Close()
		host.Shutdown(context.Background())
		conn.Close()
	})
	return srv
}

func TestClientPlaysPlannerDay(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	c := minigamessdk.New(srv.URL)

	_, err := c.DevLogin(ctx, "ana")
	require.NoError(t, err)
	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ana", me.PlayerID)

	s, err := c.CreateSession(ctx, "planner")
	require.NoError(t, err)
	require.NotNil(t, s.Snapshot)
	id := s.Session.ID

	for _, task := range []string{"t1", "t2", "t3", "t4", "t5"} {
		res, err := c.Select(ctx, id, task)
		require.NoError(t, err)
		require.True(t, res.Applied, res.Reason)
	}
	res, err := c.Start(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "execution", res.Snapshot.Phase)
	for i := 0; i < 20 && res.Snapshot.Phase == "execution"; i++ {
		res, err = c.Tick(ctx, id, 100*time.Millisecond)
		require.NoError(t, err)
	}
	require.NotNil(t, res.Snapshot.Result)
	assert.Equal(t, 18.0, res.Snapshot.Result.Display)

	results, err := c.Results(ctx, id)
	require.NoError(t, err)
	require.Len(t, results.Items, 1)
	assert.Equal(t, 18.0, results.TotalEarnings)

	page, err := c.EventsPage(ctx, id, 1, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.NotEmpty(t, page.NextCursor)

	require.NoError(t, c.EndSession(ctx, id))
	live, err := c.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestClientSurfacesErrorEnvelope(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	c := minigamessdk.New(srv.URL)

	_, err := c.CreateSession(ctx, "planner")
	var apiErr *minigamessdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "unauthorized", apiErr.Code)

	_, err = c.DevLogin(ctx, "ana")
	require.NoError(t, err)
	_, err = c.Session(ctx, "missing")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
}
