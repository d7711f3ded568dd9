package server

import (
	"context"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minigames/internal/config"
	"minigames/internal/db"
	"minigames/internal/domain"
	"minigames/internal/engine"
	"minigames/internal/migrate"
	"minigames/internal/repo"
)

func newTestHost(t *testing.T, cfg *config.Config) *Host {
	t.Helper()
	conn, err := db.Open(db.Config{Name: "host-" + xid.New().String()})
	require.NoError(t, err)
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	h, err := NewHost(HostConfig{DB: conn, Config: cfg})
	require.NoError(t, err)
	t.Cleanup(func() {
		h.Shutdown(context.Background())
		conn.Close()
	})
	return h
}

func TestFrameLoopTicksLiveSessions(t *testing.T) {
	cfg := testConfig()
	cfg.Server.FrameRateHz = 100
	h := newTestHost(t, cfg)
	ctx := context.Background()

	s, _, err := h.Create(ctx, domain.GameTray, "ana")
	require.NoError(t, err)
	snaps, cancel, err := h.Subscribe(s.Info.ID, "ana")
	require.NoError(t, err)
	defer cancel()

	first := <-snaps
	deadline := time.After(3 * time.Second)
	for {
		select {
		case snap := <-snaps:
			if snap.Frame > first.Frame+2 {
				return
			}
		case <-deadline:
			t.Fatalf("frame loop did not advance past frame %d", first.Frame)
		}
	}
}

func TestTrayWalkCompletesWithHeldInput(t *testing.T) {
	cfg := testConfig()
	cfg.Tray.TimeScale = 50
	h := newTestHost(t, cfg)
	ctx := context.Background()

	s, _, err := h.Create(ctx, domain.GameTray, "ana")
	require.NoError(t, err)
	id := s.Info.ID
	for _, cmd := range []engine.Command{engine.Select("cup"), engine.Select("bowl"), engine.DirectionalHold(true), engine.Start()} {
		_, err := h.Apply(ctx, id, "ana", cmd)
		require.NoError(t, err, cmd.Kind)
	}
	var snap engine.Snapshot
	for i := 0; i < 200; i++ {
		snap, err = h.Apply(ctx, id, "ana", engine.Tick(100*time.Millisecond))
		require.NoError(t, err)
		if snap.Phase == domain.PhaseResult {
			break
		}
	}
	require.Equal(t, domain.PhaseResult, snap.Phase)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 9.0, snap.Result.Earnings)

	results, err := h.Repo().ListRoundResults(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 9.0, results[0].Earnings)
}

func TestReapEndsIdleSessions(t *testing.T) {
	h := newTestHost(t, testConfig())
	ctx := context.Background()

	s, _, err := h.Create(ctx, domain.GamePlanner, "ana")
	require.NoError(t, err)
	h.reap(ctx, time.Now(), time.Hour)
	assert.Len(t, h.Sessions("ana"), 1)

	h.reap(ctx, time.Now().Add(2*time.Hour), time.Hour)
	assert.Empty(t, h.Sessions("ana"))
	info, snap, err := h.Session(ctx, s.Info.ID, "ana")
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.NotEmpty(t, info.EndedAt)

	_, err = h.Apply(ctx, s.Info.ID, "ana", engine.Reset())
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRateLimitLeavesGameUntouched(t *testing.T) {
	cfg := testConfig()
	cfg.Server.CommandsPerSecond = 0.01
	cfg.Server.CommandBurst = 1
	h := newTestHost(t, cfg)
	ctx := context.Background()

	s, _, err := h.Create(ctx, domain.GamePlanner, "ana")
	require.NoError(t, err)
	_, err = h.Apply(ctx, s.Info.ID, "ana", engine.Select("t1"))
	require.NoError(t, err)
	snap, err := h.Apply(ctx, s.Info.ID, "ana", engine.Select("t2"))
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Len(t, snap.Placements, 1)
}

func TestClientTicksBypassCommandLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.CommandsPerSecond = 0.01
	cfg.Server.CommandBurst = 1
	h := newTestHost(t, cfg)
	ctx := context.Background()

	s, _, err := h.Create(ctx, domain.GamePlanner, "ana")
	require.NoError(t, err)
	_, err = h.Apply(ctx, s.Info.ID, "ana", engine.Select("t1"))
	require.NoError(t, err)
	var snap engine.Snapshot
	for i := 0; i < 30; i++ {
		snap, err = h.Apply(ctx, s.Info.ID, "ana", engine.Tick(33*time.Millisecond))
		require.NoError(t, err)
	}
	assert.Equal(t, int64(30), snap.Frame)
	_, err = h.Apply(ctx, s.Info.ID, "ana", engine.Select("t2"))
	assert.ErrorIs(t, err, ErrRateLimited)
}
