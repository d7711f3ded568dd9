package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minigames/internal/config"
	"minigames/internal/domain"
	"minigames/internal/replay"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPlayPlannerDayRecordsReplay(t *testing.T) {
	cfg := config.Default()
	cfg.Planner.TimeScale = 20
	path := filepath.Join(t.TempDir(), "day.jsonl.zst")

	sum, err := runPlay(context.Background(), cfg, playOptions{
		Game:   domain.GamePlanner,
		Picks:  []string{"t1", "t2", "t3", "t4", "t5"},
		FPS:    30,
		Replay: path,
	}, quietLogger())
	require.NoError(t, err)
	require.Len(t, sum.Results, 1)
	assert.InDelta(t, 18.0, sum.Results[0].Outcome, 1e-9)
	assert.InDelta(t, 18.0, sum.TotalEarnings, 1e-9)
	assert.Zero(t, sum.Rejected)

	rec, err := replay.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, domain.GamePlanner, rec.Header.Game)
	require.NotEmpty(t, rec.Frames)
	assert.Equal(t, domain.PhaseResult, rec.Frames[len(rec.Frames)-1].Snapshot.Phase)
	seq, err := rec.Verify(context.Background())
	require.NoError(t, err)
	assert.Zero(t, seq)
}

func TestPlayPlannerIncompletePlanFails(t *testing.T) {
	_, err := runPlay(context.Background(), config.Default(), playOptions{
		Game:  domain.GamePlanner,
		Picks: []string{"t1"},
		FPS:   30,
	}, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Dia 1")
}

func TestPlayTrayGreedyFill(t *testing.T) {
	cfg := config.Default()
	cfg.Tray.Generator.MaxItems = 0
	cfg.Tray.Generator.MinItems = 0

	sum, err := runPlay(context.Background(), cfg, playOptions{Game: domain.GameTray, FPS: 60}, quietLogger())
	require.NoError(t, err)
	require.Len(t, sum.Results, 1)
	// bottle no longer fits once cup..plate fill the nine slots
	assert.Equal(t, 1, sum.Rejected)
	assert.Equal(t, 5, sum.Results[0].ItemCount)
	assert.InDelta(t, 33.0, sum.Results[0].Earnings, 1e-9)

	var out bytes.Buffer
	renderSummary(&out, sum)
	assert.Contains(t, out.String(), "Mesa 1")
}

func TestPlayTrayMultipleRounds(t *testing.T) {
	sum, err := runPlay(context.Background(), config.Default(), playOptions{
		Game: domain.GameTray, Rounds: 2, FPS: 60, Sprint: true,
	}, quietLogger())
	require.NoError(t, err)
	require.Len(t, sum.Results, 2)
	assert.Equal(t, 1, sum.Results[0].RoundNumber)
	assert.Equal(t, 2, sum.Results[1].RoundNumber)
	assert.InDelta(t, sum.Results[0].Earnings+sum.Results[1].Earnings, sum.TotalEarnings, 1e-9)
}

func TestPlayRejectsZeroFPS(t *testing.T) {
	_, err := runPlay(context.Background(), config.Default(), playOptions{Game: domain.GameTray}, quietLogger())
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger("debug", "json")
	require.NoError(t, err)
	_, err = newLogger("loud", "text")
	require.Error(t, err)
	_, err = newLogger("info", "xml")
	require.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b,"))
	assert.Nil(t, splitList(""))
}
