package replay_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minigames/internal/config"
	"minigames/internal/domain"
	"minigames/internal/engine"
	"minigames/internal/replay"
)

func record(t *testing.T, path string, cmds []engine.Command) {
	t.Helper()
	cfg := config.Default()
	raw, err := cfg.JSON()
	require.NoError(t, err)
	w, err := replay.Create(path, replay.Header{Game: domain.GameTray, CreatedAt: "2024-01-01T00:00:00Z", Config: json.RawMessage(raw)})
	require.NoError(t, err)
	g, err := engine.NewFromConfig(cfg, domain.GameTray, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()
	first := g.Snapshot().Available[0].ID
	cmds = append([]engine.Command{engine.Select(first)}, cmds...)
	for _, c := range cmds {
		err := g.Apply(ctx, c)
		require.NoError(t, w.Record(c, err, g.Snapshot()))
	}
	require.NoError(t, w.Close())
}

func trayRun() []engine.Command {
	cmds := []engine.Command{engine.Select("missing"), engine.DirectionalHold(true), engine.Start()}
	for i := 0; i < 40; i++ {
		cmds = append(cmds, engine.Tick(100*time.Millisecond))
	}
	return cmds
}

func TestRoundTripAndVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "tray.jsonl.zst")
	record(t, path, trayRun())

	rec, err := replay.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, replay.Format, rec.Header.Format)
	assert.Equal(t, domain.GameTray, rec.Header.Game)
	require.Len(t, rec.Frames, 44)
	assert.Equal(t, int64(1), rec.Frames[0].Seq)
	assert.NotEmpty(t, rec.Frames[1].Error, "rejections are recorded")
	assert.Equal(t, domain.PhaseExecution, rec.Frames[3].Snapshot.Phase)

	seq, err := rec.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)
}

func TestVerifyDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tray.jsonl.zst")
	record(t, path, trayRun())
	rec, err := replay.ReadFile(path)
	require.NoError(t, err)
	rec.Frames[10].Snapshot.TotalEarnings = 999
	seq, err := rec.Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rec.Frames[10].Seq, seq)
}

func TestWriterRejectsAfterClose(t *testing.T) {
	w, err := replay.Create(filepath.Join(t.TempDir(), "x.jsonl.zst"), replay.Header{Game: domain.GamePlanner})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Error(t, w.Record(engine.Reset(), nil, engine.Snapshot{}))
}
