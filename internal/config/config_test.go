package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minigames/internal/domain"
	"minigames/internal/sim"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	rounds := cfg.PlannerRounds()
	require.Len(t, rounds, 1)
	assert.Equal(t, "Dia 1", rounds[0].Label)
	assert.Equal(t, 8.0, rounds[0].Capacity)
	assert.Len(t, rounds[0].Items, 5)
	assert.Equal(t, 0.25, cfg.Planner.TimeScale)
	assert.Empty(t, cfg.TrayRounds())
}

func TestGenerateDefaultPassesSchema(t *testing.T) {
	_, err := FromYAML([]byte(GenerateDefault()))
	require.NoError(t, err)
}

func TestEmptyDocumentUsesDefaults(t *testing.T) {
	cfg, err := FromYAML(nil)
	require.NoError(t, err)
	assert.Equal(t, 9.0, cfg.Tray.SlotLimit)
	assert.Equal(t, 30, cfg.Server.FrameRateHz)
	rounds := cfg.PlannerRounds()
	require.Len(t, rounds, 1)
	assert.Equal(t, "Dia 1", rounds[0].Label)
}

func TestExplicitZerosAreKept(t *testing.T) {
	doc := "server:\n  frame_rate_hz: 0\n  commands_per_second: 0\n  session_idle_minutes: 0\n"
	cfg, err := FromYAML([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Server.FrameRateHz)
	assert.Equal(t, 0.0, cfg.Server.CommandsPerSecond)
	assert.Equal(t, 0, cfg.Server.SessionIdleMinutes)
	assert.Equal(t, 40, cfg.Server.CommandBurst)
}

func TestPartialBlocksKeepOtherDefaults(t *testing.T) {
	doc := `tray:
  speed:
    mode: fixed
    sprint_multiplier: 2
  generator:
    min_items: 2
`
	cfg, err := FromYAML([]byte(doc))
	require.NoError(t, err)
	speed := cfg.Tray.Speed
	assert.Equal(t, sim.SpeedFixed, speed.Mode)
	assert.Equal(t, 2.0, speed.SprintMultiplier)
	assert.Equal(t, 40.0, speed.Base)
	assert.Equal(t, 8.0, speed.Min)

	gen := cfg.Tray.Generator
	assert.Equal(t, 2, gen.MinItems)
	assert.Equal(t, 8, gen.MaxItems)
	assert.Equal(t, int64(7), gen.Seed)
}

func TestSchemaRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown key":       "planner:\n  speed: 3\n",
		"negative duration": "planner:\n  rounds:\n    - tasks:\n        - { id: a, duration: -1 }\n",
		"bad speed mode":    "tray:\n  speed:\n    mode: rocket\n",
		"webhook no url":    "webhooks:\n  - events: [round.completed]\n",
		"relevance range":   "planner:\n  rounds:\n    - tasks:\n        - { id: a, duration: 1, relevance: 7 }\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config schema")
		})
	}
}

func TestValidateRejectsDuplicateTasks(t *testing.T) {
	doc := "planner:\n  rounds:\n    - tasks:\n        - { id: a, duration: 1 }\n        - { id: a, duration: 2 }\n"
	_, err := FromYAML([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate item a")
}

func TestTrayRoundsInheritLimits(t *testing.T) {
	doc := `tray:
  slot_limit: 6
  max_weight: 10
  rounds:
    - items:
        - { id: cup, size: 1, weight: 0.5, value: 3 }
    - label: "Final"
      slot_limit: 4
      items:
        - { id: pot, size: 4, weight: 3, value: 12, shape: teapot }
`
	cfg, err := FromYAML([]byte(doc))
	require.NoError(t, err)
	rounds := cfg.TrayRounds()
	require.Len(t, rounds, 2)
	assert.Equal(t, "Mesa 1", rounds[0].Label)
	assert.Equal(t, 6.0, rounds[0].Capacity)
	assert.Equal(t, 10.0, rounds[0].MaxWeight)
	assert.Equal(t, domain.GameTray, rounds[1].Game)
	assert.Equal(t, "Final", rounds[1].Label)
	assert.Equal(t, 4.0, rounds[1].Capacity)
	assert.Equal(t, "teapot", rounds[1].Items[0].Shape)
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(dir)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "mg config init"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "minigames.yml"), []byte("server:\n  frame_rate_hz: 60\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Server.FrameRateHz)
	assert.Equal(t, 20.0, cfg.Server.CommandsPerSecond)
}

func TestJSONOmitsWebhookSecret(t *testing.T) {
	cfg := Default()
	cfg.Webhooks = []WebhookConfig{{URL: "http://example.test/hook", Secret: "s3cret"}}
	raw, err := cfg.JSON()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cret")
	assert.Contains(t, string(raw), "example.test")
}

func TestClocks(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 0.25, cfg.PlannerClock().Scale)
	assert.Equal(t, int64(100), cfg.TrayClock().MaxTick.Milliseconds())
}
