package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"minigames/internal/domain"
	"minigames/internal/sim"
)

// Config models minigames.yml.
type Config struct {
	Planner  PlannerConfig   `yaml:"planner" json:"planner"`
	Tray     TrayConfig      `yaml:"tray" json:"tray"`
	Server   ServerConfig    `yaml:"server" json:"server"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks,omitempty"`
}

type PlannerConfig struct {
	TimeScale          float64        `yaml:"time_scale" json:"time_scale"`
	MaxTickMs          int            `yaml:"max_tick_ms" json:"max_tick_ms"`
	Epsilon            float64        `yaml:"epsilon" json:"epsilon"`
	AutoAdvanceSeconds float64        `yaml:"auto_advance_seconds" json:"auto_advance_seconds"`
	Rounds             []PlannerRound `yaml:"rounds" json:"rounds"`
}

type PlannerRound struct {
	ID             int           `yaml:"id" json:"id"`
	Label          string        `yaml:"label" json:"label"`
	DayLengthHours float64       `yaml:"day_length_hours" json:"day_length_hours"`
	Tasks          []PlannerTask `yaml:"tasks" json:"tasks"`
}

type PlannerTask struct {
	ID        string  `yaml:"id" json:"id"`
	Title     string  `yaml:"title" json:"title"`
	Duration  float64 `yaml:"duration" json:"duration"`
	Relevance float64 `yaml:"relevance" json:"relevance"`
}

type TrayConfig struct {
	SlotLimit          float64         `yaml:"slot_limit" json:"slot_limit"`
	MaxWeight          float64         `yaml:"max_weight" json:"max_weight"`
	TargetDistance     float64         `yaml:"target_distance" json:"target_distance"`
	TimeScale          float64         `yaml:"time_scale" json:"time_scale"`
	MaxTickMs          int             `yaml:"max_tick_ms" json:"max_tick_ms"`
	AutoAdvanceSeconds float64         `yaml:"auto_advance_seconds" json:"auto_advance_seconds"`
	Speed              sim.SpeedModel  `yaml:"speed" json:"speed"`
	Generator          GeneratorConfig `yaml:"generator" json:"generator"`
	Rounds             []TrayRound     `yaml:"rounds" json:"rounds"`
}

type GeneratorConfig struct {
	Seed      int64   `yaml:"seed" json:"seed"`
	MinItems  int     `yaml:"min_items" json:"min_items"`
	MaxItems  int     `yaml:"max_items" json:"max_items"`
	MaxSize   int     `yaml:"max_size" json:"max_size"`
	MaxHeight int     `yaml:"max_height" json:"max_height"`
	MaxWeight float64 `yaml:"max_weight" json:"max_weight"`
	MaxValue  float64 `yaml:"max_value" json:"max_value"`
}

type TrayRound struct {
	ID        int        `yaml:"id" json:"id"`
	Label     string     `yaml:"label" json:"label"`
	SlotLimit float64    `yaml:"slot_limit" json:"slot_limit"`
	MaxWeight float64    `yaml:"max_weight" json:"max_weight"`
	Items     []TrayItem `yaml:"items" json:"items"`
}

type TrayItem struct {
	ID       string  `yaml:"id" json:"id"`
	Title    string  `yaml:"title" json:"title"`
	Size     float64 `yaml:"size" json:"size"`
	Height   int     `yaml:"height" json:"height"`
	Weight   float64 `yaml:"weight" json:"weight"`
	Value    float64 `yaml:"value" json:"value"`
	Shape    string  `yaml:"shape" json:"shape"`
	Material string  `yaml:"material" json:"material"`
}

type ServerConfig struct {
	FrameRateHz        int     `yaml:"frame_rate_hz" json:"frame_rate_hz"`
	CommandsPerSecond  float64 `yaml:"commands_per_second" json:"commands_per_second"`
	CommandBurst       int     `yaml:"command_burst" json:"command_burst"`
	SessionIdleMinutes int     `yaml:"session_idle_minutes" json:"session_idle_minutes"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Secret         string   `yaml:"secret" json:"-"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with mg config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "minigames.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses, schema-checks and validates config from raw YAML bytes.
// The document is decoded over the defaults, so absent keys keep their
// default and explicit zeros are kept as written.
func FromYAML(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Planner.TimeScale <= 0 {
		return fmt.Errorf("planner.time_scale must be positive")
	}
	if c.Planner.MaxTickMs <= 0 {
		return fmt.Errorf("planner.max_tick_ms must be positive")
	}
	for _, r := range c.PlannerRounds() {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("planner.rounds: %w", err)
		}
	}
	if c.Tray.SlotLimit <= 0 {
		return fmt.Errorf("tray.slot_limit must be positive")
	}
	if c.Tray.TargetDistance <= 0 {
		return fmt.Errorf("tray.target_distance must be positive")
	}
	if err := c.Tray.Speed.Validate(); err != nil {
		return fmt.Errorf("tray.speed: %w", err)
	}
	g := c.Tray.Generator
	if g.MinItems < 0 || g.MaxItems < g.MinItems {
		return fmt.Errorf("tray.generator: min_items/max_items out of order")
	}
	if g.MaxSize <= 0 || g.MaxHeight <= 0 {
		return fmt.Errorf("tray.generator: max_size and max_height must be positive")
	}
	for _, r := range c.TrayRounds() {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("tray.rounds: %w", err)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
	}
	return nil
}

// PlannerRounds converts the configured planner table into rounds.
func (c *Config) PlannerRounds() []domain.Round {
	out := make([]domain.Round, 0, len(c.Planner.Rounds))
	for i, pr := range c.Planner.Rounds {
		r := domain.Round{
			ID:       pr.ID,
			Label:    pr.Label,
			Game:     domain.GamePlanner,
			Capacity: pr.DayLengthHours,
		}
		if r.ID == 0 {
			r.ID = i + 1
		}
		if r.Label == "" {
			r.Label = fmt.Sprintf("Dia %d", r.ID)
		}
		if r.Capacity == 0 {
			r.Capacity = 8
		}
		for _, t := range pr.Tasks {
			r.Items = append(r.Items, domain.Item{
				ID:    t.ID,
				Title: t.Title,
				Cost:  t.Duration,
				Value: t.Relevance,
			})
		}
		out = append(out, r)
	}
	return out
}

// TrayRounds converts the configured tray presets into rounds.
func (c *Config) TrayRounds() []domain.Round {
	out := make([]domain.Round, 0, len(c.Tray.Rounds))
	for i, tr := range c.Tray.Rounds {
		r := domain.Round{
			ID:        tr.ID,
			Label:     tr.Label,
			Game:      domain.GameTray,
			Capacity:  tr.SlotLimit,
			MaxWeight: tr.MaxWeight,
		}
		if r.ID == 0 {
			r.ID = i + 1
		}
		if r.Label == "" {
			r.Label = fmt.Sprintf("Mesa %d", r.ID)
		}
		if r.Capacity == 0 {
			r.Capacity = c.Tray.SlotLimit
		}
		if r.MaxWeight == 0 {
			r.MaxWeight = c.Tray.MaxWeight
		}
		for _, it := range tr.Items {
			r.Items = append(r.Items, domain.Item{
				ID:       it.ID,
				Title:    it.Title,
				Cost:     it.Size,
				Value:    it.Value,
				Weight:   it.Weight,
				Height:   it.Height,
				Shape:    it.Shape,
				Material: it.Material,
			})
		}
		out = append(out, r)
	}
	return out
}

func (c *Config) PlannerClock() sim.Clock {
	return sim.Clock{Scale: c.Planner.TimeScale, MaxTick: time.Duration(c.Planner.MaxTickMs) * time.Millisecond}
}

func (c *Config) TrayClock() sim.Clock {
	return sim.Clock{Scale: c.Tray.TimeScale, MaxTick: time.Duration(c.Tray.MaxTickMs) * time.Millisecond}
}

// JSON renders the effective config, without secrets.
func (c *Config) JSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

const defaultTemplate = `planner:
  time_scale: 0.25
  max_tick_ms: 100
  epsilon: 0.000001
  auto_advance_seconds: 0
  rounds:
    - id: 1
      label: "Dia 1"
      day_length_hours: 8
      tasks:
        - { id: t1, title: "Planejar campanha mensal", duration: 2, relevance: 3 }
        - { id: t2, title: "Responder emails", duration: 1, relevance: 1 }
        - { id: t3, title: "Revisar relatorio financeiro", duration: 2, relevance: 2 }
        - { id: t4, title: "Preparar apresentacao", duration: 2, relevance: 3 }
        - { id: t5, title: "Atualizar planilha", duration: 1, relevance: 1 }

tray:
  slot_limit: 9
  max_weight: 0
  target_distance: 100
  time_scale: 1
  max_tick_ms: 100
  auto_advance_seconds: 3
  speed:
    mode: weighted
    base: 40
    min: 8
    weight_penalty: 2.5
    max_weight_influence: 12
    sprint_multiplier: 1.6
  generator:
    seed: 7
    min_items: 4
    max_items: 8
    max_size: 4
    max_height: 3
    max_weight: 4
    max_value: 20

server:
  # 0 leaves ticking to the client; ticks then bypass the command limit
  frame_rate_hz: 30
  # 0 disables the limit
  commands_per_second: 20
  command_burst: 40
  # 0 keeps idle sessions alive
  session_idle_minutes: 30
`
