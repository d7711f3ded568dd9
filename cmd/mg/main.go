package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"minigames/internal/app"
	"minigames/internal/config"
	"minigames/internal/domain"
	"minigames/internal/engine"
)

var rootCmd = &cobra.Command{
	Use:   "mg",
	Short: "Minigames CLI",
	Long: `mg runs the planner and tray minigames headless or behind an HTTP API.
- Planner: drop tasks on an 8 hour day, then watch the day play out. Each
  task earns duration x relevance.
- Tray: load objects onto a tray with limited slots and walk it across the
  floor. Heavier trays are slower; arriving earns the value of the load.
- Rounds: every result leads to the next round ("Dia N" / "Mesa N").
Rounds and tuning come from minigames.yml in the workspace (see 'mg config init').`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadDotEnv(viper.GetString("workspace")); err != nil {
			return err
		}
		logger, err := newLogger(viper.GetString("log-level"), viper.GetString("log-format"))
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("MINIGAMES")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default <workspace>/minigames.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	for _, name := range []string{"workspace", "config", "json", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(roundsCmd())
	rootCmd.AddCommand(playCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(serveCmd())
}

// loadDotEnv reads <workspace>/.env without overriding variables already set.
func loadDotEnv(workspace string) error {
	path := filepath.Join(workspace, ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", format)
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect round and tuning config",
		Long:  "Config holds the planner days, tray tables, speed model, generator and server tuning. Missing keys fall back to the built-in defaults.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if viper.GetBool("json") {
				msg := ""
				if err != nil {
					msg = err.Error()
				}
				return printJSON(map[string]any{"ok": err == nil, "error": msg})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default minigames.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func roundsCmd() *cobra.Command {
	rounds := &cobra.Command{Use: "rounds", Short: "Inspect round progression"}
	rounds.AddCommand(roundsListCmd())
	return rounds
}

func roundsListCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:       "list <planner|tray>",
		Short:     "List the first rounds a player will see",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(domain.GamePlanner), string(domain.GameTray)},
		RunE: func(cmd *cobra.Command, args []string) error {
			game, err := parseGame(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			p, err := engine.ProgressionFromConfig(cfg, game)
			if err != nil {
				return err
			}
			out := []domain.Round{p.Current()}
			for len(out) < count {
				r, err := p.Advance()
				if err != nil {
					return err
				}
				out = append(out, r)
			}
			if viper.GetBool("json") {
				return printJSON(out)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"#", "Label", "Capacity", "Max Weight", "Items"})
			for i, r := range out {
				ids := make([]string, 0, len(r.Items))
				for _, it := range r.Items {
					ids = append(ids, fmt.Sprintf("%s(%g)", it.ID, it.Cost))
				}
				tw.AppendRow(table.Row{i + 1, r.Label, r.Capacity, r.MaxWeight, strings.Join(ids, " ")})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 3, "number of rounds")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	return app.ResolveConfig(viper.GetString("workspace"), viper.GetString("config"))
}

func parseGame(s string) (domain.Game, error) {
	g := domain.Game(strings.ToLower(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", fmt.Errorf("unknown game %q (want planner or tray)", s)
	}
	return g, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
