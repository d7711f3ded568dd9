package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/xid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"minigames/internal/app"
	"minigames/internal/config"
	"minigames/internal/db"
	"minigames/internal/domain"
	"minigames/internal/engine"
	"minigames/internal/migrate"
	"minigames/internal/replay"
)

const defaultMaxFrames = 200000

// playOptions drives one headless run.
type playOptions struct {
	Game      domain.Game
	Picks     []string
	Rounds    int
	FPS       int
	Sprint    bool
	Replay    string
	MaxFrames int64
	Player    string
}

type playSummary struct {
	SessionID     string               `json:"session_id"`
	Game          domain.Game          `json:"game"`
	Results       []domain.RoundResult `json:"results"`
	TotalEarnings float64              `json:"total_earnings"`
	Frames        int64                `json:"frames"`
	Rejected      int                  `json:"rejected"`
}

func playCmd() *cobra.Command {
	var opts playOptions
	var picks string
	cmd := &cobra.Command{
		Use:       "play <planner|tray>",
		Short:     "Play rounds headless with a fixed pick order",
		Long:      "Selects the --pick items in order (or every catalog item that fits when omitted), starts execution and ticks at --fps until the result screen. Tray runs hold the walk input for the whole trip.",
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
			opts.Game = game
			opts.Picks = splitList(picks)
			sum, err := runPlay(cmd.Context(), cfg, opts, slog.Default())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(sum)
			}
			renderSummary(os.Stdout, sum)
			return nil
		},
	}
	cmd.Flags().StringVar(&picks, "pick", "", "comma-separated item ids in placement order")
	cmd.Flags().IntVar(&opts.Rounds, "rounds", 1, "rounds to play")
	cmd.Flags().IntVar(&opts.FPS, "fps", 60, "simulated frames per second")
	cmd.Flags().BoolVar(&opts.Sprint, "sprint", false, "hold sprint during tray walks")
	cmd.Flags().StringVar(&opts.Replay, "replay", "", "record the run to a .jsonl.zst file")
	cmd.Flags().Int64Var(&opts.MaxFrames, "max-frames", defaultMaxFrames, "abort a round after this many frames")
	cmd.Flags().StringVar(&opts.Player, "player", "local", "player id recorded in the journal")
	return cmd
}

// runPlay plays opts.Rounds rounds against an in-memory journal and returns
// the recorded results.
func runPlay(ctx context.Context, cfg *config.Config, opts playOptions, logger *slog.Logger) (playSummary, error) {
	if opts.Rounds <= 0 {
		opts.Rounds = 1
	}
	if opts.FPS <= 0 {
		return playSummary{}, fmt.Errorf("--fps must be positive")
	}
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = defaultMaxFrames
	}
	conn, err := db.Open(db.Config{Name: "play-" + xid.New().String()})
	if err != nil {
		return playSummary{}, err
	}
	defer conn.Close()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		return playSummary{}, err
	}
	s, err := app.NewSession(ctx, app.Deps{DB: conn, Config: cfg, Logger: logger}, opts.Game, opts.Player)
	if err != nil {
		return playSummary{}, err
	}

	var rec *replay.Writer
	if opts.Replay != "" {
		raw, err := cfg.JSON()
		if err != nil {
			return playSummary{}, err
		}
		rec, err = replay.Create(opts.Replay, replay.Header{
			Game:      opts.Game,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			Config:    raw,
		})
		if err != nil {
			return playSummary{}, fmt.Errorf("create replay: %w", err)
		}
	}

	p := &player{s: s, rec: rec}
	runErr := p.play(ctx, opts)
	if rec != nil {
		if err := rec.Close(); err != nil && runErr == nil {
			runErr = fmt.Errorf("close replay: %w", err)
		}
	}
	if runErr != nil {
		return playSummary{}, runErr
	}
	if err := s.End(ctx); err != nil {
		return playSummary{}, err
	}

	results, err := s.Repo.ListRoundResults(ctx, s.Info.ID, 0)
	if err != nil {
		return playSummary{}, err
	}
	total, err := s.Repo.SessionEarnings(ctx, s.Info.ID)
	if err != nil {
		return playSummary{}, err
	}
	return playSummary{
		SessionID:     s.Info.ID,
		Game:          opts.Game,
		Results:       results,
		TotalEarnings: total,
		Frames:        s.Snapshot().Frame,
		Rejected:      p.rejected,
	}, nil
}

type player struct {
	s        *app.Session
	rec      *replay.Writer
	rejected int
}

func (p *player) apply(ctx context.Context, cmd engine.Command) (engine.Snapshot, error) {
	snap, err := p.s.Apply(ctx, cmd)
	if p.rec != nil {
		if recErr := p.rec.Record(cmd, err, snap); recErr != nil {
			return snap, fmt.Errorf("record replay: %w", recErr)
		}
	}
	if engine.IsRejection(err) {
		p.rejected++
	}
	return snap, err
}

func (p *player) play(ctx context.Context, opts playOptions) error {
	frame := time.Second / time.Duration(opts.FPS)
	snap := p.s.Snapshot()
	for round := 0; round < opts.Rounds; round++ {
		if round > 0 {
			var err error
			if snap, err = p.apply(ctx, engine.Acknowledge()); err != nil {
				return err
			}
		}
		picks := opts.Picks
		if len(picks) == 0 {
			for _, it := range snap.Catalog {
				picks = append(picks, it.ID)
			}
		}
		for _, id := range picks {
			var err error
			snap, err = p.apply(ctx, engine.Select(id))
			if err != nil && !engine.IsRejection(err) {
				return err
			}
		}
		if opts.Game == domain.GameTray {
			if _, err := p.apply(ctx, engine.DirectionalHold(true)); err != nil {
				return err
			}
			if _, err := p.apply(ctx, engine.SprintHold(opts.Sprint)); err != nil {
				return err
			}
		}
		var err error
		if snap, err = p.apply(ctx, engine.Start()); err != nil {
			return fmt.Errorf("%s: start: %w", snap.RoundLabel, err)
		}
		for n := int64(0); snap.Phase == domain.PhaseExecution; n++ {
			if n >= opts.MaxFrames {
				return fmt.Errorf("%s: no result after %d frames", snap.RoundLabel, n)
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if snap, err = p.apply(ctx, engine.Tick(frame)); err != nil {
				return err
			}
		}
		if snap.Result == nil {
			return errors.New("round ended without a result")
		}
	}
	return nil
}

func renderSummary(w io.Writer, sum playSummary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle(fmt.Sprintf("%s session %s", sum.Game, sum.SessionID))
	tw.AppendHeader(table.Row{"#", "Round", "Items", "Outcome", "Earnings", "Elapsed"})
	for _, r := range sum.Results {
		tw.AppendRow(table.Row{r.RoundNumber, r.Label, r.ItemCount, r.Outcome, r.Earnings, fmt.Sprintf("%.2f", r.Elapsed)})
	}
	tw.AppendFooter(table.Row{"", "", "", "Total", sum.TotalEarnings, ""})
	tw.Render()
	if sum.Rejected > 0 {
		fmt.Fprintf(w, "%d commands rejected\n", sum.Rejected)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
