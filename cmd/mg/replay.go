package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"minigames/internal/engine"
	"minigames/internal/replay"
)

func replayCmd() *cobra.Command {
	r := &cobra.Command{Use: "replay", Short: "Inspect recorded runs"}
	r.AddCommand(replayShowCmd())
	r.AddCommand(replayVerifyCmd())
	return r
}

func replayShowCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "show <file>",
		Short: "List recorded commands (ticks hidden unless --ticks)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := replay.ReadFile(args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(rec)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.SetTitle(fmt.Sprintf("%s replay, %d frames, recorded %s", rec.Header.Game, len(rec.Frames), rec.Header.CreatedAt))
			tw.AppendHeader(table.Row{"Seq", "Command", "Item", "Phase", "Round", "Used", "Error"})
			for _, fr := range rec.Frames {
				if fr.Command.Kind == engine.CmdTick && !all {
					continue
				}
				tw.AppendRow(table.Row{fr.Seq, fr.Command.Kind, fr.Command.ItemID, fr.Snapshot.Phase, fr.Snapshot.RoundLabel, fr.Snapshot.Used, fr.Error})
			}
			if n := len(rec.Frames); n > 0 {
				last := rec.Frames[n-1].Snapshot
				tw.AppendFooter(table.Row{"", "", "", last.Phase, "total", last.TotalEarnings, ""})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "ticks", false, "include tick frames")
	return cmd
}

func replayVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Re-run a recording and check every snapshot matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := replay.ReadFile(args[0])
			if err != nil {
				return err
			}
			seq, err := rec.Verify(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": seq == 0, "divergent_seq": seq, "frames": len(rec.Frames)})
			}
			if seq != 0 {
				return fmt.Errorf("replay diverges at frame %d", seq)
			}
			fmt.Printf("replay OK (%d frames)\n", len(rec.Frames))
			return nil
		},
	}
}
