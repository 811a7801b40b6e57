package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/transana/srbxfer/internal/config"
	"github.com/transana/srbxfer/internal/journal"
	"github.com/transana/srbxfer/internal/progress"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent transfers",
		Long: `Show the most recent entries of the transfer history journal
(journal_path setting). Every finished upload, download and move is
recorded unless --no-history was given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfigCSV(configPath())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.MergeEnv()

			entries, err := journal.New(cfg.JournalPath).Tail(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No transfers recorded yet.")
				return nil
			}

			fmt.Fprintf(out, "%-19s %-9s %-32s %-16s %12s %9s %s\n",
				"TIME", "DIRECTION", "FILE", "COLLECTION", "BYTES", "DURATION", "STATUS")
			for _, e := range entries {
				name := e.File
				if len(name) > 32 {
					name = name[:29] + "..."
				}
				status := e.Status
				if e.Code != 0 {
					status = fmt.Sprintf("%s (%d)", status, e.Code)
				}
				fmt.Fprintf(out, "%-19s %-9s %-32s %-16s %12d %9s %s\n",
					e.Time.Local().Format(time.DateTime),
					e.Direction,
					name,
					e.Collection,
					e.Bytes,
					progress.HoursMinutesSeconds(e.Duration),
					status)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show (0 = all)")

	return cmd
}
