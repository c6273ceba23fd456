package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle against the remote calendars",
	Long: `Run an incremental sync cycle for every enabled calendar (or a
single calendar with --calendar).

Each cycle lists remote records changed since the calendar's sync cursor,
repairs lost links from embedded back-links, classifies each linked pair,
and applies the resulting import/update/delete actions. Conflicting edits
are reported but never resolved automatically; use the status output to
decide and resolve them.

With --full the sync cursor is ignored and every remote record within the
window is re-examined.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		calendarID, _ := cmd.Flags().GetString("calendar")
		full, _ := cmd.Flags().GetBool("full")

		ctx := cmd.Context()
		a, err := newApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		cals := a.cfg.EnabledCalendars()
		if calendarID != "" {
			cal := a.cfg.Calendar(calendarID)
			if cal == nil {
				return fmt.Errorf("calendar %q not found in config", calendarID)
			}
			cals = cals[:0]
			cals = append(cals, cal)
		}

		failed := 0
		for _, cal := range cals {
			engine := a.engines[cal.Domain]
			if engine == nil {
				fmt.Fprintf(os.Stderr, "Warning: no engine for domain %q, skipping %s\n", cal.Domain, cal.ID)
				continue
			}
			if full {
				cal.LastSync = ""
			}

			res, err := engine.IncrementalSync(ctx, cal)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: sync failed for %s: %v\n", cal.ID, err)
				failed++
				continue
			}

			fmt.Printf("%s: imported=%d updated=%d deleted=%d skipped=%d errors=%d (%v)\n",
				cal.ID, res.Imported, res.Updated, res.Deleted, res.Skipped,
				len(res.Errors), res.Duration.Round(1e6))
			if res.Recovery != nil && res.Recovery.Recovered > 0 {
				fmt.Printf("   recovered %d lost link(s)\n", res.Recovery.Recovered)
			}
			for _, cand := range res.Conflicts {
				fmt.Printf("   conflict: local %s <-> remote %s (%q)\n",
					cand.Record.LocalID, cand.Snapshot.ID, cand.Snapshot.Summary)
			}
		}

		if err := a.cfg.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to persist sync cursors: %v\n", err)
		}
		if failed > 0 {
			return fmt.Errorf("%d calendar(s) failed to sync", failed)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().StringP("calendar", "c", "", "Sync only the given calendar id")
	syncCmd.Flags().Bool("full", false, "Ignore the sync cursor and re-examine the whole window")
	rootCmd.AddCommand(syncCmd)
}
