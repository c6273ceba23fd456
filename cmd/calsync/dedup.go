package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Remove duplicate remote records",
	Long: `Scan each calendar's remote records within the sync window and delete
confirmed duplicates, keeping one member per group (a linked record wins
over unlinked copies).

Two records are duplicates when their normalized titles and start minutes
match; records carrying the calsync-keep marker in their description are
never touched. Automatic passes run at most once per 24h per calendar;
--force bypasses the cooldown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		calendarID, _ := cmd.Flags().GetString("calendar")

		ctx := cmd.Context()
		a, err := newApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		failed := 0
		for _, cal := range a.cfg.EnabledCalendars() {
			if calendarID != "" && cal.ID != calendarID {
				continue
			}
			engine := a.engines[cal.Domain]
			deduper := a.dedups[cal.Domain]
			if engine == nil || deduper == nil {
				continue
			}

			snaps, err := engine.ListWindow(ctx, cal.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: listing failed for %s: %v\n", cal.ID, err)
				failed++
				continue
			}
			report, err := deduper.DeduplicateAll(ctx, cal.ID, snaps, force)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: dedup failed for %s: %v\n", cal.ID, err)
				failed++
				continue
			}

			if report.Throttled {
				fmt.Printf("%s: skipped (cooldown active, use --force to override)\n", cal.ID)
				continue
			}
			fmt.Printf("%s: scanned=%d groups=%d removed=%d failed=%d\n",
				cal.ID, report.Scanned, report.Groups, report.Removed, report.Failed)
		}

		if failed > 0 {
			return fmt.Errorf("%d calendar(s) failed to deduplicate", failed)
		}
		return nil
	},
}

func init() {
	dedupCmd.Flags().Bool("force", false, "Bypass the 24h cooldown")
	dedupCmd.Flags().StringP("calendar", "c", "", "Deduplicate only the given calendar id")
	rootCmd.AddCommand(dedupCmd)
}
