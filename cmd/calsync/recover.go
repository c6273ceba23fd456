package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fbgallet/calsync/internal/recovery"
	"github.com/fbgallet/calsync/internal/store"
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Rebuild lost sync links from remote back-links",
	Long: `Scan each calendar's remote records for embedded calsync:// back-links
and rebuild any sync link the metadata store has lost.

Every exported record carries a back-link in its description naming its
domain and local record id. When the metadata database is deleted or
corrupted, this command reconstructs the links so the next sync cycle does
not import duplicates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		failed := 0
		for _, cal := range a.cfg.EnabledCalendars() {
			engine := a.engines[cal.Domain]
			if engine == nil {
				continue
			}

			snaps, err := engine.ListWindow(ctx, cal.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: listing failed for %s: %v\n", cal.ID, err)
				failed++
				continue
			}

			ns := a.meta.Namespace(cal.Domain)
			rec := recovery.New(ns, a.local, a.logger)
			report, err := rec.Recover(ctx, cal.ID, snaps)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: recovery failed for %s: %v\n", cal.ID, err)
				failed++
				continue
			}

			fmt.Printf("%s: scanned=%d recovered=%d failed=%d skipped=%d\n",
				cal.ID, report.Scanned, report.Recovered, report.Failed, report.Skipped)
		}

		if failed > 0 {
			return fmt.Errorf("%d calendar(s) failed to recover", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}

// Interface check: the local store must satisfy what the recovery engine
// consumes.
var _ recovery.LocalStore = (*store.Store)(nil)
