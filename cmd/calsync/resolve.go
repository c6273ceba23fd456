package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fbgallet/calsync/internal/sync"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <local-id> <remote|local|both>",
	Short: "Resolve a sync conflict",
	Long: `Resolve a conflict surfaced by a sync cycle.

Choices:
  remote   overwrite the local record with the remote version
  local    keep the local version; the next local edit pushes it remotely
  both     keep both: the remote version becomes a second local record,
           and the original is re-exported with a calsync-keep marker so
           deduplication never re-merges the pair`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		localID := args[0]
		choice := sync.Choice(args[1])
		switch choice {
		case sync.ChoiceRemote, sync.ChoiceLocal, sync.ChoiceBoth:
		default:
			return fmt.Errorf("choice must be remote, local, or both, got %q", args[1])
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		// Re-run the cycle for the calendar holding the record so the
		// conflict candidate carries the current remote snapshot.
		for _, cal := range a.cfg.EnabledCalendars() {
			engine := a.engines[cal.Domain]
			if engine == nil {
				continue
			}
			rec, err := engine.Lookup(ctx, localID)
			if err != nil {
				return err
			}
			if rec == nil || rec.CalendarID != cal.ID {
				continue
			}

			res, err := engine.IncrementalSync(ctx, cal)
			if err != nil {
				return err
			}
			for _, cand := range res.Conflicts {
				if cand.Record.LocalID != localID {
					continue
				}
				if err := engine.ResolveConflict(ctx, cal, cand, choice); err != nil {
					return err
				}
				fmt.Printf("Resolved %s: kept %s\n", localID, choice)
				return a.cfg.Save()
			}
			return fmt.Errorf("record %s is not currently in conflict", localID)
		}
		return fmt.Errorf("record %q is not linked to any enabled calendar", localID)
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
