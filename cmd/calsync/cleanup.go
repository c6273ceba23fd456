package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fbgallet/calsync/internal/metadata"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune old sync records from the metadata store",
	Long: `Remove sync records whose remote end date has passed.

With --days N, records ending more than N days ago are removed, except
records flagged as open tasks, which are retained regardless of age so an
overdue task keeps its link. With --all, every record ending before today
is removed, open tasks included.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		all, _ := cmd.Flags().GetBool("all")

		if all && cmd.Flags().Changed("days") {
			return fmt.Errorf("--days and --all are mutually exclusive")
		}

		ctx := cmd.Context()
		cfg, meta, err := openMetadata(ctx)
		if err != nil {
			return err
		}
		defer meta.Close()

		domains := make(map[string]bool)
		for _, cal := range cfg.Calendars {
			domains[cal.Domain] = true
		}
		if len(domains) == 0 {
			domains[metadata.DomainEvents] = true
			domains[metadata.DomainTasks] = true
		}

		for domain := range domains {
			ns := meta.Namespace(domain)
			if all {
				removed, err := ns.CleanupAllContext(ctx)
				if err != nil {
					return fmt.Errorf("cleanup failed for domain %s: %w", domain, err)
				}
				fmt.Printf("%s: removed %d record(s)\n", domain, removed)
				continue
			}

			removed, retained, err := ns.CleanupOlderThanContext(ctx, days)
			if err != nil {
				return fmt.Errorf("cleanup failed for domain %s: %w", domain, err)
			}
			fmt.Printf("%s: removed %d record(s), retained %d open task(s)\n",
				domain, removed, retained)
		}
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Int("days", 30, "Remove records ending more than N days ago")
	cleanupCmd.Flags().Bool("all", false, "Remove every record ending before today, open tasks included")
	rootCmd.AddCommand(cleanupCmd)
}
