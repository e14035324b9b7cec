package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewDLQCmd creates the dead letter queue command
func NewDLQCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Manage dead-lettered listing jobs",
	}

	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Drop dead-lettered jobs older than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			q, closeQueue, err := openQueue(cmd.Context())
			if err != nil {
				return err
			}
			defer closeQueue()

			n, err := q.PurgeOlderThan(cmd.Context(), olderThan)
			if err != nil {
				return fmt.Errorf("purge dlq: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d dead-lettered jobs.\n", n)
			return nil
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "Retention; younger jobs are kept")
	cmd.AddCommand(purge)
	return cmd
}
