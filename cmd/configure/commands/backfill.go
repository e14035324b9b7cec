package commands

import (
	"fmt"

	"github.com/quickfix/quickfix-api/internal/database"
	"github.com/quickfix/quickfix-api/internal/workers"
	"github.com/spf13/cobra"
)

// NewBackfillCmd creates the backfill command
func NewBackfillCmd() *cobra.Command {
	var geocode bool
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Schedule repair jobs for stale listings",
		Long: "Scan every listing and enqueue a city key repair for listings whose stored key no longer matches " +
			"their city, and a geocoding job for listings without coordinates. Workers process the jobs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			jobs, closeQueue, err := openQueue(cmd.Context())
			if err != nil {
				return err
			}
			defer closeQueue()

			b := workers.NewBackfiller(database.NewProviderRepository(store), jobs, nil)
			summary, err := b.Schedule(cmd.Context(), geocode)
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Checked %d listings.\n", summary.Checked)
			fmt.Fprintf(out, "  City key repairs scheduled: %d\n", summary.CityKeyJobs)
			if geocode {
				fmt.Fprintf(out, "  Geocoding jobs scheduled: %d\n", summary.GeocodeJobs)
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d jobs could not be enqueued", summary.Failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&geocode, "geocode", true, "Also schedule geocoding for listings without coordinates")
	return cmd
}
