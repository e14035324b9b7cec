package commands

import (
	"fmt"
	"strings"

	"github.com/quickfix/quickfix-api/internal/database"
	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/spf13/cobra"
)

// NewIndexesCmd creates the indexes command
func NewIndexesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexes",
		Short: "Manage document store indexes",
		Long:  "Show or create the composite indexes provider searches need. Searches fail with INDEX_REQUIRED until they exist.",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show the required indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, idx := range database.Indexes() {
				fmt.Fprintf(out, "  %s: %s\n", idx.Collection, describeIndex(idx))
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Create any missing required indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			indexes := database.Indexes()
			if err := store.EnsureIndexes(cmd.Context(), indexes); err != nil {
				return fmt.Errorf("ensure indexes: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d indexes ensured.\n", len(indexes))
			return nil
		},
	})
	return cmd
}

func describeIndex(idx docstore.Index) string {
	parts := make([]string, 0, len(idx.Fields))
	for _, f := range idx.Fields {
		if f.Direction == docstore.Desc {
			parts = append(parts, f.Field+" desc")
		} else {
			parts = append(parts, f.Field)
		}
	}
	return strings.Join(parts, ", ")
}
