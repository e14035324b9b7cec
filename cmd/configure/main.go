package main

import (
	"fmt"
	"os"

	"github.com/quickfix/quickfix-api/cmd/configure/commands"
	"github.com/quickfix/quickfix-api/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var rootCmd = &cobra.Command{
		Use:   "quickfix-configure",
		Short: "Configuration tool for the QuickFix API",
		Long:  "Operator CLI for CORS and rate limit settings, document store indexes and listing maintenance",
	}

	rootCmd.AddCommand(commands.NewCorsCmd())
	rootCmd.AddCommand(commands.NewRatelimitCmd())
	rootCmd.AddCommand(commands.NewIndexesCmd())
	rootCmd.AddCommand(commands.NewBackfillCmd())
	rootCmd.AddCommand(commands.NewDLQCmd())
	rootCmd.AddCommand(commands.NewCheckCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
