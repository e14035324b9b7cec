package main

import (
	"fmt"
	"os"

	"github.com/quickfix/quickfix-api/cmd/quickfix/commands"
	"github.com/quickfix/quickfix-api/internal/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
