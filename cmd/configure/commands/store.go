// Package commands implements the quickfix-configure subcommands.
package commands

import (
	"context"
	"fmt"

	"github.com/quickfix/quickfix-api/internal/config"
	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/platform"
	"go.uber.org/zap"
)

// openStore connects the configured document store. Tests replace it.
var openStore = func(ctx context.Context) (docstore.Store, func(), error) {
	cfg, err := config.LoadStore()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	store, err := platform.OpenStore(ctx, cfg, zap.NewNop())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to docstore: %w", err)
	}
	return store, func() { _ = store.Close(context.Background()) }, nil
}
