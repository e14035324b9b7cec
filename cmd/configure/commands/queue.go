package commands

import (
	"context"
	"fmt"

	"github.com/quickfix/quickfix-api/internal/config"
	"github.com/quickfix/quickfix-api/internal/platform"
	"github.com/quickfix/quickfix-api/internal/queue"
	"go.uber.org/zap"
)

// brokerQueue is the part of the job queue the maintenance commands use
type brokerQueue interface {
	queue.Enqueuer
	queue.DLQPurger
}

// openQueue connects the configured job queue. Tests replace it.
var openQueue = func(ctx context.Context) (brokerQueue, func(), error) {
	cfg, err := config.LoadStore()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	q, err := platform.ConnectQueue(ctx, cfg.RabbitMQURL, 1, zap.NewNop())
	if err != nil {
		return nil, nil, fmt.Errorf("connect to job queue: %w", err)
	}
	return q, func() { _ = q.Close() }, nil
}
