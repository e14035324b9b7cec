// Package platform opens the backing services shared by the QuickFix binaries.
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quickfix/quickfix-api/internal/config"
	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/queue"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrQueueDisabled is returned by ConnectQueue when no broker URL is configured
var ErrQueueDisabled = errors.New("job queue not configured")

const (
	queueInitialDelay = 2 * time.Second
	queueMaxDelay     = 30 * time.Second
)

// OpenStore connects the document store selected by cfg.DocstoreDriver
func OpenStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (docstore.Store, error) {
	switch cfg.DocstoreDriver {
	case config.DriverMongo:
		return docstore.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
	case config.DriverPostgres:
		return docstore.ConnectPostgres(ctx, cfg.DatabaseURL, log)
	case config.DriverMemory:
		log.Warn("using_in_memory_docstore")
		return docstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown docstore driver %q", cfg.DocstoreDriver)
	}
}

// OpenRedis connects to Redis. An empty URL yields a nil client: callers fall
// back to in-process rate limiting, notification and revocation.
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// ConnectQueue connects to RabbitMQ, retrying with exponential backoff to ride
// out broker startup. It returns ErrQueueDisabled when amqpURL is empty.
func ConnectQueue(ctx context.Context, amqpURL string, attempts int, log *zap.Logger) (*queue.RabbitMQQueue, error) {
	if amqpURL == "" {
		return nil, ErrQueueDisabled
	}
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		q, err := queue.NewRabbitMQQueue(amqpURL, log)
		if err == nil {
			return q, nil
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}

		delay := queueInitialDelay * time.Duration(1<<uint(attempt))
		if delay > queueMaxDelay {
			delay = queueMaxDelay
		}
		log.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.Duration("retry_delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("failed to connect to rabbitmq after %d attempts: %w", attempts, lastErr)
}
