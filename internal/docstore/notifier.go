package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notifier carries "collection changed" signals between writers and subscribers.
type Notifier interface {
	Publish(ctx context.Context, collection string) error
	// Listen returns a channel receiving a value after each change to
	// collection. Bursts may be coalesced. The returned func stops listening.
	Listen(ctx context.Context, collection string) (<-chan struct{}, func(), error)
}

// LocalNotifier delivers change signals within one process.
type LocalNotifier struct {
	mu        sync.Mutex
	listeners map[string]map[chan struct{}]struct{}
}

var _ Notifier = (*LocalNotifier)(nil)

// NewLocalNotifier creates an in-process notifier.
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{listeners: map[string]map[chan struct{}]struct{}{}}
}

func (n *LocalNotifier) Publish(ctx context.Context, collection string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.listeners[collection] {
		signal(ch)
	}
	return nil
}

func (n *LocalNotifier) Listen(ctx context.Context, collection string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	if n.listeners[collection] == nil {
		n.listeners[collection] = map[chan struct{}]struct{}{}
	}
	n.listeners[collection][ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners[collection], ch)
			n.mu.Unlock()
		})
	}
	return ch, stop, nil
}

// signal does a non-blocking send; a pending signal already covers this change.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

const redisChannelPrefix = "docstore:changes:"

// RedisNotifier fans change signals out across instances over Redis pub/sub.
type RedisNotifier struct {
	client *redis.Client
	logger *zap.Logger
}

var _ Notifier = (*RedisNotifier)(nil)

// NewRedisNotifier creates a notifier publishing on per-collection channels.
func NewRedisNotifier(client *redis.Client, log *zap.Logger) *RedisNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisNotifier{client: client, logger: log}
}

func (n *RedisNotifier) Publish(ctx context.Context, collection string) error {
	payload := fmt.Sprintf(`{"collection":%q,"at":%d}`, collection, time.Now().UnixMilli())
	if err := n.client.Publish(ctx, redisChannelPrefix+collection, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change for %s: %w", collection, err)
	}
	return nil
}

func (n *RedisNotifier) Listen(ctx context.Context, collection string) (<-chan struct{}, func(), error) {
	pubsub := n.client.Subscribe(ctx, redisChannelPrefix+collection)
	// Wait for the subscription confirmation so no change published after
	// Listen returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s changes: %w", collection, err)
	}

	out := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				signal(out)
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			if err := pubsub.Close(); err != nil {
				n.logger.Debug("redis_pubsub_close_failed", zap.Error(err))
			}
		})
	}
	return out, stop, nil
}
