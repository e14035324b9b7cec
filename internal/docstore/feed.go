package docstore

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Subscription is a live query. Unsubscribe is idempotent; once it returns the
// subscription's callback is not running and will not be called again. A
// callback must not unsubscribe its own subscription; it may cancel the
// subscription context instead.
type Subscription interface {
	Unsubscribe()
}

// SnapshotFunc receives the full result set of a subscribed query, or the
// error that prevented computing it. Calls for one subscription never overlap.
type SnapshotFunc func(docs []Document, err error)

// Feed is a Store that announces its writes and supports realtime query
// subscriptions.
type Feed struct {
	Store
	notifier Notifier
	logger   *zap.Logger
}

// NewFeed wraps store. Writes through the Feed are published on notifier.
func NewFeed(store Store, notifier Notifier, log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{Store: store, notifier: notifier, logger: log}
}

func (f *Feed) publish(ctx context.Context, collection string) {
	if err := f.notifier.Publish(ctx, collection); err != nil {
		f.logger.Warn("docstore_change_publish_failed", zap.String("collection", collection), zap.Error(err))
	}
}

func (f *Feed) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id, err := f.Store.Create(ctx, collection, data)
	if err == nil {
		f.publish(ctx, collection)
	}
	return id, err
}

func (f *Feed) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	err := f.Store.Set(ctx, collection, id, data, merge)
	if err == nil {
		f.publish(ctx, collection)
	}
	return err
}

func (f *Feed) Update(ctx context.Context, collection, id string, partial map[string]any) error {
	err := f.Store.Update(ctx, collection, id, partial)
	if err == nil {
		f.publish(ctx, collection)
	}
	return err
}

func (f *Feed) Delete(ctx context.Context, collection, id string) error {
	err := f.Store.Delete(ctx, collection, id)
	if err == nil {
		f.publish(ctx, collection)
	}
	return err
}

// Subscribe delivers the current result of q and a fresh result after every
// change to q's collection, until ctx ends or the subscription is removed.
func (f *Feed) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Subscription, error) {
	changes, stopListening, err := f.notifier.Listen(ctx, q.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", q.Collection, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, stopListening: stopListening}

	go func() {
		defer stopListening()
		deliver := func() {
			docs, err := f.Store.Query(subCtx, q)
			sub.mu.Lock()
			defer sub.mu.Unlock()
			if sub.stopped || subCtx.Err() != nil {
				return
			}
			if err != nil {
				f.logger.Warn("docstore_subscription_query_failed", zap.String("query", q.String()), zap.Error(err))
			}
			fn(docs, err)
		}

		deliver()
		for {
			select {
			case <-subCtx.Done():
				return
			case <-changes:
				deliver()
			}
		}
	}()
	return sub, nil
}

type subscription struct {
	once          sync.Once
	mu            sync.Mutex // held across the stopped check and the callback
	stopped       bool
	cancel        context.CancelFunc
	stopListening func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		s.stopListening()
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
	})
}
