package docstore

import "sync"

// Slot holds at most one active Subscription for a logical query.
type Slot struct {
	mu  sync.Mutex
	sub Subscription
}

// Replace unsubscribes the current subscription, if any, and only then calls
// open. A failed open leaves the slot empty.
func (s *Slot) Replace(open func() (Subscription, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	sub, err := open()
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

// Close unsubscribes the current subscription.
func (s *Slot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
}

// Active reports whether the slot holds a subscription.
func (s *Slot) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub != nil
}
