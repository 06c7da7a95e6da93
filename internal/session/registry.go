package session

import (
	"log/slog"
	"sync"
)

// Registry hands out one Store per user.
type Registry struct {
	mu     sync.Mutex
	stores map[int]*Store
	saver  Saver
	log    *slog.Logger
	opts   []Option
}

// NewRegistry creates a Registry whose stores share saver and opts.
func NewRegistry(saver Saver, log *slog.Logger, opts ...Option) *Registry {
	return &Registry{
		stores: make(map[int]*Store),
		saver:  saver,
		log:    log,
		opts:   opts,
	}
}

// For returns the store for userID, creating it on first use.
func (r *Registry) For(userID int) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.stores[userID]
	if !ok {
		st = NewStore(r.saver, r.log.With("user_id", userID), r.opts...)
		r.stores[userID] = st
	}
	return st
}

// ActiveCount returns how many users have a session in progress.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	stores := make([]*Store, 0, len(r.stores))
	for _, st := range r.stores {
		stores = append(stores, st)
	}
	r.mu.Unlock()

	n := 0
	for _, st := range stores {
		if st.HasActive() {
			n++
		}
	}
	return n
}
