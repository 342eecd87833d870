package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/JuniperBot/core/chunk"
	"github.com/FocuswithJustin/JuniperBot/core/errors"
	"github.com/FocuswithJustin/JuniperBot/internal/cache"
)

// DefaultCapacity bounds the number of live sessions held in memory.
const DefaultCapacity = 1024

// StoreOption configures a Store.
type StoreOption func(*storeOptions)

type storeOptions struct {
	now     func() time.Time
	newID   func() string
	onEvict func(*Session)
}

// WithClock sets the time source for the store and its sessions.
func WithClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) { o.now = now }
}

// WithIDGenerator replaces the default UUIDv4 session identifiers.
func WithIDGenerator(fn func() string) StoreOption {
	return func(o *storeOptions) { o.newID = fn }
}

// WithEvictHook runs fn when a live session is dropped to respect the
// capacity bound.
func WithEvictHook(fn func(*Session)) StoreOption {
	return func(o *storeOptions) { o.onEvict = fn }
}

// Store is the in-memory registry of sessions, keyed by session ID.
//
// Expired sessions stay addressable for one more idle period so late
// actions get SessionExpired rather than SessionNotFound; after that they
// are pruned when new sessions are created. There is no background sweep.
type Store struct {
	sessions *cache.Cache[string, *Session]
	idle     time.Duration
	now      func() time.Time
	newID    func() string
}

// NewStore creates a Store holding at most capacity sessions.
func NewStore(capacity int, idle time.Duration, opts ...StoreOption) (*Store, error) {
	o := storeOptions{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}

	retention := 2 * idle
	stale := func(s *Session, now time.Time) bool {
		return s.Expired() && now.Sub(s.LastActive()) > retention
	}
	cacheOpts := []cache.Option[string, *Session]{cache.WithClock[string, *Session](o.now)}
	if o.onEvict != nil {
		hook := o.onEvict
		cacheOpts = append(cacheOpts, cache.WithEvictHook[string, *Session](func(_ string, s *Session) {
			hook(s)
		}))
	}

	sessions, err := cache.New[string, *Session](capacity, stale, cacheOpts...)
	if err != nil {
		return nil, errors.Internal(err, "create session store")
	}
	return &Store{sessions: sessions, idle: idle, now: o.now, newID: o.newID}, nil
}

// Create registers a new session for owner over chunks, positioned on
// chunk 0.
func (st *Store) Create(owner string, chunks []chunk.Chunk) (*Session, error) {
	st.sessions.Prune()

	s, err := New(st.newID(), owner, chunks, st.idle, st.now)
	if err != nil {
		return nil, err
	}
	st.sessions.Add(s.ID(), s)
	return s, nil
}

// Get returns the session with the given ID.
func (st *Store) Get(id string) (*Session, error) {
	s, ok := st.sessions.Get(id)
	if !ok {
		return nil, errors.Newf(errors.KindSessionNotFound, "session %s", id)
	}
	return s, nil
}

// Navigate applies action to the session on behalf of actor.
func (st *Store) Navigate(id, actor string, action Action) (Page, error) {
	s, err := st.Get(id)
	if err != nil {
		return Page{}, err
	}
	return s.Navigate(actor, action)
}

// Remove drops a session, e.g. when its message is deleted.
func (st *Store) Remove(id string) bool {
	return st.sessions.Remove(id)
}

// Prune drops sessions that expired more than one idle period ago.
func (st *Store) Prune() int {
	return st.sessions.Prune()
}

// Len returns the number of sessions held, including expired ones
// awaiting pruning.
func (st *Store) Len() int {
	return st.sessions.Len()
}

// IdleTimeout returns the idle timeout applied to new sessions.
func (st *Store) IdleTimeout() time.Duration {
	return st.idle
}
