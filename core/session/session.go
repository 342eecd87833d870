// Package session implements owner-scoped pagination over chunked output.
//
// A Session starts on chunk 0 and moves with Next and Previous actions from
// its owner. Once the idle timeout has elapsed since the last accepted
// action it is expired for good. The expiry check runs under the same lock
// as the index change, so a late action can never move a session that has
// already timed out.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/FocuswithJustin/JuniperBot/core/chunk"
	"github.com/FocuswithJustin/JuniperBot/core/errors"
)

// DefaultIdleTimeout is how long a session survives without navigation.
const DefaultIdleTimeout = 120 * time.Second

// Action is a navigation request.
type Action int

const (
	// ActionNext advances one chunk; a no-op on the last chunk.
	ActionNext Action = iota
	// ActionPrevious goes back one chunk; a no-op on the first chunk.
	ActionPrevious
)

func (a Action) String() string {
	if a == ActionPrevious {
		return "previous"
	}
	return "next"
}

// ParseAction parses "next" or "previous" (also "prev").
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "next":
		return ActionNext, nil
	case "previous", "prev":
		return ActionPrevious, nil
	}
	return ActionNext, fmt.Errorf("unknown navigation action %q", s)
}

// Page is the view of a session after an action.
type Page struct {
	SessionID   string      `json:"session_id"`
	Index       int         `json:"index"`
	Total       int         `json:"total"`
	Chunk       chunk.Chunk `json:"chunk"`
	HasNext     bool        `json:"has_next"`
	HasPrevious bool        `json:"has_previous"`
}

// Session is the pagination state for one interactive message.
type Session struct {
	id        string
	owner     string
	createdAt time.Time
	idle      time.Duration
	now       func() time.Time
	total     int

	mu         sync.Mutex
	chunks     []chunk.Chunk
	index      int
	lastActive time.Time
	expired    bool
}

// New creates a session positioned on chunk 0. now may be nil.
func New(id, owner string, chunks []chunk.Chunk, idle time.Duration, now func() time.Time) (*Session, error) {
	if len(chunks) == 0 {
		return nil, errors.New(errors.KindInternal, "session needs at least one chunk")
	}
	if owner == "" {
		return nil, errors.New(errors.KindInternal, "session needs an owner")
	}
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if now == nil {
		now = time.Now
	}
	created := now()
	return &Session{
		id:         id,
		owner:      owner,
		createdAt:  created,
		idle:       idle,
		now:        now,
		total:      len(chunks),
		chunks:     chunks,
		lastActive: created,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Owner returns the identity allowed to navigate.
func (s *Session) Owner() string { return s.owner }

// CreatedAt returns the creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Total returns the number of chunks.
func (s *Session) Total() int { return s.total }

// Next advances one chunk on behalf of actor.
func (s *Session) Next(actor string) (Page, error) {
	return s.Navigate(actor, ActionNext)
}

// Previous goes back one chunk on behalf of actor.
func (s *Session) Previous(actor string) (Page, error) {
	return s.Navigate(actor, ActionPrevious)
}

// Navigate applies action for actor. Expiry is checked first, then
// ownership; a rejected action changes nothing, including the idle timer.
func (s *Session) Navigate(actor string, action Action) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.expireLocked(now) {
		return Page{}, errors.Newf(errors.KindSessionExpired, "session %s", s.id)
	}
	if actor != s.owner {
		return Page{}, errors.Newf(errors.KindUnauthorized, "session %s: actor %q is not the owner", s.id, actor)
	}

	switch action {
	case ActionNext:
		if s.index < s.total-1 {
			s.index++
		}
	case ActionPrevious:
		if s.index > 0 {
			s.index--
		}
	default:
		return Page{}, errors.Newf(errors.KindInternal, "unknown action %d", int(action))
	}
	s.lastActive = now
	return s.pageLocked(), nil
}

// Current returns the page currently shown.
func (s *Session) Current() (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expireLocked(s.now()) {
		return Page{}, errors.Newf(errors.KindSessionExpired, "session %s", s.id)
	}
	return s.pageLocked(), nil
}

// Index returns the current chunk index.
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Expired reports whether the session has timed out, recording the
// transition if it just happened.
func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expireLocked(s.now())
}

// LastActive returns the time of the last accepted action.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Expire ends the session immediately.
func (s *Session) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markExpiredLocked()
}

// expireLocked must be called with s.mu held.
func (s *Session) expireLocked(now time.Time) bool {
	if s.expired {
		return true
	}
	if now.Sub(s.lastActive) > s.idle {
		s.markExpiredLocked()
		return true
	}
	return false
}

func (s *Session) markExpiredLocked() {
	s.expired = true
	s.chunks = nil // release text; the index is kept for inspection
}

func (s *Session) pageLocked() Page {
	return Page{
		SessionID:   s.id,
		Index:       s.index,
		Total:       s.total,
		Chunk:       s.chunks[s.index],
		HasNext:     s.index < s.total-1,
		HasPrevious: s.index > 0,
	}
}
