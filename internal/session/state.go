// Package session keeps the in-memory state of one signed-in user:
// the bearer token, the in-flight refresh flag and the queue of callers
// waiting for that refresh to resolve.
//
// The token is never written anywhere but process memory.
package session

import (
	"sync"
)

// Waiter is called once an in-flight refresh resolves
// On success token is the fresh one and err is nil, on failure token is empty
type Waiter func(token string, err error)

// Ticket tells a caller that got 401 what to do next
type Ticket int

const (
	// Caller owns the refresh and must report the outcome with FinishRefresh
	Lead Ticket = iota

	// Caller is queued, its waiter is called when the refresh resolves
	Wait

	// Token was rotated after the request had been sent, replay with the current one
	Replay

	// Session was reset after the request had been sent, nothing to replay with
	Expired
)

func (t Ticket) String() string {
	switch t {
	case Lead:
		return "lead"
	case Wait:
		return "wait"
	case Replay:
		return "replay"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

type Option func(*State)

// WithObserver registers fn to be called after every token change
// Called outside of the state lock
func WithObserver(fn func(token string)) Option {
	return func(s *State) {
		s.observers = append(s.observers, fn)
	}
}

type State struct {
	mu sync.Mutex

	// Empty token means unauthenticated
	token string

	// At most one refresh at a time
	refreshing bool
	waiters    []Waiter

	observers []func(token string)
}

func New(opts ...Option) *State {
	s := &State{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *State) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *State) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	s.notify(token)
}

// Clear drops the token, the user becomes unauthenticated
func (s *State) Clear() {
	s.SetToken("")
}

func (s *State) Authenticated() bool {
	return s.Token() != ""
}

func (s *State) Refreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshing
}

// Join is called by a request that got 401 after being sent with token sentWith
//
// If the session token differs from sentWith and is not empty, some refresh already
// finished: Replay is returned with the current token and w is dropped.
// If the token was cleared since the request had been sent, Expired is returned.
// If a refresh is in flight w is queued and Wait is returned.
// Otherwise the caller becomes the refresh owner: Lead is returned and the caller
// must call FinishRefresh exactly once.
func (s *State) Join(sentWith string, w Waiter) (Ticket, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.token != "" && s.token != sentWith:
		return Replay, s.token
	case s.token != sentWith:
		return Expired, ""
	case s.refreshing:
		s.waiters = append(s.waiters, w)
		return Wait, ""
	default:
		s.refreshing = true
		return Lead, ""
	}
}

// FinishRefresh stores the refresh outcome and drains the waiters queue in FIFO order
// On failure the token is cleared and every waiter gets err
// The in-flight flag is dropped only when the queue is empty, so a waiter that joins
// while the queue is being drained still gets this outcome
// Returns number of waiters called
func (s *State) FinishRefresh(token string, err error) int {
	if err != nil {
		token = ""
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	s.notify(token)

	drained := 0
	for {
		s.mu.Lock()
		waiters := s.waiters
		s.waiters = nil
		if len(waiters) == 0 {
			s.refreshing = false
			s.mu.Unlock()
			return drained
		}
		s.mu.Unlock()

		for _, w := range waiters {
			w(token, err)
		}
		drained += len(waiters)
	}
}

func (s *State) notify(token string) {
	for _, fn := range s.observers {
		fn(token)
	}
}
