package linker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitbridge/pkg/models"
)

// Sentinel errors for link handshake outcomes. Timeout is deliberately
// distinct from failure so callers can say "try again" instead of
// "something broke".
var (
	ErrLinkTimeout = errors.New("link handshake timed out")
	ErrLinkFailed  = errors.New("link handshake failed")
)

const (
	statusPending   = "pending"
	statusCompleted = "completed"
	statusFailed    = "failed"
)

type session struct {
	status    string
	state     string
	identity  models.GitHubIdentity
	failure   string
	createdAt time.Time
}

// Broker holds transient identity-link handshake state shared between the
// HTTP callback handler and the bot-side command handler. It owns the only
// in-process shared mutable structure in the system: a map of Discord user
// ID to pending session, guarded by one mutex.
//
// The mutex is held only for the duration of individual map operations,
// never across a wait: Await polls on a bounded interval instead of
// blocking under the lock, so the resolving side can always make progress.
// Sessions live in process memory only; running more than one instance
// means callbacks must land on the instance that began the link.
type Broker struct {
	mu       sync.Mutex
	sessions map[string]*session
	byState  map[string]string

	pollInterval time.Duration
	sessionTTL   time.Duration
}

// NewBroker creates a Broker. pollInterval bounds Await's resolution
// latency; sessionTTL bounds how long an abandoned handshake can linger
// before the janitor erases it.
func NewBroker(pollInterval, sessionTTL time.Duration) *Broker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if sessionTTL <= 0 {
		sessionTTL = 10 * time.Minute
	}
	return &Broker{
		sessions:     make(map[string]*session),
		byState:      make(map[string]string),
		pollInterval: pollInterval,
		sessionTTL:   sessionTTL,
	}
}

// Begin creates a pending session for userID and returns the opaque state
// token that ties the OAuth callback back to this user. An existing session
// for the same user is silently discarded; there is at most one in-flight
// handshake per user.
func (b *Broker) Begin(userID string) string {
	state := uuid.NewString()

	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.sessions[userID]; ok {
		delete(b.byState, old.state)
	}
	b.sessions[userID] = &session{
		status:    statusPending,
		state:     state,
		createdAt: time.Now(),
	}
	b.byState[state] = userID
	return state
}

// UserForState maps an OAuth state token back to the user that began the
// handshake. Returns false for unknown or already-expired tokens.
func (b *Broker) UserForState(state string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	userID, ok := b.byState[state]
	return userID, ok
}

// Resolve transitions the user's session out of pending. Called from the
// HTTP callback goroutine. If no session exists (the waiter timed out and
// erased it first) this is a no-op: the callback may lose that race and
// must not blow up when it does.
func (b *Broker) Resolve(userID string, identity *models.GitHubIdentity, failure string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[userID]
	if !ok {
		return
	}
	if identity != nil {
		s.status = statusCompleted
		s.identity = *identity
	} else {
		s.status = statusFailed
		s.failure = failure
	}
}

// Await blocks the calling goroutine until the user's session leaves
// pending, the timeout elapses, or ctx is cancelled. Any terminal outcome
// consumes the session: a given resolution is observed by at most one
// Await call. The lock is re-acquired on every poll tick and released
// before sleeping.
func (b *Broker) Await(ctx context.Context, userID string, timeout time.Duration) (*models.GitHubIdentity, error) {
	deadline := time.Now().Add(timeout)

	for {
		identity, failure, terminal := b.consumeIfResolved(userID)
		if terminal {
			if identity != nil {
				return identity, nil
			}
			return nil, fmt.Errorf("%w: %s", ErrLinkFailed, failure)
		}

		if time.Now().After(deadline) {
			b.erase(userID)
			return nil, ErrLinkTimeout
		}

		select {
		case <-ctx.Done():
			b.erase(userID)
			return nil, ctx.Err()
		case <-time.After(b.pollInterval):
		}
	}
}

// consumeIfResolved erases and returns the session iff it has left pending.
func (b *Broker) consumeIfResolved(userID string) (*models.GitHubIdentity, string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[userID]
	if !ok || s.status == statusPending {
		return nil, "", false
	}

	delete(b.sessions, userID)
	delete(b.byState, s.state)

	if s.status == statusCompleted {
		identity := s.identity
		return &identity, "", true
	}
	return nil, s.failure, true
}

func (b *Broker) erase(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[userID]; ok {
		delete(b.byState, s.state)
		delete(b.sessions, userID)
	}
}

// RunJanitor sweeps expired sessions until ctx is cancelled. Abandoned
// handshakes (user closed the browser, callback never arrived) would
// otherwise accumulate for the lifetime of the process.
func (b *Broker) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.sweep(time.Now()); n > 0 {
				slog.Info("expired link sessions cleaned up", "count", n)
			}
		}
	}
}

func (b *Broker) sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	var removed int
	for userID, s := range b.sessions {
		if now.Sub(s.createdAt) > b.sessionTTL {
			delete(b.byState, s.state)
			delete(b.sessions, userID)
			removed++
		}
	}
	return removed
}
