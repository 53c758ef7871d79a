package l402

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore provides an in-memory implementation of CredentialStore.
//
// Suitable for single-process deployments. Credentials bought by one
// process are not visible to another; use RedisStore when several
// processes should share one paywall budget.
type InMemoryStore struct {
	mu       sync.Mutex
	entries  map[Scope]*cacheEntry
	inFlight map[Scope]chan struct{}
}

type cacheEntry struct {
	cred *Credential
	// validUntil is the inclusive expiry bound; zero means no expiry.
	validUntil time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.validUntil.IsZero() && now.After(e.validUntil)
}

// NewInMemoryStore creates an empty in-memory credential store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries:  make(map[Scope]*cacheEntry),
		inFlight: make(map[Scope]chan struct{}),
	}
}

// CheckAndMark atomically checks the store and marks the scope as
// in-flight if needed. Expired entries are lazily dropped.
func (s *InMemoryStore) CheckAndMark(scope Scope) (CacheStatus, *Credential, chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, exists := s.entries[scope]; exists {
		if !entry.expired(time.Now()) {
			return StatusHit, entry.cred, nil
		}
		delete(s.entries, scope)
	}

	if done, exists := s.inFlight[scope]; exists {
		return StatusInFlight, nil, done
	}

	done := make(chan struct{})
	s.inFlight[scope] = done
	return StatusMiss, nil, done
}

// WaitForResult waits for an in-flight payment to complete, respecting
// context cancellation.
func (s *InMemoryStore) WaitForResult(ctx context.Context, scope Scope, done chan struct{}) (*Credential, error) {
	select {
	case <-done:
		return s.Lookup(scope), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Lookup returns the cached credential for scope, or nil. Expired
// entries are treated as misses and dropped.
func (s *InMemoryStore) Lookup(scope Scope) *Credential {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[scope]
	if !exists {
		return nil
	}
	if entry.expired(time.Now()) {
		delete(s.entries, scope)
		return nil
	}
	return entry.cred
}

// Complete stores the credential, clears the in-flight marker and wakes
// waiters.
func (s *InMemoryStore) Complete(scope Scope, cred *Credential, validUntil time.Time, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[scope] = &cacheEntry{cred: cred, validUntil: validUntil}
	delete(s.inFlight, scope)
	close(done)
}

// Fail clears the in-flight marker without caching anything, signaling
// waiters that they should pay themselves.
func (s *InMemoryStore) Fail(scope Scope, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, scope)
	close(done)
}

// Invalidate drops the entry for scope, unconditionally when cred is
// nil and only while the entry still holds cred otherwise.
func (s *InMemoryStore) Invalidate(scope Scope, cred *Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[scope]
	if !exists {
		return
	}
	if cred != nil && !sameCredential(entry.cred, cred) {
		return
	}
	delete(s.entries, scope)
}
