package l402

import (
	"bytes"
	"context"
	"time"
)

// CacheStatus represents the result of checking the credential store.
type CacheStatus int

const (
	// StatusMiss means no cached credential and no in-flight payment.
	StatusMiss CacheStatus = iota
	// StatusHit means a non-expired cached credential was found.
	StatusHit
	// StatusInFlight means another request is currently paying for this scope.
	StatusInFlight
)

// CredentialStore holds resolved credentials keyed by scope and
// coordinates concurrent requests so at most one payment is in flight
// per scope. Implementations must be safe for concurrent use.
//
// The interface mirrors the check/mark/complete channel protocol used
// for settlement deduplication: requests to different scopes proceed
// fully in parallel, requests racing on one uncached scope elect a
// single payer and the rest wait for its result.
type CredentialStore interface {
	// CheckAndMark atomically checks the store and marks the scope as
	// in-flight if needed.
	//
	// Returns:
	//   - StatusHit + credential + nil: use the cached credential
	//   - StatusInFlight + nil + done: another request is paying, wait on done
	//   - StatusMiss + nil + done: this request should pay (now marked in-flight)
	//
	// The done channel must be handed back through Complete or Fail.
	CheckAndMark(scope Scope) (CacheStatus, *Credential, chan struct{})

	// WaitForResult waits for an in-flight payment to finish, respecting
	// context cancellation. Returns the resulting credential, or nil if
	// the payment failed (the caller may then pay its own invoice).
	WaitForResult(ctx context.Context, scope Scope, done chan struct{}) (*Credential, error)

	// Lookup returns the cached credential for scope without marking
	// anything in-flight, or nil on a miss. Expired entries are misses.
	Lookup(scope Scope) *Credential

	// Complete stores the credential for scope, overwriting any prior
	// entry, and wakes waiters. A zero validUntil means no expiry: the
	// entry lives until explicitly invalidated.
	Complete(scope Scope, cred *Credential, validUntil time.Time, done chan struct{})

	// Fail clears the in-flight marker without touching any stored
	// entry, signaling waiters that the payment did not produce a
	// credential.
	Fail(scope Scope, done chan struct{})

	// Invalidate drops the entry for scope. Called when the server
	// rejects a credential, so subsequent calls pay again instead of
	// reusing it. A non-nil cred makes the removal conditional: the
	// entry is only dropped while it still holds cred, so a fresh
	// credential stored by a concurrent caller survives.
	Invalidate(scope Scope, cred *Credential)
}

// sameCredential reports whether two credentials carry the same token
// bytes and proof. Conditional invalidation compares by value because
// stores may rebuild the credential on every fetch.
func sameCredential(a, b *Credential) bool {
	if a == nil || b == nil {
		return a == b
	}
	return bytes.Equal(a.Token.raw, b.Token.raw) &&
		bytes.Equal(a.Preimage, b.Preimage)
}
