package l402

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements CredentialStore on a shared Redis backend, so a
// fleet of processes reuses one paid credential per scope instead of
// each buying its own.
//
// In-flight payment coordination stays process-local: the singleflight
// guarantee holds within a process, while across processes Redis only
// narrows the window (a credential completed by one process is a hit
// for the others). Redis errors are treated as cache misses so a cache
// outage degrades to paying again rather than failing requests.
type RedisStore struct {
	rdb       redis.UniversalClient
	keyPrefix string
	opTimeout time.Duration

	mu       sync.Mutex
	inFlight map[Scope]chan struct{}
}

const (
	redisKeyPrefix  = "l402:credential:"
	redisOpTimeout  = 2 * time.Second
	fieldMacaroon   = "macaroon"
	fieldPreimage   = "preimage"
	fieldValidUntil = "valid_until"
)

// NewRedisStore creates a credential store backed by rdb.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{
		rdb:       rdb,
		keyPrefix: redisKeyPrefix,
		opTimeout: redisOpTimeout,
		inFlight:  make(map[Scope]chan struct{}),
	}
}

func (s *RedisStore) key(scope Scope) string {
	return s.keyPrefix + string(scope)
}

// CheckAndMark checks Redis for a credential and marks the scope as
// in-flight locally if none is usable. The fetch happens outside the
// lock: one scope's Redis latency must never stall unrelated scopes.
func (s *RedisStore) CheckAndMark(scope Scope) (CacheStatus, *Credential, chan struct{}) {
	cred, fetchErr := s.fetch(scope)
	if cred != nil {
		return StatusHit, cred, nil
	}

	s.mu.Lock()
	if done, exists := s.inFlight[scope]; exists {
		s.mu.Unlock()
		return StatusInFlight, nil, done
	}
	done := make(chan struct{})
	s.inFlight[scope] = done
	s.mu.Unlock()

	// A racer may have completed between the fetch and the mark;
	// re-check before electing ourselves the payer. Skipped when Redis
	// is unreachable, so an outage costs one timeout, not two.
	if fetchErr == nil {
		if cred, _ := s.fetch(scope); cred != nil {
			s.Fail(scope, done)
			return StatusHit, cred, nil
		}
	}
	return StatusMiss, nil, done
}

// WaitForResult waits for an in-flight payment to complete, respecting
// context cancellation.
func (s *RedisStore) WaitForResult(ctx context.Context, scope Scope, done chan struct{}) (*Credential, error) {
	select {
	case <-done:
		return s.Lookup(scope), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Lookup returns the credential stored for scope, or nil.
func (s *RedisStore) Lookup(scope Scope) *Credential {
	cred, _ := s.fetch(scope)
	return cred
}

// fetch loads and decodes the credential hash for scope. Decode
// failures and expired entries are misses; a non-nil error means Redis
// itself could not be reached.
func (s *RedisStore) fetch(scope Scope) (*Credential, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	fields, err := s.rdb.HGetAll(ctx, s.key(scope)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	if raw, ok := fields[fieldValidUntil]; ok && raw != "" {
		validUntil, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil || time.Now().After(validUntil) {
			return nil, nil
		}
	}

	token, err := DecodeToken(fields[fieldMacaroon])
	if err != nil {
		return nil, nil
	}
	preimage, err := hex.DecodeString(fields[fieldPreimage])
	if err != nil {
		return nil, nil
	}

	return &Credential{Token: token, Preimage: preimage}, nil
}

// Complete persists the credential, clears the local in-flight marker
// and wakes waiters. Expiry is enforced both locally (inclusive bound)
// and as a Redis TTL so dead entries don't pile up.
func (s *RedisStore) Complete(scope Scope, cred *Credential, validUntil time.Time, done chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	fields := map[string]interface{}{
		fieldMacaroon: EncodeToken(cred.Token),
		fieldPreimage: cred.Preimage.String(),
	}
	if !validUntil.IsZero() {
		fields[fieldValidUntil] = validUntil.Format(time.RFC3339Nano)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.key(scope))
	pipe.HSet(ctx, s.key(scope), fields)
	if !validUntil.IsZero() {
		pipe.ExpireAt(ctx, s.key(scope), validUntil.Add(time.Second))
	}
	_, _ = pipe.Exec(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, scope)
	close(done)
}

// Fail clears the local in-flight marker without touching Redis.
func (s *RedisStore) Fail(scope Scope, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, scope)
	close(done)
}

// Invalidate drops the entry for scope. A non-nil cred makes the
// removal conditional on the entry still holding cred, best-effort
// across processes: the compare and the delete are separate round
// trips, the same window the cross-process singleflight already has.
func (s *RedisStore) Invalidate(scope Scope, cred *Credential) {
	if cred != nil {
		current, err := s.fetch(scope)
		if err != nil || current == nil || !sameCredential(current, cred) {
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	_ = s.rdb.Del(ctx, s.key(scope)).Err()
}
