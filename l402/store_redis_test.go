package l402

import (
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// An unreachable Redis must degrade to cache misses, never to failed
// requests: the client then simply pays again.
func TestRedisStoreDegradesToMissWithoutServer(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	store := NewRedisStore(rdb)
	scope := Scope("http://localhost:8085")

	if cred := store.Lookup(scope); cred != nil {
		t.Fatalf("Expected lookup miss against unreachable redis, got %v", cred)
	}

	status, _, done := store.CheckAndMark(scope)
	if status != StatusMiss {
		t.Fatalf("Expected StatusMiss, got %v", status)
	}

	// In-flight coordination is process-local and must keep working.
	status, _, waitDone := store.CheckAndMark(scope)
	if status != StatusInFlight {
		t.Fatalf("Expected StatusInFlight, got %v", status)
	}

	go store.Fail(scope, done)
	<-waitDone
}

// Requests to unrelated scopes must not queue behind each other's
// Redis round trips. A backend that accepts connections but never
// replies pins each fetch at the operation timeout; a second scope's
// CheckAndMark has to pay only its own fetch, not the first scope's
// too.
func TestRedisStoreScopesNotSerializedBySlowBackend(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: ln.Addr().String()}))
	store.opTimeout = 600 * time.Millisecond

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _, done := store.CheckAndMark("http://stalled.example")
		if done != nil {
			store.Fail("http://stalled.example", done)
		}
	}()

	// Give the first CheckAndMark time to enter its fetch.
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	status, _, done := store.CheckAndMark("http://unrelated.example")
	elapsed := time.Since(start)
	if done != nil {
		store.Fail("http://unrelated.example", done)
	}
	if status != StatusMiss {
		t.Fatalf("Expected StatusMiss, got %v", status)
	}
	if elapsed >= store.opTimeout+300*time.Millisecond {
		t.Fatalf("Expected unrelated scope to pay only its own fetch, blocked for %v", elapsed)
	}
	<-firstDone
}

func TestRedisStoreKeyNamespacing(t *testing.T) {
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}))

	if got := store.key("http://localhost:8085"); got != "l402:credential:http://localhost:8085" {
		t.Errorf("Expected namespaced key, got %q", got)
	}
	if store.key("service:memes:0") == store.key("http://memes") {
		t.Error("Expected distinct scopes to map to distinct keys")
	}
}
