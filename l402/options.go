package l402

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultPaymentTimeout bounds how long a single payment attempt may
// wait for settlement before surfacing PaymentTimeoutError. Lightning
// settlement is usually sub-second but can take multiple seconds across
// long routes.
const DefaultPaymentTimeout = 60 * time.Second

// config holds the assembled Client configuration.
type config struct {
	transport  http.RoundTripper
	store      CredentialStore
	logger     *zap.Logger
	payTimeout time.Duration
}

// Option configures a Client.
type Option func(*config)

// WithTransport sets the underlying http.RoundTripper requests are
// dispatched through.
//
// Default: http.DefaultTransport
func WithTransport(transport http.RoundTripper) Option {
	return func(c *config) {
		c.transport = transport
	}
}

// WithStore sets a custom CredentialStore implementation.
//
// Use this for shared cache backends like Redis:
//
//	store := l402.NewRedisStore(redisClient)
//	client := l402.NewClient(payer, l402.WithStore(store))
//
// Default: NewInMemoryStore()
func WithStore(store CredentialStore) Option {
	return func(c *config) {
		c.store = store
	}
}

// WithLogger sets the structured logger used for protocol events
// (challenges, payments, cache decisions).
//
// Default: zap.NewNop()
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithPaymentTimeout bounds the settlement wait for each payment
// attempt. Exceeding it fails the call with PaymentTimeoutError; any
// pre-existing cache entry for the scope is left alone.
//
// Default: DefaultPaymentTimeout
func WithPaymentTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.payTimeout = timeout
	}
}
