package l402

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client negotiates L402 paywalls on behalf of a protocol-unaware
// caller. It dispatches requests through its transport, pays challenges
// via the configured Payer and caches resolved credentials per scope.
//
// A Client is safe for concurrent use. Requests to unrelated scopes
// proceed in parallel; requests racing on the same uncached scope elect
// a single payer (see CredentialStore).
type Client struct {
	payer      Payer
	transport  http.RoundTripper
	store      CredentialStore
	logger     *zap.Logger
	payTimeout time.Duration

	// scopeAlias maps an origin scope to the caveat-narrowed scope a
	// token declared for it, so later requests to the same origin find
	// credentials cached under the service scope.
	scopeAlias sync.Map // Scope -> Scope
}

// NewClient creates a payment-negotiating client around payer.
func NewClient(payer Payer, opts ...Option) *Client {
	cfg := &config{
		transport:  http.DefaultTransport,
		store:      NewInMemoryStore(),
		logger:     zap.NewNop(),
		payTimeout: DefaultPaymentTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Client{
		payer:      payer,
		transport:  cfg.transport,
		store:      cfg.store,
		logger:     cfg.logger,
		payTimeout: cfg.payTimeout,
	}
}

// Do executes the request, transparently paying a 402 challenge if the
// server issues one. Transport errors pass through unmodified; protocol
// and payment failures surface as the typed errors in this package.
//
// At most one payment and one payment-triggered retry happen per call.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.do(req, c.transport)
}

func (c *Client) do(req *http.Request, transport http.RoundTripper) (*http.Response, error) {
	ctx := req.Context()
	log := c.logger.With(
		zap.String("call_id", uuid.NewString()),
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
	)

	if err := snapshotBody(req); err != nil {
		return nil, err
	}

	// Optimistic auth: attach a cached credential before the first
	// dispatch so warm scopes skip the 402 round trip. A caller-supplied
	// Authorization header wins.
	origin := OriginScope(req.URL)
	scope := c.canonicalScope(origin)
	var attached *Credential
	if req.Header.Get(HeaderAuthorization) == "" {
		if cred := c.store.Lookup(scope); cred != nil {
			req.Header.Set(HeaderAuthorization, cred.AuthorizationHeader())
			attached = cred
			log.Debug("attached cached credential", zap.String("scope", string(scope)))
		}
	}

	resp, err := transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	challenge, token, err := consumeChallenge(resp)
	if err != nil {
		log.Warn("unusable payment challenge", zap.Error(err))
		return nil, err
	}

	// A 402 against a credential we attached means the server no longer
	// honors it (rotated macaroon key, revoked token). Drop that exact
	// credential so the fresh payment below replaces it rather than
	// racing a stale hit; a newer credential stored by a concurrent
	// caller since our dispatch stays.
	if attached != nil {
		c.store.Invalidate(scope, attached)
		log.Info("cached credential rejected, invalidating", zap.String("scope", string(scope)))
	}

	scope = ResolveScope(req.URL, token)
	if scope != origin {
		c.scopeAlias.Store(origin, scope)
	}
	log.Debug("payment required",
		zap.String("scope", string(scope)),
		zap.String("invoice", string(challenge.Invoice)),
	)

	cred, err := c.resolveCredential(ctx, log, scope, challenge, token)
	if err != nil {
		return nil, err
	}

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		retry.Body, err = req.GetBody()
		if err != nil {
			return nil, err
		}
	}
	retry.Header.Set(HeaderAuthorization, cred.AuthorizationHeader())

	resp, err = transport.RoundTrip(retry)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusPaymentRequired {
		// The server rejected a credential we just paid for. Never pay
		// twice for one logical call.
		drainAndClose(resp.Body)
		c.store.Invalidate(scope, cred)
		log.Error("freshly paid credential rejected", zap.String("scope", string(scope)))
		return nil, &PaymentRejectedError{Scope: scope}
	}

	log.Debug("request satisfied after payment", zap.Int("status", resp.StatusCode))
	return resp, nil
}

// resolveCredential produces a credential for scope, paying the
// challenge invoice unless a concurrent request already did.
func (c *Client) resolveCredential(ctx context.Context, log *zap.Logger, scope Scope, challenge *Challenge, token *Token) (*Credential, error) {
	for {
		status, cred, done := c.store.CheckAndMark(scope)
		switch status {
		case StatusHit:
			// Another request resolved the scope between our 402 and
			// now; reuse its credential.
			return cred, nil

		case StatusInFlight:
			log.Debug("waiting for in-flight payment", zap.String("scope", string(scope)))
			cred, err := c.store.WaitForResult(ctx, scope, done)
			if err != nil {
				return nil, err
			}
			if cred != nil {
				return cred, nil
			}
			// The elected payer failed; loop and pay our own invoice.

		case StatusMiss:
			return c.payChallenge(ctx, log, scope, challenge, token, done)
		}
	}
}

// payChallenge pays the invoice and publishes the resulting credential.
// The payment is detached from the caller's context: a Lightning
// payment cannot be safely aborted mid-flight, so once started it runs
// to completion and its result populates the cache even if the caller
// gave up.
func (c *Client) payChallenge(ctx context.Context, log *zap.Logger, scope Scope, challenge *Challenge, token *Token, done chan struct{}) (*Credential, error) {
	type payResult struct {
		cred *Credential
		err  error
	}
	resultCh := make(chan payResult, 1)

	go func() {
		payCtx, cancel := context.WithTimeout(context.Background(), c.payTimeout)
		defer cancel()

		preimage, err := c.payer.Pay(payCtx, challenge.Invoice)
		if err != nil {
			err = classifyPayError(err, challenge.Invoice, c.payTimeout)
			c.store.Fail(scope, done)
			log.Warn("payment failed", zap.String("scope", string(scope)), zap.Error(err))
			resultCh <- payResult{err: err}
			return
		}

		cred := &Credential{Token: token, Preimage: preimage}
		validUntil, _ := token.ValidUntil()
		c.store.Complete(scope, cred, validUntil, done)
		log.Info("payment settled",
			zap.String("scope", string(scope)),
			zap.Time("valid_until", validUntil),
		)
		resultCh <- payResult{cred: cred}
	}()

	select {
	case r := <-resultCh:
		return r.cred, r.err
	case <-ctx.Done():
		// The goroutine above keeps running and settles the cache for
		// subsequent callers.
		return nil, ctx.Err()
	}
}

// classifyPayError maps raw payer errors onto the payment error
// taxonomy, leaving already-typed errors untouched.
func classifyPayError(err error, invoice Invoice, timeout time.Duration) error {
	var (
		failed   *PaymentFailedError
		timedOut *PaymentTimeoutError
	)
	if errors.As(err, &failed) || errors.As(err, &timedOut) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &PaymentTimeoutError{Invoice: invoice, Timeout: timeout}
	}
	return &PaymentFailedError{Invoice: invoice, Reason: err.Error(), Err: err}
}

// canonicalScope routes an origin to the caveat-narrowed scope a prior
// token declared for it, if any.
func (c *Client) canonicalScope(origin Scope) Scope {
	if narrowed, ok := c.scopeAlias.Load(origin); ok {
		return narrowed.(Scope)
	}
	return origin
}

// consumeChallenge parses the WWW-Authenticate header of a 402 response
// and decodes its token, releasing the response body either way.
func consumeChallenge(resp *http.Response) (*Challenge, *Token, error) {
	defer drainAndClose(resp.Body)

	challenge, err := ParseChallenge(resp.Header.Get(HeaderAuthenticate))
	if err != nil {
		return nil, nil, err
	}
	token, err := DecodeToken(challenge.Macaroon)
	if err != nil {
		return nil, nil, err
	}
	return challenge, token, nil
}

// snapshotBody makes the request body replayable so the post-payment
// retry can resend it.
func snapshotBody(req *http.Request) error {
	if req.Body == nil || req.GetBody != nil {
		return nil
	}
	buf, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return err
	}
	req.Body = io.NopCloser(bytes.NewReader(buf))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	return nil
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	body.Close()
}
