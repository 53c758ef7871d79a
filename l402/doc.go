// Package l402 implements the client side of the L402 (LSAT) protocol:
// HTTP resources gated behind a 402 Payment Required challenge that pairs
// a macaroon token with a Lightning Network invoice.
//
// # Overview
//
// A caller issues ordinary HTTP requests through a Client (or through an
// *http.Client wrapped with WrapHTTPClient). When a server answers 402
// with an LSAT challenge, the client pays the challenge invoice through a
// pluggable Payer, assembles the proof-of-payment credential and retries
// the request once with the credential attached. Resolved credentials are
// cached per resource scope, so subsequent requests to the same scope skip
// the payment round trip entirely.
//
// # Usage
//
// Basic usage with the default in-memory credential cache:
//
//	client := l402.NewClient(payer)
//	resp, err := client.Do(req)
//
// Transparent wrapping of an existing *http.Client:
//
//	httpClient := l402.WrapHTTPClient(&http.Client{}, client)
//	resp, err := httpClient.Get("https://api.example.com/v1/models")
//
// Custom cache backend (e.g. Redis, for sharing credentials across
// processes):
//
//	store := l402.NewRedisStore(redisClient)
//	client := l402.NewClient(payer, l402.WithStore(store))
//
// # Cost exposure
//
// The client pays at most once per logical call. If the server rejects a
// freshly paid credential with a second 402, the call fails with
// PaymentRejectedError rather than paying again; concurrent callers that
// race on the same uncached scope coordinate so only one of them pays.
package l402
