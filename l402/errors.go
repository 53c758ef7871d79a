package l402

import (
	"fmt"
	"time"
)

// MalformedChallengeError reports a 402 response whose WWW-Authenticate
// header is missing, uses an unknown scheme, or lacks a valid macaroon=
// or invoice= attribute. Protocol-level and non-retriable.
type MalformedChallengeError struct {
	Reason string
}

func (e *MalformedChallengeError) Error() string {
	return fmt.Sprintf("malformed payment challenge: %s", e.Reason)
}

// MalformedTokenError reports a token that is not valid base64 or does
// not decode to a structurally valid macaroon.
type MalformedTokenError struct {
	Reason string
	Err    error
}

func (e *MalformedTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed token: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed token: %s", e.Reason)
}

func (e *MalformedTokenError) Unwrap() error { return e.Err }

// PaymentFailedError reports that the Payer could not settle the
// challenge invoice (no route, insufficient balance, expired invoice,
// unreachable node). Not retried within the same logical call.
type PaymentFailedError struct {
	Invoice Invoice
	Reason  string
	Err     error
}

func (e *PaymentFailedError) Error() string {
	return fmt.Sprintf("payment failed: %s", e.Reason)
}

func (e *PaymentFailedError) Unwrap() error { return e.Err }

// PaymentTimeoutError reports that the invoice did not settle within the
// bounded wait window. The payment itself may still settle later; any
// pre-existing cache entry for the scope is left untouched.
type PaymentTimeoutError struct {
	Invoice Invoice
	Timeout time.Duration
}

func (e *PaymentTimeoutError) Error() string {
	return fmt.Sprintf("payment not settled within %v", e.Timeout)
}

// PaymentRejectedError reports that the server answered 402 again after
// being presented a freshly paid credential. The scope's cache entry is
// invalidated and the call fails hard: payment is never retried a second
// time for one logical call.
type PaymentRejectedError struct {
	Scope Scope
}

func (e *PaymentRejectedError) Error() string {
	return fmt.Sprintf("server rejected freshly paid credential for scope %q", e.Scope)
}
