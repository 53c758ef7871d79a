package l402

import "context"

// Payer is the narrow payment capability the client depends on,
// implemented by a Lightning-node collaborator (see the lightning
// package for an LND-backed implementation).
//
// Pay settles the given invoice and returns the revealed preimage.
// Failures surface as *PaymentFailedError (insufficient balance, no
// route, expired invoice, unreachable node) or *PaymentTimeoutError
// when settlement does not happen before the context deadline.
//
// Implementations must be safe for concurrent calls on distinct
// invoices. Paying the same invoice twice may either succeed
// idempotently or fail; the client tolerates both and never relies on
// it.
type Payer interface {
	Pay(ctx context.Context, invoice Invoice) (Preimage, error)
}

// PayerFunc adapts a function to the Payer interface.
type PayerFunc func(ctx context.Context, invoice Invoice) (Preimage, error)

// Pay implements Payer.
func (f PayerFunc) Pay(ctx context.Context, invoice Invoice) (Preimage, error) {
	return f(ctx, invoice)
}
