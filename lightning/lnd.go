// Package lightning provides the LND-backed implementation of the l402
// payment capability: a gRPC client that settles BOLT11 invoices through
// a Lightning node and surfaces the revealed preimage as proof of
// payment.
package lightning

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"github.com/lightningnetwork/lnd/macaroons"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	macaroon "gopkg.in/macaroon.v2"

	"github.com/UmanX-Org/LangChainBitcoin/l402"
)

// DefaultFeeLimitSat caps routing fees per payment. Paywall invoices
// are small; anything needing more fee than this is not worth routing.
const DefaultFeeLimitSat = 100

// Config describes how to reach and authenticate against an LND node.
type Config struct {
	// Host is the gRPC endpoint, e.g. "localhost:10009".
	Host string

	// TLSCertPath points at the node's tls.cert.
	TLSCertPath string

	// MacaroonPath points at a macaroon authorized to pay, typically
	// admin.macaroon.
	MacaroonPath string

	// FeeLimitSat caps routing fees; zero means DefaultFeeLimitSat.
	FeeLimitSat int64
}

func (c Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("lnd host is required")
	}
	if c.TLSCertPath == "" {
		return fmt.Errorf("lnd tls cert path is required")
	}
	if c.MacaroonPath == "" {
		return fmt.Errorf("lnd macaroon path is required")
	}
	return nil
}

// LndPayer implements l402.Payer against an LND node's router RPC.
type LndPayer struct {
	conn        *grpc.ClientConn
	router      routerrpc.RouterClient
	feeLimitSat int64
}

// NewLndPayer dials the configured node. The connection is lazy: dial
// errors for an unreachable node surface on the first Pay call.
func NewLndPayer(cfg Config) (*LndPayer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	tlsCreds, err := credentials.NewClientTLSFromFile(cfg.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("load tls cert: %w", err)
	}

	macBytes, err := os.ReadFile(cfg.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("read macaroon: %w", err)
	}
	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return nil, fmt.Errorf("decode macaroon: %w", err)
	}
	macCred, err := macaroons.NewMacaroonCredential(mac)
	if err != nil {
		return nil, fmt.Errorf("macaroon credential: %w", err)
	}

	conn, err := grpc.Dial(
		cfg.Host,
		grpc.WithTransportCredentials(tlsCreds),
		grpc.WithPerRPCCredentials(macCred),
	)
	if err != nil {
		return nil, fmt.Errorf("dial lnd: %w", err)
	}

	feeLimit := cfg.FeeLimitSat
	if feeLimit == 0 {
		feeLimit = DefaultFeeLimitSat
	}

	return &LndPayer{
		conn:        conn,
		router:      routerrpc.NewRouterClient(conn),
		feeLimitSat: feeLimit,
	}, nil
}

// Pay settles the invoice via SendPaymentV2 and returns the preimage of
// the settled payment. The context deadline bounds the settlement wait;
// LND keeps attempting in-flight HTLCs on its own schedule regardless,
// which is why the l402 client never re-pays an invoice it timed out on.
func (p *LndPayer) Pay(ctx context.Context, invoice l402.Invoice) (l402.Preimage, error) {
	start := time.Now()

	req := &routerrpc.SendPaymentRequest{
		PaymentRequest:    string(invoice),
		TimeoutSeconds:    paymentTimeoutSeconds(ctx),
		FeeLimitSat:       p.feeLimitSat,
		NoInflightUpdates: true,
	}

	stream, err := p.router.SendPaymentV2(ctx, req)
	if err != nil {
		return nil, p.wrapErr(ctx, invoice, start, err)
	}

	for {
		payment, err := stream.Recv()
		if err != nil {
			return nil, p.wrapErr(ctx, invoice, start, err)
		}

		switch payment.Status {
		case lnrpc.Payment_SUCCEEDED:
			preimage, err := hex.DecodeString(payment.PaymentPreimage)
			if err != nil || len(preimage) == 0 {
				return nil, &l402.PaymentFailedError{
					Invoice: invoice,
					Reason:  "node returned an unusable preimage",
					Err:     err,
				}
			}
			return l402.Preimage(preimage), nil

		case lnrpc.Payment_FAILED:
			return nil, &l402.PaymentFailedError{
				Invoice: invoice,
				Reason:  payment.FailureReason.String(),
			}
		}
		// IN_FLIGHT and other transitional states: keep waiting.
	}
}

// wrapErr maps stream/dial errors onto the payment error taxonomy.
func (p *LndPayer) wrapErr(ctx context.Context, invoice l402.Invoice, start time.Time, err error) error {
	if ctx.Err() != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return &l402.PaymentTimeoutError{
				Invoice: invoice,
				Timeout: time.Since(start),
			}
		}
		return ctx.Err()
	}
	return &l402.PaymentFailedError{
		Invoice: invoice,
		Reason:  "lnd payment stream failed",
		Err:     err,
	}
}

// paymentTimeoutSeconds derives LND's payment attempt timeout from the
// context deadline, defaulting to 60s when none is set. SendPaymentV2
// requires a positive timeout.
func paymentTimeoutSeconds(ctx context.Context) int32 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 60
	}
	secs := int32(time.Until(deadline) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Close tears down the gRPC connection.
func (p *LndPayer) Close() error {
	return p.conn.Close()
}
