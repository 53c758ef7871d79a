package lightning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Host:         "localhost:10009",
		TLSCertPath:  "/lnd/tls.cert",
		MacaroonPath: "/lnd/admin.macaroon",
	}
	require.NoError(t, valid.validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.Host = "" }},
		{"missing tls cert", func(c *Config) { c.TLSCertPath = "" }},
		{"missing macaroon", func(c *Config) { c.MacaroonPath = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			require.Error(t, cfg.validate())
		})
	}
}

func TestNewLndPayerRejectsBadPaths(t *testing.T) {
	_, err := NewLndPayer(Config{
		Host:         "localhost:10009",
		TLSCertPath:  "/nonexistent/tls.cert",
		MacaroonPath: "/nonexistent/admin.macaroon",
	})
	require.Error(t, err)
}

func TestPaymentTimeoutSeconds(t *testing.T) {
	t.Run("no deadline defaults", func(t *testing.T) {
		require.EqualValues(t, 60, paymentTimeoutSeconds(context.Background()))
	})

	t.Run("deadline derived", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		secs := paymentTimeoutSeconds(ctx)
		require.Greater(t, secs, int32(25))
		require.LessOrEqual(t, secs, int32(30))
	})

	t.Run("expired deadline floors at one", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		time.Sleep(time.Millisecond)
		require.EqualValues(t, 1, paymentTimeoutSeconds(ctx))
	})
}
