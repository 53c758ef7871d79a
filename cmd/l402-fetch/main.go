// l402-fetch retrieves a URL, transparently paying any L402 paywall in
// the way through a configured LND node. It is the command-line stand-in
// for an API agent that issues plain HTTP requests and never sees a 402.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/UmanX-Org/LangChainBitcoin/l402"
	"github.com/UmanX-Org/LangChainBitcoin/lightning"
)

var (
	flagMethod  string
	flagData    string
	flagHeaders []string
	flagEnvFile string
	flagTimeout time.Duration
	flagVerbose bool

	flagLndHost      string
	flagTLSCertPath  string
	flagMacaroonPath string
	flagFeeLimitSat  int64
)

var rootCmd = &cobra.Command{
	Use:   "l402-fetch <url>",
	Short: "Fetch a paywalled URL, paying through Lightning",
	Long: `Fetch an HTTP resource gated by the L402 (LSAT) protocol.

When the server answers 402 Payment Required, the challenge invoice is
paid through the configured LND node and the request is retried with the
resulting credential. Credentials are cached for the process lifetime,
so repeated fetches of the same service pay only once.

LND connection settings come from flags or, when --env is given, from a
dotenv file with LND_HOST, LND_TLS_CERT_PATH and LND_MACAROON_PATH.

Examples:
  l402-fetch http://localhost:8085/v1/models
  l402-fetch --env .env.shared --method POST --data '{"q":2}' http://localhost:8085/quote/2`,
	Args: cobra.ExactArgs(1),
	RunE: run,

	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVarP(&flagMethod, "method", "X", http.MethodGet, "HTTP method")
	rootCmd.Flags().StringVarP(&flagData, "data", "d", "", "request body")
	rootCmd.Flags().StringArrayVarP(&flagHeaders, "header", "H", nil, "extra request header (key: value), repeatable")
	rootCmd.Flags().StringVar(&flagEnvFile, "env", "", "dotenv file with LND connection settings")
	rootCmd.Flags().DurationVar(&flagTimeout, "payment-timeout", l402.DefaultPaymentTimeout, "bounded wait for invoice settlement")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "log protocol events")

	rootCmd.Flags().StringVar(&flagLndHost, "lnd-host", "", "LND gRPC endpoint (env LND_HOST)")
	rootCmd.Flags().StringVar(&flagTLSCertPath, "tls-cert", "", "LND tls.cert path (env LND_TLS_CERT_PATH)")
	rootCmd.Flags().StringVar(&flagMacaroonPath, "macaroon", "", "LND macaroon path (env LND_MACAROON_PATH)")
	rootCmd.Flags().Int64Var(&flagFeeLimitSat, "fee-limit", lightning.DefaultFeeLimitSat, "routing fee limit in satoshis")
}

func run(cmd *cobra.Command, args []string) error {
	if flagEnvFile != "" {
		if err := godotenv.Load(flagEnvFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	logger := zap.NewNop()
	if flagVerbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer logger.Sync()
	}

	payer, err := lightning.NewLndPayer(lightning.Config{
		Host:         fromFlagOrEnv(flagLndHost, "LND_HOST"),
		TLSCertPath:  fromFlagOrEnv(flagTLSCertPath, "LND_TLS_CERT_PATH"),
		MacaroonPath: fromFlagOrEnv(flagMacaroonPath, "LND_MACAROON_PATH"),
		FeeLimitSat:  flagFeeLimitSat,
	})
	if err != nil {
		return err
	}
	defer payer.Close()

	client := l402.NewClient(payer,
		l402.WithLogger(logger),
		l402.WithPaymentTimeout(flagTimeout),
	)

	var body io.Reader
	if flagData != "" {
		body = strings.NewReader(flagData)
	}
	req, err := http.NewRequestWithContext(cmd.Context(), flagMethod, args[0], body)
	if err != nil {
		return err
	}
	for _, h := range flagHeaders {
		key, value, found := strings.Cut(h, ":")
		if !found {
			return fmt.Errorf("invalid header %q, want key: value", h)
		}
		req.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	statusColor := color.New(color.FgGreen)
	if resp.StatusCode >= 400 {
		statusColor = color.New(color.FgRed)
	}
	statusColor.Fprintln(os.Stderr, resp.Status)

	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

func fromFlagOrEnv(flagValue, envKey string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(envKey)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
