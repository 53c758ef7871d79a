package l402

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	macaroon "gopkg.in/macaroon.v2"
)

// mintTokenB64 builds a base64 macaroon with the given key=value caveats,
// in the shape an L402-gated server would mint.
func mintTokenB64(t *testing.T, caveats ...string) string {
	t.Helper()

	mac, err := macaroon.New(
		[]byte("0000000000000000000000root-key"),
		[]byte("payment_hash=deadbeef"),
		"lsat",
		macaroon.LatestVersion,
	)
	if err != nil {
		t.Fatalf("minting macaroon: %v", err)
	}
	for _, cav := range caveats {
		if err := mac.AddFirstPartyCaveat([]byte(cav)); err != nil {
			t.Fatalf("adding caveat %q: %v", cav, err)
		}
	}

	raw, err := mac.MarshalBinary()
	if err != nil {
		t.Fatalf("marshaling macaroon: %v", err)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

const testInvoice = "lnbc1500n1pn2s39rpp5yqqqsyqcyq5rqwzqfqqqsyqcyq5rqwzqfqqqsyqcyq5rqwzqfqypqdq5xysxxatsyp3k7enxv4js"

func TestParseChallenge(t *testing.T) {
	macB64 := mintTokenB64(t)
	header := `LSAT macaroon="` + macB64 + `", invoice="` + testInvoice + `"`

	challenge, err := ParseChallenge(header)
	if err != nil {
		t.Fatalf("Expected challenge to parse, got %v", err)
	}
	if challenge.Macaroon != macB64 {
		t.Errorf("Expected macaroon %q, got %q", macB64, challenge.Macaroon)
	}
	if challenge.Invoice != Invoice(testInvoice) {
		t.Errorf("Expected invoice %q, got %q", testInvoice, challenge.Invoice)
	}
}

func TestParseChallengeL402Scheme(t *testing.T) {
	header := `L402 macaroon="` + mintTokenB64(t) + `", invoice="` + testInvoice + `"`
	if _, err := ParseChallenge(header); err != nil {
		t.Fatalf("Expected L402 scheme to be accepted, got %v", err)
	}
}

func TestParseChallengeUnquotedAttributes(t *testing.T) {
	macB64 := mintTokenB64(t)
	header := "LSAT macaroon=" + macB64 + ", invoice=" + testInvoice
	challenge, err := ParseChallenge(header)
	if err != nil {
		t.Fatalf("Expected unquoted attributes to parse, got %v", err)
	}
	if challenge.Macaroon != macB64 {
		t.Errorf("Expected macaroon %q, got %q", macB64, challenge.Macaroon)
	}
}

func TestParseChallengeMalformed(t *testing.T) {
	macB64 := mintTokenB64(t)

	cases := []struct {
		name   string
		header string
	}{
		{"empty header", ""},
		{"no attributes", "LSAT"},
		{"wrong scheme", `Bearer macaroon="` + macB64 + `", invoice="` + testInvoice + `"`},
		{"missing macaroon", `LSAT invoice="` + testInvoice + `"`},
		{"missing invoice", `LSAT macaroon="` + macB64 + `"`},
		{"bad macaroon base64", `LSAT macaroon="!!not-base64!!", invoice="` + testInvoice + `"`},
		{"bad invoice syntax", `LSAT macaroon="` + macB64 + `", invoice="not lightning"`},
		{"empty invoice", `LSAT macaroon="` + macB64 + `", invoice=""`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseChallenge(tc.header)
			var malformed *MalformedChallengeError
			if !errors.As(err, &malformed) {
				t.Fatalf("Expected MalformedChallengeError, got %v", err)
			}
		})
	}
}

func TestDecodeTokenCaveats(t *testing.T) {
	tokenB64 := mintTokenB64(t,
		"service=memes:0",
		"tier=free",
		"tier=paid",
	)

	token, err := DecodeToken(tokenB64)
	if err != nil {
		t.Fatalf("Expected token to decode, got %v", err)
	}

	caveats := token.Caveats()
	want := []Caveat{
		{Key: "service", Value: "memes:0"},
		{Key: "tier", Value: "free"},
		{Key: "tier", Value: "paid"},
	}
	if len(caveats) != len(want) {
		t.Fatalf("Expected %d caveats, got %d", len(want), len(caveats))
	}
	for i := range want {
		if caveats[i] != want[i] {
			t.Errorf("Caveat %d: expected %+v, got %+v", i, want[i], caveats[i])
		}
	}
}

func TestDecodeTokenMalformed(t *testing.T) {
	cases := []struct {
		name     string
		tokenB64 string
	}{
		{"bad base64", "!!not-base64!!"},
		{"not a macaroon", base64.StdEncoding.EncodeToString([]byte("garbage"))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeToken(tc.tokenB64)
			var malformed *MalformedTokenError
			if !errors.As(err, &malformed) {
				t.Fatalf("Expected MalformedTokenError, got %v", err)
			}
		})
	}
}

func TestEncodeTokenRoundTrip(t *testing.T) {
	tokenB64 := mintTokenB64(t, "service=memes:0", "valid_until=1893456000")

	token, err := DecodeToken(tokenB64)
	if err != nil {
		t.Fatalf("Expected token to decode, got %v", err)
	}

	// Re-encoding must reproduce the server's serialization exactly.
	if got := EncodeToken(token); got != tokenB64 {
		t.Fatalf("Expected round-tripped token %q, got %q", tokenB64, got)
	}

	// And a second decode/encode cycle must be stable too.
	again, err := DecodeToken(EncodeToken(token))
	if err != nil {
		t.Fatalf("Expected re-decoded token to parse, got %v", err)
	}
	proof := Preimage{0xde, 0xad, 0xbe, 0xef}
	if EncodeCredential(token, proof) != EncodeCredential(again, proof) {
		t.Fatal("Expected credential encoding to be stable across round trips")
	}
}

func TestEncodeCredentialFormat(t *testing.T) {
	tokenB64 := mintTokenB64(t)
	token, err := DecodeToken(tokenB64)
	if err != nil {
		t.Fatalf("Expected token to decode, got %v", err)
	}

	proof := Preimage{0x01, 0x02, 0xab}
	encoded := EncodeCredential(token, proof)
	if encoded != tokenB64+":0102ab" {
		t.Errorf("Expected %q, got %q", tokenB64+":0102ab", encoded)
	}

	cred := &Credential{Token: token, Preimage: proof}
	header := cred.AuthorizationHeader()
	if !strings.HasPrefix(header, "LSAT ") {
		t.Errorf("Expected LSAT scheme prefix, got %q", header)
	}
	if header != "LSAT "+encoded {
		t.Errorf("Expected header %q, got %q", "LSAT "+encoded, header)
	}
}

func TestDecodeTokenAlternateBase64Alphabets(t *testing.T) {
	tokenB64 := mintTokenB64(t, "service=memes:0")
	raw, err := base64.StdEncoding.DecodeString(tokenB64)
	if err != nil {
		t.Fatal(err)
	}

	encodings := map[string]*base64.Encoding{
		"raw std": base64.RawStdEncoding,
		"url":     base64.URLEncoding,
		"raw url": base64.RawURLEncoding,
	}
	for name, enc := range encodings {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeToken(enc.EncodeToString(raw)); err != nil {
				t.Fatalf("Expected %s alphabet to decode, got %v", name, err)
			}
		})
	}
}
