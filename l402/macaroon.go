package l402

import (
	"encoding/base64"
	"strings"

	macaroon "gopkg.in/macaroon.v2"
)

// ParseChallenge parses the WWW-Authenticate header of a 402 response
// into a Challenge. The header must use the LSAT (or L402) scheme and
// carry both a macaroon= attribute holding valid base64 and an invoice=
// attribute holding a plausible BOLT11 payment request.
func ParseChallenge(headerValue string) (*Challenge, error) {
	header := strings.TrimSpace(headerValue)
	if header == "" {
		return nil, &MalformedChallengeError{Reason: "empty WWW-Authenticate header"}
	}

	scheme, rest, found := strings.Cut(header, " ")
	if !found {
		return nil, &MalformedChallengeError{Reason: "missing challenge attributes"}
	}
	if !strings.EqualFold(scheme, AuthScheme) && !strings.EqualFold(scheme, authSchemeL402) {
		return nil, &MalformedChallengeError{Reason: "unsupported scheme " + scheme}
	}

	params := parseAuthParams(rest)

	macB64, ok := params["macaroon"]
	if !ok || macB64 == "" {
		return nil, &MalformedChallengeError{Reason: "missing macaroon attribute"}
	}
	if _, err := decodeBase64(macB64); err != nil {
		return nil, &MalformedChallengeError{Reason: "macaroon attribute is not valid base64"}
	}

	invoice, ok := params["invoice"]
	if !ok || invoice == "" {
		return nil, &MalformedChallengeError{Reason: "missing invoice attribute"}
	}
	if !validInvoiceSyntax(invoice) {
		return nil, &MalformedChallengeError{Reason: "invoice attribute is not a valid payment request"}
	}

	return &Challenge{
		Macaroon: macB64,
		Invoice:  Invoice(invoice),
	}, nil
}

// DecodeToken decodes a base64 macaroon into a Token, extracting its
// first-party caveats as an ordered key=value sequence. Duplicate caveat
// keys are preserved in macaroon order.
func DecodeToken(tokenB64 string) (*Token, error) {
	raw, err := decodeBase64(tokenB64)
	if err != nil {
		return nil, &MalformedTokenError{Reason: "invalid base64", Err: err}
	}

	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(raw); err != nil {
		return nil, &MalformedTokenError{Reason: "invalid macaroon encoding", Err: err}
	}

	var caveats []Caveat
	for _, cav := range mac.Caveats() {
		if len(cav.VerificationId) > 0 {
			// Third-party caveats carry no key=value condition; LSAT
			// tokens do not use them but their presence is not an error.
			continue
		}
		key, value, found := strings.Cut(string(cav.Id), "=")
		if !found {
			return nil, &MalformedTokenError{
				Reason: "caveat " + string(cav.Id) + " is not a key=value condition",
			}
		}
		caveats = append(caveats, Caveat{Key: key, Value: value})
	}

	return &Token{
		mac:     mac,
		raw:     raw,
		caveats: caveats,
	}, nil
}

// EncodeToken serializes the token back to base64. The original raw
// bytes are reused, so encoding a decoded token reproduces the server's
// serialization exactly.
func EncodeToken(t *Token) string {
	return base64.StdEncoding.EncodeToString(t.raw)
}

// EncodeCredential formats a token and its payment proof as
// `<base64(macaroon)>:<preimage_hex>`. Pure and deterministic.
func EncodeCredential(t *Token, proof Preimage) string {
	return EncodeToken(t) + ":" + proof.String()
}

// base64Encodings lists the accepted alphabets. Servers mint standard
// base64 but URL-safe and unpadded variants appear in the wild.
var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

func decodeBase64(s string) ([]byte, error) {
	var firstErr error
	for _, enc := range base64Encodings {
		raw, err := enc.DecodeString(s)
		if err == nil {
			return raw, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// parseAuthParams splits `k1="v1", k2="v2"` attribute lists, honoring
// commas inside quoted values. Unknown attributes are retained so future
// challenge extensions don't break parsing.
func parseAuthParams(s string) map[string]string {
	params := make(map[string]string)

	var (
		part     strings.Builder
		inQuotes bool
		parts    []string
	)
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			part.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, part.String())
			part.Reset()
		default:
			part.WriteRune(r)
		}
	}
	parts = append(parts, part.String())

	for _, p := range parts {
		key, value, found := strings.Cut(strings.TrimSpace(p), "=")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.Trim(strings.TrimSpace(value), `"`)
		params[key] = value
	}
	return params
}

// validInvoiceSyntax performs the shallow check the client is allowed to
// make: invoices stay opaque beyond the BOLT11 ln prefix and charset.
func validInvoiceSyntax(s string) bool {
	if len(s) < 4 {
		return false
	}
	ls := strings.ToLower(s)
	if !strings.HasPrefix(ls, "ln") {
		return false
	}
	for _, r := range ls {
		isAlpha := r >= 'a' && r <= 'z'
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && !isDigit {
			return false
		}
	}
	return true
}
