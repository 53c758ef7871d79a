package l402

import (
	"encoding/hex"

	macaroon "gopkg.in/macaroon.v2"
)

// Header and scheme names used by the protocol.
const (
	// HeaderAuthenticate carries the server's payment challenge.
	HeaderAuthenticate = "WWW-Authenticate"

	// HeaderAuthorization carries the client's credential.
	HeaderAuthorization = "Authorization"

	// AuthScheme is the scheme emitted in Authorization headers. Servers
	// historically answer with either "LSAT" or the renamed "L402"; both
	// are accepted when parsing challenges.
	AuthScheme = "LSAT"

	authSchemeL402 = "L402"
)

// Invoice is a BOLT11 Lightning payment request. The client treats it as
// opaque beyond basic syntax checks; only the Payer interprets it.
type Invoice string

// Preimage is the secret revealed by settling a Lightning payment. It is
// bound to exactly one invoice and serves as proof that invoice was paid.
type Preimage []byte

// String returns the hex encoding used in Authorization headers.
func (p Preimage) String() string {
	return hex.EncodeToString(p)
}

// Caveat is a first-party macaroon restriction of the form key=value.
// Caveats are read-only to the client: they determine cache scope and
// expiry but are never modified.
type Caveat struct {
	Key   string
	Value string
}

// Token is a decoded LSAT macaroon. The raw serialization is retained so
// re-encoding is byte-for-byte identical to what the server minted.
type Token struct {
	mac     *macaroon.Macaroon
	raw     []byte
	caveats []Caveat
}

// ID returns the macaroon's identifier.
func (t *Token) ID() []byte {
	return t.mac.Id()
}

// Caveats returns the token's first-party caveats in macaroon order.
// Duplicate keys are preserved; interpretation helpers apply macaroon
// conjunction semantics (every caveat must hold).
func (t *Token) Caveats() []Caveat {
	out := make([]Caveat, len(t.caveats))
	copy(out, t.caveats)
	return out
}

// Challenge is a parsed LSAT payment challenge from a 402 response.
// Immutable once parsed.
type Challenge struct {
	// Macaroon is the base64 token exactly as presented by the server.
	Macaroon string

	// Invoice is the payment request to settle for access.
	Invoice Invoice
}

// Credential pairs a token with the preimage proving its invoice was
// paid. Created once per resolved challenge, then cached.
type Credential struct {
	Token    *Token
	Preimage Preimage
}

// AuthorizationHeader formats the credential for the Authorization
// header: `LSAT <base64(macaroon)>:<preimage_hex>`.
func (c *Credential) AuthorizationHeader() string {
	return AuthScheme + " " + EncodeCredential(c.Token, c.Preimage)
}
