// Package acme provides the core ACMEv2 (RFC 8555) protocol types: resource
// name constants, identifiers, the server "problem" document, and the typed
// error taxonomy the rest of the module uses to report failures.
package acme

// Resource is a closed enumeration of the well-known keys that may appear in
// an ACME server's directory object. Lookups use these named constants
// instead of raw strings; Resource is a plain string type, so the compiler
// does not reject other values, and Client.GetEndpointURL reports a name
// the directory lacks by returning false.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.1
type Resource string

const (
	NewNonce   Resource = "newNonce"
	NewAccount Resource = "newAccount"
	NewOrder   Resource = "newOrder"
	RevokeCert Resource = "revokeCert"
	KeyChange  Resource = "keyChange"
	Meta       Resource = "meta"
)

// ReplayNonceHeader is the HTTP response header an ACME server uses to
// communicate a fresh nonce.
//
// See https://tools.ietf.org/html/rfc8555#section-6.5.1
const ReplayNonceHeader = "Replay-Nonce"

// LocationHeader carries the URL of a newly created resource (an Account or
// an Order) in the response to its creating request.
const LocationHeader = "Location"

// JOSEContentType is the Content-Type ACME requires for every signed
// request body.
const JOSEContentType = "application/jose+json"

// CertificateContentType is the Content-Type an ACME server returns a
// certificate chain as.
const CertificateContentType = "application/pem-certificate-chain"

// Well-known directory URLs. Arbitrary URLs (private CAs, Pebble, other
// ACME servers) are equally supported; these are shipped only as
// convenience constants.
const (
	LetsEncryptProductionURL = "https://acme-v02.api.letsencrypt.org/directory"
	LetsEncryptStagingURL    = "https://acme-staging-v02.api.letsencrypt.org/directory"
)

// ChallengeType identifies one of the three challenge validation methods
// this module understands.
type ChallengeType string

const (
	ChallengeHTTP01    ChallengeType = "http-01"
	ChallengeDNS01     ChallengeType = "dns-01"
	ChallengeTLSALPN01 ChallengeType = "tls-alpn-01"
)

// DefaultChallengePriority is the challenge-type preference order the
// orchestrator uses when an authorization offers more than one challenge
// and the caller hasn't overridden it. Wildcard identifiers always use
// dns-01 regardless of this ordering (RFC 8555 section 8.4).
var DefaultChallengePriority = []ChallengeType{ChallengeHTTP01, ChallengeDNS01}
