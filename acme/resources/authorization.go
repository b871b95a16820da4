package resources

import "github.com/acmecore/acmeclient/acme"

// AuthorizationStatus is the server-reported lifecycle state of an
// Authorization.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.6
type AuthorizationStatus string

const (
	AuthorizationPending      AuthorizationStatus = "pending"
	AuthorizationValid        AuthorizationStatus = "valid"
	AuthorizationInvalid      AuthorizationStatus = "invalid"
	AuthorizationDeactivated  AuthorizationStatus = "deactivated"
	AuthorizationExpired      AuthorizationStatus = "expired"
	AuthorizationRevoked      AuthorizationStatus = "revoked"
)

// Authorization represents an account's proof of control over a single
// identifier, built from one or more Challenges.
//
// Transitions: pending -> valid (one challenge satisfied) | invalid (all
// challenges failed) | deactivated (client request).
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.4
type Authorization struct {
	// ID is the server-assigned Authorization URL.
	ID string `json:"-"`
	// Status is the Authorization's current lifecycle state.
	Status AuthorizationStatus `json:"status"`
	// Identifier is what this Authorization proves control of. Unlike an
	// Order's Identifiers this never carries a wildcard prefix; see
	// Wildcard instead.
	Identifier acme.Identifier `json:"identifier"`
	// Challenges are the ways the client may satisfy this Authorization.
	Challenges []Challenge `json:"challenges"`
	// Expires is an RFC 3339 timestamp.
	Expires string `json:"expires,omitempty"`
	// Wildcard is true iff this Authorization was created for a newOrder
	// identifier that carried a "*." prefix. Wildcard authorizations MUST
	// be satisfied with dns-01 (RFC 8555 section 8.4).
	Wildcard bool `json:"wildcard,omitempty"`
}

func (a Authorization) String() string { return a.ID }
