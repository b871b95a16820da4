package resources

import "github.com/acmecore/acmeclient/acme"

// ChallengeStatus is the server-reported lifecycle state of a Challenge.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.6
type ChallengeStatus string

const (
	ChallengePending    ChallengeStatus = "pending"
	ChallengeProcessing ChallengeStatus = "processing"
	ChallengeValid      ChallengeStatus = "valid"
	ChallengeInvalid    ChallengeStatus = "invalid"
)

// Challenge represents one server-assigned task that proves control of an
// Authorization's identifier.
//
// Transitions: pending -> processing (once the client POSTs its response)
// -> valid | invalid.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.5 and section 8.
type Challenge struct {
	// Type is one of http-01, dns-01, tls-alpn-01.
	Type acme.ChallengeType `json:"type"`
	// URL both identifies this Challenge and is where the client POSTs its
	// completion response.
	URL string `json:"url"`
	// Token is the server-issued value used to compute the key
	// authorization.
	Token string `json:"token"`
	// Status is the Challenge's current lifecycle state.
	Status ChallengeStatus `json:"status"`
	// Error is populated when Status is "invalid".
	Error *acme.Problem `json:"error,omitempty"`
}

func (c Challenge) String() string { return c.URL }
