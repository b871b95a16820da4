package acme

import "encoding/json"

// Problem is the RFC 7807 "problem document" an ACME server returns as the
// body of an error response. Kept close to the teacher's resources.Problem
// type, with the ACME-specific "badNonce"/etc. type URN handling layered on
// top in errors.go.
//
// See https://tools.ietf.org/html/rfc8555#section-6.7
type Problem struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
}

// The well-known ACME problem type URNs this module special-cases. Any
// other urn:ietf:params:acme:error:* value is surfaced as a plain
// ProtocolError.
const (
	ProblemBadNonce           = "urn:ietf:params:acme:error:badNonce"
	ProblemUserActionRequired = "urn:ietf:params:acme:error:userActionRequired"
	ProblemRateLimited        = "urn:ietf:params:acme:error:rateLimited"
	ProblemUnauthorized       = "urn:ietf:params:acme:error:unauthorized"
)

// ParseProblem best-effort decodes an ACME error response body into
// a Problem. If the body isn't a valid problem document, a Problem carrying
// the raw body as Detail is returned so the caller never loses information.
func ParseProblem(status int, body []byte) Problem {
	var p Problem
	if err := json.Unmarshal(body, &p); err != nil || p.Type == "" {
		return Problem{Status: status, Detail: string(body)}
	}
	if p.Status == 0 {
		p.Status = status
	}
	return p
}
