package resources

import "github.com/acmecore/acmeclient/acme"

// OrderStatus is the server-reported lifecycle state of an Order.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.6
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderReady      OrderStatus = "ready"
	OrderProcessing OrderStatus = "processing"
	OrderValid      OrderStatus = "valid"
	OrderInvalid    OrderStatus = "invalid"
)

// Order represents a collection of identifiers an account wishes to obtain
// a certificate for.
//
// Server-driven transitions: pending -> ready (once every authorization is
// valid) -> processing (once finalize is POSTed) -> valid; any state may
// transition to invalid.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.3
type Order struct {
	// ID is the server-assigned Order URL.
	ID string `json:"-"`
	// Status is the Order's current lifecycle state.
	Status OrderStatus `json:"status"`
	// Expires is an RFC 3339 timestamp after which a pending/ready Order is
	// considered abandoned by the server.
	Expires string `json:"expires,omitempty"`
	// Identifiers are what the eventual certificate will cover.
	Identifiers []acme.Identifier `json:"identifiers"`
	// Authorizations are URLs for the Authorization resources the server
	// created for Identifiers.
	Authorizations []string `json:"authorizations"`
	// Finalize is the URL used to submit the CSR once Status is "ready".
	Finalize string `json:"finalize"`
	// Certificate is the URL to download the issued chain from, populated
	// once Status is "valid".
	Certificate string `json:"certificate,omitempty"`
	// Error is the server-reported problem, populated when Status is
	// "invalid".
	Error *acme.Problem `json:"error,omitempty"`

	// Account is the in-memory Account that created this Order. It is not
	// an ACME wire field.
	Account *Account `json:"-"`
}

func (o Order) String() string { return o.ID }
