package acme

import "strings"

// IdentifierType is the type of an ACME Identifier. In practice almost
// every deployed ACME server only supports "dns".
//
// See https://tools.ietf.org/html/rfc8555#section-9.7.7
type IdentifierType string

const IdentifierDNS IdentifierType = "dns"

// Identifier is a (type, value) pair naming what a certificate will cover.
//
// A DNS identifier used in a newOrder request may carry a "*." wildcard
// prefix. An Authorization's Identifier never carries the prefix; instead
// the Authorization's Wildcard field is set.
type Identifier struct {
	Type  IdentifierType `json:"type"`
	Value string         `json:"value"`
}

// IsWildcard reports whether value carries the "*." prefix used in newOrder
// requests for wildcard certificates.
func (i Identifier) IsWildcard() bool {
	return strings.HasPrefix(i.Value, "*.")
}

// BaseDomain strips a leading "*." wildcard prefix, returning the domain an
// Authorization will be created for.
func (i Identifier) BaseDomain() string {
	return strings.TrimPrefix(i.Value, "*.")
}

// DNSIdentifier builds a dns-type Identifier, trimming leading and
// trailing whitespace and lower-casing the value per RFC 8555 section 7.1.3's
// note that identifiers are compared case-insensitively.
func DNSIdentifier(value string) Identifier {
	return Identifier{Type: IdentifierDNS, Value: strings.ToLower(strings.TrimSpace(value))}
}

// IdentifiersFromNames builds a deduplicated slice of dns Identifiers from
// a commonName and a set of SAN names, preserving first-seen order. This is
// how the orchestrator derives newOrder's Identifiers list from a CSR.
func IdentifiersFromNames(commonName string, sans []string) []Identifier {
	seen := make(map[string]bool)
	var out []Identifier

	add := func(name string) {
		if name == "" {
			return
		}
		id := DNSIdentifier(name)
		if seen[id.Value] {
			return
		}
		seen[id.Value] = true
		out = append(out, id)
	}

	add(commonName)
	for _, s := range sans {
		add(s)
	}
	return out
}
