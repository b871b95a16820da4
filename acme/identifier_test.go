package acme

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDNSIdentifierNormalizes(t *testing.T) {
	id := DNSIdentifier("  Example.COM  ")
	require.Equal(t, IdentifierDNS, id.Type)
	require.Equal(t, "example.com", id.Value)
}

func TestIdentifierWildcard(t *testing.T) {
	wildcard := DNSIdentifier("*.example.com")
	require.True(t, wildcard.IsWildcard())
	require.Equal(t, "example.com", wildcard.BaseDomain())

	plain := DNSIdentifier("example.com")
	require.False(t, plain.IsWildcard())
	require.Equal(t, "example.com", plain.BaseDomain())
}

func TestIdentifiersFromNamesDedupesPreservingOrder(t *testing.T) {
	ids := IdentifiersFromNames("example.com", []string{"example.com", "www.example.com", "EXAMPLE.COM"})
	require.Len(t, ids, 2)
	require.Equal(t, "example.com", ids[0].Value)
	require.Equal(t, "www.example.com", ids[1].Value)
}

func TestIdentifiersFromNamesSkipsEmptyCommonName(t *testing.T) {
	ids := IdentifiersFromNames("", []string{"example.com"})
	require.Len(t, ids, 1)
	require.Equal(t, "example.com", ids[0].Value)
}
