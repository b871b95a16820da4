package acmeorch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/acme/keys"
	"github.com/acmecore/acmeclient/acme/resources"
)

// TestLocalResponderHTTP01 exercises the embedded challtestsrv-backed
// responder end to end: CreateFn provisions the well-known path and
// verifyHTTP01 (the same function satisfy.go's self-verification uses)
// confirms it, RemoveFn tears it down again.
func TestLocalResponderHTTP01(t *testing.T) {
	r, err := NewLocalResponder(LocalResponderConfig{
		HTTPOneAddrs: []string{"127.0.0.1:15002"},
	})
	require.NoError(t, err)
	defer r.Shutdown()

	signer, err := keys.NewSigner(keys.RSA)
	require.NoError(t, err)
	keyAuth := keys.KeyAuth(signer, "local-token")
	require.NoError(t, err)

	authz := &resources.Authorization{Identifier: acme.DNSIdentifier("example.com")}
	chall := &resources.Challenge{Type: acme.ChallengeHTTP01, Token: "local-token"}

	require.NoError(t, r.CreateFn(context.Background(), authz, chall, keyAuth))
	require.NoError(t, verifyHTTP01(context.Background(), "127.0.0.1:15002", "local-token", keyAuth))

	require.NoError(t, r.RemoveFn(context.Background(), authz, chall, keyAuth))
	require.Error(t, verifyHTTP01(context.Background(), "127.0.0.1:15002", "local-token", keyAuth))
}

// TestLocalResponderDNS01 exercises the DNS-01 path the same way.
func TestLocalResponderDNS01(t *testing.T) {
	r, err := NewLocalResponder(LocalResponderConfig{
		DNSOneAddrs: []string{"127.0.0.1:15053"},
	})
	require.NoError(t, err)
	defer r.Shutdown()

	signer, err := keys.NewSigner(keys.RSA)
	require.NoError(t, err)
	keyAuth := keys.KeyAuth(signer, "dns-token")
	require.NoError(t, err)

	authz := &resources.Authorization{Identifier: acme.DNSIdentifier("example.com")}
	chall := &resources.Challenge{Type: acme.ChallengeDNS01, Token: "dns-token"}

	require.NoError(t, r.CreateFn(context.Background(), authz, chall, keyAuth))
	require.NoError(t, verifyDNS01("127.0.0.1:15053", "example.com", keyAuth))

	require.NoError(t, r.RemoveFn(context.Background(), authz, chall, keyAuth))
	require.Error(t, verifyDNS01("127.0.0.1:15053", "example.com", keyAuth))
}
