package client_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/acme/client"
	"github.com/acmecore/acmeclient/acme/resources"
	"github.com/acmecore/acmeclient/acmetest"
)

func newTestClient(t *testing.T, srv *acmetest.Server) *client.Client {
	t.Helper()
	c, err := client.NewClient(client.ClientConfig{
		DirectoryURL: srv.URL(),
		ContactEmail: "a@example.com",
		AutoRegister: true,
		POSTAsGET:    true,
	})
	require.NoError(t, err)
	return c
}

// TestNewAccountHappyPath covers spec.md section 8 scenario S1.
func TestNewAccountHappyPath(t *testing.T) {
	srv := acmetest.NewServer(t)
	c := newTestClient(t, srv)
	require.NotEmpty(t, c.ActiveAccountID())
	require.Contains(t, c.ActiveAccountID(), "/account/")
}

// TestExistingAccountDiscovery covers scenario S2: FindAccount with a
// previously-registered key returns the same account id rather than an
// error.
func TestExistingAccountDiscovery(t *testing.T) {
	srv := acmetest.NewServer(t)
	first := newTestClient(t, srv)
	firstID := first.ActiveAccountID()

	second, err := client.NewClient(client.ClientConfig{
		DirectoryURL: srv.URL(),
		POSTAsGET:    true,
	})
	require.NoError(t, err)
	rediscovered, err := resources.NewAccount(nil, first.ActiveAccount.Signer)
	require.NoError(t, err)
	second.ActiveAccount = rediscovered

	require.NoError(t, second.FindAccount(second.ActiveAccount))
	require.Equal(t, firstID, second.ActiveAccount.ID)
}

// TestBadNonceRecovery covers scenario S5: a single badNonce rejection is
// recovered from transparently by signAndPost, which resigns with the
// fresh nonce the server's error response carries and retries once, so
// CreateOrder succeeds despite the mock's one-shot rejection without the
// caller ever seeing an error.
func TestBadNonceRecovery(t *testing.T) {
	srv := acmetest.NewServer(t)
	c := newTestClient(t, srv)

	srv.RejectNextNonce = true

	order := &resources.Order{Identifiers: []acme.Identifier{acme.DNSIdentifier("example.com")}}
	require.NoError(t, c.CreateOrder(order))
}

// TestBadNonceTwiceFails covers the other half of scenario S5: a second
// consecutive badNonce is not retried again and surfaces as a
// ProtocolError.
func TestBadNonceTwiceFails(t *testing.T) {
	srv := acmetest.NewServer(t)
	c := newTestClient(t, srv)

	srv.RejectNonceTimes = 2

	order := &resources.Order{Identifiers: []acme.Identifier{acme.DNSIdentifier("example.com")}}
	err := c.CreateOrder(order)
	require.Error(t, err)
	var protoErr *acme.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.True(t, protoErr.BadNonce())
}
