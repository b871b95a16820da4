package client

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/acme/resources"
	"github.com/acmecore/acmeclient/acmetest"
)

// TestNonceConsumedAtMostOnce covers spec.md section 8 invariant 5:
// replaying a previously-used nonce value must elicit badNonce rather
// than being accepted a second time. The first CreateOrder consumes the
// nonce from the top of the pool; the replay is then signed with that same
// nonce and POSTed directly, since signAndPost would recover from the
// rejection by retrying with the fresh nonce the rejection carries.
func TestNonceConsumedAtMostOnce(t *testing.T) {
	srv := acmetest.NewServer(t)
	c, err := NewClient(ClientConfig{
		DirectoryURL: srv.URL(),
		ContactEmail: "replay@example.com",
		AutoRegister: true,
		POSTAsGET:    true,
	})
	require.NoError(t, err)

	require.NoError(t, c.RefreshNonce())
	reused, ok := c.popNonce()
	require.True(t, ok)

	c.pushNonce(reused)

	order := &resources.Order{Identifiers: []acme.Identifier{acme.DNSIdentifier("replay.example.com")}}
	require.NoError(t, c.CreateOrder(order))

	newOrderURL, ok := c.GetEndpointURL(acme.NewOrder)
	require.True(t, ok)
	replay, err := c.Sign(newOrderURL, []byte(`{"identifiers":[{"type":"dns","value":"replay2.example.com"}]}`),
		&SigningOptions{NonceSource: fixedNonceSource{reused}})
	require.NoError(t, err)
	resp, err := c.PostURL(newOrderURL, replay.SerializedJWS)
	require.NoError(t, err)

	err = checkStatus(newOrderURL, resp, http.StatusCreated)
	require.Error(t, err)
	var protoErr *acme.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.True(t, protoErr.BadNonce())
}
