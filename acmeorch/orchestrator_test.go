package acmeorch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/acme/client"
	"github.com/acmecore/acmeclient/acme/keys"
	"github.com/acmecore/acmeclient/acme/resources"
	"github.com/acmecore/acmeclient/acmeorch"
	"github.com/acmecore/acmeclient/acmetest"
)

func newTestOrchestrator(t *testing.T, srv *acmetest.Server) *acmeorch.Orchestrator {
	t.Helper()
	c, err := client.NewClient(client.ClientConfig{
		DirectoryURL: srv.URL(),
		POSTAsGET:    true,
	})
	require.NoError(t, err)
	return &acmeorch.Orchestrator{
		Client:          c,
		BackoffMin:      5 * time.Millisecond,
		BackoffMax:      10 * time.Millisecond,
		BackoffAttempts: 6,
	}
}

type challengeRecorder struct {
	mu      sync.Mutex
	created map[string]int
	removed map[string]int
}

func newChallengeRecorder() *challengeRecorder {
	return &challengeRecorder{created: map[string]int{}, removed: map[string]int{}}
}

func (r *challengeRecorder) createFn(ctx context.Context, authz *resources.Authorization, chall *resources.Challenge, keyAuth string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created[authz.Identifier.Value]++
	return nil
}

func (r *challengeRecorder) removeFn(ctx context.Context, authz *resources.Authorization, chall *resources.Challenge, keyAuth string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed[authz.Identifier.Value]++
	return nil
}

func (r *challengeRecorder) count(m map[string]int, key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return m[key]
}

// TestAutoHTTP01FullOrder covers spec.md section 8 scenario S3: a single
// dns identifier, http-01 preferred, challengeCreateFn/RemoveFn invoked
// exactly once, certificate downloaded at the end.
func TestAutoHTTP01FullOrder(t *testing.T) {
	srv := acmetest.NewServer(t)
	o := newTestOrchestrator(t, srv)

	signer, err := keys.NewSigner(keys.RSA)
	require.NoError(t, err)
	csr, err := keys.NewCSR(signer, "", []string{"example.com"})
	require.NoError(t, err)

	rec := newChallengeRecorder()
	chain, err := o.Auto(context.Background(), acmeorch.AutoOptions{
		CSR:                  csr.DER,
		ChallengeCreateFn:    rec.createFn,
		ChallengeRemoveFn:    rec.removeFn,
		TermsOfServiceAgreed: true,
		Email:                "auto@example.com",
	})
	require.NoError(t, err)
	require.Contains(t, string(chain), "CERTIFICATE")

	require.Equal(t, 1, rec.count(rec.created, "example.com"))
	require.Equal(t, 1, rec.count(rec.removed, "example.com"))
}

// TestAutoWildcardForcesDNS01 covers scenario S4: a wildcard identifier
// must be satisfied with dns-01 even though http-01 is the default
// priority's first entry.
func TestAutoWildcardForcesDNS01(t *testing.T) {
	srv := acmetest.NewServer(t)
	o := newTestOrchestrator(t, srv)

	signer, err := keys.NewSigner(keys.RSA)
	require.NoError(t, err)
	csr, err := keys.NewCSR(signer, "", []string{"*.example.com"})
	require.NoError(t, err)

	var usedType acme.ChallengeType
	var mu sync.Mutex
	createFn := func(ctx context.Context, authz *resources.Authorization, chall *resources.Challenge, keyAuth string) error {
		mu.Lock()
		usedType = chall.Type
		mu.Unlock()
		require.True(t, authz.Wildcard)
		return nil
	}
	removeFn := func(ctx context.Context, authz *resources.Authorization, chall *resources.Challenge, keyAuth string) error {
		return nil
	}

	_, err = o.Auto(context.Background(), acmeorch.AutoOptions{
		CSR:                  csr.DER,
		ChallengeCreateFn:    createFn,
		ChallengeRemoveFn:    removeFn,
		TermsOfServiceAgreed: true,
		Email:                "wildcard@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, acme.ChallengeDNS01, usedType)
}

// TestAutoAuthorizationInvalid covers scenario S6: an authorization that
// goes invalid surfaces as a StateError naming the server's problem
// detail, and ChallengeRemoveFn still runs.
func TestAutoAuthorizationInvalid(t *testing.T) {
	srv := acmetest.NewServer(t)
	srv.AuthzInvalid = true
	srv.AuthzInvalidDetail = "dns lookup failed"
	o := newTestOrchestrator(t, srv)

	signer, err := keys.NewSigner(keys.RSA)
	require.NoError(t, err)
	csr, err := keys.NewCSR(signer, "", []string{"invalid.example.com"})
	require.NoError(t, err)

	rec := newChallengeRecorder()
	_, err = o.Auto(context.Background(), acmeorch.AutoOptions{
		CSR:                  csr.DER,
		ChallengeCreateFn:    rec.createFn,
		ChallengeRemoveFn:    rec.removeFn,
		TermsOfServiceAgreed: true,
		Email:                "invalid@example.com",
	})
	require.Error(t, err)

	var stateErr *acme.StateError
	require.ErrorAs(t, err, &stateErr)
	require.Contains(t, stateErr.Reason, "dns lookup failed")
	require.Equal(t, 1, rec.count(rec.removed, "invalid.example.com"))
}

// TestUpdateAccountKeyRollover covers scenario S7: after rollover, a
// request signed by the old key fails and one signed by the new key
// succeeds.
func TestUpdateAccountKeyRollover(t *testing.T) {
	srv := acmetest.NewServer(t)
	c, err := client.NewClient(client.ClientConfig{
		DirectoryURL: srv.URL(),
		ContactEmail: "rollover@example.com",
		AutoRegister: true,
		POSTAsGET:    true,
	})
	require.NoError(t, err)
	o := acmeorch.New(c)

	oldSigner := c.ActiveAccount.Signer
	newSigner, err := keys.NewSigner(keys.RSA)
	require.NoError(t, err)

	require.NoError(t, o.UpdateAccountKey(newSigner))
	require.Equal(t, newSigner, c.ActiveAccount.Signer)

	// A request signed by the old key must now fail.
	staleAccount := *c.ActiveAccount
	staleAccount.Signer = oldSigner
	require.Error(t, c.UpdateAccount(&staleAccount))

	// The client's own active account (now on newSigner) must still work.
	require.NoError(t, c.UpdateAccount(c.ActiveAccount))
}
