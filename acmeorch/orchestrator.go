// Package acmeorch automates the full ACME issuance flow on top of
// acme/client: account discovery, order creation, authorization fan-out,
// challenge provisioning via caller-supplied callbacks, polling, order
// finalization, and certificate download. It is the programmatic
// equivalent of driving the teacher's interactive shell commands
// (newAccount, newOrder, solve, poll, finalize, getCert) in sequence.
package acmeorch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/acme/client"
	"github.com/acmecore/acmeclient/acme/keys"
	"github.com/acmecore/acmeclient/acme/resources"

	"golang.org/x/sync/errgroup"
)

// ChallengeCreateFunc provisions whatever is needed to satisfy challenge
// (an HTTP resource, a DNS record, a TLS certificate) and is awaited to
// completion before the orchestrator proceeds.
type ChallengeCreateFunc func(ctx context.Context, authz *resources.Authorization, chall *resources.Challenge, keyAuth string) error

// ChallengeRemoveFunc tears down whatever ChallengeCreateFunc provisioned.
// It always runs for every identifier whose ChallengeCreateFunc ran, even
// if the flow failed earlier; its errors are logged, never propagated.
type ChallengeRemoveFunc func(ctx context.Context, authz *resources.Authorization, chall *resources.Challenge, keyAuth string) error

// DefaultChallengePriority is the order in which challenge types are
// preferred absent an explicit ChallengePriority. Wildcard identifiers
// always use dns-01 regardless of this setting (RFC 8555 section 8.4).
var DefaultChallengePriority = []acme.ChallengeType{acme.ChallengeHTTP01, acme.ChallengeDNS01}

// AutoOptions configures a single Auto() issuance run.
type AutoOptions struct {
	// CSR is the raw DER-encoded CertificateSigningRequest to finalize
	// the order with. The identifiers covered by the resulting Order are
	// derived from this CSR's common name and SAN list.
	CSR []byte
	// ChallengeCreateFn provisions a challenge response. Required.
	ChallengeCreateFn ChallengeCreateFunc
	// ChallengeRemoveFn tears down a challenge response. Required.
	ChallengeRemoveFn ChallengeRemoveFunc
	// ChallengePriority orders preferred challenge types. Defaults to
	// DefaultChallengePriority.
	ChallengePriority []acme.ChallengeType
	// Email is an optional contact address used if an account must be
	// auto-created.
	Email string
	// TermsOfServiceAgreed must be true or Auto refuses to create an
	// account.
	TermsOfServiceAgreed bool
	// SelfVerify, if true, checks challenge provisioning itself (GET for
	// http-01, DNS lookup for dns-01, best-effort ALPN probe for
	// tls-alpn-01) before POSTing completeChallenge.
	SelfVerify bool
}

func (o *AutoOptions) priority() []acme.ChallengeType {
	if len(o.ChallengePriority) == 0 {
		return DefaultChallengePriority
	}
	return o.ChallengePriority
}

// Orchestrator drives an issuance flow against a single acme/client.Client.
type Orchestrator struct {
	Client *client.Client

	// BackoffMin/BackoffMax/BackoffAttempts bound every polling loop
	// (authorization status, order status, self-verification). Zero
	// values use the package defaults (see retry.go).
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	BackoffAttempts int

	// DNSResolver is the "host:port" resolver queried for dns-01
	// self-verification. Empty uses "127.0.0.1:53" (suitable for a local
	// challtestsrv instance in tests).
	DNSResolver string

	// Crypto is the CryptoProvider used to parse the downloaded
	// certificate chain. Defaults to keys.DefaultProvider{} if nil.
	Crypto keys.CryptoProvider
}

func (o *Orchestrator) crypto() keys.CryptoProvider {
	if o.Crypto != nil {
		return o.Crypto
	}
	return keys.DefaultProvider{}
}

func (o *Orchestrator) dnsResolver() string {
	if o.DNSResolver != "" {
		return o.DNSResolver
	}
	return "127.0.0.1:53"
}

// New builds an Orchestrator around c, using the package's default
// backoff bounds (spec.md section 6: 5s/30s/5 attempts).
func New(c *client.Client) *Orchestrator {
	return &Orchestrator{Client: c}
}

// Auto runs the full issuance flow described in spec.md section 4.4 and
// returns the PEM certificate chain on success.
func (o *Orchestrator) Auto(ctx context.Context, opts AutoOptions) ([]byte, error) {
	if opts.ChallengeCreateFn == nil || opts.ChallengeRemoveFn == nil {
		return nil, &acme.ConfigError{Message: "Auto requires ChallengeCreateFn and ChallengeRemoveFn"}
	}
	if !opts.TermsOfServiceAgreed {
		return nil, &acme.ConfigError{Message: "Auto requires TermsOfServiceAgreed"}
	}
	if len(opts.CSR) == 0 {
		return nil, &acme.ConfigError{Message: "Auto requires a CSR"}
	}

	if err := o.createOrFindAccount(opts.Email); err != nil {
		return nil, fmt.Errorf("acmeorch: account: %w", err)
	}

	csrInfo, err := keys.ParseCSR(opts.CSR)
	if err != nil {
		return nil, &acme.ConfigError{Message: fmt.Sprintf("parsing CSR: %s", err)}
	}
	identifiers := acme.IdentifiersFromNames(csrInfo.CommonName, csrInfo.AltNames)
	if len(identifiers) == 0 {
		return nil, &acme.ConfigError{Message: "CSR carries no usable identifiers"}
	}

	order := &resources.Order{Identifiers: identifiers}
	if err := o.Client.CreateOrder(order); err != nil {
		return nil, fmt.Errorf("acmeorch: order: %w", err)
	}
	log.Printf("acmeorch: created order %q for %d identifier(s)", order.ID, len(identifiers))

	authzs, err := o.fetchAuthorizations(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("acmeorch: order: %w", err)
	}

	if err := o.satisfyAuthorizations(ctx, authzs, opts); err != nil {
		return nil, err
	}

	if err := o.pollOrder(ctx, order, resources.OrderReady); err != nil {
		return nil, fmt.Errorf("acmeorch: order: %w", err)
	}

	if err := o.Client.FinalizeOrder(order, opts.CSR); err != nil {
		return nil, fmt.Errorf("acmeorch: finalize: %w", err)
	}

	if err := o.pollOrder(ctx, order, resources.OrderValid); err != nil {
		return nil, fmt.Errorf("acmeorch: finalize: %w", err)
	}

	chain, err := o.Client.DownloadCertificate(order)
	if err != nil {
		return nil, fmt.Errorf("acmeorch: download: %w", err)
	}
	log.Printf("acmeorch: downloaded certificate for order %q", order.ID)

	if err := o.verifyIssuedChain(chain, identifiers); err != nil {
		return nil, err
	}

	return chain, nil
}

// verifyIssuedChain parses the leaf of chain and confirms it covers every
// dns identifier the order was created for, per spec.md section 4.4's
// final "confirm the issued certificate matches the request" step.
func (o *Orchestrator) verifyIssuedChain(chain []byte, identifiers []acme.Identifier) error {
	info, err := o.crypto().ParseLeafCertificate(chain)
	if err != nil {
		return fmt.Errorf("acmeorch: parsing issued certificate: %w", err)
	}

	issued := make(map[string]bool, len(info.DNSNames))
	for _, n := range info.DNSNames {
		issued[strings.ToLower(n)] = true
	}

	for _, id := range identifiers {
		if id.Type != acme.IdentifierDNS {
			continue
		}
		if !issued[strings.ToLower(id.Value)] {
			return &acme.StateError{
				Entity: "certificate",
				Reason: fmt.Sprintf("issued certificate does not cover requested identifier %q", id.Value),
			}
		}
	}
	return nil
}

// createOrFindAccount implements spec.md section 4.4's
// createOrFindAccount: if the Client already has an ActiveAccount (e.g.
// restored from disk or pre-configured with accountUrl) it is validated
// with UpdateAccount; otherwise a new account is registered.
func (o *Orchestrator) createOrFindAccount(email string) error {
	c := o.Client
	if c.ActiveAccountID() != "" {
		if err := c.UpdateAccount(c.ActiveAccount); err != nil {
			return fmt.Errorf("validating pre-configured account: %w", err)
		}
		return nil
	}

	if c.ActiveAccount == nil {
		var contacts []string
		if email != "" {
			contacts = []string{email}
		}
		acct, err := resources.NewAccount(contacts, nil)
		if err != nil {
			return err
		}
		c.ActiveAccount = acct
	}

	return c.CreateAccount(c.ActiveAccount)
}

// fetchAuthorizations GETs every authorization URL in order.Authorizations
// concurrently (spec.md section 4.4 step 4), returning them in the same
// order as order.Authorizations.
func (o *Orchestrator) fetchAuthorizations(ctx context.Context, order *resources.Order) ([]*resources.Authorization, error) {
	authzs := make([]*resources.Authorization, len(order.Authorizations))

	g, _ := errgroup.WithContext(ctx)
	for i, url := range order.Authorizations {
		i, url := i, url
		g.Go(func() error {
			authz := &resources.Authorization{ID: url}
			if err := o.Client.UpdateAuthz(authz); err != nil {
				return err
			}
			authzs[i] = authz
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetching authorizations: %w", err)
	}
	return authzs, nil
}
