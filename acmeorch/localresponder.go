package acmeorch

import (
	"context"
	"fmt"
	"log"

	"github.com/letsencrypt/challtestsrv"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/acme/keys"
	"github.com/acmecore/acmeclient/acme/resources"
)

// LocalResponderConfig configures a LocalResponder's embedded HTTP-01,
// DNS-01 and TLS-ALPN-01 listeners. A zero value for any *Addrs field
// disables that challenge type.
type LocalResponderConfig struct {
	HTTPOneAddrs    []string
	DNSOneAddrs     []string
	TLSALPNOneAddrs []string
	Log             *log.Logger
}

// LocalResponder provisions challenge responses with an embedded
// challtestsrv.ChallSrv instead of a caller-provided webserver/DNS zone,
// for standalone operation (a CLI, a test harness) that owns the whole
// network stack its identifiers resolve to. Its CreateFn/RemoveFn satisfy
// ChallengeCreateFunc/ChallengeRemoveFunc and can be passed directly in
// AutoOptions.
type LocalResponder struct {
	srv *challtestsrv.ChallSrv
}

// NewLocalResponder starts the embedded challenge servers described by
// cfg. Callers must call Shutdown when done.
func NewLocalResponder(cfg LocalResponderConfig) (*LocalResponder, error) {
	srv, err := challtestsrv.New(challtestsrv.Config{
		HTTPOneAddrs:    cfg.HTTPOneAddrs,
		DNSOneAddrs:     cfg.DNSOneAddrs,
		TLSALPNOneAddrs: cfg.TLSALPNOneAddrs,
		Log:             cfg.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("acmeorch: starting local challenge responder: %w", err)
	}
	return &LocalResponder{srv: srv}, nil
}

// Shutdown stops the embedded challenge servers.
func (r *LocalResponder) Shutdown() {
	r.srv.Shutdown()
}

// CreateFn is a ChallengeCreateFunc backed by the embedded responder.
func (r *LocalResponder) CreateFn(_ context.Context, authz *resources.Authorization, chall *resources.Challenge, keyAuth string) error {
	switch chall.Type {
	case acme.ChallengeHTTP01:
		r.srv.AddHTTPOneChallenge(chall.Token, keyAuth)
	case acme.ChallengeDNS01:
		r.srv.AddDNSOneChallenge(dnsOneHost(authz), keys.HashKeyAuthorization(keyAuth))
	case acme.ChallengeTLSALPN01:
		r.srv.AddTLSALPNChallenge(authz.Identifier.Value, keys.HashKeyAuthorization(keyAuth))
	default:
		return fmt.Errorf("acmeorch: local responder has no handler for challenge type %q", chall.Type)
	}
	return nil
}

// RemoveFn is a ChallengeRemoveFunc backed by the embedded responder.
func (r *LocalResponder) RemoveFn(_ context.Context, authz *resources.Authorization, chall *resources.Challenge, _ string) error {
	switch chall.Type {
	case acme.ChallengeHTTP01:
		r.srv.DeleteHTTPOneChallenge(chall.Token)
	case acme.ChallengeDNS01:
		r.srv.DeleteDNSOneChallenge(dnsOneHost(authz))
	case acme.ChallengeTLSALPN01:
		r.srv.DeleteTLSALPNChallenge(authz.Identifier.Value)
	default:
		return fmt.Errorf("acmeorch: local responder has no handler for challenge type %q", chall.Type)
	}
	return nil
}

func dnsOneHost(authz *resources.Authorization) string {
	return "_acme-challenge." + authz.Identifier.BaseDomain()
}
