package acmeorch

import (
	"context"
	"fmt"
	"log"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/acme/keys"
	"github.com/acmecore/acmeclient/acme/resources"

	"golang.org/x/sync/errgroup"
)

// satisfyAuthorizations drives every pending authorization to "valid"
// concurrently (spec.md section 4.4 step 5, section 5's fan-out
// guarantee), fanning in before the caller proceeds to order polling.
// ChallengeRemoveFn is guaranteed to run for every authorization whose
// ChallengeCreateFn ran, even if another authorization in the same batch
// fails.
func (o *Orchestrator) satisfyAuthorizations(ctx context.Context, authzs []*resources.Authorization, opts AutoOptions) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, authz := range authzs {
		authz := authz
		if authz.Status != resources.AuthorizationPending {
			continue
		}
		g.Go(func() error {
			return o.satisfyOne(gctx, authz, opts)
		})
	}
	return g.Wait()
}

// satisfyOne implements spec.md section 4.4 step 5(a)-(h) for a single
// authorization.
func (o *Orchestrator) satisfyOne(ctx context.Context, authz *resources.Authorization, opts AutoOptions) (retErr error) {
	chall, err := selectChallenge(authz, opts.priority())
	if err != nil {
		return err
	}

	keyAuth := keys.KeyAuth(o.Client.ActiveAccount.Signer, chall.Token)

	if err := opts.ChallengeCreateFn(ctx, authz, chall, keyAuth); err != nil {
		return fmt.Errorf("acmeorch: challengeCreateFn for %q: %w", authz.Identifier.Value, err)
	}

	defer func() {
		if err := opts.ChallengeRemoveFn(ctx, authz, chall, keyAuth); err != nil {
			log.Printf("acmeorch: challengeRemoveFn for %q: %v (ignored, cleanup is best-effort)", authz.Identifier.Value, err)
		}
	}()

	if opts.SelfVerify {
		if err := o.selfVerify(ctx, authz, chall, keyAuth); err != nil {
			return fmt.Errorf("acmeorch: self-verification for %q: %w", authz.Identifier.Value, err)
		}
	}

	if err := o.Client.CompleteChallenge(chall); err != nil {
		return fmt.Errorf("acmeorch: completeChallenge for %q: %w", authz.Identifier.Value, err)
	}

	if err := o.pollAuthz(ctx, authz); err != nil {
		return err
	}

	return nil
}

// selectChallenge picks the highest-priority challenge type present on
// authz's Challenges, per priority's order. Wildcard authorizations MUST
// use dns-01 regardless of priority (RFC 8555 section 8.4); spec.md
// section 9 explicitly rejects the source's behavior of allowing a
// downgrade away from dns-01 for wildcards.
func selectChallenge(authz *resources.Authorization, priority []acme.ChallengeType) (*resources.Challenge, error) {
	if authz.Wildcard {
		if c := findChallenge(authz, acme.ChallengeDNS01); c != nil {
			return c, nil
		}
		return nil, fmt.Errorf("acmeorch: wildcard authorization %q has no dns-01 challenge", authz.ID)
	}

	for _, t := range priority {
		if c := findChallenge(authz, t); c != nil {
			return c, nil
		}
	}
	return nil, fmt.Errorf("acmeorch: authorization %q offers no challenge in priority list", authz.ID)
}

func findChallenge(authz *resources.Authorization, t acme.ChallengeType) *resources.Challenge {
	for i := range authz.Challenges {
		if authz.Challenges[i].Type == t {
			return &authz.Challenges[i]
		}
	}
	return nil
}
