package acmeorch

import (
	"context"
	"fmt"

	"github.com/acmecore/acmeclient/acme"
	"github.com/acmecore/acmeclient/acme/resources"
)

// pollOrder polls order's ID until its Status reaches want, or reports
// a StateError if the server reports "invalid" first.
func (o *Orchestrator) pollOrder(ctx context.Context, order *resources.Order, want resources.OrderStatus) error {
	return o.retry(ctx, fmt.Sprintf("order[%s]", want), func() error {
		if err := o.Client.UpdateOrder(order); err != nil {
			return err
		}
		if order.Status == want {
			return nil
		}
		if order.Status == resources.OrderInvalid {
			return abort(&acme.StateError{
				Entity: "order",
				URL:    order.ID,
				Reason: problemDetail(order.Error),
			})
		}
		return fmt.Errorf("acmeorch: order %q still %q, want %q", order.ID, order.Status, want)
	})
}

// pollAuthz polls authz's URL until its Status is valid or invalid,
// returning a StateError for the latter.
func (o *Orchestrator) pollAuthz(ctx context.Context, authz *resources.Authorization) error {
	return o.retry(ctx, "authorization", func() error {
		if err := o.Client.UpdateAuthz(authz); err != nil {
			return err
		}
		switch authz.Status {
		case resources.AuthorizationValid:
			return nil
		case resources.AuthorizationInvalid:
			return abort(&acme.StateError{
				Entity: fmt.Sprintf("authorization[%s]", authz.Identifier.Value),
				URL:    authz.ID,
				Reason: firstChallengeError(authz),
			})
		default:
			return fmt.Errorf("acmeorch: authorization %q still %q", authz.ID, authz.Status)
		}
	})
}

func problemDetail(p *acme.Problem) string {
	if p == nil {
		return ""
	}
	return p.Detail
}

func firstChallengeError(authz *resources.Authorization) string {
	for _, c := range authz.Challenges {
		if c.Status == resources.ChallengeInvalid && c.Error != nil {
			return c.Error.Detail
		}
	}
	return ""
}
