package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Request carries the facts a predicate may inspect: the authenticated
// subject, the verified claims, and the raw tenant path parameter. The
// resolved path organization is cached so chained predicates pay for the
// lookup once.
type Request struct {
	Subject   *Subject
	Claims    *Claims
	PathOrgID string

	pathOrg *Organization
}

// Predicate is one authorization rule. A nil return grants; a non-nil
// return denies with a typed domain error. Predicates never write.
type Predicate func(ctx context.Context, req *Request) error

// Every grants only if all predicates grant, evaluated in order with
// short-circuit on the first denial.
func Every(preds ...Predicate) Predicate {
	return func(ctx context.Context, req *Request) error {
		for _, p := range preds {
			if err := p(ctx, req); err != nil {
				return err
			}
		}
		return nil
	}
}

// kindRank orders denial kinds by how much they reveal. Some reports the
// least revealing applicable denial: an Unauthorized beats a NotFound so a
// failed probe cannot confirm that a resource exists.
func kindRank(k Kind) int {
	switch k {
	case KindUnauthorized:
		return 0
	case KindForbidden:
		return 1
	case KindBadRequest:
		return 2
	case KindConflict:
		return 3
	case KindNotFound:
		return 4
	default:
		return 5
	}
}

// Some grants if any predicate grants, evaluated in order with
// short-circuit on the first grant. When all deny, the best-ranked denial
// is reported; ties go to the earliest predicate.
func Some(preds ...Predicate) Predicate {
	return func(ctx context.Context, req *Request) error {
		if len(preds) == 0 {
			return Implementation("empty predicate disjunction")
		}
		var best error
		for _, p := range preds {
			err := p(ctx, req)
			if err == nil {
				return nil
			}
			if best == nil || kindRank(KindOf(err)) < kindRank(KindOf(best)) {
				best = err
			}
		}
		return best
	}
}

// RequireRole grants when the subject's role covers any of the allowed
// roles. A missing subject is an implementation fault: authentication must
// run before authorization.
func RequireRole(allowed ...RoleName) Predicate {
	return func(_ context.Context, req *Request) error {
		if req.Subject == nil {
			return Implementation("authorization without authenticated subject")
		}
		role := req.Subject.RoleName()
		if role == "" {
			return Implementation("subject role not resolved")
		}
		for _, want := range allowed {
			if role.Covers(want) {
				return nil
			}
		}
		return Unauthorized("insufficient role")
	}
}

// RequireScope grants when the verified claims carry exactly the given scope.
func RequireScope(scope TokenScope) Predicate {
	return func(_ context.Context, req *Request) error {
		if req.Claims == nil {
			return Implementation("authorization without verified claims")
		}
		if req.Claims.Scope != scope {
			return Unauthorized("invalid token scope")
		}
		return nil
	}
}

// Policy builds store-backed predicates. The clock is injectable so plan
// window boundaries can be pinned in tests.
type Policy struct {
	store Store
	now   func() time.Time
}

// PolicyOption customises a Policy.
type PolicyOption func(*Policy)

// WithPolicyClock overrides the time source, for tests.
func WithPolicyClock(now func() time.Time) PolicyOption {
	return func(p *Policy) { p.now = now }
}

// NewPolicy builds a Policy over the given store.
func NewPolicy(store Store, opts ...PolicyOption) *Policy {
	p := &Policy{store: store, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PartOfOrganization grants when the authenticated subject belongs to the
// organization named by the tenant path parameter. Checks run in a fixed
// order so each failure surfaces its own kind: no subject (Implementation),
// subject without tenant (Unauthorized), subject's tenant soft-deleted
// (Forbidden), malformed path id (BadRequest), unknown organization
// (NotFound), membership mismatch (Unauthorized).
func (p *Policy) PartOfOrganization() Predicate {
	return func(ctx context.Context, req *Request) error {
		if req.Subject == nil {
			return Implementation("authorization without authenticated subject")
		}
		if req.Subject.OrganizationID == "" {
			return Unauthorized("subject has no organization")
		}
		if req.Subject.Organization.Deleted() {
			return Forbidden("organization is deleted")
		}
		if _, err := uuid.Parse(req.PathOrgID); err != nil {
			return BadRequest("invalid organization id")
		}
		org := req.pathOrg
		if org == nil {
			var err error
			org, err = p.store.Organizations(ctx).Find(ctx, req.PathOrgID)
			if err != nil {
				return err
			}
			req.pathOrg = org
		}
		if req.Subject.OrganizationID != org.ID {
			return Unauthorized("organization mismatch")
		}
		return nil
	}
}

// ActiveOrganization grants when the subject's own organization has not
// been soft-deleted.
func ActiveOrganization() Predicate {
	return func(_ context.Context, req *Request) error {
		if req.Subject == nil {
			return Implementation("authorization without authenticated subject")
		}
		if req.Subject.Organization.Deleted() {
			return Forbidden("organization is deleted")
		}
		return nil
	}
}

// PlanActive grants when the subject's organization holds the named plan
// inside its validity window on an ACTIVE subscription. An inactive
// subscription or an elapsed window denies Unauthorized; a plan the
// subscription never held denies NotFound.
func (p *Policy) PlanActive(name PlanName) Predicate {
	return func(_ context.Context, req *Request) error {
		if req.Subject == nil {
			return Implementation("authorization without authenticated subject")
		}
		org := req.Subject.Organization
		if org == nil || org.Subscription == nil {
			return Unauthorized("no subscription")
		}
		if org.Subscription.Status != SubscriptionActive {
			return Unauthorized("subscription is not active")
		}
		for _, sp := range org.Subscription.Plans {
			if sp.Plan == nil || sp.Plan.Name != name {
				continue
			}
			now := p.now()
			if now.Before(sp.StartAt) || !now.Before(sp.EndAt) {
				return Unauthorized(fmt.Sprintf("plan %s has expired", name))
			}
			return nil
		}
		return NotFound(fmt.Sprintf("plan %s not subscribed", name))
	}
}
