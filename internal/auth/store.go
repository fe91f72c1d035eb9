package auth

import "context"

// Store describes persistence operations required by the identity subsystem.
type Store interface {
	Subjects(ctx context.Context) SubjectStore
	Organizations(ctx context.Context) OrganizationStore
	Roles(ctx context.Context) RoleStore
	Plans(ctx context.Context) PlanStore
	Subscriptions(ctx context.Context) SubscriptionStore
	Tokens(ctx context.Context) TokenStore
}

// SubjectStore manages subjects. Find* return the subject with role,
// organization, and subscription resolved; soft-deleted rows are invisible
// to every method except List, which reports them for administrative views.
type SubjectStore interface {
	Create(ctx context.Context, s *Subject) error
	Find(ctx context.Context, id string) (*Subject, error)
	FindByEmail(ctx context.Context, email string) (*Subject, error)
	ListByOrg(ctx context.Context, orgID string) ([]*Subject, error)
	Update(ctx context.Context, s *Subject) error
	SoftDelete(ctx context.Context, id string) error
}

// OrganizationStore manages tenants. Find resolves the subscription and its
// plan windows; soft-deleted organizations are still returned so callers can
// distinguish "gone" from "never existed".
type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	Find(ctx context.Context, id string) (*Organization, error)
	List(ctx context.Context) ([]*Organization, error)
	Update(ctx context.Context, org *Organization) error
	SoftDelete(ctx context.Context, id string) error
	// Restore clears the soft-delete stamp, bringing the tenant back.
	Restore(ctx context.Context, id string) error
}

// RoleStore reads the seeded role catalog.
type RoleStore interface {
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name RoleName) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
}

// PlanStore reads the seeded plan catalog.
type PlanStore interface {
	Find(ctx context.Context, id string) (*Plan, error)
	FindByName(ctx context.Context, name PlanName) (*Plan, error)
	List(ctx context.Context) ([]*Plan, error)
}

// SubscriptionStore manages subscriptions and their plan windows.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *Subscription) error
	Find(ctx context.Context, id string) (*Subscription, error)
	SetStatus(ctx context.Context, id string, status SubscriptionStatus) error
	AttachPlan(ctx context.Context, subID string, sp *SubscriptionPlan) error
	DetachPlan(ctx context.Context, subID, planID string) error
	// ListLapsed returns subscriptions whose status is ACTIVE but whose every
	// plan window has ended as of now.
	ListLapsed(ctx context.Context) ([]*Subscription, error)
}

// TokenStore records token issuances and consumes them. Rows are append-only
// apart from the redemption and revocation stamps.
type TokenStore interface {
	Create(ctx context.Context, t *Token) error
	// Find looks a token up by its signed string.
	Find(ctx context.Context, token string) (*Token, error)
	// Redeem consumes the token: it stamps redeemed_at if and only if the
	// token exists and is neither redeemed nor revoked, atomically. Exactly
	// one of any number of concurrent calls succeeds. A lost race or an
	// already-consumed token is ErrTokenConsumed.
	Redeem(ctx context.Context, token string) error
	Revoke(ctx context.Context, token string) error
}

// ErrTokenConsumed is returned by TokenStore.Redeem when the token was
// already redeemed or revoked.
var ErrTokenConsumed = BadRequest("token already used")
