// Package auth implements the identity and entitlement core: credential
// handling, scoped token lifecycle, request authentication, and the
// composable authorization policy engine.
package auth

import "time"

// TokenScope limits what a signed token may be exchanged for. A token of
// one scope is never accepted where another scope is required.
type TokenScope string

const (
	ScopeAccess   TokenScope = "ACCESS"
	ScopeActivate TokenScope = "ACTIVATE"
	ScopeReset    TokenScope = "RESET"
)

// Valid reports whether s is one of the known scopes.
func (s TokenScope) Valid() bool {
	switch s {
	case ScopeAccess, ScopeActivate, ScopeReset:
		return true
	}
	return false
}

// SubscriptionStatus is the coarse billing state of an organization.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
	SubscriptionPending  SubscriptionStatus = "PENDING"
	SubscriptionInactive SubscriptionStatus = "INACTIVE"
)

// RoleName identifies one of the fixed platform roles.
type RoleName string

const (
	RoleSuperAdmin  RoleName = "Super Admin"
	RoleSchoolAdmin RoleName = "School Admin"
	RoleFaculty     RoleName = "Faculty"
	RoleStudent     RoleName = "Student"
)

// Covers reports whether a holder of r satisfies a requirement for target.
// The ordering is an explicit partial order: SuperAdmin covers SchoolAdmin,
// every other pair must match exactly. Faculty and Student are deliberately
// incomparable with everything else.
func (r RoleName) Covers(target RoleName) bool {
	if r == target {
		return true
	}
	return r == RoleSuperAdmin && target == RoleSchoolAdmin
}

// PlanName identifies one of the fixed subscription plans.
type PlanName string

const (
	PlanOne PlanName = "Plan - 1"
	PlanTwo PlanName = "Plan - 2"
)

// Role is a platform role row. Roles are seeded, never created at runtime.
type Role struct {
	ID          string
	Name        RoleName
	Description string
}

// Plan is a sellable feature bundle. Duration is the validity window in
// days granted when the plan is attached to a subscription.
type Plan struct {
	ID          string
	Name        PlanName
	Description string
	Price       int64
	Duration    int
}

// SubscriptionPlan is a plan attached to a subscription together with its
// validity window. EndAt is exclusive: the plan is usable while
// startAt <= now < endAt.
type SubscriptionPlan struct {
	ID      string
	PlanID  string
	Plan    *Plan
	StartAt time.Time
	EndAt   time.Time
}

// Subscription is an organization's billing record.
type Subscription struct {
	ID     string
	Status SubscriptionStatus
	Plans  []SubscriptionPlan
}

// Organization is a tenant. DeletedAt marks a soft delete: the row and its
// history survive, but every authenticated path treats the tenant as gone.
type Organization struct {
	ID             string
	Name           string
	SubscriptionID string
	Subscription   *Subscription
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Deleted reports whether the organization has been soft-deleted.
func (o *Organization) Deleted() bool { return o != nil && o.DeletedAt != nil }

// Subject is an authenticatable account. HashedPassword and Salt are unset
// until the subject completes activation; ActiveAt is the activation marker
// and a precondition for password verification.
type Subject struct {
	ID             string
	Email          string
	FirstName      string
	LastName       string
	HashedPassword string
	Salt           string
	RoleID         string
	Role           *Role
	OrganizationID string
	Organization   *Organization
	ActiveAt       *time.Time
	LastLoginAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Active reports whether the subject has completed activation.
func (s *Subject) Active() bool { return s.ActiveAt != nil }

// RoleName returns the subject's role name, or empty when unresolved.
func (s *Subject) RoleName() RoleName {
	if s.Role == nil {
		return ""
	}
	return s.Role.Name
}

// Token is the persisted record of one issuance. The signed string itself
// is the lookup key for redemption; rows are never deleted, redemption and
// revocation only stamp the corresponding timestamps.
type Token struct {
	ID         string
	Token      string
	Scope      TokenScope
	SubjectID  string
	ExpiresAt  time.Time
	RedeemedAt *time.Time
	RevokedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Redeemed reports whether the token has already been consumed.
func (t *Token) Redeemed() bool { return t.RedeemedAt != nil }

// Revoked reports whether the token has been administratively invalidated.
func (t *Token) Revoked() bool { return t.RevokedAt != nil }
