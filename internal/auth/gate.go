package auth

import "context"

// Gate authenticates requests in two phases: a stateless signature and
// expiry check, then a subject lookup that resolves role, organization,
// and subscription state. The phases are separate so cheap rejection
// happens before any storage round trip.
type Gate struct {
	issuer *Issuer
	store  Store
}

// NewGate builds a Gate over the given issuer and store.
func NewGate(issuer *Issuer, store Store) *Gate {
	return &Gate{issuer: issuer, store: store}
}

// Check runs phase one only: verify signature and expiry and require the
// given scope. No storage is touched.
func (g *Gate) Check(tokenString string, scope TokenScope) (*Claims, error) {
	if tokenString == "" {
		return nil, Unauthorized("missing credentials")
	}
	return g.issuer.VerifyScope(tokenString, scope)
}

// Authenticate runs both phases and returns the resolved subject. A token
// whose subject no longer exists (or was soft-deleted) fails as NotFound:
// the signature proves issuance, not continued existence.
func (g *Gate) Authenticate(ctx context.Context, tokenString string, scope TokenScope) (*Subject, *Claims, error) {
	claims, err := g.Check(tokenString, scope)
	if err != nil {
		return nil, nil, err
	}
	subject, err := g.store.Subjects(ctx).Find(ctx, claims.Subject)
	if err != nil {
		return nil, nil, err
	}
	return subject, claims, nil
}
