package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"classhub.org/internal/ids"
)

// DefaultTokenTTL applies when an issuance does not specify a lifetime.
const DefaultTokenTTL = time.Hour

// Claims is the signed payload: subject id, expiry, and scope. Nothing else
// goes over the wire; everything mutable lives behind the subject lookup.
type Claims struct {
	Scope TokenScope `json:"scope"`
	jwt.RegisteredClaims
}

// Issuer signs, persists, and verifies scoped tokens. Signing is symmetric
// HMAC; the algorithm is fixed at construction and verification rejects
// tokens signed with anything else.
type Issuer struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	store  TokenStore
	now    func() time.Time
}

// IssuerOption customises an Issuer.
type IssuerOption func(*Issuer)

// WithIssuerClock overrides the time source, for tests.
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer builds an Issuer. alg must be one of HS256, HS384, HS512.
func NewIssuer(secret, alg string, store TokenStore, opts ...IssuerOption) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("auth: empty signing secret")
	}
	var method *jwt.SigningMethodHMAC
	switch alg {
	case "HS256", "":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("auth: unsupported signing algorithm %q", alg)
	}
	iss := &Issuer{
		secret: []byte(secret),
		method: method,
		store:  store,
		now:    time.Now,
	}
	for _, o := range opts {
		o(iss)
	}
	return iss, nil
}

// Issue signs a token for the subject and persists the issuance. Every call
// produces and records a new row; issuance is never deduplicated. ttl <= 0
// falls back to DefaultTokenTTL.
func (i *Issuer) Issue(ctx context.Context, subjectID string, scope TokenScope, ttl time.Duration) (string, error) {
	if subjectID == "" {
		return "", Implementation("token issuance without subject")
	}
	if !scope.Valid() {
		return "", Implementation(fmt.Sprintf("unknown token scope %q", scope))
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := i.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return "", Implementation("sign token").WithCause(err)
	}
	rec := &Token{
		ID:        ids.New(),
		Token:     signed,
		Scope:     scope,
		SubjectID: subjectID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := i.store.Create(ctx, rec); err != nil {
		return "", err
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the claims. It touches no
// storage: a verified token may still be unredeemable.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method != i.method {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, Unauthorized("token expired")
		}
		return nil, Unauthorized("invalid token").WithCause(err)
	}
	if claims.Subject == "" || !claims.Scope.Valid() {
		return nil, Unauthorized("invalid token")
	}
	return claims, nil
}

// VerifyScope is Verify plus a scope check. Scope mismatch is Unauthorized:
// a structurally valid token presented on the wrong channel says nothing
// about the caller.
func (i *Issuer) VerifyScope(tokenString string, want TokenScope) (*Claims, error) {
	claims, err := i.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Scope != want {
		return nil, Unauthorized("invalid token scope")
	}
	return claims, nil
}
