package auth

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"
)

// Token lifetimes per issuance channel.
const (
	TTLLogin    = 24 * time.Hour
	TTLActivate = 30 * 24 * time.Hour
	TTLReset    = 24 * time.Hour
)

// Mailer dispatches account emails. Delivery is an external collaborator;
// implementations decide transport and templates.
type Mailer interface {
	SendInvite(ctx context.Context, to, orgName, token string) error
	SendRecovery(ctx context.Context, to, token string) error
}

// NopMailer satisfies Mailer without sending anything.
type NopMailer struct{}

func (NopMailer) SendInvite(context.Context, string, string, string) error { return nil }
func (NopMailer) SendRecovery(context.Context, string, string) error       { return nil }

// Service implements the account flows: login, refresh, activation,
// recovery, and password reset.
type Service struct {
	store  Store
	issuer *Issuer
	mailer Mailer
	now    func() time.Time
	sleep  func(time.Duration)
	jitter func() time.Duration
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithSleep overrides the blocking sleep used to pad recovery responses.
func WithSleep(sleep func(time.Duration)) ServiceOption {
	return func(s *Service) { s.sleep = sleep }
}

// WithMailer sets the outbound mail dispatcher.
func WithMailer(m Mailer) ServiceOption {
	return func(s *Service) { s.mailer = m }
}

// NewService builds a Service. Without options it uses the real clock and
// a no-op mailer.
func NewService(store Store, issuer *Issuer, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		issuer: issuer,
		mailer: NopMailer{},
		now:    time.Now,
		sleep:  time.Sleep,
		jitter: func() time.Duration {
			return time.Duration(150+rand.IntN(150)) * time.Millisecond
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Login verifies credentials and issues a 24 hour access token. Unknown
// email and wrong password produce the same answer; only a soft-deleted
// organization is distinguished, as Forbidden.
func (s *Service) Login(ctx context.Context, email, password string) (*Subject, string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, "", BadRequest("email and password are required")
	}
	subject, err := s.store.Subjects(ctx).FindByEmail(ctx, email)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, "", Unauthorized("invalid email or password")
		}
		return nil, "", err
	}
	if subject.Organization.Deleted() {
		return nil, "", Forbidden("organization is deleted")
	}
	if !VerifyPassword(subject, password) {
		return nil, "", Unauthorized("invalid email or password")
	}
	now := s.now()
	subject.LastLoginAt = &now
	if err := s.store.Subjects(ctx).Update(ctx, subject); err != nil {
		return nil, "", err
	}
	token, err := s.issuer.Issue(ctx, subject.ID, ScopeAccess, TTLLogin)
	if err != nil {
		return nil, "", err
	}
	return subject, token, nil
}

// Refresh issues a fresh access token for an already-authenticated subject.
func (s *Service) Refresh(ctx context.Context, subject *Subject) (string, error) {
	if subject == nil {
		return "", Implementation("refresh without authenticated subject")
	}
	if subject.Organization.Deleted() {
		return "", Forbidden("organization is deleted")
	}
	return s.issuer.Issue(ctx, subject.ID, ScopeAccess, TTLLogin)
}

// ActivateParams carries the caller-supplied profile for activation.
// Password is required when the subject has no stored credential yet.
type ActivateParams struct {
	FirstName string
	LastName  string
	Password  string
}

// Activate redeems a single-use ACTIVATE token, installs the credential,
// and returns the subject with a fresh access token. The token row is
// consumed only after every precondition holds, and consumption is atomic:
// of any number of concurrent redemptions exactly one proceeds.
func (s *Service) Activate(ctx context.Context, tokenString string, params ActivateParams) (*Subject, string, error) {
	claims, err := s.issuer.VerifyScope(tokenString, ScopeActivate)
	if err != nil {
		return nil, "", err
	}
	rec, err := s.store.Tokens(ctx).Find(ctx, tokenString)
	if err != nil {
		return nil, "", err
	}
	if rec.Redeemed() || rec.Revoked() {
		return nil, "", ErrTokenConsumed
	}
	subject, err := s.store.Subjects(ctx).Find(ctx, claims.Subject)
	if err != nil {
		return nil, "", err
	}
	if subject.Organization.Deleted() {
		return nil, "", Forbidden("organization is deleted")
	}
	if subject.Active() {
		return nil, "", BadRequest("account already activated")
	}
	if subject.HashedPassword == "" && params.Password == "" {
		return nil, "", BadRequest("password is required")
	}
	if params.FirstName != "" {
		subject.FirstName = params.FirstName
	}
	if params.LastName != "" {
		subject.LastName = params.LastName
	}
	if params.Password != "" {
		if err := SetPassword(subject, params.Password); err != nil {
			return nil, "", err
		}
	}
	if err := s.store.Tokens(ctx).Redeem(ctx, tokenString); err != nil {
		return nil, "", err
	}
	now := s.now()
	subject.ActiveAt = &now
	subject.LastLoginAt = &now
	if err := s.store.Subjects(ctx).Update(ctx, subject); err != nil {
		return nil, "", err
	}
	access, err := s.issuer.Issue(ctx, subject.ID, ScopeAccess, TTLLogin)
	if err != nil {
		return nil, "", err
	}
	return subject, access, nil
}

// Recover starts password recovery. The outcome is success whether or not
// the email is known; the unknown-email path sleeps a random 150-300 ms so
// response timing does not betray account existence. Mail dispatch is
// asynchronous and its failures never reach the caller.
func (s *Service) Recover(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return BadRequest("email is required")
	}
	subject, err := s.store.Subjects(ctx).FindByEmail(ctx, email)
	if err != nil {
		if KindOf(err) == KindNotFound {
			s.sleep(s.jitter())
			return nil
		}
		return err
	}
	token, err := s.issuer.Issue(ctx, subject.ID, ScopeReset, TTLReset)
	if err != nil {
		return err
	}
	go s.mailer.SendRecovery(context.WithoutCancel(ctx), subject.Email, token)
	return nil
}

// ResetPassword redeems a single-use RESET token and installs a new
// credential. The caller must present the exact email of the token's
// subject; any mismatch is Unauthorized to keep the token useless on its
// own.
func (s *Service) ResetPassword(ctx context.Context, tokenString, email, password string) error {
	claims, err := s.issuer.VerifyScope(tokenString, ScopeReset)
	if err != nil {
		return err
	}
	if password == "" {
		return BadRequest("password is required")
	}
	rec, err := s.store.Tokens(ctx).Find(ctx, tokenString)
	if err != nil {
		return err
	}
	if rec.Redeemed() || rec.Revoked() {
		return ErrTokenConsumed
	}
	subject, err := s.store.Subjects(ctx).Find(ctx, claims.Subject)
	if err != nil {
		return err
	}
	if subject.Organization.Deleted() {
		return Forbidden("organization is deleted")
	}
	if subject.Email != strings.TrimSpace(email) {
		return Unauthorized("invalid email")
	}
	if err := s.store.Tokens(ctx).Redeem(ctx, tokenString); err != nil {
		return err
	}
	if err := SetPassword(subject, password); err != nil {
		return err
	}
	return s.store.Subjects(ctx).Update(ctx, subject)
}
