package auth

import (
	"context"
	"testing"
	"time"
)

var (
	testRoles = []*Role{
		{ID: "role-super", Name: RoleSuperAdmin},
		{ID: "role-school", Name: RoleSchoolAdmin},
		{ID: "role-faculty", Name: RoleFaculty},
		{ID: "role-student", Name: RoleStudent},
	}
	testPlans = []*Plan{
		{ID: "plan-1", Name: PlanOne, Duration: 365},
		{ID: "plan-2", Name: PlanTwo, Duration: 365},
	}
)

type fixture struct {
	store  *MemoryStore
	issuer *Issuer
	svc    *Service
	now    time.Time
}

// newFixture seeds the catalog and wires a service with a pinned clock and
// no-op sleeping, so flows run instantly and expiry math is exact.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewMemoryStore()
	store.Seed(testRoles, testPlans)
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	f := &fixture{store: store, now: now}
	clock := func() time.Time { return f.now }
	store.SetClock(clock)

	iss, err := NewIssuer(testSecret, "HS256", store.Tokens(context.Background()), WithIssuerClock(clock))
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	f.issuer = iss
	f.svc = NewService(store, iss,
		WithClock(clock),
		WithSleep(func(time.Duration) {}),
	)
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

// addOrg creates an organization with an ACTIVE subscription holding the
// given plans, windowed one year from the fixture clock.
func (f *fixture) addOrg(t *testing.T, id string, planIDs ...string) *Organization {
	t.Helper()
	ctx := context.Background()
	sub := &Subscription{ID: "sub-" + id, Status: SubscriptionActive}
	for _, planID := range planIDs {
		sub.Plans = append(sub.Plans, SubscriptionPlan{
			ID:      "sp-" + id + "-" + planID,
			PlanID:  planID,
			StartAt: f.now,
			EndAt:   f.now.AddDate(0, 0, 365),
		})
	}
	if err := f.store.Subscriptions(ctx).Create(ctx, sub); err != nil {
		t.Fatalf("subscription: %v", err)
	}
	org := &Organization{ID: id, Name: "Org " + id, SubscriptionID: sub.ID, CreatedAt: f.now, UpdatedAt: f.now}
	if err := f.store.Organizations(ctx).Create(ctx, org); err != nil {
		t.Fatalf("organization: %v", err)
	}
	resolved, err := f.store.Organizations(ctx).Find(ctx, id)
	if err != nil {
		t.Fatalf("find organization: %v", err)
	}
	return resolved
}

// addSubject creates an activated subject with the given password.
func (f *fixture) addSubject(t *testing.T, id, email, roleID, orgID, password string) *Subject {
	t.Helper()
	ctx := context.Background()
	s := &Subject{
		ID:             id,
		Email:          email,
		RoleID:         roleID,
		OrganizationID: orgID,
		CreatedAt:      f.now,
		UpdatedAt:      f.now,
	}
	if password != "" {
		if err := SetPassword(s, password); err != nil {
			t.Fatalf("password: %v", err)
		}
		active := f.now
		s.ActiveAt = &active
	}
	if err := f.store.Subjects(ctx).Create(ctx, s); err != nil {
		t.Fatalf("subject: %v", err)
	}
	resolved, err := f.store.Subjects(ctx).Find(ctx, id)
	if err != nil {
		t.Fatalf("find subject: %v", err)
	}
	return resolved
}
