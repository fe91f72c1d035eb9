package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and local development.
// All methods are safe for concurrent use; returned entities are copies.
type MemoryStore struct {
	mu            sync.RWMutex
	now           func() time.Time
	subjects      map[string]*Subject
	organizations map[string]*Organization
	roles         map[string]*Role
	plans         map[string]*Plan
	subscriptions map[string]*Subscription
	tokens        map[string]*Token
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:           time.Now,
		subjects:      make(map[string]*Subject),
		organizations: make(map[string]*Organization),
		roles:         make(map[string]*Role),
		plans:         make(map[string]*Plan),
		subscriptions: make(map[string]*Subscription),
		tokens:        make(map[string]*Token),
	}
}

// SetClock overrides the time source, for tests.
func (m *MemoryStore) SetClock(now func() time.Time) { m.now = now }

func (m *MemoryStore) Subjects(context.Context) SubjectStore           { return memSubjects{m} }
func (m *MemoryStore) Organizations(context.Context) OrganizationStore { return memOrgs{m} }
func (m *MemoryStore) Roles(context.Context) RoleStore                 { return memRoles{m} }
func (m *MemoryStore) Plans(context.Context) PlanStore                 { return memPlans{m} }
func (m *MemoryStore) Subscriptions(context.Context) SubscriptionStore { return memSubs{m} }
func (m *MemoryStore) Tokens(context.Context) TokenStore               { return memTokens{m} }

func (m *MemoryStore) resolveSubject(s *Subject) *Subject {
	cp := *s
	if r, ok := m.roles[s.RoleID]; ok {
		rc := *r
		cp.Role = &rc
	}
	if s.OrganizationID != "" {
		if o, ok := m.organizations[s.OrganizationID]; ok {
			cp.Organization = m.resolveOrg(o)
		}
	}
	return &cp
}

func (m *MemoryStore) resolveOrg(o *Organization) *Organization {
	cp := *o
	if sub, ok := m.subscriptions[o.SubscriptionID]; ok {
		cp.Subscription = m.resolveSubscription(sub)
	}
	return &cp
}

func (m *MemoryStore) resolveSubscription(sub *Subscription) *Subscription {
	cp := *sub
	cp.Plans = make([]SubscriptionPlan, len(sub.Plans))
	copy(cp.Plans, sub.Plans)
	for i := range cp.Plans {
		if p, ok := m.plans[cp.Plans[i].PlanID]; ok {
			pc := *p
			cp.Plans[i].Plan = &pc
		}
	}
	return &cp
}

type memSubjects struct{ m *MemoryStore }

func (st memSubjects) Create(_ context.Context, s *Subject) error {
	st.m.mu.Lock()
	defer st.m.mu.Unlock()
	for _, existing := range st.m.subjects {
		if existing.Email == s.Email && existing.DeletedAt == nil {
			return Conflict("email already in use")
		}
	}
	cp := *s
	st.m.subjects[s.ID] = &cp
	return nil
}

func (st memSubjects) Find(_ context.Context, id string) (*Subject, error) {
	st.m.mu.RLock()
	defer st.m.mu.RUnlock()
	s, ok := st.m.subjects[id]
	if !ok || s.DeletedAt != nil {
		return nil, NotFound("subject not found")
	}
	return st.m.resolveSubject(s), nil
}

func (st memSubjects) FindByEmail(_ context.Context, email string) (*Subject, error) {
	st.m.mu.RLock()
	defer st.m.mu.RUnlock()
	for _, s := range st.m.subjects {
		if s.Email == email && s.DeletedAt == nil {
			return st.m.resolveSubject(s), nil
		}
	}
	return nil, NotFound("subject not found")
}

func (st memSubjects) ListByOrg(_ context.Context, orgID string) ([]*Subject, error) {
	st.m.mu.RLock()
	defer st.m.mu.RUnlock()
	var out []*Subject
	for _, s := range st.m.subjects {
		if s.OrganizationID == orgID {
			out = append(out, st.m.resolveSubject(s))
		}
	}
	return out, nil
}

func (st memSubjects) Update(_ context.Context, s *Subject) error {
	st.m.mu.Lock()
	defer st.m.mu.Unlock()
	if _, ok := st.m.subjects[s.ID]; !ok {
		return NotFound("subject not found")
	}
	for _, existing := range st.m.subjects {
		if existing.ID != s.ID && existing.Email == s.Email && existing.DeletedAt == nil {
			return Conflict("email already in use")
		}
	}
	cp := *s
	cp.Role, cp.Organization = nil, nil
	cp.UpdatedAt = st.m.now()
	st.m.subjects[s.ID] = &cp
	return nil
}

func (st memSubjects) SoftDelete(_ context.Context, id string) error {
	st.m.mu.Lock()
	defer st.m.mu.Unlock()
	s, ok := st.m.subjects[id]
	if !ok || s.DeletedAt != nil {
		return NotFound("subject not found")
	}
	now := st.m.now()
	s.DeletedAt = &now
	return nil
}

type memOrgs struct{ m *MemoryStore }

func (st memOrgs) Create(_ context.Context, org *Organization) error {
	st.m.mu.Lock()
	defer st.m.mu.Unlock()
	cp := *org
	cp.Subscription = nil
	st.m.organizations[org.ID] = &cp
	return nil
}

func (st memOrgs) Find(_ context.Context, id string) (*Organization, error) {
	st.m.mu.RLock()
	defer st.m.mu.RUnlock()
	o, ok := st.m.organizations[id]
	if !ok {
		return nil, NotFound("organization not found")
	}
	return st.m.resolveOrg(o), nil
}

func (st memOrgs) List(_ context.Context) ([]*Organization, error) {
	st.m.mu.RLock()
	defer st.m.mu.RUnlock()
	var out []*Organization
	for _, o := range st.m.organizations {
		out = append(out, st.m.resolveOrg(o))
	}
	return out, nil
}

func (st memOrgs) Update(_ context.Context, org *Organization) error {
	st.m.mu.Lock()
	defer st.m.mu.Unlock()
	if _, ok := st.m.organizations[org.ID]; !ok {
		return NotFound("organization not found")
	}
	cp := *org
	cp.Subscription = nil
	cp.UpdatedAt = st.m.now()
	st.m.organizations[org.ID] = &cp
	return nil
}

func (st memOrgs) SoftDelete(_ context.Context, id string) error {
	st.m.mu.Lock()
	defer st.m.mu.Unlock()
	o, ok := st.m.organizations[id]
	if !ok {
		return NotFound("organization not found")
	}
	if o.DeletedAt != nil {
		return BadRequest("organization already deleted")
	}
	now := st.m.now()
	o.DeletedAt = &now
	return nil
}

func (st memOrgs) Restore(_ context.Context, id string) error {
	st.m.mu.Lock()
	defer st.m.mu.Unlock()
	o, ok := st.m.organizations[id]
	if !ok {
		return NotFound("organization not found")
	}
	o.DeletedAt = nil
	o.UpdatedAt = st.m.now()
	return nil
}

type memRoles struct{ m *MemoryStore }

func (st memRoles) Find(_ context.Context, id string) (*Role, error) {
	st.m.mu.RLock()
	defer st.m.mu.RUnlock()
	r, ok := st.m.roles[id]
	if !ok {
		return nil, NotFound("role not found")
	}
	cp := *r
	return &cp, nil
}

func (st memRoles) FindByName(_ context.Context, name RoleName) (*Role, error) {
	st.m.mu.RLock()
	defer st.m.mu.RUnlock()
	for _, r := range st.m.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, NotFound("role not found")
}

func (st memRoles) List(_ context.Context) ([]*Role, error) {
	st.m.mu.RLock()
	defer st.m.mu.RUnlock()
	out := make([]*Role, 0, len(st.m.roles))
	for _, r := range st.m.roles {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// Seed installs catalog rows directly, for tests and local bootstrap.
func (m *MemoryStore) Seed(roles []*Role, plans []*Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range roles {
		cp := *r
		m.roles[r.ID] = &cp
	}
	for _, p := range plans {
		cp := *p
		m.plans[p.ID] = &cp
	}
}

type memPlans struct{ m *MemoryStore }

func (st memPlans) Find(_ context.Context, id string) (*Plan, error) {
	st.m.mu.RLock()
	defer st.m.mu.RUnlock()
	p, ok := st.m.plans[id]
	if !ok {
		return nil, NotFound("plan not found")
	}
	cp := *p
	return &cp, nil
}

func (st memPlans) FindByName(_ context.Context, name PlanName) (*Plan, error) {
	st.m.mu.RLock()
	defer st.m.mu.RUnlock()
	for _, p := range st.m.plans {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, NotFound("plan not found")
}

func (st memPlans) List(_ context.Context) ([]*Plan, error) {
	st.m.mu.RLock()
	defer st.m.mu.RUnlock()
	out := make([]*Plan, 0, len(st.m.plans))
	for _, p := range st.m.plans {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

type memSubs struct{ m *MemoryStore }

func (st memSubs) Create(_ context.Context, sub *Subscription) error {
	st.m.mu.Lock()
	defer st.m.mu.Unlock()
	cp := *sub
	cp.Plans = append([]SubscriptionPlan(nil), sub.Plans...)
	st.m.subscriptions[sub.ID] = &cp
	return nil
}

func (st memSubs) Find(_ context.Context, id string) (*Subscription, error) {
	st.m.mu.RLock()
	defer st.m.mu.RUnlock()
	sub, ok := st.m.subscriptions[id]
	if !ok {
		return nil, NotFound("subscription not found")
	}
	return st.m.resolveSubscription(sub), nil
}

func (st memSubs) SetStatus(_ context.Context, id string, status SubscriptionStatus) error {
	st.m.mu.Lock()
	defer st.m.mu.Unlock()
	sub, ok := st.m.subscriptions[id]
	if !ok {
		return NotFound("subscription not found")
	}
	sub.Status = status
	return nil
}

func (st memSubs) AttachPlan(_ context.Context, subID string, sp *SubscriptionPlan) error {
	st.m.mu.Lock()
	defer st.m.mu.Unlock()
	sub, ok := st.m.subscriptions[subID]
	if !ok {
		return NotFound("subscription not found")
	}
	for _, existing := range sub.Plans {
		if existing.PlanID == sp.PlanID {
			return Conflict("plan already attached")
		}
	}
	cp := *sp
	cp.Plan = nil
	sub.Plans = append(sub.Plans, cp)
	return nil
}

func (st memSubs) DetachPlan(_ context.Context, subID, planID string) error {
	st.m.mu.Lock()
	defer st.m.mu.Unlock()
	sub, ok := st.m.subscriptions[subID]
	if !ok {
		return NotFound("subscription not found")
	}
	for i, existing := range sub.Plans {
		if existing.PlanID == planID {
			sub.Plans = append(sub.Plans[:i], sub.Plans[i+1:]...)
			return nil
		}
	}
	return NotFound("plan not attached")
}

func (st memSubs) ListLapsed(_ context.Context) ([]*Subscription, error) {
	st.m.mu.RLock()
	defer st.m.mu.RUnlock()
	now := st.m.now()
	var out []*Subscription
	for _, sub := range st.m.subscriptions {
		if sub.Status != SubscriptionActive || len(sub.Plans) == 0 {
			continue
		}
		lapsed := true
		for _, sp := range sub.Plans {
			if now.Before(sp.EndAt) {
				lapsed = false
				break
			}
		}
		if lapsed {
			out = append(out, st.m.resolveSubscription(sub))
		}
	}
	return out, nil
}

type memTokens struct{ m *MemoryStore }

func (st memTokens) Create(_ context.Context, t *Token) error {
	st.m.mu.Lock()
	defer st.m.mu.Unlock()
	if _, ok := st.m.tokens[t.Token]; ok {
		return Conflict("token already recorded")
	}
	cp := *t
	st.m.tokens[t.Token] = &cp
	return nil
}

func (st memTokens) Find(_ context.Context, token string) (*Token, error) {
	st.m.mu.RLock()
	defer st.m.mu.RUnlock()
	t, ok := st.m.tokens[token]
	if !ok {
		return nil, NotFound("token not found")
	}
	cp := *t
	return &cp, nil
}

func (st memTokens) Redeem(_ context.Context, token string) error {
	st.m.mu.Lock()
	defer st.m.mu.Unlock()
	t, ok := st.m.tokens[token]
	if !ok {
		return NotFound("token not found")
	}
	if t.RedeemedAt != nil || t.RevokedAt != nil {
		return ErrTokenConsumed
	}
	now := st.m.now()
	t.RedeemedAt = &now
	t.UpdatedAt = now
	return nil
}

func (st memTokens) Revoke(_ context.Context, token string) error {
	st.m.mu.Lock()
	defer st.m.mu.Unlock()
	t, ok := st.m.tokens[token]
	if !ok {
		return NotFound("token not found")
	}
	now := st.m.now()
	t.RevokedAt = &now
	t.UpdatedAt = now
	return nil
}

var _ Store = (*MemoryStore)(nil)
