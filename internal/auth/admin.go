package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"classhub.org/internal/ids"
)

// CreateOrganizationParams describes a new tenant: its name, the email of
// the school admin to invite, and the plans to attach.
type CreateOrganizationParams struct {
	Name       string
	AdminEmail string
	PlanIDs    []string
}

// CreateOrganization provisions a tenant: an ACTIVE subscription with one
// validity window per plan, the organization itself, and a passwordless
// school-admin subject holding a 30-day activation token delivered by mail.
func (s *Service) CreateOrganization(ctx context.Context, params CreateOrganizationParams) (*Organization, error) {
	params.Name = strings.TrimSpace(params.Name)
	params.AdminEmail = strings.TrimSpace(params.AdminEmail)
	if params.Name == "" || params.AdminEmail == "" {
		return nil, BadRequest("name and admin email are required")
	}
	if len(params.PlanIDs) == 0 {
		return nil, BadRequest("at least one plan is required")
	}
	if _, err := s.store.Subjects(ctx).FindByEmail(ctx, params.AdminEmail); err == nil {
		return nil, Conflict("email already in use")
	} else if KindOf(err) != KindNotFound {
		return nil, err
	}

	now := s.now()
	sub := &Subscription{ID: uuid.NewString(), Status: SubscriptionActive}
	for _, planID := range params.PlanIDs {
		plan, err := s.store.Plans(ctx).Find(ctx, planID)
		if err != nil {
			return nil, err
		}
		sub.Plans = append(sub.Plans, SubscriptionPlan{
			ID:      ids.New(),
			PlanID:  plan.ID,
			StartAt: now,
			EndAt:   now.AddDate(0, 0, plan.Duration),
		})
	}
	if err := s.store.Subscriptions(ctx).Create(ctx, sub); err != nil {
		return nil, err
	}

	org := &Organization{
		ID:             uuid.NewString(),
		Name:           params.Name,
		SubscriptionID: sub.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Organizations(ctx).Create(ctx, org); err != nil {
		return nil, err
	}

	role, err := s.store.Roles(ctx).FindByName(ctx, RoleSchoolAdmin)
	if err != nil {
		return nil, err
	}
	admin := &Subject{
		ID:             uuid.NewString(),
		Email:          params.AdminEmail,
		RoleID:         role.ID,
		OrganizationID: org.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Subjects(ctx).Create(ctx, admin); err != nil {
		return nil, err
	}
	token, err := s.issuer.Issue(ctx, admin.ID, ScopeActivate, TTLActivate)
	if err != nil {
		return nil, err
	}
	go s.mailer.SendInvite(context.WithoutCancel(ctx), admin.Email, org.Name, token)
	return s.store.Organizations(ctx).Find(ctx, org.ID)
}

// ListOrganizations returns every tenant, soft-deleted ones included.
func (s *Service) ListOrganizations(ctx context.Context) ([]*Organization, error) {
	return s.store.Organizations(ctx).List(ctx)
}

// GetOrganization returns one tenant by id.
func (s *Service) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, BadRequest("invalid organization id")
	}
	return s.store.Organizations(ctx).Find(ctx, id)
}

// UpdateOrganizationParams lists the patchable tenant fields. Nil pointers
// leave the corresponding field untouched.
type UpdateOrganizationParams struct {
	Name          *string
	Reactivate    bool
	AddPlanIDs    []string
	RemovePlanIDs []string
	AdminEmail    *string
}

// UpdateOrganization patches a tenant. Soft-deleted tenants reject every
// change unless Reactivate is set, which clears the deletion stamp and
// requires a fresh admin email because deletion scrambled the old one.
// Added plans get fresh validity windows; rotating the admin email
// re-invites an admin who has not activated yet. A tenant without a school
// admin on record is an invariant violation.
func (s *Service) UpdateOrganization(ctx context.Context, id string, params UpdateOrganizationParams) (*Organization, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, BadRequest("invalid organization id")
	}
	org, err := s.store.Organizations(ctx).Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if params.Reactivate && org.Deleted() {
		if params.AdminEmail == nil || strings.TrimSpace(*params.AdminEmail) == "" {
			return nil, BadRequest("admin email is required to reactivate the organization")
		}
		if err := s.store.Organizations(ctx).Restore(ctx, org.ID); err != nil {
			return nil, err
		}
		org.DeletedAt = nil
	}
	if org.Deleted() {
		return nil, BadRequest("organization is deleted")
	}

	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return nil, BadRequest("name must not be empty")
		}
		org.Name = name
		if err := s.store.Organizations(ctx).Update(ctx, org); err != nil {
			return nil, err
		}
	}
	if params.Reactivate {
		if err := s.store.Subscriptions(ctx).SetStatus(ctx, org.SubscriptionID, SubscriptionActive); err != nil {
			return nil, err
		}
	}
	now := s.now()
	for _, planID := range params.AddPlanIDs {
		plan, err := s.store.Plans(ctx).Find(ctx, planID)
		if err != nil {
			return nil, err
		}
		sp := &SubscriptionPlan{
			ID:      ids.New(),
			PlanID:  plan.ID,
			StartAt: now,
			EndAt:   now.AddDate(0, 0, plan.Duration),
		}
		if err := s.store.Subscriptions(ctx).AttachPlan(ctx, org.SubscriptionID, sp); err != nil {
			return nil, err
		}
	}
	for _, planID := range params.RemovePlanIDs {
		if err := s.store.Subscriptions(ctx).DetachPlan(ctx, org.SubscriptionID, planID); err != nil {
			return nil, err
		}
	}
	if params.AdminEmail != nil {
		if err := s.rotateAdminEmail(ctx, org, strings.TrimSpace(*params.AdminEmail)); err != nil {
			return nil, err
		}
	}
	return s.store.Organizations(ctx).Find(ctx, org.ID)
}

func (s *Service) rotateAdminEmail(ctx context.Context, org *Organization, email string) error {
	if email == "" {
		return BadRequest("admin email must not be empty")
	}
	admin, err := s.findSchoolAdmin(ctx, org.ID)
	if err != nil {
		return err
	}
	if admin.Email == email {
		return nil
	}
	if _, err := s.store.Subjects(ctx).FindByEmail(ctx, email); err == nil {
		return Conflict("email already in use")
	} else if KindOf(err) != KindNotFound {
		return err
	}
	admin.Email = email
	if err := s.store.Subjects(ctx).Update(ctx, admin); err != nil {
		return err
	}
	if !admin.Active() {
		token, err := s.issuer.Issue(ctx, admin.ID, ScopeActivate, TTLActivate)
		if err != nil {
			return err
		}
		go s.mailer.SendInvite(context.WithoutCancel(ctx), admin.Email, org.Name, token)
	}
	return nil
}

func (s *Service) findSchoolAdmin(ctx context.Context, orgID string) (*Subject, error) {
	subjects, err := s.store.Subjects(ctx).ListByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for _, sub := range subjects {
		if sub.RoleName() == RoleSchoolAdmin && sub.DeletedAt == nil {
			return sub, nil
		}
	}
	return nil, Implementation("organization has no school admin")
}

// DeleteOrganization soft-deletes a tenant and scrambles its school-admin
// email so the address can be claimed again by a future tenant.
func (s *Service) DeleteOrganization(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return BadRequest("invalid organization id")
	}
	org, err := s.store.Organizations(ctx).Find(ctx, id)
	if err != nil {
		return err
	}
	if org.Deleted() {
		return BadRequest("organization already deleted")
	}
	admin, err := s.findSchoolAdmin(ctx, org.ID)
	if err != nil {
		return err
	}
	admin.Email = fmt.Sprintf("deleted-%d@classhub.org", s.now().UnixMilli())
	if err := s.store.Subjects(ctx).Update(ctx, admin); err != nil {
		return err
	}
	return s.store.Organizations(ctx).SoftDelete(ctx, id)
}

// InviteSubjectParams describes a new organization member.
type InviteSubjectParams struct {
	Email     string
	FirstName string
	LastName  string
	Role      RoleName
}

// InviteSubject creates a passwordless member of the organization and mails
// a 30-day activation token. Only Faculty and Student members can be
// invited this way; admins come from tenant provisioning.
func (s *Service) InviteSubject(ctx context.Context, orgID string, params InviteSubjectParams) (*Subject, error) {
	params.Email = strings.TrimSpace(params.Email)
	if params.Email == "" {
		return nil, BadRequest("email is required")
	}
	if params.Role != RoleFaculty && params.Role != RoleStudent {
		return nil, BadRequest("role must be Faculty or Student")
	}
	org, err := s.store.Organizations(ctx).Find(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.Deleted() {
		return nil, Forbidden("organization is deleted")
	}
	if _, err := s.store.Subjects(ctx).FindByEmail(ctx, params.Email); err == nil {
		return nil, Conflict("email already in use")
	} else if KindOf(err) != KindNotFound {
		return nil, err
	}
	role, err := s.store.Roles(ctx).FindByName(ctx, params.Role)
	if err != nil {
		return nil, err
	}
	now := s.now()
	subject := &Subject{
		ID:             uuid.NewString(),
		Email:          params.Email,
		FirstName:      params.FirstName,
		LastName:       params.LastName,
		RoleID:         role.ID,
		OrganizationID: org.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Subjects(ctx).Create(ctx, subject); err != nil {
		return nil, err
	}
	token, err := s.issuer.Issue(ctx, subject.ID, ScopeActivate, TTLActivate)
	if err != nil {
		return nil, err
	}
	go s.mailer.SendInvite(context.WithoutCancel(ctx), subject.Email, org.Name, token)
	return s.store.Subjects(ctx).Find(ctx, subject.ID)
}

// ListSubjects returns the organization's members.
func (s *Service) ListSubjects(ctx context.Context, orgID string) ([]*Subject, error) {
	return s.store.Subjects(ctx).ListByOrg(ctx, orgID)
}

// GetSubject returns one member. A subject outside the organization is
// indistinguishable from a missing one.
func (s *Service) GetSubject(ctx context.Context, orgID, id string) (*Subject, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, BadRequest("invalid subject id")
	}
	subject, err := s.store.Subjects(ctx).Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if subject.OrganizationID != orgID {
		return nil, NotFound("subject not found")
	}
	return subject, nil
}

// UpdateSubjectParams lists the patchable member fields.
type UpdateSubjectParams struct {
	FirstName *string
	LastName  *string
	Role      *RoleName
}

// UpdateSubject patches a member's profile. A school admin cannot be
// demoted to faculty; other role moves are allowed.
func (s *Service) UpdateSubject(ctx context.Context, orgID, id string, params UpdateSubjectParams) (*Subject, error) {
	subject, err := s.GetSubject(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if params.FirstName != nil {
		subject.FirstName = *params.FirstName
	}
	if params.LastName != nil {
		subject.LastName = *params.LastName
	}
	if params.Role != nil {
		role, err := s.store.Roles(ctx).FindByName(ctx, *params.Role)
		if err != nil {
			return nil, err
		}
		if role.Name == RoleFaculty && subject.RoleName() == RoleSchoolAdmin {
			return nil, Forbidden("cannot change the role of a school admin to faculty")
		}
		subject.RoleID = role.ID
	}
	if err := s.store.Subjects(ctx).Update(ctx, subject); err != nil {
		return nil, err
	}
	return s.store.Subjects(ctx).Find(ctx, id)
}

// RemoveSubject soft-deletes a member. The school admin cannot be removed;
// tenant deletion is the only way out for that account.
func (s *Service) RemoveSubject(ctx context.Context, orgID, id string) error {
	subject, err := s.GetSubject(ctx, orgID, id)
	if err != nil {
		return err
	}
	if subject.RoleName() == RoleSchoolAdmin {
		return BadRequest("cannot remove the school admin")
	}
	return s.store.Subjects(ctx).SoftDelete(ctx, id)
}

// SweepLapsedSubscriptions marks ACTIVE subscriptions whose every plan
// window has elapsed as INACTIVE and reports how many were transitioned.
// Invoked through the internal channel on a schedule.
func (s *Service) SweepLapsedSubscriptions(ctx context.Context) (int, error) {
	lapsed, err := s.store.Subscriptions(ctx).ListLapsed(ctx)
	if err != nil {
		return 0, err
	}
	for _, sub := range lapsed {
		if err := s.store.Subscriptions(ctx).SetStatus(ctx, sub.ID, SubscriptionInactive); err != nil {
			return 0, err
		}
	}
	return len(lapsed), nil
}
