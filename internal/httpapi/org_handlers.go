package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"classhub.org/internal/audit"
	"classhub.org/internal/auth"
)

type createOrganizationRequest struct {
	Name       string   `json:"name"`
	AdminEmail string   `json:"adminEmail"`
	PlanIDs    []string `json:"planIds"`
}

type patchOrganizationRequest struct {
	Name          *string  `json:"name"`
	Reactivate    bool     `json:"reactivate"`
	AddPlanIDs    []string `json:"addPlanIds"`
	RemovePlanIDs []string `json:"removePlanIds"`
	AdminEmail    *string  `json:"adminEmail"`
}

type inviteUserRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

type patchUserRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Role      *string `json:"role"`
}

func (a *API) superAdminOnly() auth.Predicate {
	return auth.RequireRole(auth.RoleSuperAdmin)
}

// orgReadGuard admits the platform operator, or a school admin reading
// their own tenant.
func (a *API) orgReadGuard() auth.Predicate {
	return auth.Some(
		auth.RequireRole(auth.RoleSuperAdmin),
		auth.Every(
			auth.RequireRole(auth.RoleSchoolAdmin),
			a.policy.PartOfOrganization(),
		),
	)
}

// orgUsersGuard is the tenant-scoped admin chain: school admin, member of
// the tenant in the path, and at least one plan inside its window.
func (a *API) orgUsersGuard() auth.Predicate {
	return auth.Every(
		auth.RequireRole(auth.RoleSchoolAdmin),
		a.policy.PartOfOrganization(),
		auth.Some(
			a.policy.PlanActive(auth.PlanOne),
			a.policy.PlanActive(auth.PlanTwo),
		),
	)
}

func (a *API) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, a.superAdminOnly(), "") {
		return
	}
	orgs, err := a.svc.ListOrganizations(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOrganizations(orgs))
}

func (a *API) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, a.superAdminOnly(), "") {
		return
	}
	var req createOrganizationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	org, err := a.svc.CreateOrganization(r.Context(), auth.CreateOrganizationParams{
		Name:       req.Name,
		AdminEmail: req.AdminEmail,
		PlanIDs:    req.PlanIDs,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "org.created", map[string]any{"organization_id": org.ID})
	w.Header().Set("Location", fmt.Sprintf("/v1/master/organizations/%s", org.ID))
	writeJSON(w, http.StatusCreated, viewOrganization(org))
}

func (a *API) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, a.orgReadGuard(), "organizationId") {
		return
	}
	org, err := a.svc.GetOrganization(r.Context(), mux.Vars(r)["organizationId"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOrganization(org))
}

func (a *API) handlePatchOrganization(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, a.superAdminOnly(), "") {
		return
	}
	var req patchOrganizationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	org, err := a.svc.UpdateOrganization(r.Context(), mux.Vars(r)["organizationId"], auth.UpdateOrganizationParams{
		Name:          req.Name,
		Reactivate:    req.Reactivate,
		AddPlanIDs:    req.AddPlanIDs,
		RemovePlanIDs: req.RemovePlanIDs,
		AdminEmail:    req.AdminEmail,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "org.updated", map[string]any{"organization_id": org.ID})
	writeJSON(w, http.StatusOK, viewOrganization(org))
}

func (a *API) handleDeleteOrganization(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, a.superAdminOnly(), "") {
		return
	}
	id := mux.Vars(r)["organizationId"]
	if err := a.svc.DeleteOrganization(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "org.deleted", map[string]any{"organization_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListOrgUsers(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, a.orgUsersGuard(), "organizationId") {
		return
	}
	subjects, err := a.svc.ListSubjects(r.Context(), mux.Vars(r)["organizationId"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSubjects(subjects))
}

func (a *API) handleInviteOrgUser(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, a.orgUsersGuard(), "organizationId") {
		return
	}
	var req inviteUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	orgID := mux.Vars(r)["organizationId"]
	subject, err := a.svc.InviteSubject(r.Context(), orgID, auth.InviteSubjectParams{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      auth.RoleName(req.Role),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "org.user.invited", map[string]any{
		"organization_id": orgID,
		"invited_id":      subject.ID,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/organizations/%s/users/%s", orgID, subject.ID))
	writeJSON(w, http.StatusCreated, viewSubject(subject))
}

func (a *API) handleGetOrgUser(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, a.orgUsersGuard(), "organizationId") {
		return
	}
	vars := mux.Vars(r)
	subject, err := a.svc.GetSubject(r.Context(), vars["organizationId"], vars["userId"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSubject(subject))
}

func (a *API) handlePatchOrgUser(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, a.orgUsersGuard(), "organizationId") {
		return
	}
	var req patchUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	params := auth.UpdateSubjectParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	if req.Role != nil {
		role := auth.RoleName(*req.Role)
		params.Role = &role
	}
	vars := mux.Vars(r)
	subject, err := a.svc.UpdateSubject(r.Context(), vars["organizationId"], vars["userId"], params)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSubject(subject))
}

func (a *API) handleDeleteOrgUser(w http.ResponseWriter, r *http.Request) {
	if !a.authorize(w, r, a.orgUsersGuard(), "organizationId") {
		return
	}
	vars := mux.Vars(r)
	if err := a.svc.RemoveSubject(r.Context(), vars["organizationId"], vars["userId"]); err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "org.user.removed", map[string]any{
		"organization_id": vars["organizationId"],
		"removed_id":      vars["userId"],
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSubscriptionSweep(w http.ResponseWriter, r *http.Request) {
	swept, err := a.svc.SweepLapsedSubscriptions(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "subscriptions.swept", map[string]any{"count": swept})
	writeJSON(w, http.StatusOK, map[string]any{"swept": swept})
}
