package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"classhub.org/internal/auth"
)

const (
	testSecret       = "test-secret-0123456789"
	testServiceToken = "svc-token-abcdef"

	orgAlphaID = "11111111-1111-4111-8111-111111111111"
	orgBetaID  = "22222222-2222-4222-8222-222222222222"
)

var (
	testRoles = []*auth.Role{
		{ID: "role-super", Name: auth.RoleSuperAdmin},
		{ID: "role-school", Name: auth.RoleSchoolAdmin},
		{ID: "role-faculty", Name: auth.RoleFaculty},
		{ID: "role-student", Name: auth.RoleStudent},
	}
	testPlans = []*auth.Plan{
		{ID: "plan-1", Name: auth.PlanOne, Duration: 365},
		{ID: "plan-2", Name: auth.PlanTwo, Duration: 365},
	}
)

type harness struct {
	api    *API
	store  *auth.MemoryStore
	issuer *auth.Issuer
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := auth.NewMemoryStore()
	store.Seed(testRoles, testPlans)
	h := &harness{store: store, now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return h.now }
	store.SetClock(clock)

	issuer, err := auth.NewIssuer(testSecret, "HS256", store.Tokens(context.Background()), auth.WithIssuerClock(clock))
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	h.issuer = issuer
	svc := auth.NewService(store, issuer,
		auth.WithClock(clock),
		auth.WithSleep(func(time.Duration) {}),
	)
	h.api = New(Options{
		Service:      svc,
		Gate:         auth.NewGate(issuer, store),
		Policy:       auth.NewPolicy(store, auth.WithPolicyClock(clock)),
		Version:      "test",
		ServiceToken: testServiceToken,
	})
	return h
}

// addOrg creates a tenant with an ACTIVE subscription whose plan windows
// run over [start, end).
func (h *harness) addOrg(t *testing.T, id string, start, end time.Time, planIDs ...string) {
	t.Helper()
	ctx := context.Background()
	sub := &auth.Subscription{ID: "sub-" + id, Status: auth.SubscriptionActive}
	for _, planID := range planIDs {
		sub.Plans = append(sub.Plans, auth.SubscriptionPlan{
			ID:      "sp-" + id + "-" + planID,
			PlanID:  planID,
			StartAt: start,
			EndAt:   end,
		})
	}
	if err := h.store.Subscriptions(ctx).Create(ctx, sub); err != nil {
		t.Fatalf("subscription: %v", err)
	}
	org := &auth.Organization{ID: id, Name: "Org " + id, SubscriptionID: sub.ID}
	if err := h.store.Organizations(ctx).Create(ctx, org); err != nil {
		t.Fatalf("organization: %v", err)
	}
}

func (h *harness) addSubject(t *testing.T, id, email, roleID, orgID, password string) {
	t.Helper()
	ctx := context.Background()
	s := &auth.Subject{ID: id, Email: email, RoleID: roleID, OrganizationID: orgID}
	if password != "" {
		if err := auth.SetPassword(s, password); err != nil {
			t.Fatalf("password: %v", err)
		}
		active := h.now
		s.ActiveAt = &active
	}
	if err := h.store.Subjects(ctx).Create(ctx, s); err != nil {
		t.Fatalf("subject: %v", err)
	}
}

func (h *harness) token(t *testing.T, subjectID string, scope auth.TokenScope, ttl time.Duration) string {
	t.Helper()
	token, err := h.issuer.Issue(context.Background(), subjectID, scope, ttl)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return token
}

func (h *harness) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.api.Handler().ServeHTTP(rec, req)
	return rec
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rec.Code != code {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, code, rec.Body.String())
	}
}

func wantErrorBody(t *testing.T, rec *httptest.ResponseRecorder, code int, name string) {
	t.Helper()
	wantStatus(t, rec, code)
	var body errorBody
	decodeBody(t, rec, &body)
	if body.Name != name {
		t.Fatalf("error name = %q, want %q (message %q)", body.Name, name, body.Message)
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/healthz", "", nil)
	wantStatus(t, rec, http.StatusOK)
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["status"] != "ok" || body["service"] != "classhub-api" {
		t.Fatalf("body = %v", body)
	}
}

func TestLoginEndpoint(t *testing.T) {
	h := newHarness(t)
	h.addOrg(t, orgAlphaID, h.now, h.now.AddDate(1, 0, 0), "plan-1")
	h.addSubject(t, "subj-ann", "ann@alpha.test", "role-school", orgAlphaID, "pw-ann-123")

	rec := h.do(t, http.MethodPost, "/v1/auth/login",
		`{"email":"ann@alpha.test","password":"pw-ann-123"}`, nil)
	wantStatus(t, rec, http.StatusOK)
	if got := rec.Header().Get("Authorization"); !strings.HasPrefix(got, "Bearer ") {
		t.Fatalf("Authorization header = %q", got)
	}
	var body struct {
		Token string `json:"token"`
		User  struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	decodeBody(t, rec, &body)
	if body.Token == "" || body.User.Email != "ann@alpha.test" {
		t.Fatalf("body = %+v", body)
	}
	// credential material never crosses the boundary
	raw := rec.Body.String()
	for _, leak := range []string{"hashedPassword", "salt", "hashed_password"} {
		if strings.Contains(raw, leak) {
			t.Fatalf("response leaks %q: %s", leak, raw)
		}
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := newHarness(t)
	h.addOrg(t, orgAlphaID, h.now, h.now.AddDate(1, 0, 0), "plan-1")
	h.addSubject(t, "subj-ann", "ann@alpha.test", "role-school", orgAlphaID, "pw-ann-123")

	rec := h.do(t, http.MethodPost, "/v1/auth/login",
		`{"email":"ann@alpha.test","password":"nope"}`, nil)
	wantErrorBody(t, rec, http.StatusUnauthorized, "UnauthorizedError")
}

func TestLoginRejectsUnknownFields(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/v1/auth/login",
		`{"email":"x@y.test","password":"pw","extra":true}`, nil)
	wantErrorBody(t, rec, http.StatusBadRequest, "BadRequestError")
}

func TestBearerGuard(t *testing.T) {
	h := newHarness(t)
	h.addOrg(t, orgAlphaID, h.now, h.now.AddDate(1, 0, 0), "plan-1")
	h.addSubject(t, "subj-ann", "ann@alpha.test", "role-school", orgAlphaID, "pw-ann-123")

	rec := h.do(t, http.MethodGet, "/v1/users/me", "", nil)
	wantErrorBody(t, rec, http.StatusUnauthorized, "UnauthorizedError")

	rec = h.do(t, http.MethodGet, "/v1/users/me", "", map[string]string{"Authorization": "Token abc"})
	wantErrorBody(t, rec, http.StatusUnauthorized, "UnauthorizedError")

	token := h.token(t, "subj-ann", auth.ScopeAccess, auth.TTLLogin)
	rec = h.do(t, http.MethodGet, "/v1/users/me", "", bearer(token))
	wantStatus(t, rec, http.StatusOK)
	var me struct {
		Email string `json:"email"`
	}
	decodeBody(t, rec, &me)
	if me.Email != "ann@alpha.test" {
		t.Fatalf("me = %+v", me)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	h := newHarness(t)
	h.addOrg(t, orgAlphaID, h.now, h.now.AddDate(1, 0, 0), "plan-1")
	h.addSubject(t, "subj-ann", "ann@alpha.test", "role-school", orgAlphaID, "pw-ann-123")

	token := h.token(t, "subj-ann", auth.ScopeAccess, time.Minute)
	h.now = h.now.Add(2 * time.Minute)
	rec := h.do(t, http.MethodGet, "/v1/users/me", "", bearer(token))
	wantErrorBody(t, rec, http.StatusUnauthorized, "UnauthorizedError")
}

func TestMasterOrganizationsRequiresSuperAdmin(t *testing.T) {
	h := newHarness(t)
	h.addOrg(t, orgAlphaID, h.now, h.now.AddDate(1, 0, 0), "plan-1")
	h.addSubject(t, "subj-bob", "bob@alpha.test", "role-student", orgAlphaID, "pw-bob-123")
	h.addSubject(t, "subj-root", "root@classhub.test", "role-super", "", "pw-root-123")

	student := h.token(t, "subj-bob", auth.ScopeAccess, auth.TTLLogin)
	rec := h.do(t, http.MethodGet, "/v1/master/organizations", "", bearer(student))
	wantErrorBody(t, rec, http.StatusUnauthorized, "UnauthorizedError")

	super := h.token(t, "subj-root", auth.ScopeAccess, auth.TTLLogin)
	rec = h.do(t, http.MethodGet, "/v1/master/organizations", "", bearer(super))
	wantStatus(t, rec, http.StatusOK)
}

func TestCreateOrganizationEndpoint(t *testing.T) {
	h := newHarness(t)
	h.addSubject(t, "subj-root", "root@classhub.test", "role-super", "", "pw-root-123")
	super := h.token(t, "subj-root", auth.ScopeAccess, auth.TTLLogin)

	rec := h.do(t, http.MethodPost, "/v1/master/organizations",
		`{"name":"Northside High","adminEmail":"head@northside.test","planIds":["plan-1"]}`,
		bearer(super))
	wantStatus(t, rec, http.StatusCreated)
	var org struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &org)
	if loc := rec.Header().Get("Location"); loc != "/v1/master/organizations/"+org.ID {
		t.Fatalf("Location = %q", loc)
	}
}

func TestOrgReadGuard(t *testing.T) {
	h := newHarness(t)
	h.addOrg(t, orgAlphaID, h.now, h.now.AddDate(1, 0, 0), "plan-1")
	h.addOrg(t, orgBetaID, h.now, h.now.AddDate(1, 0, 0), "plan-1")
	h.addSubject(t, "subj-ann", "ann@alpha.test", "role-school", orgAlphaID, "pw-ann-123")

	admin := h.token(t, "subj-ann", auth.ScopeAccess, auth.TTLLogin)
	rec := h.do(t, http.MethodGet, "/v1/master/organizations/"+orgAlphaID, "", bearer(admin))
	wantStatus(t, rec, http.StatusOK)

	// another tenant's record is off limits
	rec = h.do(t, http.MethodGet, "/v1/master/organizations/"+orgBetaID, "", bearer(admin))
	wantErrorBody(t, rec, http.StatusUnauthorized, "UnauthorizedError")
}

func TestOrgUsersPlanGate(t *testing.T) {
	h := newHarness(t)
	// window already closed
	h.addOrg(t, orgAlphaID, h.now.AddDate(-1, 0, 0), h.now.AddDate(0, 0, -30), "plan-1")
	h.addSubject(t, "subj-ann", "ann@alpha.test", "role-school", orgAlphaID, "pw-ann-123")

	admin := h.token(t, "subj-ann", auth.ScopeAccess, auth.TTLLogin)
	rec := h.do(t, http.MethodGet, "/v1/organizations/"+orgAlphaID+"/users", "", bearer(admin))
	wantErrorBody(t, rec, http.StatusUnauthorized, "UnauthorizedError")
}

func TestOrgUsersLifecycle(t *testing.T) {
	h := newHarness(t)
	h.addOrg(t, orgAlphaID, h.now, h.now.AddDate(1, 0, 0), "plan-1")
	h.addSubject(t, "subj-ann", "ann@alpha.test", "role-school", orgAlphaID, "pw-ann-123")
	admin := h.token(t, "subj-ann", auth.ScopeAccess, auth.TTLLogin)
	base := "/v1/organizations/" + orgAlphaID + "/users"

	rec := h.do(t, http.MethodPost, base,
		`{"email":"kid@alpha.test","firstName":"Kim","role":"Student"}`, bearer(admin))
	wantStatus(t, rec, http.StatusCreated)
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &created)

	rec = h.do(t, http.MethodPatch, base+"/"+created.ID, `{"lastName":"Lee"}`, bearer(admin))
	wantStatus(t, rec, http.StatusOK)
	var patched struct {
		LastName string `json:"lastName"`
	}
	decodeBody(t, rec, &patched)
	if patched.LastName != "Lee" {
		t.Fatalf("patch result = %+v", patched)
	}

	rec = h.do(t, http.MethodDelete, base+"/"+created.ID, "", bearer(admin))
	wantStatus(t, rec, http.StatusNoContent)

	rec = h.do(t, http.MethodGet, base+"/"+created.ID, "", bearer(admin))
	wantErrorBody(t, rec, http.StatusNotFound, "NotFoundError")
}

func TestPatchOrgUserRole(t *testing.T) {
	h := newHarness(t)
	h.addOrg(t, orgAlphaID, h.now, h.now.AddDate(1, 0, 0), "plan-1")
	h.addSubject(t, "subj-ann", "ann@alpha.test", "role-school", orgAlphaID, "pw-ann-123")
	h.addSubject(t, "subj-bob", "bob@alpha.test", "role-student", orgAlphaID, "pw-bob-123")
	admin := h.token(t, "subj-ann", auth.ScopeAccess, auth.TTLLogin)
	base := "/v1/organizations/" + orgAlphaID + "/users"

	rec := h.do(t, http.MethodPatch, base+"/subj-bob", `{"role":"Faculty"}`, bearer(admin))
	wantStatus(t, rec, http.StatusOK)
	var patched struct {
		Role struct {
			Name string `json:"name"`
		} `json:"role"`
	}
	decodeBody(t, rec, &patched)
	if patched.Role.Name != string(auth.RoleFaculty) {
		t.Fatalf("role = %q", patched.Role.Name)
	}

	// the school admin cannot be demoted to faculty
	rec = h.do(t, http.MethodPatch, base+"/subj-ann", `{"role":"Faculty"}`, bearer(admin))
	wantErrorBody(t, rec, http.StatusForbidden, "ForbiddenError")
}

func TestMeDeletedOrganization(t *testing.T) {
	h := newHarness(t)
	h.addOrg(t, orgAlphaID, h.now, h.now.AddDate(1, 0, 0), "plan-1")
	h.addSubject(t, "subj-ann", "ann@alpha.test", "role-school", orgAlphaID, "pw-ann-123")
	token := h.token(t, "subj-ann", auth.ScopeAccess, auth.TTLLogin)

	rec := h.do(t, http.MethodGet, "/v1/users/me", "", bearer(token))
	wantStatus(t, rec, http.StatusOK)

	// a token minted before tenant deletion stops working afterwards
	ctx := context.Background()
	if err := h.store.Organizations(ctx).SoftDelete(ctx, orgAlphaID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	rec = h.do(t, http.MethodGet, "/v1/users/me", "", bearer(token))
	wantErrorBody(t, rec, http.StatusForbidden, "ForbiddenError")
}

func TestActivateEndpoint(t *testing.T) {
	h := newHarness(t)
	h.addOrg(t, orgAlphaID, h.now, h.now.AddDate(1, 0, 0), "plan-1")
	h.addSubject(t, "subj-kim", "kim@alpha.test", "role-student", orgAlphaID, "")

	invite := h.token(t, "subj-kim", auth.ScopeActivate, auth.TTLActivate)
	rec := h.do(t, http.MethodPost, "/v1/auth/activate",
		`{"firstName":"Kim","password":"pw-kim-777"}`,
		map[string]string{"X-A-Token": invite})
	wantStatus(t, rec, http.StatusOK)

	// the token is spent
	rec = h.do(t, http.MethodPost, "/v1/auth/activate",
		`{"password":"pw-again"}`,
		map[string]string{"X-A-Token": invite})
	wantErrorBody(t, rec, http.StatusBadRequest, "BadRequestError")

	rec = h.do(t, http.MethodPost, "/v1/auth/login",
		`{"email":"kim@alpha.test","password":"pw-kim-777"}`, nil)
	wantStatus(t, rec, http.StatusOK)
}

func TestActivateWithoutTokenHeader(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/v1/auth/activate", `{"password":"pw"}`, nil)
	wantErrorBody(t, rec, http.StatusBadRequest, "BadRequestError")
}

func TestResetPasswordEndpoint(t *testing.T) {
	h := newHarness(t)
	h.addOrg(t, orgAlphaID, h.now, h.now.AddDate(1, 0, 0), "plan-1")
	h.addSubject(t, "subj-ann", "ann@alpha.test", "role-school", orgAlphaID, "pw-ann-123")

	reset := h.token(t, "subj-ann", auth.ScopeReset, auth.TTLReset)
	rec := h.do(t, http.MethodPost, "/v1/auth/reset-password",
		`{"email":"ann@alpha.test","password":"pw-ann-next"}`,
		map[string]string{"X-R-Token": reset})
	wantStatus(t, rec, http.StatusOK)

	rec = h.do(t, http.MethodPost, "/v1/auth/login",
		`{"email":"ann@alpha.test","password":"pw-ann-next"}`, nil)
	wantStatus(t, rec, http.StatusOK)
}

func TestRecoverEndpointNeverLeaksExistence(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/v1/auth/recover", `{"email":"ghost@nowhere.test"}`, nil)
	wantStatus(t, rec, http.StatusOK)
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestServiceTokenGate(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/internal/subscriptions/sweep", "", nil)
	wantErrorBody(t, rec, http.StatusInternalServerError, "ImplementationError")

	rec = h.do(t, http.MethodPost, "/v1/internal/subscriptions/sweep", "",
		map[string]string{"S-Token": "wrong"})
	wantStatus(t, rec, http.StatusInternalServerError)
	// the denial explains nothing
	var body errorBody
	decodeBody(t, rec, &body)
	if strings.Contains(body.Message, "token") {
		t.Fatalf("denial leaks detail: %q", body.Message)
	}

	rec = h.do(t, http.MethodPost, "/v1/internal/subscriptions/sweep", "",
		map[string]string{"S-Token": testServiceToken})
	wantStatus(t, rec, http.StatusOK)
	var out map[string]int
	decodeBody(t, rec, &out)
	if out["swept"] != 0 {
		t.Fatalf("swept = %d", out["swept"])
	}
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/v1/nonsense", "", nil)
	wantErrorBody(t, rec, http.StatusNotFound, "NotFoundError")
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodDelete, "/v1/auth/login", "", nil)
	wantErrorBody(t, rec, http.StatusMethodNotAllowed, "MethodNotAllowedError")
}
