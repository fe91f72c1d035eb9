package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"classhub.org/internal/auth"
)

const (
	authHeader          = "Authorization"
	bearerScheme        = "Bearer "
	activateTokenHeader = "X-A-Token"
	resetTokenHeader    = "X-R-Token"
	serviceTokenHeader  = "S-Token"
)

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", auth.Unauthorized("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerScheme)) {
		return "", auth.Unauthorized("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearerScheme):])
	if token == "" {
		return "", auth.Unauthorized("missing bearer token")
	}
	return token, nil
}

// requireAccess authenticates the bearer token with ACCESS scope and puts
// the resolved subject and claims on the request context.
func (a *API) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		subject, claims, err := a.gate.Authenticate(r.Context(), token, auth.ScopeAccess)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		ctx := auth.ContextWithSubject(r.Context(), subject)
		ctx = auth.ContextWithClaims(ctx, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireServiceToken gates internal endpoints on the shared S-Token
// header. The comparison is constant-time, and any mismatch is answered
// like an internal fault: the channel never explains itself to strangers.
func (a *API) requireServiceToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(serviceTokenHeader)
		if got == "" ||
			subtle.ConstantTimeCompare([]byte(got), []byte(a.serviceToken)) != 1 {
			writeDomainError(w, r, auth.Implementation("service token mismatch"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorize evaluates a predicate against the authenticated request state.
// pathOrgVar names the route variable carrying the tenant id, if any.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, pred auth.Predicate, pathOrgVar string) bool {
	subject, _ := auth.SubjectFromContext(r.Context())
	claims, _ := auth.ClaimsFromContext(r.Context())
	req := &auth.Request{
		Subject: subject,
		Claims:  claims,
	}
	if pathOrgVar != "" {
		req.PathOrgID = mux.Vars(r)[pathOrgVar]
	}
	if err := pred(r.Context(), req); err != nil {
		writeDomainError(w, r, err)
		return false
	}
	return true
}
