package httpapi

import (
	"net/http"

	"classhub.org/internal/audit"
	"classhub.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type recoverRequest struct {
	Email string `json:"email"`
}

type activateRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
}

type resetPasswordRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin exchanges credentials for an access token. The token rides
// in the Authorization response header as well as the body.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	subject, token, err := a.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{"subject_id": subject.ID})
	w.Header().Set(authHeader, bearerScheme+token)
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  viewSubject(subject),
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	subject, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		writeDomainError(w, r, auth.Implementation("refresh without authenticated subject"))
		return
	}
	token, err := a.svc.Refresh(r.Context(), subject)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.refresh", nil)
	w.Header().Set(authHeader, bearerScheme+token)
	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

// handleActivate redeems the single-use activation token from X-A-Token.
func (a *API) handleActivate(w http.ResponseWriter, r *http.Request) {
	tokenString := r.Header.Get(activateTokenHeader)
	if tokenString == "" {
		writeDomainError(w, r, auth.BadRequest("activation token not provided"))
		return
	}
	var req activateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	subject, token, err := a.svc.Activate(r.Context(), tokenString, auth.ActivateParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.activate", map[string]any{"subject_id": subject.ID})
	w.Header().Set(authHeader, bearerScheme+token)
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  viewSubject(subject),
	})
}

// handleRecover always answers success; account existence is not leaked.
func (a *API) handleRecover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := a.svc.Recover(r.Context(), req.Email); err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.recover.requested", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleResetPassword redeems the single-use reset token from X-R-Token.
func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	tokenString := r.Header.Get(resetTokenHeader)
	if tokenString == "" {
		writeDomainError(w, r, auth.BadRequest("reset token not provided"))
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := a.svc.ResetPassword(r.Context(), tokenString, req.Email, req.Password); err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.password.reset", nil)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	guard := auth.Every(auth.RequireScope(auth.ScopeAccess), auth.ActiveOrganization())
	if !a.authorize(w, r, guard, "") {
		return
	}
	subject, ok := auth.SubjectFromContext(r.Context())
	if !ok {
		writeDomainError(w, r, auth.Implementation("request without authenticated subject"))
		return
	}
	writeJSON(w, http.StatusOK, viewSubject(subject))
}
