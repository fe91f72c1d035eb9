package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"classhub.org/internal/auth"
	"classhub.org/internal/obs"
)

// errorBody is the wire shape of every failure response.
type errorBody struct {
	Name    string     `json:"name"`
	Message string     `json:"message"`
	Cause   *errorBody `json:"cause,omitempty"`
}

func statusForKind(k auth.Kind) int {
	switch k {
	case auth.KindBadRequest:
		return http.StatusBadRequest
	case auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindForbidden:
		return http.StatusForbidden
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError translates a domain error at the boundary. Implementation
// faults and unrecognized errors are logged and answered with a generic 500;
// their internals never reach the caller. For the caller-facing kinds the
// cause chain is serialized only as far as it stays inside the domain error
// type.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := auth.KindOf(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		obs.LogError("request failed", map[string]any{
			"method": r.Method,
			"path":   obs.CanonicalPath(r.URL.Path),
			"error":  err.Error(),
		})
		writeJSON(w, status, errorBody{
			Name:    string(auth.KindImplementation) + "Error",
			Message: "something went wrong",
		})
		return
	}
	var de *auth.Error
	body := errorBody{Name: string(kind) + "Error", Message: "request failed"}
	if errors.As(err, &de) {
		body.Message = de.Message
		var cause *auth.Error
		if de.Cause != nil && errors.As(de.Cause, &cause) {
			body.Cause = &errorBody{
				Name:    string(cause.Kind) + "Error",
				Message: cause.Message,
			}
		}
	}
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status int, name, message string) {
	writeJSON(w, status, errorBody{Name: name, Message: message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return auth.BadRequest("invalid request body")
	}
	return nil
}
