// Package httpapi is the HTTP boundary: routing, authentication middleware,
// and translation of domain errors onto statuses and JSON bodies.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"classhub.org/internal/auth"
	"classhub.org/internal/obs"
)

// ReadyProbe reports readiness, typically by pinging the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options wires the API's collaborators.
type Options struct {
	Service      *auth.Service
	Gate         *auth.Gate
	Policy       *auth.Policy
	Ready        ReadyProbe
	Version      string
	ServiceToken string
}

// API is the HTTP layer.
type API struct {
	router       *mux.Router
	svc          *auth.Service
	gate         *auth.Gate
	policy       *auth.Policy
	readyProbe   ReadyProbe
	version      string
	serviceToken string
}

// New builds the router. Authentication wraps everything under /v1 except
// the login, activation, recovery, and reset channels, which carry their
// own credentials.
func New(opts Options) *API {
	a := &API{
		router:       mux.NewRouter(),
		svc:          opts.Service,
		gate:         opts.Gate,
		policy:       opts.Policy,
		readyProbe:   opts.Ready,
		version:      opts.Version,
		serviceToken: opts.ServiceToken,
	}

	r := a.router
	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.HandleFunc("/v1/info", a.Info).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	// credential channels, each authenticated by its own token
	pub := r.PathPrefix("/v1/auth").Subrouter()
	pub.HandleFunc("/login", a.handleLogin).Methods(http.MethodPost)
	pub.HandleFunc("/activate", a.handleActivate).Methods(http.MethodPost)
	pub.HandleFunc("/recover", a.handleRecover).Methods(http.MethodPost)
	pub.HandleFunc("/reset-password", a.handleResetPassword).Methods(http.MethodPost)

	// bearer-authenticated surface
	priv := r.PathPrefix("/v1").Subrouter()
	priv.Use(a.requireAccess)
	priv.HandleFunc("/auth/refresh", a.handleRefresh).Methods(http.MethodPost)
	priv.HandleFunc("/users/me", a.handleMe).Methods(http.MethodGet)

	master := priv.PathPrefix("/master/organizations").Subrouter()
	master.HandleFunc("", a.handleListOrganizations).Methods(http.MethodGet)
	master.HandleFunc("", a.handleCreateOrganization).Methods(http.MethodPost)
	master.HandleFunc("/{organizationId}", a.handleGetOrganization).Methods(http.MethodGet)
	master.HandleFunc("/{organizationId}", a.handlePatchOrganization).Methods(http.MethodPatch)
	master.HandleFunc("/{organizationId}", a.handleDeleteOrganization).Methods(http.MethodDelete)

	orgUsers := priv.PathPrefix("/organizations/{organizationId}/users").Subrouter()
	orgUsers.HandleFunc("", a.handleListOrgUsers).Methods(http.MethodGet)
	orgUsers.HandleFunc("", a.handleInviteOrgUser).Methods(http.MethodPost)
	orgUsers.HandleFunc("/{userId}", a.handleGetOrgUser).Methods(http.MethodGet)
	orgUsers.HandleFunc("/{userId}", a.handlePatchOrgUser).Methods(http.MethodPatch)
	orgUsers.HandleFunc("/{userId}", a.handleDeleteOrgUser).Methods(http.MethodDelete)

	// scheduler-facing channel, gated on the shared service token
	internal := r.PathPrefix("/v1/internal").Subrouter()
	internal.Use(a.requireServiceToken)
	internal.HandleFunc("/subscriptions/sweep", a.handleSubscriptionSweep).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeDomainError(w, r, auth.NotFound("resource not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowedError", "method not allowed")
	})

	return a
}

// Handler wraps the router with metrics instrumentation.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "classhub-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "classhub-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
