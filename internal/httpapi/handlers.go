package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"foliohub.org/api/spec"
	"foliohub.org/internal/authz"
	"foliohub.org/internal/community"
	"foliohub.org/internal/obs"
)

// ReadyProbe reports readiness, typically a database ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. It owns routing and maps service errors to statuses;
// all authorization decisions live in the services underneath.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	eval        *authz.Evaluator
	assignments *authz.AssignmentService
	toggle      *authz.RestrictionToggle
	communities *community.Service
}

func New(rp ReadyProbe, version string, eval *authz.Evaluator, assignments *authz.AssignmentService, toggle *authz.RestrictionToggle, communities *community.Service) *API {
	a := &API{
		mux:         http.NewServeMux(),
		readyProbe:  rp,
		version:     version,
		eval:        eval,
		assignments: assignments,
		toggle:      toggle,
		communities: communities,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// OpenAPI YAML
	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// dev token issuance
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	// role grants
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/assign", a.handleRoleAssign)
	a.mux.HandleFunc("/v1/roles/revoke", a.handleRoleRevoke)

	// communities; the exact join pattern wins over the subtree pattern
	a.mux.HandleFunc("/v1/communities", a.handleCommunities)
	a.mux.HandleFunc("/v1/communities/join", a.handleCommunityJoin)
	a.mux.HandleFunc("/v1/communities/", a.handleCommunityScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the instrumented handler chain for the server.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.withAuth(a.mux))
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "foliohub-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "foliohub-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
