package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"foliohub.org/internal/audit"
	"foliohub.org/internal/authz"
	"foliohub.org/internal/community"
)

type assignRoleRequest struct {
	UserID    string `json:"user_id"`
	Scope     string `json:"scope"`
	ScopeID   string `json:"scope_id"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

type revokeRoleRequest struct {
	GrantID string `json:"grant_id"`
}

type rolesResponse struct {
	UserID  string          `json:"user_id"`
	Scope   authz.ScopeType `json:"scope"`
	ScopeID string          `json:"scope_id"`
	Roles   []string        `json:"roles"`
	IsAdmin bool            `json:"is_admin"`
}

func (a *API) handleRoleAssign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.actorID(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var expiresAt *time.Time
	if strings.TrimSpace(req.ExpiresAt) != "" {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ExpiresAt))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "expires_at must be RFC3339")
			return
		}
		t = t.UTC()
		expiresAt = &t
	}

	grant, err := a.assignments.Assign(r.Context(), authz.AssignParams{
		ActorID:      actor,
		TargetUserID: req.UserID,
		Scope:        authz.ScopeType(strings.TrimSpace(req.Scope)),
		ScopeID:      req.ScopeID,
		Role:         req.Role,
		ExpiresAt:    expiresAt,
		Notes:        req.Notes,
	})
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "authz.role.assign", map[string]any{
		"grant_id": grant.ID,
		"user_id":  grant.UserID,
		"scope":    grant.Scope,
		"scope_id": grant.ScopeID,
		"role":     grant.Role,
	})
	writeJSON(w, http.StatusCreated, grant)
}

func (a *API) handleRoleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	actor, ok := a.actorID(w, r)
	if !ok {
		return
	}
	var req revokeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.assignments.Revoke(r.Context(), actor, req.GrantID); err != nil {
		handleAuthzError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "authz.role.revoke", map[string]any{
		"grant_id": req.GrantID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"grant_id": req.GrantID,
		"revoked":  true,
	})
}

// handleRoles lists active roles in a scope. Callers may always read their
// own roles; reading another user's requires admin authority over the scope.
func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := a.actorID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	scope := authz.ScopeType(strings.TrimSpace(q.Get("scope")))
	scopeID := strings.TrimSpace(q.Get("scope_id"))
	userID := strings.TrimSpace(q.Get("user_id"))
	if userID == "" {
		userID = actor
	}
	if !authz.ValidScope(scope) || scopeID == "" {
		writeError(w, r, http.StatusBadRequest, "scope and scope_id are required")
		return
	}

	isAdmin, err := a.scopeAdmin(r, actor, scope, scopeID)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	if userID != actor && !isAdmin {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}

	roles, err := a.eval.Roles(r.Context(), userID, scope, scopeID)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	resolvedAdmin := isAdmin
	if userID != actor {
		resolvedAdmin, err = a.scopeAdmin(r, userID, scope, scopeID)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, rolesResponse{
		UserID:  userID,
		Scope:   scope,
		ScopeID: scopeID,
		Roles:   roles,
		IsAdmin: resolvedAdmin,
	})
}

func (a *API) scopeAdmin(r *http.Request, userID string, scope authz.ScopeType, scopeID string) (bool, error) {
	switch scope {
	case authz.ScopeCommunity:
		return a.eval.IsCommunityAdmin(r.Context(), userID, scopeID)
	case authz.ScopeCohort:
		return a.eval.IsCohortAdmin(r.Context(), userID, scopeID)
	default:
		return false, authz.ErrInvalidInput
	}
}

func handleAuthzError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrInvalidInput), errors.Is(err, community.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, authz.ErrInvalidRole):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, authz.ErrForbidden):
		// No detail leaks about why authorization failed.
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, authz.ErrNotFound), errors.Is(err, community.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, authz.ErrDuplicateGrant):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, community.ErrCodeTaken):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "authorization operation failed")
	}
}

// --- helpers ---

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
