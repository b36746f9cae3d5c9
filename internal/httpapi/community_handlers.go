package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"foliohub.org/internal/audit"
)

type createCommunityRequest struct {
	Name string `json:"name"`
}

type joinCommunityRequest struct {
	Code string `json:"code"`
}

type createCohortRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type restrictionRequest struct {
	Restricted bool `json:"restricted"`
}

func (a *API) handleCommunities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.actorID(w, r)
	if !ok {
		return
	}
	var req createCommunityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.communities.Create(r.Context(), req.Name, actor)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "community.create", map[string]any{
		"community_id": c.ID,
		"name":         c.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/communities/%s", c.ID))
	writeJSON(w, http.StatusCreated, c)
}

func (a *API) handleCommunityJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.actorID(w, r)
	if !ok {
		return
	}
	var req joinCommunityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, alreadyMember, err := a.communities.JoinByCode(r.Context(), req.Code, actor)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	if !alreadyMember {
		_ = audit.LogEvent(r.Context(), "community.member.join", map[string]any{
			"community_id": c.ID,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"community":      c,
		"already_member": alreadyMember,
	})
}

// handleCommunityScoped routes /v1/communities/{id}/{resource}.
func (a *API) handleCommunityScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/communities/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	communityID := parts[0]
	switch parts[1] {
	case "cohorts":
		a.handleCommunityCohorts(w, r, communityID)
	case "restriction":
		a.handleCommunityRestriction(w, r, communityID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleCommunityCohorts(w http.ResponseWriter, r *http.Request, communityID string) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.actorID(w, r); !ok {
			return
		}
		cohorts, err := a.communities.Cohorts(r.Context(), communityID)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"community_id": communityID,
			"cohorts":      cohorts,
		})
	case http.MethodPost:
		actor, ok := a.actorID(w, r)
		if !ok {
			return
		}
		var req createCohortRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		k, err := a.communities.CreateCohort(r.Context(), actor, communityID, req.Name, req.Description)
		if err != nil {
			handleAuthzError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "community.cohort.create", map[string]any{
			"community_id": communityID,
			"cohort_id":    k.ID,
			"name":         k.Name,
		})
		writeJSON(w, http.StatusCreated, k)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleCommunityRestriction flips the community's admin access mode. The
// actor must hold admin authority under the current mode, so in open mode any
// member may enable and afterwards only granted admins may disable.
func (a *API) handleCommunityRestriction(w http.ResponseWriter, r *http.Request, communityID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.actorID(w, r)
	if !ok {
		return
	}
	var req restrictionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	isAdmin, err := a.eval.IsCommunityAdmin(r.Context(), actor, communityID)
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	if !isAdmin {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}

	if req.Restricted {
		err = a.toggle.Enable(r.Context(), communityID, actor)
	} else {
		err = a.toggle.Disable(r.Context(), communityID)
	}
	if err != nil {
		handleAuthzError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "community.restriction.set", map[string]any{
		"community_id": communityID,
		"restricted":   req.Restricted,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"community_id":            communityID,
		"admin_access_restricted": req.Restricted,
	})
}
