package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Evaluator is the single authority for "is user U an admin of scope S" and
// "does user U hold role R in scope S", applying the open/restricted mode
// rule. Missing grants resolve to false; store failures propagate unchanged.
type Evaluator struct {
	store   Store
	scopes  ScopeResolver
	members Membership
}

// NewEvaluator constructs an Evaluator. All three collaborators are required.
func NewEvaluator(store Store, scopes ScopeResolver, members Membership) (*Evaluator, error) {
	if store == nil {
		return nil, errors.New("authz: store is required")
	}
	if scopes == nil {
		return nil, errors.New("authz: scope resolver is required")
	}
	if members == nil {
		return nil, errors.New("authz: membership collaborator is required")
	}
	return &Evaluator{store: store, scopes: scopes, members: members}, nil
}

// IsCommunityAdmin reports whether the user has admin authority over the
// community. In open mode every member qualifies; in restricted mode an
// active community_admin grant is required.
func (e *Evaluator) IsCommunityAdmin(ctx context.Context, userID, communityID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	communityID = strings.TrimSpace(communityID)
	if userID == "" || communityID == "" {
		return false, fmt.Errorf("%w: user_id and community_id are required", ErrInvalidInput)
	}

	restricted, err := e.store.CommunityRestricted(ctx, communityID)
	if err != nil {
		return false, err
	}
	if !restricted {
		return e.members.IsMember(ctx, userID, communityID)
	}
	return e.holdsGrant(ctx, userID, ScopeCommunity, communityID, RoleCommunityAdmin)
}

// IsCohortAdmin reports whether the user can administer the cohort. Community
// admins of the owning community always qualify (upward delegation); otherwise
// an active cohort_admin grant on the cohort itself is required.
func (e *Evaluator) IsCohortAdmin(ctx context.Context, userID, cohortID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	cohortID = strings.TrimSpace(cohortID)
	if userID == "" || cohortID == "" {
		return false, fmt.Errorf("%w: user_id and cohort_id are required", ErrInvalidInput)
	}

	communityID, err := e.scopes.CommunityForCohort(ctx, cohortID)
	if err != nil {
		return false, err
	}
	ok, err := e.IsCommunityAdmin(ctx, userID, communityID)
	if err != nil || ok {
		return ok, err
	}
	return e.holdsGrant(ctx, userID, ScopeCohort, cohortID, RoleCohortAdmin)
}

// CanManageCohort reports whether the user may mutate role assignments in the
// cohort. Today any cohort admin may; the operation stays distinct because the
// assignment path asks a different question than "is this user an admin".
func (e *Evaluator) CanManageCohort(ctx context.Context, userID, cohortID string) (bool, error) {
	return e.IsCohortAdmin(ctx, userID, cohortID)
}

// HasRole reports whether an active grant matching exactly (user, scope, role)
// exists, or, for the admin roles, the corresponding Is*Admin check passes.
// Either disjunct suffices: open-mode members and upward-delegated community
// admins answer true, and so does a grant holder who is not a member.
func (e *Evaluator) HasRole(ctx context.Context, userID string, scope ScopeType, scopeID, role string) (bool, error) {
	userID = strings.TrimSpace(userID)
	scopeID = strings.TrimSpace(scopeID)
	role = strings.TrimSpace(role)
	if userID == "" || scopeID == "" || role == "" {
		return false, fmt.Errorf("%w: user_id, scope_id and role are required", ErrInvalidInput)
	}
	if !ValidRole(scope, role) {
		return false, fmt.Errorf("%w: %q is not a %s role", ErrInvalidRole, role, scope)
	}

	switch {
	case scope == ScopeCommunity && role == RoleCommunityAdmin:
		ok, err := e.IsCommunityAdmin(ctx, userID, scopeID)
		if err != nil || ok {
			return ok, err
		}
		// Open mode answers via membership alone, which misses an explicit
		// grant held by a non-member.
	case scope == ScopeCohort && role == RoleCohortAdmin:
		// IsCohortAdmin already folds in the exact cohort_admin grant.
		return e.IsCohortAdmin(ctx, userID, scopeID)
	}
	return e.holdsGrant(ctx, userID, scope, scopeID, role)
}

// Roles returns the active role names the user holds in the scope, for
// display surfaces. Admin fallbacks are not folded in here; callers wanting
// the resolved admin bit combine this with Is*Admin.
func (e *Evaluator) Roles(ctx context.Context, userID string, scope ScopeType, scopeID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	scopeID = strings.TrimSpace(scopeID)
	if userID == "" || scopeID == "" {
		return nil, fmt.Errorf("%w: user_id and scope_id are required", ErrInvalidInput)
	}
	grants, err := e.store.ActiveGrants(ctx, userID, scope, scopeID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(grants))
	for _, g := range grants {
		names = append(names, g.Role)
	}
	return names, nil
}

func (e *Evaluator) holdsGrant(ctx context.Context, userID string, scope ScopeType, scopeID, role string) (bool, error) {
	grants, err := e.store.ActiveGrants(ctx, userID, scope, scopeID)
	if err != nil {
		return false, err
	}
	for _, g := range grants {
		if g.Role == role {
			return true, nil
		}
	}
	return false, nil
}
