package authz

import "context"

// Store describes persistence operations required by the authorization core.
// Implementations centralize the active-grant predicate: ActiveGrants never
// returns expired records, and InsertGrant enforces uniqueness of
// (user, scope, role) among active grants only.
type Store interface {
	// ActiveGrants returns the active grants a user holds in a scope.
	// An empty result is not an error.
	ActiveGrants(ctx context.Context, userID string, scope ScopeType, scopeID string) ([]RoleGrant, error)

	// GetGrant fetches a grant by identifier regardless of expiry.
	GetGrant(ctx context.Context, grantID string) (RoleGrant, error)

	// InsertGrant persists a grant and returns it with a generated
	// identifier and assignment timestamp. An active grant for the same
	// (user, scope, role) tuple yields ErrDuplicateGrant; an expired one is
	// refreshed in place.
	InsertGrant(ctx context.Context, grant RoleGrant) (RoleGrant, error)

	// DeleteGrant hard-deletes a grant. Unknown identifiers yield ErrNotFound.
	DeleteGrant(ctx context.Context, grantID string) error

	// CommunityRestricted reads the community's admin_access_restricted flag.
	CommunityRestricted(ctx context.Context, communityID string) (bool, error)

	// SetCommunityRestricted writes the flag without touching grants.
	SetCommunityRestricted(ctx context.Context, communityID string, restricted bool) error

	// EnableRestriction atomically ensures the actor holds a non-expiring
	// community_admin grant and then sets admin_access_restricted. The flag
	// must not flip if the grant step fails: a community that cannot complete
	// the bootstrap stays in open mode rather than locking everyone out.
	EnableRestriction(ctx context.Context, communityID, actorID string) error
}

// ScopeResolver maps cohort scopes to their owning community and validates
// scope existence.
type ScopeResolver interface {
	CommunityForCohort(ctx context.Context, cohortID string) (string, error)
	ScopeExists(ctx context.Context, scope ScopeType, scopeID string) (bool, error)
}

// Membership answers the one question the open-mode fallback needs. Community
// membership semantics live outside the authorization core.
type Membership interface {
	IsMember(ctx context.Context, userID, communityID string) (bool, error)
}
