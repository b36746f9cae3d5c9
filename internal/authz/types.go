package authz

import "time"

// ScopeType identifies the kind of entity a role grant applies to.
type ScopeType string

const (
	ScopeCommunity ScopeType = "community"
	ScopeCohort    ScopeType = "cohort"
)

// Role names accepted per scope.
const (
	RoleCommunityAdmin   = "community_admin"
	RoleModerator        = "moderator"
	RoleContentManager   = "content_manager"
	RoleCohortAdmin      = "cohort_admin"
	RoleEventCoordinator = "event_coordinator"
)

var communityRoles = map[string]struct{}{
	RoleCommunityAdmin: {},
	RoleModerator:      {},
	RoleContentManager: {},
}

var cohortRoles = map[string]struct{}{
	RoleCohortAdmin:      {},
	RoleModerator:        {},
	RoleEventCoordinator: {},
}

// ValidScope reports whether s is a known scope type.
func ValidScope(s ScopeType) bool {
	return s == ScopeCommunity || s == ScopeCohort
}

// ValidRole reports whether role is a legal role name for the given scope.
func ValidRole(scope ScopeType, role string) bool {
	switch scope {
	case ScopeCommunity:
		_, ok := communityRoles[role]
		return ok
	case ScopeCohort:
		_, ok := cohortRoles[role]
		return ok
	default:
		return false
	}
}

// Community is a top-level tenant. While AdminAccessRestricted is false the
// community runs in open mode: every member counts as an admin.
type Community struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	JoinCode              string    `json:"join_code"`
	AdminAccessRestricted bool      `json:"admin_access_restricted"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Cohort is a sub-scope nested inside exactly one community.
type Cohort struct {
	ID          string    `json:"id"`
	CommunityID string    `json:"community_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoleGrant is a single authorization record. A grant is active while
// ExpiresAt is nil or in the future; expired grants stay on disk but are
// excluded from every admin computation.
type RoleGrant struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Scope      ScopeType  `json:"scope"`
	ScopeID    string     `json:"scope_id"`
	Role       string     `json:"role"`
	AssignedBy string     `json:"assigned_by,omitempty"`
	AssignedAt time.Time  `json:"assigned_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// Active reports whether the grant counts at the given instant.
func (g RoleGrant) Active(now time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// RestrictionBootstrapNotes is recorded on the self-grant inserted when a
// community is switched into restricted mode.
const RestrictionBootstrapNotes = "Auto-assigned when enabling admin access restriction"
