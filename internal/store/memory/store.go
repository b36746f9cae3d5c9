// Package memory provides a mutex-guarded in-memory implementation of the
// authorization and community stores. It backs unit tests and serves as the
// development fallback when no Postgres DSN is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"foliohub.org/internal/authz"
	"foliohub.org/internal/community"
	"foliohub.org/internal/ids"
)

type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	communities map[string]authz.Community
	cohorts     map[string]authz.Cohort
	members     map[string]map[string]time.Time
	grants      map[string]authz.RoleGrant
}

var (
	_ authz.Store         = (*Store)(nil)
	_ authz.ScopeResolver = (*Store)(nil)
	_ authz.Membership    = (*Store)(nil)
	_ community.Store     = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithClock overrides the time source (useful for expiry tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewStore constructs an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:         time.Now,
		communities: make(map[string]authz.Community),
		cohorts:     make(map[string]authz.Cohort),
		members:     make(map[string]map[string]time.Time),
		grants:      make(map[string]authz.RoleGrant),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- authz.Store ---

func (s *Store) ActiveGrants(ctx context.Context, userID string, scope authz.ScopeType, scopeID string) ([]authz.RoleGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UTC()
	var out []authz.RoleGrant
	for _, g := range s.grants {
		if g.UserID == userID && g.Scope == scope && g.ScopeID == scopeID && g.Active(now) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetGrant(ctx context.Context, grantID string) (authz.RoleGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.grants[grantID]
	if !ok {
		return authz.RoleGrant{}, authz.ErrNotFound
	}
	return g, nil
}

func (s *Store) InsertGrant(ctx context.Context, grant authz.RoleGrant) (authz.RoleGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertGrantLocked(grant)
}

func (s *Store) insertGrantLocked(grant authz.RoleGrant) (authz.RoleGrant, error) {
	if err := s.scopeExistsLocked(grant.Scope, grant.ScopeID); err != nil {
		return authz.RoleGrant{}, err
	}

	now := s.now().UTC()
	for id, existing := range s.grants {
		if existing.UserID != grant.UserID || existing.Scope != grant.Scope ||
			existing.ScopeID != grant.ScopeID || existing.Role != grant.Role {
			continue
		}
		if existing.Active(now) {
			return authz.RoleGrant{}, authz.ErrDuplicateGrant
		}
		// Expired row for the same tuple: refresh it in place.
		grant.ID = id
		grant.AssignedAt = now
		s.grants[id] = grant
		return grant, nil
	}

	grant.ID = ids.New()
	grant.AssignedAt = now
	s.grants[grant.ID] = grant
	return grant, nil
}

func (s *Store) DeleteGrant(ctx context.Context, grantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grants[grantID]; !ok {
		return authz.ErrNotFound
	}
	delete(s.grants, grantID)
	return nil
}

func (s *Store) CommunityRestricted(ctx context.Context, communityID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.communities[communityID]
	if !ok {
		return false, authz.ErrNotFound
	}
	return c.AdminAccessRestricted, nil
}

func (s *Store) SetCommunityRestricted(ctx context.Context, communityID string, restricted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setRestrictedLocked(communityID, restricted)
}

func (s *Store) setRestrictedLocked(communityID string, restricted bool) error {
	c, ok := s.communities[communityID]
	if !ok {
		return authz.ErrNotFound
	}
	c.AdminAccessRestricted = restricted
	c.UpdatedAt = s.now().UTC()
	s.communities[communityID] = c
	return nil
}

func (s *Store) EnableRestriction(ctx context.Context, communityID, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.communities[communityID]; !ok {
		return authz.ErrNotFound
	}

	// Self-grant first; the flag must not flip if this step cannot complete.
	refreshed := false
	for id, g := range s.grants {
		if g.UserID == actorID && g.Scope == authz.ScopeCommunity &&
			g.ScopeID == communityID && g.Role == authz.RoleCommunityAdmin {
			g.ExpiresAt = nil
			s.grants[id] = g
			refreshed = true
			break
		}
	}
	if !refreshed {
		_, err := s.insertGrantLocked(authz.RoleGrant{
			UserID:     actorID,
			Scope:      authz.ScopeCommunity,
			ScopeID:    communityID,
			Role:       authz.RoleCommunityAdmin,
			AssignedBy: actorID,
			Notes:      authz.RestrictionBootstrapNotes,
		})
		if err != nil {
			return err
		}
	}

	return s.setRestrictedLocked(communityID, true)
}

// --- authz.ScopeResolver ---

func (s *Store) CommunityForCohort(ctx context.Context, cohortID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.cohorts[cohortID]
	if !ok {
		return "", authz.ErrNotFound
	}
	return k.CommunityID, nil
}

func (s *Store) ScopeExists(ctx context.Context, scope authz.ScopeType, scopeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch scope {
	case authz.ScopeCommunity:
		_, ok := s.communities[scopeID]
		return ok, nil
	case authz.ScopeCohort:
		_, ok := s.cohorts[scopeID]
		return ok, nil
	}
	return false, nil
}

func (s *Store) scopeExistsLocked(scope authz.ScopeType, scopeID string) error {
	switch scope {
	case authz.ScopeCommunity:
		if _, ok := s.communities[scopeID]; ok {
			return nil
		}
	case authz.ScopeCohort:
		if _, ok := s.cohorts[scopeID]; ok {
			return nil
		}
	}
	return authz.ErrNotFound
}

// --- authz.Membership ---

func (s *Store) IsMember(ctx context.Context, userID, communityID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.communities[communityID]; !ok {
		return false, authz.ErrNotFound
	}
	_, ok := s.members[communityID][userID]
	return ok, nil
}

// --- community.Store ---

func (s *Store) CreateCommunity(ctx context.Context, c authz.Community) (authz.Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := strings.ToUpper(c.JoinCode)
	for _, existing := range s.communities {
		if existing.JoinCode == code {
			return authz.Community{}, community.ErrCodeTaken
		}
	}

	now := s.now().UTC()
	c.ID = ids.New()
	c.JoinCode = code
	c.AdminAccessRestricted = false
	c.CreatedAt = now
	c.UpdatedAt = now
	s.communities[c.ID] = c
	s.members[c.ID] = make(map[string]time.Time)
	return c, nil
}

func (s *Store) GetCommunity(ctx context.Context, id string) (authz.Community, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.communities[id]
	if !ok {
		return authz.Community{}, community.ErrNotFound
	}
	return c, nil
}

func (s *Store) CommunityByCode(ctx context.Context, code string) (authz.Community, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	code = strings.ToUpper(code)
	for _, c := range s.communities {
		if c.JoinCode == code {
			return c, nil
		}
	}
	return authz.Community{}, community.ErrNotFound
}

func (s *Store) AddMember(ctx context.Context, communityID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.communities[communityID]; !ok {
		return false, community.ErrNotFound
	}
	if s.members[communityID] == nil {
		s.members[communityID] = make(map[string]time.Time)
	}
	if _, ok := s.members[communityID][userID]; ok {
		return false, nil
	}
	s.members[communityID][userID] = s.now().UTC()
	return true, nil
}

func (s *Store) MemberCount(ctx context.Context, communityID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.communities[communityID]; !ok {
		return 0, community.ErrNotFound
	}
	return len(s.members[communityID]), nil
}

func (s *Store) CreateCohort(ctx context.Context, k authz.Cohort) (authz.Cohort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.communities[k.CommunityID]; !ok {
		return authz.Cohort{}, community.ErrNotFound
	}

	now := s.now().UTC()
	k.ID = ids.New()
	k.CreatedAt = now
	k.UpdatedAt = now
	s.cohorts[k.ID] = k
	return k, nil
}

func (s *Store) Cohorts(ctx context.Context, communityID string) ([]authz.Cohort, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.communities[communityID]; !ok {
		return nil, community.ErrNotFound
	}
	var out []authz.Cohort
	for _, k := range s.cohorts {
		if k.CommunityID == communityID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
