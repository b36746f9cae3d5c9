// Package community implements community membership, join-by-code and cohort
// management. Its store doubles as the Membership collaborator consumed by the
// authorization core.
package community

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"foliohub.org/internal/authz"
)

var (
	ErrNotFound     = errors.New("community: not found")
	ErrCodeTaken    = errors.New("community: join code already in use")
	ErrInvalidInput = errors.New("community: invalid input")
)

// Store describes persistence for communities, members and cohorts.
type Store interface {
	CreateCommunity(ctx context.Context, c authz.Community) (authz.Community, error)
	GetCommunity(ctx context.Context, id string) (authz.Community, error)
	CommunityByCode(ctx context.Context, code string) (authz.Community, error)

	// AddMember is idempotent; added reports whether a new membership row
	// was created.
	AddMember(ctx context.Context, communityID, userID string) (added bool, err error)
	MemberCount(ctx context.Context, communityID string) (int, error)

	CreateCohort(ctx context.Context, k authz.Cohort) (authz.Cohort, error)
	Cohorts(ctx context.Context, communityID string) ([]authz.Cohort, error)
}

// Service validates and orchestrates community operations.
type Service struct {
	store  Store
	grants authz.Store
	eval   *authz.Evaluator
}

// NewService constructs a Service.
func NewService(store Store, grants authz.Store, eval *authz.Evaluator) (*Service, error) {
	if store == nil {
		return nil, errors.New("community: store is required")
	}
	if grants == nil {
		return nil, errors.New("community: grant store is required")
	}
	if eval == nil {
		return nil, errors.New("community: evaluator is required")
	}
	return &Service{store: store, grants: grants, eval: eval}, nil
}

// Create provisions a community in open mode with a fresh join code and joins
// the creator as its first member.
func (s *Service) Create(ctx context.Context, name, creatorID string) (authz.Community, error) {
	name = strings.TrimSpace(name)
	creatorID = strings.TrimSpace(creatorID)
	if name == "" {
		return authz.Community{}, fmt.Errorf("%w: community name is required", ErrInvalidInput)
	}
	if creatorID == "" {
		return authz.Community{}, fmt.Errorf("%w: creator user_id is required", ErrInvalidInput)
	}

	created, err := s.store.CreateCommunity(ctx, authz.Community{
		Name:     name,
		JoinCode: newJoinCode(),
	})
	if err != nil {
		return authz.Community{}, err
	}
	if err := s.join(ctx, created, creatorID); err != nil {
		return authz.Community{}, err
	}
	return created, nil
}

// JoinByCode resolves the join code and adds the user to the community.
// Joining twice is a no-op; alreadyMember reports which case applied.
func (s *Service) JoinByCode(ctx context.Context, code, userID string) (c authz.Community, alreadyMember bool, err error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	userID = strings.TrimSpace(userID)
	if code == "" {
		return authz.Community{}, false, fmt.Errorf("%w: join code is required", ErrInvalidInput)
	}
	if userID == "" {
		return authz.Community{}, false, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}

	c, err = s.store.CommunityByCode(ctx, code)
	if err != nil {
		return authz.Community{}, false, err
	}

	count, err := s.store.MemberCount(ctx, c.ID)
	if err != nil {
		return authz.Community{}, false, err
	}
	if count > 0 {
		added, err := s.store.AddMember(ctx, c.ID, userID)
		if err != nil {
			return authz.Community{}, false, err
		}
		return c, !added, nil
	}
	if err := s.join(ctx, c, userID); err != nil {
		return authz.Community{}, false, err
	}
	return c, false, nil
}

// CreateCohort creates a cohort inside the community. Community admins only.
func (s *Service) CreateCohort(ctx context.Context, actorID, communityID, name, description string) (authz.Cohort, error) {
	actorID = strings.TrimSpace(actorID)
	communityID = strings.TrimSpace(communityID)
	name = strings.TrimSpace(name)
	if actorID == "" || communityID == "" {
		return authz.Cohort{}, fmt.Errorf("%w: actor and community_id are required", ErrInvalidInput)
	}
	if name == "" {
		return authz.Cohort{}, fmt.Errorf("%w: cohort name is required", ErrInvalidInput)
	}

	ok, err := s.eval.IsCommunityAdmin(ctx, actorID, communityID)
	if err != nil {
		return authz.Cohort{}, err
	}
	if !ok {
		return authz.Cohort{}, authz.ErrForbidden
	}

	return s.store.CreateCohort(ctx, authz.Cohort{
		CommunityID: communityID,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedBy:   actorID,
	})
}

// Cohorts lists the community's cohorts.
func (s *Service) Cohorts(ctx context.Context, communityID string) ([]authz.Cohort, error) {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return nil, fmt.Errorf("%w: community_id is required", ErrInvalidInput)
	}
	return s.store.Cohorts(ctx, communityID)
}

// join adds the user and, when they are the community's first member,
// bootstraps them as community_admin so the tenant has an owner once it is
// later switched to restricted mode.
func (s *Service) join(ctx context.Context, c authz.Community, userID string) error {
	if _, err := s.store.AddMember(ctx, c.ID, userID); err != nil {
		return err
	}
	count, err := s.store.MemberCount(ctx, c.ID)
	if err != nil {
		return err
	}
	if count != 1 {
		return nil
	}
	_, err = s.grants.InsertGrant(ctx, authz.RoleGrant{
		UserID:  userID,
		Scope:   authz.ScopeCommunity,
		ScopeID: c.ID,
		Role:    authz.RoleCommunityAdmin,
		Notes:   "Bootstrap first admin",
	})
	if errors.Is(err, authz.ErrDuplicateGrant) {
		return nil
	}
	return err
}

const joinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func newJoinCode() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	out := make([]byte, len(b))
	for i, v := range b {
		out[i] = joinCodeAlphabet[int(v)%len(joinCodeAlphabet)]
	}
	return string(out)
}
