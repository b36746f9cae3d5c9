package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AssignmentService is the validated mutation entry point for grants. Only
// actors who already pass the Evaluator for a scope may mutate grants in it.
type AssignmentService struct {
	store Store
	eval  *Evaluator
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(store Store, eval *Evaluator) (*AssignmentService, error) {
	if store == nil {
		return nil, errors.New("authz: store is required")
	}
	if eval == nil {
		return nil, errors.New("authz: evaluator is required")
	}
	return &AssignmentService{store: store, eval: eval}, nil
}

// AssignParams describes a grant request.
type AssignParams struct {
	ActorID      string
	TargetUserID string
	Scope        ScopeType
	ScopeID      string
	Role         string
	ExpiresAt    *time.Time
	Notes        string
}

// Assign validates and persists a grant. Role legality is checked against the
// scope type, then the acting user is authorized for the scope; the store's
// active-uniqueness guard surfaces as ErrDuplicateGrant.
func (s *AssignmentService) Assign(ctx context.Context, p AssignParams) (RoleGrant, error) {
	p.ActorID = strings.TrimSpace(p.ActorID)
	p.TargetUserID = strings.TrimSpace(p.TargetUserID)
	p.ScopeID = strings.TrimSpace(p.ScopeID)
	p.Role = strings.TrimSpace(p.Role)
	p.Notes = strings.TrimSpace(p.Notes)

	if p.ActorID == "" || p.TargetUserID == "" || p.ScopeID == "" || p.Role == "" {
		return RoleGrant{}, fmt.Errorf("%w: actor, target user, scope id and role are required", ErrInvalidInput)
	}
	if !ValidScope(p.Scope) {
		return RoleGrant{}, fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, p.Scope)
	}
	if !ValidRole(p.Scope, p.Role) {
		return RoleGrant{}, fmt.Errorf("%w: %q is not a %s role", ErrInvalidRole, p.Role, p.Scope)
	}
	if p.ExpiresAt != nil && !p.ExpiresAt.After(time.Now().UTC()) {
		return RoleGrant{}, fmt.Errorf("%w: expires_at must be in the future", ErrInvalidInput)
	}

	if err := s.authorize(ctx, p.ActorID, p.Scope, p.ScopeID); err != nil {
		return RoleGrant{}, err
	}

	return s.store.InsertGrant(ctx, RoleGrant{
		UserID:     p.TargetUserID,
		Scope:      p.Scope,
		ScopeID:    p.ScopeID,
		Role:       p.Role,
		AssignedBy: p.ActorID,
		ExpiresAt:  p.ExpiresAt,
		Notes:      p.Notes,
	})
}

// Revoke hard-deletes a grant after authorizing the actor against the grant's
// own scope. There is no revoked state, only presence or absence.
func (s *AssignmentService) Revoke(ctx context.Context, actorID, grantID string) error {
	actorID = strings.TrimSpace(actorID)
	grantID = strings.TrimSpace(grantID)
	if actorID == "" || grantID == "" {
		return fmt.Errorf("%w: actor and grant id are required", ErrInvalidInput)
	}

	grant, err := s.store.GetGrant(ctx, grantID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actorID, grant.Scope, grant.ScopeID); err != nil {
		return err
	}
	return s.store.DeleteGrant(ctx, grantID)
}

func (s *AssignmentService) authorize(ctx context.Context, actorID string, scope ScopeType, scopeID string) error {
	var (
		ok  bool
		err error
	)
	switch scope {
	case ScopeCommunity:
		ok, err = s.eval.IsCommunityAdmin(ctx, actorID, scopeID)
	case ScopeCohort:
		ok, err = s.eval.CanManageCohort(ctx, actorID, scopeID)
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, scope)
	}
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
