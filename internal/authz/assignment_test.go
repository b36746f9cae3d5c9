package authz_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"foliohub.org/internal/authz"
)

func newAssignments(t *testing.T, f *fixture) *authz.AssignmentService {
	t.Helper()
	svc, err := authz.NewAssignmentService(f.store, f.eval)
	if err != nil {
		t.Fatalf("NewAssignmentService: %v", err)
	}
	return svc
}

func TestAssignRequiresAdminAuthority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedCommunity(t, "A", "u1", "u2")
	svc := newAssignments(t, f)

	// Open mode: member u2 qualifies.
	g, err := svc.Assign(ctx, authz.AssignParams{
		ActorID:      "u2",
		TargetUserID: "u3",
		Scope:        authz.ScopeCommunity,
		ScopeID:      c.ID,
		Role:         authz.RoleModerator,
	})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if g.AssignedBy != "u2" || g.AssignedAt.IsZero() {
		t.Fatalf("unexpected grant: %+v", g)
	}

	// Outsiders never qualify.
	_, err = svc.Assign(ctx, authz.AssignParams{
		ActorID:      "outsider",
		TargetUserID: "u3",
		Scope:        authz.ScopeCommunity,
		ScopeID:      c.ID,
		Role:         authz.RoleContentManager,
	})
	if !errors.Is(err, authz.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	// Restricted mode locks plain members out.
	if err := f.store.EnableRestriction(ctx, c.ID, "u1"); err != nil {
		t.Fatalf("EnableRestriction: %v", err)
	}
	_, err = svc.Assign(ctx, authz.AssignParams{
		ActorID:      "u2",
		TargetUserID: "u4",
		Scope:        authz.ScopeCommunity,
		ScopeID:      c.ID,
		Role:         authz.RoleModerator,
	})
	if !errors.Is(err, authz.ErrForbidden) {
		t.Fatalf("expected ErrForbidden in restricted mode, got %v", err)
	}
}

func TestAssignRejectsCrossScopeRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedCommunity(t, "A", "u1")
	k := f.seedCohort(t, c.ID, "spring")
	svc := newAssignments(t, f)

	_, err := svc.Assign(ctx, authz.AssignParams{
		ActorID:      "u1",
		TargetUserID: "u2",
		Scope:        authz.ScopeCommunity,
		ScopeID:      c.ID,
		Role:         authz.RoleCohortAdmin,
	})
	if !errors.Is(err, authz.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole for cohort role on community, got %v", err)
	}

	_, err = svc.Assign(ctx, authz.AssignParams{
		ActorID:      "u1",
		TargetUserID: "u2",
		Scope:        authz.ScopeCohort,
		ScopeID:      k.ID,
		Role:         authz.RoleContentManager,
	})
	if !errors.Is(err, authz.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole for community role on cohort, got %v", err)
	}
}

func TestAssignRejectsPastExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedCommunity(t, "A", "u1")
	svc := newAssignments(t, f)

	past := time.Now().UTC().Add(-time.Hour)
	_, err := svc.Assign(ctx, authz.AssignParams{
		ActorID:      "u1",
		TargetUserID: "u2",
		Scope:        authz.ScopeCommunity,
		ScopeID:      c.ID,
		Role:         authz.RoleModerator,
		ExpiresAt:    &past,
	})
	if !errors.Is(err, authz.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for past expiry, got %v", err)
	}
}

func TestAssignDuplicateAndExpiredRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedCommunity(t, "A", "u1")
	svc := newAssignments(t, f)

	expiry := f.clock.Now().Add(time.Hour)
	first, err := svc.Assign(ctx, authz.AssignParams{
		ActorID:      "u1",
		TargetUserID: "u2",
		Scope:        authz.ScopeCommunity,
		ScopeID:      c.ID,
		Role:         authz.RoleModerator,
		ExpiresAt:    &expiry,
	})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	// Active duplicate conflicts.
	_, err = svc.Assign(ctx, authz.AssignParams{
		ActorID:      "u1",
		TargetUserID: "u2",
		Scope:        authz.ScopeCommunity,
		ScopeID:      c.ID,
		Role:         authz.RoleModerator,
	})
	if !errors.Is(err, authz.ErrDuplicateGrant) {
		t.Fatalf("expected ErrDuplicateGrant, got %v", err)
	}

	// After expiry the same tuple is refreshed in place.
	f.clock.Advance(2 * time.Hour)
	refreshed, err := svc.Assign(ctx, authz.AssignParams{
		ActorID:      "u1",
		TargetUserID: "u2",
		Scope:        authz.ScopeCommunity,
		ScopeID:      c.ID,
		Role:         authz.RoleModerator,
	})
	if err != nil {
		t.Fatalf("Assign after expiry: %v", err)
	}
	if refreshed.ID != first.ID {
		t.Fatalf("expected expired grant to be refreshed in place, got new id %s", refreshed.ID)
	}
	if refreshed.ExpiresAt != nil {
		t.Fatalf("refreshed grant should carry the new expiry (none)")
	}
}

func TestAssignUnknownScopeID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCommunity(t, "A", "u1")
	svc := newAssignments(t, f)

	_, err := svc.Assign(ctx, authz.AssignParams{
		ActorID:      "u1",
		TargetUserID: "u2",
		Scope:        authz.ScopeCommunity,
		ScopeID:      "missing",
		Role:         authz.RoleModerator,
	})
	if !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeAuthorizesAgainstGrantScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.seedCommunity(t, "A", "u1", "u2")
	svc := newAssignments(t, f)

	g, err := svc.Assign(ctx, authz.AssignParams{
		ActorID:      "u1",
		TargetUserID: "u3",
		Scope:        authz.ScopeCommunity,
		ScopeID:      c.ID,
		Role:         authz.RoleModerator,
	})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	// Restricted mode: u2 holds no admin grant and may not revoke.
	if err := f.store.EnableRestriction(ctx, c.ID, "u1"); err != nil {
		t.Fatalf("EnableRestriction: %v", err)
	}
	if err := svc.Revoke(ctx, "u2", g.ID); !errors.Is(err, authz.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	if err := svc.Revoke(ctx, "u1", g.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := svc.Revoke(ctx, "u1", g.ID); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for revoked grant, got %v", err)
	}

	// Revocation is permanent removal, not a soft state.
	grants, err := f.store.ActiveGrants(ctx, "u3", authz.ScopeCommunity, c.ID)
	if err != nil {
		t.Fatalf("ActiveGrants: %v", err)
	}
	if len(grants) != 0 {
		t.Fatalf("expected no grants after revoke, got %v", grants)
	}
}
