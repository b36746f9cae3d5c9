package community_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"foliohub.org/internal/authz"
	"foliohub.org/internal/community"
	"foliohub.org/internal/store/memory"
)

func newService(t *testing.T) (*community.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	eval, err := authz.NewEvaluator(store, store, store)
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	svc, err := community.NewService(store, store, eval)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func TestCreateJoinsCreatorAsFirstAdmin(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, "  Illustrators  ", "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.Name != "Illustrators" {
		t.Fatalf("expected trimmed name, got %q", c.Name)
	}
	if len(c.JoinCode) != 8 {
		t.Fatalf("expected 8-char join code, got %q", c.JoinCode)
	}
	if c.AdminAccessRestricted {
		t.Fatalf("new communities start in open mode")
	}

	ok, err := store.IsMember(ctx, "alice", c.ID)
	if err != nil || !ok {
		t.Fatalf("expected creator to be a member, ok=%v err=%v", ok, err)
	}
	grants, err := store.ActiveGrants(ctx, "alice", authz.ScopeCommunity, c.ID)
	if err != nil {
		t.Fatalf("ActiveGrants: %v", err)
	}
	if len(grants) != 1 || grants[0].Role != authz.RoleCommunityAdmin {
		t.Fatalf("expected bootstrap admin grant, got %v", grants)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "", "alice"); !errors.Is(err, community.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty name, got %v", err)
	}
	if _, err := svc.Create(ctx, "Name", "  "); !errors.Is(err, community.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty creator, got %v", err)
	}
}

func TestJoinByCodeIsIdempotent(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, "Writers", "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	joined, already, err := svc.JoinByCode(ctx, c.JoinCode, "bob")
	if err != nil {
		t.Fatalf("JoinByCode: %v", err)
	}
	if joined.ID != c.ID || already {
		t.Fatalf("expected fresh join, already=%v", already)
	}

	// Lowercase codes normalize.
	_, already, err = svc.JoinByCode(ctx, "  "+strings.ToLower(c.JoinCode)+"  ", "bob")
	if err != nil {
		t.Fatalf("JoinByCode again: %v", err)
	}
	if !already {
		t.Fatalf("expected already_member on repeat join")
	}

	// Second joiner gets no admin grant; only the first member bootstraps.
	grants, err := store.ActiveGrants(ctx, "bob", authz.ScopeCommunity, c.ID)
	if err != nil {
		t.Fatalf("ActiveGrants: %v", err)
	}
	if len(grants) != 0 {
		t.Fatalf("expected no grants for second member, got %v", grants)
	}

	if _, _, err := svc.JoinByCode(ctx, "WRONGCOD", "carol"); !errors.Is(err, community.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown code, got %v", err)
	}
}

func TestCreateCohortRequiresCommunityAdmin(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, "Film Club", "alice")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := svc.JoinByCode(ctx, c.JoinCode, "bob"); err != nil {
		t.Fatalf("JoinByCode: %v", err)
	}

	// Open mode: every member may create cohorts.
	k, err := svc.CreateCohort(ctx, "bob", c.ID, "Spring", "first cohort")
	if err != nil {
		t.Fatalf("CreateCohort: %v", err)
	}
	if k.CommunityID != c.ID || k.CreatedBy != "bob" {
		t.Fatalf("unexpected cohort: %+v", k)
	}

	// Restricted mode locks it down to granted admins.
	if err := store.EnableRestriction(ctx, c.ID, "alice"); err != nil {
		t.Fatalf("EnableRestriction: %v", err)
	}
	if _, err := svc.CreateCohort(ctx, "bob", c.ID, "Fall", ""); !errors.Is(err, authz.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	cohorts, err := svc.Cohorts(ctx, c.ID)
	if err != nil {
		t.Fatalf("Cohorts: %v", err)
	}
	if len(cohorts) != 1 {
		t.Fatalf("expected one cohort, got %d", len(cohorts))
	}
}
