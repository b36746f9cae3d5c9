package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"foliohub.org/internal/authz"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func grantColumns() []string {
	return []string{"id", "user_id", "community_id", "role", "assigned_by", "assigned_at", "expires_at", "notes"}
}

func TestActiveGrantsFiltersExpiry(t *testing.T) {
	store, mock := newMockStore(t)

	assignedAt := time.Now().Add(-time.Hour)
	mock.ExpectQuery("select id, user_id, community_id, role, assigned_by, assigned_at, expires_at, notes.*from user_community_roles.*expires_at is null or expires_at > now").
		WithArgs("u1", "c1").
		WillReturnRows(sqlmock.NewRows(grantColumns()).
			AddRow("g1", "u1", "c1", "moderator", "admin-1", assignedAt, nil, nil))

	grants, err := store.ActiveGrants(context.Background(), "u1", authz.ScopeCommunity, "c1")
	if err != nil {
		t.Fatalf("ActiveGrants: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("expected one grant, got %d", len(grants))
	}
	g := grants[0]
	if g.ID != "g1" || g.Role != "moderator" || g.Scope != authz.ScopeCommunity || g.ScopeID != "c1" {
		t.Fatalf("unexpected grant: %+v", g)
	}
	if g.AssignedBy != "admin-1" || g.ExpiresAt != nil {
		t.Fatalf("unexpected grant fields: %+v", g)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestActiveGrantsCohortTable(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("from user_cohort_roles").
		WithArgs("u1", "k1").
		WillReturnRows(sqlmock.NewRows(grantColumns()))

	grants, err := store.ActiveGrants(context.Background(), "u1", authz.ScopeCohort, "k1")
	if err != nil {
		t.Fatalf("ActiveGrants: %v", err)
	}
	if len(grants) != 0 {
		t.Fatalf("expected no grants, got %d", len(grants))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertGrantReturnsRow(t *testing.T) {
	store, mock := newMockStore(t)

	assignedAt := time.Now()
	mock.ExpectQuery("insert into user_community_roles").
		WithArgs(sqlmock.AnyArg(), "u2", "c1", "moderator", "u1", nil, "").
		WillReturnRows(sqlmock.NewRows(grantColumns()).
			AddRow("g9", "u2", "c1", "moderator", "u1", assignedAt, nil, nil))

	created, err := store.InsertGrant(context.Background(), authz.RoleGrant{
		UserID:     "u2",
		Scope:      authz.ScopeCommunity,
		ScopeID:    "c1",
		Role:       "moderator",
		AssignedBy: "u1",
	})
	if err != nil {
		t.Fatalf("InsertGrant: %v", err)
	}
	if created.ID != "g9" || created.Scope != authz.ScopeCommunity {
		t.Fatalf("unexpected grant: %+v", created)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertGrantActiveDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	// The conditional upsert matches nothing when the existing row is still
	// active, so returning yields zero rows.
	mock.ExpectQuery("insert into user_community_roles").
		WithArgs(sqlmock.AnyArg(), "u2", "c1", "moderator", "u1", nil, "").
		WillReturnRows(sqlmock.NewRows(grantColumns()))

	_, err := store.InsertGrant(context.Background(), authz.RoleGrant{
		UserID:     "u2",
		Scope:      authz.ScopeCommunity,
		ScopeID:    "c1",
		Role:       "moderator",
		AssignedBy: "u1",
	})
	if !errors.Is(err, authz.ErrDuplicateGrant) {
		t.Fatalf("expected ErrDuplicateGrant, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertGrantUnknownScope(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.InsertGrant(context.Background(), authz.RoleGrant{
		UserID:  "u2",
		Scope:   "galaxy",
		ScopeID: "c1",
		Role:    "moderator",
	})
	if !errors.Is(err, authz.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDeleteGrantFallsThroughTables(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from user_community_roles").
		WithArgs("g1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from user_cohort_roles").
		WithArgs("g1").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.DeleteGrant(context.Background(), "g1"); err != nil {
		t.Fatalf("DeleteGrant: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteGrantNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from user_community_roles").
		WithArgs("nope").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from user_cohort_roles").
		WithArgs("nope").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.DeleteGrant(context.Background(), "nope")
	if !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCommunityRestrictedNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select admin_access_restricted from communities").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"admin_access_restricted"}))

	_, err := store.CommunityRestricted(context.Background(), "ghost")
	if !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEnableRestrictionTransactionOrder(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from communities").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("insert into user_community_roles").
		WithArgs(sqlmock.AnyArg(), "u1", "c1", authz.RoleCommunityAdmin, authz.RestrictionBootstrapNotes).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("update communities set admin_access_restricted = true").
		WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.EnableRestriction(context.Background(), "c1", "u1"); err != nil {
		t.Fatalf("EnableRestriction: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEnableRestrictionRollsBackOnGrantFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from communities").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("insert into user_community_roles").
		WithArgs(sqlmock.AnyArg(), "u1", "c1", authz.RoleCommunityAdmin, authz.RestrictionBootstrapNotes).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.EnableRestriction(context.Background(), "c1", "u1")
	if err == nil {
		t.Fatalf("expected error")
	}
	var storeErr *authz.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreError, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEnableRestrictionUnknownCommunity(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select 1 from communities").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectRollback()

	err := store.EnableRestriction(context.Background(), "ghost", "u1")
	if !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCommunityForCohort(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select community_id from cohorts").
		WithArgs("k1").
		WillReturnRows(sqlmock.NewRows([]string{"community_id"}).AddRow("c1"))

	communityID, err := store.CommunityForCohort(context.Background(), "k1")
	if err != nil {
		t.Fatalf("CommunityForCohort: %v", err)
	}
	if communityID != "c1" {
		t.Fatalf("unexpected community: %s", communityID)
	}

	mock.ExpectQuery("select community_id from cohorts").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"community_id"}))

	if _, err := store.CommunityForCohort(context.Background(), "ghost"); !errors.Is(err, authz.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIsMember(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select exists").
		WithArgs("c1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.IsMember(context.Background(), "u1", "c1")
	if err != nil {
		t.Fatalf("IsMember: %v", err)
	}
	if !ok {
		t.Fatalf("expected membership")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
