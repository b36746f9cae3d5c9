package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"foliohub.org/internal/authz"
	"foliohub.org/internal/ids"
)

// grantTable maps a scope to its role table and scope column. Community and
// cohort grants live in separate tables so each carries a real foreign key.
func grantTable(scope authz.ScopeType) (table, scopeCol string, err error) {
	switch scope {
	case authz.ScopeCommunity:
		return "user_community_roles", "community_id", nil
	case authz.ScopeCohort:
		return "user_cohort_roles", "cohort_id", nil
	default:
		return "", "", fmt.Errorf("%w: unknown scope %q", authz.ErrInvalidInput, scope)
	}
}

func (s *Store) ActiveGrants(ctx context.Context, userID string, scope authz.ScopeType, scopeID string) ([]authz.RoleGrant, error) {
	table, scopeCol, err := grantTable(scope)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`select id, user_id, %s, role, assigned_by, assigned_at, expires_at, notes
from %s
where user_id = $1 and %s = $2 and (expires_at is null or expires_at > now())
order by assigned_at, id`, scopeCol, table, scopeCol)

	rows, err := s.db.QueryContext(ctx, q, userID, scopeID)
	if err != nil {
		return nil, authz.WrapStore("active_grants", err)
	}
	defer rows.Close()

	var grants []authz.RoleGrant
	for rows.Next() {
		g, err := scanGrant(rows, scope)
		if err != nil {
			return nil, authz.WrapStore("active_grants", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, authz.WrapStore("active_grants", err)
	}
	return grants, nil
}

func (s *Store) GetGrant(ctx context.Context, grantID string) (authz.RoleGrant, error) {
	// Grant ids are ULIDs unique across both tables; probe community first.
	for _, scope := range []authz.ScopeType{authz.ScopeCommunity, authz.ScopeCohort} {
		table, scopeCol, _ := grantTable(scope)
		q := fmt.Sprintf(`select id, user_id, %s, role, assigned_by, assigned_at, expires_at, notes
from %s where id = $1`, scopeCol, table)
		g, err := scanGrant(s.db.QueryRowContext(ctx, q, grantID), scope)
		if err == nil {
			return g, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return authz.RoleGrant{}, authz.WrapStore("get_grant", err)
		}
	}
	return authz.RoleGrant{}, authz.ErrNotFound
}

func (s *Store) InsertGrant(ctx context.Context, grant authz.RoleGrant) (authz.RoleGrant, error) {
	table, scopeCol, err := grantTable(grant.Scope)
	if err != nil {
		return authz.RoleGrant{}, err
	}
	// The unique index spans all rows, but only active duplicates are
	// conflicts. An expired row for the same tuple is refreshed in place and
	// keeps its original id.
	q := fmt.Sprintf(`insert into %[1]s (id, user_id, %[2]s, role, assigned_by, assigned_at, expires_at, notes)
values ($1, $2, $3, $4, nullif($5, ''), now(), $6, nullif($7, ''))
on conflict (user_id, %[2]s, role) do update
set assigned_by = excluded.assigned_by,
    assigned_at = excluded.assigned_at,
    expires_at = excluded.expires_at,
    notes = excluded.notes
where %[1]s.expires_at is not null and %[1]s.expires_at <= now()
returning id, user_id, %[2]s, role, assigned_by, assigned_at, expires_at, notes`, table, scopeCol)

	row := s.db.QueryRowContext(ctx, q,
		ids.New(), grant.UserID, grant.ScopeID, grant.Role,
		strings.TrimSpace(grant.AssignedBy), grant.ExpiresAt, strings.TrimSpace(grant.Notes))

	created, err := scanGrant(row, grant.Scope)
	switch {
	case err == nil:
		return created, nil
	case errors.Is(err, sql.ErrNoRows):
		// Conflict with an active grant: the conditional update matched
		// nothing, so returning produced no row.
		return authz.RoleGrant{}, authz.ErrDuplicateGrant
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return authz.RoleGrant{}, authz.ErrDuplicateGrant
		case pgErrForeignKeyViolation:
			return authz.RoleGrant{}, authz.ErrNotFound
		}
	}
	return authz.RoleGrant{}, authz.WrapStore("insert_grant", err)
}

func (s *Store) DeleteGrant(ctx context.Context, grantID string) error {
	for _, table := range []string{"user_community_roles", "user_cohort_roles"} {
		res, err := s.db.ExecContext(ctx, fmt.Sprintf(`delete from %s where id = $1`, table), grantID)
		if err != nil {
			return authz.WrapStore("delete_grant", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return authz.WrapStore("delete_grant", err)
		}
		if n > 0 {
			return nil
		}
	}
	return authz.ErrNotFound
}

func (s *Store) CommunityRestricted(ctx context.Context, communityID string) (bool, error) {
	var restricted bool
	err := s.db.QueryRowContext(ctx,
		`select admin_access_restricted from communities where id = $1`, communityID).Scan(&restricted)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, authz.ErrNotFound
	case err != nil:
		return false, authz.WrapStore("community_restricted", err)
	}
	return restricted, nil
}

func (s *Store) SetCommunityRestricted(ctx context.Context, communityID string, restricted bool) error {
	res, err := s.db.ExecContext(ctx,
		`update communities set admin_access_restricted = $2, updated_at = now() where id = $1`,
		communityID, restricted)
	if err != nil {
		return authz.WrapStore("set_community_restricted", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return authz.WrapStore("set_community_restricted", err)
	}
	if n == 0 {
		return authz.ErrNotFound
	}
	return nil
}

func (s *Store) EnableRestriction(ctx context.Context, communityID, actorID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return authz.WrapStore("enable_restriction", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`select 1 from communities where id = $1 for update`, communityID).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return authz.ErrNotFound
	case err != nil:
		return authz.WrapStore("enable_restriction", err)
	}

	// The actor keeps admin after the flip. An existing grant is promoted to
	// non-expiring rather than duplicated.
	_, err = tx.ExecContext(ctx,
		`insert into user_community_roles (id, user_id, community_id, role, assigned_by, assigned_at, expires_at, notes)
values ($1, $2, $3, $4, $2, now(), null, $5)
on conflict (user_id, community_id, role) do update
set expires_at = null`,
		ids.New(), actorID, communityID, authz.RoleCommunityAdmin, authz.RestrictionBootstrapNotes)
	if err != nil {
		return authz.WrapStore("enable_restriction", err)
	}

	_, err = tx.ExecContext(ctx,
		`update communities set admin_access_restricted = true, updated_at = now() where id = $1`,
		communityID)
	if err != nil {
		return authz.WrapStore("enable_restriction", err)
	}

	if err := tx.Commit(); err != nil {
		return authz.WrapStore("enable_restriction", err)
	}
	return nil
}

func (s *Store) CommunityForCohort(ctx context.Context, cohortID string) (string, error) {
	var communityID string
	err := s.db.QueryRowContext(ctx,
		`select community_id from cohorts where id = $1`, cohortID).Scan(&communityID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", authz.ErrNotFound
	case err != nil:
		return "", authz.WrapStore("community_for_cohort", err)
	}
	return communityID, nil
}

func (s *Store) ScopeExists(ctx context.Context, scope authz.ScopeType, scopeID string) (bool, error) {
	var q string
	switch scope {
	case authz.ScopeCommunity:
		q = `select exists(select 1 from communities where id = $1)`
	case authz.ScopeCohort:
		q = `select exists(select 1 from cohorts where id = $1)`
	default:
		return false, fmt.Errorf("%w: unknown scope %q", authz.ErrInvalidInput, scope)
	}
	var ok bool
	if err := s.db.QueryRowContext(ctx, q, scopeID).Scan(&ok); err != nil {
		return false, authz.WrapStore("scope_exists", err)
	}
	return ok, nil
}

func (s *Store) IsMember(ctx context.Context, userID, communityID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from community_members where community_id = $1 and user_id = $2)`,
		communityID, userID).Scan(&ok)
	if err != nil {
		return false, authz.WrapStore("is_member", err)
	}
	return ok, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner, scope authz.ScopeType) (authz.RoleGrant, error) {
	var (
		g          authz.RoleGrant
		assignedBy sql.NullString
		expiresAt  sql.NullTime
		notes      sql.NullString
	)
	err := row.Scan(&g.ID, &g.UserID, &g.ScopeID, &g.Role, &assignedBy, &g.AssignedAt, &expiresAt, &notes)
	if err != nil {
		return authz.RoleGrant{}, err
	}
	g.Scope = scope
	g.AssignedBy = assignedBy.String
	g.Notes = notes.String
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		g.ExpiresAt = &t
	}
	return g, nil
}
