package pg

import (
	"context"
	"database/sql"
	"errors"

	"foliohub.org/internal/authz"
	"foliohub.org/internal/community"
	"foliohub.org/internal/ids"
)

func (s *Store) CreateCommunity(ctx context.Context, c authz.Community) (authz.Community, error) {
	row := s.db.QueryRowContext(ctx,
		`insert into communities (id, name, join_code, admin_access_restricted, created_at, updated_at)
values ($1, $2, $3, false, now(), now())
returning id, name, join_code, admin_access_restricted, created_at, updated_at`,
		ids.New(), c.Name, c.JoinCode)

	created, err := scanCommunity(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return authz.Community{}, community.ErrCodeTaken
		}
		return authz.Community{}, authz.WrapStore("create community", err)
	}
	return created, nil
}

func (s *Store) GetCommunity(ctx context.Context, id string) (authz.Community, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, join_code, admin_access_restricted, created_at, updated_at
from communities where id = $1`, id)
	c, err := scanCommunity(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return authz.Community{}, community.ErrNotFound
	case err != nil:
		return authz.Community{}, authz.WrapStore("get community", err)
	}
	return c, nil
}

func (s *Store) CommunityByCode(ctx context.Context, code string) (authz.Community, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, join_code, admin_access_restricted, created_at, updated_at
from communities where join_code = $1`, code)
	c, err := scanCommunity(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return authz.Community{}, community.ErrNotFound
	case err != nil:
		return authz.Community{}, authz.WrapStore("community by code", err)
	}
	return c, nil
}

func (s *Store) AddMember(ctx context.Context, communityID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`insert into community_members (community_id, user_id, joined_at)
values ($1, $2, now())
on conflict (community_id, user_id) do nothing`,
		communityID, userID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return false, community.ErrNotFound
		}
		return false, authz.WrapStore("add member", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, authz.WrapStore("add member", err)
	}
	return n > 0, nil
}

func (s *Store) MemberCount(ctx context.Context, communityID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from community_members where community_id = $1`, communityID).Scan(&count)
	if err != nil {
		return 0, authz.WrapStore("member count", err)
	}
	return count, nil
}

func (s *Store) CreateCohort(ctx context.Context, k authz.Cohort) (authz.Cohort, error) {
	row := s.db.QueryRowContext(ctx,
		`insert into cohorts (id, community_id, name, description, created_by, created_at, updated_at)
values ($1, $2, $3, nullif($4, ''), nullif($5, ''), now(), now())
returning id, community_id, name, description, created_by, created_at, updated_at`,
		ids.New(), k.CommunityID, k.Name, k.Description, k.CreatedBy)

	created, err := scanCohort(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return authz.Cohort{}, community.ErrNotFound
		}
		return authz.Cohort{}, authz.WrapStore("create cohort", err)
	}
	return created, nil
}

func (s *Store) Cohorts(ctx context.Context, communityID string) ([]authz.Cohort, error) {
	// Unknown communities are a 404, not an empty list.
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists (select 1 from communities where id = $1)`, communityID).Scan(&exists)
	if err != nil {
		return nil, authz.WrapStore("list cohorts", err)
	}
	if !exists {
		return nil, community.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		`select id, community_id, name, description, created_by, created_at, updated_at
from cohorts where community_id = $1 order by created_at, id`, communityID)
	if err != nil {
		return nil, authz.WrapStore("list cohorts", err)
	}
	defer rows.Close()

	var out []authz.Cohort
	for rows.Next() {
		k, err := scanCohort(rows)
		if err != nil {
			return nil, authz.WrapStore("list cohorts", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, authz.WrapStore("list cohorts", err)
	}
	return out, nil
}

func scanCommunity(row rowScanner) (authz.Community, error) {
	var c authz.Community
	err := row.Scan(&c.ID, &c.Name, &c.JoinCode, &c.AdminAccessRestricted, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return authz.Community{}, err
	}
	return c, nil
}

func scanCohort(row rowScanner) (authz.Cohort, error) {
	var (
		k           authz.Cohort
		description sql.NullString
		createdBy   sql.NullString
	)
	err := row.Scan(&k.ID, &k.CommunityID, &k.Name, &description, &createdBy, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return authz.Cohort{}, err
	}
	k.Description = description.String
	k.CreatedBy = createdBy.String
	return k, nil
}
