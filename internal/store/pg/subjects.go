package pg

import (
	"context"
	"database/sql"
	"errors"

	"classhub.org/internal/auth"
)

type subjectStore struct {
	db *sql.DB
}

const subjectColumns = `
	s.id, s.email, s.first_name, s.last_name, s.hashed_password, s.salt,
	s.role_id, s.organization_id, s.active_at, s.last_login_at,
	s.created_at, s.updated_at, s.deleted_at,
	r.id, r.name, r.description`

func (st *subjectStore) scan(row interface{ Scan(...any) error }) (*auth.Subject, error) {
	var (
		s                                auth.Subject
		role                             auth.Role
		orgID                            sql.NullString
		activeAt, lastLoginAt, deletedAt sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.Email, &s.FirstName, &s.LastName, &s.HashedPassword, &s.Salt,
		&s.RoleID, &orgID, &activeAt, &lastLoginAt,
		&s.CreatedAt, &s.UpdatedAt, &deletedAt,
		&role.ID, &role.Name, &role.Description,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.NotFound("subject not found")
	}
	if err != nil {
		return nil, err
	}
	s.Role = &role
	s.OrganizationID = orgID.String
	s.ActiveAt = timePtr(activeAt)
	s.LastLoginAt = timePtr(lastLoginAt)
	s.DeletedAt = timePtr(deletedAt)
	return &s, nil
}

// resolveOrg loads the subject's organization with subscription state.
func (st *subjectStore) resolveOrg(ctx context.Context, s *auth.Subject) error {
	if s.OrganizationID == "" {
		return nil
	}
	org, err := (&organizationStore{st.db}).Find(ctx, s.OrganizationID)
	if err != nil {
		return err
	}
	s.Organization = org
	return nil
}

func (st *subjectStore) Create(ctx context.Context, s *auth.Subject) error {
	_, err := st.db.ExecContext(ctx, `
		insert into subjects (id, email, first_name, last_name, hashed_password, salt,
			role_id, organization_id, active_at, last_login_at, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
	`, s.ID, s.Email, s.FirstName, s.LastName, s.HashedPassword, s.Salt,
		s.RoleID, nullString(s.OrganizationID), nullTime(s.ActiveAt), nullTime(s.LastLoginAt))
	return translateWrite(err, "subject")
}

func (st *subjectStore) Find(ctx context.Context, id string) (*auth.Subject, error) {
	row := st.db.QueryRowContext(ctx, `
		select `+subjectColumns+`
		from subjects s
		join roles r on r.id = s.role_id
		where s.id = $1 and s.deleted_at is null
	`, id)
	s, err := st.scan(row)
	if err != nil {
		return nil, err
	}
	if err := st.resolveOrg(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (st *subjectStore) FindByEmail(ctx context.Context, email string) (*auth.Subject, error) {
	row := st.db.QueryRowContext(ctx, `
		select `+subjectColumns+`
		from subjects s
		join roles r on r.id = s.role_id
		where s.email = $1 and s.deleted_at is null
	`, email)
	s, err := st.scan(row)
	if err != nil {
		return nil, err
	}
	if err := st.resolveOrg(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (st *subjectStore) ListByOrg(ctx context.Context, orgID string) ([]*auth.Subject, error) {
	rows, err := st.db.QueryContext(ctx, `
		select `+subjectColumns+`
		from subjects s
		join roles r on r.id = s.role_id
		where s.organization_id = $1
		order by s.created_at
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Subject
	for rows.Next() {
		s, err := st.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// one tenant per listing, resolve it once and share
	if len(result) > 0 {
		org, err := (&organizationStore{st.db}).Find(ctx, orgID)
		if err != nil && auth.KindOf(err) != auth.KindNotFound {
			return nil, err
		}
		for _, s := range result {
			s.Organization = org
		}
	}
	return result, nil
}

func (st *subjectStore) Update(ctx context.Context, s *auth.Subject) error {
	res, err := st.db.ExecContext(ctx, `
		update subjects
		set email = $2, first_name = $3, last_name = $4, role_id = $5,
			hashed_password = $6, salt = $7, active_at = $8, last_login_at = $9,
			updated_at = now()
		where id = $1
	`, s.ID, s.Email, s.FirstName, s.LastName, s.RoleID, s.HashedPassword,
		s.Salt, nullTime(s.ActiveAt), nullTime(s.LastLoginAt))
	if err != nil {
		return translateWrite(err, "subject")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.NotFound("subject not found")
	}
	return nil
}

func (st *subjectStore) SoftDelete(ctx context.Context, id string) error {
	res, err := st.db.ExecContext(ctx, `
		update subjects set deleted_at = now(), updated_at = now()
		where id = $1 and deleted_at is null
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.NotFound("subject not found")
	}
	return nil
}
