package pg

import (
	"context"
	"database/sql"
	"errors"

	"classhub.org/internal/auth"
)

type tokenStore struct {
	db *sql.DB
}

func (st *tokenStore) Create(ctx context.Context, t *auth.Token) error {
	_, err := st.db.ExecContext(ctx, `
		insert into tokens (id, token, scope, subject_id, expires_at, created_at, updated_at)
		values ($1, $2, $3, $4, $5, now(), now())
	`, t.ID, t.Token, string(t.Scope), t.SubjectID, t.ExpiresAt)
	return translateWrite(err, "token")
}

func (st *tokenStore) Find(ctx context.Context, token string) (*auth.Token, error) {
	var (
		t          auth.Token
		redeemedAt sql.NullTime
		revokedAt  sql.NullTime
	)
	err := st.db.QueryRowContext(ctx, `
		select id, token, scope, subject_id, expires_at, redeemed_at, revoked_at, created_at, updated_at
		from tokens
		where token = $1
	`, token).Scan(&t.ID, &t.Token, &t.Scope, &t.SubjectID, &t.ExpiresAt,
		&redeemedAt, &revokedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.NotFound("token not found")
	}
	if err != nil {
		return nil, err
	}
	t.RedeemedAt = timePtr(redeemedAt)
	t.RevokedAt = timePtr(revokedAt)
	return &t, nil
}

// Redeem is the single-use gate: the conditional update only matches a row
// that is still unconsumed, so of any number of racing calls the database
// lets exactly one through.
func (st *tokenStore) Redeem(ctx context.Context, token string) error {
	res, err := st.db.ExecContext(ctx, `
		update tokens
		set redeemed_at = now(), updated_at = now()
		where token = $1 and redeemed_at is null and revoked_at is null
	`, token)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	var exists bool
	if err := st.db.QueryRowContext(ctx,
		`select exists(select 1 from tokens where token = $1)`, token).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return auth.NotFound("token not found")
	}
	return auth.ErrTokenConsumed
}

func (st *tokenStore) Revoke(ctx context.Context, token string) error {
	res, err := st.db.ExecContext(ctx, `
		update tokens set revoked_at = now(), updated_at = now()
		where token = $1 and revoked_at is null
	`, token)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.NotFound("token not found")
	}
	return nil
}
