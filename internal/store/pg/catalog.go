package pg

import (
	"context"
	"database/sql"
	"errors"

	"classhub.org/internal/auth"
)

type roleStore struct {
	db *sql.DB
}

func (st *roleStore) scan(row interface{ Scan(...any) error }) (*auth.Role, error) {
	var r auth.Role
	err := row.Scan(&r.ID, &r.Name, &r.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.NotFound("role not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (st *roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	return st.scan(st.db.QueryRowContext(ctx,
		`select id, name, description from roles where id = $1`, id))
}

func (st *roleStore) FindByName(ctx context.Context, name auth.RoleName) (*auth.Role, error) {
	return st.scan(st.db.QueryRowContext(ctx,
		`select id, name, description from roles where name = $1`, string(name)))
}

func (st *roleStore) List(ctx context.Context) ([]*auth.Role, error) {
	rows, err := st.db.QueryContext(ctx, `select id, name, description from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Role
	for rows.Next() {
		r, err := st.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

type planStore struct {
	db *sql.DB
}

func (st *planStore) scan(row interface{ Scan(...any) error }) (*auth.Plan, error) {
	var p auth.Plan
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Duration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.NotFound("plan not found")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (st *planStore) Find(ctx context.Context, id string) (*auth.Plan, error) {
	return st.scan(st.db.QueryRowContext(ctx,
		`select id, name, description, price, duration_days from plans where id = $1`, id))
}

func (st *planStore) FindByName(ctx context.Context, name auth.PlanName) (*auth.Plan, error) {
	return st.scan(st.db.QueryRowContext(ctx,
		`select id, name, description, price, duration_days from plans where name = $1`, string(name)))
}

func (st *planStore) List(ctx context.Context) ([]*auth.Plan, error) {
	rows, err := st.db.QueryContext(ctx,
		`select id, name, description, price, duration_days from plans order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Plan
	for rows.Next() {
		p, err := st.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

type subscriptionStore struct {
	db *sql.DB
}

func (st *subscriptionStore) Create(ctx context.Context, sub *auth.Subscription) error {
	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`insert into subscriptions (id, status) values ($1, $2)`,
		sub.ID, string(sub.Status)); err != nil {
		return translateWrite(err, "subscription")
	}
	for _, sp := range sub.Plans {
		if _, err := tx.ExecContext(ctx, `
			insert into subscription_plans (id, subscription_id, plan_id, start_at, end_at)
			values ($1, $2, $3, $4, $5)
		`, sp.ID, sub.ID, sp.PlanID, sp.StartAt, sp.EndAt); err != nil {
			return translateWrite(err, "subscription plan")
		}
	}
	return tx.Commit()
}

func (st *subscriptionStore) Find(ctx context.Context, id string) (*auth.Subscription, error) {
	var sub auth.Subscription
	err := st.db.QueryRowContext(ctx,
		`select id, status from subscriptions where id = $1`, id).Scan(&sub.ID, &sub.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.NotFound("subscription not found")
	}
	if err != nil {
		return nil, err
	}
	plans, err := loadSubscriptionPlans(ctx, st.db, id)
	if err != nil {
		return nil, err
	}
	sub.Plans = plans
	return &sub, nil
}

func (st *subscriptionStore) SetStatus(ctx context.Context, id string, status auth.SubscriptionStatus) error {
	res, err := st.db.ExecContext(ctx,
		`update subscriptions set status = $2 where id = $1`, id, string(status))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.NotFound("subscription not found")
	}
	return nil
}

func (st *subscriptionStore) AttachPlan(ctx context.Context, subID string, sp *auth.SubscriptionPlan) error {
	_, err := st.db.ExecContext(ctx, `
		insert into subscription_plans (id, subscription_id, plan_id, start_at, end_at)
		values ($1, $2, $3, $4, $5)
	`, sp.ID, subID, sp.PlanID, sp.StartAt, sp.EndAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.Conflict("plan already attached")
		}
		return translateWrite(err, "subscription plan")
	}
	return nil
}

func (st *subscriptionStore) DetachPlan(ctx context.Context, subID, planID string) error {
	res, err := st.db.ExecContext(ctx,
		`delete from subscription_plans where subscription_id = $1 and plan_id = $2`,
		subID, planID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.NotFound("plan not attached")
	}
	return nil
}

func (st *subscriptionStore) ListLapsed(ctx context.Context) ([]*auth.Subscription, error) {
	rows, err := st.db.QueryContext(ctx, `
		select sub.id, sub.status
		from subscriptions sub
		where sub.status = 'ACTIVE'
		  and exists (
			select 1 from subscription_plans sp where sp.subscription_id = sub.id
		  )
		  and not exists (
			select 1 from subscription_plans sp
			where sp.subscription_id = sub.id and sp.end_at > now()
		  )
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Subscription
	for rows.Next() {
		var sub auth.Subscription
		if err := rows.Scan(&sub.ID, &sub.Status); err != nil {
			return nil, err
		}
		result = append(result, &sub)
	}
	return result, rows.Err()
}
