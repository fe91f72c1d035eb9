package pg

import (
	"context"
	"database/sql"
	"errors"

	"classhub.org/internal/auth"
)

type organizationStore struct {
	db *sql.DB
}

func (st *organizationStore) Create(ctx context.Context, org *auth.Organization) error {
	_, err := st.db.ExecContext(ctx, `
		insert into organizations (id, name, subscription_id, created_at, updated_at)
		values ($1, $2, $3, now(), now())
	`, org.ID, org.Name, org.SubscriptionID)
	return translateWrite(err, "organization")
}

func (st *organizationStore) Find(ctx context.Context, id string) (*auth.Organization, error) {
	var (
		org       auth.Organization
		deletedAt sql.NullTime
		status    auth.SubscriptionStatus
	)
	err := st.db.QueryRowContext(ctx, `
		select o.id, o.name, o.subscription_id, o.created_at, o.updated_at, o.deleted_at, sub.status
		from organizations o
		join subscriptions sub on sub.id = o.subscription_id
		where o.id = $1
	`, id).Scan(&org.ID, &org.Name, &org.SubscriptionID, &org.CreatedAt, &org.UpdatedAt, &deletedAt, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.NotFound("organization not found")
	}
	if err != nil {
		return nil, err
	}
	org.DeletedAt = timePtr(deletedAt)
	org.Subscription = &auth.Subscription{ID: org.SubscriptionID, Status: status}
	plans, err := loadSubscriptionPlans(ctx, st.db, org.SubscriptionID)
	if err != nil {
		return nil, err
	}
	org.Subscription.Plans = plans
	return &org, nil
}

func (st *organizationStore) List(ctx context.Context) ([]*auth.Organization, error) {
	rows, err := st.db.QueryContext(ctx, `
		select o.id, o.name, o.subscription_id, o.created_at, o.updated_at, o.deleted_at, sub.status,
			sp.id, sp.plan_id, sp.start_at, sp.end_at,
			p.id, p.name, p.description, p.price, p.duration_days
		from organizations o
		join subscriptions sub on sub.id = o.subscription_id
		left join subscription_plans sp on sp.subscription_id = sub.id
		left join plans p on p.id = sp.plan_id
		order by o.created_at, sp.start_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.Organization
	byID := make(map[string]*auth.Organization)
	for rows.Next() {
		var (
			org          auth.Organization
			deletedAt    sql.NullTime
			status       auth.SubscriptionStatus
			spID, planID sql.NullString
			startAt      sql.NullTime
			endAt        sql.NullTime
			pID          sql.NullString
			pName        sql.NullString
			pDescription sql.NullString
			pPrice       sql.NullInt64
			pDuration    sql.NullInt64
		)
		if err := rows.Scan(&org.ID, &org.Name, &org.SubscriptionID, &org.CreatedAt, &org.UpdatedAt, &deletedAt, &status,
			&spID, &planID, &startAt, &endAt,
			&pID, &pName, &pDescription, &pPrice, &pDuration); err != nil {
			return nil, err
		}
		current, ok := byID[org.ID]
		if !ok {
			org.DeletedAt = timePtr(deletedAt)
			org.Subscription = &auth.Subscription{ID: org.SubscriptionID, Status: status}
			current = &org
			byID[org.ID] = current
			result = append(result, current)
		}
		if spID.Valid {
			current.Subscription.Plans = append(current.Subscription.Plans, auth.SubscriptionPlan{
				ID:      spID.String,
				PlanID:  planID.String,
				StartAt: startAt.Time,
				EndAt:   endAt.Time,
				Plan: &auth.Plan{
					ID:          pID.String,
					Name:        auth.PlanName(pName.String),
					Description: pDescription.String,
					Price:       pPrice.Int64,
					Duration:    int(pDuration.Int64),
				},
			})
		}
	}
	return result, rows.Err()
}

func (st *organizationStore) Update(ctx context.Context, org *auth.Organization) error {
	res, err := st.db.ExecContext(ctx, `
		update organizations set name = $2, updated_at = now() where id = $1
	`, org.ID, org.Name)
	if err != nil {
		return translateWrite(err, "organization")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.NotFound("organization not found")
	}
	return nil
}

func (st *organizationStore) SoftDelete(ctx context.Context, id string) error {
	res, err := st.db.ExecContext(ctx, `
		update organizations set deleted_at = now(), updated_at = now()
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
		return auth.NotFound("organization not found")
	}
	return nil
}

func (st *organizationStore) Restore(ctx context.Context, id string) error {
	res, err := st.db.ExecContext(ctx, `
		update organizations set deleted_at = null, updated_at = now()
		where id = $1
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.NotFound("organization not found")
	}
	return nil
}

func loadSubscriptionPlans(ctx context.Context, db *sql.DB, subscriptionID string) ([]auth.SubscriptionPlan, error) {
	rows, err := db.QueryContext(ctx, `
		select sp.id, sp.plan_id, sp.start_at, sp.end_at,
			p.id, p.name, p.description, p.price, p.duration_days
		from subscription_plans sp
		join plans p on p.id = sp.plan_id
		where sp.subscription_id = $1
		order by sp.start_at
	`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.SubscriptionPlan
	for rows.Next() {
		var (
			sp   auth.SubscriptionPlan
			plan auth.Plan
		)
		if err := rows.Scan(&sp.ID, &sp.PlanID, &sp.StartAt, &sp.EndAt,
			&plan.ID, &plan.Name, &plan.Description, &plan.Price, &plan.Duration); err != nil {
			return nil, err
		}
		sp.Plan = &plan
		result = append(result, sp)
	}
	return result, rows.Err()
}
