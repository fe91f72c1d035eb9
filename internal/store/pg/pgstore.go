// Package pg implements the identity store on PostgreSQL via database/sql
// over the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"classhub.org/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store is the PostgreSQL-backed auth.Store.
type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

// Open connects and tunes the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle, for tests.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for migrations and health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Subjects(context.Context) auth.SubjectStore { return &subjectStore{s.db} }
func (s *Store) Organizations(context.Context) auth.OrganizationStore {
	return &organizationStore{s.db}
}
func (s *Store) Roles(context.Context) auth.RoleStore { return &roleStore{s.db} }
func (s *Store) Plans(context.Context) auth.PlanStore { return &planStore{s.db} }
func (s *Store) Subscriptions(context.Context) auth.SubscriptionStore {
	return &subscriptionStore{s.db}
}
func (s *Store) Tokens(context.Context) auth.TokenStore { return &tokenStore{s.db} }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// translateWrite maps driver-level constraint violations onto domain kinds.
func translateWrite(err error, entity string) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return auth.Conflict(entity + " already exists").WithCause(err)
		case pgErrForeignKeyViolation:
			return auth.BadRequest("referenced " + entity + " does not exist").WithCause(err)
		}
	}
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
