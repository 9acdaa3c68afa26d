// Package postgres implements the persistent user store backing principal
// resolution.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/monay/backend-core/pkg/auth"
)

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// UserStore reads user records from Postgres. It implements auth.UserStore.
type UserStore struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, url string, opts Options) (*UserStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &UserStore{db: db}, nil
}

// NewUserStore wraps an existing connection. Used by tests.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Close releases the connection pool.
func (s *UserStore) Close() error {
	return s.db.Close()
}

// Ping reports connection health for the readiness probe.
func (s *UserStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, email, role, user_type, tenant_id, organization_id, permissions`

// FindByID returns the user with the given ID, or (nil, nil) when absent.
func (s *UserStore) FindByID(ctx context.Context, id string) (*auth.UserRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// FindByEmail returns the user with the given email, or (nil, nil) when
// absent.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.UserRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*auth.UserRecord, error) {
	var (
		rec         auth.UserRecord
		role        sql.NullString
		userType    sql.NullString
		tenantID    sql.NullString
		orgID       sql.NullString
		permissions []byte
	)
	err := row.Scan(&rec.ID, &rec.Email, &role, &userType, &tenantID, &orgID, &permissions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	rec.Role = role.String
	rec.UserType = userType.String
	rec.TenantID = tenantID.String
	rec.OrganizationID = orgID.String

	if len(permissions) > 0 {
		if err := json.Unmarshal(permissions, &rec.Permissions); err != nil {
			return nil, fmt.Errorf("failed to decode permissions: %w", err)
		}
	}
	return &rec, nil
}
