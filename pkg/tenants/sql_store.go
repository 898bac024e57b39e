package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// SQLStore persists tenants in a relational database using $n placeholders.
// PostgreSQL (lib/pq) in production; SQLite works for tests.
type SQLStore struct {
	db     *sql.DB
	reader *sql.DB
	now    func() time.Time
}

// NewSQLStore creates a store over an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, reader: db, now: time.Now}
}

// WithReader routes tenant lookups by id and subdomain to a read replica.
// Seat counts and writes always use the primary.
func (s *SQLStore) WithReader(reader *sql.DB) *SQLStore {
	if reader != nil {
		s.reader = reader
	}
	return s
}

const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id                  VARCHAR(64) PRIMARY KEY,
	name                VARCHAR(255) NOT NULL,
	subdomain           VARCHAR(63) NOT NULL UNIQUE,
	plan                VARCHAR(32) NOT NULL,
	status              VARCHAR(32) NOT NULL,
	subscription_status VARCHAR(32) NOT NULL,
	max_users           INTEGER NOT NULL,
	trial_ends_at       TIMESTAMP NOT NULL,
	stripe_customer_id  VARCHAR(255) NOT NULL DEFAULT '',
	created_at          TIMESTAMP NOT NULL,
	updated_at          TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS tenant_users (
	tenant_id  VARCHAR(64) NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	user_id    VARCHAR(64) NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (tenant_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_tenants_trial ON tenants (subscription_status, trial_ends_at);
`

// Migrate creates the tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate tenants: %w", err)
		}
	}
	return nil
}

const tenantColumns = `id, name, subdomain, plan, status, subscription_status, max_users,
	trial_ends_at, stripe_customer_id, created_at, updated_at`

func (s *SQLStore) CreateTenant(ctx context.Context, t *Tenant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.Name, t.Subdomain, string(t.Plan), string(t.Status), string(t.SubscriptionStatus),
		t.MaxUsers, t.TrialEndsAt.UTC(), t.StripeCustomerID, t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return ErrSubdomainTaken
	}
	return err
}

func (s *SQLStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	return scanTenant(s.reader.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
}

func (s *SQLStore) GetTenantBySubdomain(ctx context.Context, subdomain string) (*Tenant, error) {
	return scanTenant(s.reader.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE subdomain = $1`, subdomain))
}

func (s *SQLStore) GetTenantUserCount(ctx context.Context, tenantID string) (int, error) {
	if err := s.exists(ctx, tenantID); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tenant_users WHERE tenant_id = $1`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tenant users: %w", err)
	}
	return n, nil
}

func (s *SQLStore) UpdateTenant(ctx context.Context, id string, patch Patch) (*Tenant, error) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Plan != nil {
		add("plan", string(*patch.Plan))
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.SubscriptionStatus != nil {
		add("subscription_status", string(*patch.SubscriptionStatus))
	}
	if patch.MaxUsers != nil {
		add("max_users", *patch.MaxUsers)
	}
	if patch.TrialEndsAt != nil {
		add("trial_ends_at", patch.TrialEndsAt.UTC())
	}
	if patch.StripeCustomerID != nil {
		add("stripe_customer_id", *patch.StripeCustomerID)
	}
	add("updated_at", s.now().UTC())
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE tenants SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update tenant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrTenantNotFound
	}
	return s.GetTenant(ctx, id)
}

func (s *SQLStore) AddUser(ctx context.Context, tenantID, userID string) error {
	if err := s.exists(ctx, tenantID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_users (tenant_id, user_id, created_at) VALUES ($1, $2, $3)`,
		tenantID, userID, s.now().UTC())
	if isUniqueViolation(err) {
		return ErrUserExists
	}
	return err
}

func (s *SQLStore) RemoveUser(ctx context.Context, tenantID, userID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM tenant_users WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *SQLStore) DeleteTenant(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tenant: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tenant_users WHERE tenant_id = $1`, id); err != nil {
		return fmt.Errorf("delete tenant users: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTenantNotFound
	}
	return tx.Commit()
}

func (s *SQLStore) ListExpiredTrials(ctx context.Context, before time.Time) ([]*Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tenantColumns+` FROM tenants
		WHERE subscription_status = $1 AND trial_ends_at < $2
		ORDER BY trial_ends_at`,
		string(SubscriptionTrial), before.UTC())
	if err != nil {
		return nil, fmt.Errorf("list expired trials: %w", err)
	}
	defer rows.Close()

	var out []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) exists(ctx context.Context, tenantID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tenants WHERE id = $1`, tenantID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTenantNotFound
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*Tenant, error) {
	var (
		t                          Tenant
		plan, status, subscription string
	)
	err := row.Scan(&t.ID, &t.Name, &t.Subdomain, &plan, &status, &subscription, &t.MaxUsers,
		&t.TrialEndsAt, &t.StripeCustomerID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	t.Plan = Plan(plan)
	t.Status = Status(status)
	t.SubscriptionStatus = SubscriptionStatus(subscription)
	t.TrialEndsAt = t.TrialEndsAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

// isUniqueViolation recognizes unique-key failures from PostgreSQL and SQLite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ Store = (*SQLStore)(nil)
