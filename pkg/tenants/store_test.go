package tenants

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// a single connection keeps the in-memory database alive and shared
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := NewSQLStore(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testTenant(id, subdomain string, trialEnds time.Time) *Tenant {
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	return &Tenant{
		ID:                 id,
		Name:               "Tenant " + id,
		Subdomain:          subdomain,
		Plan:               PlanStarter,
		Status:             StatusActive,
		SubscriptionStatus: SubscriptionTrial,
		MaxUsers:           5,
		TrialEndsAt:        trialEnds,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// runStoreSuite exercises the Store contract against any implementation.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	trialEnds := time.Date(2026, 1, 24, 9, 0, 0, 0, time.UTC)

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateTenant(ctx, testTenant("t1", "acme", trialEnds)))

		got, err := s.GetTenant(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "acme", got.Subdomain)
		assert.Equal(t, PlanStarter, got.Plan)
		assert.Equal(t, SubscriptionTrial, got.SubscriptionStatus)
		assert.True(t, trialEnds.Equal(got.TrialEndsAt))

		bySub, err := s.GetTenantBySubdomain(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "t1", bySub.ID)
	})

	t.Run("not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetTenant(ctx, "missing")
		assert.ErrorIs(t, err, ErrTenantNotFound)
		_, err = s.GetTenantBySubdomain(ctx, "missing")
		assert.ErrorIs(t, err, ErrTenantNotFound)
		_, err = s.UpdateTenant(ctx, "missing", Patch{Name: ptr("x")})
		assert.ErrorIs(t, err, ErrTenantNotFound)
		_, err = s.GetTenantUserCount(ctx, "missing")
		assert.ErrorIs(t, err, ErrTenantNotFound)
	})

	t.Run("subdomain is unique", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateTenant(ctx, testTenant("t1", "acme", trialEnds)))
		err := s.CreateTenant(ctx, testTenant("t2", "acme", trialEnds))
		assert.ErrorIs(t, err, ErrSubdomainTaken)
	})

	t.Run("update applies patch", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateTenant(ctx, testTenant("t1", "acme", trialEnds)))

		updated, err := s.UpdateTenant(ctx, "t1", Patch{
			Plan:               ptr(PlanEnterprise),
			SubscriptionStatus: ptr(SubscriptionActive),
			MaxUsers:           ptr(250),
		})
		require.NoError(t, err)
		assert.Equal(t, PlanEnterprise, updated.Plan)
		assert.Equal(t, SubscriptionActive, updated.SubscriptionStatus)
		assert.Equal(t, 250, updated.MaxUsers)
		assert.Equal(t, "acme", updated.Subdomain)
		assert.Equal(t, StatusActive, updated.Status)
	})

	t.Run("seat count", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateTenant(ctx, testTenant("t1", "acme", trialEnds)))
		require.NoError(t, s.CreateTenant(ctx, testTenant("t2", "globex", trialEnds)))

		require.NoError(t, s.AddUser(ctx, "t1", "u1"))
		require.NoError(t, s.AddUser(ctx, "t1", "u2"))
		require.NoError(t, s.AddUser(ctx, "t2", "u1"))
		assert.ErrorIs(t, s.AddUser(ctx, "t1", "u1"), ErrUserExists)
		assert.ErrorIs(t, s.AddUser(ctx, "nope", "u1"), ErrTenantNotFound)

		n, err := s.GetTenantUserCount(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.NoError(t, s.RemoveUser(ctx, "t1", "u2"))
		assert.ErrorIs(t, s.RemoveUser(ctx, "t1", "u2"), ErrUserNotFound)
		n, err = s.GetTenantUserCount(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("expired trials", func(t *testing.T) {
		s := newStore(t)
		early := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
		late := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.CreateTenant(ctx, testTenant("t1", "acme", early)))
		require.NoError(t, s.CreateTenant(ctx, testTenant("t2", "globex", late)))
		paid := testTenant("t3", "initech", early)
		paid.SubscriptionStatus = SubscriptionActive
		require.NoError(t, s.CreateTenant(ctx, paid))

		got, err := s.ListExpiredTrials(ctx, time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "t1", got[0].ID)
	})

	t.Run("delete frees the subdomain", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateTenant(ctx, testTenant("t1", "acme", trialEnds)))
		require.NoError(t, s.AddUser(ctx, "t1", "u1"))
		_, err := s.GetTenantBySubdomain(ctx, "acme")
		require.NoError(t, err)

		require.NoError(t, s.DeleteTenant(ctx, "t1"))
		assert.ErrorIs(t, s.DeleteTenant(ctx, "t1"), ErrTenantNotFound)
		_, err = s.GetTenant(ctx, "t1")
		assert.ErrorIs(t, err, ErrTenantNotFound)
		_, err = s.GetTenantBySubdomain(ctx, "acme")
		assert.ErrorIs(t, err, ErrTenantNotFound)

		require.NoError(t, s.CreateTenant(ctx, testTenant("t2", "acme", trialEnds)))
		n, err := s.GetTenantUserCount(ctx, "t2")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("returned values are copies", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateTenant(ctx, testTenant("t1", "acme", trialEnds)))
		got, err := s.GetTenant(ctx, "t1")
		require.NoError(t, err)
		got.Status = StatusSuspended

		again, err := s.GetTenant(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, StatusActive, again.Status)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(*testing.T) Store { return NewMemoryStore() })
}

func TestSQLStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return newSQLiteStore(t) })
}

func TestCachedStore(t *testing.T) {
	runStoreSuite(t, func(*testing.T) Store { return NewCachedStore(NewMemoryStore(), 16, time.Minute) })
}
