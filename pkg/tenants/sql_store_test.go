package tenants

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStore_CreateTenant_UniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO tenants").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	s := NewSQLStore(db)
	err = s.CreateTenant(context.Background(), testTenant("t1", "acme", time.Now()))
	assert.ErrorIs(t, err, ErrSubdomainTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_GetTenant_DriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM tenants WHERE id = \\$1").
		WithArgs("t1").
		WillReturnError(errors.New("connection reset"))

	_, err = NewSQLStore(db).GetTenant(context.Background(), "t1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTenantNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_UpdateTenant_BuildsSetClause(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE tenants SET status = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs("suspended", sqlmock.AnyArg(), "t1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = NewSQLStore(db).UpdateTenant(context.Background(), "t1", Patch{Status: ptr(StatusSuspended)})
	assert.ErrorIs(t, err, ErrTenantNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_WithReader(t *testing.T) {
	primary, primaryMock, err := sqlmock.New()
	require.NoError(t, err)
	defer primary.Close()
	replica, replicaMock, err := sqlmock.New()
	require.NoError(t, err)
	defer replica.Close()

	replicaMock.ExpectQuery("SELECT (.+) FROM tenants WHERE subdomain = \\$1").
		WithArgs("acme").
		WillReturnError(errors.New("replica lagging"))
	primaryMock.ExpectQuery("SELECT 1 FROM tenants WHERE id = \\$1").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	primaryMock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM tenant_users").
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	s := NewSQLStore(primary).WithReader(replica)

	_, err = s.GetTenantBySubdomain(context.Background(), "acme")
	assert.Error(t, err)

	n, err := s.GetTenantUserCount(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.NoError(t, replicaMock.ExpectationsWereMet())
	assert.NoError(t, primaryMock.ExpectationsWereMet())
}
