package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/demobank"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestCreateDemobank(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO demobank_configs").
		WithArgs(sqlmock.AnyArg(), "default", "EUR", "1000", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	d, err := store.CreateDemobank(context.Background(), demobank.Demobank{
		Name: "default", Currency: "EUR", DefaultDebtLimit: "1000",
	})
	require.NoError(t, err)
	require.NotEmpty(t, d.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDemobankByNameScansRow(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "name", "currency", "default_debt_limit", "suggested_exchange_account", "created_at"}).
		AddRow("demobank-1", "default", "EUR", "1000", nil, now)

	mock.ExpectQuery("SELECT id, name, currency, default_debt_limit, suggested_exchange_account, created_at").
		WithArgs("default").
		WillReturnRows(rows)

	d, err := store.GetDemobankByName(context.Background(), "default")
	require.NoError(t, err)
	require.Equal(t, "demobank-1", d.ID)
	require.Empty(t, d.SuggestedExchangeAccount)
	require.NoError(t, mock.ExpectationsWereMet())
}
