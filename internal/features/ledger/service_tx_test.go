package ledger

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/case-battles/internal/db/postgres"
)

// Ошибка записи события после UPDATE строки откатывает всю транзакцию.
func TestService_ApplyDelta_EventFailureRollsBack(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec("INSERT INTO rtu_ledgers").
		WithArgs("c1", "X", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery("SELECT (.+) FROM rtu_ledgers (.+) FOR UPDATE").
		WithArgs("c1", "X").
		WillReturnRows(pgxmock.NewRows(ledgerRowColumns).
			AddRow(int64(3), "c1", "X", "1", "60", "100", "50", "10", now, now))
	mock.ExpectExec("UPDATE rtu_ledgers").
		WithArgs(int64(3), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("INSERT INTO rtu_events").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	svc := NewService(postgres.NewTxManager(mock), NewRepository(mock), nil)
	_, err = svc.ApplyDelta(t.Context(), delta("10", "5"))

	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
