package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chainvoice/internal/types"
)

func TestLedgerRepo_MonthlyVolume(t *testing.T) {
	db := new(mockDBTX)
	repo := NewLedgerRepo(db)

	periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"),
		[]any{"pid_1", types.TxStatusSettled, periodStart, periodEnd}).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*decimal.Decimal) = decimal.NewFromFloat(1234.56)
			return nil
		}})

	volume, err := repo.MonthlyVolume(context.Background(), "pid_1", periodStart, periodEnd)
	require.NoError(t, err)
	assert.True(t, volume.Equal(decimal.NewFromFloat(1234.56)))
	db.AssertExpectations(t)
}

func TestLedgerRepo_MonthlyVolume_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewLedgerRepo(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection refused")})

	volume, err := repo.MonthlyVolume(context.Background(), "pid_1", time.Now(), time.Now())
	require.Error(t, err)
	assert.True(t, volume.IsZero())

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestLedgerRepo_RecordSettlement(t *testing.T) {
	db := new(mockDBTX)
	repo := NewLedgerRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.RecordSettlement(context.Background(), &types.Transaction{
		ID:                "txn_1",
		PrimaryIdentityID: "pid_1",
		Amount:            decimal.NewFromInt(250),
		Currency:          "USD",
		Status:            types.TxStatusSettled,
		CreatedAt:         time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestLedgerRepo_RecordSettlement_DuplicateIsNoOp(t *testing.T) {
	db := new(mockDBTX)
	repo := NewLedgerRepo(db)

	// ON CONFLICT DO NOTHING: the driver reports zero rows, not an error.
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	err := repo.RecordSettlement(context.Background(), &types.Transaction{
		ID: "txn_1", PrimaryIdentityID: "pid_1", Amount: decimal.NewFromInt(250),
	})
	require.NoError(t, err)
}

func TestLedgerRepo_RecordSettlement_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewLedgerRepo(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.RecordSettlement(context.Background(), &types.Transaction{ID: "txn_1"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
