package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/vendora/backend/internal/models"
)

func TestEntrySpecs(t *testing.T) {
	txTypes := []string{
		TxTypePayment, TxTypePayout, TxTypeRefund,
		TxTypeAdjustment, TxTypePayoutReversal, TxTypePayoutSettlement,
	}

	for _, txType := range txTypes {
		t.Run(txType, func(t *testing.T) {
			specs := entrySpecs(txType, 5000)
			assert.Len(t, specs, 2)

			var sum int64
			for _, spec := range specs {
				assert.Greater(t, spec.Amount, int64(0))
				signed := spec.Amount
				if spec.Direction == models.DirectionDebit {
					signed = -signed
				}
				sum += signed
			}
			assert.Equal(t, int64(0), sum, "entry pair must balance to zero")
		})
	}

	t.Run("unknown type", func(t *testing.T) {
		assert.Nil(t, entrySpecs("CHARGEBACK", 5000))
	})
}

func TestLedgerService_RecordTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("payment credits wallet", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectExec("INSERT INTO wallets").
			WithArgs("st_abc123", int64(10000), int64(0), "NGN").
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("st_abc123", "order", "ord_1", models.AccountWalletAvailable, models.DirectionCredit,
				int64(10000), "NGN", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("st_abc123", "order", "ord_1", models.AccountSalesRevenue, models.DirectionDebit,
				int64(10000), "NGN", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(2, 1))

		mock.ExpectCommit()

		err := service.RecordTransaction(context.Background(), &TransactionRequest{
			StoreID:       "st_abc123",
			Type:          TxTypePayment,
			Amount:        10000,
			Currency:      "NGN",
			ReferenceType: "order",
			ReferenceID:   "ord_1",
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("payout debits wallet and moves funds to pending", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectExec("UPDATE wallets").
			WithArgs(int64(30000), int64(30000), "st_abc123").
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("st_abc123", "payout", "WD-1", models.AccountWalletAvailable, models.DirectionDebit,
				int64(30000), "NGN", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("st_abc123", "payout", "WD-1", models.AccountPayoutPending, models.DirectionCredit,
				int64(30000), "NGN", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(2, 1))

		mock.ExpectCommit()

		err := service.RecordTransaction(context.Background(), &TransactionRequest{
			StoreID:       "st_abc123",
			Type:          TxTypePayout,
			Amount:        30000,
			Currency:      "NGN",
			ReferenceType: "payout",
			ReferenceID:   "WD-1",
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("payout exceeding balance rolls back", func(t *testing.T) {
		mock.ExpectBegin()

		// Guarded update matches no row: balance too low.
		mock.ExpectExec("UPDATE wallets").
			WithArgs(int64(120000), int64(120000), "st_abc123").
			WillReturnResult(sqlmock.NewResult(0, 0))

		mock.ExpectRollback()

		err := service.RecordTransaction(context.Background(), &TransactionRequest{
			StoreID:       "st_abc123",
			Type:          TxTypePayout,
			Amount:        120000,
			Currency:      "NGN",
			ReferenceType: "payout",
			ReferenceID:   "WD-2",
		})
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("entry insert failure rolls back", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectExec("INSERT INTO wallets").
			WithArgs("st_abc123", int64(10000), int64(0), "NGN").
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnError(errors.New("connection reset"))

		mock.ExpectRollback()

		err := service.RecordTransaction(context.Background(), &TransactionRequest{
			StoreID:       "st_abc123",
			Type:          TxTypePayment,
			Amount:        10000,
			Currency:      "NGN",
			ReferenceType: "order",
			ReferenceID:   "ord_2",
		})
		assert.Error(t, err)
		var storageErr *StorageError
		assert.ErrorAs(t, err, &storageErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects zero amount", func(t *testing.T) {
		err := service.RecordTransaction(context.Background(), &TransactionRequest{
			StoreID:       "st_abc123",
			Type:          TxTypePayment,
			Amount:        0,
			Currency:      "NGN",
			ReferenceType: "order",
			ReferenceID:   "ord_3",
		})
		assert.Error(t, err)
	})

	t.Run("rejects unknown transaction type", func(t *testing.T) {
		err := service.RecordTransaction(context.Background(), &TransactionRequest{
			StoreID:       "st_abc123",
			Type:          "CHARGEBACK",
			Amount:        10000,
			Currency:      "NGN",
			ReferenceType: "order",
			ReferenceID:   "ord_4",
		})
		assert.Error(t, err)
	})
}

func TestLedgerService_GetBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("existing wallet", func(t *testing.T) {
		mock.ExpectQuery("SELECT store_id, available_balance, pending_balance, currency, kyc_status, updated_at").
			WithArgs("st_abc123").
			WillReturnRows(sqlmock.NewRows([]string{"store_id", "available_balance", "pending_balance", "currency", "kyc_status", "updated_at"}).
				AddRow("st_abc123", 70000, 30000, "NGN", "VERIFIED", time.Now()))

		wallet, err := service.GetBalance(context.Background(), "st_abc123")
		assert.NoError(t, err)
		assert.Equal(t, int64(70000), wallet.AvailableBalance)
		assert.Equal(t, int64(30000), wallet.PendingBalance)
		assert.Equal(t, "NGN", wallet.Currency)
	})

	t.Run("unknown store gets zero wallet", func(t *testing.T) {
		mock.ExpectQuery("SELECT store_id, available_balance, pending_balance, currency, kyc_status, updated_at").
			WithArgs("st_never").
			WillReturnError(sql.ErrNoRows)

		wallet, err := service.GetBalance(context.Background(), "st_never")
		assert.NoError(t, err)
		assert.Equal(t, int64(0), wallet.AvailableBalance)
		assert.Equal(t, int64(0), wallet.PendingBalance)
		assert.Equal(t, "st_never", wallet.StoreID)
	})
}
