package models

import (
	"time"
)

// Metadata is the typed key-value blob stored alongside ledger entries.
// Keys are use-site specific (e.g. "gateway_event_id", "ip_address").
type Metadata map[string]string

// Ledger account names. Balances are the CREDIT-minus-DEBIT sum of all
// entries for a store on a given account.
const (
	AccountWalletAvailable = "wallet_available"
	AccountSalesRevenue    = "sales_revenue"
	AccountPayoutPending   = "payout_pending"
	AccountPayoutSettled   = "payout_settled"
	AccountAdjustments     = "adjustments"
)

const (
	DirectionDebit  = "DEBIT"
	DirectionCredit = "CREDIT"
)

type LedgerEntry struct {
	ID            int       `json:"id" db:"id"`
	StoreID       string    `json:"store_id" db:"store_id"`
	ReferenceType string    `json:"reference_type" db:"reference_type"` // order | payout | refund | adjustment
	ReferenceID   string    `json:"reference_id" db:"reference_id"`
	Account       string    `json:"account" db:"account"`
	Direction     string    `json:"direction" db:"direction"` // DEBIT or CREDIT
	Amount        int64     `json:"amount" db:"amount"`       // minor unit (kobo)
	Currency      string    `json:"currency" db:"currency"`
	Description   string    `json:"description" db:"description"`
	Metadata      Metadata  `json:"metadata" db:"metadata"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Signed returns the entry amount with CREDIT positive and DEBIT negative.
func (e *LedgerEntry) Signed() int64 {
	if e.Direction == DirectionDebit {
		return -e.Amount
	}
	return e.Amount
}

// Wallet is the materialized balance projection for one store. It is
// mutated only by the ledger service as part of an entry write.
type Wallet struct {
	StoreID          string    `json:"store_id" db:"store_id"`
	AvailableBalance int64     `json:"available_balance" db:"available_balance"` // minor unit
	PendingBalance   int64     `json:"pending_balance" db:"pending_balance"`     // minor unit
	Currency         string    `json:"currency" db:"currency"`
	KYCStatus        string    `json:"kyc_status" db:"kyc_status"`
	PayoutBankName   string    `json:"payout_bank_name" db:"payout_bank_name"`
	PayoutBankCode   string    `json:"payout_bank_code" db:"payout_bank_code"`
	PayoutAccountNo  string    `json:"payout_account_number" db:"payout_account_number"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}
