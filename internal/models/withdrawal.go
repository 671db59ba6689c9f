package models

import (
	"time"
)

// Withdrawal statuses. PAID, FAILED and CANCELED are terminal.
const (
	WithdrawalPending    = "PENDING"
	WithdrawalProcessing = "PROCESSING"
	WithdrawalPaid       = "PAID"
	WithdrawalFailed     = "FAILED"
	WithdrawalCanceled   = "CANCELED"
)

// LegalTransitions maps a withdrawal status to the statuses it may move to.
// Terminal statuses map to an empty set.
var LegalTransitions = map[string][]string{
	WithdrawalPending:    {WithdrawalProcessing, WithdrawalCanceled},
	WithdrawalProcessing: {WithdrawalPaid, WithdrawalFailed},
	WithdrawalPaid:       {},
	WithdrawalFailed:     {},
	WithdrawalCanceled:   {},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to string) bool {
	for _, next := range LegalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether no further transitions are legal.
func IsTerminalStatus(status string) bool {
	next, ok := LegalTransitions[status]
	return ok && len(next) == 0
}

// Withdrawal is a merchant request to move wallet funds to a bank rail.
// Amount is fixed at creation; only status ever changes afterwards.
type Withdrawal struct {
	ID            int       `json:"id" db:"id"`
	StoreID       string    `json:"store_id" db:"store_id"`
	Reference     string    `json:"reference" db:"reference"`
	Amount        int64     `json:"amount" db:"amount"` // net, minor unit
	Currency      string    `json:"currency" db:"currency"`
	Status        string    `json:"status" db:"status"`
	BankName      string    `json:"bank_name" db:"bank_name"`
	BankCode      string    `json:"bank_code" db:"bank_code"`
	AccountNumber string    `json:"account_number" db:"account_number"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// AuditEvent is one immutable record of a privileged state change.
type AuditEvent struct {
	ID        int       `json:"id" db:"id"`
	StoreID   string    `json:"store_id" db:"store_id"`
	ActorID   string    `json:"actor_id" db:"actor_id"`
	EventType string    `json:"event_type" db:"event_type"`
	Payload   Metadata  `json:"payload" db:"payload"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
