package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Session lifecycle states.
const (
	SessionOpen   = "open"
	SessionClosed = "closed"
)

// Reconciliation outcome at close.
const (
	ReconBalanced = "balanced"
	ReconOver     = "over"
	ReconShort    = "short"
)

// Session represents one till/register working period, bracketed by a cash
// count at open and close. Closed sessions are audit records: never reopened,
// never deleted.
type Session struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Register     string          `gorm:"type:varchar(40);not null;index"`
	OpenedBy     uuid.UUID       `gorm:"type:uuid;not null;index"`
	ClosedBy     *uuid.UUID      `gorm:"type:uuid"`
	StartingCash decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	OpeningNote  *string
	ClosingNote  *string

	// Running counters — mutated only by completed-transaction rollups while
	// the session is open, frozen at close.
	TransactionCount  int             `gorm:"not null;default:0"`
	TotalSales        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalRefunds      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalCashPayments decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalCashRefunds  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TotalChangeGiven  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`

	// NextTicket feeds the session-scoped transaction number sequence.
	NextTicket int `gorm:"not null;default:0"`

	// Closing snapshot — populated exactly once at close.
	CountedCash    *decimal.Decimal `gorm:"type:decimal(12,2)"`
	ExpectedCash   *decimal.Decimal `gorm:"type:decimal(12,2)"`
	CashDifference *decimal.Decimal `gorm:"type:decimal(12,2)"`
	Reconciliation *string          `gorm:"type:varchar(20)"` // balanced | over | short

	Status   string `gorm:"type:varchar(20);not null;default:'open'"`
	OpenedAt time.Time
	ClosedAt *time.Time
}

// SessionRollup is the idempotency record for recordCompletedTransaction.
// One row per completed transaction; the unique index on transaction_id is
// what makes a retried rollup a no-op instead of a double count.
type SessionRollup struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	TransactionID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	Type          string          `gorm:"type:varchar(20);not null"` // transaction type at completion
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CashAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ChangeGiven   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt     time.Time
}

// TableName overrides GORM's default pluralization.
func (SessionRollup) TableName() string { return "session_rollups" }
