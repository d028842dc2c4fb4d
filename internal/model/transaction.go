package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction lifecycle states. There is no durable "created" state — an
// empty cart is simply an open transaction with zero items.
const (
	TxnOpen      = "open"
	TxnCompleted = "completed"
	TxnVoided    = "voided"
)

// Transaction types.
const (
	TxnTypeSale        = "sale"
	TxnTypeActivation  = "activation"
	TxnTypeBillPayment = "bill_payment"
	TxnTypeReturn      = "return"
)

// Payment methods.
const (
	PayCash   = "cash"
	PayCredit = "credit"
	PayDebit  = "debit"
	PayCheck  = "check"
)

// Transaction is one customer interaction under an open session. Totals are
// never stored — they are recomputed from Items and Payments on every read so
// they cannot drift.
type Transaction struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Number     string     `gorm:"type:varchar(40);not null;uniqueIndex"`
	Type       string     `gorm:"type:varchar(20);not null"`
	SessionID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	CustomerID *uuid.UUID `gorm:"type:uuid;index"`
	Status     string     `gorm:"type:varchar(20);not null;default:'open'"`
	CreatedBy  uuid.UUID  `gorm:"type:uuid;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ClosedAt   *time.Time

	Items    []TransactionItem `gorm:"foreignKey:TransactionID"`
	Payments []Payment         `gorm:"foreignKey:TransactionID"`
}

// Terminal reports whether the transaction can no longer be mutated.
func (t *Transaction) Terminal() bool {
	return t.Status == TxnCompleted || t.Status == TxnVoided
}

// TransactionItem is one cart line. Name, price and tax flags are snapshots
// copied from the catalog at add time so later catalog edits do not
// retroactively change history.
type TransactionItem struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TransactionID uuid.UUID `gorm:"type:uuid;not null;index"`
	ItemType      string    `gorm:"type:varchar(20);not null"` // inventory | plan
	CatalogItemID uuid.UUID `gorm:"type:uuid;not null"`
	Name          string    `gorm:"not null"`
	Description   *string
	SerialTracked bool            `gorm:"not null;default:false"`
	TaxCode       string          `gorm:"type:varchar(20);not null;default:''"`
	Quantity      int             `gorm:"not null"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Discount      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TaxAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	CreatedAt     time.Time

	Serials []InventorySerial `gorm:"foreignKey:TransactionItemID"`
}

// LineSubtotal is quantity × unit price − discount, tax excluded.
func (i *TransactionItem) LineSubtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Sub(i.Discount)
}

// Payment is one tender applied to a transaction. Immutable once added —
// corrections are made by voiding the transaction, never by editing a payment.
// Method-specific fields form a tagged variant: only the columns valid for
// the method are populated.
type Payment struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	TransactionID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Method        string          `gorm:"type:varchar(20);not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	// cash: Amount is the tendered amount; ChangeGiven is derived at add time.
	ChangeGiven *decimal.Decimal `gorm:"type:decimal(12,2)"`
	// credit / debit
	AuthCode     *string `gorm:"type:varchar(40)"`
	CardLastFour *string `gorm:"type:varchar(4)"`
	// check
	CheckNumber *string `gorm:"type:varchar(40)"`

	CreatedAt time.Time
}

// Applied is the portion of the payment that counts toward the balance:
// tendered amount minus any change returned.
func (p *Payment) Applied() decimal.Decimal {
	if p.ChangeGiven != nil {
		return p.Amount.Sub(*p.ChangeGiven)
	}
	return p.Amount
}
