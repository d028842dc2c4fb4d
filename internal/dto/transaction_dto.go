package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type CreateTransactionRequest struct {
	SessionID  string  `json:"session_id"  validate:"required,uuid"`
	Type       string  `json:"type"        validate:"required,oneof=sale activation bill_payment return"`
	CustomerID *string `json:"customer_id" validate:"omitempty,uuid"`
}

type AddItemRequest struct {
	CatalogItemID string          `json:"catalog_item_id" validate:"required,uuid"`
	Quantity      int             `json:"quantity"        validate:"required,min=1"`
	Discount      decimal.Decimal `json:"discount"        validate:"min=0"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

// CardDetails and CheckDetails form the tagged per-method payment payload:
// each method carries only the fields valid for it. Cash needs no extra
// fields — the amount is the tendered amount and change is derived, never
// settable.
type CardDetails struct {
	AuthCode string `json:"auth_code" validate:"required,min=2,max=40"`
	LastFour string `json:"last_four" validate:"required,len=4,numeric"`
}

type CheckDetails struct {
	CheckNumber string `json:"check_number" validate:"required,min=1,max=40"`
}

type AddPaymentRequest struct {
	Method string          `json:"method" validate:"required,oneof=cash credit debit check"`
	Amount decimal.Decimal `json:"amount" validate:"required,gt=0"`
	Card   *CardDetails    `json:"card,omitempty"`
	Check  *CheckDetails   `json:"check,omitempty"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type ItemResponse struct {
	ID            string          `json:"id"`
	ItemType      string          `json:"item_type"`
	CatalogItemID string          `json:"catalog_item_id"`
	Name          string          `json:"name"`
	Description   *string         `json:"description,omitempty"`
	SerialTracked bool            `json:"serial_tracked"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Discount      decimal.Decimal `json:"discount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Serials       []string        `json:"serials,omitempty"`
}

type PaymentResponse struct {
	ID          string           `json:"id"`
	Method      string           `json:"method"`
	Amount      decimal.Decimal  `json:"amount"`
	ChangeGiven *decimal.Decimal `json:"change_given,omitempty"`
	AuthCode    *string          `json:"auth_code,omitempty"`
	LastFour    *string          `json:"last_four,omitempty"`
	CheckNumber *string          `json:"check_number,omitempty"`
	CreatedAt   string           `json:"created_at"`
}

// Totals is the Payment Accumulator output, recomputed on every read.
type Totals struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	GrandTotal      decimal.Decimal `json:"grand_total"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	AmountRemaining decimal.Decimal `json:"amount_remaining"`
	ChangeDue       decimal.Decimal `json:"change_due"`
}

type TransactionResponse struct {
	ID         string            `json:"id"`
	Number     string            `json:"number"`
	Type       string            `json:"type"`
	SessionID  string            `json:"session_id"`
	CustomerID *string           `json:"customer_id,omitempty"`
	Status     string            `json:"status"`
	Items      []ItemResponse    `json:"items"`
	Payments   []PaymentResponse `json:"payments"`
	Totals     Totals            `json:"totals"`
	CreatedAt  string            `json:"created_at"`
	ClosedAt   *string           `json:"closed_at,omitempty"`
}
