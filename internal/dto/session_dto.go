package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OpenSessionRequest struct {
	Register     string          `json:"register"      validate:"required,min=1,max=40"`
	StartingCash decimal.Decimal `json:"starting_cash" validate:"min=0"`
	OpeningNote  *string         `json:"opening_note"`
}

type CloseSessionRequest struct {
	CountedCash decimal.Decimal `json:"counted_cash" validate:"min=0"`
	ClosingNote *string         `json:"closing_note"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SessionCounters struct {
	TransactionCount  int             `json:"transaction_count"`
	TotalSales        decimal.Decimal `json:"total_sales"`
	TotalRefunds      decimal.Decimal `json:"total_refunds"`
	TotalCashPayments decimal.Decimal `json:"total_cash_payments"`
	TotalCashRefunds  decimal.Decimal `json:"total_cash_refunds"`
	TotalChangeGiven  decimal.Decimal `json:"total_change_given"`
}

type SessionResponse struct {
	ID           string          `json:"id"`
	Register     string          `json:"register"`
	OpenedBy     string          `json:"opened_by"`
	ClosedBy     *string         `json:"closed_by,omitempty"`
	StartingCash decimal.Decimal `json:"starting_cash"`
	OpeningNote  *string         `json:"opening_note,omitempty"`
	ClosingNote  *string         `json:"closing_note,omitempty"`
	Counters     SessionCounters `json:"counters"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
	Status       string          `json:"status"`
	OpenedAt     string          `json:"opened_at"`
	ClosedAt     *string         `json:"closed_at,omitempty"`
}

// ClosingReport is the reconciliation snapshot produced exactly once at close.
type ClosingReport struct {
	SessionID      string          `json:"session_id"`
	Register       string          `json:"register"`
	StartingCash   decimal.Decimal `json:"starting_cash"`
	ExpectedCash   decimal.Decimal `json:"expected_cash"`
	CountedCash    decimal.Decimal `json:"counted_cash"`
	Difference     decimal.Decimal `json:"difference"`
	Reconciliation string          `json:"reconciliation"` // balanced | over | short
	Counters       SessionCounters `json:"counters"`
	ClosedAt       string          `json:"closed_at"`
}

type SessionListResponse struct {
	Data  []SessionResponse `json:"data"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}
