package service

import (
	"tillpos/internal/dto"
	"tillpos/internal/model"

	"github.com/shopspring/decimal"
)

// totals.go — the payment accumulator. Pure functions over a transaction's
// items and payments; no storage, no side effects. Totals are recomputed on
// every read so a stored figure can never drift from the lines it summarizes.

// ComputeTotals derives all monetary figures for a transaction.
//
//	subtotal   = Σ (quantity × unit_price − discount)
//	tax        = Σ tax_amount            (quoted per line by the tax resolver)
//	grandTotal = subtotal + tax
func ComputeTotals(items []model.TransactionItem, payments []model.Payment) dto.Totals {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for i := range items {
		subtotal = subtotal.Add(items[i].LineSubtotal())
		tax = tax.Add(items[i].TaxAmount)
	}
	grandTotal := subtotal.Add(tax)

	paid := decimal.Zero
	change := decimal.Zero
	for i := range payments {
		paid = paid.Add(payments[i].Applied())
		if payments[i].ChangeGiven != nil {
			change = change.Add(*payments[i].ChangeGiven)
		}
	}

	remaining := grandTotal.Sub(paid)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	return dto.Totals{
		Subtotal:        subtotal.Round(2),
		Tax:             tax.Round(2),
		GrandTotal:      grandTotal.Round(2),
		AmountPaid:      paid.Round(2),
		AmountRemaining: remaining.Round(2),
		ChangeDue:       change.Round(2),
	}
}

// ChangeForTender returns the change owed on a cash tender against the
// balance outstanding before the tender: max(0, tendered − outstanding).
func ChangeForTender(tendered, outstanding decimal.Decimal) decimal.Decimal {
	change := tendered.Sub(outstanding)
	if change.IsNegative() {
		return decimal.Zero
	}
	return change.Round(2)
}

// ExpectedCash computes the drawer expectation from a session's counters:
// starting float, plus cash taken in, minus change handed back and cash
// refunded on return transactions.
func ExpectedCash(s *model.Session) decimal.Decimal {
	return s.StartingCash.
		Add(s.TotalCashPayments).
		Sub(s.TotalChangeGiven).
		Sub(s.TotalCashRefunds).
		Round(2)
}

// centEpsilon is the smallest representable cash difference; anything below
// it counts as balanced at session close.
var centEpsilon = decimal.New(1, -2)

// ClassifyDifference maps counted − expected onto the reconciliation outcome.
func ClassifyDifference(difference decimal.Decimal) string {
	switch {
	case difference.Abs().LessThan(centEpsilon):
		return model.ReconBalanced
	case difference.IsPositive():
		return model.ReconOver
	default:
		return model.ReconShort
	}
}
