package worker

// receipt_worker.go
// Processes receipt notification jobs from QueueReceipt: loads the completed
// transaction and POSTs the receipt payload to the collaborator webhook.
// At-least-once — the collaborator deduplicates by transaction id.

import (
	"context"
	"encoding/json"
	"fmt"

	"tillpos/internal/infra"
	"tillpos/internal/model"
	"tillpos/internal/repository"
	"tillpos/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ReceiptWorker delivers completed-transaction notifications.
type ReceiptWorker struct {
	hook *infra.ReceiptHookClient
	repo repository.TransactionRepository
}

func NewReceiptWorker(hook *infra.ReceiptHookClient, repo repository.TransactionRepository) *ReceiptWorker {
	return &ReceiptWorker{hook: hook, repo: repo}
}

// receiptPayload is the webhook body. It is a snapshot of the completed
// transaction, self-contained so the collaborator needs no follow-up reads.
type receiptPayload struct {
	TransactionID string          `json:"transaction_id"`
	Number        string          `json:"number"`
	Type          string          `json:"type"`
	SessionID     string          `json:"session_id"`
	Lines         []receiptLine   `json:"lines"`
	Tenders       []receiptTender `json:"tenders"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	ChangeDue     decimal.Decimal `json:"change_due"`
}

type receiptLine struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Discount  decimal.Decimal `json:"discount"`
	Tax       decimal.Decimal `json:"tax"`
	Serials   []string        `json:"serials,omitempty"`
}

type receiptTender struct {
	Method      string           `json:"method"`
	Amount      decimal.Decimal  `json:"amount"`
	ChangeGiven *decimal.Decimal `json:"change_given,omitempty"`
}

// Process handles a single receipt job:
//  1. Parse ReceiptJobPayload from the job envelope
//  2. Fetch the completed transaction (with items and payments)
//  3. POST the receipt payload to the collaborator webhook
//
// Returning an error requeues the job (up to maxAttempts, then DLQ).
func (w *ReceiptWorker) Process(ctx context.Context, job Job) error {
	var payload ReceiptJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		// Malformed payloads never succeed; drop instead of looping.
		log.Error().Err(err).Msg("receipt_worker: invalid payload")
		return nil
	}
	transactionID, err := uuid.Parse(payload.TransactionID)
	if err != nil {
		log.Error().Str("transaction_id", payload.TransactionID).Msg("receipt_worker: invalid transaction_id")
		return nil
	}

	txn, err := w.repo.FindByID(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("receipt_worker: load transaction: %w", err)
	}
	if txn.Status != model.TxnCompleted {
		// Completion was rolled back after the enqueue raced it, or the job
		// is stale. Nothing to print.
		log.Warn().Str("transaction_id", payload.TransactionID).Str("status", txn.Status).
			Msg("receipt_worker: transaction not completed, skipping")
		return nil
	}

	totals := service.ComputeTotals(txn.Items, txn.Payments)
	body := receiptPayload{
		TransactionID: txn.ID.String(),
		Number:        txn.Number,
		Type:          txn.Type,
		SessionID:     txn.SessionID.String(),
		Subtotal:      totals.Subtotal,
		Tax:           totals.Tax,
		GrandTotal:    totals.GrandTotal,
		ChangeDue:     totals.ChangeDue,
	}
	for i := range txn.Items {
		item := &txn.Items[i]
		line := receiptLine{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Discount:  item.Discount,
			Tax:       item.TaxAmount,
		}
		for j := range item.Serials {
			line.Serials = append(line.Serials, item.Serials[j].SerialNumber)
		}
		body.Lines = append(body.Lines, line)
	}
	for i := range txn.Payments {
		p := &txn.Payments[i]
		body.Tenders = append(body.Tenders, receiptTender{
			Method:      p.Method,
			Amount:      p.Amount,
			ChangeGiven: p.ChangeGiven,
		})
	}

	if err := w.hook.Deliver(ctx, body); err != nil {
		return fmt.Errorf("receipt_worker: deliver: %w", err)
	}
	log.Info().Str("transaction_id", txn.ID.String()).Str("number", txn.Number).
		Msg("receipt_worker: notification delivered")
	return nil
}
