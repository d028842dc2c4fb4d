package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tillpos/internal/apierror"
	"tillpos/internal/dto"
	"tillpos/internal/metrics"
	"tillpos/internal/model"
	"tillpos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CatalogSnapshot is the point-in-time copy of a catalog entry taken when an
// item is added to a cart. Later catalog edits never change history.
type CatalogSnapshot struct {
	ID            uuid.UUID
	Name          string
	Description   *string
	ItemType      string // inventory | plan
	UnitPrice     decimal.Decimal
	SerialTracked bool
	TaxCode       string
}

// CatalogStore supplies catalog snapshots; implemented by the catalog
// collaborator client.
type CatalogStore interface {
	Snapshot(ctx context.Context, catalogItemID uuid.UUID) (*CatalogSnapshot, error)
}

// TaxLine is one line submitted for a tax quote.
type TaxLine struct {
	CatalogItemID uuid.UUID
	TaxCode       string
	NetAmount     decimal.Decimal
}

// TaxResolver quotes tax per line. The engine never computes tax itself.
type TaxResolver interface {
	Quote(ctx context.Context, line TaxLine) (decimal.Decimal, error)
}

// ReceiptNotifier is told about completed transactions after the storage
// transaction has committed. At-least-once: consumers deduplicate by
// transaction id.
type ReceiptNotifier interface {
	NotifyCompleted(ctx context.Context, transactionID uuid.UUID) error
}

type TransactionService interface {
	Create(ctx context.Context, operatorID uuid.UUID, req dto.CreateTransactionRequest) (*dto.TransactionResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.TransactionResponse, error)
	AddItem(ctx context.Context, transactionID uuid.UUID, req dto.AddItemRequest) (*dto.TransactionResponse, error)
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) (*dto.TransactionResponse, error)
	RemoveItem(ctx context.Context, itemID uuid.UUID) (*dto.TransactionResponse, error)
	ClaimSerial(ctx context.Context, itemID uuid.UUID, tag string) (*dto.TransactionResponse, error)
	ClaimSerialCount(ctx context.Context, itemID uuid.UUID, count int) (*dto.TransactionResponse, error)
	ReleaseSerials(ctx context.Context, itemID uuid.UUID) (*dto.TransactionResponse, error)
	AddPayment(ctx context.Context, transactionID uuid.UUID, req dto.AddPaymentRequest) (*dto.TransactionResponse, error)
	Complete(ctx context.Context, transactionID, operatorID uuid.UUID) (*dto.TransactionResponse, error)
	Void(ctx context.Context, transactionID uuid.UUID) (*dto.TransactionResponse, error)
}

type transactionService struct {
	repo     repository.TransactionRepository
	sessions SessionService
	serials  SerialService
	catalog  CatalogStore
	tax      TaxResolver
	notifier ReceiptNotifier
}

func NewTransactionService(
	repo repository.TransactionRepository,
	sessions SessionService,
	serials SerialService,
	catalog CatalogStore,
	tax TaxResolver,
	notifier ReceiptNotifier,
) TransactionService {
	return &transactionService{
		repo:     repo,
		sessions: sessions,
		serials:  serials,
		catalog:  catalog,
		tax:      tax,
		notifier: notifier,
	}
}

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// ── Create ────────────────────────────────────────────────────────────────────

func (s *transactionService) Create(ctx context.Context, operatorID uuid.UUID, req dto.CreateTransactionRequest) (*dto.TransactionResponse, error) {
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return nil, apierror.Validation("session_id is not a valid uuid")
	}
	session, err := s.sessions.FindOpen(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var customerID *uuid.UUID
	if req.CustomerID != nil {
		cid, err := uuid.Parse(*req.CustomerID)
		if err != nil {
			return nil, apierror.Validation("customer_id is not a valid uuid")
		}
		customerID = &cid
	}

	var txn model.Transaction
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		seq, err := s.sessions.NextTicket(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		txn = model.Transaction{
			Number:     fmt.Sprintf("%s-%04d", strings.ToUpper(session.Register), seq),
			Type:       req.Type,
			SessionID:  sessionID,
			CustomerID: customerID,
			Status:     model.TxnOpen,
			CreatedBy:  operatorID,
		}
		return s.repo.CreateTx(ctx, tx, &txn)
	})
	if txErr != nil {
		if apierror.KindOf(txErr) != apierror.KindInternal {
			return nil, txErr
		}
		return nil, apierror.Internal("could not create transaction", txErr)
	}
	return transactionToResponse(&txn), nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (s *transactionService) Get(ctx context.Context, id uuid.UUID) (*dto.TransactionResponse, error) {
	txn, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apierror.NotFound("transaction %s not found", id)
	}
	return transactionToResponse(txn), nil
}

// ── AddItem ───────────────────────────────────────────────────────────────────

func (s *transactionService) AddItem(ctx context.Context, transactionID uuid.UUID, req dto.AddItemRequest) (*dto.TransactionResponse, error) {
	catalogItemID, err := uuid.Parse(req.CatalogItemID)
	if err != nil {
		return nil, apierror.Validation("catalog_item_id is not a valid uuid")
	}
	if req.Quantity < 1 {
		return nil, apierror.Validation("quantity must be at least 1")
	}
	if req.Discount.IsNegative() {
		return nil, apierror.Validation("discount must not be negative")
	}

	// Collaborator round-trips happen before the storage transaction so a
	// slow catalog or tax lookup never holds row locks.
	snap, err := s.catalog.Snapshot(ctx, catalogItemID)
	if err != nil {
		return nil, err
	}
	if snap.UnitPrice.IsNegative() {
		return nil, apierror.Validation("catalog item %s has a negative price", snap.Name)
	}
	net := snap.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity))).Sub(req.Discount)
	if net.IsNegative() {
		return nil, apierror.Validation("discount exceeds the line amount")
	}
	taxAmount, err := s.tax.Quote(ctx, TaxLine{CatalogItemID: catalogItemID, TaxCode: snap.TaxCode, NetAmount: net})
	if err != nil {
		return nil, err
	}

	item := model.TransactionItem{
		TransactionID: transactionID,
		ItemType:      snap.ItemType,
		CatalogItemID: catalogItemID,
		Name:          snap.Name,
		Description:   snap.Description,
		SerialTracked: snap.SerialTracked,
		TaxCode:       snap.TaxCode,
		Quantity:      req.Quantity,
		UnitPrice:     snap.UnitPrice,
		Discount:      req.Discount,
		TaxAmount:     taxAmount,
	}

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		txn, err := s.lockOpen(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		item.TransactionID = txn.ID
		return s.repo.CreateItemTx(ctx, tx, &item)
	})
	if txErr != nil {
		return nil, txErr
	}
	return s.Get(ctx, transactionID)
}

// ── UpdateItemQuantity / RemoveItem ───────────────────────────────────────────

func (s *transactionService) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) (*dto.TransactionResponse, error) {
	if quantity < 1 {
		return nil, apierror.Validation("quantity must be at least 1")
	}
	item, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		return nil, apierror.NotFound("item %s not found", itemID)
	}

	net := item.UnitPrice.Mul(decimal.NewFromInt(int64(quantity))).Sub(item.Discount)
	if net.IsNegative() {
		return nil, apierror.Validation("discount exceeds the line amount")
	}
	taxAmount, err := s.tax.Quote(ctx, TaxLine{CatalogItemID: item.CatalogItemID, TaxCode: item.TaxCode, NetAmount: net})
	if err != nil {
		return nil, err
	}

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if _, err := s.lockOpen(ctx, tx, item.TransactionID); err != nil {
			return err
		}
		claimed, err := s.serials.ClaimedCountTx(ctx, tx, itemID)
		if err != nil {
			return apierror.Internal("could not count claimed serials", err)
		}
		if claimed > int64(quantity) {
			// Shrinking below the claimed count would strand claims; the
			// operator re-scans after the release.
			if _, err := s.serials.ReleaseTx(ctx, tx, itemID); err != nil {
				return apierror.Internal("could not release serials", err)
			}
		}
		return s.repo.UpdateItemTx(ctx, tx, itemID, quantity, taxAmount)
	})
	if txErr != nil {
		return nil, txErr
	}
	return s.Get(ctx, item.TransactionID)
}

func (s *transactionService) RemoveItem(ctx context.Context, itemID uuid.UUID) (*dto.TransactionResponse, error) {
	item, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		return nil, apierror.NotFound("item %s not found", itemID)
	}
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if _, err := s.lockOpen(ctx, tx, item.TransactionID); err != nil {
			return err
		}
		if _, err := s.serials.ReleaseTx(ctx, tx, itemID); err != nil {
			return apierror.Internal("could not release serials", err)
		}
		return s.repo.DeleteItemTx(ctx, tx, itemID)
	})
	if txErr != nil {
		return nil, txErr
	}
	return s.Get(ctx, item.TransactionID)
}

// ── Serial capture ────────────────────────────────────────────────────────────

func (s *transactionService) ClaimSerial(ctx context.Context, itemID uuid.UUID, tag string) (*dto.TransactionResponse, error) {
	item, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		return nil, apierror.NotFound("item %s not found", itemID)
	}
	if !item.SerialTracked {
		return nil, apierror.Validation("item %q is not serial-tracked", item.Name)
	}
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if _, err := s.lockOpen(ctx, tx, item.TransactionID); err != nil {
			return err
		}
		claimed, err := s.serials.ClaimedCountTx(ctx, tx, itemID)
		if err != nil {
			return apierror.Internal("could not count claimed serials", err)
		}
		if claimed >= int64(item.Quantity) {
			return apierror.Validation("item %q already has %d of %d serials", item.Name, claimed, item.Quantity)
		}
		return s.serials.ClaimTx(ctx, tx, item.CatalogItemID, itemID, tag)
	})
	if txErr != nil {
		return nil, txErr
	}
	return s.Get(ctx, item.TransactionID)
}

func (s *transactionService) ClaimSerialCount(ctx context.Context, itemID uuid.UUID, count int) (*dto.TransactionResponse, error) {
	item, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		return nil, apierror.NotFound("item %s not found", itemID)
	}
	if !item.SerialTracked {
		return nil, apierror.Validation("item %q is not serial-tracked", item.Name)
	}
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if _, err := s.lockOpen(ctx, tx, item.TransactionID); err != nil {
			return err
		}
		claimed, err := s.serials.ClaimedCountTx(ctx, tx, itemID)
		if err != nil {
			return apierror.Internal("could not count claimed serials", err)
		}
		if claimed+int64(count) > int64(item.Quantity) {
			return apierror.Validation("claiming %d would exceed item quantity %d", count, item.Quantity)
		}
		return s.serials.ClaimCountTx(ctx, tx, item.CatalogItemID, itemID, count)
	})
	if txErr != nil {
		return nil, txErr
	}
	return s.Get(ctx, item.TransactionID)
}

func (s *transactionService) ReleaseSerials(ctx context.Context, itemID uuid.UUID) (*dto.TransactionResponse, error) {
	item, err := s.repo.FindItem(ctx, itemID)
	if err != nil {
		return nil, apierror.NotFound("item %s not found", itemID)
	}
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if _, err := s.lockOpen(ctx, tx, item.TransactionID); err != nil {
			return err
		}
		_, err := s.serials.ReleaseTx(ctx, tx, itemID)
		if err != nil {
			return apierror.Internal("could not release serials", err)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return s.Get(ctx, item.TransactionID)
}

// ── AddPayment ────────────────────────────────────────────────────────────────

func (s *transactionService) AddPayment(ctx context.Context, transactionID uuid.UUID, req dto.AddPaymentRequest) (*dto.TransactionResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, apierror.Validation("payment amount must be positive")
	}
	payment := model.Payment{
		TransactionID: transactionID,
		Method:        req.Method,
		Amount:        req.Amount.Round(2),
	}
	switch req.Method {
	case model.PayCredit, model.PayDebit:
		if req.Card == nil {
			return nil, apierror.Validation("card payments require auth_code and last_four")
		}
		auth, lastFour := req.Card.AuthCode, req.Card.LastFour
		payment.AuthCode = &auth
		payment.CardLastFour = &lastFour
	case model.PayCheck:
		if req.Check == nil {
			return nil, apierror.Validation("check payments require check_number")
		}
		num := req.Check.CheckNumber
		payment.CheckNumber = &num
	}

	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		txn, err := s.lockOpen(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		totals := ComputeTotals(txn.Items, txn.Payments)
		outstanding := totals.AmountRemaining
		if !outstanding.IsPositive() {
			return apierror.Validation("transaction is already fully paid")
		}
		if req.Method == model.PayCash {
			// Cash may exceed the balance; change is derived, never rejected.
			change := ChangeForTender(payment.Amount, outstanding)
			payment.ChangeGiven = &change
		} else if payment.Amount.GreaterThan(outstanding) {
			// Partial tender on a card is allowed only up to what remains owed.
			return apierror.Validation("amount %s exceeds outstanding balance %s",
				payment.Amount.StringFixed(2), outstanding.StringFixed(2))
		}
		return s.repo.CreatePaymentTx(ctx, tx, &payment)
	})
	if txErr != nil {
		return nil, txErr
	}
	return s.Get(ctx, transactionID)
}

// ── Complete ──────────────────────────────────────────────────────────────────

// Complete is the only operation that must be atomic across two aggregates:
// the transaction's terminal transition and the session rollup commit
// together or not at all. The receipt collaborator is notified strictly
// after commit.
func (s *transactionService) Complete(ctx context.Context, transactionID, operatorID uuid.UUID) (*dto.TransactionResponse, error) {
	var completed *model.Transaction
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		txn, err := s.lockOpen(ctx, tx, transactionID)
		if err != nil {
			return err
		}

		totals := ComputeTotals(txn.Items, txn.Payments)
		if totals.AmountPaid.LessThan(totals.GrandTotal) {
			return apierror.Validation("outstanding balance %s must be paid before completion",
				totals.AmountRemaining.StringFixed(2))
		}

		// Completeness rule: every serial-tracked item needs exactly
		// quantity claimed units.
		isReturn := txn.Type == model.TxnTypeReturn
		for i := range txn.Items {
			item := &txn.Items[i]
			if !item.SerialTracked {
				continue
			}
			claimed, err := s.serials.ClaimedCountTx(ctx, tx, item.ID)
			if err != nil {
				return apierror.Internal("could not count claimed serials", err)
			}
			if claimed != int64(item.Quantity) {
				return apierror.Validation("item %q has %d of %d serials captured",
					item.Name, claimed, item.Quantity)
			}
		}
		for i := range txn.Items {
			item := &txn.Items[i]
			if !item.SerialTracked {
				continue
			}
			if err := s.serials.FinalizeTx(ctx, tx, item.ID, isReturn, txn.CustomerID); err != nil {
				return apierror.Internal("could not finalize serials", err)
			}
		}

		cash := decimal.Zero
		for i := range txn.Payments {
			if txn.Payments[i].Method == model.PayCash {
				cash = cash.Add(txn.Payments[i].Amount)
			}
		}
		rollup := &model.SessionRollup{
			SessionID:     txn.SessionID,
			TransactionID: txn.ID,
			Type:          txn.Type,
			Amount:        totals.GrandTotal,
			CashAmount:    cash,
			ChangeGiven:   totals.ChangeDue,
		}
		if err := s.sessions.RecordCompletedTransaction(ctx, tx, rollup); err != nil {
			return err
		}

		now := time.Now().UTC()
		won, err := s.repo.UpdateStatusTx(ctx, tx, txn.ID, model.TxnOpen, model.TxnCompleted, &now)
		if err != nil {
			return apierror.Internal("could not complete transaction", err)
		}
		if !won {
			return apierror.Conflict("transaction was completed by another operator")
		}
		txn.Status = model.TxnCompleted
		txn.ClosedAt = &now
		completed = txn
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	metrics.TransactionsCompleted.WithLabelValues(completed.Type).Inc()

	// At-least-once notification, strictly after commit. A lost enqueue is
	// logged and picked up by the operator re-printing the receipt.
	if s.notifier != nil {
		if err := s.notifier.NotifyCompleted(ctx, completed.ID); err != nil {
			log.Error().Err(err).Str("transaction_id", completed.ID.String()).
				Msg("receipt notification enqueue failed")
		}
	}
	return s.Get(ctx, completed.ID)
}

// ── Void ──────────────────────────────────────────────────────────────────────

// Void is allowed from OPEN only. A completed sale is corrected via a
// separate return transaction, never by mutating history.
func (s *transactionService) Void(ctx context.Context, transactionID uuid.UUID) (*dto.TransactionResponse, error) {
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		txn, err := s.lockOpen(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		for i := range txn.Items {
			if _, err := s.serials.ReleaseTx(ctx, tx, txn.Items[i].ID); err != nil {
				return apierror.Internal("could not release serials", err)
			}
		}
		now := time.Now().UTC()
		won, err := s.repo.UpdateStatusTx(ctx, tx, txn.ID, model.TxnOpen, model.TxnVoided, &now)
		if err != nil {
			return apierror.Internal("could not void transaction", err)
		}
		if !won {
			return apierror.Conflict("transaction was closed by another operator")
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	metrics.TransactionsVoided.Inc()
	return s.Get(ctx, transactionID)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// lockOpen loads the aggregate under a row lock and rejects terminal states.
func (s *transactionService) lockOpen(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Transaction, error) {
	txn, err := s.repo.FindByIDForUpdateTx(ctx, tx, id)
	if err != nil {
		return nil, apierror.NotFound("transaction %s not found", id)
	}
	if txn.Terminal() {
		return nil, apierror.InvalidState("transaction is %s and cannot be modified", txn.Status)
	}
	return txn, nil
}

func itemToResponse(item *model.TransactionItem) dto.ItemResponse {
	serials := make([]string, 0, len(item.Serials))
	for i := range item.Serials {
		serials = append(serials, item.Serials[i].SerialNumber)
	}
	return dto.ItemResponse{
		ID:            item.ID.String(),
		ItemType:      item.ItemType,
		CatalogItemID: item.CatalogItemID.String(),
		Name:          item.Name,
		Description:   item.Description,
		SerialTracked: item.SerialTracked,
		Quantity:      item.Quantity,
		UnitPrice:     item.UnitPrice,
		Discount:      item.Discount,
		TaxAmount:     item.TaxAmount,
		Subtotal:      item.LineSubtotal().Add(item.TaxAmount).Round(2),
		Serials:       serials,
	}
}

func paymentToResponse(p *model.Payment) dto.PaymentResponse {
	return dto.PaymentResponse{
		ID:          p.ID.String(),
		Method:      p.Method,
		Amount:      p.Amount,
		ChangeGiven: p.ChangeGiven,
		AuthCode:    p.AuthCode,
		LastFour:    p.CardLastFour,
		CheckNumber: p.CheckNumber,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
}

func transactionToResponse(t *model.Transaction) *dto.TransactionResponse {
	items := make([]dto.ItemResponse, 0, len(t.Items))
	for i := range t.Items {
		items = append(items, itemToResponse(&t.Items[i]))
	}
	payments := make([]dto.PaymentResponse, 0, len(t.Payments))
	for i := range t.Payments {
		payments = append(payments, paymentToResponse(&t.Payments[i]))
	}
	resp := &dto.TransactionResponse{
		ID:        t.ID.String(),
		Number:    t.Number,
		Type:      t.Type,
		SessionID: t.SessionID.String(),
		Status:    t.Status,
		Items:     items,
		Payments:  payments,
		Totals:    ComputeTotals(t.Items, t.Payments),
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
	}
	if t.CustomerID != nil {
		id := t.CustomerID.String()
		resp.CustomerID = &id
	}
	if t.ClosedAt != nil {
		ts := t.ClosedAt.Format(time.RFC3339)
		resp.ClosedAt = &ts
	}
	return resp
}
