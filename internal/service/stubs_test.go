package service_test

// stubs_test.go
// In-memory implementations of the repository interfaces, shared by the
// service tests. DB() returns nil, which puts the services into direct-call
// mode: transactional closures run against the stubs without a real database.

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"tillpos/internal/model"
	"tillpos/internal/repository"
	"tillpos/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// memStore is the shared backing state; each stub repository is a view on it.
type memStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*model.Session
	rollups  map[uuid.UUID]*model.SessionRollup // keyed by transaction id
	txns     map[uuid.UUID]*model.Transaction
	items    []*model.TransactionItem
	payments []*model.Payment
	serials  []*model.InventorySerial
	now      time.Time // monotonic fake clock for insertion ordering
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[uuid.UUID]*model.Session),
		rollups:  make(map[uuid.UUID]*model.SessionRollup),
		txns:     make(map[uuid.UUID]*model.Transaction),
		now:      time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing timestamp so created_at ordering is
// deterministic.
func (st *memStore) tick() time.Time {
	st.now = st.now.Add(time.Second)
	return st.now
}

// ── SessionRepository stub ────────────────────────────────────────────────────

type memSessionRepo struct{ st *memStore }

func (r *memSessionRepo) DB() *gorm.DB { return nil }

func (r *memSessionRepo) Create(_ context.Context, s *model.Session) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, existing := range r.st.sessions {
		if existing.Register == s.Register && existing.Status == model.SessionOpen {
			return errors.New("duplicate key value violates unique constraint (SQLSTATE 23505)")
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	cloned := *s
	r.st.sessions[s.ID] = &cloned
	return nil
}

func (r *memSessionRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Session, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cloned := *s
	return &cloned, nil
}

func (r *memSessionRepo) FindOpenByRegister(_ context.Context, register string) (*model.Session, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, s := range r.st.sessions {
		if s.Register == register && s.Status == model.SessionOpen {
			cloned := *s
			return &cloned, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memSessionRepo) FindOpenByOperator(_ context.Context, operatorID uuid.UUID) (*model.Session, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, s := range r.st.sessions {
		if s.OpenedBy == operatorID && s.Status == model.SessionOpen {
			cloned := *s
			return &cloned, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memSessionRepo) ListClosed(_ context.Context, page, limit int) ([]model.Session, int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var closed []model.Session
	for _, s := range r.st.sessions {
		if s.Status == model.SessionClosed {
			closed = append(closed, *s)
		}
	}
	sort.Slice(closed, func(i, j int) bool {
		return closed[i].ClosedAt.After(*closed[j].ClosedAt)
	})
	total := int64(len(closed))
	start := (page - 1) * limit
	if start >= len(closed) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(closed) {
		end = len(closed)
	}
	return closed[start:end], total, nil
}

func (r *memSessionRepo) Close(_ context.Context, s *model.Session) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	stored, ok := r.st.sessions[s.ID]
	if !ok || stored.Status != model.SessionOpen {
		return false, nil
	}
	stored.Status = model.SessionClosed
	stored.ClosedBy = s.ClosedBy
	stored.ClosingNote = s.ClosingNote
	stored.CountedCash = s.CountedCash
	stored.ExpectedCash = s.ExpectedCash
	stored.CashDifference = s.CashDifference
	stored.Reconciliation = s.Reconciliation
	stored.ClosedAt = s.ClosedAt
	return true, nil
}

func (r *memSessionRepo) NextTicketTx(_ context.Context, _ *gorm.DB, sessionID uuid.UUID) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.sessions[sessionID]
	if !ok || s.Status != model.SessionOpen {
		return 0, gorm.ErrRecordNotFound
	}
	s.NextTicket++
	return s.NextTicket, nil
}

func (r *memSessionRepo) InsertRollupTx(_ context.Context, _ *gorm.DB, rollup *model.SessionRollup) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, exists := r.st.rollups[rollup.TransactionID]; exists {
		return false, nil
	}
	rollup.ID = uuid.New()
	cloned := *rollup
	r.st.rollups[rollup.TransactionID] = &cloned
	return true, nil
}

func (r *memSessionRepo) ApplyRollupTx(_ context.Context, _ *gorm.DB, rollup *model.SessionRollup) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.sessions[rollup.SessionID]
	if !ok || s.Status != model.SessionOpen {
		return false, nil
	}
	s.TransactionCount++
	s.TotalChangeGiven = s.TotalChangeGiven.Add(rollup.ChangeGiven)
	if rollup.Type == model.TxnTypeReturn {
		s.TotalRefunds = s.TotalRefunds.Add(rollup.Amount)
		s.TotalCashRefunds = s.TotalCashRefunds.Add(rollup.CashAmount)
	} else {
		s.TotalSales = s.TotalSales.Add(rollup.Amount)
		s.TotalCashPayments = s.TotalCashPayments.Add(rollup.CashAmount)
	}
	return true, nil
}

var _ repository.SessionRepository = (*memSessionRepo)(nil)

// ── TransactionRepository stub ────────────────────────────────────────────────

type memTxnRepo struct{ st *memStore }

func (r *memTxnRepo) DB() *gorm.DB { return nil }

func (r *memTxnRepo) CreateTx(_ context.Context, _ *gorm.DB, t *model.Transaction) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = r.st.tick()
	cloned := *t
	r.st.txns[t.ID] = &cloned
	return nil
}

// assemble builds a detached aggregate with items, serials and payments
// joined in, mirroring the repository's preloads.
func (r *memTxnRepo) assemble(t *model.Transaction) *model.Transaction {
	cloned := *t
	cloned.Items = nil
	cloned.Payments = nil
	for _, item := range r.st.items {
		if item.TransactionID != t.ID {
			continue
		}
		ic := *item
		ic.Serials = nil
		for _, u := range r.st.serials {
			if u.TransactionItemID != nil && *u.TransactionItemID == item.ID {
				ic.Serials = append(ic.Serials, *u)
			}
		}
		cloned.Items = append(cloned.Items, ic)
	}
	for _, p := range r.st.payments {
		if p.TransactionID == t.ID {
			cloned.Payments = append(cloned.Payments, *p)
		}
	}
	return &cloned
}

func (r *memTxnRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Transaction, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	t, ok := r.st.txns[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r.assemble(t), nil
}

func (r *memTxnRepo) FindByIDForUpdateTx(ctx context.Context, _ *gorm.DB, id uuid.UUID) (*model.Transaction, error) {
	return r.FindByID(ctx, id)
}

func (r *memTxnRepo) FindItem(_ context.Context, itemID uuid.UUID) (*model.TransactionItem, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, item := range r.st.items {
		if item.ID == itemID {
			cloned := *item
			return &cloned, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memTxnRepo) CreateItemTx(_ context.Context, _ *gorm.DB, item *model.TransactionItem) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	item.CreatedAt = r.st.tick()
	cloned := *item
	r.st.items = append(r.st.items, &cloned)
	return nil
}

func (r *memTxnRepo) UpdateItemTx(_ context.Context, _ *gorm.DB, itemID uuid.UUID, quantity int, taxAmount decimal.Decimal) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, item := range r.st.items {
		if item.ID == itemID {
			item.Quantity = quantity
			item.TaxAmount = taxAmount
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memTxnRepo) DeleteItemTx(_ context.Context, _ *gorm.DB, itemID uuid.UUID) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for i, item := range r.st.items {
		if item.ID == itemID {
			r.st.items = append(r.st.items[:i], r.st.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *memTxnRepo) CreatePaymentTx(_ context.Context, _ *gorm.DB, p *model.Payment) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = r.st.tick()
	cloned := *p
	r.st.payments = append(r.st.payments, &cloned)
	return nil
}

func (r *memTxnRepo) UpdateStatusTx(_ context.Context, _ *gorm.DB, id uuid.UUID, from, to string, closedAt *time.Time) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	t, ok := r.st.txns[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	if closedAt != nil {
		t.ClosedAt = closedAt
	}
	return true, nil
}

var _ repository.TransactionRepository = (*memTxnRepo)(nil)

// ── SerialRepository stub ─────────────────────────────────────────────────────

type memSerialRepo struct{ st *memStore }

func (r *memSerialRepo) DB() *gorm.DB { return nil }

func (r *memSerialRepo) Receive(_ context.Context, units []model.InventorySerial) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for i := range units {
		for _, existing := range r.st.serials {
			if existing.CatalogItemID == units[i].CatalogItemID && existing.SerialNumber == units[i].SerialNumber {
				return errors.New("duplicate key value violates unique constraint (SQLSTATE 23505)")
			}
		}
	}
	for i := range units {
		if units[i].ID == uuid.Nil {
			units[i].ID = uuid.New()
		}
		cloned := units[i]
		r.st.serials = append(r.st.serials, &cloned)
	}
	return nil
}

// seedSerial inserts a unit directly with a controlled received_at, for FIFO
// ordering tests.
func (st *memStore) seedSerial(catalogItemID uuid.UUID, serialNumber string, receivedAt time.Time) uuid.UUID {
	st.mu.Lock()
	defer st.mu.Unlock()
	u := &model.InventorySerial{
		ID:            uuid.New(),
		CatalogItemID: catalogItemID,
		SerialNumber:  serialNumber,
		Status:        model.SerialAvailable,
		ReceivedAt:    receivedAt,
	}
	st.serials = append(st.serials, u)
	return u.ID
}

func (st *memStore) serialByNumber(serialNumber string) *model.InventorySerial {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, u := range st.serials {
		if u.SerialNumber == serialNumber {
			return u
		}
	}
	return nil
}

func (r *memSerialRepo) availableFIFO(catalogItemID uuid.UUID) []*model.InventorySerial {
	var avail []*model.InventorySerial
	for _, u := range r.st.serials {
		if u.CatalogItemID == catalogItemID && u.Status == model.SerialAvailable {
			avail = append(avail, u)
		}
	}
	sort.Slice(avail, func(i, j int) bool {
		return avail[i].ReceivedAt.Before(avail[j].ReceivedAt)
	})
	return avail
}

func (r *memSerialRepo) ListAvailable(_ context.Context, catalogItemID uuid.UUID) ([]model.InventorySerial, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []model.InventorySerial
	for _, u := range r.availableFIFO(catalogItemID) {
		out = append(out, *u)
	}
	return out, nil
}

func (r *memSerialRepo) FindByTagTx(_ context.Context, _ *gorm.DB, catalogItemID uuid.UUID, tag string) (*model.InventorySerial, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, u := range r.st.serials {
		if u.CatalogItemID != catalogItemID {
			continue
		}
		if u.SerialNumber == tag || (u.IMEI != nil && *u.IMEI == tag) {
			cloned := *u
			return &cloned, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memSerialRepo) ListByItem(_ context.Context, itemID uuid.UUID) ([]model.InventorySerial, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []model.InventorySerial
	for _, u := range r.st.serials {
		if u.TransactionItemID != nil && *u.TransactionItemID == itemID {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}

func (r *memSerialRepo) CountClaimedByItemTx(_ context.Context, _ *gorm.DB, itemID uuid.UUID) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for _, u := range r.st.serials {
		if u.TransactionItemID != nil && *u.TransactionItemID == itemID && u.Status == model.SerialReserved {
			n++
		}
	}
	return n, nil
}

func (r *memSerialRepo) ClaimTagTx(_ context.Context, _ *gorm.DB, catalogItemID, itemID uuid.UUID, tag string) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, u := range r.st.serials {
		if u.CatalogItemID != catalogItemID || u.Status != model.SerialAvailable {
			continue
		}
		if u.SerialNumber == tag || (u.IMEI != nil && *u.IMEI == tag) {
			now := r.st.tick()
			u.Status = model.SerialReserved
			u.TransactionItemID = &itemID
			u.AssignedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (r *memSerialRepo) ClaimOldestTx(_ context.Context, _ *gorm.DB, catalogItemID, itemID uuid.UUID, count int) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	avail := r.availableFIFO(catalogItemID)
	claimed := int64(0)
	for _, u := range avail {
		if claimed >= int64(count) {
			break
		}
		now := r.st.tick()
		u.Status = model.SerialReserved
		u.TransactionItemID = &itemID
		u.AssignedAt = &now
		claimed++
	}
	return claimed, nil
}

func (r *memSerialRepo) ReleaseByItemTx(_ context.Context, _ *gorm.DB, itemID uuid.UUID) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for _, u := range r.st.serials {
		if u.TransactionItemID != nil && *u.TransactionItemID == itemID && u.Status == model.SerialReserved {
			u.Status = model.SerialAvailable
			u.TransactionItemID = nil
			u.AssignedAt = nil
			n++
		}
	}
	return n, nil
}

func (r *memSerialRepo) FinalizeByItemTx(_ context.Context, _ *gorm.DB, itemID uuid.UUID, toStatus string, customer *uuid.UUID) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var n int64
	for _, u := range r.st.serials {
		if u.TransactionItemID == nil || *u.TransactionItemID != itemID || u.Status != model.SerialReserved {
			continue
		}
		u.Status = toStatus
		if toStatus == model.SerialAvailable {
			u.TransactionItemID = nil
			u.AssignedAt = nil
		} else if customer != nil {
			u.AssignedTo = customer
		}
		n++
	}
	return n, nil
}

var _ repository.SerialRepository = (*memSerialRepo)(nil)

// ── Collaborator stubs ────────────────────────────────────────────────────────

type stubCatalog struct {
	items map[uuid.UUID]service.CatalogSnapshot
}

func (c *stubCatalog) Snapshot(_ context.Context, catalogItemID uuid.UUID) (*service.CatalogSnapshot, error) {
	snap, ok := c.items[catalogItemID]
	if !ok {
		return nil, errCatalogMiss
	}
	return &snap, nil
}

var errCatalogMiss = errors.New("catalog item not found")

// stubTax quotes a fixed rate; Err, when set, simulates a resolver outage.
type stubTax struct {
	RatePct decimal.Decimal
	Err     error
}

func (t *stubTax) Quote(_ context.Context, line service.TaxLine) (decimal.Decimal, error) {
	if t.Err != nil {
		return decimal.Zero, t.Err
	}
	return line.NetAmount.Mul(t.RatePct).Div(decimal.NewFromInt(100)).Round(2), nil
}

// recordingNotifier captures post-commit receipt notifications.
type recordingNotifier struct {
	mu       sync.Mutex
	notified []uuid.UUID
	err      error
}

func (n *recordingNotifier) NotifyCompleted(_ context.Context, transactionID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notified = append(n.notified, transactionID)
	return nil
}
