package repository

import (
	"context"
	"time"

	"tillpos/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransactionRepository interface {
	CreateTx(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error)

	// FindByIDForUpdateTx locks the transaction row for the duration of the
	// enclosing storage transaction, serializing concurrent mutations on the
	// same aggregate.
	FindByIDForUpdateTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Transaction, error)

	FindItem(ctx context.Context, itemID uuid.UUID) (*model.TransactionItem, error)
	CreateItemTx(ctx context.Context, tx *gorm.DB, item *model.TransactionItem) error
	UpdateItemTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, quantity int, tax decimal.Decimal) error
	DeleteItemTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) error

	CreatePaymentTx(ctx context.Context, tx *gorm.DB, p *model.Payment) error

	// UpdateStatusTx performs the from→to lifecycle transition as a
	// conditional update; false means another writer got there first or the
	// transaction was not in the expected state.
	UpdateStatusTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to string, closedAt *time.Time) (bool, error)

	DB() *gorm.DB
}

type transactionRepo struct{ db *gorm.DB }

func NewTransactionRepository(db *gorm.DB) TransactionRepository { return &transactionRepo{db: db} }

func (r *transactionRepo) DB() *gorm.DB { return r.db }

func (r *transactionRepo) CreateTx(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

func (r *transactionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Items.Serials").
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&t, "id = ?", id).Error
	return &t, err
}

func (r *transactionRepo) FindByIDForUpdateTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Transaction, error) {
	var t model.Transaction
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	// Associations are loaded after the lock is held so the snapshot is stable.
	err := tx.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Items.Serials").
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&t, "id = ?", id).Error
	return &t, err
}

func (r *transactionRepo) FindItem(ctx context.Context, itemID uuid.UUID) (*model.TransactionItem, error) {
	var item model.TransactionItem
	err := r.db.WithContext(ctx).Preload("Serials").First(&item, "id = ?", itemID).Error
	return &item, err
}

func (r *transactionRepo) CreateItemTx(ctx context.Context, tx *gorm.DB, item *model.TransactionItem) error {
	return tx.WithContext(ctx).Create(item).Error
}

func (r *transactionRepo) UpdateItemTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, quantity int, taxAmount decimal.Decimal) error {
	return tx.WithContext(ctx).Model(&model.TransactionItem{}).
		Where("id = ?", itemID).
		Updates(map[string]interface{}{"quantity": quantity, "tax_amount": taxAmount}).Error
}

func (r *transactionRepo) DeleteItemTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) error {
	return tx.WithContext(ctx).Delete(&model.TransactionItem{}, "id = ?", itemID).Error
}

func (r *transactionRepo) CreatePaymentTx(ctx context.Context, tx *gorm.DB, p *model.Payment) error {
	return tx.WithContext(ctx).Create(p).Error
}

func (r *transactionRepo) UpdateStatusTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, from, to string, closedAt *time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if closedAt != nil {
		updates["closed_at"] = closedAt
	}
	res := tx.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}
