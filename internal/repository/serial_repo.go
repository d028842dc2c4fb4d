package repository

import (
	"context"
	"time"

	"tillpos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SerialRepository interface {
	Receive(ctx context.Context, units []model.InventorySerial) error
	ListAvailable(ctx context.Context, catalogItemID uuid.UUID) ([]model.InventorySerial, error)
	FindByTagTx(ctx context.Context, tx *gorm.DB, catalogItemID uuid.UUID, tag string) (*model.InventorySerial, error)
	ListByItem(ctx context.Context, itemID uuid.UUID) ([]model.InventorySerial, error)
	CountClaimedByItemTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (int64, error)

	// ClaimTagTx is the conditional single-row claim: AVAILABLE → RESERVED for
	// the unit matching the scanned serial number or IMEI. Zero rows affected
	// means the unit is missing or another operator won the race.
	ClaimTagTx(ctx context.Context, tx *gorm.DB, catalogItemID, itemID uuid.UUID, tag string) (bool, error)

	// ClaimOldestTx claims up to count units FIFO by received_at. Returns the
	// number actually claimed; callers enforce all-or-nothing by rolling the
	// enclosing transaction back on a short claim.
	ClaimOldestTx(ctx context.Context, tx *gorm.DB, catalogItemID, itemID uuid.UUID, count int) (int64, error)

	// ReleaseByItemTx returns an item's RESERVED units to AVAILABLE.
	ReleaseByItemTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (int64, error)

	// FinalizeByItemTx moves an item's RESERVED units to their terminal state
	// at completion (sold, or back to available for returns).
	FinalizeByItemTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, toStatus string, customer *uuid.UUID) (int64, error)

	DB() *gorm.DB
}

type serialRepo struct{ db *gorm.DB }

func NewSerialRepository(db *gorm.DB) SerialRepository { return &serialRepo{db: db} }

func (r *serialRepo) DB() *gorm.DB { return r.db }

func (r *serialRepo) Receive(ctx context.Context, units []model.InventorySerial) error {
	return r.db.WithContext(ctx).Create(&units).Error
}

func (r *serialRepo) ListAvailable(ctx context.Context, catalogItemID uuid.UUID) ([]model.InventorySerial, error) {
	var units []model.InventorySerial
	err := r.db.WithContext(ctx).
		Where("catalog_item_id = ? AND status = ?", catalogItemID, model.SerialAvailable).
		Order("received_at ASC, id ASC").
		Find(&units).Error
	return units, err
}

func (r *serialRepo) FindByTagTx(ctx context.Context, tx *gorm.DB, catalogItemID uuid.UUID, tag string) (*model.InventorySerial, error) {
	var unit model.InventorySerial
	err := tx.WithContext(ctx).
		Where("catalog_item_id = ? AND (serial_number = ? OR imei = ?)", catalogItemID, tag, tag).
		First(&unit).Error
	return &unit, err
}

func (r *serialRepo) ListByItem(ctx context.Context, itemID uuid.UUID) ([]model.InventorySerial, error) {
	var units []model.InventorySerial
	err := r.db.WithContext(ctx).
		Where("transaction_item_id = ?", itemID).
		Order("received_at ASC, id ASC").
		Find(&units).Error
	return units, err
}

func (r *serialRepo) CountClaimedByItemTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (int64, error) {
	var n int64
	err := tx.WithContext(ctx).Model(&model.InventorySerial{}).
		Where("transaction_item_id = ? AND status = ?", itemID, model.SerialReserved).
		Count(&n).Error
	return n, err
}

func (r *serialRepo) ClaimTagTx(ctx context.Context, tx *gorm.DB, catalogItemID, itemID uuid.UUID, tag string) (bool, error) {
	now := time.Now().UTC()
	res := tx.WithContext(ctx).Model(&model.InventorySerial{}).
		Where("catalog_item_id = ? AND status = ? AND (serial_number = ? OR imei = ?)",
			catalogItemID, model.SerialAvailable, tag, tag).
		Updates(map[string]interface{}{
			"status":              model.SerialReserved,
			"transaction_item_id": itemID,
			"assigned_at":         now,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *serialRepo) ClaimOldestTx(ctx context.Context, tx *gorm.DB, catalogItemID, itemID uuid.UUID, count int) (int64, error) {
	// FOR UPDATE SKIP LOCKED keeps two concurrent claimCount calls from
	// blocking on each other's candidate rows.
	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_serials
		SET status = ?, transaction_item_id = ?, assigned_at = ?
		WHERE id IN (
			SELECT id FROM inventory_serials
			WHERE catalog_item_id = ? AND status = ?
			ORDER BY received_at ASC, id ASC
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)`,
		model.SerialReserved, itemID, time.Now().UTC(),
		catalogItemID, model.SerialAvailable, count,
	)
	return res.RowsAffected, res.Error
}

func (r *serialRepo) ReleaseByItemTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (int64, error) {
	res := tx.WithContext(ctx).Model(&model.InventorySerial{}).
		Where("transaction_item_id = ? AND status = ?", itemID, model.SerialReserved).
		Updates(map[string]interface{}{
			"status":              model.SerialAvailable,
			"transaction_item_id": nil,
			"assigned_at":         nil,
		})
	return res.RowsAffected, res.Error
}

func (r *serialRepo) FinalizeByItemTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, toStatus string, customer *uuid.UUID) (int64, error) {
	updates := map[string]interface{}{"status": toStatus}
	if toStatus == model.SerialAvailable {
		// Return flow: the unit goes back on the shelf with no assignment.
		updates["transaction_item_id"] = nil
		updates["assigned_at"] = nil
	} else if customer != nil {
		updates["assigned_to"] = *customer
	}
	res := tx.WithContext(ctx).Model(&model.InventorySerial{}).
		Where("transaction_item_id = ? AND status = ?", itemID, model.SerialReserved).
		Updates(updates)
	return res.RowsAffected, res.Error
}
