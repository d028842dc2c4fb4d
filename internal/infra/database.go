package infra

import (
	"fmt"

	"tillpos/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate
// for the engine's tables, then applies the idempotent SQL patches that
// AutoMigrate cannot express (partial unique indexes).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := db.AutoMigrate(
		&model.Session{},
		&model.SessionRollup{},
		&model.Transaction{},
		&model.TransactionItem{},
		&model.Payment{},
		&model.InventorySerial{},
	); err != nil {
		return nil, fmt.Errorf("AutoMigrate: %w", err)
	}

	if err := applySchemaPatches(db); err != nil {
		return nil, fmt.Errorf("schema patches: %w", err)
	}

	return db, nil
}

// applySchemaPatches creates the constraints AutoMigrate cannot: the partial
// unique indexes that enforce one open session per register and serial
// uniqueness per catalog item. Each statement is IF NOT EXISTS so re-running
// on an already-patched schema is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		{
			"one open session per register",
			`CREATE UNIQUE INDEX IF NOT EXISTS uniq_sessions_open_register
			 ON sessions (register) WHERE status = 'open'`,
		},
		{
			"serial number unique within catalog item",
			`CREATE UNIQUE INDEX IF NOT EXISTS uniq_serials_catalog_serial
			 ON inventory_serials (catalog_item_id, serial_number)`,
		},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("%s: %w", p.descr, err)
		}
	}
	return nil
}
