package model

import (
	"time"

	"github.com/google/uuid"
)

// InventorySerial lifecycle states. AVAILABLE ↔ RESERVED is the only
// reversible transition; everything past RESERVED is one-directional.
const (
	SerialAvailable = "available"
	SerialReserved  = "reserved"
	SerialSold      = "sold"
	SerialReturned  = "returned"
	SerialDamaged   = "damaged"
	SerialObsolete  = "obsolete"
)

// InventorySerial is one physical unit of serialized stock. The pool per
// catalog item is the only genuinely contended resource in the engine:
// claims are conditional single-row updates, never long-held locks.
type InventorySerial struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CatalogItemID uuid.UUID `gorm:"type:uuid;not null;index:idx_serials_pool"`
	SerialNumber  string    `gorm:"type:varchar(80);not null"`
	IMEI          *string   `gorm:"type:varchar(20)"`
	Status        string    `gorm:"type:varchar(20);not null;default:'available';index:idx_serials_pool"`

	// TransactionItemID is stamped while RESERVED/SOLD and cleared on release.
	TransactionItemID *uuid.UUID `gorm:"type:uuid;index"`
	AssignedTo        *uuid.UUID `gorm:"type:uuid"` // customer, stamped at sale

	// ReceivedAt drives FIFO allocation: oldest stock sells first.
	ReceivedAt time.Time `gorm:"not null;index"`
	AssignedAt *time.Time
}

// TableName overrides GORM's default pluralization.
func (InventorySerial) TableName() string { return "inventory_serials" }
