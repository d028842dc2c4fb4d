package dto

// ─── Request DTOs ────────────────────────────────────────────────────────────

type ReceiveSerialsRequest struct {
	Units []ReceiveSerialUnit `json:"units" validate:"required,min=1,max=500,dive"`
}

type ReceiveSerialUnit struct {
	SerialNumber string  `json:"serial_number" validate:"required,min=1,max=80"`
	IMEI         *string `json:"imei"          validate:"omitempty,len=15,numeric"`
}

// ClaimSerialRequest claims one specific unit by serial number or IMEI —
// whichever tag the operator scanned.
type ClaimSerialRequest struct {
	Tag string `json:"tag" validate:"required,min=1,max=80"`
}

// ClaimCountRequest claims the N oldest available units in one atomic call.
type ClaimCountRequest struct {
	Count int `json:"count" validate:"required,min=1,max=100"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SerialResponse struct {
	ID            string  `json:"id"`
	CatalogItemID string  `json:"catalog_item_id"`
	SerialNumber  string  `json:"serial_number"`
	IMEI          *string `json:"imei,omitempty"`
	Status        string  `json:"status"`
	ReceivedAt    string  `json:"received_at"`
	AssignedAt    *string `json:"assigned_at,omitempty"`
}

type SerialListResponse struct {
	Data []SerialResponse `json:"data"`
}
