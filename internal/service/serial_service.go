package service

import (
	"context"
	"errors"
	"time"

	"tillpos/internal/apierror"
	"tillpos/internal/dto"
	"tillpos/internal/metrics"
	"tillpos/internal/model"
	"tillpos/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SerialService is the allocator for serialized stock. It hands out claims
// such that no two open transactions ever hold the same unit, and default
// allocation favors the oldest received unit so stock does not age on the
// shelf.
type SerialService interface {
	Receive(ctx context.Context, catalogItemID uuid.UUID, req dto.ReceiveSerialsRequest) ([]dto.SerialResponse, error)
	ListAvailable(ctx context.Context, catalogItemID uuid.UUID) (*dto.SerialListResponse, error)

	// Claim reserves the unit matching the scanned serial number or IMEI.
	// The race between two operators scanning the same tag has exactly one
	// winner; the loser gets a conflict, not silent corruption.
	Claim(ctx context.Context, catalogItemID, itemID uuid.UUID, tag string) (*model.InventorySerial, error)

	// ClaimCount reserves the count oldest available units in one atomic
	// call. All or nothing: a short pool claims none.
	ClaimCount(ctx context.Context, catalogItemID, itemID uuid.UUID, count int) ([]model.InventorySerial, error)

	// ClaimTx and ClaimCountTx run inside the caller's storage transaction so
	// the engine can hold the transaction-row lock across the claim.
	ClaimTx(ctx context.Context, tx *gorm.DB, catalogItemID, itemID uuid.UUID, tag string) error
	ClaimCountTx(ctx context.Context, tx *gorm.DB, catalogItemID, itemID uuid.UUID, count int) error

	// ReleaseTx returns an item's reserved units to the pool; used when an
	// item is removed or its transaction is voided.
	ReleaseTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (int64, error)
	Release(ctx context.Context, itemID uuid.UUID) (int64, error)

	// FinalizeTx consumes an item's reserved units at completion: sold for
	// forward transactions, back to available for returns.
	FinalizeTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, isReturn bool, customer *uuid.UUID) error

	// ClaimedCountTx reports how many units an item currently holds; the
	// engine checks it against the item quantity at completion.
	ClaimedCountTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (int64, error)
}

type serialService struct {
	repo repository.SerialRepository
}

func NewSerialService(repo repository.SerialRepository) SerialService {
	return &serialService{repo: repo}
}

// ── Receive ───────────────────────────────────────────────────────────────────

func (s *serialService) Receive(ctx context.Context, catalogItemID uuid.UUID, req dto.ReceiveSerialsRequest) ([]dto.SerialResponse, error) {
	now := time.Now().UTC()
	units := make([]model.InventorySerial, 0, len(req.Units))
	seen := make(map[string]bool, len(req.Units))
	for _, u := range req.Units {
		if seen[u.SerialNumber] {
			return nil, apierror.Validation("duplicate serial number %q in batch", u.SerialNumber)
		}
		seen[u.SerialNumber] = true
		units = append(units, model.InventorySerial{
			CatalogItemID: catalogItemID,
			SerialNumber:  u.SerialNumber,
			IMEI:          u.IMEI,
			Status:        model.SerialAvailable,
			ReceivedAt:    now,
		})
	}
	if err := s.repo.Receive(ctx, units); err != nil {
		if isUniqueViolation(err) {
			return nil, apierror.Conflict("a serial number in the batch already exists for this catalog item")
		}
		return nil, apierror.Internal("could not receive serials", err)
	}
	out := make([]dto.SerialResponse, 0, len(units))
	for i := range units {
		out = append(out, *serialToResponse(&units[i]))
	}
	return out, nil
}

// ── ListAvailable ─────────────────────────────────────────────────────────────

func (s *serialService) ListAvailable(ctx context.Context, catalogItemID uuid.UUID) (*dto.SerialListResponse, error) {
	units, err := s.repo.ListAvailable(ctx, catalogItemID)
	if err != nil {
		return nil, apierror.Internal("could not list serials", err)
	}
	data := make([]dto.SerialResponse, 0, len(units))
	for i := range units {
		data = append(data, *serialToResponse(&units[i]))
	}
	return &dto.SerialListResponse{Data: data}, nil
}

// ── Claim ─────────────────────────────────────────────────────────────────────

func (s *serialService) ClaimTx(ctx context.Context, tx *gorm.DB, catalogItemID, itemID uuid.UUID, tag string) error {
	won, err := s.repo.ClaimTagTx(ctx, tx, catalogItemID, itemID, tag)
	if err != nil {
		return apierror.Internal("could not claim serial", err)
	}
	if !won {
		// Distinguish "never existed" from "someone else got it".
		unit, findErr := s.repo.FindByTagTx(ctx, tx, catalogItemID, tag)
		if findErr != nil {
			if errors.Is(findErr, gorm.ErrRecordNotFound) {
				return apierror.NotFound("no unit with serial or IMEI %q", tag)
			}
			return apierror.Internal("could not look up serial", findErr)
		}
		return apierror.Conflict("unit %q is already claimed", unit.SerialNumber)
	}
	metrics.SerialsClaimed.Add(1)
	return nil
}

func (s *serialService) Claim(ctx context.Context, catalogItemID, itemID uuid.UUID, tag string) (*model.InventorySerial, error) {
	var claimed *model.InventorySerial
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.ClaimTx(ctx, tx, catalogItemID, itemID, tag); err != nil {
			return err
		}
		unit, findErr := s.repo.FindByTagTx(ctx, tx, catalogItemID, tag)
		if findErr != nil {
			return apierror.Internal("could not reload claimed serial", findErr)
		}
		claimed = unit
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ── ClaimCount ────────────────────────────────────────────────────────────────

func (s *serialService) ClaimCountTx(ctx context.Context, tx *gorm.DB, catalogItemID, itemID uuid.UUID, count int) error {
	if count < 1 {
		return apierror.Validation("claim count must be at least 1")
	}
	claimed, err := s.repo.ClaimOldestTx(ctx, tx, catalogItemID, itemID, count)
	if err != nil {
		return apierror.Internal("could not claim serials", err)
	}
	if claimed < int64(count) {
		// The caller rolls back, releasing whatever the UPDATE touched:
		// none claimed.
		return apierror.InsufficientStock("only %d of %d requested units available", claimed, count)
	}
	metrics.SerialsClaimed.Add(float64(count))
	return nil
}

func (s *serialService) ClaimCount(ctx context.Context, catalogItemID, itemID uuid.UUID, count int) ([]model.InventorySerial, error) {
	if err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		return s.ClaimCountTx(ctx, tx, catalogItemID, itemID, count)
	}); err != nil {
		return nil, err
	}
	units, err := s.repo.ListByItem(ctx, itemID)
	if err != nil {
		return nil, apierror.Internal("could not reload claimed serials", err)
	}
	return units, nil
}

// ── Release / Finalize ────────────────────────────────────────────────────────

func (s *serialService) ReleaseTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (int64, error) {
	return s.repo.ReleaseByItemTx(ctx, tx, itemID)
}

func (s *serialService) Release(ctx context.Context, itemID uuid.UUID) (int64, error) {
	var released int64
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		n, err := s.repo.ReleaseByItemTx(ctx, tx, itemID)
		released = n
		return err
	})
	if err != nil {
		return 0, apierror.Internal("could not release serials", err)
	}
	return released, nil
}

func (s *serialService) FinalizeTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, isReturn bool, customer *uuid.UUID) error {
	toStatus := model.SerialSold
	if isReturn {
		// A completed return restores the unit to stock.
		toStatus = model.SerialAvailable
		customer = nil
	}
	_, err := s.repo.FinalizeByItemTx(ctx, tx, itemID, toStatus, customer)
	return err
}

func (s *serialService) ClaimedCountTx(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (int64, error) {
	return s.repo.CountClaimedByItemTx(ctx, tx, itemID)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func serialToResponse(u *model.InventorySerial) *dto.SerialResponse {
	resp := &dto.SerialResponse{
		ID:            u.ID.String(),
		CatalogItemID: u.CatalogItemID.String(),
		SerialNumber:  u.SerialNumber,
		IMEI:          u.IMEI,
		Status:        u.Status,
		ReceivedAt:    u.ReceivedAt.Format(time.RFC3339),
	}
	if u.AssignedAt != nil {
		t := u.AssignedAt.Format(time.RFC3339)
		resp.AssignedAt = &t
	}
	return resp
}
