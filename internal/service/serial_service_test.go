package service_test

import (
	"context"
	"testing"
	"time"

	"tillpos/internal/apierror"
	"tillpos/internal/dto"
	"tillpos/internal/model"
	"tillpos/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSerialFixture() (*memStore, service.SerialService) {
	st := newMemStore()
	return st, service.NewSerialService(&memSerialRepo{st: st})
}

func TestReceiveSerials(t *testing.T) {
	_, svc := newSerialFixture()
	catalogItem := uuid.New()

	imei := "356938035643809"
	units, err := svc.Receive(context.Background(), catalogItem, dto.ReceiveSerialsRequest{
		Units: []dto.ReceiveSerialUnit{
			{SerialNumber: "SN-001", IMEI: &imei},
			{SerialNumber: "SN-002"},
		},
	})
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, model.SerialAvailable, units[0].Status)
	assert.Equal(t, "SN-001", units[0].SerialNumber)
}

func TestReceiveSerials_DuplicateInBatchRejected(t *testing.T) {
	_, svc := newSerialFixture()
	_, err := svc.Receive(context.Background(), uuid.New(), dto.ReceiveSerialsRequest{
		Units: []dto.ReceiveSerialUnit{
			{SerialNumber: "SN-001"},
			{SerialNumber: "SN-001"},
		},
	})
	require.Error(t, err)
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))
}

func TestReceiveSerials_ExistingSerialConflicts(t *testing.T) {
	st, svc := newSerialFixture()
	catalogItem := uuid.New()
	st.seedSerial(catalogItem, "SN-001", time.Now().UTC())

	_, err := svc.Receive(context.Background(), catalogItem, dto.ReceiveSerialsRequest{
		Units: []dto.ReceiveSerialUnit{{SerialNumber: "SN-001"}},
	})
	require.Error(t, err)
	assert.Equal(t, apierror.KindConflict, apierror.KindOf(err))
}

func TestClaim_TwoScannersOneWinner(t *testing.T) {
	st, svc := newSerialFixture()
	ctx := context.Background()
	catalogItem := uuid.New()
	st.seedSerial(catalogItem, "SN-001", time.Now().UTC())

	itemA, itemB := uuid.New(), uuid.New()

	claimed, err := svc.Claim(ctx, catalogItem, itemA, "SN-001")
	require.NoError(t, err)
	assert.Equal(t, model.SerialReserved, claimed.Status)
	require.NotNil(t, claimed.TransactionItemID)
	assert.Equal(t, itemA, *claimed.TransactionItemID)

	// Second scan of the same unit loses with a conflict.
	_, err = svc.Claim(ctx, catalogItem, itemB, "SN-001")
	require.Error(t, err)
	assert.Equal(t, apierror.KindConflict, apierror.KindOf(err))
}

func TestClaim_UnknownTagIsNotFound(t *testing.T) {
	_, svc := newSerialFixture()
	_, err := svc.Claim(context.Background(), uuid.New(), uuid.New(), "NO-SUCH-SERIAL")
	require.Error(t, err)
	assert.Equal(t, apierror.KindNotFound, apierror.KindOf(err))
}

func TestClaim_ByIMEI(t *testing.T) {
	st, svc := newSerialFixture()
	catalogItem := uuid.New()
	imei := "356938035643809"
	st.seedSerial(catalogItem, "SN-001", time.Now().UTC())
	st.serialByNumber("SN-001").IMEI = &imei

	claimed, err := svc.Claim(context.Background(), catalogItem, uuid.New(), imei)
	require.NoError(t, err)
	assert.Equal(t, "SN-001", claimed.SerialNumber)
}

func TestClaimCount_OldestFirst(t *testing.T) {
	st, svc := newSerialFixture()
	ctx := context.Background()
	catalogItem := uuid.New()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	st.seedSerial(catalogItem, "SN-NEW", base.AddDate(0, 1, 0))
	st.seedSerial(catalogItem, "SN-OLD", base)
	st.seedSerial(catalogItem, "SN-MID", base.AddDate(0, 0, 10))

	item := uuid.New()
	units, err := svc.ClaimCount(ctx, catalogItem, item, 2)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "SN-OLD", units[0].SerialNumber)
	assert.Equal(t, "SN-MID", units[1].SerialNumber)

	// The newest unit stays on the shelf.
	remaining, err := svc.ListAvailable(ctx, catalogItem)
	require.NoError(t, err)
	require.Len(t, remaining.Data, 1)
	assert.Equal(t, "SN-NEW", remaining.Data[0].SerialNumber)
}

func TestClaimCount_ShortPoolIsInsufficientStock(t *testing.T) {
	st, svc := newSerialFixture()
	catalogItem := uuid.New()
	st.seedSerial(catalogItem, "SN-001", time.Now().UTC())

	_, err := svc.ClaimCount(context.Background(), catalogItem, uuid.New(), 3)
	require.Error(t, err)
	assert.Equal(t, apierror.KindInsufficientStock, apierror.KindOf(err))
}

func TestRelease_ReturnsUnitsToPool(t *testing.T) {
	st, svc := newSerialFixture()
	ctx := context.Background()
	catalogItem := uuid.New()
	st.seedSerial(catalogItem, "SN-001", time.Now().UTC())

	item := uuid.New()
	_, err := svc.Claim(ctx, catalogItem, item, "SN-001")
	require.NoError(t, err)

	released, err := svc.Release(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	unit := st.serialByNumber("SN-001")
	assert.Equal(t, model.SerialAvailable, unit.Status)
	assert.Nil(t, unit.TransactionItemID)

	// The released unit can be claimed again.
	_, err = svc.Claim(ctx, catalogItem, uuid.New(), "SN-001")
	assert.NoError(t, err)
}

func TestFinalize_SaleMarksSold(t *testing.T) {
	st, svc := newSerialFixture()
	ctx := context.Background()
	catalogItem := uuid.New()
	st.seedSerial(catalogItem, "SN-001", time.Now().UTC())

	item := uuid.New()
	customer := uuid.New()
	_, err := svc.Claim(ctx, catalogItem, item, "SN-001")
	require.NoError(t, err)

	require.NoError(t, svc.FinalizeTx(ctx, nil, item, false, &customer))

	unit := st.serialByNumber("SN-001")
	assert.Equal(t, model.SerialSold, unit.Status)
	require.NotNil(t, unit.AssignedTo)
	assert.Equal(t, customer, *unit.AssignedTo)
}

func TestFinalize_ReturnRestoresAvailability(t *testing.T) {
	st, svc := newSerialFixture()
	ctx := context.Background()
	catalogItem := uuid.New()
	st.seedSerial(catalogItem, "SN-001", time.Now().UTC())

	item := uuid.New()
	_, err := svc.Claim(ctx, catalogItem, item, "SN-001")
	require.NoError(t, err)

	require.NoError(t, svc.FinalizeTx(ctx, nil, item, true, nil))

	unit := st.serialByNumber("SN-001")
	assert.Equal(t, model.SerialAvailable, unit.Status)
	assert.Nil(t, unit.TransactionItemID)
}
