package service_test

import (
	"context"
	"testing"

	"tillpos/internal/apierror"
	"tillpos/internal/dto"
	"tillpos/internal/model"
	"tillpos/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionFixture() (*memStore, service.SessionService) {
	st := newMemStore()
	return st, service.NewSessionService(&memSessionRepo{st: st})
}

func TestOpenSession(t *testing.T) {
	_, svc := newSessionFixture()
	operator := uuid.New()

	resp, err := svc.Open(context.Background(), operator, dto.OpenSessionRequest{
		Register:     "till-1",
		StartingCash: dec("100.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.SessionOpen, resp.Status)
	assert.Equal(t, "till-1", resp.Register)
	assert.True(t, resp.StartingCash.Equal(dec("100.00")))
	assert.True(t, resp.ExpectedCash.Equal(dec("100.00")), "expected cash starts at the float")
}

func TestOpenSession_SecondOpenOnRegisterConflicts(t *testing.T) {
	_, svc := newSessionFixture()
	ctx := context.Background()

	_, err := svc.Open(ctx, uuid.New(), dto.OpenSessionRequest{Register: "till-1", StartingCash: dec("100.00")})
	require.NoError(t, err)

	_, err = svc.Open(ctx, uuid.New(), dto.OpenSessionRequest{Register: "till-1", StartingCash: dec("50.00")})
	require.Error(t, err)
	assert.Equal(t, apierror.KindConflict, apierror.KindOf(err))

	// A different register is unaffected.
	_, err = svc.Open(ctx, uuid.New(), dto.OpenSessionRequest{Register: "till-2", StartingCash: dec("50.00")})
	assert.NoError(t, err)
}

func TestOpenSession_NegativeFloatRejected(t *testing.T) {
	_, svc := newSessionFixture()
	_, err := svc.Open(context.Background(), uuid.New(), dto.OpenSessionRequest{
		Register:     "till-1",
		StartingCash: dec("-1.00"),
	})
	require.Error(t, err)
	assert.Equal(t, apierror.KindValidation, apierror.KindOf(err))
}

func TestCloseSession_Balanced(t *testing.T) {
	st, svc := newSessionFixture()
	ctx := context.Background()
	operator := uuid.New()

	opened, err := svc.Open(ctx, operator, dto.OpenSessionRequest{Register: "till-1", StartingCash: dec("200.00")})
	require.NoError(t, err)
	sessionID := uuid.MustParse(opened.ID)

	// Simulate a day of completed transactions: $50 cash in, $20 change out.
	st.mu.Lock()
	s := st.sessions[sessionID]
	s.TotalCashPayments = dec("50.00")
	s.TotalChangeGiven = dec("20.00")
	st.mu.Unlock()

	report, err := svc.Close(ctx, sessionID, operator, dto.CloseSessionRequest{CountedCash: dec("230.00")})
	require.NoError(t, err)
	assert.True(t, report.ExpectedCash.Equal(dec("230.00")))
	assert.True(t, report.Difference.IsZero())
	assert.Equal(t, model.ReconBalanced, report.Reconciliation)
}

func TestCloseSession_ShortDrawer(t *testing.T) {
	st, svc := newSessionFixture()
	ctx := context.Background()
	operator := uuid.New()

	opened, err := svc.Open(ctx, operator, dto.OpenSessionRequest{Register: "till-1", StartingCash: dec("200.00")})
	require.NoError(t, err)
	sessionID := uuid.MustParse(opened.ID)

	st.mu.Lock()
	st.sessions[sessionID].TotalCashPayments = dec("50.00")
	st.mu.Unlock()

	report, err := svc.Close(ctx, sessionID, operator, dto.CloseSessionRequest{CountedCash: dec("245.00")})
	require.NoError(t, err)
	assert.True(t, report.Difference.Equal(dec("-5.00")))
	assert.Equal(t, model.ReconShort, report.Reconciliation)

	// Closed is terminal.
	_, err = svc.Close(ctx, sessionID, operator, dto.CloseSessionRequest{CountedCash: dec("245.00")})
	require.Error(t, err)
	assert.Equal(t, apierror.KindInvalidState, apierror.KindOf(err))
}

func TestCloseSession_NotFound(t *testing.T) {
	_, svc := newSessionFixture()
	_, err := svc.Close(context.Background(), uuid.New(), uuid.New(), dto.CloseSessionRequest{CountedCash: decimal.Zero})
	require.Error(t, err)
	assert.Equal(t, apierror.KindNotFound, apierror.KindOf(err))
}

func TestRecordCompletedTransaction_IdempotentPerTransaction(t *testing.T) {
	st, svc := newSessionFixture()
	ctx := context.Background()

	opened, err := svc.Open(ctx, uuid.New(), dto.OpenSessionRequest{Register: "till-1", StartingCash: dec("100.00")})
	require.NoError(t, err)
	sessionID := uuid.MustParse(opened.ID)

	rollup := &model.SessionRollup{
		SessionID:     sessionID,
		TransactionID: uuid.New(),
		Type:          model.TxnTypeSale,
		Amount:        dec("50.00"),
		CashAmount:    dec("60.00"),
		ChangeGiven:   dec("10.00"),
	}
	require.NoError(t, svc.RecordCompletedTransaction(ctx, nil, rollup))

	// Retried rollup is a no-op, never a double count.
	require.NoError(t, svc.RecordCompletedTransaction(ctx, nil, rollup))

	st.mu.Lock()
	s := st.sessions[sessionID]
	st.mu.Unlock()
	assert.Equal(t, 1, s.TransactionCount)
	assert.True(t, s.TotalSales.Equal(dec("50.00")))
	assert.True(t, s.TotalCashPayments.Equal(dec("60.00")))
	assert.True(t, s.TotalChangeGiven.Equal(dec("10.00")))
}

func TestRecordCompletedTransaction_ReturnFeedsRefundCounters(t *testing.T) {
	st, svc := newSessionFixture()
	ctx := context.Background()

	opened, err := svc.Open(ctx, uuid.New(), dto.OpenSessionRequest{Register: "till-1", StartingCash: dec("100.00")})
	require.NoError(t, err)
	sessionID := uuid.MustParse(opened.ID)

	require.NoError(t, svc.RecordCompletedTransaction(ctx, nil, &model.SessionRollup{
		SessionID:     sessionID,
		TransactionID: uuid.New(),
		Type:          model.TxnTypeReturn,
		Amount:        dec("30.00"),
		CashAmount:    dec("30.00"),
		ChangeGiven:   decimal.Zero,
	}))

	st.mu.Lock()
	s := st.sessions[sessionID]
	st.mu.Unlock()
	assert.True(t, s.TotalSales.IsZero())
	assert.True(t, s.TotalRefunds.Equal(dec("30.00")))
	assert.True(t, s.TotalCashRefunds.Equal(dec("30.00")))
}

func TestNextTicket_ClosedSessionRejected(t *testing.T) {
	_, svc := newSessionFixture()
	ctx := context.Background()
	operator := uuid.New()

	opened, err := svc.Open(ctx, operator, dto.OpenSessionRequest{Register: "till-1", StartingCash: decimal.Zero})
	require.NoError(t, err)
	sessionID := uuid.MustParse(opened.ID)

	seq, err := svc.NextTicket(ctx, nil, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)
	seq, err = svc.NextTicket(ctx, nil, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, seq)

	_, err = svc.Close(ctx, sessionID, operator, dto.CloseSessionRequest{CountedCash: decimal.Zero})
	require.NoError(t, err)

	_, err = svc.NextTicket(ctx, nil, sessionID)
	require.Error(t, err)
	assert.Equal(t, apierror.KindInvalidState, apierror.KindOf(err))
}

func TestActiveSession(t *testing.T) {
	_, svc := newSessionFixture()
	ctx := context.Background()
	operator := uuid.New()

	_, err := svc.Active(ctx, operator)
	require.Error(t, err)
	assert.Equal(t, apierror.KindNotFound, apierror.KindOf(err))

	opened, err := svc.Open(ctx, operator, dto.OpenSessionRequest{Register: "till-1", StartingCash: dec("80.00")})
	require.NoError(t, err)

	active, err := svc.Active(ctx, operator)
	require.NoError(t, err)
	assert.Equal(t, opened.ID, active.ID)
}
