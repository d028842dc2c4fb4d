package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"tillpos/internal/apierror"
	"tillpos/internal/dto"
	"tillpos/internal/metrics"
	"tillpos/internal/model"
	"tillpos/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionService interface {
	Open(ctx context.Context, operatorID uuid.UUID, req dto.OpenSessionRequest) (*dto.SessionResponse, error)
	Close(ctx context.Context, sessionID, operatorID uuid.UUID, req dto.CloseSessionRequest) (*dto.ClosingReport, error)
	Report(ctx context.Context, sessionID uuid.UUID) (*dto.SessionResponse, error)
	Active(ctx context.Context, operatorID uuid.UUID) (*dto.SessionResponse, error)
	History(ctx context.Context, page, limit int) (*dto.SessionListResponse, error)

	// FindOpen is called by the transaction engine to validate the owning
	// session before creating a transaction under it.
	FindOpen(ctx context.Context, sessionID uuid.UUID) (*model.Session, error)

	// NextTicket bumps the session-scoped transaction number sequence inside
	// the caller's storage transaction.
	NextTicket(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int, error)

	// RecordCompletedTransaction applies a completed transaction's rollup to
	// the session counters inside the caller's storage transaction. Idempotent
	// per transaction id: a retried rollup is a no-op, never a double count.
	RecordCompletedTransaction(ctx context.Context, tx *gorm.DB, rollup *model.SessionRollup) error
}

type sessionService struct {
	repo repository.SessionRepository
}

func NewSessionService(repo repository.SessionRepository) SessionService {
	return &sessionService{repo: repo}
}

// ── Open ──────────────────────────────────────────────────────────────────────

func (s *sessionService) Open(ctx context.Context, operatorID uuid.UUID, req dto.OpenSessionRequest) (*dto.SessionResponse, error) {
	if req.StartingCash.IsNegative() {
		return nil, apierror.Validation("starting cash must not be negative")
	}

	// Guard: at most one open session per register. The partial unique index
	// on (register) WHERE status='open' backstops this check, so two
	// operators racing to open still produce exactly one winner.
	if existing, err := s.repo.FindOpenByRegister(ctx, req.Register); err == nil && existing != nil {
		return nil, apierror.Conflict("register %q already has an open session", req.Register)
	}

	session := &model.Session{
		Register:     req.Register,
		OpenedBy:     operatorID,
		StartingCash: req.StartingCash,
		OpeningNote:  req.OpeningNote,
		Status:       model.SessionOpen,
		OpenedAt:     time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		if isUniqueViolation(err) {
			return nil, apierror.Conflict("register %q already has an open session", req.Register)
		}
		return nil, apierror.Internal("could not open session", err)
	}
	return sessionToResponse(session), nil
}

// ── Close ─────────────────────────────────────────────────────────────────────

func (s *sessionService) Close(ctx context.Context, sessionID, operatorID uuid.UUID, req dto.CloseSessionRequest) (*dto.ClosingReport, error) {
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apierror.NotFound("session %s not found", sessionID)
	}
	if session.Status != model.SessionOpen {
		return nil, apierror.InvalidState("session is already closed")
	}

	expected := ExpectedCash(session)
	difference := req.CountedCash.Sub(expected).Round(2)
	outcome := ClassifyDifference(difference)
	now := time.Now().UTC()

	session.ClosedBy = &operatorID
	session.ClosingNote = req.ClosingNote
	session.CountedCash = &req.CountedCash
	session.ExpectedCash = &expected
	session.CashDifference = &difference
	session.Reconciliation = &outcome
	session.ClosedAt = &now

	won, err := s.repo.Close(ctx, session)
	if err != nil {
		return nil, apierror.Internal("could not close session", err)
	}
	if !won {
		// Another operator closed it between our read and the update.
		return nil, apierror.Conflict("session was closed by another operator")
	}
	session.Status = model.SessionClosed
	metrics.SessionsClosed.WithLabelValues(outcome).Inc()

	return &dto.ClosingReport{
		SessionID:      session.ID.String(),
		Register:       session.Register,
		StartingCash:   session.StartingCash,
		ExpectedCash:   expected,
		CountedCash:    req.CountedCash,
		Difference:     difference,
		Reconciliation: outcome,
		Counters:       sessionCounters(session),
		ClosedAt:       now.Format(time.RFC3339),
	}, nil
}

// ── RecordCompletedTransaction ────────────────────────────────────────────────

func (s *sessionService) RecordCompletedTransaction(ctx context.Context, tx *gorm.DB, rollup *model.SessionRollup) error {
	inserted, err := s.repo.InsertRollupTx(ctx, tx, rollup)
	if err != nil {
		return apierror.Internal("could not record rollup", err)
	}
	if !inserted {
		// Already rolled up — retried completion, nothing to add.
		return nil
	}
	applied, err := s.repo.ApplyRollupTx(ctx, tx, rollup)
	if err != nil {
		return apierror.Internal("could not update session counters", err)
	}
	if !applied {
		return apierror.InvalidState("session is closed")
	}
	return nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (s *sessionService) Report(ctx context.Context, sessionID uuid.UUID) (*dto.SessionResponse, error) {
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apierror.NotFound("session %s not found", sessionID)
	}
	return sessionToResponse(session), nil
}

func (s *sessionService) Active(ctx context.Context, operatorID uuid.UUID) (*dto.SessionResponse, error) {
	session, err := s.repo.FindOpenByOperator(ctx, operatorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierror.NotFound("no open session for operator")
		}
		return nil, apierror.Internal("could not look up session", err)
	}
	return sessionToResponse(session), nil
}

func (s *sessionService) History(ctx context.Context, page, limit int) (*dto.SessionListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	sessions, total, err := s.repo.ListClosed(ctx, page, limit)
	if err != nil {
		return nil, apierror.Internal("could not list sessions", err)
	}
	items := make([]dto.SessionResponse, 0, len(sessions))
	for i := range sessions {
		items = append(items, *sessionToResponse(&sessions[i]))
	}
	return &dto.SessionListResponse{Data: items, Total: total, Page: page, Limit: limit}, nil
}

func (s *sessionService) NextTicket(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int, error) {
	seq, err := s.repo.NextTicketTx(ctx, tx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Session closed between the pre-flight check and the write.
			return 0, apierror.InvalidState("session is closed")
		}
		return 0, apierror.Internal("could not allocate transaction number", err)
	}
	return seq, nil
}

func (s *sessionService) FindOpen(ctx context.Context, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, apierror.NotFound("session %s not found", sessionID)
	}
	if session.Status != model.SessionOpen {
		return nil, apierror.InvalidState("session is closed")
	}
	return session, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func sessionCounters(s *model.Session) dto.SessionCounters {
	return dto.SessionCounters{
		TransactionCount:  s.TransactionCount,
		TotalSales:        s.TotalSales,
		TotalRefunds:      s.TotalRefunds,
		TotalCashPayments: s.TotalCashPayments,
		TotalCashRefunds:  s.TotalCashRefunds,
		TotalChangeGiven:  s.TotalChangeGiven,
	}
}

func sessionToResponse(s *model.Session) *dto.SessionResponse {
	resp := &dto.SessionResponse{
		ID:           s.ID.String(),
		Register:     s.Register,
		OpenedBy:     s.OpenedBy.String(),
		StartingCash: s.StartingCash,
		OpeningNote:  s.OpeningNote,
		ClosingNote:  s.ClosingNote,
		Counters:     sessionCounters(s),
		ExpectedCash: ExpectedCash(s),
		Status:       s.Status,
		OpenedAt:     s.OpenedAt.Format(time.RFC3339),
	}
	if s.ClosedBy != nil {
		id := s.ClosedBy.String()
		resp.ClosedBy = &id
	}
	if s.ClosedAt != nil {
		t := s.ClosedAt.Format(time.RFC3339)
		resp.ClosedAt = &t
	}
	return resp
}

// isUniqueViolation detects a unique-index loss without importing the driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") || strings.Contains(msg, "duplicate key")
}
