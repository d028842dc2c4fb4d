package repository

import (
	"context"

	"tillpos/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionRepository interface {
	Create(ctx context.Context, s *model.Session) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	FindOpenByRegister(ctx context.Context, register string) (*model.Session, error)
	FindOpenByOperator(ctx context.Context, operatorID uuid.UUID) (*model.Session, error)
	ListClosed(ctx context.Context, page, limit int) ([]model.Session, int64, error)

	// Close performs the open→closed transition as a conditional update and
	// reports whether this call won the transition.
	Close(ctx context.Context, s *model.Session) (bool, error)

	// NextTicketTx atomically bumps the session-scoped ticket sequence.
	// Fails with gorm.ErrRecordNotFound when the session is not open.
	NextTicketTx(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int, error)

	// InsertRollupTx inserts the idempotency row for a completed transaction.
	// Returns false when a rollup for the same transaction already exists.
	InsertRollupTx(ctx context.Context, tx *gorm.DB, r *model.SessionRollup) (bool, error)

	// ApplyRollupTx increments the session counters for one rollup row.
	// Returns false when the session is no longer open.
	ApplyRollupTx(ctx context.Context, tx *gorm.DB, r *model.SessionRollup) (bool, error)

	DB() *gorm.DB // exposes the DB for transaction creation in service layer
}

type sessionRepo struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &sessionRepo{db: db} }

func (r *sessionRepo) DB() *gorm.DB { return r.db }

func (r *sessionRepo) Create(ctx context.Context, s *model.Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sessionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	var s model.Session
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	return &s, err
}

func (r *sessionRepo) FindOpenByRegister(ctx context.Context, register string) (*model.Session, error) {
	var s model.Session
	err := r.db.WithContext(ctx).
		Where("register = ? AND status = ?", register, model.SessionOpen).
		First(&s).Error
	return &s, err
}

func (r *sessionRepo) FindOpenByOperator(ctx context.Context, operatorID uuid.UUID) (*model.Session, error) {
	var s model.Session
	err := r.db.WithContext(ctx).
		Where("opened_by = ? AND status = ?", operatorID, model.SessionOpen).
		First(&s).Error
	return &s, err
}

func (r *sessionRepo) ListClosed(ctx context.Context, page, limit int) ([]model.Session, int64, error) {
	var sessions []model.Session
	var total int64
	q := r.db.WithContext(ctx).Model(&model.Session{}).Where("status = ?", model.SessionClosed)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("closed_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&sessions).Error
	return sessions, total, err
}

func (r *sessionRepo) Close(ctx context.Context, s *model.Session) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND status = ?", s.ID, model.SessionOpen).
		Updates(map[string]interface{}{
			"status":          model.SessionClosed,
			"closed_by":       s.ClosedBy,
			"closing_note":    s.ClosingNote,
			"counted_cash":    s.CountedCash,
			"expected_cash":   s.ExpectedCash,
			"cash_difference": s.CashDifference,
			"reconciliation":  s.Reconciliation,
			"closed_at":       s.ClosedAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *sessionRepo) NextTicketTx(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID) (int, error) {
	var num int
	err := tx.WithContext(ctx).Raw(
		"UPDATE sessions SET next_ticket = next_ticket + 1 WHERE id = ? AND status = ? RETURNING next_ticket",
		sessionID, model.SessionOpen,
	).Scan(&num).Error
	if err != nil {
		return 0, err
	}
	if num == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return num, nil
}

func (r *sessionRepo) InsertRollupTx(ctx context.Context, tx *gorm.DB, rollup *model.SessionRollup) (bool, error) {
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "transaction_id"}}, DoNothing: true}).
		Create(rollup)
	return res.RowsAffected == 1, res.Error
}

func (r *sessionRepo) ApplyRollupTx(ctx context.Context, tx *gorm.DB, rollup *model.SessionRollup) (bool, error) {
	updates := map[string]interface{}{
		"transaction_count":   gorm.Expr("transaction_count + 1"),
		"total_change_given":  gorm.Expr("total_change_given + ?", rollup.ChangeGiven),
		"total_cash_payments": gorm.Expr("total_cash_payments + ?", rollup.CashAmount),
		"total_sales":         gorm.Expr("total_sales + ?", rollup.Amount),
	}
	if rollup.Type == model.TxnTypeReturn {
		delete(updates, "total_sales")
		delete(updates, "total_cash_payments")
		updates["total_refunds"] = gorm.Expr("total_refunds + ?", rollup.Amount)
		updates["total_cash_refunds"] = gorm.Expr("total_cash_refunds + ?", rollup.CashAmount)
	}
	res := tx.WithContext(ctx).Model(&model.Session{}).
		Where("id = ? AND status = ?", rollup.SessionID, model.SessionOpen).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}
