package repository

import (
	"context"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CashRepository mutates session totals with atomic SQL increments only;
// the application layer never does read-modify-write on them.
type CashRepository interface {
	CreateSession(ctx context.Context, s *model.CashSession) error
	FindSessionByID(ctx context.Context, id uuid.UUID) (*model.CashSession, error)
	FindOpenSession(ctx context.Context, tenantID, userID, posID uuid.UUID) (*model.CashSession, error)
	UpdateSession(ctx context.Context, s *model.CashSession) error
	// ApplySaleTotalsTx increments the per-tender totals by the gross tendered
	// amounts and bumps sales_count/sales_total, inside the sale transaction.
	ApplySaleTotalsTx(tx *gorm.DB, sessionID uuid.UUID, tenders map[string]decimal.Decimal, saleTotal decimal.Decimal) error
	// ApplyWithdrawalTx decrements total_cash and accumulates withdrawals_total.
	ApplyWithdrawalTx(tx *gorm.DB, sessionID uuid.UUID, amount decimal.Decimal) error
	// ApplyDepositTx adds cash placed into the drawer outside a sale.
	ApplyDepositTx(tx *gorm.DB, sessionID uuid.UUID, amount decimal.Decimal) error
	CreateMovementTx(tx *gorm.DB, m *model.CashMovement) error
	ListMovements(ctx context.Context, sessionID uuid.UUID) ([]model.CashMovement, error)
	DB() *gorm.DB
}

type cashRepo struct{ db *gorm.DB }

func NewCashRepository(db *gorm.DB) CashRepository { return &cashRepo{db: db} }

func (r *cashRepo) DB() *gorm.DB { return r.db }

func (r *cashRepo) CreateSession(ctx context.Context, s *model.CashSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *cashRepo) FindSessionByID(ctx context.Context, id uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).Preload("Movements").First(&s, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *cashRepo) FindOpenSession(ctx context.Context, tenantID, userID, posID uuid.UUID) (*model.CashSession, error) {
	var s model.CashSession
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ? AND point_of_sale_id = ? AND status = ?",
			tenantID, userID, posID, model.SessionOpen).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *cashRepo) UpdateSession(ctx context.Context, s *model.CashSession) error {
	return r.db.WithContext(ctx).Save(s).Error
}

// tenderColumn maps a payment method to its session total column.
func tenderColumn(method string) string {
	switch method {
	case model.PayCash:
		return "total_cash"
	case model.PayCard, model.PayCredit:
		return "total_card"
	case model.PayDebit:
		return "total_debit"
	case model.PayQR:
		return "total_qr"
	case model.PayTransfer:
		return "total_transfer"
	default:
		return "total_other"
	}
}

func (r *cashRepo) ApplySaleTotalsTx(tx *gorm.DB, sessionID uuid.UUID, tenders map[string]decimal.Decimal, saleTotal decimal.Decimal) error {
	updates := map[string]interface{}{
		"sales_count": gorm.Expr("sales_count + 1"),
		"sales_total": gorm.Expr("sales_total + ?", saleTotal),
	}
	for method, amount := range tenders {
		col := tenderColumn(method)
		if prev, ok := updates[col]; ok {
			// Two methods sharing a column (CARD + CREDIT) fold into one expr.
			updates[col] = gorm.Expr("? + ?", prev, amount)
		} else {
			updates[col] = gorm.Expr(col+" + ?", amount)
		}
	}
	return tx.Model(&model.CashSession{}).
		Where("id = ? AND status = ?", sessionID, model.SessionOpen).
		Updates(updates).Error
}

func (r *cashRepo) ApplyWithdrawalTx(tx *gorm.DB, sessionID uuid.UUID, amount decimal.Decimal) error {
	return tx.Model(&model.CashSession{}).
		Where("id = ? AND status = ?", sessionID, model.SessionOpen).
		Updates(map[string]interface{}{
			"total_cash":        gorm.Expr("total_cash - ?", amount),
			"withdrawals_total": gorm.Expr("withdrawals_total + ?", amount),
		}).Error
}

func (r *cashRepo) ApplyDepositTx(tx *gorm.DB, sessionID uuid.UUID, amount decimal.Decimal) error {
	return tx.Model(&model.CashSession{}).
		Where("id = ? AND status = ?", sessionID, model.SessionOpen).
		Update("total_cash", gorm.Expr("total_cash + ?", amount)).Error
}

func (r *cashRepo) CreateMovementTx(tx *gorm.DB, m *model.CashMovement) error {
	return tx.Create(m).Error
}

func (r *cashRepo) ListMovements(ctx context.Context, sessionID uuid.UUID) ([]model.CashMovement, error) {
	var movs []model.CashMovement
	err := r.db.WithContext(ctx).
		Where("cash_session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&movs).Error
	return movs, err
}
