package service

import (
	"context"
	"errors"
	"time"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/apierror"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/dto"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CashService interface {
	OpenSession(ctx context.Context, tenantID, userID uuid.UUID, req dto.OpenSessionRequest) (*dto.SessionResponse, error)
	CloseSession(ctx context.Context, tenantID, userID, sessionID uuid.UUID, req dto.CloseSessionRequest) (*dto.SessionResponse, error)
	GetSession(ctx context.Context, tenantID, sessionID uuid.UUID) (*dto.SessionResponse, error)
	RegisterMovement(ctx context.Context, tenantID, userID, sessionID uuid.UUID, req dto.RegisterMovementRequest) (*dto.MovementResponse, error)
	ListMovements(ctx context.Context, tenantID, sessionID uuid.UUID) ([]dto.MovementResponse, error)
}

type cashService struct {
	cash     repository.CashRepository
	branches repository.BranchRepository
	authz    AuthzService
}

func NewCashService(cash repository.CashRepository, branches repository.BranchRepository, authz AuthzService) CashService {
	return &cashService{cash: cash, branches: branches, authz: authz}
}

func (s *cashService) OpenSession(ctx context.Context, tenantID, userID uuid.UUID, req dto.OpenSessionRequest) (*dto.SessionResponse, error) {
	if req.OpeningAmount.IsNegative() {
		return nil, apierror.Validation("opening_amount must not be negative")
	}
	posID, err := uuid.Parse(req.PointOfSaleID)
	if err != nil {
		return nil, apierror.Validation("invalid point_of_sale_id %q", req.PointOfSaleID)
	}
	if _, err := s.branches.FindPointOfSale(ctx, tenantID, posID); err != nil {
		return nil, apierror.NotFound("point of sale %s not found", req.PointOfSaleID)
	}
	if existing, err := s.cash.FindOpenSession(ctx, tenantID, userID, posID); err == nil {
		return nil, apierror.Conflict("session %s is already open on this register", existing.ID)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	session := &model.CashSession{
		TenantID:      tenantID,
		PointOfSaleID: posID,
		UserID:        userID,
		Status:        model.SessionOpen,
		OpeningAmount: req.OpeningAmount,
		OpenedAt:      time.Now(),
	}
	if err := s.cash.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return sessionToResponse(session), nil
}

func (s *cashService) CloseSession(ctx context.Context, tenantID, userID, sessionID uuid.UUID, req dto.CloseSessionRequest) (*dto.SessionResponse, error) {
	if _, err := s.authz.Authorize(ctx, tenantID, userID, PermCashClose, ""); err != nil {
		return nil, err
	}
	session, err := s.findSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionOpen {
		return nil, apierror.InvalidState("session %s is %s and cannot be closed", sessionID, session.Status)
	}

	// total_cash accumulates the gross cash tendered (change handed back is
	// not netted out) and withdrawals already decremented it, so the drawer
	// expectation is the float plus the recorded cash total; change given on
	// over-tendered sales surfaces in the difference.
	expected := session.OpeningAmount.Add(session.TotalCash)
	difference := req.DeclaredAmount.Sub(expected)
	now := time.Now()

	session.Status = model.SessionClosed
	session.ExpectedAmount = &expected
	session.DeclaredAmount = &req.DeclaredAmount
	session.Difference = &difference
	session.ClosedAt = &now
	if req.Notes != "" {
		session.Notes = &req.Notes
	}
	if err := s.cash.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	return sessionToResponse(session), nil
}

func (s *cashService) GetSession(ctx context.Context, tenantID, sessionID uuid.UUID) (*dto.SessionResponse, error) {
	session, err := s.findSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	return sessionToResponse(session), nil
}

func (s *cashService) RegisterMovement(ctx context.Context, tenantID, userID, sessionID uuid.UUID, req dto.RegisterMovementRequest) (*dto.MovementResponse, error) {
	session, err := s.findSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionOpen {
		return nil, apierror.InvalidState("session %s is %s; movements require an open session", sessionID, session.Status)
	}
	if !req.Amount.IsPositive() {
		return nil, apierror.Validation("movement amount must be positive")
	}

	mov := &model.CashMovement{
		CashSessionID: session.ID,
		Type:          req.Type,
		Amount:        req.Amount,
		Description:   req.Description,
	}

	if req.Type == model.MovementWithdrawal {
		authorizer, err := s.authz.Authorize(ctx, tenantID, userID, PermCashClose, req.SupervisorPIN)
		if err != nil {
			return nil, err
		}
		if session.OpeningAmount.Add(session.TotalCash).LessThan(req.Amount) {
			return nil, apierror.InsufficientFunds("drawer holds %s, cannot withdraw %s",
				session.OpeningAmount.Add(session.TotalCash), req.Amount)
		}
		if authorizer.ID != userID {
			mov.RequiresAuth = true
			mov.AuthorizedByUserID = &authorizer.ID
		}
	}

	txErr := runTx(ctx, s.cash.DB(), func(tx *gorm.DB) error {
		switch req.Type {
		case model.MovementWithdrawal:
			if err := s.cash.ApplyWithdrawalTx(tx, session.ID, req.Amount); err != nil {
				return err
			}
		case model.MovementDeposit:
			if err := s.cash.ApplyDepositTx(tx, session.ID, req.Amount); err != nil {
				return err
			}
		}
		return s.cash.CreateMovementTx(tx, mov)
	})
	if txErr != nil {
		return nil, txErr
	}
	return movementToResponse(mov), nil
}

func (s *cashService) ListMovements(ctx context.Context, tenantID, sessionID uuid.UUID) ([]dto.MovementResponse, error) {
	session, err := s.findSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	movs, err := s.cash.ListMovements(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.MovementResponse, 0, len(movs))
	for i := range movs {
		out = append(out, *movementToResponse(&movs[i]))
	}
	return out, nil
}

func (s *cashService) findSession(ctx context.Context, tenantID, sessionID uuid.UUID) (*model.CashSession, error) {
	session, err := s.cash.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, apierror.NotFound("session %s not found", sessionID)
	}
	if session.TenantID != tenantID {
		return nil, apierror.NotFound("session %s not found", sessionID)
	}
	return session, nil
}

func sessionToResponse(s *model.CashSession) *dto.SessionResponse {
	resp := &dto.SessionResponse{
		ID:               s.ID.String(),
		PointOfSaleID:    s.PointOfSaleID.String(),
		Status:           s.Status,
		OpeningAmount:    s.OpeningAmount,
		TotalCash:        s.TotalCash,
		TotalCard:        s.TotalCard,
		TotalDebit:       s.TotalDebit,
		TotalQr:          s.TotalQr,
		TotalTransfer:    s.TotalTransfer,
		TotalOther:       s.TotalOther,
		SalesCount:       s.SalesCount,
		SalesTotal:       s.SalesTotal,
		WithdrawalsTotal: s.WithdrawalsTotal,
		ExpectedAmount:   s.ExpectedAmount,
		DeclaredAmount:   s.DeclaredAmount,
		Difference:       s.Difference,
		OpenedAt:         s.OpenedAt.Format(time.RFC3339),
	}
	if s.ClosedAt != nil {
		t := s.ClosedAt.Format(time.RFC3339)
		resp.ClosedAt = &t
	}
	return resp
}

func movementToResponse(m *model.CashMovement) *dto.MovementResponse {
	return &dto.MovementResponse{
		ID:          m.ID.String(),
		Type:        m.Type,
		Amount:      m.Amount,
		Description: m.Description,
		CreatedAt:   m.CreatedAt.Format(time.RFC3339),
	}
}
