package service

import (
	"context"
	"time"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/apierror"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/dto"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type StoreCreditService interface {
	Issue(ctx context.Context, tenantID uuid.UUID, issuedBy *uuid.UUID, req dto.IssueInstrumentRequest) (*dto.InstrumentResponse, error)
	// IssueForSale creates a refund- or negative-total-generated voucher
	// linked to its origin sale.
	IssueForSale(ctx context.Context, tenantID uuid.UUID, amount decimal.Decimal, originSaleID uuid.UUID, reason string) (*model.StoreCredit, error)
	CheckBalance(ctx context.Context, tenantID uuid.UUID, code string) (*dto.BalanceResponse, error)
	Validate(ctx context.Context, tenantID uuid.UUID, code string, amount decimal.Decimal) error
	Redeem(ctx context.Context, tenantID uuid.UUID, code string, amount decimal.Decimal, saleID *uuid.UUID) (*dto.RedeemResponse, error)
	Cancel(ctx context.Context, tenantID uuid.UUID, code, reason string) error
	Transactions(ctx context.Context, tenantID uuid.UUID, code string) ([]dto.TransactionResponse, error)
}

type storeCreditService struct {
	repo repository.StoreCreditRepository
}

func NewStoreCreditService(repo repository.StoreCreditRepository) StoreCreditService {
	return &storeCreditService{repo: repo}
}

func (s *storeCreditService) Issue(ctx context.Context, tenantID uuid.UUID, issuedBy *uuid.UUID, req dto.IssueInstrumentRequest) (*dto.InstrumentResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, apierror.Validation("store credit amount must be positive, got %s", req.Amount)
	}
	expiresAt, err := parseExpiry(req.ExpiresAt)
	if err != nil {
		return nil, err
	}
	var customerID *uuid.UUID
	if req.CustomerID != "" {
		id, err := uuid.Parse(req.CustomerID)
		if err != nil {
			return nil, apierror.Validation("invalid customer_id %q", req.CustomerID)
		}
		customerID = &id
	}
	var reason *string
	if req.Reason != "" {
		reason = &req.Reason
	}
	credit, err := s.create(ctx, model.StoreCredit{
		TenantID:       tenantID,
		InitialAmount:  req.Amount,
		CurrentBalance: req.Amount,
		Status:         model.StoreCreditActive,
		CustomerID:     customerID,
		IssuedByUserID: issuedBy,
		Reason:         reason,
		ExpiresAt:      expiresAt,
	})
	if err != nil {
		return nil, err
	}
	return storeCreditToResponse(credit), nil
}

func (s *storeCreditService) IssueForSale(ctx context.Context, tenantID uuid.UUID, amount decimal.Decimal, originSaleID uuid.UUID, reason string) (*model.StoreCredit, error) {
	if !amount.IsPositive() {
		return nil, apierror.Validation("store credit amount must be positive, got %s", amount)
	}
	return s.create(ctx, model.StoreCredit{
		TenantID:       tenantID,
		InitialAmount:  amount,
		CurrentBalance: amount,
		Status:         model.StoreCreditActive,
		OriginSaleID:   &originSaleID,
		Reason:         &reason,
	})
}

func (s *storeCreditService) create(ctx context.Context, template model.StoreCredit) (*model.StoreCredit, error) {
	var credit model.StoreCredit
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateInstrumentCode("SC")
		if err != nil {
			return nil, err
		}
		credit = template
		credit.Code = code
		txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
			if err := s.repo.Create(ctx, tx, &credit); err != nil {
				return err
			}
			return s.repo.AppendTransactionTx(tx, &model.InstrumentTransaction{
				StoreCreditID: &credit.ID,
				Type:          model.TxIssued,
				Amount:        credit.InitialAmount,
				BalanceAfter:  credit.InitialAmount,
				SaleID:        credit.OriginSaleID,
			})
		})
		if txErr == nil {
			return &credit, nil
		}
		if !isDuplicateKey(txErr) {
			return nil, txErr
		}
	}
	return nil, apierror.Conflict("could not allocate a unique store credit code after %d attempts", maxCodeAttempts)
}

func (s *storeCreditService) CheckBalance(ctx context.Context, tenantID uuid.UUID, code string) (*dto.BalanceResponse, error) {
	credit, err := s.findCredit(ctx, tenantID, code)
	if err != nil {
		return nil, err
	}

	if credit.Status == model.StoreCreditActive && instrumentExpired(credit.ExpiresAt) {
		txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
			if err := s.repo.UpdateStatusTx(tx, credit.ID, model.StoreCreditExpired); err != nil {
				return err
			}
			return s.repo.AppendTransactionTx(tx, &model.InstrumentTransaction{
				StoreCreditID: &credit.ID,
				Type:          model.TxExpired,
				Amount:        decimal.Zero,
				BalanceAfter:  credit.CurrentBalance,
			})
		})
		if txErr != nil {
			return nil, txErr
		}
		credit.Status = model.StoreCreditExpired
	}

	return &dto.BalanceResponse{
		Code:      credit.Code,
		Balance:   credit.CurrentBalance,
		Status:    credit.Status,
		IsExpired: instrumentExpired(credit.ExpiresAt),
	}, nil
}

func (s *storeCreditService) Validate(ctx context.Context, tenantID uuid.UUID, code string, amount decimal.Decimal) error {
	credit, err := s.findCredit(ctx, tenantID, code)
	if err != nil {
		return err
	}
	if credit.Status != model.StoreCreditActive {
		return apierror.InvalidState("store credit %s is %s and cannot be redeemed", code, credit.Status)
	}
	if instrumentExpired(credit.ExpiresAt) {
		return apierror.Expired("store credit %s expired on %s", code, credit.ExpiresAt.Format("2006-01-02"))
	}
	if credit.CurrentBalance.LessThan(amount) {
		return apierror.InsufficientFunds("store credit %s has balance %s, requested %s", code, credit.CurrentBalance, amount)
	}
	return nil
}

func (s *storeCreditService) Redeem(ctx context.Context, tenantID uuid.UUID, code string, amount decimal.Decimal, saleID *uuid.UUID) (*dto.RedeemResponse, error) {
	if !amount.IsPositive() {
		return nil, apierror.Validation("redemption amount must be positive, got %s", amount)
	}
	credit, err := s.findCredit(ctx, tenantID, code)
	if err != nil {
		return nil, err
	}

	var resp dto.RedeemResponse
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if credit.Status != model.StoreCreditActive {
			return apierror.InvalidState("store credit %s is %s and cannot be redeemed", code, credit.Status)
		}
		if instrumentExpired(credit.ExpiresAt) {
			return apierror.Expired("store credit %s expired on %s", code, credit.ExpiresAt.Format("2006-01-02"))
		}

		ok, err := s.repo.DecrementBalanceTx(tx, credit.ID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return apierror.InsufficientFunds("store credit %s has balance %s, requested %s", code, credit.CurrentBalance, amount)
		}

		fresh, err := s.repo.FindByIDTx(tx, credit.ID)
		if err != nil {
			return err
		}
		status := model.StoreCreditActive
		if fresh.CurrentBalance.IsZero() {
			status = model.StoreCreditUsed
			if err := s.repo.UpdateStatusTx(tx, credit.ID, status); err != nil {
				return err
			}
		}
		if err := s.repo.AppendTransactionTx(tx, &model.InstrumentTransaction{
			StoreCreditID: &credit.ID,
			Type:          model.TxRedeemed,
			Amount:        amount.Neg(),
			BalanceAfter:  fresh.CurrentBalance,
			SaleID:        saleID,
		}); err != nil {
			return err
		}
		resp = dto.RedeemResponse{Code: code, NewBalance: fresh.CurrentBalance, Status: status}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return &resp, nil
}

func (s *storeCreditService) Cancel(ctx context.Context, tenantID uuid.UUID, code, reason string) error {
	credit, err := s.findCredit(ctx, tenantID, code)
	if err != nil {
		return err
	}
	if credit.Status != model.StoreCreditActive {
		return apierror.InvalidState("store credit %s is %s and cannot be cancelled", code, credit.Status)
	}
	return runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.repo.UpdateStatusTx(tx, credit.ID, model.StoreCreditCancelled); err != nil {
			return err
		}
		return s.repo.AppendTransactionTx(tx, &model.InstrumentTransaction{
			StoreCreditID: &credit.ID,
			Type:          model.TxCancelled,
			Amount:        decimal.Zero,
			BalanceAfter:  credit.CurrentBalance,
			Reason:        &reason,
		})
	})
}

func (s *storeCreditService) Transactions(ctx context.Context, tenantID uuid.UUID, code string) ([]dto.TransactionResponse, error) {
	credit, err := s.findCredit(ctx, tenantID, code)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactions(ctx, credit.ID)
	if err != nil {
		return nil, err
	}
	return transactionsToResponse(txs), nil
}

func (s *storeCreditService) findCredit(ctx context.Context, tenantID uuid.UUID, code string) (*model.StoreCredit, error) {
	credit, err := s.repo.FindByCode(ctx, tenantID, code)
	if err != nil {
		return nil, apierror.NotFound("store credit %s not found", code)
	}
	return credit, nil
}

func storeCreditToResponse(c *model.StoreCredit) *dto.InstrumentResponse {
	resp := &dto.InstrumentResponse{
		Code:           c.Code,
		Status:         c.Status,
		InitialAmount:  c.InitialAmount,
		CurrentBalance: c.CurrentBalance,
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
	}
	if c.ExpiresAt != nil {
		t := c.ExpiresAt.Format(time.RFC3339)
		resp.ExpiresAt = &t
	}
	return resp
}
