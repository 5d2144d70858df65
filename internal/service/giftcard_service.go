package service

import (
	"context"
	"time"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/apierror"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/dto"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type GiftCardService interface {
	Issue(ctx context.Context, tenantID uuid.UUID, issuedBy *uuid.UUID, req dto.IssueInstrumentRequest) (*dto.InstrumentResponse, error)
	// CheckBalance lazily expires an overdue-but-ACTIVE card before reporting.
	CheckBalance(ctx context.Context, tenantID uuid.UUID, code string) (*dto.BalanceResponse, error)
	// Validate is the sale engine's pre-flight: status/expiry/balance checks
	// without mutating anything.
	Validate(ctx context.Context, tenantID uuid.UUID, code string, amount decimal.Decimal) error
	// Redeem activates an INACTIVE card first, then decrements the balance and
	// appends the ledger entry, all in one transaction.
	Redeem(ctx context.Context, tenantID uuid.UUID, code string, amount decimal.Decimal, saleID *uuid.UUID) (*dto.RedeemResponse, error)
	Cancel(ctx context.Context, tenantID uuid.UUID, code, reason string) error
	Transactions(ctx context.Context, tenantID uuid.UUID, code string) ([]dto.TransactionResponse, error)
}

type giftCardService struct {
	repo repository.GiftCardRepository
}

func NewGiftCardService(repo repository.GiftCardRepository) GiftCardService {
	return &giftCardService{repo: repo}
}

func (s *giftCardService) Issue(ctx context.Context, tenantID uuid.UUID, issuedBy *uuid.UUID, req dto.IssueInstrumentRequest) (*dto.InstrumentResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, apierror.Validation("gift card amount must be positive, got %s", req.Amount)
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

	var card model.GiftCard
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateInstrumentCode("GC")
		if err != nil {
			return nil, err
		}
		card = model.GiftCard{
			TenantID:       tenantID,
			Code:           code,
			InitialAmount:  req.Amount,
			CurrentBalance: req.Amount,
			Status:         model.GiftCardInactive,
			CustomerID:     customerID,
			IssuedByUserID: issuedBy,
			ExpiresAt:      expiresAt,
		}
		txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
			if err := s.repo.Create(ctx, tx, &card); err != nil {
				return err
			}
			return s.repo.AppendTransactionTx(tx, &model.InstrumentTransaction{
				GiftCardID:   &card.ID,
				Type:         model.TxIssued,
				Amount:       req.Amount,
				BalanceAfter: req.Amount,
			})
		})
		if txErr == nil {
			return giftCardToResponse(&card), nil
		}
		if !isDuplicateKey(txErr) {
			return nil, txErr
		}
	}
	return nil, apierror.Conflict("could not allocate a unique gift card code after %d attempts", maxCodeAttempts)
}

func (s *giftCardService) CheckBalance(ctx context.Context, tenantID uuid.UUID, code string) (*dto.BalanceResponse, error) {
	card, err := s.findCard(ctx, tenantID, code)
	if err != nil {
		return nil, err
	}

	if card.Status == model.GiftCardActive && instrumentExpired(card.ExpiresAt) {
		txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
			if err := s.repo.UpdateStatusTx(tx, card.ID, model.GiftCardExpired); err != nil {
				return err
			}
			return s.repo.AppendTransactionTx(tx, &model.InstrumentTransaction{
				GiftCardID:   &card.ID,
				Type:         model.TxExpired,
				Amount:       decimal.Zero,
				BalanceAfter: card.CurrentBalance,
			})
		})
		if txErr != nil {
			return nil, txErr
		}
		card.Status = model.GiftCardExpired
	}

	return &dto.BalanceResponse{
		Code:      card.Code,
		Balance:   card.CurrentBalance,
		Status:    card.Status,
		IsExpired: instrumentExpired(card.ExpiresAt),
	}, nil
}

func (s *giftCardService) Validate(ctx context.Context, tenantID uuid.UUID, code string, amount decimal.Decimal) error {
	card, err := s.findCard(ctx, tenantID, code)
	if err != nil {
		return err
	}
	switch card.Status {
	case model.GiftCardActive, model.GiftCardInactive:
	default:
		return apierror.InvalidState("gift card %s is %s and cannot be redeemed", code, card.Status)
	}
	if instrumentExpired(card.ExpiresAt) {
		return apierror.Expired("gift card %s expired on %s", code, card.ExpiresAt.Format("2006-01-02"))
	}
	if card.CurrentBalance.LessThan(amount) {
		return apierror.InsufficientFunds("gift card %s has balance %s, requested %s", code, card.CurrentBalance, amount)
	}
	return nil
}

func (s *giftCardService) Redeem(ctx context.Context, tenantID uuid.UUID, code string, amount decimal.Decimal, saleID *uuid.UUID) (*dto.RedeemResponse, error) {
	if !amount.IsPositive() {
		return nil, apierror.Validation("redemption amount must be positive, got %s", amount)
	}
	card, err := s.findCard(ctx, tenantID, code)
	if err != nil {
		return nil, err
	}

	var resp dto.RedeemResponse
	txErr := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		switch card.Status {
		case model.GiftCardActive:
		case model.GiftCardInactive:
			// First use activates the card.
			if err := s.repo.UpdateStatusTx(tx, card.ID, model.GiftCardActive); err != nil {
				return err
			}
			if err := s.repo.AppendTransactionTx(tx, &model.InstrumentTransaction{
				GiftCardID:   &card.ID,
				Type:         model.TxActivation,
				Amount:       decimal.Zero,
				BalanceAfter: card.CurrentBalance,
			}); err != nil {
				return err
			}
			log.Info().Str("code", code).Msg("gift card activated on first redemption")
		default:
			return apierror.InvalidState("gift card %s is %s and cannot be redeemed", code, card.Status)
		}

		if instrumentExpired(card.ExpiresAt) {
			return apierror.Expired("gift card %s expired on %s", code, card.ExpiresAt.Format("2006-01-02"))
		}

		ok, err := s.repo.DecrementBalanceTx(tx, card.ID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return apierror.InsufficientFunds("gift card %s has balance %s, requested %s", code, card.CurrentBalance, amount)
		}

		fresh, err := s.repo.FindByIDTx(tx, card.ID)
		if err != nil {
			return err
		}
		status := model.GiftCardActive
		if fresh.CurrentBalance.IsZero() {
			status = model.GiftCardDepleted
			if err := s.repo.UpdateStatusTx(tx, card.ID, status); err != nil {
				return err
			}
		}
		if err := s.repo.AppendTransactionTx(tx, &model.InstrumentTransaction{
			GiftCardID:   &card.ID,
			Type:         model.TxRedeemed,
			Amount:       amount.Neg(),
			BalanceAfter: fresh.CurrentBalance,
			SaleID:       saleID,
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

func (s *giftCardService) Cancel(ctx context.Context, tenantID uuid.UUID, code, reason string) error {
	card, err := s.findCard(ctx, tenantID, code)
	if err != nil {
		return err
	}
	switch card.Status {
	case model.GiftCardActive, model.GiftCardInactive:
	default:
		return apierror.InvalidState("gift card %s is %s and cannot be cancelled", code, card.Status)
	}
	return runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.repo.UpdateStatusTx(tx, card.ID, model.GiftCardCancelled); err != nil {
			return err
		}
		return s.repo.AppendTransactionTx(tx, &model.InstrumentTransaction{
			GiftCardID:   &card.ID,
			Type:         model.TxCancelled,
			Amount:       decimal.Zero,
			BalanceAfter: card.CurrentBalance,
			Reason:       &reason,
		})
	})
}

func (s *giftCardService) Transactions(ctx context.Context, tenantID uuid.UUID, code string) ([]dto.TransactionResponse, error) {
	card, err := s.findCard(ctx, tenantID, code)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactions(ctx, card.ID)
	if err != nil {
		return nil, err
	}
	return transactionsToResponse(txs), nil
}

func (s *giftCardService) findCard(ctx context.Context, tenantID uuid.UUID, code string) (*model.GiftCard, error) {
	card, err := s.repo.FindByCode(ctx, tenantID, code)
	if err != nil {
		return nil, apierror.NotFound("gift card %s not found", code)
	}
	return card, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func instrumentExpired(expiresAt *time.Time) bool {
	return expiresAt != nil && expiresAt.Before(time.Now())
}

func parseExpiry(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apierror.Validation("invalid expires_at %q, want RFC 3339", raw)
	}
	return &t, nil
}

func giftCardToResponse(c *model.GiftCard) *dto.InstrumentResponse {
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

func transactionsToResponse(txs []model.InstrumentTransaction) []dto.TransactionResponse {
	out := make([]dto.TransactionResponse, 0, len(txs))
	for _, t := range txs {
		r := dto.TransactionResponse{
			Type:         t.Type,
			Amount:       t.Amount,
			BalanceAfter: t.BalanceAfter,
			Reason:       t.Reason,
			CreatedAt:    t.CreatedAt.Format(time.RFC3339),
		}
		if t.SaleID != nil {
			id := t.SaleID.String()
			r.SaleID = &id
		}
		out = append(out, r)
	}
	return out
}
