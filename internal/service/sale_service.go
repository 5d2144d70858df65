package service

import (
	"context"
	"errors"
	"fmt"
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

// runTx executes fn inside a database transaction. A nil db runs fn directly
// with a nil tx, which lets unit tests exercise services against stub
// repositories without a database.
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// redemptionRetryDelay is the wait before the retry cron re-attempts a
// redemption that failed right after the sale committed.
const redemptionRetryDelay = 30 * time.Second

type SaleService interface {
	CreateSale(ctx context.Context, tenantID, cashierID uuid.UUID, req dto.CreateSaleRequest) (*dto.SaleResponse, error)
	GetSale(ctx context.Context, tenantID, id uuid.UUID) (*dto.SaleResponse, error)
	ListSales(ctx context.Context, tenantID uuid.UUID, filter dto.SaleFilter) (*dto.SaleListResponse, error)
	CancelSale(ctx context.Context, tenantID, id uuid.UUID) (*dto.SaleResponse, error)
}

type saleService struct {
	sales       repository.SaleRepository
	products    repository.ProductRepository
	branches    repository.BranchRepository
	cash        repository.CashRepository
	orders      repository.OrderRepository
	outbox      repository.OutboxRepository
	giftCards   GiftCardService
	storeCredit StoreCreditService
}

func NewSaleService(
	sales repository.SaleRepository,
	products repository.ProductRepository,
	branches repository.BranchRepository,
	cash repository.CashRepository,
	orders repository.OrderRepository,
	outbox repository.OutboxRepository,
	giftCards GiftCardService,
	storeCredit StoreCreditService,
) SaleService {
	return &saleService{
		sales:       sales,
		products:    products,
		branches:    branches,
		cash:        cash,
		orders:      orders,
		outbox:      outbox,
		giftCards:   giftCards,
		storeCredit: storeCredit,
	}
}

func (s *saleService) CreateSale(ctx context.Context, tenantID, cashierID uuid.UUID, req dto.CreateSaleRequest) (*dto.SaleResponse, error) {
	branchID, err := uuid.Parse(req.BranchID)
	if err != nil {
		return nil, apierror.Validation("invalid branch_id %q", req.BranchID)
	}
	posID, err := uuid.Parse(req.PointOfSaleID)
	if err != nil {
		return nil, apierror.Validation("invalid point_of_sale_id %q", req.PointOfSaleID)
	}
	branch, err := s.branches.FindBranch(ctx, tenantID, branchID)
	if err != nil {
		return nil, apierror.NotFound("branch %s not found", req.BranchID)
	}
	pos, err := s.branches.FindPointOfSale(ctx, tenantID, posID)
	if err != nil {
		return nil, apierror.NotFound("point of sale %s not found", req.PointOfSaleID)
	}
	if pos.BranchID != branch.ID {
		return nil, apierror.Validation("point of sale %s does not belong to branch %s", pos.Code, branch.Code)
	}
	var customerID *uuid.UUID
	if req.CustomerID != "" {
		id, err := uuid.Parse(req.CustomerID)
		if err != nil {
			return nil, apierror.Validation("invalid customer_id %q", req.CustomerID)
		}
		customerID = &id
	}

	items, trackedStock, err := s.buildItems(ctx, tenantID, req.Items)
	if err != nil {
		return nil, err
	}

	// Item subtotals already carry the line discounts, so the sale header's
	// subtotal and total are the same number; discount is reported separately.
	subtotal, discount, taxAmount := decimal.Zero, decimal.Zero, decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Subtotal)
		discount = discount.Add(it.Discount)
		taxAmount = taxAmount.Add(it.TaxAmount)
	}
	total := subtotal

	payments, change, err := s.buildPayments(ctx, tenantID, total, req.Payments)
	if err != nil {
		return nil, err
	}

	receipt := req.ReceiptType
	if receipt == "" {
		receipt = model.ReceiptTicket
	}

	// The open drawer session is optional: sales on registers without cash
	// handling (e.g. self-checkout terminals) simply skip the totals.
	session := s.openSession(ctx, tenantID, cashierID, posID)

	sale := model.Sale{
		TenantID:      tenantID,
		BranchID:      branch.ID,
		PointOfSaleID: pos.ID,
		CashierID:     cashierID,
		CustomerID:    customerID,
		ReceiptType:   receipt,
		Status:        model.SaleCompleted,
		Subtotal:      subtotal,
		Discount:      discount,
		TaxAmount:     taxAmount,
		Total:         total,
		Items:         items,
		Payments:      payments,
	}
	if req.Notes != "" {
		sale.Notes = &req.Notes
	}
	if session != nil {
		sale.CashSessionID = &session.ID
	}

	var pending []*model.PendingRedemption
	txErr := runTx(ctx, s.sales.DB(), func(tx *gorm.DB) error {
		seq, err := s.sales.NextSequenceTx(ctx, tx, tenantID, pos.ID, time.Now().Format("20060102"))
		if err != nil {
			return err
		}
		sale.SaleNumber = fmt.Sprintf("%s-%s-%s-%d", branch.Code, pos.Code, time.Now().Format("20060102"), seq)

		if err := s.sales.Create(ctx, tx, &sale); err != nil {
			return err
		}

		for _, mv := range trackedStock {
			if err := s.products.AdjustStockTx(tx, mv.productID, branch.ID, -mv.quantity); err != nil {
				return err
			}
		}

		if session != nil {
			tenders := tenderTotals(payments)
			if err := s.cash.ApplySaleTotalsTx(tx, session.ID, tenders, total); err != nil {
				return err
			}
		}

		for i := range sale.Payments {
			p := &sale.Payments[i]
			if p.ExternalReference != nil {
				// Losing the claim race is fine: the order was already bound
				// to another sale and reconciliation will flag the mismatch.
				claimed, err := s.orders.ClaimTx(tx, tenantID, *p.ExternalReference, sale.ID)
				if err != nil {
					return err
				}
				if !claimed {
					log.Warn().Str("external_reference", *p.ExternalReference).
						Str("sale_id", sale.ID.String()).
						Msg("payment order already claimed or unknown")
				}
			}
			if p.InstrumentCode == nil {
				continue
			}
			kind := model.KindGiftCard
			if p.Method == model.PayVoucher {
				kind = model.KindStoreCredit
			}
			pr := &model.PendingRedemption{
				TenantID:       tenantID,
				SaleID:         sale.ID,
				InstrumentKind: kind,
				InstrumentCode: *p.InstrumentCode,
				Amount:         p.Amount,
				Status:         model.RedemptionPending,
			}
			if err := s.outbox.CreateRedemptionTx(tx, pr); err != nil {
				return err
			}
			pending = append(pending, pr)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	resp := saleToResponse(&sale)
	resp.Change = change
	resp.RedemptionWarnings = s.applyRedemptions(ctx, tenantID, pending)

	// A negative total is a net return: the customer walks out with a voucher
	// for the difference instead of cash.
	if total.IsNegative() {
		credit, err := s.storeCredit.IssueForSale(ctx, tenantID, total.Neg(), sale.ID, "negative-total sale "+sale.SaleNumber)
		if err != nil {
			log.Error().Err(err).Str("sale_id", sale.ID.String()).Msg("store credit issuance failed after sale commit")
			resp.RedemptionWarnings = append(resp.RedemptionWarnings,
				fmt.Sprintf("store credit for %s could not be issued: %v", total.Neg(), err))
		} else {
			resp.StoreCreditCode = &credit.Code
		}
	}
	return resp, nil
}

type stockMove struct {
	productID uuid.UUID
	quantity  int
}

func (s *saleService) buildItems(ctx context.Context, tenantID uuid.UUID, reqs []dto.SaleItemRequest) ([]model.SaleItem, []stockMove, error) {
	items := make([]model.SaleItem, 0, len(reqs))
	var moves []stockMove
	for i, r := range reqs {
		if r.Quantity == 0 {
			return nil, nil, apierror.Validation("item %d: quantity must not be zero", i)
		}
		item := model.SaleItem{
			Quantity:    r.Quantity,
			UnitPrice:   r.UnitPrice,
			Discount:    r.Discount,
			Description: r.Description,
			IsReturn:    r.Quantity < 0,
		}
		if r.ProductID != "" {
			pid, err := uuid.Parse(r.ProductID)
			if err != nil {
				return nil, nil, apierror.Validation("item %d: invalid product_id %q", i, r.ProductID)
			}
			product, err := s.products.FindByID(ctx, tenantID, pid)
			if err != nil {
				return nil, nil, apierror.NotFound("item %d: product %s not found", i, r.ProductID)
			}
			item.ProductID = &product.ID
			if item.Description == "" {
				item.Description = product.Name
			}
			if item.UnitPrice.IsZero() {
				item.UnitPrice = product.Price
			}
			if r.TaxRate != nil {
				item.TaxRate = *r.TaxRate
			} else {
				item.TaxRate = product.TaxRate
			}
			if product.TracksStock {
				moves = append(moves, stockMove{productID: product.ID, quantity: r.Quantity})
			}
		} else {
			if item.Description == "" {
				return nil, nil, apierror.Validation("item %d: free-text items require a description", i)
			}
			if !item.UnitPrice.IsPositive() {
				return nil, nil, apierror.Validation("item %d: free-text items require a positive unit_price", i)
			}
			if r.TaxRate != nil {
				item.TaxRate = *r.TaxRate
			} else {
				item.TaxRate = decimal.NewFromInt(21)
			}
		}
		if item.TaxRate.IsNegative() {
			return nil, nil, apierror.Validation("item %d: tax_rate must not be negative", i)
		}
		if item.Discount.IsNegative() {
			return nil, nil, apierror.Validation("item %d: discount must not be negative", i)
		}

		gross := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Sub(item.Discount)
		item.Subtotal = gross
		item.TaxAmount = taxPortion(gross, item.TaxRate)
		item.NetPrice = item.UnitPrice.Sub(taxPortion(item.UnitPrice, item.TaxRate))
		items = append(items, item)
	}
	return items, moves, nil
}

// buildPayments validates tender completeness: a positive total must be fully
// covered (overpayment is returned as change), a zero or negative total takes
// no payments at all.
func (s *saleService) buildPayments(ctx context.Context, tenantID uuid.UUID, total decimal.Decimal, reqs []dto.PaymentRequest) ([]model.Payment, decimal.Decimal, error) {
	if !total.IsPositive() {
		if len(reqs) > 0 {
			return nil, decimal.Zero, apierror.Validation(
				"sale total %s is not positive; payments are not accepted", total)
		}
		return nil, decimal.Zero, nil
	}
	if len(reqs) == 0 {
		return nil, decimal.Zero, apierror.Validation("at least one payment is required")
	}

	payments := make([]model.Payment, 0, len(reqs))
	paid := decimal.Zero
	for i, r := range reqs {
		if !r.Amount.IsPositive() {
			return nil, decimal.Zero, apierror.Validation("payment %d: amount must be positive", i)
		}
		p := model.Payment{
			Method:       r.Method,
			Amount:       r.Amount,
			Status:       model.PaymentCompleted,
			Installments: 1,
		}
		if r.Installments > 1 {
			p.Installments = r.Installments
		}
		switch r.Method {
		case model.PayGiftCard:
			if r.InstrumentCode == "" {
				return nil, decimal.Zero, apierror.Validation("payment %d: gift card payments require instrument_code", i)
			}
			if err := s.giftCards.Validate(ctx, tenantID, r.InstrumentCode, r.Amount); err != nil {
				return nil, decimal.Zero, err
			}
			p.InstrumentCode = &r.InstrumentCode
		case model.PayVoucher:
			if r.InstrumentCode == "" {
				return nil, decimal.Zero, apierror.Validation("payment %d: voucher payments require instrument_code", i)
			}
			if err := s.storeCredit.Validate(ctx, tenantID, r.InstrumentCode, r.Amount); err != nil {
				return nil, decimal.Zero, err
			}
			p.InstrumentCode = &r.InstrumentCode
		case model.PayCash, model.PayCard, model.PayDebit, model.PayQR,
			model.PayTransfer, model.PayCredit, model.PayPoints, model.PayOther:
		default:
			return nil, decimal.Zero, apierror.Validation("payment %d: unknown method %q", i, r.Method)
		}
		if r.TransactionID != "" {
			p.TransactionID = &r.TransactionID
		}
		if r.ExternalReference != "" {
			p.ExternalReference = &r.ExternalReference
		}
		if r.CardBrand != "" {
			p.CardBrand = &r.CardBrand
		}
		if r.CardLastFour != "" {
			p.CardLastFour = &r.CardLastFour
		}
		paid = paid.Add(r.Amount)
		payments = append(payments, p)
	}

	if paid.LessThan(total) {
		return nil, decimal.Zero, apierror.InsufficientFunds(
			"payments cover %s of total %s", paid, total)
	}
	// Over-tender is never refused regardless of method mix; the excess is
	// reported back as change.
	return payments, paid.Sub(total), nil
}

// tenderTotals folds the payment lines into per-method drawer increments.
// Totals accumulate the gross tendered amounts; change handed back is not
// deducted here.
func tenderTotals(payments []model.Payment) map[string]decimal.Decimal {
	tenders := make(map[string]decimal.Decimal, len(payments))
	for _, p := range payments {
		tenders[p.Method] = tenders[p.Method].Add(p.Amount)
	}
	return tenders
}

func (s *saleService) openSession(ctx context.Context, tenantID, cashierID, posID uuid.UUID) *model.CashSession {
	session, err := s.cash.FindOpenSession(ctx, tenantID, cashierID, posID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().Err(err).Msg("open cash session lookup failed")
		}
		return nil
	}
	return session
}

// applyRedemptions drains the outbox rows written during the sale transaction.
// The sale has already committed; a redemption failure leaves the row PENDING
// for the retry cron and surfaces a warning to the register.
func (s *saleService) applyRedemptions(ctx context.Context, tenantID uuid.UUID, pending []*model.PendingRedemption) []string {
	var warnings []string
	for _, pr := range pending {
		var err error
		switch pr.InstrumentKind {
		case model.KindGiftCard:
			_, err = s.giftCards.Redeem(ctx, tenantID, pr.InstrumentCode, pr.Amount, &pr.SaleID)
		case model.KindStoreCredit:
			_, err = s.storeCredit.Redeem(ctx, tenantID, pr.InstrumentCode, pr.Amount, &pr.SaleID)
		}
		pr.Attempts++
		if err == nil {
			pr.Status = model.RedemptionDone
			pr.NextRetryAt = nil
			pr.LastError = nil
		} else {
			log.Error().Err(err).
				Str("sale_id", pr.SaleID.String()).
				Str("code", pr.InstrumentCode).
				Msg("instrument redemption failed after sale commit")
			retryAt := time.Now().Add(redemptionRetryDelay)
			pr.NextRetryAt = &retryAt
			msg := err.Error()
			pr.LastError = &msg
			warnings = append(warnings,
				fmt.Sprintf("redemption of %s for %s is pending retry: %v", pr.InstrumentCode, pr.Amount, err))
		}
		if updErr := s.outbox.UpdateRedemption(ctx, pr); updErr != nil {
			log.Error().Err(updErr).Str("redemption_id", pr.ID.String()).Msg("redemption state update failed")
		}
	}
	return warnings
}

func (s *saleService) GetSale(ctx context.Context, tenantID, id uuid.UUID) (*dto.SaleResponse, error) {
	sale, err := s.sales.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, apierror.NotFound("sale %s not found", id)
	}
	return saleToResponse(sale), nil
}

func (s *saleService) ListSales(ctx context.Context, tenantID uuid.UUID, filter dto.SaleFilter) (*dto.SaleListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}
	sales, total, err := s.sales.List(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	resp := &dto.SaleListResponse{
		Data:  make([]dto.SaleResponse, 0, len(sales)),
		Total: total,
		Page:  filter.Page,
		Limit: filter.Limit,
	}
	for i := range sales {
		resp.Data = append(resp.Data, *saleToResponse(&sales[i]))
	}
	return resp, nil
}

func (s *saleService) CancelSale(ctx context.Context, tenantID, id uuid.UUID) (*dto.SaleResponse, error) {
	sale, err := s.sales.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, apierror.NotFound("sale %s not found", id)
	}
	if sale.Status != model.SaleCompleted {
		return nil, apierror.InvalidState("sale %s is %s and cannot be cancelled", sale.SaleNumber, sale.Status)
	}
	for _, it := range sale.Items {
		if len(it.RefundItems) > 0 {
			return nil, apierror.InvalidState("sale %s has refunds and cannot be cancelled", sale.SaleNumber)
		}
	}
	txErr := runTx(ctx, s.sales.DB(), func(tx *gorm.DB) error {
		if err := s.sales.UpdateStatusTx(tx, sale.ID, model.SaleCancelled); err != nil {
			return err
		}
		for _, it := range sale.Items {
			if it.ProductID == nil {
				continue
			}
			if err := s.products.AdjustStockTx(tx, *it.ProductID, sale.BranchID, it.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	sale.Status = model.SaleCancelled
	return saleToResponse(sale), nil
}

func saleToResponse(s *model.Sale) *dto.SaleResponse {
	resp := &dto.SaleResponse{
		ID:          s.ID.String(),
		SaleNumber:  s.SaleNumber,
		ReceiptType: s.ReceiptType,
		Status:      s.Status,
		Subtotal:    s.Subtotal,
		Discount:    s.Discount,
		TaxAmount:   s.TaxAmount,
		Total:       s.Total,
		Change:      decimal.Zero,
		Items:       make([]dto.SaleItemResponse, 0, len(s.Items)),
		Payments:    make([]dto.PaymentResponse, 0, len(s.Payments)),
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
	}
	for _, it := range s.Items {
		item := dto.SaleItemResponse{
			ID:          it.ID.String(),
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Discount:    it.Discount,
			TaxRate:     it.TaxRate,
			TaxAmount:   it.TaxAmount,
			Subtotal:    it.Subtotal,
			IsReturn:    it.IsReturn,
		}
		if it.ProductID != nil {
			pid := it.ProductID.String()
			item.ProductID = &pid
		}
		resp.Items = append(resp.Items, item)
	}
	for _, p := range s.Payments {
		resp.Payments = append(resp.Payments, dto.PaymentResponse{
			ID:           p.ID.String(),
			Method:       p.Method,
			Amount:       p.Amount,
			Status:       p.Status,
			CardBrand:    p.CardBrand,
			CardLastFour: p.CardLastFour,
		})
	}
	return resp
}
