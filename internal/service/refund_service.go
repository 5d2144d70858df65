package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/apierror"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/dto"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/infra"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// creditNoteRetryDelay is the wait before the retry cron re-attempts an
// emission that failed right after the refund committed.
const creditNoteRetryDelay = 2 * time.Minute

type RefundService interface {
	Refund(ctx context.Context, tenantID, actorID uuid.UUID, req dto.RefundRequest) (*dto.RefundResponse, error)
}

type refundService struct {
	sales       repository.SaleRepository
	products    repository.ProductRepository
	branches    repository.BranchRepository
	cash        repository.CashRepository
	outbox      repository.OutboxRepository
	storeCredit StoreCreditService
	authz       AuthzService
	emitter     infra.TaxDocEmitter
	cb          *infra.CircuitBreaker
}

func NewRefundService(
	sales repository.SaleRepository,
	products repository.ProductRepository,
	branches repository.BranchRepository,
	cash repository.CashRepository,
	outbox repository.OutboxRepository,
	storeCredit StoreCreditService,
	authz AuthzService,
	emitter infra.TaxDocEmitter,
	cb *infra.CircuitBreaker,
) RefundService {
	return &refundService{
		sales:       sales,
		products:    products,
		branches:    branches,
		cash:        cash,
		outbox:      outbox,
		storeCredit: storeCredit,
		authz:       authz,
		emitter:     emitter,
		cb:          cb,
	}
}

// refundLine pairs an original item with the mirror row about to be written.
type refundLine struct {
	original *model.SaleItem
	quantity int
	amount   decimal.Decimal
	restock  bool
}

func (s *refundService) Refund(ctx context.Context, tenantID, actorID uuid.UUID, req dto.RefundRequest) (*dto.RefundResponse, error) {
	// Cash refunds pass two gates: the general refund permission and, on top
	// of it, the cash-handling one. The cash gate's authorizer is the one
	// attributed on the drawer movement.
	authorizer, err := s.authz.Authorize(ctx, tenantID, actorID, PermRefund, req.SupervisorPIN)
	if err != nil {
		return nil, err
	}
	if req.RefundType == dto.RefundCash {
		authorizer, err = s.authz.Authorize(ctx, tenantID, actorID, PermCashRefund, req.SupervisorPIN)
		if err != nil {
			return nil, err
		}
	}

	originalID, err := uuid.Parse(req.OriginalSaleID)
	if err != nil {
		return nil, apierror.Validation("invalid original_sale_id %q", req.OriginalSaleID)
	}
	original, err := s.sales.FindByID(ctx, tenantID, originalID)
	if err != nil {
		return nil, apierror.NotFound("sale %s not found", req.OriginalSaleID)
	}
	switch original.Status {
	case model.SaleCompleted, model.SalePartialRefund:
	default:
		return nil, apierror.InvalidState("sale %s is %s and cannot be refunded", original.SaleNumber, original.Status)
	}

	lines, err := s.buildLines(ctx, tenantID, original, req.Items)
	if err != nil {
		return nil, err
	}

	refundTotal := decimal.Zero
	for _, l := range lines {
		refundTotal = refundTotal.Add(l.amount)
	}

	// Refunded so far, from the mirror items already pointing at this sale.
	prevRefunded := decimal.Zero
	for _, it := range original.Items {
		for _, m := range it.RefundItems {
			prevRefunded = prevRefunded.Add(m.Subtotal.Abs())
		}
	}
	fullRefund := amountsEqual(refundTotal.Add(prevRefunded), original.Total)

	cashReturned, creditAmount := splitTender(req.RefundType, refundTotal, original)

	mirror := s.buildMirror(original, lines, refundTotal, actorID)

	var session *model.CashSession
	if cashReturned.IsPositive() {
		session, err = s.cash.FindOpenSession(ctx, tenantID, actorID, original.PointOfSaleID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, err
			}
			// No open drawer: the cash portion converts to store credit
			// rather than failing the refund.
			log.Warn().Str("sale_id", original.ID.String()).
				Msg("cash refund without an open session, converting to store credit")
			creditAmount = creditAmount.Add(cashReturned)
			cashReturned = decimal.Zero
		}
	}

	txErr := runTx(ctx, s.sales.DB(), func(tx *gorm.DB) error {
		for _, l := range lines {
			refunded, err := s.sales.RefundedQuantityTx(tx, l.original.ID)
			if err != nil {
				return err
			}
			if refunded+l.quantity > l.original.Quantity {
				return apierror.Conflict("item %q: %d of %d already refunded, cannot refund %d more",
					l.original.Description, refunded, l.original.Quantity, l.quantity)
			}
		}

		if err := s.sales.Create(ctx, tx, mirror); err != nil {
			return err
		}

		status := model.SalePartialRefund
		if fullRefund {
			status = model.SaleRefunded
		}
		if err := s.sales.UpdateStatusTx(tx, original.ID, status); err != nil {
			return err
		}

		for _, l := range lines {
			if l.restock {
				if err := s.products.AdjustStockTx(tx, *l.original.ProductID, original.BranchID, l.quantity); err != nil {
					return err
				}
			}
		}

		if session != nil && cashReturned.IsPositive() {
			if err := s.cash.ApplyWithdrawalTx(tx, session.ID, cashReturned); err != nil {
				return err
			}
			mov := &model.CashMovement{
				CashSessionID: session.ID,
				Type:          model.MovementWithdrawal,
				Amount:        cashReturned,
				Description:   "cash refund of sale " + original.SaleNumber,
				ReferenceID:   &mirror.ID,
			}
			if authorizer.ID != actorID {
				mov.RequiresAuth = true
				mov.AuthorizedByUserID = &authorizer.ID
			}
			if err := s.cash.CreateMovementTx(tx, mov); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	resp := &dto.RefundResponse{
		RefundSale:   *saleToResponse(mirror),
		RefundTotal:  refundTotal,
		FullRefund:   fullRefund,
		CashReturned: cashReturned,
	}

	if creditAmount.IsPositive() {
		credit, err := s.storeCredit.IssueForSale(ctx, tenantID, creditAmount, mirror.ID, "refund of sale "+original.SaleNumber)
		if err != nil {
			log.Error().Err(err).Str("refund_sale_id", mirror.ID.String()).Msg("store credit issuance failed after refund commit")
			msg := err.Error()
			resp.StoreCreditError = &msg
		} else {
			resp.StoreCreditCode = &credit.Code
		}
	}

	if req.EmitCreditNote && invoicedReceipt(original.ReceiptType) {
		noteID, emitErr := s.emitCreditNote(ctx, tenantID, original, mirror, refundTotal)
		if noteID != nil {
			idStr := noteID.String()
			resp.CreditNoteID = &idStr
		}
		if emitErr != nil {
			msg := emitErr.Error()
			resp.CreditNoteError = &msg
		}
	}
	return resp, nil
}

func (s *refundService) buildLines(ctx context.Context, tenantID uuid.UUID, original *model.Sale, reqs []dto.RefundItemRequest) ([]refundLine, error) {
	byID := make(map[uuid.UUID]*model.SaleItem, len(original.Items))
	for i := range original.Items {
		byID[original.Items[i].ID] = &original.Items[i]
	}

	lines := make([]refundLine, 0, len(reqs))
	for i, r := range reqs {
		itemID, err := uuid.Parse(r.SaleItemID)
		if err != nil {
			return nil, apierror.Validation("item %d: invalid sale_item_id %q", i, r.SaleItemID)
		}
		item, ok := byID[itemID]
		if !ok {
			return nil, apierror.Validation("item %d: %s does not belong to sale %s", i, r.SaleItemID, original.SaleNumber)
		}
		if item.IsReturn || item.Quantity <= 0 {
			return nil, apierror.Validation("item %d: %q is a return line and cannot be refunded", i, item.Description)
		}
		if r.Quantity <= 0 {
			return nil, apierror.Validation("item %d: quantity must be positive", i)
		}
		already := 0
		for _, m := range item.RefundItems {
			if m.Quantity < 0 {
				already += -m.Quantity
			} else {
				already += m.Quantity
			}
		}
		if already+r.Quantity > item.Quantity {
			return nil, apierror.Conflict("item %q: %d of %d already refunded, cannot refund %d more",
				item.Description, already, item.Quantity, r.Quantity)
		}

		// Proportional share of the discounted line amount.
		amount := item.Subtotal.
			Div(decimal.NewFromInt(int64(item.Quantity))).
			Mul(decimal.NewFromInt(int64(r.Quantity))).
			Round(2)

		line := refundLine{original: item, quantity: r.Quantity, amount: amount}
		if item.ProductID != nil {
			product, err := s.products.FindByID(ctx, tenantID, *item.ProductID)
			if err == nil && product.TracksStock {
				line.restock = true
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *refundService) buildMirror(original *model.Sale, lines []refundLine, refundTotal decimal.Decimal, actorID uuid.UUID) *model.Sale {
	taxTotal := decimal.Zero
	items := make([]model.SaleItem, 0, len(lines))
	for _, l := range lines {
		tax := taxPortion(l.amount, l.original.TaxRate)
		taxTotal = taxTotal.Add(tax)
		items = append(items, model.SaleItem{
			ProductID:      l.original.ProductID,
			Description:    l.original.Description,
			Quantity:       -l.quantity,
			UnitPrice:      l.original.UnitPrice,
			NetPrice:       l.original.NetPrice,
			TaxRate:        l.original.TaxRate,
			TaxAmount:      tax.Neg(),
			Subtotal:       l.amount.Neg(),
			IsReturn:       true,
			OriginalItemID: &l.original.ID,
		})
	}
	return &model.Sale{
		TenantID:       original.TenantID,
		BranchID:       original.BranchID,
		PointOfSaleID:  original.PointOfSaleID,
		CashierID:      actorID,
		CustomerID:     original.CustomerID,
		SaleNumber:     "DEV-" + original.SaleNumber,
		ReceiptType:    creditNoteReceipt(original.ReceiptType),
		Status:         model.SaleCompleted,
		Subtotal:       refundTotal.Neg(),
		TaxAmount:      taxTotal.Neg(),
		Total:          refundTotal.Neg(),
		OriginalSaleID: &original.ID,
		Items:          items,
		Payments: []model.Payment{{
			Method: model.PayCredit,
			Amount: refundTotal.Neg(),
			Status: model.PaymentCompleted,
		}},
	}
}

// splitTender decides how the refunded value leaves the store. Cash refunds
// return cash only in the proportion the customer originally paid in cash;
// the remainder becomes store credit. Exchanges hand back nothing.
func splitTender(refundType string, refundTotal decimal.Decimal, original *model.Sale) (cash, credit decimal.Decimal) {
	switch refundType {
	case dto.RefundCash:
		originalCash := decimal.Zero
		for _, p := range original.Payments {
			if p.Method == model.PayCash {
				originalCash = originalCash.Add(p.Amount)
			}
		}
		if original.Total.IsPositive() && originalCash.IsPositive() {
			cash = refundTotal.Mul(originalCash.Div(original.Total)).Round(2)
			if cash.GreaterThan(refundTotal) {
				cash = refundTotal
			}
		}
		return cash, refundTotal.Sub(cash)
	case dto.RefundStoreCredit:
		return decimal.Zero, refundTotal
	default: // EXCHANGE settles on the replacement sale
		return decimal.Zero, decimal.Zero
	}
}

func invoicedReceipt(receipt string) bool {
	switch receipt {
	case model.ReceiptFacturaA, model.ReceiptFacturaB, model.ReceiptFacturaC:
		return true
	}
	return false
}

func creditNoteReceipt(receipt string) string {
	switch receipt {
	case model.ReceiptFacturaA:
		return model.ReceiptCreditNoteA
	case model.ReceiptFacturaB:
		return model.ReceiptCreditNoteB
	case model.ReceiptFacturaC:
		return model.ReceiptCreditNoteC
	default:
		return model.ReceiptCreditNoteProv
	}
}

// emitCreditNote records the emission attempt durably, then calls the
// invoicing service behind the circuit breaker. A failed call leaves the row
// PENDING for the retry cron.
func (s *refundService) emitCreditNote(ctx context.Context, tenantID uuid.UUID, original, mirror *model.Sale, amount decimal.Decimal) (*uuid.UUID, error) {
	salesPoint := original.PointOfSaleID.String()
	if pos, err := s.branches.FindPointOfSale(ctx, tenantID, original.PointOfSaleID); err == nil {
		salesPoint = pos.Code
	}
	note := &model.CreditNote{
		TenantID:           tenantID,
		RefundSaleID:       mirror.ID,
		OriginalInvoiceRef: original.SaleNumber,
		SalesPointRef:      salesPoint,
		Amount:             amount,
	}
	if err := s.outbox.CreateCreditNote(ctx, note); err != nil {
		return nil, err
	}

	var result *infra.CreditNoteResponse
	emitErr := s.cb.Execute(func() error {
		var err error
		result, err = s.emitter.EmitCreditNote(ctx, infra.CreditNoteRequest{
			TenantID:           tenantID.String(),
			SalesPointRef:      salesPoint,
			OriginalInvoiceRef: original.SaleNumber,
			Amount:             amount.InexactFloat64(),
			RefundSaleID:       mirror.ID.String(),
		})
		return err
	})
	if emitErr != nil {
		log.Error().Err(emitErr).Str("refund_sale_id", mirror.ID.String()).Msg("credit note emission failed, scheduled for retry")
		retryAt := time.Now().Add(creditNoteRetryDelay)
		note.RetryCount = 1
		note.NextRetryAt = &retryAt
		msg := emitErr.Error()
		note.LastError = &msg
		if err := s.outbox.UpdateCreditNote(ctx, note); err != nil {
			log.Error().Err(err).Msg("credit note state update failed")
		}
		return &note.ID, fmt.Errorf("credit note emission pending retry: %w", emitErr)
	}

	note.Status = "EMITTED"
	note.InvoiceID = &result.InvoiceID
	note.CAE = &result.CAE
	note.VoucherNumber = &result.VoucherNumber
	if err := s.outbox.UpdateCreditNote(ctx, note); err != nil {
		log.Error().Err(err).Msg("credit note state update failed")
	}
	return &note.ID, nil
}
