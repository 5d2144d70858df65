package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/apierror"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/dto"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/infra"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/model"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// webhookDedupeTTL bounds how long a processed webhook id is remembered.
// The provider retries for at most a day.
const webhookDedupeTTL = 24 * time.Hour

type PaymentOrderService interface {
	CreateOrder(ctx context.Context, tenantID uuid.UUID, req dto.CreateOrderRequest) (*dto.OrderResponse, error)
	GetOrder(ctx context.Context, tenantID, id uuid.UUID) (*dto.OrderResponse, error)
	// PollStatus re-reads the provider order and syncs the local mirror.
	PollStatus(ctx context.Context, tenantID, id uuid.UUID) (*dto.OrderResponse, error)
	CancelOrder(ctx context.Context, tenantID, id uuid.UUID) (*dto.OrderResponse, error)
	// ProcessWebhook handles a provider notification. It never returns an
	// error for payloads that should simply be ignored (bad signature,
	// duplicate delivery, unknown topic): the provider must always see 200.
	ProcessWebhook(ctx context.Context, tenantID uuid.UUID, body []byte, signatureHeader, xRequestID string) error
	// ListAvailable returns confirmed orders no sale has claimed yet.
	ListAvailable(ctx context.Context, tenantID uuid.UUID) ([]dto.OrderResponse, error)
	// ApplyOrphan builds a sale around an already-collected payment.
	ApplyOrphan(ctx context.Context, tenantID, cashierID, orderID uuid.UUID, req dto.ApplyOrphanOrderRequest) (*dto.SaleResponse, error)
}

type paymentOrderService struct {
	orders        repository.OrderRepository
	provider      infra.PaymentProvider
	sales         SaleService
	rdb           *redis.Client
	webhookSecret string
}

func NewPaymentOrderService(
	orders repository.OrderRepository,
	provider infra.PaymentProvider,
	sales SaleService,
	rdb *redis.Client,
	webhookSecret string,
) PaymentOrderService {
	return &paymentOrderService{
		orders:        orders,
		provider:      provider,
		sales:         sales,
		rdb:           rdb,
		webhookSecret: webhookSecret,
	}
}

func (s *paymentOrderService) CreateOrder(ctx context.Context, tenantID uuid.UUID, req dto.CreateOrderRequest) (*dto.OrderResponse, error) {
	// external_reference is the idempotency key: re-sending the same request
	// returns the order already created, it never opens a second one.
	if existing, err := s.orders.FindByExternalReference(ctx, tenantID, req.ExternalReference); err == nil {
		return orderToResponse(existing), nil
	}

	mpOrder, err := s.provider.CreateOrder(ctx, infra.MPOrderRequest{
		Amount:            req.Amount,
		ExternalReference: req.ExternalReference,
		DeviceID:          req.DeviceID,
		Description:       req.Description,
	})
	if err != nil {
		return nil, apierror.Upstream(err, "payment order creation failed")
	}

	order := &model.MercadoPagoOrder{
		TenantID:          tenantID,
		OrderID:           &mpOrder.ID,
		ExternalReference: req.ExternalReference,
		Status:            mapOrderStatus(mpOrder.Status),
		Amount:            req.Amount,
		Installments:      1,
	}
	if req.Description != "" {
		order.Description = &req.Description
	}
	if req.DeviceID != "" {
		order.DeviceID = &req.DeviceID
	}
	if err := s.orders.Create(ctx, order); err != nil {
		// Lost a race against a concurrent identical request.
		if isDuplicateKey(err) {
			if existing, ferr := s.orders.FindByExternalReference(ctx, tenantID, req.ExternalReference); ferr == nil {
				return orderToResponse(existing), nil
			}
		}
		return nil, err
	}
	return orderToResponse(order), nil
}

func (s *paymentOrderService) GetOrder(ctx context.Context, tenantID, id uuid.UUID) (*dto.OrderResponse, error) {
	order, err := s.findLocal(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return orderToResponse(order), nil
}

func (s *paymentOrderService) PollStatus(ctx context.Context, tenantID, id uuid.UUID) (*dto.OrderResponse, error) {
	order, err := s.findLocal(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if model.TerminalOrderStatus(order.Status) || order.OrderID == nil {
		return orderToResponse(order), nil
	}

	mpOrder, err := s.provider.GetOrder(ctx, *order.OrderID)
	if err != nil {
		return nil, apierror.Upstream(err, "payment order status check failed")
	}
	if err := s.syncOrder(ctx, order, mpOrder); err != nil {
		return nil, err
	}
	return orderToResponse(order), nil
}

// syncOrder applies the provider's view onto the local mirror. Terminal local
// states never regress, so replayed or out-of-order updates are no-ops.
func (s *paymentOrderService) syncOrder(ctx context.Context, order *model.MercadoPagoOrder, mpOrder *infra.MPOrder) error {
	if model.TerminalOrderStatus(order.Status) {
		return nil
	}
	status := mapOrderStatus(mpOrder.Status)
	// The first payment's sub-status decides when the order-level status is
	// unrecognized: some provider flows report a stale or unknown order
	// status while the payment itself is already approved or rejected.
	if status == model.OrderPending && len(mpOrder.Payments) > 0 {
		status = mapPaymentStatus(mpOrder.Payments[0].Status)
	}
	if status == order.Status {
		return nil
	}
	order.Status = status
	if status == model.OrderProcessed {
		for _, p := range mpOrder.Payments {
			if !strings.EqualFold(p.Status, "approved") {
				continue
			}
			pid := p.ID
			order.PaymentID = &pid
			if p.CardBrand != "" {
				brand := p.CardBrand
				order.CardBrand = &brand
			}
			if p.CardLastFour != "" {
				last := p.CardLastFour
				order.CardLastFour = &last
			}
			if p.Installments > 0 {
				order.Installments = p.Installments
			}
			break
		}
	}
	return s.orders.Update(ctx, order)
}

func (s *paymentOrderService) CancelOrder(ctx context.Context, tenantID, id uuid.UUID) (*dto.OrderResponse, error) {
	order, err := s.findLocal(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if model.TerminalOrderStatus(order.Status) {
		return nil, apierror.InvalidState("order %s is %s and cannot be cancelled", order.ExternalReference, order.Status)
	}
	if order.OrderID != nil {
		if err := s.provider.CancelOrder(ctx, *order.OrderID); err != nil {
			if errors.Is(err, infra.ErrOrderOnDevice) {
				return nil, apierror.InvalidState("order %s already reached the terminal; finish or cancel it on the device", order.ExternalReference)
			}
			return nil, apierror.Upstream(err, "payment order cancellation failed")
		}
	}
	order.Status = model.OrderCanceled
	if err := s.orders.Update(ctx, order); err != nil {
		return nil, err
	}
	return orderToResponse(order), nil
}

func (s *paymentOrderService) ProcessWebhook(ctx context.Context, tenantID uuid.UUID, body []byte, signatureHeader, xRequestID string) error {
	event, err := infra.ParseWebhookEvent(body)
	if err != nil {
		log.Warn().Err(err).Msg("webhook payload ignored")
		return nil
	}
	if !infra.ValidateWebhookSignature(s.webhookSecret, signatureHeader, xRequestID, event.DataID) {
		log.Warn().Str("data_id", event.DataID).Msg("webhook signature rejected")
		return nil
	}
	if !s.firstDelivery(ctx, event) {
		log.Debug().Str("data_id", event.DataID).Str("topic", event.Topic).Msg("webhook duplicate ignored")
		return nil
	}

	switch event.Topic {
	case infra.WebhookTopicOrder:
		return s.handleOrderEvent(ctx, tenantID, event.DataID)
	case infra.WebhookTopicPayment:
		return s.handlePaymentEvent(ctx, tenantID, event.DataID)
	default:
		log.Debug().Str("data_id", event.DataID).Msg("webhook topic ignored")
		return nil
	}
}

// firstDelivery marks the event id as seen; a nil Redis client disables the
// dedupe (unit tests), syncOrder's terminal-state guard still holds.
func (s *paymentOrderService) firstDelivery(ctx context.Context, ev infra.WebhookEvent) bool {
	if s.rdb == nil {
		return true
	}
	ok, err := s.rdb.SetNX(ctx, "webhook:"+ev.Topic+":"+ev.DataID, 1, webhookDedupeTTL).Result()
	if err != nil {
		log.Warn().Err(err).Msg("webhook dedupe unavailable, processing anyway")
		return true
	}
	return ok
}

func (s *paymentOrderService) handleOrderEvent(ctx context.Context, tenantID uuid.UUID, orderID string) error {
	order, err := s.orders.FindByOrderID(ctx, tenantID, orderID)
	if err != nil {
		log.Warn().Str("order_id", orderID).Msg("webhook for unknown order ignored")
		return nil
	}
	mpOrder, err := s.provider.GetOrder(ctx, orderID)
	if err != nil {
		return apierror.Upstream(err, "order webhook confirmation failed")
	}
	return s.syncOrder(ctx, order, mpOrder)
}

// handlePaymentEvent covers payments collected outside any order we opened
// (QR scanned directly, terminal in standalone mode). An approved payment is
// recorded as a PROCESSED orphan order so a sale can claim it later.
func (s *paymentOrderService) handlePaymentEvent(ctx context.Context, tenantID uuid.UUID, paymentID string) error {
	payment, err := s.provider.GetPayment(ctx, paymentID)
	if err != nil {
		return apierror.Upstream(err, "payment webhook confirmation failed")
	}
	if !strings.EqualFold(payment.Status, "approved") {
		return nil
	}
	ref := payment.ExternalReference
	if ref == "" {
		ref = "MP-PAYMENT-" + paymentID
	}

	if order, err := s.orders.FindByExternalReference(ctx, tenantID, ref); err == nil {
		if model.TerminalOrderStatus(order.Status) {
			return nil
		}
		order.Status = model.OrderProcessed
		order.PaymentID = &payment.ID
		applyCardMetadata(order, payment)
		return s.orders.Update(ctx, order)
	}

	order := &model.MercadoPagoOrder{
		TenantID:          tenantID,
		ExternalReference: ref,
		Status:            model.OrderProcessed,
		Amount:            payment.TransactionAmount,
		PaymentID:         &payment.ID,
		Installments:      1,
	}
	applyCardMetadata(order, payment)
	if err := s.orders.Create(ctx, order); err != nil {
		if isDuplicateKey(err) {
			return nil
		}
		return err
	}
	return nil
}

func applyCardMetadata(order *model.MercadoPagoOrder, payment *infra.MPPayment) {
	if payment.CardBrand != "" {
		brand := payment.CardBrand
		order.CardBrand = &brand
	}
	if payment.CardLastFour != "" {
		last := payment.CardLastFour
		order.CardLastFour = &last
	}
	if payment.Installments > 0 {
		order.Installments = payment.Installments
	}
}

func (s *paymentOrderService) ListAvailable(ctx context.Context, tenantID uuid.UUID) ([]dto.OrderResponse, error) {
	orphans, err := s.orders.ListOrphans(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	available := make([]dto.OrderResponse, 0, len(orphans))
	for i := range orphans {
		o := &orphans[i]
		if o.PaymentID != nil {
			// Skip payments a sale already recorded through another path.
			used, err := s.orders.PaymentTransactionExists(ctx, tenantID, *o.PaymentID)
			if err != nil {
				return nil, err
			}
			if used {
				continue
			}
		}
		available = append(available, *orderToResponse(o))
	}
	return available, nil
}

func (s *paymentOrderService) ApplyOrphan(ctx context.Context, tenantID, cashierID, orderID uuid.UUID, req dto.ApplyOrphanOrderRequest) (*dto.SaleResponse, error) {
	order, err := s.findLocal(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderProcessed {
		return nil, apierror.InvalidState("order %s is %s; only confirmed orders can back a sale", order.ExternalReference, order.Status)
	}
	if order.SaleID != nil {
		return nil, apierror.Conflict("order %s is already attached to a sale", order.ExternalReference)
	}

	payment := dto.PaymentRequest{
		Method:            model.PayQR,
		Amount:            order.Amount,
		ExternalReference: order.ExternalReference,
		Installments:      order.Installments,
	}
	if order.PaymentID != nil {
		payment.TransactionID = *order.PaymentID
	}
	if order.CardBrand != nil {
		payment.Method = model.PayCard
		payment.CardBrand = *order.CardBrand
	}
	if order.CardLastFour != nil {
		payment.CardLastFour = *order.CardLastFour
	}

	sale, err := s.sales.CreateSale(ctx, tenantID, cashierID, dto.CreateSaleRequest{
		BranchID:      req.BranchID,
		PointOfSaleID: req.PointOfSaleID,
		ReceiptType:   req.ReceiptType,
		Items:         req.Items,
		Payments:      []dto.PaymentRequest{payment},
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *paymentOrderService) findLocal(ctx context.Context, tenantID, id uuid.UUID) (*model.MercadoPagoOrder, error) {
	order, err := s.orders.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, apierror.NotFound("payment order %s not found", id)
	}
	return order, nil
}

// mapOrderStatus normalizes the provider's status vocabulary onto the local
// state machine.
func mapOrderStatus(providerStatus string) string {
	switch strings.ToLower(providerStatus) {
	case "processed", "paid", "accredited", "closed":
		return model.OrderProcessed
	case "canceled", "cancelled":
		return model.OrderCanceled
	case "expired":
		return model.OrderExpired
	case "failed", "refunded", "charged_back":
		return model.OrderFailed
	default:
		return model.OrderPending
	}
}

// mapPaymentStatus maps a payment sub-status onto the order state machine.
func mapPaymentStatus(paymentStatus string) string {
	switch strings.ToLower(paymentStatus) {
	case "approved", "accredited":
		return model.OrderProcessed
	case "rejected", "refunded", "charged_back":
		return model.OrderFailed
	case "canceled", "cancelled":
		return model.OrderCanceled
	default:
		return model.OrderPending
	}
}

func orderToResponse(o *model.MercadoPagoOrder) *dto.OrderResponse {
	resp := &dto.OrderResponse{
		ID:                o.ID.String(),
		OrderID:           o.OrderID,
		ExternalReference: o.ExternalReference,
		Status:            o.Status,
		Amount:            o.Amount,
		CardBrand:         o.CardBrand,
		CardLastFour:      o.CardLastFour,
		Installments:      o.Installments,
		CreatedAt:         o.CreatedAt.Format(time.RFC3339),
	}
	if o.SaleID != nil {
		sid := o.SaleID.String()
		resp.SaleID = &sid
	}
	return resp
}
