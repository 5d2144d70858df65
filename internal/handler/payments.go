package handler

import (
	"io"
	"net/http"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/dto"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type PaymentsHandler struct{ svc service.PaymentOrderService }

func NewPaymentsHandler(svc service.PaymentOrderService) *PaymentsHandler {
	return &PaymentsHandler{svc: svc}
}

// CreateOrder godoc
// @Summary      Open a payment order on the terminal provider
// @Description  Idempotent on external_reference: re-sending returns the existing order.
// @Tags         payment-orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.CreateOrderRequest true "Amount and external reference"
// @Success      201  {object} dto.OrderResponse
// @Failure      502  {object} apierror.APIError
// @Router       /v1/payment-orders [post]
func (h *PaymentsHandler) CreateOrder(c *gin.Context) {
	var req dto.CreateOrderRequest
	if !bindAndValidate(c, &req) {
		return
	}
	tenantID, _, ok := identity(c)
	if !ok {
		return
	}
	resp, err := h.svc.CreateOrder(c.Request.Context(), tenantID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetOrder godoc
// @Summary      Get a payment order
// @Tags         payment-orders
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Order UUID"
// @Success      200 {object} dto.OrderResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/payment-orders/{id} [get]
func (h *PaymentsHandler) GetOrder(c *gin.Context) {
	tenantID, _, ok := identity(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.GetOrder(c.Request.Context(), tenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// PollStatus godoc
// @Summary      Poll order status at the provider
// @Description  Re-reads the provider order and syncs the local mirror. Terminal states never regress.
// @Tags         payment-orders
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Order UUID"
// @Success      200 {object} dto.OrderResponse
// @Failure      502 {object} apierror.APIError
// @Router       /v1/payment-orders/{id}/status [get]
func (h *PaymentsHandler) PollStatus(c *gin.Context) {
	tenantID, _, ok := identity(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.PollStatus(c.Request.Context(), tenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CancelOrder godoc
// @Summary      Cancel a payment order
// @Description  Fails with 409 when the order already reached the physical terminal.
// @Tags         payment-orders
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Order UUID"
// @Success      200 {object} dto.OrderResponse
// @Failure      409 {object} apierror.APIError
// @Router       /v1/payment-orders/{id}/cancel [post]
func (h *PaymentsHandler) CancelOrder(c *gin.Context) {
	tenantID, _, ok := identity(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.CancelOrder(c.Request.Context(), tenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListAvailable godoc
// @Summary      List confirmed orders no sale has claimed
// @Description  Orphan payments: collected by the provider but not yet attached to any sale.
// @Tags         payment-orders
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} dto.OrderResponse
// @Router       /v1/payment-orders/available [get]
func (h *PaymentsHandler) ListAvailable(c *gin.Context) {
	tenantID, _, ok := identity(c)
	if !ok {
		return
	}
	resp, err := h.svc.ListAvailable(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ApplyOrphan godoc
// @Summary      Build a sale around an already-collected payment
// @Description  Claims the orphan order atomically; exactly one sale can win it.
// @Tags         payment-orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                      true "Order UUID"
// @Param        body body dto.ApplyOrphanOrderRequest true "Sale items"
// @Success      201  {object} dto.SaleResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/payment-orders/{id}/apply [post]
func (h *PaymentsHandler) ApplyOrphan(c *gin.Context) {
	var req dto.ApplyOrphanOrderRequest
	if !bindAndValidate(c, &req) {
		return
	}
	tenantID, userID, ok := identity(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.ApplyOrphan(c.Request.Context(), tenantID, userID, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Webhook godoc
// @Summary      Provider payment notification
// @Description  Always answers 200 so the provider stops retrying; invalid signatures and duplicates are ignored internally.
// @Tags         payment-orders
// @Accept       json
// @Produce      json
// @Param        tenant_id path string true "Tenant UUID"
// @Success      200
// @Router       /webhooks/mercadopago/{tenant_id} [post]
func (h *PaymentsHandler) Webhook(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("tenant_id"))
	if err != nil {
		// Unknown route shape; still 200, there is nothing to retry into.
		c.Status(http.StatusOK)
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusOK)
		return
	}

	err = h.svc.ProcessWebhook(
		c.Request.Context(),
		tenantID,
		body,
		c.GetHeader("x-signature"),
		c.GetHeader("x-request-id"),
	)
	if err != nil {
		// Transient failure (provider API down, DB error): non-200 makes the
		// provider redeliver later.
		log.Error().Err(err).Msg("webhook processing failed")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}
