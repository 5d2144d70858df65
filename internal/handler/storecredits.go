package handler

import (
	"net/http"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/dto"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/service"

	"github.com/gin-gonic/gin"
)

type StoreCreditsHandler struct{ svc service.StoreCreditService }

func NewStoreCreditsHandler(svc service.StoreCreditService) *StoreCreditsHandler {
	return &StoreCreditsHandler{svc: svc}
}

// Issue godoc
// @Summary      Issue a store credit
// @Description  Creates an ACTIVE voucher with its opening ledger entry. Refund-generated vouchers are created by the refund flow, not here.
// @Tags         store-credits
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.IssueInstrumentRequest true "Amount, optional customer, expiry and reason"
// @Success      201  {object} dto.InstrumentResponse
// @Failure      422  {object} apierror.ValidationError
// @Router       /v1/store-credits [post]
func (h *StoreCreditsHandler) Issue(c *gin.Context) {
	var req dto.IssueInstrumentRequest
	if !bindAndValidate(c, &req) {
		return
	}
	tenantID, userID, ok := identity(c)
	if !ok {
		return
	}
	resp, err := h.svc.Issue(c.Request.Context(), tenantID, &userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Balance godoc
// @Summary      Check store credit balance
// @Tags         store-credits
// @Produce      json
// @Security     BearerAuth
// @Param        code path string true "Voucher code"
// @Success      200  {object} dto.BalanceResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/store-credits/{code}/balance [get]
func (h *StoreCreditsHandler) Balance(c *gin.Context) {
	tenantID, _, ok := identity(c)
	if !ok {
		return
	}
	resp, err := h.svc.CheckBalance(c.Request.Context(), tenantID, c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Cancel godoc
// @Summary      Cancel a store credit
// @Tags         store-credits
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        code path string true "Voucher code"
// @Param        body body dto.CancelInstrumentRequest true "Reason"
// @Success      204
// @Failure      409  {object} apierror.APIError
// @Router       /v1/store-credits/{code} [delete]
func (h *StoreCreditsHandler) Cancel(c *gin.Context) {
	var req dto.CancelInstrumentRequest
	if !bindAndValidate(c, &req) {
		return
	}
	tenantID, _, ok := identity(c)
	if !ok {
		return
	}
	if err := h.svc.Cancel(c.Request.Context(), tenantID, c.Param("code"), req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Transactions godoc
// @Summary      Store credit ledger
// @Tags         store-credits
// @Produce      json
// @Security     BearerAuth
// @Param        code path string true "Voucher code"
// @Success      200  {array}  dto.TransactionResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/store-credits/{code}/transactions [get]
func (h *StoreCreditsHandler) Transactions(c *gin.Context) {
	tenantID, _, ok := identity(c)
	if !ok {
		return
	}
	resp, err := h.svc.Transactions(c.Request.Context(), tenantID, c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
