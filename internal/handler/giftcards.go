package handler

import (
	"net/http"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/dto"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/service"

	"github.com/gin-gonic/gin"
)

type GiftCardsHandler struct{ svc service.GiftCardService }

func NewGiftCardsHandler(svc service.GiftCardService) *GiftCardsHandler {
	return &GiftCardsHandler{svc: svc}
}

// Issue godoc
// @Summary      Issue a gift card
// @Description  Creates an INACTIVE card with its opening ledger entry. The card activates on first redemption.
// @Tags         gift-cards
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.IssueInstrumentRequest true "Amount, optional customer and expiry"
// @Success      201  {object} dto.InstrumentResponse
// @Failure      422  {object} apierror.ValidationError
// @Router       /v1/gift-cards [post]
func (h *GiftCardsHandler) Issue(c *gin.Context) {
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
// @Summary      Check gift card balance
// @Tags         gift-cards
// @Produce      json
// @Security     BearerAuth
// @Param        code path string true "Card code"
// @Success      200  {object} dto.BalanceResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/gift-cards/{code}/balance [get]
func (h *GiftCardsHandler) Balance(c *gin.Context) {
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
// @Summary      Cancel a gift card
// @Description  Voids the remaining balance. Only ACTIVE or INACTIVE cards can be cancelled.
// @Tags         gift-cards
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        code path string true "Card code"
// @Param        body body dto.CancelInstrumentRequest true "Reason"
// @Success      204
// @Failure      409  {object} apierror.APIError
// @Router       /v1/gift-cards/{code} [delete]
func (h *GiftCardsHandler) Cancel(c *gin.Context) {
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
// @Summary      Gift card ledger
// @Description  Append-only transaction history in creation order.
// @Tags         gift-cards
// @Produce      json
// @Security     BearerAuth
// @Param        code path string true "Card code"
// @Success      200  {array}  dto.TransactionResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/gift-cards/{code}/transactions [get]
func (h *GiftCardsHandler) Transactions(c *gin.Context) {
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
