package handler

import (
	"net/http"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/dto"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/service"

	"github.com/gin-gonic/gin"
)

type RefundsHandler struct{ svc service.RefundService }

func NewRefundsHandler(svc service.RefundService) *RefundsHandler { return &RefundsHandler{svc: svc} }

// CreateRefund godoc
// @Summary      Refund items of a sale
// @Description  Creates the refund mirror sale atomically: negated items, original status flip, stock restore and proportional cash withdrawal. Store credit and fiscal credit note are issued after commit and reported even when they fail.
// @Tags         refunds
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.RefundRequest true "Refund detail"
// @Success      201  {object} dto.RefundResponse
// @Failure      401  {object} apierror.APIError
// @Failure      409  {object} apierror.APIError
// @Router       /v1/refunds [post]
func (h *RefundsHandler) CreateRefund(c *gin.Context) {
	var req dto.RefundRequest
	if !bindAndValidate(c, &req) {
		return
	}
	tenantID, userID, ok := identity(c)
	if !ok {
		return
	}
	resp, err := h.svc.Refund(c.Request.Context(), tenantID, userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
