package handler

import (
	"net/http"

	"github.com/erpwoosync/cianbox-pos-sub004/internal/dto"
	"github.com/erpwoosync/cianbox-pos-sub004/internal/service"

	"github.com/gin-gonic/gin"
)

type CashHandler struct{ svc service.CashService }

func NewCashHandler(svc service.CashService) *CashHandler {
	return &CashHandler{svc: svc}
}

// OpenSession godoc
// @Summary      Open a cash drawer session
// @Tags         cash
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.OpenSessionRequest true "POS and opening amount"
// @Success      201  {object} dto.SessionResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/cash-sessions [post]
func (h *CashHandler) OpenSession(c *gin.Context) {
	var req dto.OpenSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	tenantID, userID, ok := identity(c)
	if !ok {
		return
	}
	resp, err := h.svc.OpenSession(c.Request.Context(), tenantID, userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetSession godoc
// @Summary      Get a cash session
// @Tags         cash
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Session UUID"
// @Success      200 {object} dto.SessionResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/cash-sessions/{id} [get]
func (h *CashHandler) GetSession(c *gin.Context) {
	tenantID, _, ok := identity(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.GetSession(c.Request.Context(), tenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CloseSession godoc
// @Summary      Close a cash session
// @Description  Records the declared amount and the difference against the expected drawer total.
// @Tags         cash
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                  true "Session UUID"
// @Param        body body dto.CloseSessionRequest true "Declared amount"
// @Success      200  {object} dto.SessionResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/cash-sessions/{id}/close [post]
func (h *CashHandler) CloseSession(c *gin.Context) {
	var req dto.CloseSessionRequest
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
	resp, err := h.svc.CloseSession(c.Request.Context(), tenantID, userID, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RegisterMovement godoc
// @Summary      Register a cash movement
// @Description  Withdrawals need supervisor authorization, either by role or by PIN override.
// @Tags         cash
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                      true "Session UUID"
// @Param        body body dto.RegisterMovementRequest true "Movement"
// @Success      201  {object} dto.MovementResponse
// @Failure      403  {object} apierror.APIError
// @Router       /v1/cash-sessions/{id}/movements [post]
func (h *CashHandler) RegisterMovement(c *gin.Context) {
	var req dto.RegisterMovementRequest
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
	resp, err := h.svc.RegisterMovement(c.Request.Context(), tenantID, userID, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListMovements godoc
// @Summary      List movements of a cash session
// @Tags         cash
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Session UUID"
// @Success      200 {array} dto.MovementResponse
// @Router       /v1/cash-sessions/{id}/movements [get]
func (h *CashHandler) ListMovements(c *gin.Context) {
	tenantID, _, ok := identity(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.ListMovements(c.Request.Context(), tenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
