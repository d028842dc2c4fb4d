package handler

import (
	"net/http"

	"tillpos/internal/dto"
	"tillpos/internal/middleware"
	"tillpos/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type TransactionsHandler struct{ svc service.TransactionService }

func NewTransactionsHandler(svc service.TransactionService) *TransactionsHandler {
	return &TransactionsHandler{svc: svc}
}

// Create godoc
// @Summary Create a transaction
// @Description Opens a new transaction under the operator's session and assigns the next ticket number.
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CreateTransactionRequest true "Transaction header"
// @Success 201 {object} dto.TransactionResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/transactions [post]
func (h *TransactionsHandler) Create(c *gin.Context) {
	var req dto.CreateTransactionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	operatorID, _ := uuid.Parse(claims.OperatorID)

	resp, err := h.svc.Create(c.Request.Context(), operatorID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Get godoc
// @Summary Fetch a transaction
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction UUID"
// @Success 200 {object} dto.TransactionResponse
// @Failure 404 {object} apierror.APIError
// @Router /v1/transactions/{id} [get]
func (h *TransactionsHandler) Get(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AddItem godoc
// @Summary Add a line item
// @Description Snapshots the catalog record and quotes tax, then appends the line to an open transaction.
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id   path string             true "Transaction UUID"
// @Param body body dto.AddItemRequest true "Item to add"
// @Success 200 {object} dto.TransactionResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/transactions/{id}/items [post]
func (h *TransactionsHandler) AddItem(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req dto.AddItemRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.AddItem(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateItemQuantity godoc
// @Summary Change a line item's quantity
// @Description Re-quotes tax for the new quantity. Shrinking below the claimed serial count releases the item's serials.
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id   path string                    true "Item UUID"
// @Param body body dto.UpdateQuantityRequest true "New quantity"
// @Success 200 {object} dto.TransactionResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/items/{id} [patch]
func (h *TransactionsHandler) UpdateItemQuantity(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateQuantityRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.UpdateItemQuantity(c.Request.Context(), id, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RemoveItem godoc
// @Summary Remove a line item
// @Description Releases any serials claimed against the line before deleting it.
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item UUID"
// @Success 200 {object} dto.TransactionResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/items/{id} [delete]
func (h *TransactionsHandler) RemoveItem(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.RemoveItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ClaimSerial godoc
// @Summary Claim a scanned serial for a line item
// @Description Reserves the available unit matching the scanned serial number or IMEI.
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id   path string                 true "Item UUID"
// @Param body body dto.ClaimSerialRequest true "Scanned tag"
// @Success 200 {object} dto.TransactionResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/items/{id}/serials [post]
func (h *TransactionsHandler) ClaimSerial(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req dto.ClaimSerialRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.ClaimSerial(c.Request.Context(), id, req.Tag)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ClaimSerialCount godoc
// @Summary Auto-claim the oldest available serials
// @Description Reserves the N oldest available units for the line, all or nothing.
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id   path string                true "Item UUID"
// @Param body body dto.ClaimCountRequest true "Unit count"
// @Success 200 {object} dto.TransactionResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/items/{id}/serials/auto [post]
func (h *TransactionsHandler) ClaimSerialCount(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req dto.ClaimCountRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.ClaimSerialCount(c.Request.Context(), id, req.Count)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ReleaseSerials godoc
// @Summary Release a line item's claimed serials
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item UUID"
// @Success 200 {object} dto.TransactionResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/items/{id}/serials [delete]
func (h *TransactionsHandler) ReleaseSerials(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.ReleaseSerials(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// AddPayment godoc
// @Summary Record a tender
// @Description Appends a payment to an open transaction. Cash over the outstanding balance records change due.
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id   path string                true "Transaction UUID"
// @Param body body dto.AddPaymentRequest true "Tender"
// @Success 200 {object} dto.TransactionResponse
// @Failure 422 {object} apierror.APIError
// @Router /v1/transactions/{id}/payments [post]
func (h *TransactionsHandler) AddPayment(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req dto.AddPaymentRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.AddPayment(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Complete godoc
// @Summary Complete a transaction
// @Description Finalizes serials, rolls the totals into the session and marks the transaction completed, atomically.
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction UUID"
// @Success 200 {object} dto.TransactionResponse
// @Failure 422 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/transactions/{id}/complete [post]
func (h *TransactionsHandler) Complete(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	claims := middleware.GetClaims(c)
	operatorID, _ := uuid.Parse(claims.OperatorID)

	resp, err := h.svc.Complete(c.Request.Context(), id, operatorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Void godoc
// @Summary Void an open transaction
// @Description Releases claimed serials and marks the transaction voided. Session counters are untouched.
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction UUID"
// @Success 200 {object} dto.TransactionResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/transactions/{id}/void [post]
func (h *TransactionsHandler) Void(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Void(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
