package handler

import (
	"net/http"

	"tillpos/internal/dto"
	"tillpos/internal/service"

	"github.com/gin-gonic/gin"
)

type SerialsHandler struct{ svc service.SerialService }

func NewSerialsHandler(svc service.SerialService) *SerialsHandler {
	return &SerialsHandler{svc: svc}
}

// Receive godoc
// @Summary Receive serialized stock
// @Description Registers a batch of serialized units for a catalog item. Duplicate serials reject the whole batch.
// @Tags serials
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id   path string                    true "Catalog item UUID"
// @Param body body dto.ReceiveSerialsRequest true "Units received"
// @Success 201 {array} dto.SerialResponse
// @Failure 409 {object} apierror.APIError
// @Router /v1/catalog/{id}/serials [post]
func (h *SerialsHandler) Receive(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req dto.ReceiveSerialsRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Receive(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListAvailable godoc
// @Summary List available serials
// @Description Returns the catalog item's available units in FIFO order.
// @Tags serials
// @Produce json
// @Security BearerAuth
// @Param id path string true "Catalog item UUID"
// @Success 200 {object} dto.SerialListResponse
// @Router /v1/catalog/{id}/serials [get]
func (h *SerialsHandler) ListAvailable(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.ListAvailable(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
