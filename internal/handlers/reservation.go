package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shelfshare/shelfshare/internal/middleware"
	"github.com/shelfshare/shelfshare/internal/models"
)

type ReservationHandler struct {
	circulation CirculationService
	logger      *slog.Logger
}

func NewReservationHandler(circulation CirculationService, logger *slog.Logger) *ReservationHandler {
	return &ReservationHandler{circulation: circulation, logger: logger}
}

// ReserveBook handles POST /api/v1/reservations
func (h *ReservationHandler) ReserveBook(c *gin.Context) {
	var req models.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "item_id is required")
		return
	}

	ref, err := models.ParseItemRef(req.ItemID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	reservation, err := h.circulation.ReserveBook(c.Request.Context(), ref, middleware.GetUserID(c), req.PreferredHours)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, reservation)
}

// GetMyReservations handles GET /api/v1/reservations/mine
func (h *ReservationHandler) GetMyReservations(c *gin.Context) {
	reservations, err := h.circulation.GetMyReservations(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, reservations)
}

// CancelReservation handles DELETE /api/v1/reservations/:id
func (h *ReservationHandler) CancelReservation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Reservation id must be a positive integer")
		return
	}

	result, err := h.circulation.CancelReservation(c.Request.Context(), int32(id), middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}
