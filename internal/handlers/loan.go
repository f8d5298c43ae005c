package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shelfshare/shelfshare/internal/middleware"
	"github.com/shelfshare/shelfshare/internal/models"
)

// CirculationService is the loan and reservation surface the handlers
// depend on.
type CirculationService interface {
	BorrowBook(ctx context.Context, ref models.ItemRef, userID int32, hours float64) (*models.LoanResponse, error)
	ReturnBook(ctx context.Context, ref models.ItemRef, userID int32) (*models.ReturnResponse, error)
	ReserveBook(ctx context.Context, ref models.ItemRef, userID int32, preferredHours float64) (*models.ReservationResponse, error)
	CancelReservation(ctx context.Context, reservationID, userID int32) (*models.CancelReservationResponse, error)
	GetMyLoans(ctx context.Context, userID int32) ([]models.LoanResponse, error)
	GetMyOverdueLoans(ctx context.Context, userID int32) ([]models.LoanResponse, error)
	GetMyReservations(ctx context.Context, userID int32) ([]models.ReservationResponse, error)
}

type LoanHandler struct {
	circulation CirculationService
	logger      *slog.Logger
}

func NewLoanHandler(circulation CirculationService, logger *slog.Logger) *LoanHandler {
	return &LoanHandler{circulation: circulation, logger: logger}
}

// BorrowBook handles POST /api/v1/loans/borrow
func (h *LoanHandler) BorrowBook(c *gin.Context) {
	var req models.BorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "item_id is required")
		return
	}

	ref, err := models.ParseItemRef(req.ItemID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	loan, err := h.circulation.BorrowBook(c.Request.Context(), ref, middleware.GetUserID(c), req.Hours)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, loan)
}

// ReturnBook handles POST /api/v1/loans/return
func (h *LoanHandler) ReturnBook(c *gin.Context) {
	var req models.ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "item_id is required")
		return
	}

	ref, err := models.ParseItemRef(req.ItemID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	result, err := h.circulation.ReturnBook(c.Request.Context(), ref, middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, result)
}

// GetMyLoans handles GET /api/v1/loans/mine
func (h *LoanHandler) GetMyLoans(c *gin.Context) {
	loans, err := h.circulation.GetMyLoans(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, loans)
}

// GetMyOverdueLoans handles GET /api/v1/loans/overdue
func (h *LoanHandler) GetMyOverdueLoans(c *gin.Context) {
	loans, err := h.circulation.GetMyOverdueLoans(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, loans)
}
