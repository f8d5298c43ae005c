package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shelfshare/shelfshare/internal/models"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail represents detailed error information
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func respondSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, SuccessResponse{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{
		Success: false,
		Error:   ErrorDetail{Code: code, Message: message},
	})
}

// respondServiceError maps circulation sentinel errors to HTTP responses.
// Unknown errors become an opaque 500; the message is never leaked.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidItemRef):
		respondError(c, http.StatusBadRequest, "INVALID_ITEM_REF", "Item reference must be a positive id or an external catalog id")
	case errors.Is(err, models.ErrInvalidDuration):
		respondError(c, http.StatusBadRequest, "INVALID_DURATION", "Loan duration must be positive and at most 720 hours")
	case errors.Is(err, models.ErrAlreadyBorrowedBySelf):
		respondError(c, http.StatusConflict, "ALREADY_BORROWED", "You already have this book on loan")
	case errors.Is(err, models.ErrItemUnavailable):
		respondError(c, http.StatusConflict, "ITEM_UNAVAILABLE", "Book is not available, reserve it instead")
	case errors.Is(err, models.ErrBorrowLimitExceeded):
		respondError(c, http.StatusConflict, "BORROW_LIMIT_EXCEEDED", "Borrow limit reached, return a book first")
	case errors.Is(err, models.ErrAlreadyInQueue):
		respondError(c, http.StatusConflict, "ALREADY_IN_QUEUE", "You already have a reservation for this book")
	case errors.Is(err, models.ErrItemAlreadyAvailable):
		respondError(c, http.StatusConflict, "ITEM_AVAILABLE", "Book is available, borrow it directly")
	case errors.Is(err, models.ErrNoActiveLoan):
		respondError(c, http.StatusNotFound, "NO_ACTIVE_LOAN", "No active loan for this book")
	case errors.Is(err, models.ErrBookNotFound):
		respondError(c, http.StatusNotFound, "BOOK_NOT_FOUND", "Book not found")
	case errors.Is(err, models.ErrUserNotFound):
		respondError(c, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, models.ErrReservationNotFound):
		respondError(c, http.StatusNotFound, "RESERVATION_NOT_FOUND", "Reservation not found")
	case errors.Is(err, models.ErrCatalogUnresolvable):
		respondError(c, http.StatusBadGateway, "CATALOG_UNRESOLVABLE", "Could not resolve catalog metadata for this item")
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
