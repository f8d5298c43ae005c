package models

import "time"

// Reservation statuses. Active and ready are the non-terminal states; a
// user may hold at most one non-terminal reservation per book.
const (
	ReservationStatusActive    = "active"
	ReservationStatusReady     = "ready"
	ReservationStatusCompleted = "completed"
	ReservationStatusCancelled = "cancelled"
	ReservationStatusExpired   = "expired"
)

// ReadyWindow is how long a promoted-but-not-auto-borrowed hold stays
// claimable before the sweeper expires it.
const ReadyWindow = 48 * time.Hour

// IsTerminalReservationStatus reports whether no further transitions are
// allowed from the given status.
func IsTerminalReservationStatus(status string) bool {
	switch status {
	case ReservationStatusCompleted, ReservationStatusCancelled, ReservationStatusExpired:
		return true
	}
	return false
}

// ReserveRequest asks to join the waitlist for an unavailable item.
type ReserveRequest struct {
	ItemID         string  `json:"item_id" binding:"required"`
	PreferredHours float64 `json:"preferred_hours"`
}

// ReservationResponse is the reservation shape returned to clients.
type ReservationResponse struct {
	ID                 int32      `json:"id"`
	BookID             int32      `json:"book_id"`
	UserID             int32      `json:"user_id"`
	Status             string     `json:"status"`
	RequestedHours     float64    `json:"requested_hours"`
	CreatedAt          time.Time  `json:"created_at"`
	ReadyAt            *time.Time `json:"ready_at,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	QueuePosition      int        `json:"queue_position,omitempty"`
	EstimatedAvailable *time.Time `json:"estimated_available,omitempty"`
	BookTitle          string     `json:"book_title,omitempty"`
	BookAuthor         string     `json:"book_author,omitempty"`
}

// CancelReservationResponse reports a cancellation and, when the cancelled
// hold was blocking the book, what happened to the rest of the queue.
type CancelReservationResponse struct {
	Message     string `json:"message"`
	QueueStatus string `json:"queue_status,omitempty"`
}
