package models

import "time"

// Event types consumed by the out-of-scope notifier.
const (
	EventReservationCreated = "reservation.created"
	EventReservationReady   = "reservation.ready"
	EventReservationExpired = "reservation.expired"
	EventAutoBorrowed       = "loan.auto_borrowed"
)

// Event is a notification trigger raised by the circulation engine.
// Publishing is fire-and-forget: it happens after the transaction that
// raised the event commits and must never fail that transaction.
type Event struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	BookID        int32      `json:"book_id"`
	UserID        int32      `json:"user_id"`
	LoanID        int32      `json:"loan_id,omitempty"`
	ReservationID int32      `json:"reservation_id,omitempty"`
	QueuePosition int        `json:"queue_position,omitempty"`
	DueAt         *time.Time `json:"due_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}
