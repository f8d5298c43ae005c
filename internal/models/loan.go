package models

import "time"

// Loan statuses.
const (
	LoanStatusActive   = "active"
	LoanStatusReturned = "returned"
)

// Queue outcomes reported by the return path.
const (
	QueueStatusAutoBorrowed = "auto-borrowed"
	QueueStatusReadyForNext = "ready-for-next"
	QueueStatusNowAvailable = "now-available"
)

// Loan duration bounds in hours. Fractional values are allowed; the
// original deployment used 0.083h (5 minutes) loans for demos.
const (
	MaxLoanHours     = 720.0
	DefaultLoanHours = 168.0
)

// BorrowRequest asks to borrow an item. ItemID may be a local numeric id
// or an external catalog id.
type BorrowRequest struct {
	ItemID string  `json:"item_id" binding:"required"`
	Hours  float64 `json:"hours"`
}

// ReturnRequest asks to return a borrowed item.
type ReturnRequest struct {
	ItemID string `json:"item_id" binding:"required"`
}

// LoanResponse is the loan shape returned to clients.
type LoanResponse struct {
	ID         int32      `json:"id"`
	BookID     int32      `json:"book_id"`
	UserID     int32      `json:"user_id"`
	Status     string     `json:"status"`
	BorrowedAt time.Time  `json:"borrowed_at"`
	DueAt      time.Time  `json:"due_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
	BookTitle  string     `json:"book_title,omitempty"`
	BookAuthor string     `json:"book_author,omitempty"`
}

// ReturnResponse reports a return and what happened to the waitlist.
type ReturnResponse struct {
	Message     string `json:"message"`
	QueueStatus string `json:"queue_status"`
}
