package models

import "time"

// DefaultBorrowLimit is the per-user cap on concurrently active loans when
// the users row does not override it.
const DefaultBorrowLimit = 5

// UserResponse is the user shape returned to clients.
type UserResponse struct {
	ID          int32     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	BorrowLimit int32     `json:"borrow_limit"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}
