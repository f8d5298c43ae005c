package queries

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// Book is one catalog item. Status is a cache of the derived availability
// and is only written by the circulation service and the sweeper.
type Book struct {
	ID            int32
	ExternalID    pgtype.Text
	Title         string
	Author        string
	Isbn          pgtype.Text
	PublishedYear pgtype.Int4
	CoverImageUrl pgtype.Text
	Description   pgtype.Text
	Status        string
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

// Loan is one user holding one book for a bounded time.
type Loan struct {
	ID         int32
	BookID     int32
	UserID     int32
	Status     string
	BorrowedAt pgtype.Timestamptz
	DueAt      pgtype.Timestamptz
	ReturnedAt pgtype.Timestamptz
}

// Reservation is one user's position in a book's waitlist.
type Reservation struct {
	ID             int32
	BookID         int32
	UserID         int32
	Status         string
	RequestedHours float64
	CreatedAt      pgtype.Timestamptz
	ReadyAt        pgtype.Timestamptz
	ExpiresAt      pgtype.Timestamptz
}

type User struct {
	ID          int32
	Username    string
	Email       string
	BorrowLimit int32
	IsActive    pgtype.Bool
	CreatedAt   pgtype.Timestamptz
}
