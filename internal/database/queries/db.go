package queries

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx, so the same
// query methods run inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to the given transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// Querier is the full set of row operations used by the services. Services
// declare narrower views of it; tests implement it in memory.
type Querier interface {
	CreateBook(ctx context.Context, arg CreateBookParams) (Book, error)
	GetBookByID(ctx context.Context, id int32) (Book, error)
	GetBookByExternalID(ctx context.Context, externalID string) (Book, error)
	GetBookForUpdate(ctx context.Context, id int32) (Book, error)
	UpdateBookStatus(ctx context.Context, arg UpdateBookStatusParams) error
	ListBookIDs(ctx context.Context) ([]int32, error)

	CreateLoan(ctx context.Context, arg CreateLoanParams) (Loan, error)
	GetLoanForUpdate(ctx context.Context, id int32) (Loan, error)
	GetActiveLoanByBook(ctx context.Context, bookID int32) (Loan, error)
	GetActiveLoanByBookAndUser(ctx context.Context, arg GetActiveLoanByBookAndUserParams) (Loan, error)
	CountActiveLoansByBook(ctx context.Context, bookID int32) (int64, error)
	CountActiveLoansByUser(ctx context.Context, userID int32) (int64, error)
	ReturnLoan(ctx context.Context, id int32) (Loan, error)
	ListOverdueActiveLoans(ctx context.Context) ([]Loan, error)
	ListLoansByUser(ctx context.Context, userID int32) ([]ListLoansByUserRow, error)
	ListOverdueLoansByUser(ctx context.Context, userID int32) ([]ListLoansByUserRow, error)

	CreateReservation(ctx context.Context, arg CreateReservationParams) (Reservation, error)
	GetReservationForUpdate(ctx context.Context, id int32) (Reservation, error)
	GetReservationByIDAndUser(ctx context.Context, arg GetReservationByIDAndUserParams) (Reservation, error)
	GetNextActiveReservationByBook(ctx context.Context, bookID int32) (Reservation, error)
	GetReadyReservationByBook(ctx context.Context, bookID int32) (Reservation, error)
	GetOpenReservationByBookAndUser(ctx context.Context, arg GetOpenReservationByBookAndUserParams) (Reservation, error)
	CountReadyReservationsByBook(ctx context.Context, bookID int32) (int64, error)
	CountQueueAhead(ctx context.Context, arg CountQueueAheadParams) (int64, error)
	MarkReservationCompleted(ctx context.Context, id int32) (Reservation, error)
	MarkReservationReady(ctx context.Context, arg MarkReservationReadyParams) (Reservation, error)
	MarkReservationCancelled(ctx context.Context, id int32) (Reservation, error)
	MarkReservationExpired(ctx context.Context, id int32) (Reservation, error)
	ListExpiredReadyReservations(ctx context.Context) ([]Reservation, error)
	ListOpenReservationsByUser(ctx context.Context, userID int32) ([]ListOpenReservationsByUserRow, error)

	GetUserByID(ctx context.Context, id int32) (User, error)
}

var _ Querier = (*Queries)(nil)
