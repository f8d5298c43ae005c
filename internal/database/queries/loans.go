package queries

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const loanColumns = `id, book_id, user_id, status, borrowed_at, due_at, returned_at`

const createLoan = `
INSERT INTO loans (book_id, user_id, status, borrowed_at, due_at)
VALUES ($1, $2, 'active', now(), $3)
RETURNING ` + loanColumns

type CreateLoanParams struct {
	BookID int32
	UserID int32
	DueAt  pgtype.Timestamptz
}

func (q *Queries) CreateLoan(ctx context.Context, arg CreateLoanParams) (Loan, error) {
	row := q.db.QueryRow(ctx, createLoan, arg.BookID, arg.UserID, arg.DueAt)
	return scanLoan(row)
}

const getLoanForUpdate = `
SELECT ` + loanColumns + `
FROM loans
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetLoanForUpdate(ctx context.Context, id int32) (Loan, error) {
	return scanLoan(q.db.QueryRow(ctx, getLoanForUpdate, id))
}

const getActiveLoanByBook = `
SELECT ` + loanColumns + `
FROM loans
WHERE book_id = $1 AND status = 'active'
ORDER BY borrowed_at DESC
LIMIT 1
`

func (q *Queries) GetActiveLoanByBook(ctx context.Context, bookID int32) (Loan, error) {
	return scanLoan(q.db.QueryRow(ctx, getActiveLoanByBook, bookID))
}

const getActiveLoanByBookAndUser = `
SELECT ` + loanColumns + `
FROM loans
WHERE book_id = $1 AND user_id = $2 AND status = 'active'
LIMIT 1
`

type GetActiveLoanByBookAndUserParams struct {
	BookID int32
	UserID int32
}

func (q *Queries) GetActiveLoanByBookAndUser(ctx context.Context, arg GetActiveLoanByBookAndUserParams) (Loan, error) {
	return scanLoan(q.db.QueryRow(ctx, getActiveLoanByBookAndUser, arg.BookID, arg.UserID))
}

const countActiveLoansByBook = `
SELECT count(*) FROM loans WHERE book_id = $1 AND status = 'active'
`

func (q *Queries) CountActiveLoansByBook(ctx context.Context, bookID int32) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countActiveLoansByBook, bookID).Scan(&n)
	return n, err
}

const countActiveLoansByUser = `
SELECT count(*) FROM loans WHERE user_id = $1 AND status = 'active'
`

func (q *Queries) CountActiveLoansByUser(ctx context.Context, userID int32) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countActiveLoansByUser, userID).Scan(&n)
	return n, err
}

const returnLoan = `
UPDATE loans
SET status = 'returned', returned_at = now()
WHERE id = $1 AND status = 'active'
RETURNING ` + loanColumns

// ReturnLoan closes an active loan. The status guard makes the sweeper's
// auto-return safe to race against an interactive return: the loser gets
// no rows.
func (q *Queries) ReturnLoan(ctx context.Context, id int32) (Loan, error) {
	return scanLoan(q.db.QueryRow(ctx, returnLoan, id))
}

const listOverdueActiveLoans = `
SELECT ` + loanColumns + `
FROM loans
WHERE status = 'active' AND due_at < now()
ORDER BY due_at
`

func (q *Queries) ListOverdueActiveLoans(ctx context.Context) ([]Loan, error) {
	rows, err := q.db.Query(ctx, listOverdueActiveLoans)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var loans []Loan
	for rows.Next() {
		var l Loan
		if err := rows.Scan(&l.ID, &l.BookID, &l.UserID, &l.Status, &l.BorrowedAt, &l.DueAt, &l.ReturnedAt); err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

type ListLoansByUserRow struct {
	Loan
	Title         string
	Author        string
	CoverImageUrl pgtype.Text
	ExternalID    pgtype.Text
}

const listLoansByUser = `
SELECT l.id, l.book_id, l.user_id, l.status, l.borrowed_at, l.due_at, l.returned_at,
       b.title, b.author, b.cover_image_url, b.external_id
FROM loans l
JOIN books b ON b.id = l.book_id
WHERE l.user_id = $1
ORDER BY l.borrowed_at DESC
`

func (q *Queries) ListLoansByUser(ctx context.Context, userID int32) ([]ListLoansByUserRow, error) {
	return q.listLoanRows(ctx, listLoansByUser, userID)
}

const listOverdueLoansByUser = `
SELECT l.id, l.book_id, l.user_id, l.status, l.borrowed_at, l.due_at, l.returned_at,
       b.title, b.author, b.cover_image_url, b.external_id
FROM loans l
JOIN books b ON b.id = l.book_id
WHERE l.user_id = $1 AND l.status = 'active' AND l.due_at < now()
ORDER BY l.due_at
`

func (q *Queries) ListOverdueLoansByUser(ctx context.Context, userID int32) ([]ListLoansByUserRow, error) {
	return q.listLoanRows(ctx, listOverdueLoansByUser, userID)
}

func (q *Queries) listLoanRows(ctx context.Context, sql string, userID int32) ([]ListLoansByUserRow, error) {
	rows, err := q.db.Query(ctx, sql, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ListLoansByUserRow
	for rows.Next() {
		var r ListLoansByUserRow
		err := rows.Scan(
			&r.ID, &r.BookID, &r.UserID, &r.Status, &r.BorrowedAt, &r.DueAt, &r.ReturnedAt,
			&r.Title, &r.Author, &r.CoverImageUrl, &r.ExternalID,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanLoan(row interface{ Scan(dest ...interface{}) error }) (Loan, error) {
	var l Loan
	err := row.Scan(&l.ID, &l.BookID, &l.UserID, &l.Status, &l.BorrowedAt, &l.DueAt, &l.ReturnedAt)
	return l, err
}
