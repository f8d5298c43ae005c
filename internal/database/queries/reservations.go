package queries

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const reservationColumns = `id, book_id, user_id, status, requested_hours, created_at, ready_at, expires_at`

const createReservation = `
INSERT INTO reservations (book_id, user_id, status, requested_hours, created_at)
VALUES ($1, $2, 'active', $3, now())
RETURNING ` + reservationColumns

type CreateReservationParams struct {
	BookID         int32
	UserID         int32
	RequestedHours float64
}

func (q *Queries) CreateReservation(ctx context.Context, arg CreateReservationParams) (Reservation, error) {
	row := q.db.QueryRow(ctx, createReservation, arg.BookID, arg.UserID, arg.RequestedHours)
	return scanReservation(row)
}

const getReservationForUpdate = `
SELECT ` + reservationColumns + `
FROM reservations
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetReservationForUpdate(ctx context.Context, id int32) (Reservation, error) {
	return scanReservation(q.db.QueryRow(ctx, getReservationForUpdate, id))
}

const getReservationByIDAndUser = `
SELECT ` + reservationColumns + `
FROM reservations
WHERE id = $1 AND user_id = $2
`

type GetReservationByIDAndUserParams struct {
	ID     int32
	UserID int32
}

func (q *Queries) GetReservationByIDAndUser(ctx context.Context, arg GetReservationByIDAndUserParams) (Reservation, error) {
	return scanReservation(q.db.QueryRow(ctx, getReservationByIDAndUser, arg.ID, arg.UserID))
}

const getNextActiveReservationByBook = `
SELECT ` + reservationColumns + `
FROM reservations
WHERE book_id = $1 AND status = 'active'
ORDER BY created_at ASC
LIMIT 1
FOR UPDATE
`

// GetNextActiveReservationByBook returns the head of the waitlist. Ordering
// is strictly by creation timestamp, which the insert path server-generates.
func (q *Queries) GetNextActiveReservationByBook(ctx context.Context, bookID int32) (Reservation, error) {
	return scanReservation(q.db.QueryRow(ctx, getNextActiveReservationByBook, bookID))
}

const getReadyReservationByBook = `
SELECT ` + reservationColumns + `
FROM reservations
WHERE book_id = $1 AND status = 'ready'
ORDER BY ready_at ASC
LIMIT 1
FOR UPDATE
`

func (q *Queries) GetReadyReservationByBook(ctx context.Context, bookID int32) (Reservation, error) {
	return scanReservation(q.db.QueryRow(ctx, getReadyReservationByBook, bookID))
}

const getOpenReservationByBookAndUser = `
SELECT ` + reservationColumns + `
FROM reservations
WHERE book_id = $1 AND user_id = $2 AND status IN ('active', 'ready')
LIMIT 1
`

type GetOpenReservationByBookAndUserParams struct {
	BookID int32
	UserID int32
}

func (q *Queries) GetOpenReservationByBookAndUser(ctx context.Context, arg GetOpenReservationByBookAndUserParams) (Reservation, error) {
	return scanReservation(q.db.QueryRow(ctx, getOpenReservationByBookAndUser, arg.BookID, arg.UserID))
}

const countReadyReservationsByBook = `
SELECT count(*) FROM reservations WHERE book_id = $1 AND status = 'ready'
`

func (q *Queries) CountReadyReservationsByBook(ctx context.Context, bookID int32) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countReadyReservationsByBook, bookID).Scan(&n)
	return n, err
}

const countQueueAhead = `
SELECT count(*)
FROM reservations
WHERE book_id = $1 AND status IN ('active', 'ready') AND created_at <= $2
`

type CountQueueAheadParams struct {
	BookID    int32
	CreatedAt pgtype.Timestamptz
}

func (q *Queries) CountQueueAhead(ctx context.Context, arg CountQueueAheadParams) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countQueueAhead, arg.BookID, arg.CreatedAt).Scan(&n)
	return n, err
}

const markReservationCompleted = `
UPDATE reservations
SET status = 'completed'
WHERE id = $1 AND status IN ('active', 'ready')
RETURNING ` + reservationColumns

func (q *Queries) MarkReservationCompleted(ctx context.Context, id int32) (Reservation, error) {
	return scanReservation(q.db.QueryRow(ctx, markReservationCompleted, id))
}

const markReservationReady = `
UPDATE reservations
SET status = 'ready', ready_at = $2, expires_at = $3
WHERE id = $1 AND status = 'active'
RETURNING ` + reservationColumns

type MarkReservationReadyParams struct {
	ID        int32
	ReadyAt   pgtype.Timestamptz
	ExpiresAt pgtype.Timestamptz
}

func (q *Queries) MarkReservationReady(ctx context.Context, arg MarkReservationReadyParams) (Reservation, error) {
	return scanReservation(q.db.QueryRow(ctx, markReservationReady, arg.ID, arg.ReadyAt, arg.ExpiresAt))
}

const markReservationCancelled = `
UPDATE reservations
SET status = 'cancelled'
WHERE id = $1 AND status IN ('active', 'ready')
RETURNING ` + reservationColumns

func (q *Queries) MarkReservationCancelled(ctx context.Context, id int32) (Reservation, error) {
	return scanReservation(q.db.QueryRow(ctx, markReservationCancelled, id))
}

const markReservationExpired = `
UPDATE reservations
SET status = 'expired'
WHERE id = $1 AND status = 'ready'
RETURNING ` + reservationColumns

// MarkReservationExpired only fires while the hold is still ready, so an
// overlapping sweeper tick or a concurrent claim cannot expire it twice.
func (q *Queries) MarkReservationExpired(ctx context.Context, id int32) (Reservation, error) {
	return scanReservation(q.db.QueryRow(ctx, markReservationExpired, id))
}

const listExpiredReadyReservations = `
SELECT ` + reservationColumns + `
FROM reservations
WHERE status = 'ready' AND expires_at < now()
ORDER BY expires_at
`

func (q *Queries) ListExpiredReadyReservations(ctx context.Context) ([]Reservation, error) {
	rows, err := q.db.Query(ctx, listExpiredReadyReservations)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		var r Reservation
		err := rows.Scan(&r.ID, &r.BookID, &r.UserID, &r.Status, &r.RequestedHours, &r.CreatedAt, &r.ReadyAt, &r.ExpiresAt)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type ListOpenReservationsByUserRow struct {
	Reservation
	Title              string
	Author             string
	CoverImageUrl      pgtype.Text
	QueuePosition      int64
	CurrentHolderDueAt pgtype.Timestamptz
}

const listOpenReservationsByUser = `
SELECT r.id, r.book_id, r.user_id, r.status, r.requested_hours, r.created_at, r.ready_at, r.expires_at,
       b.title, b.author, b.cover_image_url,
       (SELECT count(*) FROM reservations r2
        WHERE r2.book_id = r.book_id AND r2.status IN ('active', 'ready') AND r2.created_at <= r.created_at) AS queue_position,
       (SELECT l.due_at FROM loans l
        WHERE l.book_id = r.book_id AND l.status = 'active'
        ORDER BY l.borrowed_at DESC LIMIT 1) AS current_holder_due_at
FROM reservations r
JOIN books b ON b.id = r.book_id
WHERE r.user_id = $1 AND r.status IN ('active', 'ready')
ORDER BY r.created_at DESC
`

func (q *Queries) ListOpenReservationsByUser(ctx context.Context, userID int32) ([]ListOpenReservationsByUserRow, error) {
	rows, err := q.db.Query(ctx, listOpenReservationsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ListOpenReservationsByUserRow
	for rows.Next() {
		var r ListOpenReservationsByUserRow
		err := rows.Scan(
			&r.ID, &r.BookID, &r.UserID, &r.Status, &r.RequestedHours, &r.CreatedAt, &r.ReadyAt, &r.ExpiresAt,
			&r.Title, &r.Author, &r.CoverImageUrl, &r.QueuePosition, &r.CurrentHolderDueAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReservation(row interface{ Scan(dest ...interface{}) error }) (Reservation, error) {
	var r Reservation
	err := row.Scan(&r.ID, &r.BookID, &r.UserID, &r.Status, &r.RequestedHours, &r.CreatedAt, &r.ReadyAt, &r.ExpiresAt)
	return r, err
}
