package queries

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createBook = `
INSERT INTO books (external_id, title, author, isbn, published_year, cover_image_url, description, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, 'available')
ON CONFLICT (external_id) DO UPDATE SET updated_at = now()
RETURNING id, external_id, title, author, isbn, published_year, cover_image_url, description, status, created_at, updated_at
`

type CreateBookParams struct {
	ExternalID    pgtype.Text
	Title         string
	Author        string
	Isbn          pgtype.Text
	PublishedYear pgtype.Int4
	CoverImageUrl pgtype.Text
	Description   pgtype.Text
}

// CreateBook inserts a catalog record for an external identifier. The
// conflict clause makes concurrent resolutions of the same external id
// converge on a single row.
func (q *Queries) CreateBook(ctx context.Context, arg CreateBookParams) (Book, error) {
	row := q.db.QueryRow(ctx, createBook,
		arg.ExternalID,
		arg.Title,
		arg.Author,
		arg.Isbn,
		arg.PublishedYear,
		arg.CoverImageUrl,
		arg.Description,
	)
	var b Book
	err := row.Scan(
		&b.ID,
		&b.ExternalID,
		&b.Title,
		&b.Author,
		&b.Isbn,
		&b.PublishedYear,
		&b.CoverImageUrl,
		&b.Description,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

const getBookByID = `
SELECT id, external_id, title, author, isbn, published_year, cover_image_url, description, status, created_at, updated_at
FROM books
WHERE id = $1
`

func (q *Queries) GetBookByID(ctx context.Context, id int32) (Book, error) {
	row := q.db.QueryRow(ctx, getBookByID, id)
	var b Book
	err := row.Scan(
		&b.ID,
		&b.ExternalID,
		&b.Title,
		&b.Author,
		&b.Isbn,
		&b.PublishedYear,
		&b.CoverImageUrl,
		&b.Description,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

const getBookByExternalID = `
SELECT id, external_id, title, author, isbn, published_year, cover_image_url, description, status, created_at, updated_at
FROM books
WHERE external_id = $1
`

func (q *Queries) GetBookByExternalID(ctx context.Context, externalID string) (Book, error) {
	row := q.db.QueryRow(ctx, getBookByExternalID, externalID)
	var b Book
	err := row.Scan(
		&b.ID,
		&b.ExternalID,
		&b.Title,
		&b.Author,
		&b.Isbn,
		&b.PublishedYear,
		&b.CoverImageUrl,
		&b.Description,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

const getBookForUpdate = `
SELECT id, external_id, title, author, isbn, published_year, cover_image_url, description, status, created_at, updated_at
FROM books
WHERE id = $1
FOR UPDATE
`

// GetBookForUpdate locks the book row for the rest of the transaction.
// Every mutating circulation path locks the book first so that two
// concurrent borrows, or a borrow racing a promotion, serialize here.
func (q *Queries) GetBookForUpdate(ctx context.Context, id int32) (Book, error) {
	row := q.db.QueryRow(ctx, getBookForUpdate, id)
	var b Book
	err := row.Scan(
		&b.ID,
		&b.ExternalID,
		&b.Title,
		&b.Author,
		&b.Isbn,
		&b.PublishedYear,
		&b.CoverImageUrl,
		&b.Description,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

const updateBookStatus = `
UPDATE books
SET status = $2, updated_at = now()
WHERE id = $1
`

type UpdateBookStatusParams struct {
	ID     int32
	Status string
}

func (q *Queries) UpdateBookStatus(ctx context.Context, arg UpdateBookStatusParams) error {
	_, err := q.db.Exec(ctx, updateBookStatus, arg.ID, arg.Status)
	return err
}

const listBookIDs = `
SELECT id FROM books ORDER BY id
`

func (q *Queries) ListBookIDs(ctx context.Context) ([]int32, error) {
	rows, err := q.db.Query(ctx, listBookIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int32
	for rows.Next() {
		var id int32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
