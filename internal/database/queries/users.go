package queries

import "context"

const getUserByID = `
SELECT id, username, email, borrow_limit, is_active, created_at
FROM users
WHERE id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, id int32) (User, error) {
	row := q.db.QueryRow(ctx, getUserByID, id)
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.BorrowLimit, &u.IsActive, &u.CreatedAt)
	return u, err
}
