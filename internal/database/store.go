package database

import (
	"context"
	"fmt"

	"github.com/shelfshare/shelfshare/internal/database/queries"
)

// Store bundles the query layer with transaction execution. Outside a
// transaction it behaves as plain *queries.Queries against the pool.
type Store struct {
	*queries.Queries
	db *Database
}

func NewStore(db *Database) *Store {
	return &Store{
		Queries: queries.New(db.Pool),
		db:      db,
	}
}

// ExecTx runs fn inside a single database transaction. Circulation
// operations rely on this plus row locks on the books row to keep borrow,
// return and promotion mutually exclusive per item.
func (s *Store) ExecTx(ctx context.Context, fn func(queries.Querier) error) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(s.Queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}
