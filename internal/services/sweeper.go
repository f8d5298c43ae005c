package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shelfshare/shelfshare/internal/database/queries"
	"github.com/shelfshare/shelfshare/internal/models"
)

// SweeperReport summarizes one sweep.
type SweeperReport struct {
	AutoReturned   int `json:"auto_returned"`
	ExpiredHolds   int `json:"expired_holds"`
	RepairedBooks  int `json:"repaired_books"`
	DurationMillis int `json:"duration_ms"`
}

// Sweeper periodically repairs circulation state: it auto-returns overdue
// loans, expires ready holds past their window, and reconciles the cached
// book status with the ledger. Every pass is idempotent; each row is
// re-checked under the book lock, so a sweep racing an interactive request
// or another sweep converges instead of double-applying.
type Sweeper struct {
	circulation *CirculationService
	logger      *slog.Logger
	interval    time.Duration
	mu          sync.Mutex
	lastReport  SweeperReport
	lastSweepAt time.Time
}

func NewSweeper(circulation *CirculationService, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		circulation: circulation,
		logger:      logger,
		interval:    interval,
	}
}

// Run sweeps on a fixed interval until the context is cancelled. Overlap
// with a manually triggered sweep skips the tick instead of queueing.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("Sweeper started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("Sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs all three passes once. A sweep already in progress makes this
// call return the previous report immediately.
func (s *Sweeper) Sweep(ctx context.Context) (SweeperReport, error) {
	if !s.mu.TryLock() {
		return s.lastReport, nil
	}
	defer s.mu.Unlock()

	start := time.Now()
	var report SweeperReport
	var errs []error

	n, err := s.AutoReturnPass(ctx)
	report.AutoReturned = n
	if err != nil {
		errs = append(errs, fmt.Errorf("auto-return pass: %w", err))
	}

	n, err = s.ExpireReadyPass(ctx)
	report.ExpiredHolds = n
	if err != nil {
		errs = append(errs, fmt.Errorf("expire-ready pass: %w", err))
	}

	n, err = s.RepairStatusPass(ctx)
	report.RepairedBooks = n
	if err != nil {
		errs = append(errs, fmt.Errorf("repair-status pass: %w", err))
	}

	report.DurationMillis = int(time.Since(start).Milliseconds())
	s.lastReport = report
	s.lastSweepAt = time.Now().UTC()

	if report.AutoReturned > 0 || report.ExpiredHolds > 0 || report.RepairedBooks > 0 {
		s.logger.Info("Sweep completed",
			"auto_returned", report.AutoReturned,
			"expired_holds", report.ExpiredHolds,
			"repaired_books", report.RepairedBooks,
			"duration_ms", report.DurationMillis)
	}
	return report, errors.Join(errs...)
}

// AutoReturnPass closes every loan past its due time and promotes the
// freed items' waitlists. The candidate list is read without a lock; each
// loan is re-verified inside its own transaction, so a loan returned
// interactively in between is simply skipped.
func (s *Sweeper) AutoReturnPass(ctx context.Context) (int, error) {
	overdue, err := s.circulation.store.ListOverdueActiveLoans(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue loans: %w", err)
	}

	returned := 0
	var errs []error
	for _, loan := range overdue {
		var promo promotionResult
		err := s.circulation.store.ExecTx(ctx, func(q queries.Querier) error {
			if _, err := q.GetBookForUpdate(ctx, loan.BookID); err != nil {
				return fmt.Errorf("failed to lock book: %w", err)
			}
			if _, err := q.ReturnLoan(ctx, loan.ID); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return errAlreadyHandled
				}
				return fmt.Errorf("failed to auto-return loan: %w", err)
			}
			result, err := s.circulation.promoteNext(ctx, q, loan.BookID)
			promo = result
			return err
		})
		if err != nil {
			if errors.Is(err, errAlreadyHandled) {
				continue
			}
			errs = append(errs, fmt.Errorf("loan %d: %w", loan.ID, err))
			continue
		}
		returned++
		s.circulation.publish(ctx, promo.events...)
		s.logger.Info("Loan auto-returned",
			"loan_id", loan.ID, "book_id", loan.BookID, "user_id", loan.UserID,
			"queue_status", promo.queueStatus())
	}
	return returned, errors.Join(errs...)
}

// ExpireReadyPass expires ready holds whose claim window has passed and
// promotes the next reservation in line.
func (s *Sweeper) ExpireReadyPass(ctx context.Context) (int, error) {
	stale, err := s.circulation.store.ListExpiredReadyReservations(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired holds: %w", err)
	}

	expired := 0
	var errs []error
	for _, hold := range stale {
		var promo promotionResult
		err := s.circulation.store.ExecTx(ctx, func(q queries.Querier) error {
			if _, err := q.GetBookForUpdate(ctx, hold.BookID); err != nil {
				return fmt.Errorf("failed to lock book: %w", err)
			}
			// Guarded on status 'ready': a hold claimed or cancelled
			// since the list was read yields no rows here.
			if _, err := q.MarkReservationExpired(ctx, hold.ID); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return errAlreadyHandled
				}
				return fmt.Errorf("failed to expire hold: %w", err)
			}
			result, err := s.circulation.promoteNext(ctx, q, hold.BookID)
			promo = result
			return err
		})
		if err != nil {
			if errors.Is(err, errAlreadyHandled) {
				continue
			}
			errs = append(errs, fmt.Errorf("reservation %d: %w", hold.ID, err))
			continue
		}
		expired++

		events := append([]models.Event{{
			Type:          models.EventReservationExpired,
			BookID:        hold.BookID,
			UserID:        hold.UserID,
			ReservationID: hold.ID,
		}}, promo.events...)
		s.circulation.publish(ctx, events...)
		s.logger.Info("Ready hold expired",
			"reservation_id", hold.ID, "book_id", hold.BookID, "user_id", hold.UserID,
			"queue_status", promo.queueStatus())
	}
	return expired, errors.Join(errs...)
}

// RepairStatusPass rewrites every cached book status that disagrees with
// the status derived from loans and ready holds. It repairs the cache
// only; it never creates or closes loans or reservations.
func (s *Sweeper) RepairStatusPass(ctx context.Context) (int, error) {
	ids, err := s.circulation.store.ListBookIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list books: %w", err)
	}

	repaired := 0
	var errs []error
	for _, id := range ids {
		var fixed bool
		err := s.circulation.store.ExecTx(ctx, func(q queries.Querier) error {
			book, err := q.GetBookForUpdate(ctx, id)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return errAlreadyHandled
				}
				return fmt.Errorf("failed to lock book: %w", err)
			}
			derived, err := s.circulation.deriveStatus(ctx, q, id)
			if err != nil {
				return err
			}
			if book.Status == derived {
				return nil
			}
			if err := q.UpdateBookStatus(ctx, queries.UpdateBookStatusParams{
				ID:     id,
				Status: derived,
			}); err != nil {
				return fmt.Errorf("failed to repair status: %w", err)
			}
			fixed = true
			s.logger.Warn("Repaired stale book status", "book_id", id, "was", book.Status, "now", derived)
			return nil
		})
		if err != nil {
			if errors.Is(err, errAlreadyHandled) {
				continue
			}
			errs = append(errs, fmt.Errorf("book %d: %w", id, err))
			continue
		}
		if fixed {
			repaired++
		}
	}
	return repaired, errors.Join(errs...)
}

// LastReport returns the most recent sweep summary and when it ran.
func (s *Sweeper) LastReport() (SweeperReport, time.Time) {
	return s.lastReport, s.lastSweepAt
}

// errAlreadyHandled aborts a per-row transaction when the row was handled
// by a concurrent actor between the list read and the locked re-check.
var errAlreadyHandled = errors.New("row already handled concurrently")
