package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/shelfshare/shelfshare/internal/database/queries"
	"github.com/shelfshare/shelfshare/internal/models"
)

// CirculationStore is the storage contract for the circulation engine:
// the full query surface plus transactional execution.
type CirculationStore interface {
	queries.Querier
	ExecTx(ctx context.Context, fn func(queries.Querier) error) error
}

// CatalogResolver maps an item reference to a local catalog id, creating
// the record on first sight of an external id.
type CatalogResolver interface {
	Resolve(ctx context.Context, ref models.ItemRef) (int32, bool, error)
}

// CirculationService owns the loan ledger and the waitlist for every
// catalog item. Return and promotion live on the same service so the one
// code path for "a loan ended" is promoteNext, whether the trigger was an
// interactive return, a cancellation of a ready hold, or the sweeper.
type CirculationService struct {
	store   CirculationStore
	catalog CatalogResolver
	events  EventPublisher
	logger  *slog.Logger

	defaultBorrowLimit int32
	defaultLoanHours   float64
	maxLoanHours       float64
	readyWindow        time.Duration
}

// NewCirculationService creates a circulation service with default policy
// settings.
func NewCirculationService(store CirculationStore, catalog CatalogResolver, events EventPublisher, logger *slog.Logger) *CirculationService {
	return &CirculationService{
		store:              store,
		catalog:            catalog,
		events:             events,
		logger:             logger,
		defaultBorrowLimit: models.DefaultBorrowLimit,
		defaultLoanHours:   models.DefaultLoanHours,
		maxLoanHours:       models.MaxLoanHours,
		readyWindow:        models.ReadyWindow,
	}
}

// WithReadyWindow customizes how long a promoted hold stays claimable.
func (s *CirculationService) WithReadyWindow(window time.Duration) *CirculationService {
	s.readyWindow = window
	return s
}

// WithLoanPolicy customizes loan duration bounds and the fallback borrow
// limit used when a users row carries no limit of its own.
func (s *CirculationService) WithLoanPolicy(defaultHours, maxHours float64, borrowLimit int) *CirculationService {
	s.defaultLoanHours = defaultHours
	s.maxLoanHours = maxHours
	s.defaultBorrowLimit = int32(borrowLimit)
	return s
}

// BorrowBook borrows an item for a bounded number of hours. All
// eligibility checks and the writes happen in one transaction under a row
// lock on the book, so two concurrent borrowers cannot both observe an
// available item.
func (s *CirculationService) BorrowBook(ctx context.Context, ref models.ItemRef, userID int32, hours float64) (*models.LoanResponse, error) {
	if hours == 0 {
		hours = s.defaultLoanHours
	}
	if hours <= 0 || hours > s.maxLoanHours {
		return nil, models.ErrInvalidDuration
	}

	bookID, _, err := s.catalog.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	var loan queries.Loan
	err = s.store.ExecTx(ctx, func(q queries.Querier) error {
		book, err := q.GetBookForUpdate(ctx, bookID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrBookNotFound
			}
			return fmt.Errorf("failed to lock book: %w", err)
		}

		if _, err := q.GetActiveLoanByBookAndUser(ctx, queries.GetActiveLoanByBookAndUserParams{
			BookID: bookID,
			UserID: userID,
		}); err == nil {
			return models.ErrAlreadyBorrowedBySelf
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to check existing loan: %w", err)
		}

		// Eligibility is re-derived from loan and reservation rows under
		// the lock; the cached book.Status is never trusted here.
		activeLoans, err := q.CountActiveLoansByBook(ctx, bookID)
		if err != nil {
			return fmt.Errorf("failed to count active loans: %w", err)
		}
		if activeLoans > 0 {
			return models.ErrItemUnavailable
		}

		// A ready hold blocks everyone except its own holder, who is
		// claiming the window by borrowing.
		var claimed *queries.Reservation
		ready, err := q.GetReadyReservationByBook(ctx, bookID)
		switch {
		case err == nil:
			if ready.UserID != userID {
				return models.ErrItemUnavailable
			}
			claimed = &ready
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("failed to check ready hold: %w", err)
		}

		if err := s.checkBorrowLimit(ctx, q, userID); err != nil {
			return err
		}

		due := pgtype.Timestamptz{Time: time.Now().UTC().Add(hoursToDuration(hours)), Valid: true}
		loan, err = q.CreateLoan(ctx, queries.CreateLoanParams{
			BookID: bookID,
			UserID: userID,
			DueAt:  due,
		})
		if err != nil {
			return fmt.Errorf("failed to create loan: %w", err)
		}

		if claimed != nil {
			if _, err := q.MarkReservationCompleted(ctx, claimed.ID); err != nil {
				return fmt.Errorf("failed to complete claimed reservation: %w", err)
			}
		}

		if book.Status != models.BookStatusBorrowed {
			if err := q.UpdateBookStatus(ctx, queries.UpdateBookStatusParams{
				ID:     bookID,
				Status: models.BookStatusBorrowed,
			}); err != nil {
				return fmt.Errorf("failed to update book status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Book borrowed", "book_id", bookID, "user_id", userID, "hours", hours)
	return convertLoan(loan), nil
}

// ReturnBook closes the caller's active loan on an item and hands the item
// to the waitlist in the same transaction, so the item is never left
// dangling in borrowed state without a promotion attempt.
func (s *CirculationService) ReturnBook(ctx context.Context, ref models.ItemRef, userID int32) (*models.ReturnResponse, error) {
	bookID, _, err := s.catalog.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	var promo promotionResult
	err = s.store.ExecTx(ctx, func(q queries.Querier) error {
		if _, err := q.GetBookForUpdate(ctx, bookID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrBookNotFound
			}
			return fmt.Errorf("failed to lock book: %w", err)
		}

		loan, err := q.GetActiveLoanByBookAndUser(ctx, queries.GetActiveLoanByBookAndUserParams{
			BookID: bookID,
			UserID: userID,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNoActiveLoan
			}
			return fmt.Errorf("failed to find active loan: %w", err)
		}

		if _, err := q.ReturnLoan(ctx, loan.ID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNoActiveLoan
			}
			return fmt.Errorf("failed to close loan: %w", err)
		}

		promo, err = s.promoteNext(ctx, q, bookID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, promo.events...)
	s.logger.Info("Book returned", "book_id", bookID, "user_id", userID, "queue_status", promo.queueStatus())

	return &models.ReturnResponse{
		Message:     "Book returned successfully",
		QueueStatus: promo.queueStatus(),
	}, nil
}

// ReserveBook joins the waitlist for an item that is currently not
// available. The preferred duration is stored and reused as the loan
// duration if the reservation is later auto-borrowed.
func (s *CirculationService) ReserveBook(ctx context.Context, ref models.ItemRef, userID int32, preferredHours float64) (*models.ReservationResponse, error) {
	if preferredHours == 0 {
		preferredHours = s.defaultLoanHours
	}
	if preferredHours <= 0 || preferredHours > s.maxLoanHours {
		return nil, models.ErrInvalidDuration
	}

	bookID, _, err := s.catalog.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	var (
		reservation queries.Reservation
		position    int64
		holderDue   pgtype.Timestamptz
	)
	err = s.store.ExecTx(ctx, func(q queries.Querier) error {
		if _, err := q.GetBookForUpdate(ctx, bookID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrBookNotFound
			}
			return fmt.Errorf("failed to lock book: %w", err)
		}

		if _, err := q.GetOpenReservationByBookAndUser(ctx, queries.GetOpenReservationByBookAndUserParams{
			BookID: bookID,
			UserID: userID,
		}); err == nil {
			return models.ErrAlreadyInQueue
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to check existing reservation: %w", err)
		}

		derived, err := s.deriveStatus(ctx, q, bookID)
		if err != nil {
			return err
		}
		if derived == models.BookStatusAvailable {
			return models.ErrItemAlreadyAvailable
		}

		reservation, err = q.CreateReservation(ctx, queries.CreateReservationParams{
			BookID:         bookID,
			UserID:         userID,
			RequestedHours: preferredHours,
		})
		if err != nil {
			return fmt.Errorf("failed to create reservation: %w", err)
		}

		position, err = q.CountQueueAhead(ctx, queries.CountQueueAheadParams{
			BookID:    bookID,
			CreatedAt: reservation.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to compute queue position: %w", err)
		}

		// Best-effort availability estimate from the current holder.
		if cur, err := q.GetActiveLoanByBook(ctx, bookID); err == nil {
			holderDue = cur.DueAt
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to look up current loan: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, models.Event{
		Type:          models.EventReservationCreated,
		BookID:        bookID,
		UserID:        userID,
		ReservationID: reservation.ID,
		QueuePosition: int(position),
	})
	s.logger.Info("Reservation created", "book_id", bookID, "user_id", userID, "position", position)

	resp := convertReservation(reservation)
	resp.QueuePosition = int(position)
	if holderDue.Valid {
		t := holderDue.Time
		resp.EstimatedAvailable = &t
	}
	return resp, nil
}

// CancelReservation withdraws a reservation. Cancelling a ready hold
// immediately promotes the next reservation so the queue is not stuck
// behind a hold nobody will claim.
func (s *CirculationService) CancelReservation(ctx context.Context, reservationID, userID int32) (*models.CancelReservationResponse, error) {
	var (
		promo    promotionResult
		wasReady bool
	)
	err := s.store.ExecTx(ctx, func(q queries.Querier) error {
		found, err := q.GetReservationByIDAndUser(ctx, queries.GetReservationByIDAndUserParams{
			ID:     reservationID,
			UserID: userID,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrReservationNotFound
			}
			return fmt.Errorf("failed to find reservation: %w", err)
		}
		if models.IsTerminalReservationStatus(found.Status) {
			return models.ErrReservationNotFound
		}

		// Lock the book first, then re-check the reservation under the
		// lock; every circulation path takes locks in that order.
		if _, err := q.GetBookForUpdate(ctx, found.BookID); err != nil {
			return fmt.Errorf("failed to lock book: %w", err)
		}
		current, err := q.GetReservationForUpdate(ctx, found.ID)
		if err != nil {
			return fmt.Errorf("failed to lock reservation: %w", err)
		}
		if models.IsTerminalReservationStatus(current.Status) {
			return models.ErrReservationNotFound
		}
		wasReady = current.Status == models.ReservationStatusReady

		if _, err := q.MarkReservationCancelled(ctx, current.ID); err != nil {
			return fmt.Errorf("failed to cancel reservation: %w", err)
		}

		if wasReady {
			promo, err = s.promoteNext(ctx, q, current.BookID)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, promo.events...)
	s.logger.Info("Reservation cancelled", "reservation_id", reservationID, "user_id", userID, "was_ready", wasReady)

	resp := &models.CancelReservationResponse{Message: "Reservation cancelled"}
	if wasReady {
		resp.QueueStatus = promo.queueStatus()
	}
	return resp, nil
}

// GetMyLoans lists a user's loans, newest first.
func (s *CirculationService) GetMyLoans(ctx context.Context, userID int32) ([]models.LoanResponse, error) {
	rows, err := s.store.ListLoansByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	return convertLoanRows(rows), nil
}

// GetMyOverdueLoans lists the user's active loans past their due time.
func (s *CirculationService) GetMyOverdueLoans(ctx context.Context, userID int32) ([]models.LoanResponse, error) {
	rows, err := s.store.ListOverdueLoansByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue loans: %w", err)
	}
	return convertLoanRows(rows), nil
}

// GetMyReservations lists the user's open reservations with queue
// positions and an availability estimate.
func (s *CirculationService) GetMyReservations(ctx context.Context, userID int32) ([]models.ReservationResponse, error) {
	rows, err := s.store.ListOpenReservationsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	out := make([]models.ReservationResponse, 0, len(rows))
	for _, row := range rows {
		resp := convertReservation(row.Reservation)
		resp.QueuePosition = int(row.QueuePosition)
		resp.BookTitle = row.Title
		resp.BookAuthor = row.Author
		if row.CurrentHolderDueAt.Valid {
			t := row.CurrentHolderDueAt.Time
			resp.EstimatedAvailable = &t
		}
		out = append(out, *resp)
	}
	return out, nil
}

// promotionResult describes what promoteNext did with a freed item.
type promotionResult struct {
	hasQueue     bool
	autoBorrowed bool
	holderID     int32
	events       []models.Event
}

func (p promotionResult) queueStatus() string {
	switch {
	case !p.hasQueue:
		return models.QueueStatusNowAvailable
	case p.autoBorrowed:
		return models.QueueStatusAutoBorrowed
	default:
		return models.QueueStatusReadyForNext
	}
}

// promoteNext advances the waitlist for a book whose current hold just
// ended. The caller must already hold the book row lock. If the head of
// the queue cannot be auto-borrowed it is granted a time-boxed ready
// window instead of being skipped, whatever the blocking reason, so queue
// priority is preserved.
func (s *CirculationService) promoteNext(ctx context.Context, q queries.Querier, bookID int32) (promotionResult, error) {
	next, err := q.GetNextActiveReservationByBook(ctx, bookID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := q.UpdateBookStatus(ctx, queries.UpdateBookStatusParams{
				ID:     bookID,
				Status: models.BookStatusAvailable,
			}); err != nil {
				return promotionResult{}, fmt.Errorf("failed to free book: %w", err)
			}
			return promotionResult{hasQueue: false}, nil
		}
		return promotionResult{}, fmt.Errorf("failed to read waitlist: %w", err)
	}

	loan, borrowErr := s.tryAutoBorrow(ctx, q, next)
	result := promotionResult{hasQueue: true, holderID: next.UserID}

	if borrowErr == nil {
		result.autoBorrowed = true
		result.events = append(result.events, models.Event{
			Type:          models.EventAutoBorrowed,
			BookID:        bookID,
			UserID:        next.UserID,
			LoanID:        loan.ID,
			ReservationID: next.ID,
			DueAt:         timestamptzPtr(loan.DueAt),
		})
	} else if isBlockedPromotion(borrowErr) {
		now := time.Now().UTC()
		ready, err := q.MarkReservationReady(ctx, queries.MarkReservationReadyParams{
			ID:        next.ID,
			ReadyAt:   pgtype.Timestamptz{Time: now, Valid: true},
			ExpiresAt: pgtype.Timestamptz{Time: now.Add(s.readyWindow), Valid: true},
		})
		if err != nil {
			return promotionResult{}, fmt.Errorf("failed to mark reservation ready: %w", err)
		}
		result.events = append(result.events, models.Event{
			Type:          models.EventReservationReady,
			BookID:        bookID,
			UserID:        next.UserID,
			ReservationID: next.ID,
			ExpiresAt:     timestamptzPtr(ready.ExpiresAt),
		})
	} else {
		return promotionResult{}, borrowErr
	}

	// Auto-borrowed or ready: either way the item stays claimed.
	if err := q.UpdateBookStatus(ctx, queries.UpdateBookStatusParams{
		ID:     bookID,
		Status: models.BookStatusBorrowed,
	}); err != nil {
		return promotionResult{}, fmt.Errorf("failed to update book status: %w", err)
	}
	return result, nil
}

// tryAutoBorrow converts the promoted reservation into a loan under the
// same checks as an interactive borrow.
func (s *CirculationService) tryAutoBorrow(ctx context.Context, q queries.Querier, reservation queries.Reservation) (queries.Loan, error) {
	if _, err := q.GetActiveLoanByBookAndUser(ctx, queries.GetActiveLoanByBookAndUserParams{
		BookID: reservation.BookID,
		UserID: reservation.UserID,
	}); err == nil {
		return queries.Loan{}, models.ErrAlreadyBorrowedBySelf
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return queries.Loan{}, fmt.Errorf("failed to check existing loan: %w", err)
	}

	if err := s.checkBorrowLimit(ctx, q, reservation.UserID); err != nil {
		return queries.Loan{}, err
	}

	hours := reservation.RequestedHours
	if hours <= 0 {
		hours = s.defaultLoanHours
	}
	due := pgtype.Timestamptz{Time: time.Now().UTC().Add(hoursToDuration(hours)), Valid: true}

	loan, err := q.CreateLoan(ctx, queries.CreateLoanParams{
		BookID: reservation.BookID,
		UserID: reservation.UserID,
		DueAt:  due,
	})
	if err != nil {
		return queries.Loan{}, fmt.Errorf("failed to create auto-borrow loan: %w", err)
	}
	if _, err := q.MarkReservationCompleted(ctx, reservation.ID); err != nil {
		return queries.Loan{}, fmt.Errorf("failed to complete reservation: %w", err)
	}
	return loan, nil
}

// checkBorrowLimit fails when the user already holds their maximum number
// of active loans across all items.
func (s *CirculationService) checkBorrowLimit(ctx context.Context, q queries.Querier, userID int32) error {
	user, err := q.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrUserNotFound
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	limit := user.BorrowLimit
	if limit <= 0 {
		limit = s.defaultBorrowLimit
	}
	held, err := q.CountActiveLoansByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to count user loans: %w", err)
	}
	if held >= int64(limit) {
		return models.ErrBorrowLimitExceeded
	}
	return nil
}

// deriveStatus computes availability from ledger truth: a book is borrowed
// iff an active loan or a ready hold exists for it.
func (s *CirculationService) deriveStatus(ctx context.Context, q queries.Querier, bookID int32) (string, error) {
	activeLoans, err := q.CountActiveLoansByBook(ctx, bookID)
	if err != nil {
		return "", fmt.Errorf("failed to count active loans: %w", err)
	}
	if activeLoans > 0 {
		return models.BookStatusBorrowed, nil
	}
	readyHolds, err := q.CountReadyReservationsByBook(ctx, bookID)
	if err != nil {
		return "", fmt.Errorf("failed to count ready holds: %w", err)
	}
	if readyHolds > 0 {
		return models.BookStatusBorrowed, nil
	}
	return models.BookStatusAvailable, nil
}

// isBlockedPromotion separates "this holder cannot take the loan right
// now" from real failures. Blocked holders get a ready window.
func isBlockedPromotion(err error) bool {
	return errors.Is(err, models.ErrAlreadyBorrowedBySelf) ||
		errors.Is(err, models.ErrBorrowLimitExceeded) ||
		errors.Is(err, models.ErrUserNotFound)
}

func (s *CirculationService) publish(ctx context.Context, events ...models.Event) {
	if s.events == nil || len(events) == 0 {
		return
	}
	s.events.Publish(ctx, events...)
}

func hoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}

func timestamptzPtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

func convertLoan(loan queries.Loan) *models.LoanResponse {
	resp := &models.LoanResponse{
		ID:         loan.ID,
		BookID:     loan.BookID,
		UserID:     loan.UserID,
		Status:     loan.Status,
		BorrowedAt: loan.BorrowedAt.Time,
		DueAt:      loan.DueAt.Time,
	}
	if loan.ReturnedAt.Valid {
		t := loan.ReturnedAt.Time
		resp.ReturnedAt = &t
	}
	return resp
}

func convertLoanRows(rows []queries.ListLoansByUserRow) []models.LoanResponse {
	out := make([]models.LoanResponse, 0, len(rows))
	for _, row := range rows {
		resp := convertLoan(row.Loan)
		resp.BookTitle = row.Title
		resp.BookAuthor = row.Author
		out = append(out, *resp)
	}
	return out
}

func convertReservation(r queries.Reservation) *models.ReservationResponse {
	resp := &models.ReservationResponse{
		ID:             r.ID,
		BookID:         r.BookID,
		UserID:         r.UserID,
		Status:         r.Status,
		RequestedHours: r.RequestedHours,
		CreatedAt:      r.CreatedAt.Time,
	}
	resp.ReadyAt = timestamptzPtr(r.ReadyAt)
	resp.ExpiresAt = timestamptzPtr(r.ExpiresAt)
	return resp
}
