package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/shelfshare/shelfshare/internal/database/queries"
	"github.com/shelfshare/shelfshare/internal/models"
)

// memStore is an in-memory CirculationStore. It mirrors the SQL semantics
// closely enough for the scenario tests: status-guarded updates return
// pgx.ErrNoRows when the guard fails, ordering matches the queries, and
// ExecTx simply runs the function since the tests are single-threaded.
type memStore struct {
	mu           sync.Mutex
	books        map[int32]queries.Book
	loans        map[int32]queries.Loan
	reservations map[int32]queries.Reservation
	users        map[int32]queries.User
	nextID       int32
}

func newMemStore() *memStore {
	return &memStore{
		books:        make(map[int32]queries.Book),
		loans:        make(map[int32]queries.Loan),
		reservations: make(map[int32]queries.Reservation),
		users:        make(map[int32]queries.User),
	}
}

func (m *memStore) ExecTx(_ context.Context, fn func(queries.Querier) error) error {
	return fn(m)
}

func (m *memStore) id() int32 {
	m.nextID++
	return m.nextID
}

func ts(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

// Test fixture helpers.

func (m *memStore) addUser(limit int32) queries.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := queries.User{
		ID:          m.id(),
		Username:    "user",
		Email:       "user@example.com",
		BorrowLimit: limit,
		IsActive:    pgtype.Bool{Bool: true, Valid: true},
		CreatedAt:   ts(time.Now()),
	}
	m.users[u.ID] = u
	return u
}

func (m *memStore) addBook(status string) queries.Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := queries.Book{
		ID:        m.id(),
		Title:     "The Go Programming Language",
		Author:    "Donovan & Kernighan",
		Status:    status,
		CreatedAt: ts(time.Now()),
		UpdatedAt: ts(time.Now()),
	}
	m.books[b.ID] = b
	return b
}

func (m *memStore) addLoan(bookID, userID int32, status string, due time.Time) queries.Loan {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := queries.Loan{
		ID:         m.id(),
		BookID:     bookID,
		UserID:     userID,
		Status:     status,
		BorrowedAt: ts(time.Now().Add(-time.Hour)),
		DueAt:      ts(due),
	}
	m.loans[l.ID] = l
	return l
}

func (m *memStore) addReservation(bookID, userID int32, status string, createdAt time.Time) queries.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := queries.Reservation{
		ID:             m.id(),
		BookID:         bookID,
		UserID:         userID,
		Status:         status,
		RequestedHours: models.DefaultLoanHours,
		CreatedAt:      ts(createdAt),
	}
	m.reservations[r.ID] = r
	return r
}

func (m *memStore) setReady(reservationID int32, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.reservations[reservationID]
	r.Status = models.ReservationStatusReady
	r.ReadyAt = ts(time.Now())
	r.ExpiresAt = ts(expiresAt)
	m.reservations[reservationID] = r
}

// Books.

func (m *memStore) CreateBook(_ context.Context, arg queries.CreateBookParams) (queries.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if b.ExternalID.Valid && arg.ExternalID.Valid && b.ExternalID.String == arg.ExternalID.String {
			return b, nil
		}
	}
	b := queries.Book{
		ID:            m.id(),
		ExternalID:    arg.ExternalID,
		Title:         arg.Title,
		Author:        arg.Author,
		Isbn:          arg.Isbn,
		PublishedYear: arg.PublishedYear,
		CoverImageUrl: arg.CoverImageUrl,
		Description:   arg.Description,
		Status:        models.BookStatusAvailable,
		CreatedAt:     ts(time.Now()),
		UpdatedAt:     ts(time.Now()),
	}
	m.books[b.ID] = b
	return b, nil
}

func (m *memStore) GetBookByID(_ context.Context, id int32) (queries.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return queries.Book{}, pgx.ErrNoRows
	}
	return b, nil
}

func (m *memStore) GetBookByExternalID(_ context.Context, externalID string) (queries.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if b.ExternalID.Valid && b.ExternalID.String == externalID {
			return b, nil
		}
	}
	return queries.Book{}, pgx.ErrNoRows
}

func (m *memStore) GetBookForUpdate(ctx context.Context, id int32) (queries.Book, error) {
	return m.GetBookByID(ctx, id)
}

func (m *memStore) UpdateBookStatus(_ context.Context, arg queries.UpdateBookStatusParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[arg.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	b.Status = arg.Status
	b.UpdatedAt = ts(time.Now())
	m.books[arg.ID] = b
	return nil
}

func (m *memStore) ListBookIDs(_ context.Context) ([]int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int32, 0, len(m.books))
	for id := range m.books {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Loans.

func (m *memStore) CreateLoan(_ context.Context, arg queries.CreateLoanParams) (queries.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := queries.Loan{
		ID:         m.id(),
		BookID:     arg.BookID,
		UserID:     arg.UserID,
		Status:     models.LoanStatusActive,
		BorrowedAt: ts(time.Now()),
		DueAt:      arg.DueAt,
	}
	m.loans[l.ID] = l
	return l, nil
}

func (m *memStore) GetLoanForUpdate(_ context.Context, id int32) (queries.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok {
		return queries.Loan{}, pgx.ErrNoRows
	}
	return l, nil
}

func (m *memStore) GetActiveLoanByBook(_ context.Context, bookID int32) (queries.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.loans {
		if l.BookID == bookID && l.Status == models.LoanStatusActive {
			return l, nil
		}
	}
	return queries.Loan{}, pgx.ErrNoRows
}

func (m *memStore) GetActiveLoanByBookAndUser(_ context.Context, arg queries.GetActiveLoanByBookAndUserParams) (queries.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.loans {
		if l.BookID == arg.BookID && l.UserID == arg.UserID && l.Status == models.LoanStatusActive {
			return l, nil
		}
	}
	return queries.Loan{}, pgx.ErrNoRows
}

func (m *memStore) CountActiveLoansByBook(_ context.Context, bookID int32) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, l := range m.loans {
		if l.BookID == bookID && l.Status == models.LoanStatusActive {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountActiveLoansByUser(_ context.Context, userID int32) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, l := range m.loans {
		if l.UserID == userID && l.Status == models.LoanStatusActive {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ReturnLoan(_ context.Context, id int32) (queries.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loans[id]
	if !ok || l.Status != models.LoanStatusActive {
		return queries.Loan{}, pgx.ErrNoRows
	}
	l.Status = models.LoanStatusReturned
	l.ReturnedAt = ts(time.Now())
	m.loans[id] = l
	return l, nil
}

func (m *memStore) ListOverdueActiveLoans(_ context.Context) ([]queries.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []queries.Loan
	now := time.Now()
	for _, l := range m.loans {
		if l.Status == models.LoanStatusActive && l.DueAt.Time.Before(now) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Time.Before(out[j].DueAt.Time) })
	return out, nil
}

func (m *memStore) ListLoansByUser(_ context.Context, userID int32) ([]queries.ListLoansByUserRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []queries.ListLoansByUserRow
	for _, l := range m.loans {
		if l.UserID != userID {
			continue
		}
		b := m.books[l.BookID]
		out = append(out, queries.ListLoansByUserRow{Loan: l, Title: b.Title, Author: b.Author})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BorrowedAt.Time.After(out[j].BorrowedAt.Time) })
	return out, nil
}

func (m *memStore) ListOverdueLoansByUser(ctx context.Context, userID int32) ([]queries.ListLoansByUserRow, error) {
	all, err := m.ListLoansByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var out []queries.ListLoansByUserRow
	for _, row := range all {
		if row.Status == models.LoanStatusActive && row.DueAt.Time.Before(now) {
			out = append(out, row)
		}
	}
	return out, nil
}

// Reservations.

func (m *memStore) CreateReservation(_ context.Context, arg queries.CreateReservationParams) (queries.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := queries.Reservation{
		ID:             m.id(),
		BookID:         arg.BookID,
		UserID:         arg.UserID,
		Status:         models.ReservationStatusActive,
		RequestedHours: arg.RequestedHours,
		CreatedAt:      ts(time.Now()),
	}
	m.reservations[r.ID] = r
	return r, nil
}

func (m *memStore) GetReservationForUpdate(_ context.Context, id int32) (queries.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return queries.Reservation{}, pgx.ErrNoRows
	}
	return r, nil
}

func (m *memStore) GetReservationByIDAndUser(_ context.Context, arg queries.GetReservationByIDAndUserParams) (queries.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[arg.ID]
	if !ok || r.UserID != arg.UserID {
		return queries.Reservation{}, pgx.ErrNoRows
	}
	return r, nil
}

func (m *memStore) GetNextActiveReservationByBook(_ context.Context, bookID int32) (queries.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *queries.Reservation
	for _, r := range m.reservations {
		if r.BookID != bookID || r.Status != models.ReservationStatusActive {
			continue
		}
		r := r
		if best == nil || r.CreatedAt.Time.Before(best.CreatedAt.Time) {
			best = &r
		}
	}
	if best == nil {
		return queries.Reservation{}, pgx.ErrNoRows
	}
	return *best, nil
}

func (m *memStore) GetReadyReservationByBook(_ context.Context, bookID int32) (queries.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reservations {
		if r.BookID == bookID && r.Status == models.ReservationStatusReady {
			return r, nil
		}
	}
	return queries.Reservation{}, pgx.ErrNoRows
}

func (m *memStore) GetOpenReservationByBookAndUser(_ context.Context, arg queries.GetOpenReservationByBookAndUserParams) (queries.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reservations {
		if r.BookID == arg.BookID && r.UserID == arg.UserID && !models.IsTerminalReservationStatus(r.Status) {
			return r, nil
		}
	}
	return queries.Reservation{}, pgx.ErrNoRows
}

func (m *memStore) CountReadyReservationsByBook(_ context.Context, bookID int32) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.reservations {
		if r.BookID == bookID && r.Status == models.ReservationStatusReady {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountQueueAhead(_ context.Context, arg queries.CountQueueAheadParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.reservations {
		if r.BookID == arg.BookID && !models.IsTerminalReservationStatus(r.Status) && !r.CreatedAt.Time.After(arg.CreatedAt.Time) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) markReservation(id int32, from []string, to string) (queries.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return queries.Reservation{}, pgx.ErrNoRows
	}
	allowed := false
	for _, s := range from {
		if r.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return queries.Reservation{}, pgx.ErrNoRows
	}
	r.Status = to
	m.reservations[id] = r
	return r, nil
}

func (m *memStore) MarkReservationCompleted(_ context.Context, id int32) (queries.Reservation, error) {
	return m.markReservation(id, []string{models.ReservationStatusActive, models.ReservationStatusReady}, models.ReservationStatusCompleted)
}

func (m *memStore) MarkReservationReady(_ context.Context, arg queries.MarkReservationReadyParams) (queries.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[arg.ID]
	if !ok || r.Status != models.ReservationStatusActive {
		return queries.Reservation{}, pgx.ErrNoRows
	}
	r.Status = models.ReservationStatusReady
	r.ReadyAt = arg.ReadyAt
	r.ExpiresAt = arg.ExpiresAt
	m.reservations[arg.ID] = r
	return r, nil
}

func (m *memStore) MarkReservationCancelled(_ context.Context, id int32) (queries.Reservation, error) {
	return m.markReservation(id, []string{models.ReservationStatusActive, models.ReservationStatusReady}, models.ReservationStatusCancelled)
}

func (m *memStore) MarkReservationExpired(_ context.Context, id int32) (queries.Reservation, error) {
	return m.markReservation(id, []string{models.ReservationStatusReady}, models.ReservationStatusExpired)
}

func (m *memStore) ListExpiredReadyReservations(_ context.Context) ([]queries.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []queries.Reservation
	now := time.Now()
	for _, r := range m.reservations {
		if r.Status == models.ReservationStatusReady && r.ExpiresAt.Valid && r.ExpiresAt.Time.Before(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Time.Before(out[j].ExpiresAt.Time) })
	return out, nil
}

func (m *memStore) ListOpenReservationsByUser(_ context.Context, userID int32) ([]queries.ListOpenReservationsByUserRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []queries.ListOpenReservationsByUserRow
	for _, r := range m.reservations {
		if r.UserID != userID || models.IsTerminalReservationStatus(r.Status) {
			continue
		}
		b := m.books[r.BookID]
		var position int64
		for _, other := range m.reservations {
			if other.BookID == r.BookID && !models.IsTerminalReservationStatus(other.Status) && !other.CreatedAt.Time.After(r.CreatedAt.Time) {
				position++
			}
		}
		row := queries.ListOpenReservationsByUserRow{
			Reservation:   r,
			Title:         b.Title,
			Author:        b.Author,
			QueuePosition: position,
		}
		for _, l := range m.loans {
			if l.BookID == r.BookID && l.Status == models.LoanStatusActive {
				row.CurrentHolderDueAt = l.DueAt
			}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Time.After(out[j].CreatedAt.Time) })
	return out, nil
}

// Users.

func (m *memStore) GetUserByID(_ context.Context, id int32) (queries.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return queries.User{}, pgx.ErrNoRows
	}
	return u, nil
}

var _ CirculationStore = (*memStore)(nil)
