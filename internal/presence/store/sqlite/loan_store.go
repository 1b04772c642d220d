package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portunus/presence/internal/db"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/store"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/types"
)

type LoanStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewLoanStore(db *sql.DB, writer *dbpkg.Worker) *LoanStore {
	return &LoanStore{db: db, writer: writer}
}

const loanColumns = `l.loan_id, l.visit_id, l.return_visit_id, l.resource, l.handed_out_at_ms, l.returned_at_ms`

func scanLoan(rows *sql.Rows) (types.Loan, error) {
	var (
		l          types.Loan
		returnID   sql.NullInt64
		handedOut  sql.NullInt64
		returnedAt sql.NullInt64
	)
	if err := rows.Scan(&l.ID, &l.VisitID, &returnID, &l.Resource, &handedOut, &returnedAt); err != nil {
		return types.Loan{}, err
	}
	l.ReturnVisitID = fromNullID(returnID)
	l.HandedOutAt = fromNullMs(handedOut)
	l.ReturnedAt = fromNullMs(returnedAt)
	return l, nil
}

func (s *LoanStore) ForgottenLoans(ctx context.Context, userID, placeID int64) ([]types.Loan, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+loanColumns+`
FROM loans l
JOIN visits v ON v.visit_id = l.visit_id
WHERE l.returned_at_ms IS NULL
  AND v.exited_at_ms IS NOT NULL
  AND v.user_id = ?
  AND v.place_id = ?
ORDER BY l.loan_id;
`, userID, placeID)
	if err != nil {
		return nil, fmt.Errorf("ForgottenLoans query: %w", err)
	}
	defer rows.Close()

	var out []types.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("ForgottenLoans scan: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ForgottenLoans rows: %w", err)
	}
	return out, nil
}

func (s *LoanStore) SetReturnVisit(ctx context.Context, loanID, visitID int64) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE loans SET return_visit_id = ? WHERE loan_id = ?;
`, visitID, loanID)
		if err != nil {
			return fmt.Errorf("SetReturnVisit update: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("SetReturnVisit loan %d: %w", loanID, store.ErrNotFound)
		}
		return nil
	})
}

func (s *LoanStore) HasOutstandingLoan(ctx context.Context, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM loans l
JOIN visits v ON v.visit_id = l.visit_id
WHERE l.handed_out_at_ms IS NOT NULL
  AND l.returned_at_ms IS NULL
  AND v.user_id = ?
  AND v.exited_at_ms IS NULL;
`, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("HasOutstandingLoan query: %w", err)
	}
	return n > 0, nil
}

// HandOut records a resource leaving with the visitor. Loans are owned by
// the equipment desk; the tracker only reads them.
func (s *LoanStore) HandOut(ctx context.Context, visitID int64, resource string, t time.Time) (types.Loan, error) {
	ms := toMs(t)
	l := types.Loan{VisitID: visitID, Resource: resource}
	handed := fromMs(ms)
	l.HandedOutAt = &handed

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO loans(visit_id, resource, handed_out_at_ms)
VALUES (?, ?, ?);
`, visitID, resource, ms)
		if err != nil {
			return fmt.Errorf("HandOut insert: %w", err)
		}
		l.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("HandOut last id: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.Loan{}, err
	}
	return l, nil
}

func (s *LoanStore) MarkReturned(ctx context.Context, loanID int64, t time.Time) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE loans SET returned_at_ms = ? WHERE loan_id = ? AND returned_at_ms IS NULL;
`, toMs(t), loanID)
		if err != nil {
			return fmt.Errorf("MarkReturned update: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("MarkReturned loan %d: %w", loanID, store.ErrNotFound)
		}
		return nil
	})
}

// Loan loads a single loan by id.
func (s *LoanStore) Loan(ctx context.Context, loanID int64) (*types.Loan, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+loanColumns+` FROM loans l WHERE l.loan_id = ?;
`, loanID)
	if err != nil {
		return nil, fmt.Errorf("Loan query: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	l, err := scanLoan(rows)
	if err != nil {
		return nil, fmt.Errorf("Loan scan: %w", err)
	}
	return &l, nil
}
