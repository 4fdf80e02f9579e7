package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	core "github.com/stanisci/ebics-sandbox/internal/app/core/service"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/ledger"
	"github.com/stanisci/ebics-sandbox/internal/app/storage"
)

var _ storage.LedgerStore = (*Store)(nil)

// SerializableRetryPolicy governs the retry loop every booking/statement-close
// transaction runs under: EBICS requests must not silently lose a payment
// when two concurrent requests touch the same account.
var SerializableRetryPolicy = core.RetryPolicy{
	Attempts:       10,
	InitialBackoff: 5 * time.Millisecond,
	MaxBackoff:     200 * time.Millisecond,
	Multiplier:     2,
}

// isSerializationFailure reports whether err is a Postgres 40001 error
// (could not serialize access due to concurrent update).
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001"
	}
	return false
}

func (s *Store) withSerializableTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var stop error
	err := core.Retry(ctx, SerializableRetryPolicy, func() error {
		tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return err
		}
		if err := fn(tx.Tx); err != nil {
			tx.Rollback()
			if isSerializationFailure(err) {
				return err
			}
			stop = &nonRetryableError{err: err}
			return nil
		}
		if err := tx.Commit(); err != nil {
			if isSerializationFailure(err) {
				return err
			}
			stop = &nonRetryableError{err: err}
			return nil
		}
		return nil
	})
	if stop != nil {
		return stop
	}
	return err
}

// nonRetryableError carries a failure other than a serialization conflict.
// core.Retry has no concept of "don't retry this", so withSerializableTx
// records it, ends the attempt loop by returning nil to Retry, and returns
// it afterwards; callers unwrap it via errors.As.
type nonRetryableError struct{ err error }

func (e *nonRetryableError) Error() string { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }

func (s *Store) CreateTransaction(ctx context.Context, t ledger.Transaction) (ledger.Transaction, bool, error) {
	prepareTransaction(&t)

	var created bool
	err := s.withSerializableTx(ctx, func(tx *sql.Tx) error {
		existing, err := findTransactionByPmtInfIDTx(ctx, tx, t.AccountID, t.PmtInfID)
		if err == nil {
			t = existing
			created = false
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err := insertTransactionTx(ctx, tx, t); err != nil {
			return err
		}
		created = true
		return nil
	})
	var nre *nonRetryableError
	if errors.As(err, &nre) {
		return ledger.Transaction{}, false, nre.err
	}
	if err != nil {
		return ledger.Transaction{}, false, err
	}
	return t, created, nil
}

// CreateCreditTransferPair books a credit transfer's debit and credit legs in
// a single serializable transaction: the idempotency check and both inserts
// either all commit together or none do, so a crash mid-booking can never
// leave one leg posted without the other.
func (s *Store) CreateCreditTransferPair(ctx context.Context, debit ledger.Transaction, credit *ledger.Transaction) (ledger.Transaction, *ledger.Transaction, bool, error) {
	prepareTransaction(&debit)
	if credit != nil {
		prepareTransaction(credit)
	}

	var created bool
	err := s.withSerializableTx(ctx, func(tx *sql.Tx) error {
		existing, err := findTransactionByPmtInfIDTx(ctx, tx, debit.AccountID, debit.PmtInfID)
		if err == nil {
			debit = existing
			created = false
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err := insertTransactionTx(ctx, tx, debit); err != nil {
			return err
		}
		if credit != nil {
			if err := insertTransactionTx(ctx, tx, *credit); err != nil {
				return err
			}
		}
		created = true
		return nil
	})
	var nre *nonRetryableError
	if errors.As(err, &nre) {
		return ledger.Transaction{}, nil, false, nre.err
	}
	if err != nil {
		return ledger.Transaction{}, nil, false, err
	}
	return debit, credit, created, nil
}

// prepareTransaction fills in the fields CreateTransaction/
// CreateCreditTransferPair assign before insertion, so every booking path
// derives them the same way.
func prepareTransaction(t *ledger.Transaction) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.BookingDate.IsZero() {
		t.BookingDate = time.Now().UTC()
	}
	t.CreatedAt = time.Now().UTC()
}

func insertTransactionTx(ctx context.Context, tx *sql.Tx, t ledger.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO bank_account_transactions (id, account_id, direction, amount, currency,
			subject, pmt_inf_id, msg_id, end_to_end_id, account_servicer_reference,
			counterpart_iban, counterpart_name, counterpart_bic, statement_id, booking_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NULL,$14,$15)
	`, t.ID, t.AccountID, t.Direction, t.Amount, t.Currency, t.Subject, toNullString(t.PmtInfID),
		toNullString(t.MsgID), toNullString(t.EndToEndID), t.AccountServicerReference,
		toNullString(t.CounterpartIBAN), toNullString(t.CounterpartName),
		toNullString(t.CounterpartBIC), t.BookingDate, t.CreatedAt)
	return err
}

func findTransactionByPmtInfIDTx(ctx context.Context, tx *sql.Tx, accountID, pmtInfID string) (ledger.Transaction, error) {
	if pmtInfID == "" {
		return ledger.Transaction{}, sql.ErrNoRows
	}
	row := tx.QueryRowContext(ctx, transactionSelect+" WHERE account_id=$1 AND pmt_inf_id=$2", accountID, pmtInfID)
	return scanTransaction(row)
}

func (s *Store) FindTransactionByPmtInfID(ctx context.Context, accountID, pmtInfID string) (ledger.Transaction, error) {
	row := s.db.QueryRowContext(ctx, transactionSelect+" WHERE account_id=$1 AND pmt_inf_id=$2", accountID, pmtInfID)
	return scanTransaction(row)
}

func (s *Store) ListFreshTransactions(ctx context.Context, accountID string) ([]ledger.Transaction, error) {
	return s.queryTransactions(ctx,
		transactionSelect+" WHERE account_id=$1 AND statement_id IS NULL ORDER BY booking_date", accountID)
}

func (s *Store) ListTransactions(ctx context.Context, accountID string, limit, offset int) ([]ledger.Transaction, error) {
	if limit <= 0 {
		limit = core.DefaultListLimit
	}
	limit = core.ClampLimit(limit, core.DefaultListLimit, core.MaxListLimit)
	return s.queryTransactions(ctx,
		transactionSelect+" WHERE account_id=$1 ORDER BY booking_date DESC LIMIT $2 OFFSET $3",
		accountID, limit, offset)
}

const transactionSelect = `
	SELECT id, account_id, direction, amount, currency, subject, pmt_inf_id, msg_id, end_to_end_id,
		account_servicer_reference, counterpart_iban, counterpart_name, counterpart_bic,
		statement_id, booking_date, created_at
	FROM bank_account_transactions`

func (s *Store) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row rowScanner) (ledger.Transaction, error) {
	var (
		t                                                               ledger.Transaction
		pmtInfID, msgID, endToEnd, cIBAN, cName, cBIC, statementID sql.NullString
	)
	if err := row.Scan(&t.ID, &t.AccountID, &t.Direction, &t.Amount, &t.Currency, &t.Subject,
		&pmtInfID, &msgID, &endToEnd, &t.AccountServicerReference, &cIBAN, &cName, &cBIC,
		&statementID, &t.BookingDate, &t.CreatedAt); err != nil {
		return ledger.Transaction{}, err
	}
	t.PmtInfID = fromNullString(pmtInfID)
	t.MsgID = fromNullString(msgID)
	t.EndToEndID = fromNullString(endToEnd)
	t.CounterpartIBAN = fromNullString(cIBAN)
	t.CounterpartName = fromNullString(cName)
	t.CounterpartBIC = fromNullString(cBIC)
	t.StatementID = fromNullString(statementID)
	return t, nil
}

func (s *Store) CloseStatement(ctx context.Context, accountID string, stmt ledger.Statement) (ledger.Statement, error) {
	if stmt.ID == "" {
		stmt.ID = uuid.NewString()
	}
	if stmt.CreationTimestamp.IsZero() {
		stmt.CreationTimestamp = time.Now().UTC()
	}

	err := s.withSerializableTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bank_account_statements (id, account_id, statement_number, opening_balance,
				closing_balance, currency, creation_timestamp, from_date, to_date, document)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, stmt.ID, stmt.AccountID, stmt.StatementNumber, stmt.OpeningBalance, stmt.ClosingBalance,
			stmt.Currency, stmt.CreationTimestamp, stmt.FromDate, stmt.ToDate, stmt.Document)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE bank_account_transactions SET statement_id=$1
			WHERE account_id=$2 AND statement_id IS NULL
		`, stmt.ID, accountID)
		return err
	})
	var nre *nonRetryableError
	if errors.As(err, &nre) {
		return ledger.Statement{}, nre.err
	}
	if err != nil {
		return ledger.Statement{}, err
	}
	return stmt, nil
}

func (s *Store) ListStatements(ctx context.Context, accountID string) ([]ledger.Statement, error) {
	rows, err := s.db.QueryContext(ctx, statementSelect+" WHERE account_id=$1 ORDER BY statement_number", accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) GetStatement(ctx context.Context, id string) (ledger.Statement, error) {
	row := s.db.QueryRowContext(ctx, statementSelect+" WHERE id=$1", id)
	return scanStatement(row)
}

func (s *Store) LatestStatement(ctx context.Context, accountID string) (ledger.Statement, bool, error) {
	row := s.db.QueryRowContext(ctx,
		statementSelect+" WHERE account_id=$1 ORDER BY statement_number DESC LIMIT 1", accountID)
	st, err := scanStatement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Statement{}, false, nil
	}
	if err != nil {
		return ledger.Statement{}, false, err
	}
	return st, true, nil
}

const statementSelect = `
	SELECT id, account_id, statement_number, opening_balance, closing_balance, currency,
		creation_timestamp, from_date, to_date, document
	FROM bank_account_statements`

func scanStatement(row rowScanner) (ledger.Statement, error) {
	var st ledger.Statement
	if err := row.Scan(&st.ID, &st.AccountID, &st.StatementNumber, &st.OpeningBalance, &st.ClosingBalance,
		&st.Currency, &st.CreationTimestamp, &st.FromDate, &st.ToDate, &st.Document); err != nil {
		return ledger.Statement{}, err
	}
	return st, nil
}
