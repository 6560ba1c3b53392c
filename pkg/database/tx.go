package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrRetryable marks an error raised inside a transaction body that should
// cause the whole transaction to be re-run.
var ErrRetryable = errors.New("retryable transaction failure")

// TxOptions tunes RunInTx retry behaviour.
type TxOptions struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
	Isolation  sql.IsolationLevel
	// OnRetry is invoked before each retry attempt.
	OnRetry func(attempt int, err error)
}

// RunInTx executes fn inside a transaction and commits when fn returns nil.
// Transient failures (serialization, deadlock, dropped connections) re-run the
// whole transaction up to MaxRetries times; every other error is returned as is.
func RunInTx(ctx context.Context, db *sqlx.DB, opts TxOptions, fn func(tx *sqlx.Tx) error) error {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 50 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if opts.OnRetry != nil {
				opts.OnRetry(attempt, lastErr)
			}
			delay := opts.RetryDelay * time.Duration(1<<uint(attempt-1))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("transaction aborted: %w", ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = runOnce(ctx, db, opts, fn)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func runOnce(ctx context.Context, db *sqlx.DB, opts TxOptions, fn func(tx *sqlx.Tx) error) (err error) {
	if opts.Timeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: opts.Isolation})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// IsTransient reports whether err is a storage fault worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRetryable) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		// class 08: connection exceptions
		return strings.HasPrefix(string(pqErr.Code), "08")
	}
	return false
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
