// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// IsSQLiteBusyError checks if the error is a SQLITE_BUSY error.
// This occurs when the database is locked by another connection.
func IsSQLiteBusyError(err error) bool {
	return hasPrimaryCode(err, sqlite3.SQLITE_BUSY) || containsMessage(err, "SQLITE_BUSY")
}

// IsSQLiteLockedError checks if the error is a "database is locked" error.
func IsSQLiteLockedError(err error) bool {
	return hasPrimaryCode(err, sqlite3.SQLITE_LOCKED) || containsMessage(err, "database is locked")
}

// IsSQLiteConflictError reports SQLite concurrency errors that warrant a retry.
func IsSQLiteConflictError(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}

func hasPrimaryCode(err error, code int) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	// Extended result codes keep the primary code in the low byte.
	return sqliteErr.Code()&0xff == code
}

func containsMessage(err error, needle string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), needle)
}

// RetryPolicy bounds retries of SQLite conflict errors.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultRetryPolicy retries three times starting at 100ms.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, BaseDelay: 100 * time.Millisecond}

// RetryOnConflict runs fn, retrying with exponential backoff while it fails with a
// SQLite conflict error. Other errors are returned immediately.
func RetryOnConflict(ctx context.Context, policy RetryPolicy, fn func() error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !IsSQLiteConflictError(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		timer := time.NewTimer(Backoff(policy.BaseDelay, i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}

// Backoff returns base*2^attempt with up to 25% jitter either way, capped at 5s.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt > 16 {
		attempt = 16
	}
	d := base * time.Duration(1<<uint(attempt))
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(d)/2+1)) - d/4
	return d + jitter
}
