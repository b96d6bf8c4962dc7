package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/vietddude/docloader/internal/infra/storage"
)

const uniqueViolation = "23505"

// sqlStateStatus maps exact SQLSTATE codes to store status codes.
var sqlStateStatus = map[string]int{
	"23505": 409, // unique_violation
	"23502": 400, // not_null_violation
	"53300": 429, // too_many_connections
	"53400": 429, // configuration_limit_exceeded
	"57014": 408, // query_canceled (statement_timeout)
	"40001": 449, // serialization_failure
	"40P01": 449, // deadlock_detected
	"55P03": 449, // lock_not_available
	"54000": 413, // program_limit_exceeded
	"42501": 403, // insufficient_privilege
	"28000": 401, // invalid_authorization_specification
	"28P01": 401, // invalid_password
	"42P01": 404, // undefined_table
}

// statusForSQLState returns the store status for a SQLSTATE, or 0 if unmapped.
func statusForSQLState(code string) int {
	if status, ok := sqlStateStatus[code]; ok {
		return status
	}
	switch {
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "57P0"):
		return 503 // connection exception, admin shutdown, cannot connect now
	case strings.HasPrefix(code, "22"), strings.HasPrefix(code, "23"):
		return 400 // data exception, other integrity violations
	}
	return 0
}

// mapError converts driver errors into *storage.StoreError. Unmapped SQLSTATEs
// are carried in the sub-status header.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if code, msg, ok := sqlState(err); ok {
		return &storage.StoreError{
			StatusCode: statusForSQLState(code),
			Headers:    map[string]string{storage.HeaderSubStatus: code},
			Message:    msg,
			Err:        err,
		}
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &storage.StoreError{StatusCode: 408, Message: "statement timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, driver.ErrBadConn), errors.As(err, &netErr):
		return &storage.StoreError{StatusCode: 503, Message: err.Error(), Err: err}
	}
	return err
}

func sqlState(err error) (code, msg string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.Message, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Message, true
	}
	return "", "", false
}
