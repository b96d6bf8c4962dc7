package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/vietddude/docloader/internal/core/domain"
	"github.com/vietddude/docloader/internal/infra/storage"
	"github.com/vietddude/docloader/internal/ingestion/resilience"
)

func TestStatusForSQLState(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"23505", 409},
		{"53300", 429},
		{"53400", 429},
		{"57014", 408},
		{"40001", 449},
		{"40P01", 449},
		{"08006", 503},
		{"08001", 503},
		{"57P01", 503},
		{"57P03", 503},
		{"22001", 400},
		{"23502", 400},
		{"23503", 400},
		{"54000", 413},
		{"42501", 403},
		{"28P01", 401},
		{"XX000", 0},
	}

	for _, tt := range tests {
		if got := statusForSQLState(tt.code); got != tt.want {
			t.Errorf("statusForSQLState(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestMapError_Classification(t *testing.T) {
	classifier := resilience.NewClassifier()

	tests := []struct {
		name      string
		err       error
		wantCode  string
		retryable bool
	}{
		{"pgx unique violation", &pgconn.PgError{Code: "23505", Message: "duplicate key"}, domain.CodeConflict, false},
		{"pgx too many connections", &pgconn.PgError{Code: "53300"}, domain.CodeTooManyRequests, true},
		{"pq serialization failure", &pq.Error{Code: "40001"}, domain.CodeRetryWith, true},
		{"pq admin shutdown", &pq.Error{Code: "57P01"}, domain.CodeServiceUnavailable, true},
		{"wrapped statement timeout", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "57014"}), domain.CodeRequestTimeout, true},
		{"unmapped state uses sub-status", &pgconn.PgError{Code: "XX000"}, "XX000", false},
		{"bad connection", driver.ErrBadConn, domain.CodeServiceUnavailable, true},
		{"deadline", context.DeadlineExceeded, domain.CodeRequestTimeout, true},
		{"canceled", context.Canceled, domain.CodeCanceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := classifier.Classify(mapError(tt.err))
			if d.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, d.Code)
			}
			if d.Retryable != tt.retryable {
				t.Errorf("expected retryable=%v, got %v", tt.retryable, d.Retryable)
			}
		})
	}
}

func TestMapError_KeepsCause(t *testing.T) {
	cause := &pgconn.PgError{Code: "23505", Message: "duplicate key value"}
	err := mapError(cause)

	var storeErr *storage.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *storage.StoreError, got %T", err)
	}
	if storeErr.Message != "duplicate key value" {
		t.Errorf("unexpected message: %q", storeErr.Message)
	}
	if storeErr.Header(storage.HeaderSubStatus) != "23505" {
		t.Errorf("expected SQLSTATE in sub-status header, got %q", storeErr.Header(storage.HeaderSubStatus))
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Error("expected driver error to remain reachable")
	}

	if mapError(nil) != nil {
		t.Error("expected nil for nil")
	}
}
