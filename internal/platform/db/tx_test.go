package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Errorf("expected nil tx, got %v", tx)
	}
}

func TestIsExclusionViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"exclusion", &pgconn.PgError{Code: "23P01"}, true},
		{"wrapped exclusion", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23P01"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"nil", nil, false},
		{"plain", fmt.Errorf("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExclusionViolation(tt.err); got != tt.want {
				t.Errorf("IsExclusionViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Error("expected wrapped ErrNoRows to match")
	}
	if IsNoRows(fmt.Errorf("other")) {
		t.Error("unexpected match")
	}
}
