package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_Wrapped(t *testing.T) {
	base := Conflict("slot taken")
	wrapped := fmt.Errorf("create: %w", base)

	if got := KindOf(wrapped); got != KindConflict {
		t.Errorf("KindOf = %q, want %q", got, KindConflict)
	}
	if !Is(wrapped, KindConflict) {
		t.Error("expected Is(wrapped, conflict) to be true")
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Errorf("KindOf = %q, want %q", got, KindInternal)
	}
	if Is(nil, KindInternal) {
		t.Error("nil error must not match any kind")
	}
}

func TestUnreachable_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unreachable("doctor", "could not verify doctor", cause)

	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if err.Entity != "doctor" {
		t.Errorf("Entity = %q, want doctor", err.Entity)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindInvalidTransition, http.StatusConflict},
		{KindUnreachable, http.StatusBadGateway},
		{KindCanceled, http.StatusGatewayTimeout},
		{KindStorage, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := HTTPStatus(tt.kind); got != tt.want {
				t.Errorf("HTTPStatus(%s) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
}

func TestExposed(t *testing.T) {
	if Exposed(KindStorage) || Exposed(KindInternal) {
		t.Error("storage and internal errors must not be exposed")
	}
	if !Exposed(KindConflict) || !Exposed(KindCanceled) {
		t.Error("conflict and canceled errors should be exposed")
	}
}
