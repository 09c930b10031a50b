package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newRoleContext(id *Identity) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id != nil {
		req = req.WithContext(WithIdentity(req.Context(), *id))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequireRole_Allowed(t *testing.T) {
	c, rec := newRoleContext(&Identity{SubjectID: "3", Role: RoleSecretary})

	err := RequireRole(RoleDoctor, RoleSecretary)(okHandler)(c)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c, _ := newRoleContext(&Identity{SubjectID: "5", Role: RolePatient})

	err := RequireRole(RoleDoctor, RoleSecretary)(okHandler)(c)
	if err == nil {
		t.Fatal("expected error for patient role")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", httpErr.Code)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	c, rec := newRoleContext(&Identity{SubjectID: "1", Role: RoleAdmin})

	if err := RequireRole(RolePatient)(okHandler)(c); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_NoIdentity(t *testing.T) {
	c, _ := newRoleContext(nil)

	err := RequireRole(RoleAdmin)(okHandler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestHasRole(t *testing.T) {
	doc := Identity{SubjectID: "2", Role: RoleDoctor}
	if !HasRole(doc, RoleDoctor) {
		t.Error("doctor should have doctor role")
	}
	if HasRole(doc, RoleSecretary, RolePatient) {
		t.Error("doctor should not satisfy secretary or patient")
	}
	if HasRole(doc) {
		t.Error("no roles listed should deny non-admins")
	}
}
