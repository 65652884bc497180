package validate

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type registration struct {
	FirstName string `json:"firstName" validate:"notblank"`
	Email     string `json:"email" validate:"required,email"`
	Age       int    `json:"age" validate:"min=0,max=130"`
}

func TestValidator_FieldErrors(t *testing.T) {
	err := New().Validate(&registration{FirstName: "  ", Email: "nope", Age: 200})

	var fe FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("expected FieldErrors, got %T", err)
	}
	if len(fe) != 3 {
		t.Fatalf("expected 3 errors, got %d: %v", len(fe), fe)
	}
	want := map[string]string{"firstName": "notblank", "email": "email", "age": "max"}
	for _, e := range fe {
		if want[e.Field] != e.Rule {
			t.Errorf("field %s: unexpected rule %q", e.Field, e.Rule)
		}
	}
}

func TestValidator_Valid(t *testing.T) {
	if err := New().Validate(&registration{FirstName: "Ana", Email: "ana@clinic.test", Age: 30}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBind_RendersBody(t *testing.T) {
	e := echo.New()
	e.Validator = New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var dst registration
	err := Bind(c, &dst)
	if err == nil {
		t.Fatal("expected error")
	}
	e.HTTPErrorHandler(err, c)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body Body
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Message != "validation failed" || len(body.Errors) != 2 {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestBind_MalformedJSON(t *testing.T) {
	e := echo.New()
	e.Validator = New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	var dst registration
	err := Bind(c, &dst)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
}
