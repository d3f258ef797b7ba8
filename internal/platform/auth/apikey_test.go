package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func runAPIKey(t *testing.T, keys []string, target string, header string, handler echo.HandlerFunc) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, nil)
	if header != "" {
		req.Header.Set(APIKeyHeader, header)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	return APIKeyMiddleware(keys)(handler)(c)
}

func TestAPIKeyMiddleware_Header(t *testing.T) {
	var principal string
	handler := func(c echo.Context) error {
		principal = PrincipalFromContext(c.Request().Context())
		return nil
	}

	if err := runAPIKey(t, []string{"alpha", "beta"}, "/api/v1/hl7/process", "beta", handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(principal, "key:") || principal != "key:"+newAPIKey("beta").id {
		t.Errorf("unexpected principal %q", principal)
	}
}

func TestAPIKeyMiddleware_QueryParam(t *testing.T) {
	called := false
	handler := func(c echo.Context) error {
		called = true
		return nil
	}

	if err := runAPIKey(t, []string{"alpha"}, "/api/v1/hl7/process?code=alpha", "", handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler was not called")
	}
}

func TestAPIKeyMiddleware_HeaderWinsOverQuery(t *testing.T) {
	err := runAPIKey(t, []string{"alpha"}, "/api/v1/hl7/process?code=alpha", "wrong", okHandler)
	expectUnauthorized(t, err)
}

func TestAPIKeyMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
	}{
		{"missing", "/api/v1/hl7/process", ""},
		{"wrong header", "/api/v1/hl7/process", "gamma"},
		{"wrong query", "/api/v1/hl7/process?code=gamma", ""},
		{"prefix of key", "/api/v1/hl7/process", "alph"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runAPIKey(t, []string{"alpha"}, tt.target, tt.header, okHandler)
			expectUnauthorized(t, err)
		})
	}
}

func TestAPIKeyMiddleware_IgnoresBlankKeys(t *testing.T) {
	err := runAPIKey(t, []string{"", "  "}, "/api/v1/hl7/process", " ", okHandler)
	expectUnauthorized(t, err)
}

func TestAPIKeyMiddleware_SkipsPublicPath(t *testing.T) {
	e := echo.New()
	e.Use(APIKeyMiddleware([]string{"alpha"}))
	e.GET("/health", okHandler)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for public path, got %d", rec.Code)
	}
}

func TestMatchAPIKey(t *testing.T) {
	known := []apiKey{newAPIKey("one"), newAPIKey("two")}

	if k, ok := matchAPIKey(known, "two"); !ok || k.id != known[1].id {
		t.Errorf("expected match on second key, got %+v ok=%v", k, ok)
	}
	if _, ok := matchAPIKey(known, "three"); ok {
		t.Error("expected no match")
	}
	if _, ok := matchAPIKey(nil, "one"); ok {
		t.Error("expected no match with no keys")
	}
}

func TestIsPublicPath(t *testing.T) {
	if !IsPublicPath("/health") {
		t.Error("expected /health to be public")
	}
	if IsPublicPath("/api/v1/hl7/process") {
		t.Error("expected API path to require auth")
	}
}
