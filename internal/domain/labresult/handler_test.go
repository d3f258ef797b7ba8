package labresult

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hl7results/gateway/internal/platform/hl7v2"
)

func newTestHandler() *Handler {
	return NewHandler(newTestService(hl7v2.NewParser()))
}

func doRequest(t *testing.T, h echo.HandlerFunc, target, body string, header map[string]string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse JSON response: %v (%s)", err, rec.Body.String())
	}
	return out
}

// =========== Process Tests ===========

func TestHandler_ProcessMessage(t *testing.T) {
	rec, err := doRequest(t, newTestHandler().ProcessMessage, "/api/v1/hl7/process?source=LAB-1", sampleORU, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Errorf("expected success=true, got %v", body["success"])
	}
	if body["messageType"] != "ORU_R01" {
		t.Errorf("expected messageType ORU_R01, got %v", body["messageType"])
	}
	if body["patientId"] != "123456789" {
		t.Errorf("expected patientId 123456789, got %v", body["patientId"])
	}
	if body["observationCount"] != float64(1) {
		t.Errorf("expected observationCount 1, got %v", body["observationCount"])
	}
	if _, ok := body["processedAt"]; !ok {
		t.Error("expected processedAt")
	}
	if _, ok := body["warnings"]; ok {
		t.Error("expected warnings to be omitted when empty")
	}
}

func TestHandler_ProcessMessage_Warnings(t *testing.T) {
	raw := sampleORU + "\r\nOBX|2|NM|HGB"
	rec, err := doRequest(t, newTestHandler().ProcessMessage, "/api/v1/hl7/process", raw, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	warnings, ok := decodeBody(t, rec)["warnings"].([]interface{})
	if !ok || len(warnings) != 1 {
		t.Fatalf("expected one warning, got %v", warnings)
	}
	w := warnings[0].(map[string]interface{})
	if w["segment"] != "OBX" || w["line"] != float64(4) {
		t.Errorf("unexpected warning: %v", w)
	}
}

func TestHandler_ProcessMessage_EmptyBody(t *testing.T) {
	rec, err := doRequest(t, newTestHandler().ProcessMessage, "/api/v1/hl7/process", "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "request body cannot be empty" {
		t.Errorf("unexpected error message %v", got)
	}
}

func TestHandler_ProcessMessage_InvalidFormat(t *testing.T) {
	rec, err := doRequest(t, newTestHandler().ProcessMessage, "/api/v1/hl7/process", "Invalid HL7 message", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != false {
		t.Errorf("expected success=false, got %v", body["success"])
	}
	if body["code"] != string(ErrorKindInvalidFormat) {
		t.Errorf("expected code invalid_format, got %v", body["code"])
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "must start with MSH segment") {
		t.Errorf("unexpected error %q", msg)
	}
}

func TestHandler_ProcessMessage_InternalError(t *testing.T) {
	p := &mockParser{fn: func(context.Context, string) (*hl7v2.Message, error) {
		return nil, errors.New("boom")
	}}
	h := NewHandler(newTestService(p))

	rec, err := doRequest(t, h.ProcessMessage, "/api/v1/hl7/process", sampleORU, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != internalErrorMessage {
		t.Errorf("expected generic error, got %v", got)
	}
}

func TestHandler_ProcessMessage_BodyReadError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7/process", errReader{})
	rec := httptest.NewRecorder()

	if err := newTestHandler().ProcessMessage(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

type deadlineReader struct{}

func (deadlineReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("read tcp: %w", os.ErrDeadlineExceeded)
}

func TestHandler_ProcessMessage_BodyReadTimeout(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7/process", deadlineReader{})
	rec := httptest.NewRecorder()

	if err := newTestHandler().ProcessMessage(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusRequestTimeout {
		t.Errorf("expected 408, got %d", rec.Code)
	}
}

func TestHandler_ProcessMessage_DeadlineExceeded(t *testing.T) {
	e := echo.New()
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7/process", strings.NewReader(sampleORU)).WithContext(ctx)
	rec := httptest.NewRecorder()

	err := newTestHandler().ProcessMessage(e.NewContext(req, rec))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected nothing written, got %s", rec.Body.String())
	}
}

func TestHandler_ProcessMessage_Cancelled(t *testing.T) {
	e := echo.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7/process", strings.NewReader(sampleORU)).WithContext(ctx)

	err := newTestHandler().ProcessMessage(e.NewContext(req, httptest.NewRecorder()))
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 HTTPError, got %v", err)
	}
}

// =========== Source Resolution Tests ===========

func TestRequestSource(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{"query wins", "/?source=Q", "H", "Q"},
		{"header fallback", "/", "H", "H"},
		{"default", "/", "", SourceUnknown},
		{"blank query", "/?source=%20", "H", "H"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(SourceHeader, tt.header)
			}
			c := e.NewContext(req, httptest.NewRecorder())
			if got := requestSource(c); got != tt.want {
				t.Errorf("requestSource() = %q, want %q", got, tt.want)
			}
		})
	}
}

// =========== Parse Tests ===========

func TestHandler_ParseMessage(t *testing.T) {
	rec, err := doRequest(t, newTestHandler().ParseMessage, "/api/v1/hl7/parse", sampleORU, map[string]string{SourceHeader: "LAB-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	msg, ok := body["message"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected message object, got %v", body["message"])
	}
	if msg["messageType"] != "ORU_R01" {
		t.Errorf("expected messageType ORU_R01, got %v", msg["messageType"])
	}

	patient := msg["patient"].(map[string]interface{})
	if patient["lastName"] != "DOE" || patient["gender"] != "Male" {
		t.Errorf("unexpected patient: %v", patient)
	}
	if dob, _ := patient["dateOfBirth"].(string); !strings.HasPrefix(dob, "1985-03-15") {
		t.Errorf("unexpected dateOfBirth %q", dob)
	}

	obs := msg["observations"].([]interface{})
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	first := obs[0].(map[string]interface{})
	if first["observationId"] != "WBC" || first["status"] != "Normal" || first["units"] != "10*3/uL" {
		t.Errorf("unexpected observation: %v", first)
	}
}

func TestHandler_ParseMessage_Invalid(t *testing.T) {
	rec, err := doRequest(t, newTestHandler().ParseMessage, "/api/v1/hl7/parse", "OBX|1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	e := echo.New()
	newTestHandler().RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"POST /api/v1/hl7/process": false,
		"POST /api/v1/hl7/parse":   false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}

func TestHandler_ProcessMessage_ThroughRouter(t *testing.T) {
	e := echo.New()
	newTestHandler().RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hl7/process", strings.NewReader(sampleORU))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
