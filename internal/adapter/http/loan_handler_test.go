package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"loan-registrar/internal/clock"
	"loan-registrar/internal/domain/kv"
	"loan-registrar/internal/infrastructure/logging"
	"loan-registrar/internal/testutil/storemock"
	uc "loan-registrar/internal/usecase/loan"

	"github.com/labstack/echo/v4"
)

// -------- helpers --------

func newEchoWithValidator() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func mustJSON(v any) *bytes.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func seeded() *storemock.Store {
	return storemock.New().Seed(kv.Key{PK: "CUSTOMER", SK: "C1"}, kv.Item{"PK": "CUSTOMER", "SK": "C1", "name": "Ana"})
}

func newServer(s kv.Store, p uc.WritePolicy) *echo.Echo {
	e := newEchoWithValidator()
	usecase := uc.NewUsecase(s, clock.NewFixed(time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)), p,
		uc.WithLogger(logging.Discard()))
	RegisterRoutes(e, NewHandler("loan-registrar"), NewLoanHandler(usecase))
	return e
}

func do(e *echo.Echo, method, path string, body any) *httptest.ResponseRecorder {
	var req *stdhttp.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case string:
		req = httptest.NewRequest(method, path, strings.NewReader(b))
	default:
		req = httptest.NewRequest(method, path, mustJSON(b))
	}
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func validBody() map[string]any {
	return map[string]any{
		"customerId": "C1",
		"dueDay":     15,
		"amount":     1000,
		"rate":       5,
		"notes":      "first",
	}
}

// -------- tests --------

func TestCreateLoan_Success(t *testing.T) {
	s := seeded()
	e := newServer(s, uc.DualItemWithIndex{})

	rec := do(e, stdhttp.MethodPost, "/v1/loans", validBody())
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	var got CreateLoanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if got.Message != "Loan record saved successfully" || got.Status != "ACTIVE" || got.LoanID == "" {
		t.Fatalf("unexpected response: %+v", got)
	}
	if _, err := s.Get(context.Background(), kv.Key{PK: "LOAN#15", SK: "CUSTOMER#C1#LOAN#" + got.LoanID}); err != nil {
		t.Fatalf("loan not stored: %v", err)
	}
}

func TestCreateLoan_DecimalStringsAccepted(t *testing.T) {
	e := newServer(seeded(), uc.SingleItem{})
	body := validBody()
	body["amount"] = "1000.50"
	body["rate"] = "0.125"
	body["interest"] = "12.5"

	rec := do(e, stdhttp.MethodPost, "/v1/loans", body)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreateLoan_BindError(t *testing.T) {
	e := newServer(seeded(), uc.SingleItem{})

	rec := do(e, stdhttp.MethodPost, "/v1/loans", `{"customerId":`) // broken JSON
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var er ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &er)
	if er.Message != "invalid body" {
		t.Fatalf("message = %q, want %q", er.Message, "invalid body")
	}
}

func TestCreateLoan_ValidationError(t *testing.T) {
	s := seeded()
	e := newServer(s, uc.SingleItem{})

	rec := do(e, stdhttp.MethodPost, "/v1/loans", map[string]any{"customerId": "  ", "dueDay": 2.5})
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var er ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if er.Message != "validation failed" {
		t.Fatalf("message = %q, want %q", er.Message, "validation failed")
	}
	for field, msg := range map[string]string{
		"customerId": "is required",
		"dueDay":     "integer value",
		"amount":     "is required",
		"rate":       "is required",
	} {
		if !containsFieldMsg(er.Details, field, msg) {
			t.Fatalf("missing %s detail %q: %+v", field, msg, er.Details)
		}
	}
	if s.Reads()+s.Writes() != 0 {
		t.Fatal("store touched by an invalid request")
	}
}

func TestCreateLoan_DueDayBounds(t *testing.T) {
	for day, want := range map[float64]int{0: 400, 29: 400, -1: 400, 1: 200, 28: 200} {
		e := newServer(seeded(), uc.DualItemWithIndex{})
		body := validBody()
		body["dueDay"] = day
		if rec := do(e, stdhttp.MethodPost, "/v1/loans", body); rec.Code != want {
			t.Fatalf("dueDay %v: status = %d, want %d", day, rec.Code, want)
		}
	}
}

func TestCreateLoan_CustomerNotFound(t *testing.T) {
	s := seeded()
	e := newServer(s, uc.DualItemWithIndex{})
	body := validBody()
	body["customerId"] = "C404"

	rec := do(e, stdhttp.MethodPost, "/v1/loans", body)
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var er ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &er)
	if !strings.Contains(er.Message, "customer not found") {
		t.Fatalf("message = %q", er.Message)
	}
	if s.Writes() != 0 {
		t.Fatalf("writes = %d, want 0", s.Writes())
	}
}

func TestCreateLoan_Conflict(t *testing.T) {
	s := seeded().WithTransact(func(context.Context, []kv.Op) error {
		return kv.ErrConditionFailed
	})
	e := newServer(s, uc.DualItemWithIndex{})

	rec := do(e, stdhttp.MethodPost, "/v1/loans", validBody())
	if rec.Code != stdhttp.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateLoan_TransportError(t *testing.T) {
	s := seeded().WithTransact(func(context.Context, []kv.Op) error {
		return errors.New("i/o timeout")
	})
	e := newServer(s, uc.DualItemWithIndex{})

	rec := do(e, stdhttp.MethodPost, "/v1/loans", validBody())
	if rec.Code != stdhttp.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var er ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &er)
	if er.Message != "Failed to create loan" || !strings.Contains(er.Error, "i/o timeout") {
		t.Fatalf("unexpected body: %+v", er)
	}
}

func TestListCustomerLoans(t *testing.T) {
	e := newServer(seeded(), uc.DualItemWithIndex{})
	created := do(e, stdhttp.MethodPost, "/v1/loans", validBody())
	var cr CreateLoanResponse
	_ = json.Unmarshal(created.Body.Bytes(), &cr)

	rec := do(e, stdhttp.MethodGet, "/v1/customers/C1/loans", nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		CustomerID string `json:"customerId"`
		Loans      []struct {
			LoanID string `json:"loanId"`
			DueDay int    `json:"dueDay"`
		} `json:"loans"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if body.CustomerID != "C1" || len(body.Loans) != 1 || body.Loans[0].LoanID != cr.LoanID || body.Loans[0].DueDay != 15 {
		t.Fatalf("unexpected index: %+v", body)
	}

	if rec := do(e, stdhttp.MethodGet, "/v1/customers/C404/loans", nil); rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("unknown customer: status = %d, want 404", rec.Code)
	}
}

func TestListLoansDueOn(t *testing.T) {
	e := newServer(seeded(), uc.DualItemWithIndex{})
	do(e, stdhttp.MethodPost, "/v1/loans", validBody())

	rec := do(e, stdhttp.MethodGet, "/v1/loans/due/15", nil)
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		DueDay int          `json:"dueDay"`
		Loans  []uc.LoanDTO `json:"loans"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if body.DueDay != 15 || len(body.Loans) != 1 || body.Loans[0].CustomerID != "C1" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Loans[0].CreatedAt != "2026-10-17T00:00:00.000Z" {
		t.Fatalf("createdAt = %q", body.Loans[0].CreatedAt)
	}

	for _, p := range []string{"/v1/loans/due/abc", "/v1/loans/due/29", "/v1/loans/due/1.5"} {
		if rec := do(e, stdhttp.MethodGet, p, nil); rec.Code != stdhttp.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", p, rec.Code)
		}
	}
}
