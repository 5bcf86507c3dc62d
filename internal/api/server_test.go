package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fintank/internal/config"
	"fintank/internal/ledger"
	"fintank/internal/ocean"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.APIConfig{
		ServiceToken: "svc-token",
		Policy:       ocean.ProductionPolicy(),
	}
	return New(cfg, nil, nil, nil, nil)
}

func TestHealthz(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("body=%q", rec.Body.String())
	}
}

func TestAuthRequiredOnFishRoutes(t *testing.T) {
	s := testServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ocean", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d want 401", rec.Code)
	}
}

func TestServiceTokenGate(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/integrations/inbound-transfer", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status=%d want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/integrations/inbound-transfer", strings.NewReader("not-json"))
	req.Header.Set("Authorization", "Bearer svc-token")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body: status=%d want 400", rec.Code)
	}
}

func TestAdminGateRejectsWithoutSecret(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/ocean/cycle", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d want 403", rec.Code)
	}
}

func TestWriteDomainErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ocean.ErrVersionConflict, http.StatusConflict},
		{ocean.ErrNameTaken, http.StatusConflict},
		{ocean.ErrStormActive, http.StatusConflict},
		{ocean.ErrBelowMinimum, http.StatusBadRequest},
		{ocean.ErrInsufficientFund, http.StatusBadRequest},
		{ocean.ErrNotOwner, http.StatusForbidden},
		{ocean.ErrFishNotFound, http.StatusNotFound},
		{ledger.ErrInsufficientFunds, http.StatusBadRequest},
		{ledger.ErrInvalidTransition, http.StatusConflict},
		{ocean.ErrPoolEmpty, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		writeDomainError(rec, tc.err)
		if rec.Code != tc.want {
			t.Fatalf("writeDomainError(%v)=%d want %d", tc.err, rec.Code, tc.want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header, want string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"", ""},
		{"Bearer", ""},
	}
	for _, tc := range tests {
		if got := bearerToken(tc.header); got != tc.want {
			t.Fatalf("bearerToken(%q)=%q want %q", tc.header, got, tc.want)
		}
	}
}
