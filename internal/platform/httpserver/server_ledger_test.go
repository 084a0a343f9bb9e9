package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	ledgerhttp "civitas/contexts/treasury-finance/play-ledger-service/transport/http"
)

func TestPostLedgerEntryUnknownProposal(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/ledger/v1/proposals/prop-missing/entries", nil)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestTreasuryReturnsSeededBalance(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/ledger/v1/treasury", nil)

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp ledgerhttp.TreasuryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Balance != 100000 {
		t.Fatalf("expected seeded balance 100000, got %v", resp.Balance)
	}
	if !resp.Reconciles {
		t.Fatalf("expected treasury to reconcile, got %+v", resp)
	}
}

func TestListLedgerEntriesRejectsBadLimit(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/ledger/v1/entries?limit=abc", nil)

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}
