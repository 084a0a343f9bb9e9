package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	digesthttp "civitas/contexts/member-experience/digest-service/transport/http"
)

func TestEnqueueDigestAccepted(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/digest/v1/users/user-1/digests/generate", nil)

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp digesthttp.EnqueueDigestResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Enqueued || resp.UserID != "user-1" || resp.EventID == "" {
		t.Fatalf("unexpected enqueue response: %+v", resp)
	}
}

func TestListDigestsRejectsBadLimit(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/digest/v1/users/user-1/digests?limit=abc", nil)

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestListDigestsEmptyForNewUser(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/digest/v1/users/user-1/digests", nil)

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp digesthttp.DigestsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 0 {
		t.Fatalf("expected no digests, got %d", len(resp.Items))
	}
}
