package httpserver

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	vetoengine "civitas/contexts/civic-governance/veto-window-engine"
	vetoports "civitas/contexts/civic-governance/veto-window-engine/ports"
	vetohttp "civitas/contexts/civic-governance/veto-window-engine/transport/http"
	sigverify "civitas/contexts/identity-access/signature-verifier"
	sigports "civitas/contexts/identity-access/signature-verifier/ports"
	digest "civitas/contexts/member-experience/digest-service"
	playledger "civitas/contexts/treasury-finance/play-ledger-service"
	"civitas/internal/platform/messaging"
)

func newTestServer() *Server {
	return newTestServerWithKeys().server
}

type testServerFixture struct {
	server *Server
	keys   *sigverify.Module
}

func newTestServerWithKeys() testServerFixture {
	bus, _ := messaging.NewBus(nil, slog.Default())
	keys := sigverify.NewInMemoryModule(slog.Default())
	server := New(
		vetoengine.NewInMemoryModule(keys.Verifier, slog.Default()),
		playledger.NewInMemoryModule(100000, slog.Default()),
		digest.NewInMemoryModule(bus, slog.Default()),
		slog.Default(),
		":0",
	)
	return testServerFixture{server: server, keys: &keys}
}

func seedOpenProposal(server *Server, proposalID string, deadline time.Time) {
	server.governance.Store.SetProposal(vetoports.ProposalProjection{
		ProposalID:    proposalID,
		Title:         "Community Garden Budget",
		Type:          "budget",
		Status:        "open",
		VetoWindowEnd: &deadline,
		CreatedAt:     deadline.Add(-72 * time.Hour),
	})
	server.governance.Store.SetAgent(vetoports.AgentProjection{
		AgentID: "agent-1",
		UserID:  "user-1",
	})
}

func TestCastVoteRequiresIdempotencyKey(t *testing.T) {
	server := newTestServer()
	seedOpenProposal(server, "prop-1", time.Now().UTC().Add(2*time.Hour))

	body := []byte(`{"agent_id":"agent-1","proposal_id":"prop-1","value":"approve","confidence":0.8}`)
	req := httptest.NewRequest(http.MethodPost, "/api/governance/v1/votes", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCastVoteRejectsInvalidJSON(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/governance/v1/votes", bytes.NewReader([]byte(`{not json`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "cast-1")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCastVoteCreatedThenReplayed(t *testing.T) {
	server := newTestServer()
	seedOpenProposal(server, "prop-1", time.Now().UTC().Add(2*time.Hour))

	body := []byte(`{"agent_id":"agent-1","proposal_id":"prop-1","value":"approve","confidence":0.8}`)

	first := httptest.NewRequest(http.MethodPost, "/api/governance/v1/votes", bytes.NewReader(body))
	first.Header.Set("Content-Type", "application/json")
	first.Header.Set("Idempotency-Key", "cast-1")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, first)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var created vetohttp.VoteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode first response: %v", err)
	}
	if created.State != "CAST" {
		t.Fatalf("expected CAST state, got %q", created.State)
	}

	replay := httptest.NewRequest(http.MethodPost, "/api/governance/v1/votes", bytes.NewReader(body))
	replay.Header.Set("Content-Type", "application/json")
	replay.Header.Set("Idempotency-Key", "cast-1")
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, replay)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d body=%s", rr.Code, rr.Body.String())
	}
	var replayed vetohttp.VoteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &replayed); err != nil {
		t.Fatalf("decode replay response: %v", err)
	}
	if replayed.VoteID != created.VoteID {
		t.Fatalf("replay returned a different vote: %q vs %q", replayed.VoteID, created.VoteID)
	}
}

func TestOverrideVoteRequiresSignature(t *testing.T) {
	server := newTestServer()
	body := []byte(`{"user_id":"user-1","reason":"changed my mind"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/governance/v1/votes/vote-1/override", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "user-1")
	req.Header.Set("Idempotency-Key", "override-1")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestOverrideVoteRejectsForgedSignature(t *testing.T) {
	fixture := newTestServerWithKeys()
	server := fixture.server
	seedOpenProposal(server, "prop-1", time.Now().UTC().Add(2*time.Hour))

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	fixture.keys.Store.SetSigningKey(sigports.SigningKey{
		UserID:    "user-1",
		PublicKey: base64.StdEncoding.EncodeToString(pub),
	})

	voteID := castTestVote(t, server)

	body := []byte(`{"user_id":"user-1","reason":"changed my mind"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/governance/v1/votes/"+voteID+"/override", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, ed25519.SignatureSize)))
	req.Header.Set("Idempotency-Key", "override-1")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestOverrideVoteAcceptsValidSignature(t *testing.T) {
	fixture := newTestServerWithKeys()
	server := fixture.server
	seedOpenProposal(server, "prop-1", time.Now().UTC().Add(2*time.Hour))

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	fixture.keys.Store.SetSigningKey(sigports.SigningKey{
		UserID:    "user-1",
		PublicKey: base64.StdEncoding.EncodeToString(pub),
	})

	voteID := castTestVote(t, server)

	body := []byte(`{"user_id":"user-1","reason":"changed my mind"}`)
	signature := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, body))

	req := httptest.NewRequest(http.MethodPost, "/api/governance/v1/votes/"+voteID+"/override", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", signature)
	req.Header.Set("Idempotency-Key", "override-1")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp vetohttp.VoteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State != "OVERRIDDEN" {
		t.Fatalf("expected OVERRIDDEN state, got %q", resp.State)
	}
}

func castTestVote(t *testing.T, server *Server) string {
	t.Helper()
	body := []byte(`{"agent_id":"agent-1","proposal_id":"prop-1","value":"approve","confidence":0.8}`)
	req := httptest.NewRequest(http.MethodPost, "/api/governance/v1/votes", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "cast-seed")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("seed vote failed: %d body=%s", rr.Code, rr.Body.String())
	}
	var resp vetohttp.VoteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode seed vote: %v", err)
	}
	return resp.VoteID
}
