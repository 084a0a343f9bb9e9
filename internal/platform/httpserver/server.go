package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	vetoengine "civitas/contexts/civic-governance/veto-window-engine"
	vetodomainerrors "civitas/contexts/civic-governance/veto-window-engine/domain/errors"
	vetohttp "civitas/contexts/civic-governance/veto-window-engine/transport/http"
	digest "civitas/contexts/member-experience/digest-service"
	playledger "civitas/contexts/treasury-finance/play-ledger-service"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "civitas/internal/platform/httpserver/docs"
)

type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	addr       string
	governance vetoengine.Module
	ledger     playledger.Module
	digests    digest.Module
}

func New(
	governance vetoengine.Module,
	ledger playledger.Module,
	digests digest.Module,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		addr:       addr,
		governance: governance,
		ledger:     ledger,
		digests:    digests,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /api/governance/v1/votes", s.handleCastVote)
	s.mux.HandleFunc("GET /api/governance/v1/votes/{vote_id}", s.handleGetVote)
	s.mux.HandleFunc("POST /api/governance/v1/votes/{vote_id}/override", s.handleOverrideVote)
	s.mux.HandleFunc("GET /api/governance/v1/agents/{agent_id}/pending-vetoes", s.handlePendingVetoes)
	s.mux.HandleFunc("GET /api/governance/v1/agents/{agent_id}/votes", s.handleAgentVotes)

	s.mux.HandleFunc("POST /api/ledger/v1/proposals/{proposal_id}/entries", s.handlePostLedgerEntry)
	s.mux.HandleFunc("GET /api/ledger/v1/treasury", s.handleTreasury)
	s.mux.HandleFunc("GET /api/ledger/v1/entries", s.handleListLedgerEntries)

	s.mux.HandleFunc("GET /api/digest/v1/users/{user_id}/digests", s.handleListDigests)
	s.mux.HandleFunc("POST /api/digest/v1/users/{user_id}/digests/generate", s.handleEnqueueDigest)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req vetohttp.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.governance.Handler.CastVoteHandler(r.Context(), req, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if resp.Replayed || resp.WasUpdate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleGetVote(w http.ResponseWriter, r *http.Request) {
	resp, err := s.governance.Handler.GetVoteHandler(r.Context(), r.PathValue("vote_id"))
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleOverrideVote keeps the raw body bytes: the detached signature covers
// the exact serialization, so the body must reach the verifier untouched.
func (s *Server) handleOverrideVote(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "unreadable_body", "request body could not be read")
		return
	}
	var req vetohttp.OverrideVoteRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		writeGovernanceError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = strings.TrimSpace(r.Header.Get("X-User-Id"))
	}

	resp, err := s.governance.Handler.OverrideVoteHandler(
		r.Context(),
		r.PathValue("vote_id"),
		req,
		rawBody,
		r.Header.Get("X-Signature"),
		r.Header.Get("Idempotency-Key"),
	)
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePendingVetoes(w http.ResponseWriter, r *http.Request) {
	horizon := time.Duration(0)
	if raw := r.URL.Query().Get("horizon_hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			writeGovernanceError(w, http.StatusBadRequest, "invalid_horizon", "horizon_hours must be a positive integer")
			return
		}
		horizon = time.Duration(hours) * time.Hour
	}
	resp, err := s.governance.Handler.PendingVetoesHandler(r.Context(), r.PathValue("agent_id"), horizon)
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAgentVotes(w http.ResponseWriter, r *http.Request) {
	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeGovernanceError(w, http.StatusBadRequest, "invalid_since", "since must be RFC3339")
			return
		}
		since = parsed
	}
	resp, err := s.governance.Handler.AgentVotesHandler(r.Context(), r.PathValue("agent_id"), since)
	if err != nil {
		writeGovernanceDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeGovernanceDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vetodomainerrors.ErrInvalidVoteInput):
		writeGovernanceError(w, http.StatusBadRequest, "invalid_vote", err.Error())
	case errors.Is(err, vetodomainerrors.ErrIdempotencyKeyRequired):
		writeGovernanceError(w, http.StatusBadRequest, "idempotency_key_required", err.Error())
	case errors.Is(err, vetodomainerrors.ErrVoteNotFound),
		errors.Is(err, vetodomainerrors.ErrProposalNotFound),
		errors.Is(err, vetodomainerrors.ErrAgentNotFound):
		writeGovernanceError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, vetodomainerrors.ErrProposalClosed):
		writeGovernanceError(w, http.StatusConflict, "proposal_closed", err.Error())
	case errors.Is(err, vetodomainerrors.ErrIdempotencyConflict),
		errors.Is(err, vetodomainerrors.ErrConflict):
		writeGovernanceError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, vetodomainerrors.ErrSignatureRequired):
		writeGovernanceError(w, http.StatusUnauthorized, "signature_required", err.Error())
	case errors.Is(err, vetodomainerrors.ErrSignatureInvalid):
		writeGovernanceError(w, http.StatusUnauthorized, "signature_invalid", err.Error())
	case errors.Is(err, vetodomainerrors.ErrNotVoteOwner):
		writeGovernanceError(w, http.StatusForbidden, "not_vote_owner", err.Error())
	default:
		writeGovernanceError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeGovernanceError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, vetohttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
