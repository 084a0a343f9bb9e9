package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	digestdomainerrors "civitas/contexts/member-experience/digest-service/domain/errors"
	digesthttp "civitas/contexts/member-experience/digest-service/transport/http"
)

func (s *Server) handleListDigests(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			writeDigestError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = value
	}
	resp, err := s.digests.Handler.ListDigestsHandler(r.Context(), r.PathValue("user_id"), limit)
	if err != nil {
		writeDigestDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEnqueueDigest(w http.ResponseWriter, r *http.Request) {
	resp, err := s.digests.Handler.EnqueueDigestHandler(r.Context(), r.PathValue("user_id"))
	if err != nil {
		writeDigestDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func writeDigestDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, digestdomainerrors.ErrInvalidInput):
		writeDigestError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, digestdomainerrors.ErrUserNotFound),
		errors.Is(err, digestdomainerrors.ErrDigestNotFound):
		writeDigestError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, digestdomainerrors.ErrAgentNotFound):
		writeDigestError(w, http.StatusConflict, "agent_not_onboarded", err.Error())
	case errors.Is(err, digestdomainerrors.ErrConflict):
		writeDigestError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeDigestError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeDigestError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, digesthttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}
