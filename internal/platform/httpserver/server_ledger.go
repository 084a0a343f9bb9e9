package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	ledgerdomainerrors "civitas/contexts/treasury-finance/play-ledger-service/domain/errors"
	ledgerhttp "civitas/contexts/treasury-finance/play-ledger-service/transport/http"
)

// handlePostLedgerEntry is the manual trigger for a treasury posting. The
// operation itself is idempotent, so operators can safely re-invoke it.
func (s *Server) handlePostLedgerEntry(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.PostEntryHandler(r.Context(), r.PathValue("proposal_id"))
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	status := http.StatusOK
	if resp.Posted {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleTreasury(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.TreasuryHandler(r.Context())
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListLedgerEntries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	offset := 0
	if raw := query.Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			writeLedgerError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = value
	}
	if raw := query.Get("offset"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			writeLedgerError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
			return
		}
		offset = value
	}

	resp, err := s.ledger.Handler.ListEntriesHandler(r.Context(), limit, offset)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeLedgerDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledgerdomainerrors.ErrInvalidInput):
		writeLedgerError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ledgerdomainerrors.ErrProposalNotFound),
		errors.Is(err, ledgerdomainerrors.ErrEntryNotFound):
		writeLedgerError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ledgerdomainerrors.ErrAmountMissing):
		writeLedgerError(w, http.StatusUnprocessableEntity, "amount_missing", err.Error())
	case errors.Is(err, ledgerdomainerrors.ErrTreasuryNotSeeded):
		writeLedgerError(w, http.StatusInternalServerError, "treasury_not_seeded", err.Error())
	case errors.Is(err, ledgerdomainerrors.ErrConflict),
		errors.Is(err, ledgerdomainerrors.ErrDuplicateEntry):
		writeLedgerError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeLedgerError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeLedgerError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ledgerhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}
