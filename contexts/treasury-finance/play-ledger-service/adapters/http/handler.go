package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"civitas/contexts/treasury-finance/play-ledger-service/application"
	httptransport "civitas/contexts/treasury-finance/play-ledger-service/transport/http"
)

type Handler struct {
	Service application.Service
	Logger  *slog.Logger
}

func (h Handler) PostEntryHandler(ctx context.Context, proposalID string) (httptransport.PostEntryResponse, error) {
	outcome, err := h.Service.PostLedgerEntry(ctx, proposalID)
	if err != nil {
		return httptransport.PostEntryResponse{}, err
	}
	resp := httptransport.PostEntryResponse{
		Posted: outcome.Posted,
		Reason: outcome.Reason,
	}
	if outcome.Posted || outcome.Reason == application.SkipAlreadyPosted {
		resp.EntryID = outcome.Entry.EntryID
		resp.ProposalID = outcome.Entry.ProposalID
		resp.Amount = outcome.Entry.Amount
		resp.BalanceAfter = outcome.Entry.BalanceAfter
	}
	return resp, nil
}

func (h Handler) TreasuryHandler(ctx context.Context) (httptransport.TreasuryResponse, error) {
	view, err := h.Service.Treasury(ctx)
	if err != nil {
		return httptransport.TreasuryResponse{}, err
	}
	return httptransport.TreasuryResponse{
		Balance:    view.Balance,
		EntryCount: view.EntryCount,
		EntrySum:   view.EntrySum,
		SeedValue:  view.SeedValue,
		Reconciles: view.Reconciles(),
	}, nil
}

func (h Handler) ListEntriesHandler(ctx context.Context, limit int, offset int) (httptransport.LedgerEntriesResponse, error) {
	entries, err := h.Service.ListEntries(ctx, limit, offset)
	if err != nil {
		return httptransport.LedgerEntriesResponse{}, err
	}
	items := make([]httptransport.LedgerEntryItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, httptransport.LedgerEntryItem{
			EntryID:      entry.EntryID,
			ProposalID:   entry.ProposalID,
			Amount:       entry.Amount,
			BalanceAfter: entry.BalanceAfter,
			CreatedAt:    entry.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return httptransport.LedgerEntriesResponse{Items: items}, nil
}
