package entities

import "time"

// LedgerEntry is one append-only treasury mutation. Amount is signed: debits
// are negative. BalanceAfter is the treasury balance immediately after this
// entry was applied.
type LedgerEntry struct {
	EntryID      string
	ProposalID   string
	Amount       float64
	BalanceAfter float64
	CreatedAt    time.Time
}

// TreasuryConfig is the singleton authoritative balance row. Its only legal
// mutation path is the ledger posting transaction.
type TreasuryConfig struct {
	ID        int
	Balance   float64
	UpdatedAt time.Time
}

// TreasuryView is the read model returned to callers: current balance plus
// the reconciliation figures over the append-only ledger.
type TreasuryView struct {
	Balance    float64
	EntryCount int
	EntrySum   float64
	SeedValue  float64
}

// Reconciles reports whether seed + sum of entries equals the current balance.
func (v TreasuryView) Reconciles() bool {
	const epsilon = 1e-6
	diff := v.SeedValue + v.EntrySum - v.Balance
	if diff < 0 {
		diff = -diff
	}
	return diff < epsilon
}
