package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PostEntryResponse struct {
	Posted       bool    `json:"posted"`
	Reason       string  `json:"reason,omitempty"`
	EntryID      string  `json:"entry_id,omitempty"`
	ProposalID   string  `json:"proposal_id,omitempty"`
	Amount       float64 `json:"amount,omitempty"`
	BalanceAfter float64 `json:"balance_after,omitempty"`
}

type TreasuryResponse struct {
	Balance    float64 `json:"balance"`
	EntryCount int     `json:"entry_count"`
	EntrySum   float64 `json:"entry_sum"`
	SeedValue  float64 `json:"seed_value"`
	Reconciles bool    `json:"reconciles"`
}

type LedgerEntryItem struct {
	EntryID      string  `json:"entry_id"`
	ProposalID   string  `json:"proposal_id"`
	Amount       float64 `json:"amount"`
	BalanceAfter float64 `json:"balance_after"`
	CreatedAt    string  `json:"created_at"`
}

type LedgerEntriesResponse struct {
	Items []LedgerEntryItem `json:"items"`
}
