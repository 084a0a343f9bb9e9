package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CastVoteRequest struct {
	AgentID    string  `json:"agent_id"`
	ProposalID string  `json:"proposal_id"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

type OverrideVoteRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

type VoteResponse struct {
	VoteID         string  `json:"vote_id"`
	ProposalID     string  `json:"proposal_id"`
	AgentID        string  `json:"agent_id"`
	Value          string  `json:"value"`
	Confidence     float64 `json:"confidence"`
	State          string  `json:"state"`
	OverrideByUser bool    `json:"override_by_user"`
	OverrideReason string  `json:"override_reason,omitempty"`
	Replayed       bool    `json:"replayed,omitempty"`
	WasUpdate      bool    `json:"was_update,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

type PendingVetoItem struct {
	ProposalID    string  `json:"proposal_id"`
	Title         string  `json:"title"`
	VetoWindowEnd string  `json:"veto_window_end"`
	VoteID        string  `json:"vote_id"`
	Value         string  `json:"value"`
	Confidence    float64 `json:"confidence"`
}

type PendingVetoesResponse struct {
	Items []PendingVetoItem `json:"items"`
}

type AgentVoteItem struct {
	VoteID         string  `json:"vote_id"`
	ProposalID     string  `json:"proposal_id"`
	Value          string  `json:"value"`
	Confidence     float64 `json:"confidence"`
	OverrideByUser bool    `json:"override_by_user"`
	CreatedAt      string  `json:"created_at"`
}

type AgentVotesResponse struct {
	Items []AgentVoteItem `json:"items"`
}
