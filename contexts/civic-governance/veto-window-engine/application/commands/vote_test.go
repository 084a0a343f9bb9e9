package commands_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"civitas/contexts/civic-governance/veto-window-engine/adapters/memory"
	"civitas/contexts/civic-governance/veto-window-engine/application/commands"
	domainerrors "civitas/contexts/civic-governance/veto-window-engine/domain/errors"
	"civitas/contexts/civic-governance/veto-window-engine/ports"
)

type staticVerifier struct {
	verdict bool
	err     error
	calls   int
}

func (v *staticVerifier) Verify(context.Context, string, []byte, string) (bool, error) {
	v.calls++
	return v.verdict, v.err
}

func newVoteFixture(verifier ports.SignatureVerifier) (commands.VoteUseCase, *memory.Store) {
	store := memory.NewStore(nil)
	store.SetNow(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	deadline := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	store.SetProposal(ports.ProposalProjection{
		ProposalID:    "prop-1",
		Title:         "Repave Elm Street",
		Type:          "budget",
		Status:        "open",
		VetoWindowEnd: &deadline,
	})
	store.SetAgent(ports.AgentProjection{AgentID: "agent-1", UserID: "user-1"})
	uc := commands.VoteUseCase{
		Votes:       store,
		Proposals:   store,
		Agents:      store,
		Verifier:    verifier,
		Idempotency: store,
		Outbox:      store,
		Clock:       store,
		IDGen:       store,
	}
	return uc, store
}

func TestCastVoteCreatesAndReplays(t *testing.T) {
	uc, _ := newVoteFixture(nil)
	cmd := commands.CastVoteCommand{
		AgentID:        "agent-1",
		ProposalID:     "prop-1",
		Value:          "approve",
		Confidence:     0.9,
		IdempotencyKey: "cast-1",
	}

	first, err := uc.CastVote(context.Background(), cmd)
	if err != nil {
		t.Fatalf("cast: %v", err)
	}
	if first.Replayed || first.WasUpdate {
		t.Fatalf("first cast flagged replayed=%v update=%v", first.Replayed, first.WasUpdate)
	}
	if first.Vote.Value != "approve" || first.Vote.Confidence != 0.9 {
		t.Fatalf("unexpected vote %+v", first.Vote)
	}

	second, err := uc.CastVote(context.Background(), cmd)
	if err != nil {
		t.Fatalf("replay cast: %v", err)
	}
	if !second.Replayed {
		t.Fatal("expected idempotent replay")
	}
	if second.Vote.VoteID != first.Vote.VoteID {
		t.Fatalf("replay returned different vote: %s vs %s", second.Vote.VoteID, first.Vote.VoteID)
	}
}

func TestCastVoteSameKeyDifferentBodyConflicts(t *testing.T) {
	uc, _ := newVoteFixture(nil)
	cmd := commands.CastVoteCommand{
		AgentID:        "agent-1",
		ProposalID:     "prop-1",
		Value:          "approve",
		Confidence:     0.9,
		IdempotencyKey: "cast-1",
	}
	if _, err := uc.CastVote(context.Background(), cmd); err != nil {
		t.Fatalf("cast: %v", err)
	}
	cmd.Value = "reject"
	_, err := uc.CastVote(context.Background(), cmd)
	if !errors.Is(err, domainerrors.ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}
}

func TestCastVoteRecastUpdatesInPlace(t *testing.T) {
	uc, store := newVoteFixture(nil)
	first, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
		AgentID:        "agent-1",
		ProposalID:     "prop-1",
		Value:          "approve",
		Confidence:     0.9,
		IdempotencyKey: "cast-1",
	})
	if err != nil {
		t.Fatalf("cast: %v", err)
	}

	recast, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
		AgentID:        "agent-1",
		ProposalID:     "prop-1",
		Value:          "reject",
		Confidence:     0.6,
		IdempotencyKey: "cast-2",
	})
	if err != nil {
		t.Fatalf("recast: %v", err)
	}
	if !recast.WasUpdate {
		t.Fatal("expected recast to be an in-place update")
	}
	if recast.Vote.VoteID != first.Vote.VoteID {
		t.Fatal("recast must keep the same vote identity")
	}

	votes, err := store.ListVotesByAgentSince(context.Background(), "agent-1", time.Time{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(votes) != 1 {
		t.Fatalf("expected a single vote row, got %d", len(votes))
	}
	if votes[0].Value != "reject" || votes[0].Confidence != 0.6 {
		t.Fatalf("recast did not update the row: %+v", votes[0])
	}
}

func TestCastVoteClosedProposalRejected(t *testing.T) {
	uc, store := newVoteFixture(nil)
	store.SetProposal(ports.ProposalProjection{
		ProposalID: "prop-closed",
		Status:     "closed",
	})
	_, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
		AgentID:        "agent-1",
		ProposalID:     "prop-closed",
		Value:          "approve",
		Confidence:     0.5,
		IdempotencyKey: "cast-3",
	})
	if !errors.Is(err, domainerrors.ErrProposalClosed) {
		t.Fatalf("expected ErrProposalClosed, got %v", err)
	}
}

func TestCastVoteValidation(t *testing.T) {
	uc, _ := newVoteFixture(nil)
	cases := []struct {
		name string
		cmd  commands.CastVoteCommand
		want error
	}{
		{
			name: "missing agent",
			cmd:  commands.CastVoteCommand{ProposalID: "prop-1", Value: "approve", IdempotencyKey: "k"},
			want: domainerrors.ErrInvalidVoteInput,
		},
		{
			name: "confidence out of range",
			cmd: commands.CastVoteCommand{
				AgentID:        "agent-1",
				ProposalID:     "prop-1",
				Value:          "approve",
				Confidence:     1.5,
				IdempotencyKey: "k",
			},
			want: domainerrors.ErrInvalidVoteInput,
		},
		{
			name: "missing idempotency key",
			cmd: commands.CastVoteCommand{
				AgentID:    "agent-1",
				ProposalID: "prop-1",
				Value:      "approve",
				Confidence: 0.5,
			},
			want: domainerrors.ErrIdempotencyKeyRequired,
		},
		{
			name: "unknown proposal",
			cmd: commands.CastVoteCommand{
				AgentID:        "agent-1",
				ProposalID:     "prop-missing",
				Value:          "approve",
				Confidence:     0.5,
				IdempotencyKey: "k",
			},
			want: domainerrors.ErrProposalNotFound,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.CastVote(context.Background(), tc.cmd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestOverrideVoteHappyPath(t *testing.T) {
	verifier := &staticVerifier{verdict: true}
	uc, _ := newVoteFixture(verifier)
	cast, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
		AgentID:        "agent-1",
		ProposalID:     "prop-1",
		Value:          "approve",
		Confidence:     0.9,
		IdempotencyKey: "cast-1",
	})
	if err != nil {
		t.Fatalf("cast: %v", err)
	}

	result, err := uc.OverrideVote(context.Background(), commands.OverrideVoteCommand{
		VoteID:         cast.Vote.VoteID,
		UserID:         "user-1",
		Reason:         "budget figures are stale",
		IdempotencyKey: "override-1",
		RequestBody:    []byte(`{"user_id":"user-1"}`),
		Signature:      "c2ln",
	})
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if !result.Vote.OverrideByUser {
		t.Fatal("vote not marked overridden")
	}
	if result.Vote.OverrideReason != "budget figures are stale" {
		t.Fatalf("unexpected reason %q", result.Vote.OverrideReason)
	}
	if verifier.calls == 0 {
		t.Fatal("signature verifier was never consulted")
	}
}

func TestOverrideVoteInvalidSignatureRejectedBeforeState(t *testing.T) {
	verifier := &staticVerifier{verdict: false}
	uc, store := newVoteFixture(verifier)
	cast, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
		AgentID:        "agent-1",
		ProposalID:     "prop-1",
		Value:          "approve",
		Confidence:     0.9,
		IdempotencyKey: "cast-1",
	})
	if err != nil {
		t.Fatalf("cast: %v", err)
	}

	_, err = uc.OverrideVote(context.Background(), commands.OverrideVoteCommand{
		VoteID:         cast.Vote.VoteID,
		UserID:         "user-1",
		IdempotencyKey: "override-1",
		RequestBody:    []byte(`{"user_id":"user-1"}`),
		Signature:      "c2ln",
	})
	if !errors.Is(err, domainerrors.ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}

	vote, err := store.GetVote(context.Background(), cast.Vote.VoteID)
	if err != nil {
		t.Fatalf("get vote: %v", err)
	}
	if vote.OverrideByUser {
		t.Fatal("rejected override must not touch the vote")
	}
}

func TestOverrideVoteMissingSignatureRejected(t *testing.T) {
	uc, _ := newVoteFixture(&staticVerifier{verdict: true})
	_, err := uc.OverrideVote(context.Background(), commands.OverrideVoteCommand{
		VoteID:         "vote-1",
		UserID:         "user-1",
		IdempotencyKey: "override-1",
		RequestBody:    []byte(`{}`),
	})
	if !errors.Is(err, domainerrors.ErrSignatureRequired) {
		t.Fatalf("expected ErrSignatureRequired, got %v", err)
	}
}

func TestOverrideVoteNonOwnerRejected(t *testing.T) {
	verifier := &staticVerifier{verdict: true}
	uc, _ := newVoteFixture(verifier)
	cast, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
		AgentID:        "agent-1",
		ProposalID:     "prop-1",
		Value:          "approve",
		Confidence:     0.9,
		IdempotencyKey: "cast-1",
	})
	if err != nil {
		t.Fatalf("cast: %v", err)
	}

	_, err = uc.OverrideVote(context.Background(), commands.OverrideVoteCommand{
		VoteID:         cast.Vote.VoteID,
		UserID:         "user-2",
		IdempotencyKey: "override-1",
		RequestBody:    []byte(`{"user_id":"user-2"}`),
		Signature:      "c2ln",
	})
	if !errors.Is(err, domainerrors.ErrNotVoteOwner) {
		t.Fatalf("expected ErrNotVoteOwner, got %v", err)
	}
}

func TestOverrideVoteAlreadyOverriddenIsReplay(t *testing.T) {
	verifier := &staticVerifier{verdict: true}
	uc, _ := newVoteFixture(verifier)
	cast, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
		AgentID:        "agent-1",
		ProposalID:     "prop-1",
		Value:          "approve",
		Confidence:     0.9,
		IdempotencyKey: "cast-1",
	})
	if err != nil {
		t.Fatalf("cast: %v", err)
	}

	first := commands.OverrideVoteCommand{
		VoteID:         cast.Vote.VoteID,
		UserID:         "user-1",
		Reason:         "stale figures",
		IdempotencyKey: "override-1",
		RequestBody:    []byte(`{"user_id":"user-1"}`),
		Signature:      "c2ln",
	}
	if _, err := uc.OverrideVote(context.Background(), first); err != nil {
		t.Fatalf("override: %v", err)
	}

	second := first
	second.IdempotencyKey = "override-2"
	result, err := uc.OverrideVote(context.Background(), second)
	if err != nil {
		t.Fatalf("second override: %v", err)
	}
	if !result.Replayed {
		t.Fatal("expected already-overridden vote to report a replay")
	}
	if result.Vote.OverrideReason != "stale figures" {
		t.Fatalf("replay must keep the original reason, got %q", result.Vote.OverrideReason)
	}
}
