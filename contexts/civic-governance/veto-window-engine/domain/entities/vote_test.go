package entities_test

import (
	"testing"
	"time"

	"civitas/contexts/civic-governance/veto-window-engine/domain/entities"
)

func TestClassifyVote(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(6 * time.Hour)
	past := now.Add(-6 * time.Hour)

	cases := []struct {
		name          string
		vetoWindowEnd *time.Time
		override      bool
		want          entities.VoteState
	}{
		{
			name:          "window open",
			vetoWindowEnd: &future,
			want:          entities.VoteStateCast,
		},
		{
			name:          "window passed",
			vetoWindowEnd: &past,
			want:          entities.VoteStateFinal,
		},
		{
			name:          "deadline equal to now is still vetoable",
			vetoWindowEnd: &now,
			want:          entities.VoteStateCast,
		},
		{
			name:          "no deadline never finalizes",
			vetoWindowEnd: nil,
			want:          entities.VoteStateCast,
		},
		{
			name:          "override wins inside window",
			vetoWindowEnd: &future,
			override:      true,
			want:          entities.VoteStateOverridden,
		},
		{
			name:          "override wins after window",
			vetoWindowEnd: &past,
			override:      true,
			want:          entities.VoteStateOverridden,
		},
		{
			name:     "override wins without deadline",
			override: true,
			want:     entities.VoteStateOverridden,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := entities.ClassifyVote(now, tc.vetoWindowEnd, tc.override)
			if got != tc.want {
				t.Fatalf("ClassifyVote() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestVoteStateSerializedNames(t *testing.T) {
	// These strings are the API contract; response DTOs render them verbatim.
	names := map[entities.VoteState]string{
		entities.VoteStateCast:       "CAST",
		entities.VoteStateFinal:      "FINAL",
		entities.VoteStateOverridden: "OVERRIDDEN",
	}
	for state, want := range names {
		if string(state) != want {
			t.Fatalf("state renders %q, want %q", string(state), want)
		}
	}
}

func TestVoteStateDelegatesToClassify(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	vote := entities.Vote{VoteID: "vote-1"}
	if got := vote.State(now, &past); got != entities.VoteStateFinal {
		t.Fatalf("State() = %q, want %q", got, entities.VoteStateFinal)
	}
}
