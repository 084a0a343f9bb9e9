package application_test

import (
	"strings"
	"testing"
	"time"

	"civitas/contexts/member-experience/digest-service/application"
	"civitas/contexts/member-experience/digest-service/domain/entities"
	"civitas/contexts/member-experience/digest-service/ports"
)

func TestRenderDigestSectionOrderAndOmission(t *testing.T) {
	user := ports.UserProjection{UserID: "user-1", DisplayName: "Ada"}
	report := entities.ActivityReport{
		VetoAlerts: []entities.VetoAlert{{
			ProposalID:    "prop-1",
			Title:         "Bridge Repair Bond",
			VetoWindowEnd: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC),
			VoteValue:     "approve",
		}},
		RecentVotes: []entities.VoteActivity{{
			ProposalID:    "prop-2",
			ProposalTitle: "Library Hours Extension",
			Value:         "reject",
			Confidence:    0.7,
			CastAt:        time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		}},
	}

	content := application.RenderDigest(user, report)
	alertIdx := strings.Index(content, "Veto Window Alerts")
	votesIdx := strings.Index(content, "Recent Agent Votes")
	if alertIdx < 0 || votesIdx < 0 {
		t.Fatalf("missing sections in:\n%s", content)
	}
	if alertIdx > votesIdx {
		t.Fatal("veto alerts must render before recent votes")
	}
	if strings.Contains(content, "New Proposals") {
		t.Fatal("empty section must be omitted")
	}
	if !strings.Contains(content, "Bridge Repair Bond") || !strings.Contains(content, "Library Hours Extension") {
		t.Fatalf("proposal titles missing from:\n%s", content)
	}
}

func TestRenderDigestToneVariants(t *testing.T) {
	report := entities.ActivityReport{
		RecentVotes: []entities.VoteActivity{{ProposalTitle: "Anything", Value: "approve"}},
	}
	cases := []struct {
		tone     entities.Tone
		greeting string
		signOff  string
	}{
		{entities.ToneFriendly, "Hey Ada!", "Talk soon!"},
		{entities.ToneFormal, "Dear Ada,", "Respectfully"},
		{entities.ToneNeutral, "Delegation digest for Ada.", "End of digest."},
	}
	for _, tc := range cases {
		t.Run(string(tc.tone)+"_tone", func(t *testing.T) {
			user := ports.UserProjection{UserID: "user-1", DisplayName: "Ada", Tone: tc.tone}
			content := application.RenderDigest(user, report)
			if !strings.Contains(content, tc.greeting) {
				t.Fatalf("greeting %q missing from:\n%s", tc.greeting, content)
			}
			if !strings.Contains(content, tc.signOff) {
				t.Fatalf("sign-off %q missing from:\n%s", tc.signOff, content)
			}
		})
	}
}

func TestRenderDigestNoActivityVariantPerTone(t *testing.T) {
	empty := entities.ActivityReport{}
	for _, tone := range []entities.Tone{entities.ToneFriendly, entities.ToneFormal, entities.ToneNeutral} {
		user := ports.UserProjection{UserID: "user-1", DisplayName: "Ada", Tone: tone}
		content := application.RenderDigest(user, empty)
		if strings.Contains(content, "Veto Window Alerts") ||
			strings.Contains(content, "Recent Agent Votes") ||
			strings.Contains(content, "New Proposals") {
			t.Fatalf("no-activity variant must not contain sections (tone %q):\n%s", tone, content)
		}
		active := application.RenderDigest(user, entities.ActivityReport{
			RecentVotes: []entities.VoteActivity{{ProposalTitle: "X", Value: "approve"}},
		})
		if content == active {
			t.Fatalf("no-activity variant must differ from active digest (tone %q)", tone)
		}
	}
}
