package application

import (
	"fmt"
	"strings"
	"time"

	"civitas/contexts/member-experience/digest-service/domain/entities"
	"civitas/contexts/member-experience/digest-service/ports"
)

// RenderDigest is the default DigestRenderer: deterministic text, no
// templating engine, no external calls. Sections appear in fixed order and
// empty sections are omitted entirely; an all-empty report renders the
// no-activity variant.
func RenderDigest(user ports.UserProjection, report entities.ActivityReport) string {
	name := strings.TrimSpace(user.DisplayName)
	if name == "" {
		name = "there"
	}
	if report.Empty() {
		return noActivityMessage(user.Tone, name)
	}

	var b strings.Builder
	b.WriteString(greeting(user.Tone, name))
	b.WriteString("\n")

	if len(report.VetoAlerts) > 0 {
		b.WriteString("\nVeto Window Alerts\n")
		for _, alert := range report.VetoAlerts {
			b.WriteString(fmt.Sprintf("- %q: your agent voted %s; veto window closes %s\n",
				alert.Title,
				alert.VoteValue,
				alert.VetoWindowEnd.UTC().Format(time.RFC3339),
			))
		}
	}
	if len(report.RecentVotes) > 0 {
		b.WriteString("\nRecent Agent Votes\n")
		for _, vote := range report.RecentVotes {
			b.WriteString(fmt.Sprintf("- %s on %q (confidence %.2f) at %s\n",
				vote.Value,
				vote.ProposalTitle,
				vote.Confidence,
				vote.CastAt.UTC().Format(time.RFC3339),
			))
		}
	}
	if len(report.NewProposals) > 0 {
		b.WriteString("\nNew Proposals\n")
		for _, proposal := range report.NewProposals {
			b.WriteString(fmt.Sprintf("- %q (%s) opened %s\n",
				proposal.Title,
				proposal.Type,
				proposal.CreatedAt.UTC().Format(time.RFC3339),
			))
		}
	}

	b.WriteString("\n")
	b.WriteString(signOff(user.Tone))
	return b.String()
}

func greeting(tone entities.Tone, name string) string {
	switch tone {
	case entities.ToneFriendly:
		return fmt.Sprintf("Hey %s! Here's what your delegate has been up to.", name)
	case entities.ToneFormal:
		return fmt.Sprintf("Dear %s, please find your delegation summary below.", name)
	default:
		return fmt.Sprintf("Delegation digest for %s.", name)
	}
}

func signOff(tone entities.Tone) string {
	switch tone {
	case entities.ToneFriendly:
		return "Talk soon!"
	case entities.ToneFormal:
		return "Respectfully, your delegation service."
	default:
		return "End of digest."
	}
}

func noActivityMessage(tone entities.Tone, name string) string {
	switch tone {
	case entities.ToneFriendly:
		return fmt.Sprintf("Hey %s! All quiet this period: your delegate had nothing to report.", name)
	case entities.ToneFormal:
		return fmt.Sprintf("Dear %s, there was no delegation activity in this period.", name)
	default:
		return fmt.Sprintf("No delegation activity for %s in this period.", name)
	}
}

var _ ports.DigestRenderer = RenderDigest
