package reporter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// TerminalReporter outputs a run summary in a human-readable terminal format
type TerminalReporter struct{}

// Report generates terminal output for the given run summary
func (r *TerminalReporter) Report(summary *models.RunSummary) ([]byte, error) {
	var sb strings.Builder

	if summary.Window == "" {
		sb.WriteString("Failed to fetch any CVE data.\n")
		if summary.FetchError != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", summary.FetchError))
		}
		return []byte(sb.String()), nil
	}

	sb.WriteString(fmt.Sprintf("Checked %d entries from the %s feed in %s\n",
		summary.Entries, summary.Window, summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond)))

	if len(summary.Rejected) > 0 {
		reasons := make([]string, 0, len(summary.Rejected))
		for reason := range summary.Rejected {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			sb.WriteString(fmt.Sprintf("   skipped (%s): %d\n", reason, summary.Rejected[reason]))
		}
	}
	if summary.Duplicates > 0 {
		sb.WriteString(fmt.Sprintf("   already alerted: %d\n", summary.Duplicates))
	}

	if len(summary.New) == 0 {
		sb.WriteString("\nNo new high-risk vulnerabilities.\n")
		return []byte(sb.String()), nil
	}

	sb.WriteString(fmt.Sprintf("\n⚠️  %d NEW HIGH-RISK VULNERABILITIES\n", len(summary.New)))
	sb.WriteString(strings.Repeat("=", 60) + "\n")

	for _, v := range summary.New {
		sb.WriteString(fmt.Sprintf("\n🔴 %s  %.1f %s\n", v.ID, v.Score, v.Rating()))
		if v.KEV != nil {
			sb.WriteString(fmt.Sprintf("   Known exploited (CISA KEV, added %s)\n", v.KEV.DateAdded.Format(time.DateOnly)))
		}
		sb.WriteString(fmt.Sprintf("   Published: %s\n", v.PublishedAt.Format("2006-01-02 15:04:05 MST")))
		sb.WriteString(fmt.Sprintf("   Vector: %s\n", v.Vector))

		desc := v.Description
		if r := []rune(desc); len(r) > 200 {
			desc = string(r[:197]) + "..."
		}
		sb.WriteString(fmt.Sprintf("   %s\n", desc))

		for _, ref := range v.References {
			sb.WriteString(fmt.Sprintf("   %s\n", ref))
		}
	}

	if summary.NotifyFailures > 0 {
		sb.WriteString(fmt.Sprintf("\n%d notification(s) could not be delivered, see log\n", summary.NotifyFailures))
	}

	return []byte(sb.String()), nil
}
