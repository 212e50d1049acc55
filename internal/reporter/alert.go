package reporter

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// AlertTag marks every pushed alert
const AlertTag = "vulnerability-alert"

// KEVTag marks alerts for known exploited vulnerabilities
const KEVTag = "kev"

// RenderAlert builds the push message for a new record. description is the
// text to show, usually a translation of v.Description.
func RenderAlert(v models.Vulnerability, description string) models.Alert {
	title := fmt.Sprintf("High-risk vulnerability: %s (%.1f %s)", v.ID, v.Score, v.Rating())

	refs := "-"
	if len(v.References) > 0 {
		refs = strings.Join(v.References, "\n")
	}

	var b strings.Builder
	b.WriteString("## Vulnerability details\n")
	fmt.Fprintf(&b, "**CVE ID**: %s  \n", v.ID)
	fmt.Fprintf(&b, "**Published**: %s  \n", v.PublishedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "**CVSS score**: %.1f (%s)  \n", v.Score, v.Rating())
	fmt.Fprintf(&b, "**Attack vector**: %s  \n", v.Vector)
	if v.KEV != nil {
		fmt.Fprintf(&b, "**Known exploited**: listed in CISA KEV since %s  \n", v.KEV.DateAdded.Format(time.DateOnly))
		if v.KEV.RansomwareUse {
			b.WriteString("**Ransomware**: known campaign use  \n")
		}
		fmt.Fprintf(&b, "**Required action**: %s  \n", v.KEV.RequiredAction)
	}
	b.WriteString("\n## Description\n")
	b.WriteString(description + "\n")
	b.WriteString("\n## References\n")
	b.WriteString(refs + "\n")
	b.WriteString("\n## Source\n")
	b.WriteString(v.Source + "\n")

	tags := []string{AlertTag, v.Rating()}
	if v.KEV != nil {
		tags = append(tags, KEVTag)
	}

	return models.Alert{
		Title: title,
		Body:  b.String(),
		Tags:  tags,
	}
}
