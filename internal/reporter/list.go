package reporter

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// RenderList formats stored records for the list command. Formats other
// than json render an aligned table.
func RenderList(format string, vulns []models.Vulnerability) ([]byte, error) {
	if format == "json" {
		out := make([]jsonVulnerability, 0, len(vulns))
		for _, v := range vulns {
			out = append(out, toJSONVulnerability(v))
		}
		return json.MarshalIndent(out, "", "  ")
	}

	if len(vulns) == 0 {
		return []byte("No vulnerabilities stored.\n"), nil
	}

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPUBLISHED\tSCORE\tRATING\tVECTOR")
	for _, v := range vulns {
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%s\t%s\n",
			v.ID, v.PublishedAt.UTC().Format(time.DateTime), v.Score, v.Rating(), v.Vector)
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}
