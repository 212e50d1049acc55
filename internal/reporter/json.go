package reporter

import (
	"encoding/json"
	"time"

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// JSONReporter outputs a run summary as JSON
type JSONReporter struct{}

type jsonOutput struct {
	Summary         jsonSummary         `json:"summary"`
	Vulnerabilities []jsonVulnerability `json:"vulnerabilities"`
}

type jsonSummary struct {
	StartedAt      string         `json:"started_at"`
	FinishedAt     string         `json:"finished_at"`
	Window         string         `json:"window,omitempty"`
	FetchError     string         `json:"fetch_error,omitempty"`
	Entries        int            `json:"entries"`
	Rejected       map[string]int `json:"rejected,omitempty"`
	Duplicates     int            `json:"duplicates"`
	New            int            `json:"new"`
	NotifyFailures int            `json:"notify_failures"`
}

type jsonVulnerability struct {
	ID          string   `json:"id"`
	PublishedAt string   `json:"published_at"`
	Score       float64  `json:"severity_score"`
	Rating      string   `json:"severity_rating"`
	Vector      string   `json:"severity_vector"`
	Description string   `json:"description"`
	References  []string `json:"references"`
	Source      string   `json:"source"`
	KEV         bool     `json:"known_exploited"`
}

// Report generates JSON output for the given run summary
func (r *JSONReporter) Report(summary *models.RunSummary) ([]byte, error) {
	output := jsonOutput{
		Summary: jsonSummary{
			StartedAt:      summary.StartedAt.UTC().Format(time.RFC3339),
			FinishedAt:     summary.FinishedAt.UTC().Format(time.RFC3339),
			Window:         summary.Window,
			FetchError:     summary.FetchError,
			Entries:        summary.Entries,
			Rejected:       summary.Rejected,
			Duplicates:     summary.Duplicates,
			New:            len(summary.New),
			NotifyFailures: summary.NotifyFailures,
		},
		Vulnerabilities: make([]jsonVulnerability, 0, len(summary.New)),
	}

	for _, v := range summary.New {
		output.Vulnerabilities = append(output.Vulnerabilities, toJSONVulnerability(v))
	}

	return json.MarshalIndent(output, "", "  ")
}

func toJSONVulnerability(v models.Vulnerability) jsonVulnerability {
	refs := v.References
	if refs == nil {
		refs = []string{}
	}
	return jsonVulnerability{
		ID:          v.ID,
		PublishedAt: v.PublishedAt.UTC().Format(time.RFC3339),
		Score:       v.Score,
		Rating:      v.Rating(),
		Vector:      v.Vector,
		Description: v.Description,
		References:  refs,
		Source:      v.Source,
		KEV:         v.KEV != nil,
	}
}
