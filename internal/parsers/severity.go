package parsers

import (
	gocvss20 "github.com/pandatix/go-cvss/20"
	gocvss30 "github.com/pandatix/go-cvss/30"
	gocvss31 "github.com/pandatix/go-cvss/31"

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// Scoring families in priority order
const (
	FamilyV31  = "cvssMetricV31"
	FamilyV30  = "cvssMetricV30"
	FamilyV2   = "cvssMetricV2"
	FamilyNone = ""
)

// Severity is the canonical score resolved for one entry
type Severity struct {
	Score  float64
	Vector string
	Family string
}

// ExtractSeverity resolves a single (score, vector) pair. The newest family
// present wins and only its first scorer is consulted; sibling families are
// ignored even when their values differ.
func ExtractSeverity(m Metrics) Severity {
	families := []struct {
		name    string
		metrics []CVSSMetric
	}{
		{FamilyV31, m.V31},
		{FamilyV30, m.V30},
		{FamilyV2, m.V2},
	}

	for _, f := range families {
		if len(f.metrics) == 0 {
			continue
		}
		data := f.metrics[0].Data
		sev := Severity{Vector: data.VectorString, Family: f.name}
		if sev.Vector == "" {
			sev.Vector = models.NoVector
		}
		if data.BaseScore != nil {
			sev.Score = *data.BaseScore
		} else {
			sev.Score = scoreFromVector(f.name, data.VectorString)
		}
		return sev
	}

	return Severity{Score: 0, Vector: models.NoVector, Family: FamilyNone}
}

// scoreFromVector computes the base score when the feed omits it.
// Unparseable vectors score 0.
func scoreFromVector(family, vector string) float64 {
	if vector == "" {
		return 0
	}
	switch family {
	case FamilyV31:
		if v, err := gocvss31.ParseVector(vector); err == nil {
			return v.BaseScore()
		}
	case FamilyV30:
		if v, err := gocvss30.ParseVector(vector); err == nil {
			return v.BaseScore()
		}
	case FamilyV2:
		if v, err := gocvss20.ParseVector(vector); err == nil {
			return v.BaseScore()
		}
	}
	return 0
}
