package models

import "time"

// Sentinel values used when the feed omits optional data
const (
	NoDescription = "No description available"
	NoVector      = "N/A"
	SourceNVD     = "NVD"
)

// MaxReferences caps the reference URLs carried by a record
const MaxReferences = 3

// Vulnerability is a normalized feed entry that passed filtering
type Vulnerability struct {
	ID          string
	PublishedAt time.Time
	Score       float64
	Vector      string
	Family      string // Scoring family the score was taken from
	Description string
	References  []string
	Source      string

	KEV *KEVEntry // Set when the ID is in the CISA KEV catalog; not persisted
}

// KEVEntry is the CISA Known Exploited Vulnerabilities record for a CVE
type KEVEntry struct {
	VendorProject     string
	Product           string
	VulnerabilityName string
	DateAdded         time.Time
	DueDate           time.Time
	RequiredAction    string
	RansomwareUse     bool
}

// Rating returns the qualitative severity rating for the record's score
func (v Vulnerability) Rating() string {
	return SeverityRating(v.Score)
}

// SeverityRating returns the severity rating for a given CVSS score
func SeverityRating(score float64) string {
	switch {
	case score == 0:
		return "NONE"
	case score < 4.0:
		return "LOW"
	case score < 7.0:
		return "MEDIUM"
	case score < 9.0:
		return "HIGH"
	default:
		return "CRITICAL"
	}
}

// Alert is a rendered notification for one record
type Alert struct {
	Title string
	Body  string
	Tags  []string
}

// RunSummary describes the outcome of a single pipeline run
type RunSummary struct {
	StartedAt  time.Time
	FinishedAt time.Time

	Window     string // Feed window that produced the entries, empty if both fetches failed
	FetchError string

	Entries        int
	Rejected       map[string]int // Rejection reason -> count
	Duplicates     int
	NotifyFailures int

	New []Vulnerability
}

// NewIDs returns the identifiers of the newly observed records in feed order
func (s *RunSummary) NewIDs() []string {
	ids := make([]string, 0, len(s.New))
	for _, v := range s.New {
		ids = append(ids, v.ID)
	}
	return ids
}
