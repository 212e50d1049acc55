package parsers

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyFeed is returned when a feed document decodes but lists no entries
var ErrEmptyFeed = errors.New("feed contains no vulnerabilities")

// feedDocument is the top level of an NVD 2.0 JSON feed
type feedDocument struct {
	Format          string            `json:"format"`
	Version         string            `json:"version"`
	Timestamp       string            `json:"timestamp"`
	Vulnerabilities []json.RawMessage `json:"vulnerabilities"`
}

type feedEntry struct {
	CVE *cveItem `json:"cve"`
}

type cveItem struct {
	ID           *string         `json:"id"`
	Published    json.RawMessage `json:"published"` // Absent, null or a timestamp string
	LastModified string          `json:"lastModified"`
	Descriptions []langString    `json:"descriptions"`
	Metrics      Metrics         `json:"metrics"`
	References   []reference     `json:"references"`
}

type langString struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

type reference struct {
	URL    string `json:"url"`
	Source string `json:"source"`
}

// Metrics is the scoring container of a feed entry. Each family is optional
// and may list several scorers.
type Metrics struct {
	V31 []CVSSMetric `json:"cvssMetricV31,omitempty"`
	V30 []CVSSMetric `json:"cvssMetricV30,omitempty"`
	V2  []CVSSMetric `json:"cvssMetricV2,omitempty"`
}

// CVSSMetric is one scorer's assessment within a family
type CVSSMetric struct {
	Source string   `json:"source"`
	Type   string   `json:"type"`
	Data   CVSSData `json:"cvssData"`
}

// CVSSData holds the base metrics of an assessment
type CVSSData struct {
	Version      string   `json:"version"`
	VectorString string   `json:"vectorString"`
	BaseScore    *float64 `json:"baseScore"`
}

// DecodeFeed splits a decompressed feed document into raw entries, leaving
// each entry undecoded so that a malformed one cannot affect its siblings.
func DecodeFeed(data []byte) ([]json.RawMessage, error) {
	var doc feedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse feed document: %w", err)
	}
	if len(doc.Vulnerabilities) == 0 {
		return nil, ErrEmptyFeed
	}
	return doc.Vulnerabilities, nil
}
