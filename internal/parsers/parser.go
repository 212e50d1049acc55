package parsers

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ethanolivertroy/cve-watch/internal/models"
)

// Rejection reasons
const (
	RejectStructural = "structural"
	RejectStale      = "stale"
	RejectSeverity   = "severity"
)

// Rejection explains why a feed entry did not become a record
type Rejection struct {
	Reason string
	ID     string // Empty when the identifier itself is missing
	Field  string // Offending key for structural rejections
	Err    error
}

func (r *Rejection) Error() string {
	msg := r.Reason + " rejection"
	if r.ID != "" {
		msg += " of " + r.ID
	}
	if r.Field != "" {
		msg += ": missing or invalid key " + r.Field
	}
	if r.Err != nil {
		msg += ": " + r.Err.Error()
	}
	return msg
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// EntryParser turns raw feed entries into records
type EntryParser struct {
	Threshold float64
	Recency   RecencyFilter
	logger    *zap.Logger
}

// NewEntryParser creates a parser using the configured threshold and window
func NewEntryParser(config *models.Config, logger *zap.Logger) *EntryParser {
	return &EntryParser{
		Threshold: config.Threshold,
		Recency:   RecencyFilter{Window: config.Window},
		logger:    logger,
	}
}

// Parse converts one raw entry evaluated at now. Exactly one of the results
// is meaningful: a nil rejection means the record qualifies for alerting.
func (p *EntryParser) Parse(raw json.RawMessage, now time.Time) (models.Vulnerability, *Rejection) {
	var entry feedEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		field := ""
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			field = typeErr.Field
		}
		return p.structural("", field, err)
	}

	cve := entry.CVE
	if cve == nil {
		return p.structural("", "cve", nil)
	}
	if cve.ID == nil || *cve.ID == "" {
		return p.structural("", "cve.id", nil)
	}
	id := *cve.ID
	if len(cve.Published) == 0 {
		return p.structural(id, "cve.published", nil)
	}

	// A null or non-string date is a temporal failure, not a structural one
	var published *string
	if err := json.Unmarshal(cve.Published, &published); err != nil || published == nil {
		p.logger.Debug("Skipping entry without a usable publication date", zap.String("id", id), zap.ByteString("published", cve.Published))
		return models.Vulnerability{}, &Rejection{Reason: RejectStale, ID: id, Err: fmt.Errorf("publication date is %s", cve.Published)}
	}

	publishedAt, recent, err := p.Recency.IsRecent(*published, now)
	if err != nil {
		p.logger.Debug("Skipping entry with unparseable publication date", zap.String("id", id), zap.Error(err))
		return models.Vulnerability{}, &Rejection{Reason: RejectStale, ID: id, Err: err}
	}
	if !recent {
		p.logger.Debug("Skipping entry that is not recent", zap.String("id", id), zap.String("published", *published))
		return models.Vulnerability{}, &Rejection{Reason: RejectStale, ID: id}
	}

	sev := ExtractSeverity(cve.Metrics)
	if sev.Score < p.Threshold {
		return models.Vulnerability{}, &Rejection{
			Reason: RejectSeverity,
			ID:     id,
			Err:    fmt.Errorf("score %.1f below threshold %.1f", sev.Score, p.Threshold),
		}
	}

	return models.Vulnerability{
		ID:          id,
		PublishedAt: publishedAt,
		Score:       sev.Score,
		Vector:      sev.Vector,
		Family:      sev.Family,
		Description: englishDescription(cve.Descriptions),
		References:  firstReferences(cve.References, models.MaxReferences),
		Source:      models.SourceNVD,
	}, nil
}

func (p *EntryParser) structural(id, field string, err error) (models.Vulnerability, *Rejection) {
	rej := &Rejection{Reason: RejectStructural, ID: id, Field: field, Err: err}
	p.logger.Error("Error parsing feed entry", zap.String("id", id), zap.String("key", field), zap.Error(err))
	return models.Vulnerability{}, rej
}

func englishDescription(descs []langString) string {
	for _, d := range descs {
		if d.Lang == "en" {
			return d.Value
		}
	}
	return models.NoDescription
}

func firstReferences(refs []reference, limit int) []string {
	urls := make([]string, 0, limit)
	for _, r := range refs {
		if len(urls) == limit {
			break
		}
		if r.URL == "" {
			continue
		}
		urls = append(urls, r.URL)
	}
	return urls
}
