package reporter

import "github.com/ethanolivertroy/cve-watch/internal/models"

// Reporter is the interface for run summary formatters
type Reporter interface {
	// Report generates output for the given run summary
	Report(summary *models.RunSummary) ([]byte, error)
}

// Get returns a reporter for the specified format
func Get(format string) Reporter {
	switch format {
	case "json":
		return &JSONReporter{}
	case "sarif":
		return &SARIFReporter{}
	default:
		return &TerminalReporter{}
	}
}
