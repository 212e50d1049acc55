// Package pipeline runs one fetch, filter, dedup and notify pass over the
// NVD feed.
//
// A run assumes it is invoked at least as often as the configured recency
// window (hourly for the default one-hour window). Entries published while
// no run covers the window are never alerted; overlapping runs are safe
// because the store's compare-and-insert admits each ID once.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ethanolivertroy/cve-watch/internal/clients"
	"github.com/ethanolivertroy/cve-watch/internal/metrics"
	"github.com/ethanolivertroy/cve-watch/internal/models"
	"github.com/ethanolivertroy/cve-watch/internal/notify"
	"github.com/ethanolivertroy/cve-watch/internal/parsers"
	"github.com/ethanolivertroy/cve-watch/internal/reporter"
	"github.com/ethanolivertroy/cve-watch/internal/store"
)

// FeedFetcher retrieves a decompressed feed document
type FeedFetcher interface {
	Fetch(ctx context.Context, w clients.FeedWindow) ([]byte, error)
}

// Translator translates descriptions. On failure it returns the input
// unchanged along with the error.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// KEVCatalog retrieves the CISA Known Exploited Vulnerabilities catalog
type KEVCatalog interface {
	FetchCatalog(ctx context.Context) (map[string]models.KEVEntry, error)
}

// Deps are the collaborators a pipeline calls out to
type Deps struct {
	Feed       FeedFetcher
	Store      store.Store
	Translator Translator
	Notifier   notify.Notifier
	KEV        KEVCatalog       // Optional
	Metrics    *metrics.Metrics // Optional
	Now        func() time.Time // Optional, defaults to time.Now
}

// Pipeline orchestrates a single run
type Pipeline struct {
	config     *models.Config
	logger     *zap.Logger
	feed       FeedFetcher
	parser     *parsers.EntryParser
	store      store.Store
	translator Translator
	notifier   notify.Notifier
	kev        KEVCatalog
	metrics    *metrics.Metrics
	now        func() time.Time
	state      State

	// Loaded on the first new record of a run
	kevCatalog map[string]models.KEVEntry
	kevLoaded  bool
}

// New creates a pipeline with the given configuration and collaborators
func New(config *models.Config, logger *zap.Logger, deps Deps) *Pipeline {
	p := &Pipeline{
		config:     config,
		logger:     logger,
		feed:       deps.Feed,
		parser:     parsers.NewEntryParser(config, logger),
		store:      deps.Store,
		translator: deps.Translator,
		notifier:   deps.Notifier,
		kev:        deps.KEV,
		metrics:    deps.Metrics,
		now:        deps.Now,
	}
	if p.metrics == nil {
		p.metrics = metrics.NewMetrics()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// State returns the phase the pipeline is in
func (p *Pipeline) State() State {
	return p.state
}

func (p *Pipeline) enter(s State) {
	p.logger.Debug("Pipeline state", zap.Stringer("from", p.state), zap.Stringer("to", s))
	p.state = s
}

// Run performs one pass. Upstream failures end the run early but are not
// errors; an error is returned only when the store fails, in which case the
// summary still covers the records handled before the failure.
func (p *Pipeline) Run(ctx context.Context) (*models.RunSummary, error) {
	p.state = Idle
	p.kevCatalog, p.kevLoaded = nil, false
	summary := &models.RunSummary{
		StartedAt: p.now(),
		Rejected:  make(map[string]int),
	}

	// Step 1: Fetch the recent feed, falling back to the current year
	p.enter(Fetching)
	entries, window, err := p.fetch(ctx)
	if err != nil {
		p.logger.Error("Failed to fetch any CVE data", zap.Error(err))
		summary.FetchError = err.Error()
		p.summarize(summary)
		return summary, nil
	}
	summary.Window = window.String()
	summary.Entries = len(entries)
	p.metrics.EntriesTotal.Add(float64(len(entries)))
	p.logger.Info("Found CVE items", zap.Int("count", len(entries)), zap.Stringer("window", window))

	// Step 2: Parse, filter, dedup, persist and notify each entry in order
	p.enter(ParsingBatch)
	evalTime := p.now().UTC()
	var runErr error
	for _, raw := range entries {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		p.enter(Filtering)
		v, rej := p.parser.Parse(raw, evalTime)
		if rej != nil {
			summary.Rejected[rej.Reason]++
			p.metrics.RejectedTotal.WithLabelValues(rej.Reason).Inc()
			continue
		}

		if err := p.process(ctx, v, summary); err != nil {
			p.logger.Error("Dedup store failed, aborting run", zap.String("id", v.ID), zap.Error(err))
			runErr = err
			break
		}
	}

	// Step 3: Report what was new
	p.summarize(summary)
	return summary, runErr
}

func (p *Pipeline) fetch(ctx context.Context) ([]json.RawMessage, clients.FeedWindow, error) {
	windows := []clients.FeedWindow{
		clients.RecentWindow(),
		clients.YearWindow(p.now().UTC().Year()),
	}

	var errs []error
	for i, w := range windows {
		if i > 0 {
			p.logger.Warn("Failed to fetch recent data, trying full year data", zap.Stringer("window", w))
		}

		entries, err := p.fetchWindow(ctx, w)
		if err == nil {
			return entries, w, nil
		}

		label := "recent"
		if w.Year != 0 {
			label = "year"
		}
		p.metrics.FetchFailures.WithLabelValues(label).Inc()
		p.logger.Error("Failed to fetch NVD data", zap.Stringer("window", w), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", w, err))
	}

	return nil, clients.FeedWindow{}, errors.Join(errs...)
}

func (p *Pipeline) fetchWindow(ctx context.Context, w clients.FeedWindow) ([]json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	p.logger.Info("Fetching CVE data", zap.Stringer("window", w))
	data, err := p.feed.Fetch(ctx, w)
	if err != nil {
		return nil, err
	}
	return parsers.DecodeFeed(data)
}

// process dedups, persists and notifies one accepted record. Only store
// failures are returned.
func (p *Pipeline) process(ctx context.Context, v models.Vulnerability, summary *models.RunSummary) error {
	p.enter(Deduping)
	exists, err := p.store.Exists(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if exists {
		summary.Duplicates++
		p.metrics.DuplicatesTotal.Inc()
		return nil
	}

	p.enter(Persisting)
	res, err := p.store.Insert(ctx, v)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if res == store.AlreadyPresent {
		// Another run stored it between the check and the insert and owns the alert
		p.logger.Debug("Record stored concurrently, skipping", zap.String("id", v.ID))
		summary.Duplicates++
		p.metrics.DuplicatesTotal.Inc()
		return nil
	}

	v.KEV = p.lookupKEV(ctx, v.ID)
	p.logger.Info("New high-risk vulnerability found",
		zap.String("id", v.ID),
		zap.Float64("score", v.Score),
		zap.String("family", v.Family),
		zap.Bool("kev", v.KEV != nil),
	)
	summary.New = append(summary.New, v)
	p.metrics.NewTotal.Inc()

	p.enter(Notifying)
	if err := p.notify(ctx, v); err != nil {
		summary.NotifyFailures++
		p.metrics.NotifyFailures.Inc()
		p.logger.Error("Failed to send notification", zap.String("id", v.ID), zap.Error(err))
		return nil
	}
	p.logger.Info("Notification sent", zap.String("id", v.ID), zap.String("notifier", p.notifier.Name()))
	return nil
}

// lookupKEV returns the catalog entry for id, or nil when the catalog is not
// configured, could not be fetched, or does not list id
func (p *Pipeline) lookupKEV(ctx context.Context, id string) *models.KEVEntry {
	if p.kev == nil {
		return nil
	}
	if !p.kevLoaded {
		p.kevLoaded = true
		kctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		catalog, err := p.kev.FetchCatalog(kctx)
		cancel()
		if err != nil {
			p.logger.Warn("Failed to fetch KEV catalog, alerts will not be marked", zap.Error(err))
			return nil
		}
		p.kevCatalog = catalog
		p.logger.Debug("Loaded KEV catalog", zap.Int("entries", len(catalog)))
	}
	if entry, ok := p.kevCatalog[id]; ok {
		return &entry
	}
	return nil
}

func (p *Pipeline) notify(ctx context.Context, v models.Vulnerability) error {
	tctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	description, err := p.translator.Translate(tctx, v.Description)
	cancel()
	if err != nil {
		p.logger.Warn("Error translating message", zap.String("id", v.ID), zap.Error(err))
	}

	alert := reporter.RenderAlert(v, description)

	nctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()
	return p.notifier.Notify(nctx, alert)
}

func (p *Pipeline) summarize(summary *models.RunSummary) {
	p.enter(Summarizing)
	summary.FinishedAt = p.now()

	ids := summary.NewIDs()
	p.logger.Info("Monitoring completed",
		zap.Int("new", len(ids)),
		zap.Strings("ids", ids),
		zap.Int("duplicates", summary.Duplicates),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)

	if p.config.SignalFile != "" {
		var err error
		if len(ids) > 0 {
			err = reporter.WriteSignal(p.config.SignalFile, ids)
		} else {
			err = reporter.RemoveSignal(p.config.SignalFile)
		}
		if err != nil {
			p.logger.Error("Failed to update signal file", zap.String("path", p.config.SignalFile), zap.Error(err))
		}
	}

	p.metrics.LastRunTimestamp.Set(float64(summary.FinishedAt.Unix()))
	if summary.Window != "" {
		p.metrics.LastRunSuccess.Set(1)
	} else {
		p.metrics.LastRunSuccess.Set(0)
	}
	if p.config.MetricsFile != "" {
		if err := p.metrics.WriteTextfile(p.config.MetricsFile); err != nil {
			p.logger.Error("Failed to write metrics file", zap.String("path", p.config.MetricsFile), zap.Error(err))
		}
	}

	p.enter(Done)
}
