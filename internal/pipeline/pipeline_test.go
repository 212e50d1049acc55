package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ethanolivertroy/cve-watch/internal/clients"
	"github.com/ethanolivertroy/cve-watch/internal/metrics"
	"github.com/ethanolivertroy/cve-watch/internal/models"
	"github.com/ethanolivertroy/cve-watch/internal/store"
)

var now = time.Date(2099, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeFeed struct {
	docs  map[string][]byte
	errs  map[string]error
	calls []string
}

func (f *fakeFeed) Fetch(ctx context.Context, w clients.FeedWindow) ([]byte, error) {
	f.calls = append(f.calls, w.String())
	if err := f.errs[w.String()]; err != nil {
		return nil, err
	}
	if doc, ok := f.docs[w.String()]; ok {
		return doc, nil
	}
	return nil, errors.New("not found")
}

type recordingNotifier struct {
	alerts []models.Alert
	err    error
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(ctx context.Context, alert models.Alert) error {
	r.alerts = append(r.alerts, alert)
	return r.err
}

type stubTranslator struct {
	err error
}

func (s stubTranslator) Translate(ctx context.Context, text string) (string, error) {
	if s.err != nil {
		return text, s.err
	}
	return "[zh] " + text, nil
}

type fakeKEV struct {
	catalog map[string]models.KEVEntry
	err     error
	calls   int
}

func (f *fakeKEV) FetchCatalog(ctx context.Context) (map[string]models.KEVEntry, error) {
	f.calls++
	return f.catalog, f.err
}

type entry struct {
	id        string
	published time.Time
	score     float64
}

func feedDoc(entries ...entry) []byte {
	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, map[string]any{
			"cve": map[string]any{
				"id":           e.id,
				"published":    e.published.Format("2006-01-02T15:04:05.000"),
				"descriptions": []map[string]string{{"lang": "en", "value": "Issue in " + e.id}},
				"metrics": map[string]any{
					"cvssMetricV31": []map[string]any{{
						"cvssData": map[string]any{
							"vectorString": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H",
							"baseScore":    e.score,
						},
					}},
				},
				"references": []map[string]string{{"url": "https://nvd.example/" + e.id}},
			},
		})
	}
	data, _ := json.Marshal(map[string]any{"vulnerabilities": items})
	return data
}

type harness struct {
	config   *models.Config
	feed     *fakeFeed
	store    store.Store
	notifier *recordingNotifier
	metrics  *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	dir := t.TempDir()
	cfg := models.DefaultConfig()
	cfg.SignalFile = filepath.Join(dir, "new_vulns.flag")
	cfg.Store.Path = filepath.Join(dir, "vulns.db")

	s, err := store.NewSQLiteStore(cfg.Store.Path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return &harness{
		config:   cfg,
		feed:     &fakeFeed{docs: map[string][]byte{}, errs: map[string]error{}},
		store:    s,
		notifier: &recordingNotifier{},
		metrics:  metrics.NewMetrics(),
	}
}

func (h *harness) pipeline(t *testing.T) *Pipeline {
	return New(h.config, zaptest.NewLogger(t), Deps{
		Feed:       h.feed,
		Store:      h.store,
		Translator: stubTranslator{},
		Notifier:   h.notifier,
		Metrics:    h.metrics,
		Now:        func() time.Time { return now },
	})
}

func readSignal(t *testing.T, path string) string {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRun_NewRecordThenIdempotent(t *testing.T) {
	h := newHarness(t)
	h.feed.docs["recent"] = feedDoc(entry{"CVE-2099-0001", now.Add(-10 * time.Minute), 9.8})

	p := h.pipeline(t)
	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Done, p.State())
	assert.Equal(t, "recent", summary.Window)
	assert.Equal(t, []string{"CVE-2099-0001"}, summary.NewIDs())

	require.Len(t, h.notifier.alerts, 1)
	assert.Contains(t, h.notifier.alerts[0].Title, "CVE-2099-0001")
	assert.Contains(t, h.notifier.alerts[0].Body, "[zh] Issue in CVE-2099-0001")
	assert.Equal(t, "1\nCVE-2099-0001", readSignal(t, h.config.SignalFile))

	exists, err := h.store.Exists(context.Background(), "CVE-2099-0001")
	require.NoError(t, err)
	assert.True(t, exists)

	// Same snapshot again
	summary, err = h.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.New)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Len(t, h.notifier.alerts, 1, "no duplicate notification")

	_, err = os.Stat(h.config.SignalFile)
	assert.True(t, os.IsNotExist(err), "stale signal removed when nothing is new")
}

func TestRun_BelowThresholdNeverStored(t *testing.T) {
	h := newHarness(t)
	h.feed.docs["recent"] = feedDoc(entry{"CVE-2099-0002", now.Add(-5 * time.Minute), 5.0})

	summary, err := h.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.New)
	assert.Equal(t, 1, summary.Rejected["severity"])
	assert.Empty(t, h.notifier.alerts)

	list, err := h.store.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = os.Stat(h.config.SignalFile)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_FallbackToYear(t *testing.T) {
	h := newHarness(t)
	h.feed.errs["recent"] = errors.New("connection reset")
	h.feed.docs["2099"] = feedDoc(entry{"CVE-2099-0003", now.Add(-30 * time.Minute), 8.1})

	summary, err := h.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"recent", "2099"}, h.feed.calls)
	assert.Equal(t, "2099", summary.Window)
	assert.Equal(t, []string{"CVE-2099-0003"}, summary.NewIDs())
	assert.Len(t, h.notifier.alerts, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.FetchFailures.WithLabelValues("recent")))
}

func TestRun_FallbackOnEmptyRecentFeed(t *testing.T) {
	h := newHarness(t)
	h.feed.docs["recent"] = []byte(`{"vulnerabilities":[]}`)
	h.feed.docs["2099"] = feedDoc(entry{"CVE-2099-0004", now.Add(-1 * time.Minute), 7.0})

	summary, err := h.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2099", summary.Window)
	assert.Len(t, summary.New, 1)
}

func TestRun_BothFetchesFail(t *testing.T) {
	h := newHarness(t)
	h.feed.errs["recent"] = errors.New("timeout")
	h.feed.docs["2099"] = []byte("{not json")

	p := h.pipeline(t)
	summary, err := p.Run(context.Background())
	require.NoError(t, err, "upstream failure is not fatal")
	assert.Equal(t, Done, p.State())
	assert.Empty(t, summary.Window)
	assert.NotEmpty(t, summary.FetchError)
	assert.Zero(t, summary.Entries)
	assert.Empty(t, h.notifier.alerts)

	_, err = os.Stat(h.config.SignalFile)
	assert.True(t, os.IsNotExist(err), "artifact not written")
}

func TestRun_EntryIsolation(t *testing.T) {
	h := newHarness(t)
	good1 := feedDoc(entry{"CVE-2099-0010", now.Add(-1 * time.Minute), 9.0})
	good2 := feedDoc(entry{"CVE-2099-0011", now.Add(-2 * time.Minute), 7.5})

	var d1, d2 struct {
		Vulnerabilities []json.RawMessage `json:"vulnerabilities"`
	}
	require.NoError(t, json.Unmarshal(good1, &d1))
	require.NoError(t, json.Unmarshal(good2, &d2))

	raw := []json.RawMessage{
		d1.Vulnerabilities[0],
		json.RawMessage(`{"cve":{"published":"2099-03-01T11:59:00.000"}}`),
		json.RawMessage(`{"cve":{"id":"CVE-2099-0012","published":"garbage"}}`),
		json.RawMessage(`"just a string"`),
		d2.Vulnerabilities[0],
	}
	doc, _ := json.Marshal(map[string]any{"vulnerabilities": raw})
	h.feed.docs["recent"] = doc

	summary, err := h.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Entries)
	assert.Equal(t, []string{"CVE-2099-0010", "CVE-2099-0011"}, summary.NewIDs(), "feed order preserved")
	assert.Equal(t, 2, summary.Rejected["structural"])
	assert.Equal(t, 1, summary.Rejected["stale"])
	assert.Equal(t, "2\nCVE-2099-0010\nCVE-2099-0011", readSignal(t, h.config.SignalFile))
}

func TestRun_NotificationFailureKeepsRecord(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("push service down")
	h.feed.docs["recent"] = feedDoc(
		entry{"CVE-2099-0020", now.Add(-1 * time.Minute), 9.1},
		entry{"CVE-2099-0021", now.Add(-2 * time.Minute), 9.2},
	)

	summary, err := h.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, summary.New, 2, "siblings still processed")
	assert.Equal(t, 2, summary.NotifyFailures)
	assert.Len(t, h.notifier.alerts, 2)

	list, err := h.store.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, list, 2, "persistence not rolled back")
}

func TestRun_TranslationFailureUsesOriginal(t *testing.T) {
	h := newHarness(t)
	h.feed.docs["recent"] = feedDoc(entry{"CVE-2099-0030", now.Add(-1 * time.Minute), 9.0})

	p := New(h.config, zaptest.NewLogger(t), Deps{
		Feed:       h.feed,
		Store:      h.store,
		Translator: stubTranslator{err: errors.New("translate timeout")},
		Notifier:   h.notifier,
		Now:        func() time.Time { return now },
	})

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, h.notifier.alerts, 1)
	assert.Contains(t, h.notifier.alerts[0].Body, "Issue in CVE-2099-0030")
	assert.NotContains(t, h.notifier.alerts[0].Body, "[zh]")
}

func TestRun_ThresholdInvariant(t *testing.T) {
	h := newHarness(t)
	var entries []entry
	for i, score := range []float64{0, 3.9, 6.9, 7.0, 7.1, 8.8, 10} {
		entries = append(entries, entry{fmt.Sprintf("CVE-2099-01%02d", i), now.Add(-time.Minute), score})
	}
	h.feed.docs["recent"] = feedDoc(entries...)

	summary, err := h.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Rejected["severity"])

	list, err := h.store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 4)
	seen := map[string]bool{}
	for _, v := range list {
		assert.GreaterOrEqual(t, v.Score, h.config.Threshold)
		assert.False(t, seen[v.ID])
		seen[v.ID] = true
	}
}

// racingStore reports every ID as absent but lets the real store decide on
// insert, like a concurrent run winning between the check and the insert
type racingStore struct {
	store.Store
}

func (r racingStore) Exists(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func TestRun_LostInsertRaceNotNotified(t *testing.T) {
	h := newHarness(t)
	v := models.Vulnerability{ID: "CVE-2099-0040", PublishedAt: now, Score: 9, Source: models.SourceNVD}
	_, err := h.store.Insert(context.Background(), v)
	require.NoError(t, err)

	h.feed.docs["recent"] = feedDoc(entry{"CVE-2099-0040", now.Add(-1 * time.Minute), 9.0})
	h.store = racingStore{h.store}

	summary, err := h.pipeline(t).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.New)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Empty(t, h.notifier.alerts)
}

type brokenStore struct {
	store.Store
}

func (b brokenStore) Exists(ctx context.Context, id string) (bool, error) {
	return false, errors.New("disk I/O error")
}

func TestRun_StoreFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.feed.docs["recent"] = feedDoc(entry{"CVE-2099-0050", now.Add(-1 * time.Minute), 9.0})
	h.store = brokenStore{h.store}

	p := h.pipeline(t)
	summary, err := p.Run(context.Background())
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.NotNil(t, summary)
	assert.Equal(t, Done, p.State())
	assert.Empty(t, h.notifier.alerts)
}

func TestRun_MetricsFile(t *testing.T) {
	h := newHarness(t)
	h.config.MetricsFile = filepath.Join(t.TempDir(), "cvewatch.prom")
	h.feed.docs["recent"] = feedDoc(entry{"CVE-2099-0060", now.Add(-1 * time.Minute), 9.0})

	_, err := h.pipeline(t).Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(h.config.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cvewatch_new_vulnerabilities_total 1")
	assert.Contains(t, string(data), "cvewatch_last_run_success 1")
}

func TestRun_MarksKnownExploited(t *testing.T) {
	h := newHarness(t)
	h.feed.docs["recent"] = feedDoc(
		entry{"CVE-2099-0070", now.Add(-1 * time.Minute), 9.0},
		entry{"CVE-2099-0071", now.Add(-2 * time.Minute), 9.0},
	)
	kev := &fakeKEV{catalog: map[string]models.KEVEntry{
		"CVE-2099-0071": {VulnerabilityName: "Widget RCE", DateAdded: now},
	}}

	p := New(h.config, zaptest.NewLogger(t), Deps{
		Feed:       h.feed,
		Store:      h.store,
		Translator: stubTranslator{},
		Notifier:   h.notifier,
		KEV:        kev,
		Now:        func() time.Time { return now },
	})
	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.New, 2)
	assert.Nil(t, summary.New[0].KEV)
	require.NotNil(t, summary.New[1].KEV)
	assert.Equal(t, "Widget RCE", summary.New[1].KEV.VulnerabilityName)
	assert.Equal(t, 1, kev.calls, "catalog fetched once per run")
	assert.Contains(t, h.notifier.alerts[1].Tags, "kev")
}

func TestRun_KEVFailureStillAlerts(t *testing.T) {
	h := newHarness(t)
	h.feed.docs["recent"] = feedDoc(entry{"CVE-2099-0080", now.Add(-1 * time.Minute), 9.0})
	kev := &fakeKEV{err: errors.New("github unavailable")}

	p := New(h.config, zaptest.NewLogger(t), Deps{
		Feed:       h.feed,
		Store:      h.store,
		Translator: stubTranslator{},
		Notifier:   h.notifier,
		KEV:        kev,
		Now:        func() time.Time { return now },
	})
	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.New, 1)
	assert.Nil(t, summary.New[0].KEV)
	assert.Len(t, h.notifier.alerts, 1)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "parsing-batch", ParsingBatch.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "unknown", State(99).String())
}
