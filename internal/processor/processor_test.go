package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pauljones0/hotukdeals-notifier/internal/config"
	"github.com/pauljones0/hotukdeals-notifier/internal/models"
	"github.com/pauljones0/hotukdeals-notifier/internal/notifier"
)

// --- Mock implementations ---

type mockScraper struct {
	mu      sync.Mutex
	results map[string][]models.Deal
	errs    map[string]error
	calls   []string
}

func (m *mockScraper) Fetch(_ context.Context, searchTerm string) ([]models.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, searchTerm)
	if err := m.errs[searchTerm]; err != nil {
		return nil, err
	}
	return m.results[searchTerm], nil
}

type mockStore struct {
	mu        sync.Mutex
	seen      map[string]models.SeenDeal
	existsErr error
	recordErr error
}

func newMockStore() *mockStore {
	return &mockStore{seen: make(map[string]models.SeenDeal)}
}

func (m *mockStore) DealExists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, ok := m.seen[id]
	return ok, nil
}

func (m *mockStore) RecordDeal(_ context.Context, seen models.SeenDeal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	if _, exists := m.seen[seen.DealID]; exists {
		return models.ErrDealExists
	}
	m.seen[seen.DealID] = seen
	return nil
}

type mockNotifier struct {
	mu         sync.Mutex
	deliveries map[string][]models.AcceptedDeal
	errs       map[string]error
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{deliveries: make(map[string][]models.AcceptedDeal), errs: make(map[string]error)}
}

func (m *mockNotifier) Deliver(_ context.Context, webhookURL string, deals []models.AcceptedDeal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[webhookURL] = append(m.deliveries[webhookURL], deals...)
	return m.errs[webhookURL]
}

type staticConfigs []models.ChannelWithConfigs

func (s staticConfigs) LoadGroupedByChannel(context.Context) []models.ChannelWithConfigs {
	return s
}

// --- Helpers ---

func testConfig() *config.Config {
	return &config.Config{
		RunTimeout:         5 * time.Second,
		ChannelConcurrency: 4,
	}
}

func deal(id, title, merchant string) models.Deal {
	return models.Deal{ID: id, Title: title, Merchant: merchant, Link: "https://www.hotukdeals.com/deals/" + id}
}

func group(channelID string, configs ...models.SearchTermConfig) models.ChannelWithConfigs {
	for i := range configs {
		configs[i].ChannelID = channelID
		configs[i].Enabled = true
	}
	return models.ChannelWithConfigs{
		Channel: models.Channel{ChannelID: channelID, Name: "Channel " + channelID, WebhookURL: "https://hooks.test/" + channelID},
		Configs: configs,
	}
}

func term(t string) models.SearchTermConfig {
	return models.SearchTermConfig{SearchTerm: t}
}

func ids(deals []models.AcceptedDeal) []string {
	out := make([]string, len(deals))
	for i, d := range deals {
		out[i] = d.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --- Tests ---

func TestProcessDeals_NoConfigs(t *testing.T) {
	s := &mockScraper{}
	p := New(newMockStore(), newMockNotifier(), s, staticConfigs(nil), testConfig())

	report, err := p.ProcessDeals(context.Background())
	if err != nil {
		t.Fatalf("ProcessDeals() error = %v", err)
	}
	if report.Channels != 0 || len(s.calls) != 0 {
		t.Errorf("Expected no work, got report %+v and fetches %v", report, s.calls)
	}
}

func TestProcessDeals_FiltersDedupsAndBatchesPerChannel(t *testing.T) {
	s := &mockScraper{results: map[string][]models.Deal{
		"ps5":  {deal("1", "PS5 Slim Console", "Argos"), deal("2", "PS5 Refurbished", "eBay"), deal("old", "PS5 Pro", "Currys")},
		"lego": {deal("3", "LEGO Star Wars", "Amazon")},
	}}
	store := newMockStore()
	store.seen["old"] = models.SeenDeal{DealID: "old"}
	n := newMockNotifier()

	ps5 := term("ps5")
	ps5.ExcludeKeywords = []string{"refurb"}
	configs := staticConfigs{group("a", ps5, term("lego"))}

	report, err := New(store, n, s, configs, testConfig()).ProcessDeals(context.Background())
	if err != nil {
		t.Fatalf("ProcessDeals() error = %v", err)
	}

	got := n.deliveries["https://hooks.test/a"]
	if !equalIDs(ids(got), []string{"1", "3"}) {
		t.Fatalf("Delivered %v, want [1 3]", ids(got))
	}
	if got[0].SearchTerm != "ps5" || got[1].SearchTerm != "lego" {
		t.Errorf("Search terms not attached: %+v", got)
	}
	if _, ok := store.seen["2"]; ok {
		t.Error("Filtered deal must not be recorded as seen")
	}
	if store.seen["1"].SearchTerm != "ps5" || store.seen["3"].SearchTerm != "lego" {
		t.Errorf("Seen records carry wrong search terms: %+v", store.seen)
	}
	if report.Channels != 1 || report.SearchTerms != 2 || report.Candidates != 4 || report.NewDeals != 2 || report.Notified != 2 {
		t.Errorf("Unexpected report: %+v", report)
	}
}

func TestProcessDeals_SecondRunSendsNothing(t *testing.T) {
	s := &mockScraper{results: map[string][]models.Deal{"tv": {deal("1", "OLED TV", "Currys")}}}
	store := newMockStore()
	n := newMockNotifier()
	p := New(store, n, s, staticConfigs{group("a", term("tv"))}, testConfig())

	if _, err := p.ProcessDeals(context.Background()); err != nil {
		t.Fatalf("first run error = %v", err)
	}
	report, err := p.ProcessDeals(context.Background())
	if err != nil {
		t.Fatalf("second run error = %v", err)
	}
	if report.NewDeals != 0 || len(n.deliveries["https://hooks.test/a"]) != 1 {
		t.Errorf("Expected one delivery overall, got report %+v and %d delivered", report, len(n.deliveries["https://hooks.test/a"]))
	}
}

func TestProcessDeals_SameDealForTwoTermsInOneChannel(t *testing.T) {
	shared := deal("1", "Nintendo Switch OLED bundle", "Argos")
	s := &mockScraper{results: map[string][]models.Deal{
		"switch":   {shared},
		"nintendo": {shared},
	}}
	n := newMockNotifier()
	configs := staticConfigs{group("a", term("nintendo"), term("switch"))}

	if _, err := New(newMockStore(), n, s, configs, testConfig()).ProcessDeals(context.Background()); err != nil {
		t.Fatalf("ProcessDeals() error = %v", err)
	}
	got := n.deliveries["https://hooks.test/a"]
	if len(got) != 1 || got[0].SearchTerm != "nintendo" {
		t.Errorf("Expected deal once under the first term, got %+v", got)
	}
}

func TestProcessDeals_DealIsNotifiedOnceAcrossChannels(t *testing.T) {
	s := &mockScraper{results: map[string][]models.Deal{"tv": {deal("1", "OLED TV", "Currys")}}}
	n := newMockNotifier()
	cfg := testConfig()
	cfg.ChannelConcurrency = 1

	configs := staticConfigs{group("a", term("tv")), group("b", term("tv"))}
	if _, err := New(newMockStore(), n, s, configs, cfg).ProcessDeals(context.Background()); err != nil {
		t.Fatalf("ProcessDeals() error = %v", err)
	}
	total := len(n.deliveries["https://hooks.test/a"]) + len(n.deliveries["https://hooks.test/b"])
	if total != 1 {
		t.Errorf("Expected the deal to be notified once in total, got %d", total)
	}
}

func TestProcessDeals_PartialFailureIsolation(t *testing.T) {
	s := &mockScraper{
		results: map[string][]models.Deal{
			"lego": {deal("1", "LEGO Technic", "Amazon")},
			"tv":   {deal("2", "OLED TV", "Currys")},
			"ps5":  {deal("3", "PS5 Slim", "Argos")},
		},
		errs: map[string]error{"broken": errors.New("status 503")},
	}
	n := newMockNotifier()
	n.errs["https://hooks.test/b"] = errors.New("webhook gone")

	configs := staticConfigs{
		group("a", term("broken"), term("lego")),
		group("b", term("tv")),
		group("c", term("ps5")),
	}
	report, err := New(newMockStore(), n, s, configs, testConfig()).ProcessDeals(context.Background())
	if err == nil {
		t.Fatal("Expected aggregated error")
	}

	if !equalIDs(ids(n.deliveries["https://hooks.test/a"]), []string{"1"}) {
		t.Errorf("Channel a should still deliver its healthy term, got %v", ids(n.deliveries["https://hooks.test/a"]))
	}
	if !equalIDs(ids(n.deliveries["https://hooks.test/c"]), []string{"3"}) {
		t.Errorf("Channel c should be unaffected, got %v", ids(n.deliveries["https://hooks.test/c"]))
	}
	if len(report.Failures) != 2 {
		t.Fatalf("Expected 2 failures, got %+v", report.Failures)
	}
	if report.Failures[0].ChannelID != "a" || report.Failures[0].Stage != StageFetch || report.Failures[0].SearchTerm != "broken" {
		t.Errorf("Unexpected first failure: %+v", report.Failures[0])
	}
	if report.Failures[1].ChannelID != "b" || report.Failures[1].Stage != StageDeliver {
		t.Errorf("Unexpected second failure: %+v", report.Failures[1])
	}
	if report.NewDeals != 3 || report.Notified != 2 {
		t.Errorf("Expected 3 new and 2 notified, got %+v", report)
	}
}

func TestProcessDeals_PartialDeliveryCountsDeliveredDeals(t *testing.T) {
	var deals []models.Deal
	for _, id := range []string{"1", "2", "3"} {
		deals = append(deals, deal(id, "Deal "+id, "Shop"))
	}
	s := &mockScraper{results: map[string][]models.Deal{"tv": deals}}
	n := newMockNotifier()
	n.errs["https://hooks.test/a"] = &notifier.DeliveryError{Chunks: 2, Failures: []notifier.ChunkFailure{{Index: 1, Deals: 1, Err: errors.New("500")}}}

	report, err := New(newMockStore(), n, s, staticConfigs{group("a", term("tv"))}, testConfig()).ProcessDeals(context.Background())
	if err == nil {
		t.Fatal("Expected error for partial delivery")
	}
	if report.Notified != 2 {
		t.Errorf("Notified = %d, want 2", report.Notified)
	}
}

func TestProcessDeals_DedupCheckErrorSkipsDeal(t *testing.T) {
	s := &mockScraper{results: map[string][]models.Deal{"tv": {deal("1", "OLED TV", "Currys")}}}
	store := newMockStore()
	store.existsErr = errors.New("deadline exceeded")
	n := newMockNotifier()

	report, err := New(store, n, s, staticConfigs{group("a", term("tv"))}, testConfig()).ProcessDeals(context.Background())
	if err == nil {
		t.Fatal("Expected error")
	}
	if len(n.deliveries) != 0 {
		t.Errorf("Deal with failed dedup check must not be delivered, got %+v", n.deliveries)
	}
	if len(report.Failures) != 1 || report.Failures[0].Stage != StageDedup || report.Failures[0].DealID != "1" {
		t.Errorf("Unexpected failures: %+v", report.Failures)
	}
}

func TestProcessDeals_RecordErrorSkipsDeal(t *testing.T) {
	s := &mockScraper{results: map[string][]models.Deal{"tv": {deal("1", "OLED TV", "Currys")}}}
	store := newMockStore()
	store.recordErr = errors.New("permission denied")
	n := newMockNotifier()

	report, _ := New(store, n, s, staticConfigs{group("a", term("tv"))}, testConfig()).ProcessDeals(context.Background())
	if len(n.deliveries) != 0 {
		t.Error("Deal that could not be recorded must not be delivered")
	}
	if len(report.Failures) != 1 || report.Failures[0].Stage != StageRecord {
		t.Errorf("Unexpected failures: %+v", report.Failures)
	}
}

func TestProcessDeals_ConcurrentRecordConflict(t *testing.T) {
	tests := []struct {
		name      string
		strict    bool
		wantCount int
	}{
		{name: "Default keeps deal", strict: false, wantCount: 1},
		{name: "Strict drops deal", strict: true, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &mockScraper{results: map[string][]models.Deal{"tv": {deal("1", "OLED TV", "Currys")}}}
			store := newMockStore()
			store.recordErr = models.ErrDealExists
			n := newMockNotifier()
			cfg := testConfig()
			cfg.DedupStrict = tt.strict

			if _, err := New(store, n, s, staticConfigs{group("a", term("tv"))}, cfg).ProcessDeals(context.Background()); err != nil {
				t.Fatalf("ProcessDeals() error = %v", err)
			}
			if got := len(n.deliveries["https://hooks.test/a"]); got != tt.wantCount {
				t.Errorf("Delivered %d deals, want %d", got, tt.wantCount)
			}
		})
	}
}

func TestProcessDeals_RecordsRetention(t *testing.T) {
	s := &mockScraper{results: map[string][]models.Deal{"tv": {deal("1", "OLED TV", "Currys")}}}
	store := newMockStore()
	cfg := testConfig()
	cfg.DedupRetention = 24 * time.Hour

	p := New(store, newMockNotifier(), s, staticConfigs{group("a", term("tv"))}, cfg)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	if _, err := p.ProcessDeals(context.Background()); err != nil {
		t.Fatalf("ProcessDeals() error = %v", err)
	}
	if got := store.seen["1"].ExpireAt; !got.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("ExpireAt = %v, want %v", got, now.Add(24*time.Hour))
	}
}

type panickingScraper struct{}

func (panickingScraper) Fetch(context.Context, string) ([]models.Deal, error) {
	panic("selector exploded")
}

func TestProcessDeals_PanicIsContainedToChannel(t *testing.T) {
	report, err := New(newMockStore(), newMockNotifier(), panickingScraper{}, staticConfigs{group("a", term("tv"))}, testConfig()).ProcessDeals(context.Background())
	if err == nil || len(report.Failures) != 1 || report.Failures[0].Stage != StagePanic {
		t.Errorf("Expected panic recorded as failure, got %v / %+v", err, report.Failures)
	}
}
