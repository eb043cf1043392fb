package processor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/hotukdeals-notifier/internal/config"
	"github.com/pauljones0/hotukdeals-notifier/internal/filter"
	"github.com/pauljones0/hotukdeals-notifier/internal/models"
	"github.com/pauljones0/hotukdeals-notifier/internal/notifier"
	"github.com/pauljones0/hotukdeals-notifier/internal/scraper"
)

type Processor interface {
	ProcessDeals(ctx context.Context) (RunReport, error)
}

// Failure stages reported per channel.
const (
	StageFetch   = "fetch"
	StageDedup   = "dedup"
	StageRecord  = "record"
	StageDeliver = "deliver"
	StagePanic   = "panic"
)

// ChannelFailure is one problem met while processing a channel. It never
// affects other channels.
type ChannelFailure struct {
	ChannelID  string
	Stage      string
	SearchTerm string
	DealID     string
	Err        error
}

func (f ChannelFailure) Error() string {
	msg := fmt.Sprintf("channel %s: %s", f.ChannelID, f.Stage)
	if f.SearchTerm != "" {
		msg += fmt.Sprintf(" (search term %q)", f.SearchTerm)
	}
	if f.DealID != "" {
		msg += fmt.Sprintf(" (deal %s)", f.DealID)
	}
	return msg + ": " + f.Err.Error()
}

func (f ChannelFailure) Unwrap() error { return f.Err }

// RunReport summarises one orchestrator run.
type RunReport struct {
	Channels    int
	SearchTerms int
	Candidates  int
	NewDeals    int
	Notified    int
	Failures    []ChannelFailure
	Duration    time.Duration
}

type DealProcessor struct {
	store    DealStore
	notifier DealNotifier
	scraper  scraper.Scraper
	configs  ConfigProvider
	config   *config.Config
	now      func() time.Time
}

func New(store DealStore, n DealNotifier, s scraper.Scraper, configs ConfigProvider, cfg *config.Config) *DealProcessor {
	return &DealProcessor{
		store:    store,
		notifier: n,
		scraper:  s,
		configs:  configs,
		config:   cfg,
		now:      time.Now,
	}
}

type channelResult struct {
	searchTerms int
	candidates  int
	newDeals    int
	notified    int
	failures    []ChannelFailure
}

// ProcessDeals runs every channel concurrently, bounded by the configured
// channel concurrency. A channel's failures are collected in the report and
// joined into the returned error; they never cancel other channels.
func (p *DealProcessor) ProcessDeals(ctx context.Context) (RunReport, error) {
	start := p.now()
	if p.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.RunTimeout)
		defer cancel()
	}

	var report RunReport
	groups := p.configs.LoadGroupedByChannel(ctx)
	if len(groups) == 0 {
		slog.Info("No enabled search term configs, nothing to process")
		return report, nil
	}
	report.Channels = len(groups)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(max(p.config.ChannelConcurrency, 1))

	for _, group := range groups {
		g.Go(func() error {
			result := p.safeProcessChannel(ctx, group)

			mu.Lock()
			defer mu.Unlock()
			report.SearchTerms += result.searchTerms
			report.Candidates += result.candidates
			report.NewDeals += result.newDeals
			report.Notified += result.notified
			report.Failures = append(report.Failures, result.failures...)
			return nil
		})
	}
	_ = g.Wait()

	slices.SortStableFunc(report.Failures, func(a, b ChannelFailure) int {
		return cmp.Compare(a.ChannelID, b.ChannelID)
	})
	report.Duration = p.now().Sub(start)

	slog.Info("Finished processing",
		"channels", report.Channels,
		"searchTerms", report.SearchTerms,
		"candidates", report.Candidates,
		"new", report.NewDeals,
		"notified", report.Notified,
		"failures", len(report.Failures),
		"duration", report.Duration,
	)

	if len(report.Failures) > 0 {
		errs := make([]error, len(report.Failures))
		for i, f := range report.Failures {
			errs[i] = f
		}
		return report, fmt.Errorf("processed with errors: %w", errors.Join(errs...))
	}
	return report, nil
}

func (p *DealProcessor) safeProcessChannel(ctx context.Context, group models.ChannelWithConfigs) (result channelResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic while processing channel", "channel", group.Channel.ChannelID, "panic", r)
			result.failures = append(result.failures, ChannelFailure{
				ChannelID: group.Channel.ChannelID,
				Stage:     StagePanic,
				Err:       fmt.Errorf("%v", r),
			})
		}
	}()
	return p.processChannel(ctx, group)
}

// processChannel handles search terms in order so the batch follows term order
// and, within a term, the order the source returned.
func (p *DealProcessor) processChannel(ctx context.Context, group models.ChannelWithConfigs) channelResult {
	var result channelResult
	channelID := group.Channel.ChannelID
	fail := func(stage, term, dealID string, err error) {
		result.failures = append(result.failures, ChannelFailure{ChannelID: channelID, Stage: stage, SearchTerm: term, DealID: dealID, Err: err})
	}

	var batch []models.AcceptedDeal
	inBatch := make(map[string]bool)

	for _, cfg := range group.Configs {
		result.searchTerms++

		deals, err := p.scraper.Fetch(ctx, cfg.SearchTerm)
		if err != nil {
			slog.Warn("Failed to fetch deals for search term", "channel", channelID, "searchTerm", cfg.SearchTerm, "error", err)
			fail(StageFetch, cfg.SearchTerm, "", err)
			continue
		}
		result.candidates += len(deals)

		for _, deal := range deals {
			if inBatch[deal.ID] {
				continue
			}

			exists, err := p.store.DealExists(ctx, deal.ID)
			if err != nil {
				slog.Warn("Skipping deal, dedup check failed", "channel", channelID, "dealId", deal.ID, "error", err)
				fail(StageDedup, cfg.SearchTerm, deal.ID, err)
				continue
			}
			if exists {
				continue
			}

			if !filter.Accepts(deal, cfg) {
				slog.Debug("Deal filtered out", "channel", channelID, "searchTerm", cfg.SearchTerm, "title", deal.Title)
				continue
			}

			if !p.recordSeen(ctx, channelID, cfg.SearchTerm, deal, fail) {
				continue
			}

			inBatch[deal.ID] = true
			batch = append(batch, models.AcceptedDeal{Deal: deal, SearchTerm: cfg.SearchTerm})
		}
	}

	result.newDeals = len(batch)
	if len(batch) == 0 {
		return result
	}

	slog.Info("Delivering new deals", "channel", channelID, "name", group.Channel.Name, "count", len(batch))
	err := p.notifier.Deliver(ctx, group.Channel.WebhookURL, batch)
	result.notified = len(batch)
	if err != nil {
		undelivered := len(batch)
		var deliveryErr *notifier.DeliveryError
		if errors.As(err, &deliveryErr) {
			undelivered = 0
			for _, f := range deliveryErr.Failures {
				undelivered += f.Deals
			}
		}
		result.notified -= undelivered
		slog.Error("Delivery failed, affected deals stay recorded as seen", "channel", channelID, "undelivered", undelivered, "dealIds", dealIDs(batch), "error", err)
		fail(StageDeliver, "", "", err)
	}
	return result
}

// recordSeen writes the seen record and reports whether the deal should be
// notified. A record created concurrently by another run is notified anyway
// unless strict dedup is configured.
func (p *DealProcessor) recordSeen(ctx context.Context, channelID, searchTerm string, deal models.Deal, fail func(stage, term, dealID string, err error)) bool {
	seen := models.NewSeenDeal(deal, searchTerm, p.now(), p.config.DedupRetention)
	err := p.store.RecordDeal(ctx, seen)
	switch {
	case err == nil:
		return true
	case errors.Is(err, models.ErrDealExists):
		if p.config.DedupStrict {
			slog.Info("Dropping deal recorded by a concurrent run", "channel", channelID, "dealId", deal.ID)
			return false
		}
		slog.Warn("Deal recorded by a concurrent run, notifying anyway", "channel", channelID, "dealId", deal.ID)
		return true
	default:
		slog.Warn("Skipping deal, failed to record it as seen", "channel", channelID, "dealId", deal.ID, "error", err)
		fail(StageRecord, searchTerm, deal.ID, err)
		return false
	}
}

func dealIDs(deals []models.AcceptedDeal) []string {
	ids := make([]string, len(deals))
	for i, d := range deals {
		ids[i] = d.ID
	}
	return ids
}
