package collect

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/ingest"
	"github.com/ppiankov/claimwatch/internal/logging"
	"github.com/ppiankov/claimwatch/internal/model"
	"github.com/ppiankov/claimwatch/internal/worker"
)

// NewSources builds every source collaborator from configuration. Sources
// without credentials are included and report Enabled false.
func NewSources(cfg model.SourcesConfig, client *http.Client, limiter *worker.Limiter) []Source {
	return []Source{
		NewNewsAPISource(cfg.NewsAPIKey, cfg.MaxItems, client, limiter),
		NewRedditSource(cfg.RedditClientID, cfg.RedditClientSecret, cfg.RedditUserAgent, client, limiter),
		NewYouTubeSource(cfg.YouTubeAPIKey, client, limiter),
		NewSerpNewsSource(cfg.SerpAPIKey, client, limiter),
		NewRSSSource(cfg.RSSURLTemplate, cfg.MaxItems, cfg.RSSEnabled, client, limiter),
	}
}

// CompanyLister lists the tracked brands
type CompanyLister interface {
	ListCompanies(ctx context.Context) ([]model.Company, error)
}

// Report summarises one brand's collection run
type Report struct {
	Brand         string         `json:"brand"`
	Sources       map[string]int `json:"sources"`
	FailedSources []string       `json:"failed_sources,omitempty"`
	ingest.Summary
}

// Collector fans sources out over a worker pool and ingests what they return
type Collector struct {
	sources    []Source
	normalizer *ingest.Normalizer
	companies  CompanyLister
	workers    int
	log        *zap.Logger
}

// NewCollector creates a Collector
func NewCollector(sources []Source, normalizer *ingest.Normalizer, companies CompanyLister, workers int, log *zap.Logger) *Collector {
	if workers <= 0 {
		workers = 1
	}
	return &Collector{
		sources:    sources,
		normalizer: normalizer,
		companies:  companies,
		workers:    workers,
		log:        logging.OrNop(log),
	}
}

// Sources returns the configured sources
func (c *Collector) Sources() []Source {
	return c.sources
}

type sourceResult struct {
	name  string
	items []model.RawItem
	err   error
}

func (r sourceResult) GetError() error {
	return r.err
}

// CollectCompany queries every enabled source for brand and ingests the
// results. A failing source contributes zero items.
func (c *Collector) CollectCompany(ctx context.Context, brand string) Report {
	report := Report{Brand: brand, Sources: make(map[string]int)}

	var jobs []worker.Job
	for _, src := range c.sources {
		if !src.Enabled() {
			c.log.Debug("source not configured, skipping", zap.String("source", src.Name()))
			continue
		}
		jobs = append(jobs, worker.JobFunc(func(ctx context.Context) worker.Result {
			items, err := src.Collect(ctx, brand)
			return sourceResult{name: src.Name(), items: items, err: err}
		}))
	}

	byName := make(map[string][]model.RawItem)
	for _, res := range worker.Run(ctx, c.workers, jobs) {
		sr, ok := res.(sourceResult)
		if !ok {
			var pe *worker.PanicError
			if errors.As(res.GetError(), &pe) {
				c.log.Error("source panicked", zap.String("brand", brand), zap.Any("panic", pe.Value))
			}
			report.FailedSources = append(report.FailedSources, "unknown")
			continue
		}
		if sr.err != nil {
			c.log.Warn("source failed",
				zap.String("source", sr.name),
				zap.String("brand", brand),
				zap.Error(sr.err))
			report.FailedSources = append(report.FailedSources, sr.name)
			report.Sources[sr.name] = 0
			continue
		}
		byName[sr.name] = sr.items
		report.Sources[sr.name] = len(sr.items)
	}

	// ingest in source order so repeated runs are reproducible
	var all []model.RawItem
	for _, src := range c.sources {
		for _, item := range byName[src.Name()] {
			if item.Brand == "" {
				item.Brand = brand
			}
			all = append(all, item)
		}
	}

	report.Summary = c.normalizer.IngestAll(ctx, all)
	c.log.Info("collection finished",
		zap.String("brand", brand),
		zap.Int("seen", report.Seen),
		zap.Int("created", report.Created),
		zap.Int("high", report.High),
		zap.Int("failed_sources", len(report.FailedSources)))
	return report
}

// CollectAll runs CollectCompany for every tracked company in turn
func (c *Collector) CollectAll(ctx context.Context) ([]Report, error) {
	companies, err := c.companies.ListCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	if len(companies) == 0 {
		c.log.Info("no companies tracked, nothing to collect")
		return nil, nil
	}

	reports := make([]Report, 0, len(companies))
	for _, company := range companies {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		reports = append(reports, c.CollectCompany(ctx, company.Name))
	}
	return reports, nil
}
