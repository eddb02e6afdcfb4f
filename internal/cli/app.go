package cli

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/api"
	"github.com/ppiankov/claimwatch/internal/cache"
	"github.com/ppiankov/claimwatch/internal/collect"
	"github.com/ppiankov/claimwatch/internal/evidence"
	"github.com/ppiankov/claimwatch/internal/fetch"
	"github.com/ppiankov/claimwatch/internal/ingest"
	"github.com/ppiankov/claimwatch/internal/llm"
	"github.com/ppiankov/claimwatch/internal/logging"
	"github.com/ppiankov/claimwatch/internal/model"
	"github.com/ppiankov/claimwatch/internal/notify"
	"github.com/ppiankov/claimwatch/internal/pipeline"
	"github.com/ppiankov/claimwatch/internal/scheduler"
	"github.com/ppiankov/claimwatch/internal/score"
	"github.com/ppiankov/claimwatch/internal/store"
	"github.com/ppiankov/claimwatch/internal/telemetry"
	"github.com/ppiankov/claimwatch/internal/util"
	"github.com/ppiankov/claimwatch/internal/watchdog"
	"github.com/ppiankov/claimwatch/internal/worker"
)

// app holds every wired component. Commands that only touch the store use
// openStore instead.
type app struct {
	cfg *model.Config
	log *zap.Logger

	store      *store.Store
	telemetry  *telemetry.Telemetry
	cache      cache.Cache
	processor  *pipeline.Processor
	manual     *pipeline.ManualAnalyzer
	collector  *collect.Collector
	dispatcher *notify.Dispatcher
	watchdog   *watchdog.Watchdog
}

// openStore opens and migrates the database
func openStore(ctx context.Context, cfg *model.Config) (*store.Store, error) {
	st, err := store.Open(cfg.Database, cfg.Logging.Level, logging.WithComponent("store"))
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// newApp wires the full component graph from cfg
func newApp(ctx context.Context, cfg *model.Config) (_ *app, err error) {
	log := logging.Get()
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// 1. Store
	if a.store, err = openStore(ctx, cfg); err != nil {
		return nil, err
	}

	// 2. Telemetry
	if a.telemetry, err = telemetry.Init(cfg.Telemetry, Version, logging.WithComponent("telemetry")); err != nil {
		return nil, err
	}

	// 3. Outbound HTTP shared by sources, evidence search and article fetches
	client := util.NewHTTPClient(cfg.HTTP)
	limiter := worker.NewLimiter(cfg.HTTP.RequestsPerSecond, cfg.HTTP.Burst)

	// 4. Claim pipeline
	if a.cache, err = cache.New(ctx, cfg.Cache, logging.WithComponent("cache")); err != nil {
		return nil, err
	}
	searcher, err := evidence.New(cfg.Evidence, cfg.Sources, cfg.Authority, client, limiter, a.cache, logging.WithComponent("evidence"))
	if err != nil {
		return nil, err
	}
	oracle := llm.NewOracle(llm.ConfigFromModel(cfg.LLM, cfg.HTTP), logging.WithComponent("oracle"))
	claims := pipeline.NewClaimPipeline(oracle, searcher, cfg.LLM.Timeout, logging.WithComponent("pipeline"))
	a.processor = pipeline.NewProcessor(claims, a.store, logging.WithComponent("processor")).WithRecorder(a.telemetry)
	a.manual = pipeline.NewManualAnalyzer(a.store, a.processor, fetch.NewFetcher(client, cfg.HTTP, limiter), logging.WithComponent("manual"))

	// 5. Ingestion and collection
	scorer, err := score.NewScorer(cfg.Priority)
	if err != nil {
		return nil, fmt.Errorf("priority policy: %w", err)
	}
	normalizer := ingest.NewNormalizer(a.store, scorer, logging.WithComponent("ingest")).WithRecorder(a.telemetry)
	sources := collect.NewSources(cfg.Sources, client, limiter)
	a.collector = collect.NewCollector(sources, normalizer, a.store, cfg.Collection.Workers, logging.WithComponent("collector"))
	for _, src := range sources {
		if !src.Enabled() {
			log.Debug("source disabled: missing credentials", zap.String("source", src.Name()))
		}
	}

	// 6. Notification and watchdog
	notifier := notify.NewNotifier(cfg.SMTP, logging.WithComponent("notify"))
	a.dispatcher = notify.NewDispatcher(notifier, a.store, cfg.SMTP.Sender, logging.WithComponent("notify")).WithRecorder(a.telemetry)
	a.watchdog = watchdog.New(a.store, a.processor, a.dispatcher, cfg.Watchdog, logging.WithComponent("watchdog")).WithRecorder(a.telemetry)

	return a, nil
}

// scheduler builds the background job runner
func (a *app) scheduler() *scheduler.Scheduler {
	return scheduler.New(a.watchdog, a.collector, a.cfg.Watchdog, a.cfg.Collection, logging.WithComponent("scheduler"))
}

// server builds the operator HTTP surface
func (a *app) server() *api.Server {
	deps := api.Deps{
		Store:     a.store,
		Processor: a.processor,
		Manual:    a.manual,
		Collector: a.collector,
		Resender:  a.dispatcher,
		Metrics:   a.telemetry.Handler(),
	}
	return api.NewServer(deps, a.cfg.API, Version, logging.WithComponent("api"))
}

// Close releases every resource newApp acquired
func (a *app) Close() {
	if a == nil {
		return
	}
	if closer, ok := a.cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.log.Warn("close cache", zap.Error(err))
		}
	}
	a.telemetry.Shutdown()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("close store", zap.Error(err))
		}
	}
}
