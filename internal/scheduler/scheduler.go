package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/claimwatch/internal/collect"
	"github.com/ppiankov/claimwatch/internal/logging"
	"github.com/ppiankov/claimwatch/internal/model"
)

// Runner is a long-lived loop that returns when ctx ends
type Runner interface {
	Run(ctx context.Context) error
}

// Collector runs one collection pass over every tracked company
type Collector interface {
	CollectAll(ctx context.Context) ([]collect.Report, error)
}

type task struct {
	name string
	fn   func(ctx context.Context) error
}

// Scheduler runs the watchdog, the periodic collection job and any extra
// tasks in one errgroup. The first task to fail cancels the others.
type Scheduler struct {
	watchdog   Runner
	collector  Collector
	watchCfg   model.WatchdogConfig
	collectCfg model.CollectionConfig
	extra      []task
	log        *zap.Logger
}

// New creates a Scheduler. A nil watchdog or collector disables that job.
func New(watchdog Runner, collector Collector, watchCfg model.WatchdogConfig, collectCfg model.CollectionConfig, log *zap.Logger) *Scheduler {
	return &Scheduler{
		watchdog:   watchdog,
		collector:  collector,
		watchCfg:   watchCfg,
		collectCfg: collectCfg,
		log:        logging.OrNop(log),
	}
}

// Go registers an additional task, such as the HTTP server
func (s *Scheduler) Go(name string, fn func(ctx context.Context) error) {
	s.extra = append(s.extra, task{name: name, fn: fn})
}

// Run blocks until ctx is cancelled or a task fails
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.watchdog != nil && s.watchCfg.Enabled {
		g.Go(func() error {
			if err := s.watchdog.Run(ctx); err != nil {
				return fmt.Errorf("watchdog: %w", err)
			}
			return nil
		})
	} else {
		s.log.Info("watchdog disabled")
	}

	if s.collector != nil && s.collectCfg.Enabled {
		g.Go(func() error {
			s.collectLoop(ctx)
			return nil
		})
	} else {
		s.log.Info("scheduled collection disabled")
	}

	for _, t := range s.extra {
		g.Go(func() error {
			if err := t.fn(ctx); err != nil {
				return fmt.Errorf("%s: %w", t.name, err)
			}
			return nil
		})
	}

	return g.Wait()
}

func (s *Scheduler) collectLoop(ctx context.Context) {
	interval := s.collectCfg.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	s.log.Info("collection scheduled", zap.Duration("interval", interval), zap.Bool("on_start", s.collectCfg.OnStart))

	if s.collectCfg.OnStart {
		s.collectOnce(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.collectOnce(ctx)
		}
	}
}

// collectOnce runs a collection pass; a panic or error is logged and the
// schedule continues
func (s *Scheduler) collectOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("collection panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	start := time.Now()
	s.log.Info("starting scheduled collection")
	reports, err := s.collector.CollectAll(ctx)
	if err != nil {
		s.log.Error("scheduled collection failed", zap.Error(err))
		return
	}

	created := 0
	for _, r := range reports {
		created += r.Created
	}
	s.log.Info("scheduled collection finished",
		zap.Int("companies", len(reports)),
		zap.Int("created", created),
		zap.Duration("duration", time.Since(start)))
}
