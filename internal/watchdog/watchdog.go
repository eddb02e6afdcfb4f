package watchdog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/logging"
	"github.com/ppiankov/claimwatch/internal/model"
	"github.com/ppiankov/claimwatch/internal/pipeline"
	"github.com/ppiankov/claimwatch/internal/store"
	"github.com/ppiankov/claimwatch/internal/telemetry"
	"github.com/ppiankov/claimwatch/internal/worker"
)

// Store is the persistence the watchdog polls
type Store interface {
	ListCompanies(ctx context.Context) ([]model.Company, error)
	PendingPosts(ctx context.Context, brand string, tier model.Tier) ([]model.Post, error)
}

// Processor analyses one post and commits the outcome
type Processor interface {
	Process(ctx context.Context, post *model.Post) (*pipeline.Outcome, error)
}

// Dispatcher applies the notification gate to a committed debunk
type Dispatcher interface {
	Dispatch(ctx context.Context, debunk *model.Debunk, post *model.Post, company *model.Company) (bool, error)
}

// Recorder observes watchdog activity
type Recorder interface {
	WatchdogFailed(ctx context.Context, reason string)
	WatchdogCycle(ctx context.Context)
}

// CycleReport summarises one polling cycle
type CycleReport struct {
	ID        string        `json:"id"`
	Companies int           `json:"companies"`
	Pending   int           `json:"pending"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Notified  int           `json:"notified"`
	Duration  time.Duration `json:"duration"`
}

// Watchdog polls for unanalysed High priority posts of every tracked company
// and drives each through analysis, commit and the notification gate
type Watchdog struct {
	store      Store
	processor  Processor
	dispatcher Dispatcher
	recorder   Recorder
	interval   time.Duration
	workers    int
	log        *zap.Logger

	// running guards against overlapping cycles
	running sync.Mutex
}

// New creates a Watchdog
func New(s Store, processor Processor, dispatcher Dispatcher, cfg model.WatchdogConfig, log *zap.Logger) *Watchdog {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Watchdog{
		store:      s,
		processor:  processor,
		dispatcher: dispatcher,
		interval:   interval,
		workers:    workers,
		log:        logging.OrNop(log),
	}
}

// WithRecorder attaches a metrics recorder
func (w *Watchdog) WithRecorder(r Recorder) *Watchdog {
	w.recorder = r
	return w
}

// Run executes a cycle immediately and then on every tick until ctx ends
func (w *Watchdog) Run(ctx context.Context) error {
	w.log.Info("watchdog started", zap.Duration("interval", w.interval), zap.Int("workers", w.workers))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.safeCycle(ctx)

		select {
		case <-ctx.Done():
			w.log.Info("watchdog stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// safeCycle keeps a panicking cycle from stopping the loop
func (w *Watchdog) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("watchdog cycle panicked", zap.Any("panic", r), zap.Stack("stack"))
			w.fail(ctx, "panic")
		}
	}()
	w.RunCycle(ctx)
}

type postResult struct {
	skipped  bool
	notified bool
	err      error
}

func (r postResult) GetError() error {
	return r.err
}

// RunCycle processes every pending High priority post once. Per-post
// failures are logged and counted and never stop the cycle.
func (w *Watchdog) RunCycle(ctx context.Context) CycleReport {
	w.running.Lock()
	defer w.running.Unlock()

	start := time.Now()
	report := CycleReport{ID: uuid.NewString()}
	log := w.log.With(zap.String("cycle_id", report.ID))

	ctx, span := telemetry.StartSpan(ctx, "watchdog.cycle")
	defer span.End()

	companies, err := w.store.ListCompanies(ctx)
	if err != nil {
		log.Error("failed to list companies", zap.Error(err))
		w.fail(ctx, "store")
		return report
	}
	report.Companies = len(companies)

	var jobs []worker.Job
	for i := range companies {
		company := companies[i]
		posts, err := w.store.PendingPosts(ctx, company.Name, model.TierHigh)
		if err != nil {
			log.Error("failed to list pending posts", zap.String("company", company.Name), zap.Error(err))
			w.fail(ctx, "store")
			continue
		}
		for j := range posts {
			post := posts[j]
			jobs = append(jobs, worker.JobFunc(func(ctx context.Context) worker.Result {
				return w.processPost(ctx, log, &company, &post)
			}))
		}
	}
	report.Pending = len(jobs)

	for _, res := range worker.Run(ctx, w.workers, jobs) {
		var pe *worker.PanicError
		switch r := res.(type) {
		case postResult:
			switch {
			case r.skipped:
				report.Skipped++
			case r.err != nil:
				report.Failed++
			default:
				report.Processed++
				if r.notified {
					report.Notified++
				}
			}
		default:
			report.Failed++
			if errors.As(res.GetError(), &pe) {
				log.Error("post processing panicked", zap.Any("panic", pe.Value), zap.ByteString("stack", pe.Stack))
				w.fail(ctx, "panic")
			}
		}
	}

	report.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("claimwatch.pending", report.Pending),
		attribute.Int("claimwatch.processed", report.Processed),
		attribute.Int("claimwatch.failed", report.Failed),
	)
	if w.recorder != nil {
		w.recorder.WatchdogCycle(ctx)
	}
	if report.Pending > 0 {
		log.Info("watchdog cycle finished",
			zap.Int("pending", report.Pending),
			zap.Int("processed", report.Processed),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
			zap.Int("notified", report.Notified),
			zap.Duration("duration", report.Duration))
	}
	return report
}

func (w *Watchdog) processPost(ctx context.Context, log *zap.Logger, company *model.Company, post *model.Post) postResult {
	log = log.With(zap.Uint("post_id", post.ID), zap.String("company", company.Name))
	log.Info("high priority post detected, analysing")

	// 1. Analyse and commit
	outcome, err := w.processor.Process(ctx, post)
	if errors.Is(err, store.ErrAlreadyAnalysed) {
		log.Debug("post already analysed by another worker")
		return postResult{skipped: true}
	}
	if err != nil {
		log.Error("failed to process post", zap.Error(err))
		w.fail(ctx, "commit")
		return postResult{err: err}
	}

	// 2. Notify; a failed send leaves the debunk unflagged
	notified, err := w.dispatcher.Dispatch(ctx, outcome.Debunk, post, company)
	if err != nil {
		log.Warn("notification failed",
			zap.Uint("debunk_id", outcome.Debunk.ID),
			zap.Error(err))
		w.fail(ctx, "notify")
	} else if !notified {
		log.Info("verdict does not warrant an alert", zap.String("verdict", string(outcome.Debunk.Verdict)))
	}
	return postResult{notified: notified}
}

func (w *Watchdog) fail(ctx context.Context, reason string) {
	if w.recorder != nil {
		w.recorder.WatchdogFailed(ctx, reason)
	}
}
