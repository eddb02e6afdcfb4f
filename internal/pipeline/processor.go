package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/logging"
	"github.com/ppiankov/claimwatch/internal/model"
)

// Analyzer produces an Analysis for post text
type Analyzer interface {
	Analyze(ctx context.Context, text, brand string) model.Analysis
}

// Committer persists an analysis together with its ledger entry
type Committer interface {
	CommitAnalysis(ctx context.Context, postID uint, a model.Analysis) (*model.Debunk, *model.LedgerEntry, error)
}

// Recorder observes committed debunks
type Recorder interface {
	DebunkCreated(ctx context.Context, verdict model.Verdict)
}

// Outcome is the result of processing one post
type Outcome struct {
	Analysis model.Analysis
	Debunk   *model.Debunk
	Entry    *model.LedgerEntry
}

// Processor analyses a stored post and commits the result atomically
type Processor struct {
	analyzer  Analyzer
	committer Committer
	recorder  Recorder
	log       *zap.Logger
}

// NewProcessor creates a Processor
func NewProcessor(analyzer Analyzer, committer Committer, log *zap.Logger) *Processor {
	return &Processor{analyzer: analyzer, committer: committer, log: logging.OrNop(log)}
}

// WithRecorder attaches a metrics recorder
func (p *Processor) WithRecorder(r Recorder) *Processor {
	p.recorder = r
	return p
}

// Process analyses post and commits the debunk and ledger entry. Commit
// errors such as store.ErrAlreadyAnalysed are returned wrapped.
func (p *Processor) Process(ctx context.Context, post *model.Post) (*Outcome, error) {
	analysis := p.analyzer.Analyze(ctx, post.Text, post.Brand)

	debunk, entry, err := p.committer.CommitAnalysis(ctx, post.ID, analysis)
	if err != nil {
		return nil, fmt.Errorf("commit analysis for post %d: %w", post.ID, err)
	}

	if p.recorder != nil {
		p.recorder.DebunkCreated(ctx, debunk.Verdict)
	}
	p.log.Info("post analysed",
		zap.Uint("post_id", post.ID),
		zap.Uint("debunk_id", debunk.ID),
		zap.String("verdict", string(debunk.Verdict)),
		zap.Int("confidence", debunk.Confidence),
		zap.Uint64("ledger_sequence", entry.Sequence),
	)

	return &Outcome{Analysis: analysis, Debunk: debunk, Entry: entry}, nil
}
