package pipeline

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/evidence"
	"github.com/ppiankov/claimwatch/internal/llm"
	"github.com/ppiankov/claimwatch/internal/logging"
	"github.com/ppiankov/claimwatch/internal/model"
)

const tracerName = "github.com/ppiankov/claimwatch/internal/pipeline"

// ClaimPipeline turns post text into a normalised Analysis:
// extract claim, gather evidence, adjudicate.
type ClaimPipeline struct {
	oracle   llm.Oracle
	searcher evidence.Searcher
	timeout  time.Duration
	log      *zap.Logger
	tracer   trace.Tracer
}

// NewClaimPipeline creates a pipeline. Each oracle and search call is bounded
// by timeout; zero means no bound beyond ctx.
func NewClaimPipeline(oracle llm.Oracle, searcher evidence.Searcher, timeout time.Duration, log *zap.Logger) *ClaimPipeline {
	if oracle == nil {
		oracle = llm.DisabledOracle{}
	}
	if searcher == nil {
		searcher = evidence.NoopSearcher{}
	}
	return &ClaimPipeline{
		oracle:   oracle,
		searcher: searcher,
		timeout:  timeout,
		log:      logging.OrNop(log),
		tracer:   otel.Tracer(tracerName),
	}
}

// Analyze never fails: collaborator errors degrade to the safe Unclear result
// so the post can still be committed and leave the queue.
func (p *ClaimPipeline) Analyze(ctx context.Context, text, brand string) model.Analysis {
	ctx, span := p.tracer.Start(ctx, "pipeline.analyze", trace.WithAttributes(attribute.String("brand", brand)))
	defer span.End()

	// 1. Extract claim
	claim, err := p.extractClaim(ctx, text)
	if err != nil {
		p.log.Warn("claim extraction failed", zap.String("brand", brand), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		return model.FailedAnalysis("")
	}
	if claim == "" {
		p.log.Warn("claim extraction returned nothing", zap.String("brand", brand))
		return model.FailedAnalysis("")
	}
	if IsNoClaim(claim) {
		span.SetAttributes(attribute.String("verdict", string(model.VerdictSkipped)))
		return model.SkippedAnalysis()
	}

	// 2. Gather evidence; a failed search is treated as no evidence
	items := p.search(ctx, claim)

	// 3. Adjudicate
	adj, err := p.adjudicate(ctx, llm.AdjudicationRequest{Claim: claim, Brand: brand, Evidence: items})
	if err != nil {
		p.log.Warn("adjudication failed", zap.String("brand", brand), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "adjudication failed")
		failed := model.FailedAnalysis(claim)
		failed.Evidence = items
		return failed
	}

	sources := adj.Sources
	if sources == nil {
		sources = []string{}
	}

	analysis := model.Analysis{
		Claim:       claim,
		Verdict:     adj.Verdict,
		Confidence:  ClampConfidence(adj.Confidence),
		Explanation: adj.Explanation,
		Sources:     sources,
		PRResponse:  adj.PRResponse,
		Evidence:    items,
	}
	span.SetAttributes(
		attribute.String("verdict", string(analysis.Verdict)),
		attribute.Int("confidence", analysis.Confidence),
		attribute.Int("evidence", len(items)),
	)
	return analysis
}

func (p *ClaimPipeline) extractClaim(ctx context.Context, text string) (string, error) {
	ctx, span := p.tracer.Start(ctx, "oracle.extract_claim")
	defer span.End()

	ctx, cancel := p.bound(ctx)
	defer cancel()

	raw, err := p.oracle.ExtractClaim(ctx, text)
	if err != nil {
		return "", err
	}
	return CleanClaim(raw), nil
}

func (p *ClaimPipeline) search(ctx context.Context, claim string) []model.EvidenceItem {
	ctx, span := p.tracer.Start(ctx, "evidence.search")
	defer span.End()

	ctx, cancel := p.bound(ctx)
	defer cancel()

	items, err := p.searcher.Search(ctx, claim)
	if err != nil {
		p.log.Warn("evidence search failed, continuing without evidence", zap.Error(err))
		span.RecordError(err)
		return []model.EvidenceItem{}
	}
	if items == nil {
		items = []model.EvidenceItem{}
	}
	return items
}

func (p *ClaimPipeline) adjudicate(ctx context.Context, req llm.AdjudicationRequest) (*llm.Adjudication, error) {
	ctx, span := p.tracer.Start(ctx, "oracle.adjudicate")
	defer span.End()

	ctx, cancel := p.bound(ctx)
	defer cancel()

	return p.oracle.Adjudicate(ctx, req)
}

func (p *ClaimPipeline) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// CleanClaim trims whitespace and one layer of wrapping quotes or backticks
func CleanClaim(raw string) string {
	s := strings.TrimSpace(raw)
	for _, pair := range [][2]string{{`"`, `"`}, {"'", "'"}, {"`", "`"}, {"“", "”"}} {
		if len(s) >= len(pair[0])+len(pair[1]) && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
			s = strings.TrimSpace(s[len(pair[0]) : len(s)-len(pair[1])])
			break
		}
	}
	return s
}

// IsNoClaim reports whether the oracle answered with the no-claim sentinel,
// tolerating case, quoting and a trailing period
func IsNoClaim(claim string) bool {
	s := strings.Trim(CleanClaim(claim), " .`'\"")
	return strings.EqualFold(s, model.NoClaimSentinel)
}

// ClampConfidence bounds confidence to 0..100
func ClampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
