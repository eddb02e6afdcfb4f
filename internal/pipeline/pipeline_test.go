package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ppiankov/claimwatch/internal/llm"
	"github.com/ppiankov/claimwatch/internal/model"
)

// stubOracle answers from fixed values or functions
type stubOracle struct {
	claim      string
	extractErr error
	raw        string
	adjErr     error
	delay      time.Duration

	extracted   []string
	adjudicated []llm.AdjudicationRequest
}

func (s *stubOracle) ExtractClaim(ctx context.Context, text string) (string, error) {
	s.extracted = append(s.extracted, text)
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	return s.claim, s.extractErr
}

func (s *stubOracle) Adjudicate(ctx context.Context, req llm.AdjudicationRequest) (*llm.Adjudication, error) {
	s.adjudicated = append(s.adjudicated, req)
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if s.adjErr != nil {
		return nil, s.adjErr
	}
	return llm.ParseAdjudication(s.raw)
}

func (s *stubOracle) wait(ctx context.Context) error {
	if s.delay == 0 {
		return nil
	}
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type stubSearcher struct {
	items []model.EvidenceItem
	err   error
}

func (s stubSearcher) Search(context.Context, string) ([]model.EvidenceItem, error) {
	return s.items, s.err
}

func TestAnalyze_Success(t *testing.T) {
	oracle := &stubOracle{
		claim: `"Acme recalled 10,000 toasters."`,
		raw:   `{"verdict":"False","confidence":80,"explanation":"No recall exists.","sources":["https://acme.example/press"],"pr_response":"Acme has issued no recall."}`,
	}
	evidence := []model.EvidenceItem{{Title: "Acme press", Snippet: "No recall", URL: "https://acme.example/press"}}
	p := NewClaimPipeline(oracle, stubSearcher{items: evidence}, time.Second, nil)

	a := p.Analyze(context.Background(), "Acme recalled all toasters!", "Acme")

	if a.Verdict != model.VerdictFalse || a.Confidence != 80 {
		t.Errorf("unexpected verdict %+v", a)
	}
	if a.Claim != "Acme recalled 10,000 toasters." {
		t.Errorf("expected cleaned claim, got %q", a.Claim)
	}
	if a.PRResponse != "Acme has issued no recall." || len(a.Sources) != 1 {
		t.Errorf("unexpected response fields %+v", a)
	}
	if len(oracle.adjudicated) != 1 || oracle.adjudicated[0].Brand != "Acme" || len(oracle.adjudicated[0].Evidence) != 1 {
		t.Errorf("adjudication did not receive claim context: %+v", oracle.adjudicated)
	}
}

func TestAnalyze_NoClaimIsSkipped(t *testing.T) {
	for _, answer := range []string{"NO_CLAIM", "no_claim", "'NO_CLAIM'", "`NO_CLAIM`.", " NO_CLAIM. "} {
		oracle := &stubOracle{claim: answer}
		a := NewClaimPipeline(oracle, nil, time.Second, nil).Analyze(context.Background(), "lol nice", "Acme")

		if a.Verdict != model.VerdictSkipped || a.Confidence != 0 || a.PRResponse != "" || len(a.Sources) != 0 {
			t.Errorf("%q: expected skipped outcome, got %+v", answer, a)
		}
		if len(oracle.adjudicated) != 0 {
			t.Errorf("%q: adjudication must not run for skipped text", answer)
		}
	}
}

func TestAnalyze_MalformedAdjudicationDefaults(t *testing.T) {
	cases := map[string]string{
		"prose":         "I think this is false",
		"bad verdict":   `{"verdict":"Partly","confidence":50}`,
		"broken object": `{"verdict": "False", `,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			oracle := &stubOracle{claim: "Acme leaked data", raw: raw}
			a := NewClaimPipeline(oracle, nil, time.Second, nil).Analyze(context.Background(), "x", "Acme")
			want := model.FailedAnalysis("Acme leaked data")

			if a.Verdict != want.Verdict || a.Confidence != 0 || a.Explanation != want.Explanation || a.PRResponse != want.PRResponse {
				t.Errorf("expected safe default, got %+v", a)
			}
			if a.Claim != "Acme leaked data" {
				t.Errorf("claim must be attached on the default path, got %q", a.Claim)
			}
		})
	}
}

func TestAnalyze_ExtractionFailure(t *testing.T) {
	for name, oracle := range map[string]*stubOracle{
		"error": {extractErr: errors.New("rate limited")},
		"empty": {claim: "   "},
	} {
		a := NewClaimPipeline(oracle, nil, time.Second, nil).Analyze(context.Background(), "x", "Acme")
		if a.Verdict != model.VerdictUnclear || a.Claim != model.NoClaimText {
			t.Errorf("%s: expected Unclear with placeholder claim, got %+v", name, a)
		}
	}
}

func TestAnalyze_Timeout(t *testing.T) {
	oracle := &stubOracle{claim: "Acme leaked data", raw: `{"verdict":"True"}`, delay: 200 * time.Millisecond}
	start := time.Now()
	a := NewClaimPipeline(oracle, nil, 20*time.Millisecond, nil).Analyze(context.Background(), "x", "Acme")

	if a.Verdict != model.VerdictUnclear || a.Confidence != 0 {
		t.Errorf("expected timeout to degrade to Unclear, got %+v", a)
	}
	if time.Since(start) > 150*time.Millisecond {
		t.Errorf("timeout not enforced, took %v", time.Since(start))
	}
}

func TestAnalyze_DisabledOracle(t *testing.T) {
	a := NewClaimPipeline(nil, nil, time.Second, nil).Analyze(context.Background(), "x", "Acme")
	if a.Verdict != model.VerdictUnclear {
		t.Errorf("expected Unclear without an oracle, got %+v", a)
	}
}

func TestAnalyze_SearchFailureIsNoEvidence(t *testing.T) {
	oracle := &stubOracle{claim: "c", raw: `{"verdict":"Unclear","confidence":10}`}
	a := NewClaimPipeline(oracle, stubSearcher{err: errors.New("quota")}, time.Second, nil).Analyze(context.Background(), "x", "Acme")

	if a.Verdict != model.VerdictUnclear || a.Confidence != 10 {
		t.Errorf("search failure must not fail analysis, got %+v", a)
	}
	if oracle.adjudicated[0].Evidence == nil || len(oracle.adjudicated[0].Evidence) != 0 {
		t.Errorf("expected empty evidence, got %+v", oracle.adjudicated[0].Evidence)
	}
}

func TestAnalyze_ConfidenceClampedAndVerdictNormalised(t *testing.T) {
	oracle := &stubOracle{claim: "c", raw: `{"verdict":"misleading","confidence":140}`}
	a := NewClaimPipeline(oracle, nil, time.Second, nil).Analyze(context.Background(), "x", "Acme")
	if a.Verdict != model.VerdictMisleading || a.Confidence != 100 {
		t.Errorf("unexpected %+v", a)
	}

	oracle = &stubOracle{claim: "c", raw: `{"verdict":"TRUE","confidence":-5}`}
	a = NewClaimPipeline(oracle, nil, time.Second, nil).Analyze(context.Background(), "x", "Acme")
	if a.Verdict != model.VerdictTrue || a.Confidence != 0 {
		t.Errorf("unexpected %+v", a)
	}
}

func TestCleanClaimAndIsNoClaim(t *testing.T) {
	if got := CleanClaim(`  "quoted claim"  `); got != "quoted claim" {
		t.Errorf("CleanClaim = %q", got)
	}
	if got := CleanClaim(`"`); got != `"` {
		t.Errorf("single quote char must survive, got %q", got)
	}
	if IsNoClaim("NO_CLAIM found in text") {
		t.Error("sentinel must match exactly")
	}
}
