package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/logging"
	"github.com/ppiankov/claimwatch/internal/model"
)

// ErrOracleDisabled is returned by every DisabledOracle call
var ErrOracleDisabled = errors.New("claim oracle is not configured")

// ErrMalformedAdjudication marks oracle output that is not a usable verdict object
var ErrMalformedAdjudication = errors.New("malformed adjudication")

// Oracle is the external capability that extracts and adjudicates claims
type Oracle interface {
	ExtractClaim(ctx context.Context, text string) (string, error)
	Adjudicate(ctx context.Context, req AdjudicationRequest) (*Adjudication, error)
}

// AdjudicationRequest is everything the oracle sees when judging a claim
type AdjudicationRequest struct {
	Claim    string
	Brand    string
	Evidence []model.EvidenceItem
}

// Adjudication is the oracle's verdict object, before confidence clamping
type Adjudication struct {
	Verdict     model.Verdict
	Confidence  int
	Explanation string
	Sources     []string
	PRResponse  string
}

const (
	extractSystem    = "You are a fact-checking assistant."
	adjudicateSystem = "You are a JSON machine."
	noEvidenceText   = "No direct evidence found via API. Rely on internal knowledge."
)

// ExtractPrompt renders the claim-extraction instruction for text
func ExtractPrompt(text string) string {
	return "Extract the SINGLE main factual claim from this text as one short sentence. " +
		"If there is no clear factual claim, return exactly '" + model.NoClaimSentinel + "'.\n\nText: " + text
}

// AdjudicatePrompt renders the verdict instruction for a claim and its evidence
func AdjudicatePrompt(req AdjudicationRequest) string {
	evidence := noEvidenceText
	if len(req.Evidence) > 0 {
		lines := make([]string, 0, len(req.Evidence))
		for _, e := range req.Evidence {
			lines = append(lines, fmt.Sprintf("- %s: %s", e.Title, e.Snippet))
		}
		evidence = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(`You are an expert PR Crisis Manager.

CLAIM: %q
BRAND: %q
EVIDENCE: %s

TASK:
1. Determine verdict: "True", "Misleading", "False", or "Unclear".
2. Assign confidence (0-100).
3. Write explanation (2 sentences).
4. Write a PR-safe response for the brand.

OUTPUT JSON ONLY:
{
    "verdict": "string",
    "confidence": int,
    "explanation": "string",
    "sources": [],
    "pr_response": "string"
}`, req.Claim, req.Brand, evidence)
}

// ProviderOracle implements Oracle on top of an LLM Provider
type ProviderOracle struct {
	provider Provider
	log      *zap.Logger
}

// NewProviderOracle wraps provider
func NewProviderOracle(provider Provider, log *zap.Logger) *ProviderOracle {
	return &ProviderOracle{provider: provider, log: logging.OrNop(log).With(zap.String("provider", provider.Name()))}
}

// ExtractClaim asks for the single main factual claim in text. The raw
// answer is returned trimmed; NO_CLAIM detection is left to the caller.
func (o *ProviderOracle) ExtractClaim(ctx context.Context, text string) (string, error) {
	resp, err := o.provider.Complete(ctx, CompletionRequest{
		System:      extractSystem,
		Prompt:      ExtractPrompt(text),
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("extract claim: %w", err)
	}
	o.log.Debug("claim extracted", zap.Int("tokens", resp.TokensUsed))
	return strings.TrimSpace(resp.Text), nil
}

// Adjudicate asks for a verdict object and parses it
func (o *ProviderOracle) Adjudicate(ctx context.Context, req AdjudicationRequest) (*Adjudication, error) {
	resp, err := o.provider.Complete(ctx, CompletionRequest{
		System:      adjudicateSystem,
		Prompt:      AdjudicatePrompt(req),
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("adjudicate: %w", err)
	}
	o.log.Debug("claim adjudicated", zap.Int("tokens", resp.TokensUsed))

	adj, err := ParseAdjudication(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("adjudicate: %w", err)
	}
	return adj, nil
}

// DisabledOracle is used when no LLM provider is configured
type DisabledOracle struct{}

// ExtractClaim always fails with ErrOracleDisabled
func (DisabledOracle) ExtractClaim(context.Context, string) (string, error) {
	return "", ErrOracleDisabled
}

// Adjudicate always fails with ErrOracleDisabled
func (DisabledOracle) Adjudicate(context.Context, AdjudicationRequest) (*Adjudication, error) {
	return nil, ErrOracleDisabled
}

type rawAdjudication struct {
	Verdict     string          `json:"verdict"`
	Confidence  json.RawMessage `json:"confidence"`
	Explanation string          `json:"explanation"`
	Sources     json.RawMessage `json:"sources"`
	PRResponse  string          `json:"pr_response"`
}

// ParseAdjudication extracts the verdict object from raw model output.
// Markdown code fences and prose around the outermost braces are ignored.
// The verdict must be one of True, Misleading, False or Unclear in any case.
func ParseAdjudication(raw string) (*Adjudication, error) {
	body := stripFences(raw)

	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in output", ErrMalformedAdjudication)
	}

	var r rawAdjudication
	if err := json.Unmarshal([]byte(body[start:end+1]), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAdjudication, err)
	}

	verdict, ok := model.ParseVerdict(r.Verdict)
	if !ok {
		return nil, fmt.Errorf("%w: unknown verdict %q", ErrMalformedAdjudication, r.Verdict)
	}

	confidence, err := parseConfidence(r.Confidence)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAdjudication, err)
	}

	return &Adjudication{
		Verdict:     verdict,
		Confidence:  confidence,
		Explanation: strings.TrimSpace(r.Explanation),
		Sources:     parseSources(r.Sources),
		PRResponse:  strings.TrimSpace(r.PRResponse),
	}, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimPrefix(s, "JSON")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// parseConfidence accepts a number or a numeric string; absent means 0
func parseConfidence(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(math.Round(f)), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("confidence is neither number nor string: %s", raw)
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("confidence %q is not numeric", s)
	}
	return int(math.Round(f)), nil
}

// parseSources accepts a list of strings or objects carrying a url or title
func parseSources(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}

	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		var single string
		if json.Unmarshal(raw, &single) == nil && strings.TrimSpace(single) != "" {
			out = append(out, strings.TrimSpace(single))
		}
		return out
	}

	for _, item := range items {
		switch v := item.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			for _, key := range []string{"url", "link", "title"} {
				if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
					break
				}
			}
		}
	}
	return out
}
