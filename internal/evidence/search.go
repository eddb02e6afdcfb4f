package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/cache"
	"github.com/ppiankov/claimwatch/internal/extract"
	"github.com/ppiankov/claimwatch/internal/logging"
	"github.com/ppiankov/claimwatch/internal/model"
	"github.com/ppiankov/claimwatch/internal/worker"
)

// Searcher gathers evidence for a claim. An empty result is a normal outcome.
type Searcher interface {
	Search(ctx context.Context, claim string) ([]model.EvidenceItem, error)
}

// NoopSearcher never finds evidence; the oracle then relies on its own knowledge
type NoopSearcher struct{}

// Search always returns an empty list
func (NoopSearcher) Search(context.Context, string) ([]model.EvidenceItem, error) {
	return []model.EvidenceItem{}, nil
}

// DefaultSerpAPIURL is the SerpAPI JSON endpoint
const DefaultSerpAPIURL = "https://serpapi.com/search.json"

// SerpSearcher queries Google organic results through SerpAPI
type SerpSearcher struct {
	APIKey     string
	BaseURL    string
	MaxResults int

	client  *http.Client
	limiter *worker.Limiter
}

// NewSerpSearcher creates a SerpAPI searcher
func NewSerpSearcher(apiKey string, maxResults int, client *http.Client, limiter *worker.Limiter) *SerpSearcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &SerpSearcher{
		APIKey:     apiKey,
		BaseURL:    DefaultSerpAPIURL,
		MaxResults: maxResults,
		client:     client,
		limiter:    limiter,
	}
}

type serpOrganicResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic_results"`
	Error string `json:"error"`
}

// Search returns the top organic results for claim
func (s *SerpSearcher) Search(ctx context.Context, claim string) ([]model.EvidenceItem, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", claim)
	params.Set("num", strconv.Itoa(s.MaxResults))
	params.Set("api_key", s.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.limiter.Do(s.client, req)
	if err != nil {
		return nil, fmt.Errorf("serpapi search: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed serpOrganicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode serpapi response (%d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || parsed.Error != "" {
		return nil, fmt.Errorf("serpapi error (%d): %s", resp.StatusCode, parsed.Error)
	}

	items := make([]model.EvidenceItem, 0, len(parsed.OrganicResults))
	for _, r := range parsed.OrganicResults {
		if len(items) >= s.MaxResults {
			break
		}
		items = append(items, model.EvidenceItem{
			Title:   extract.StripHTML(r.Title),
			Snippet: extract.StripHTML(r.Snippet),
			URL:     r.Link,
		})
	}
	return items, nil
}

// CachedSearcher memoises another searcher per normalised claim and ranks
// results by source authority
type CachedSearcher struct {
	next       Searcher
	cache      cache.Cache
	ttl        time.Duration
	classifier *AuthorityClassifier
	log        *zap.Logger
}

// NewCachedSearcher wraps next. A nil cache disables memoisation.
func NewCachedSearcher(next Searcher, c cache.Cache, ttl time.Duration, classifier *AuthorityClassifier, log *zap.Logger) *CachedSearcher {
	if c == nil {
		c = cache.Noop{}
	}
	return &CachedSearcher{next: next, cache: c, ttl: ttl, classifier: classifier, log: logging.OrNop(log)}
}

// Search serves from cache when possible. Empty results are not cached so a
// transient upstream gap is retried on the next claim.
func (s *CachedSearcher) Search(ctx context.Context, claim string) ([]model.EvidenceItem, error) {
	key := cache.Key("evidence", claim)

	var items []model.EvidenceItem
	if cache.GetJSON(ctx, s.cache, key, &items) {
		s.log.Debug("evidence cache hit", zap.String("key", key))
		return items, nil
	}

	items, err := s.next.Search(ctx, claim)
	if err != nil {
		return nil, err
	}
	if s.classifier != nil {
		items = s.classifier.Annotate(items)
	}

	if len(items) > 0 {
		if err := cache.SetJSON(ctx, s.cache, key, items, s.ttl); err != nil {
			s.log.Warn("evidence cache write failed", zap.Error(err))
		}
	}
	return items, nil
}

// New selects the evidence backend from configuration. "auto" uses SerpAPI
// when a key is configured and otherwise finds nothing.
func New(cfg model.EvidenceConfig, sources model.SourcesConfig, authority model.AuthorityConfig, client *http.Client, limiter *worker.Limiter, c cache.Cache, log *zap.Logger) (Searcher, error) {
	log = logging.OrNop(log)

	var backend Searcher
	switch strings.ToLower(cfg.Backend) {
	case "none":
		return NoopSearcher{}, nil
	case "serpapi":
		if sources.SerpAPIKey == "" {
			return nil, fmt.Errorf("evidence backend serpapi requires sources.serpapi_key")
		}
		backend = NewSerpSearcher(sources.SerpAPIKey, cfg.MaxResults, client, limiter)
	case "", "auto":
		if sources.SerpAPIKey == "" {
			log.Info("no SerpAPI key, evidence search disabled")
			return NoopSearcher{}, nil
		}
		backend = NewSerpSearcher(sources.SerpAPIKey, cfg.MaxResults, client, limiter)
	default:
		return nil, fmt.Errorf("unknown evidence backend: %s (supported: auto, none, serpapi)", cfg.Backend)
	}

	return NewCachedSearcher(backend, c, cfg.CacheTTL, NewAuthorityClassifier(authority), log), nil
}
