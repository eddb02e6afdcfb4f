package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/ppiankov/claimwatch/internal/extract"
	"github.com/ppiankov/claimwatch/internal/model"
	"github.com/ppiankov/claimwatch/internal/util"
	"github.com/ppiankov/claimwatch/internal/worker"
)

// ErrDisallowed is returned when robots.txt forbids fetching a URL
var ErrDisallowed = errors.New("fetch disallowed by robots.txt")

// ErrNoText is returned when a page has no readable text
var ErrNoText = errors.New("no readable text in page")

const (
	fetchMaxRetries = 3

	// claims are extracted from the opening of an article
	maxArticleRunes = 6000
	maxCitedLinks   = 5
)

// fetchSleepFunc is replaced in tests
var fetchSleepFunc = time.Sleep

// StatusError reports a non-2xx response
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, e.Status)
}

// Fetcher retrieves web pages for manual URL analysis
type Fetcher struct {
	httpClient *http.Client
	robots     *util.RobotsChecker
	limiter    *worker.Limiter
	userAgent  string
	maxBytes   int64
}

// NewFetcher creates a Fetcher that sends requests with client. Robots rules
// are honoured when cfg.RespectRobots is set.
func NewFetcher(client *http.Client, cfg model.HTTPConfig, limiter *worker.Limiter) *Fetcher {
	if client == nil {
		client = util.NewHTTPClient(cfg)
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 2_000_000
	}

	f := &Fetcher{
		httpClient: client,
		limiter:    limiter,
		userAgent:  cfg.UserAgent,
		maxBytes:   maxBytes,
	}
	if cfg.RespectRobots {
		f.robots = util.NewRobotsChecker(client, cfg.UserAgent)
	}
	return f
}

// Result contains the fetched HTML and response metadata
type Result struct {
	HTML        string
	StatusCode  int
	ContentType string
	FinalURL    string
}

// Fetch retrieves HTML content from the given URL
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.limiter.Do(f.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Result{
		HTML:        string(body),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// FetchWithRetry retries transient failures with exponential backoff
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt < fetchMaxRetries; attempt++ {
		result, err := f.Fetch(ctx, rawURL)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryableFetchError(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt < fetchMaxRetries-1 {
			fetchSleepFunc(time.Duration(1<<uint(attempt)) * time.Second)
		}
	}
	return nil, lastErr
}

// isRetryableFetchError returns true for 5xx, 429 and transient network failures
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == http.StatusTooManyRequests
	}

	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}

// Article is the readable content of a fetched page
type Article struct {
	URL      string               `json:"url"`
	Title    string               `json:"title"`
	Byline   string               `json:"byline,omitempty"`
	SiteName string               `json:"site_name,omitempty"`
	Text     string               `json:"text"`
	Evidence []model.EvidenceItem `json:"evidence,omitempty"`
}

// FetchArticle fetches rawURL and returns its readable text, truncated to the
// opening of the article, plus the off-site links it cites
func (f *Fetcher) FetchArticle(ctx context.Context, rawURL string) (*Article, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("invalid article URL: %q", rawURL)
	}

	if f.robots != nil {
		allowed, _, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("robots check: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
		}
	}

	result, err := f.FetchWithRetry(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	finalURL, err := url.Parse(result.FinalURL)
	if err != nil {
		finalURL = parsed
	}

	article := &Article{URL: result.FinalURL}

	if doc, err := readability.FromReader(bytes.NewReader([]byte(result.HTML)), finalURL); err == nil {
		article.Title = strings.TrimSpace(doc.Title)
		article.Byline = strings.TrimSpace(doc.Byline)
		article.SiteName = strings.TrimSpace(doc.SiteName)
		article.Text = extract.NormalizeSpace(doc.TextContent)
	}

	// readability gives up on short or unusual pages
	if article.Text == "" {
		text, err := extract.VisibleText(result.HTML)
		if err != nil {
			return nil, fmt.Errorf("extract text: %w", err)
		}
		article.Text = text
	}
	if article.Text == "" {
		return nil, ErrNoText
	}

	if article.Title != "" && !strings.HasPrefix(article.Text, article.Title) {
		article.Text = article.Title + ". " + article.Text
	}
	article.Text = extract.Excerpt(article.Text, maxArticleRunes)

	if cited, err := extract.CitedEvidence(result.HTML, result.FinalURL, maxCitedLinks); err == nil {
		article.Evidence = cited
	}

	return article, nil
}
