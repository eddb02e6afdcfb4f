package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/fetch"
	"github.com/ppiankov/claimwatch/internal/logging"
	"github.com/ppiankov/claimwatch/internal/model"
)

var (
	// ErrEmptyRequest is returned when neither text nor a URL is given
	ErrEmptyRequest = errors.New("text or url is required")

	// ErrURLUnsupported is returned for URL requests when no fetcher is wired
	ErrURLUnsupported = errors.New("url analysis is not available")

	// ErrArticleUnavailable wraps failures to fetch or read the submitted URL
	ErrArticleUnavailable = errors.New("article unavailable")
)

// ManualStore persists operator-submitted posts
type ManualStore interface {
	CreatePost(ctx context.Context, p *model.Post) (*model.Post, bool, error)
	DebunkForPost(ctx context.Context, postID uint) (*model.Debunk, error)
}

// PostProcessor analyses and commits one stored post
type PostProcessor interface {
	Process(ctx context.Context, post *model.Post) (*Outcome, error)
}

// ArticleFetcher returns the readable text of a page
type ArticleFetcher interface {
	FetchArticle(ctx context.Context, rawURL string) (*fetch.Article, error)
}

// ManualRequest is text or a URL submitted for immediate analysis
type ManualRequest struct {
	Text  string `json:"text"`
	URL   string `json:"url"`
	Brand string `json:"brand"`
}

// ManualResult is the outcome of a manual analysis. Entry and Analysis are
// nil when Duplicate reports that the URL had already been analysed.
type ManualResult struct {
	Post      *model.Post          `json:"post"`
	Debunk    *model.Debunk        `json:"debunk"`
	Entry     *model.LedgerEntry   `json:"ledger_entry,omitempty"`
	Analysis  *model.Analysis      `json:"analysis,omitempty"`
	Cited     []model.EvidenceItem `json:"cited,omitempty"`
	Duplicate bool                 `json:"duplicate,omitempty"`
}

// ManualAnalyzer stores operator-submitted content as a High priority post
// and analyses it straight away. It never sends alerts.
type ManualAnalyzer struct {
	store     ManualStore
	processor PostProcessor
	fetcher   ArticleFetcher
	now       func() time.Time
	log       *zap.Logger
}

// NewManualAnalyzer creates a ManualAnalyzer. fetcher may be nil, which
// disables URL requests.
func NewManualAnalyzer(store ManualStore, processor PostProcessor, fetcher ArticleFetcher, log *zap.Logger) *ManualAnalyzer {
	return &ManualAnalyzer{
		store:     store,
		processor: processor,
		fetcher:   fetcher,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logging.OrNop(log),
	}
}

// Analyze runs one manual request. Text wins over URL when both are given;
// the URL is then only recorded on the post.
func (m *ManualAnalyzer) Analyze(ctx context.Context, req ManualRequest) (*ManualResult, error) {
	text := strings.TrimSpace(req.Text)
	rawURL := strings.TrimSpace(req.URL)
	if text == "" && rawURL == "" {
		return nil, ErrEmptyRequest
	}

	// 1. Resolve text, fetching the article when only a URL was given
	submitted := text != ""
	var cited []model.EvidenceItem
	if !submitted {
		if m.fetcher == nil {
			return nil, ErrURLUnsupported
		}
		article, err := m.fetcher.FetchArticle(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrArticleUnavailable, err)
		}
		text = article.Text
		rawURL = article.URL
		cited = article.Evidence
		m.log.Debug("article fetched",
			zap.String("url", rawURL),
			zap.String("title", article.Title),
			zap.Int("cited", len(cited)),
		)
	}

	// 2. Store the manual post
	post, created, err := m.store.CreatePost(ctx, model.ManualPost(text, rawURL, req.Brand, m.now()))
	if err != nil {
		return nil, err
	}

	// 3. A URL that was already analysed returns the recorded debunk
	if !created && post.Analysed {
		debunk, err := m.store.DebunkForPost(ctx, post.ID)
		if err != nil {
			return nil, err
		}
		return &ManualResult{Post: post, Debunk: debunk, Cited: cited, Duplicate: true}, nil
	}

	// 4. Analyse and commit. A URL collected earlier keeps its stored row,
	// but submitted text is what gets analysed.
	if !created && submitted && post.Text != text {
		m.log.Debug("analysing submitted text for existing post",
			zap.Uint("post_id", post.ID),
			zap.String("url", rawURL),
		)
		withText := *post
		withText.Text = text
		post = &withText
	}
	outcome, err := m.processor.Process(ctx, post)
	if err != nil {
		return nil, err
	}
	post.Analysed = true
	if outcome.Debunk.Post == nil {
		outcome.Debunk.Post = post
	}
	return &ManualResult{
		Post:     post,
		Debunk:   outcome.Debunk,
		Entry:    outcome.Entry,
		Analysis: &outcome.Analysis,
		Cited:    cited,
	}, nil
}
