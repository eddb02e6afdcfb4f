package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ppiankov/claimwatch/internal/evidence"
	"github.com/ppiankov/claimwatch/internal/model"
	"github.com/ppiankov/claimwatch/internal/worker"
)

const serpNewsLimit = 5

// SerpNewsSource searches Google News results through SerpAPI
type SerpNewsSource struct {
	APIKey  string
	BaseURL string

	http httpDoer
}

// NewSerpNewsSource creates a SerpAPI news source
func NewSerpNewsSource(apiKey string, client *http.Client, limiter *worker.Limiter) *SerpNewsSource {
	return &SerpNewsSource{APIKey: apiKey, BaseURL: evidence.DefaultSerpAPIURL, http: newHTTPDoer(client, limiter)}
}

func (s *SerpNewsSource) Name() string             { return "serpapi" }
func (s *SerpNewsSource) Platform() model.Platform { return model.PlatformWeb }
func (s *SerpNewsSource) Enabled() bool            { return s.APIKey != "" }

type serpNewsResponse struct {
	NewsResults []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"news_results"`
	Error string `json:"error"`
}

// Collect returns Google News hits for brand
func (s *SerpNewsSource) Collect(ctx context.Context, brand string) ([]model.RawItem, error) {
	params := url.Values{}
	params.Set("q", brand)
	params.Set("tbm", "nws")
	params.Set("num", strconv.Itoa(serpNewsLimit))
	params.Set("api_key", s.APIKey)

	var resp serpNewsResponse
	if err := s.http.getJSON(ctx, s.BaseURL+"?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("serpapi news: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("serpapi news: %s", resp.Error)
	}

	items := make([]model.RawItem, 0, len(resp.NewsResults))
	for _, r := range resp.NewsResults {
		items = append(items, model.RawItem{
			Platform: model.PlatformWeb,
			Brand:    brand,
			Text:     itemText(r.Title, r.Snippet),
			URL:      r.Link,
		})
	}
	return items, nil
}
