package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ppiankov/claimwatch/internal/model"
	"github.com/ppiankov/claimwatch/internal/worker"
)

// DefaultNewsAPIURL is the NewsAPI base URL
const DefaultNewsAPIURL = "https://newsapi.org"

// NewsAPISource searches NewsAPI's everything endpoint
type NewsAPISource struct {
	APIKey   string
	BaseURL  string
	MaxItems int

	http httpDoer
}

// NewNewsAPISource creates a NewsAPI source
func NewNewsAPISource(apiKey string, maxItems int, client *http.Client, limiter *worker.Limiter) *NewsAPISource {
	return &NewsAPISource{APIKey: apiKey, BaseURL: DefaultNewsAPIURL, MaxItems: limitOr(maxItems), http: newHTTPDoer(client, limiter)}
}

func (s *NewsAPISource) Name() string             { return "newsapi" }
func (s *NewsAPISource) Platform() model.Platform { return model.PlatformNews }
func (s *NewsAPISource) Enabled() bool            { return s.APIKey != "" }

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// Collect returns the newest articles mentioning brand
func (s *NewsAPISource) Collect(ctx context.Context, brand string) ([]model.RawItem, error) {
	params := url.Values{}
	params.Set("q", brand)
	params.Set("sortBy", "publishedAt")
	params.Set("apiKey", s.APIKey)

	var resp newsAPIResponse
	if err := s.http.getJSON(ctx, s.BaseURL+"/v2/everything?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("newsapi: %w", err)
	}
	if resp.Status == "error" {
		return nil, fmt.Errorf("newsapi: %s", resp.Message)
	}

	items := make([]model.RawItem, 0, len(resp.Articles))
	for i, a := range resp.Articles {
		if i >= s.MaxItems {
			break
		}
		// NewsAPI keeps deleted articles as "[Removed]" stubs
		if a.Title == "[Removed]" {
			continue
		}
		item := model.RawItem{
			Platform: model.PlatformNews,
			Brand:    brand,
			Text:     itemText(a.Title, a.Description),
			URL:      a.URL,
		}
		if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			item.CreatedAt = t
		}
		items = append(items, item)
	}
	return items, nil
}
