package collect

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ppiankov/claimwatch/internal/model"
	"github.com/ppiankov/claimwatch/internal/worker"
)

// DefaultYouTubeURL is the YouTube Data API v3 base URL
const DefaultYouTubeURL = "https://www.googleapis.com/youtube/v3"

const youtubeLimit = 5

// YouTubeSource searches recent videos with the YouTube Data API
type YouTubeSource struct {
	APIKey  string
	BaseURL string

	http httpDoer
}

// NewYouTubeSource creates a YouTube source
func NewYouTubeSource(apiKey string, client *http.Client, limiter *worker.Limiter) *YouTubeSource {
	return &YouTubeSource{APIKey: apiKey, BaseURL: DefaultYouTubeURL, http: newHTTPDoer(client, limiter)}
}

func (s *YouTubeSource) Name() string             { return "youtube" }
func (s *YouTubeSource) Platform() model.Platform { return model.PlatformYouTube }
func (s *YouTubeSource) Enabled() bool            { return s.APIKey != "" }

type youtubeSearchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			PublishedAt string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

// Collect returns the newest videos mentioning brand
func (s *YouTubeSource) Collect(ctx context.Context, brand string) ([]model.RawItem, error) {
	params := url.Values{}
	params.Set("q", brand)
	params.Set("part", "snippet")
	params.Set("order", "date")
	params.Set("type", "video")
	params.Set("maxResults", strconv.Itoa(youtubeLimit))
	params.Set("key", s.APIKey)

	var resp youtubeSearchResponse
	if err := s.http.getJSON(ctx, s.BaseURL+"/search?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("youtube: %w", err)
	}

	items := make([]model.RawItem, 0, len(resp.Items))
	for _, v := range resp.Items {
		if v.ID.VideoID == "" {
			continue
		}
		item := model.RawItem{
			Platform: model.PlatformYouTube,
			Brand:    brand,
			Text:     itemText(v.Snippet.Title, v.Snippet.Description),
			URL:      "https://www.youtube.com/watch?v=" + v.ID.VideoID,
		}
		if t, err := time.Parse(time.RFC3339, v.Snippet.PublishedAt); err == nil {
			item.CreatedAt = t
		}
		items = append(items, item)
	}
	return items, nil
}
