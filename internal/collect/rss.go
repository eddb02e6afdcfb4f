package collect

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/ppiankov/claimwatch/internal/model"
	"github.com/ppiankov/claimwatch/internal/worker"
)

// RSSSource reads a search feed such as Google News RSS. URLTemplate holds a
// single %s that receives the query-escaped brand.
type RSSSource struct {
	URLTemplate string
	MaxItems    int
	On          bool

	http   httpDoer
	parser *gofeed.Parser
}

// NewRSSSource creates an RSS source
func NewRSSSource(urlTemplate string, maxItems int, enabled bool, client *http.Client, limiter *worker.Limiter) *RSSSource {
	return &RSSSource{
		URLTemplate: urlTemplate,
		MaxItems:    limitOr(maxItems),
		On:          enabled,
		http:        newHTTPDoer(client, limiter),
		parser:      gofeed.NewParser(),
	}
}

func (s *RSSSource) Name() string             { return "rss" }
func (s *RSSSource) Platform() model.Platform { return model.PlatformNews }
func (s *RSSSource) Enabled() bool            { return s.On && strings.Contains(s.URLTemplate, "%s") }

// Collect parses the feed for brand
func (s *RSSSource) Collect(ctx context.Context, brand string) ([]model.RawItem, error) {
	feedURL := fmt.Sprintf(s.URLTemplate, url.QueryEscape(brand))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("rss: create request: %w", err)
	}

	body, err := s.http.do(req)
	if err != nil {
		return nil, fmt.Errorf("rss: %w", err)
	}
	feed, err := s.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rss: parse %s: %w", feedURL, err)
	}

	items := make([]model.RawItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if len(items) >= s.MaxItems {
			break
		}
		if entry.Link == "" {
			continue
		}

		summary := entry.Description
		if summary == "" {
			summary = entry.Content
		}
		item := model.RawItem{
			Platform: model.PlatformNews,
			Brand:    brand,
			Text:     itemText(entry.Title, summary),
			URL:      entry.Link,
		}
		if entry.PublishedParsed != nil {
			item.CreatedAt = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			item.CreatedAt = *entry.UpdatedParsed
		}
		items = append(items, item)
	}
	return items, nil
}
