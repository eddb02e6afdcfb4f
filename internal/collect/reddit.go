package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/claimwatch/internal/extract"
	"github.com/ppiankov/claimwatch/internal/model"
	"github.com/ppiankov/claimwatch/internal/worker"
)

const (
	// DefaultRedditAuthURL issues app-only OAuth tokens
	DefaultRedditAuthURL = "https://www.reddit.com/api/v1/access_token"
	// DefaultRedditAPIURL serves authenticated API calls
	DefaultRedditAPIURL = "https://oauth.reddit.com"

	redditLimit       = 5
	redditSelftextLen = 200
)

// RedditSource searches r/all with an application-only OAuth token
type RedditSource struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	AuthURL      string
	APIURL       string

	http httpDoer

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

// NewRedditSource creates a Reddit source
func NewRedditSource(clientID, clientSecret, userAgent string, client *http.Client, limiter *worker.Limiter) *RedditSource {
	return &RedditSource{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		UserAgent:    userAgent,
		AuthURL:      DefaultRedditAuthURL,
		APIURL:       DefaultRedditAPIURL,
		http:         newHTTPDoer(client, limiter),
		now:          time.Now,
	}
}

func (s *RedditSource) Name() string             { return "reddit" }
func (s *RedditSource) Platform() model.Platform { return model.PlatformReddit }
func (s *RedditSource) Enabled() bool            { return s.ClientID != "" && s.ClientSecret != "" }

type redditToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// accessToken returns a cached token, refreshing it a minute before expiry
func (s *RedditSource) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expires) {
		return s.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(s.ClientID, s.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", s.UserAgent)

	body, err := s.http.do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	var tok redditToken
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("no access token: %s", tok.Error)
	}

	s.token = tok.AccessToken
	s.expires = s.now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return s.token, nil
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title       string  `json:"title"`
				Selftext    string  `json:"selftext"`
				URL         string  `json:"url"`
				Permalink   string  `json:"permalink"`
				Score       int     `json:"score"`
				NumComments int     `json:"num_comments"`
				CreatedUTC  float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Collect returns the newest submissions mentioning brand
func (s *RedditSource) Collect(ctx context.Context, brand string) ([]model.RawItem, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("reddit: %w", err)
	}

	params := url.Values{}
	params.Set("q", brand)
	params.Set("sort", "new")
	params.Set("limit", strconv.Itoa(redditLimit))

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("User-Agent", s.UserAgent)

	var listing redditListing
	if err := s.http.getJSON(ctx, s.APIURL+"/r/all/search?"+params.Encode(), header, &listing); err != nil {
		return nil, fmt.Errorf("reddit: %w", err)
	}

	items := make([]model.RawItem, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		d := child.Data
		link := d.URL
		if link == "" && d.Permalink != "" {
			link = "https://www.reddit.com" + d.Permalink
		}
		item := model.RawItem{
			Platform: model.PlatformReddit,
			Brand:    brand,
			Text:     itemText(d.Title, extract.Truncate(d.Selftext, redditSelftextLen)),
			URL:      link,
			Likes:    model.IntPtr(d.Score),
			Comments: model.IntPtr(d.NumComments),
		}
		if d.CreatedUTC > 0 {
			item.CreatedAt = time.Unix(int64(d.CreatedUTC), 0).UTC()
		}
		items = append(items, item)
	}
	return items, nil
}
