package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ppiankov/claimwatch/internal/extract"
	"github.com/ppiankov/claimwatch/internal/model"
	"github.com/ppiankov/claimwatch/internal/worker"
)

// Source is a thin fetch-and-shape collaborator for one platform.
// A source without credentials reports Enabled false and is skipped.
type Source interface {
	Name() string
	Platform() model.Platform
	Enabled() bool
	Collect(ctx context.Context, brand string) ([]model.RawItem, error)
}

const (
	defaultMaxItems = 10
	maxResponseSize = 4 << 20
)

// httpDoer sends requests through the shared client and per-host limiter
type httpDoer struct {
	client  *http.Client
	limiter *worker.Limiter
}

func newHTTPDoer(client *http.Client, limiter *worker.Limiter) httpDoer {
	if client == nil {
		client = http.DefaultClient
	}
	return httpDoer{client: client, limiter: limiter}
}

// do sends req and returns the body of a 2xx response
func (d httpDoer) do(req *http.Request) ([]byte, error) {
	resp, err := d.limiter.Do(d.client, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, extract.Truncate(strings.TrimSpace(string(body)), 200))
	}
	return body, nil
}

// getJSON issues a GET and decodes the JSON response into out
func (d httpDoer) getJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	body, err := d.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// itemText joins a title and description the way every source renders posts
func itemText(title, description string) string {
	title = extract.StripHTML(title)
	description = extract.StripHTML(description)
	if description == "" {
		return title
	}
	if title == "" {
		return description
	}
	return title + " - " + description
}

func limitOr(n int) int {
	if n <= 0 {
		return defaultMaxItems
	}
	return n
}
