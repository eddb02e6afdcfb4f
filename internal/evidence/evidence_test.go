package evidence

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/cache"
	"github.com/ppiankov/claimwatch/internal/model"
)

func TestAuthorityClassifier_Classify(t *testing.T) {
	classifier := NewAuthorityClassifier(model.AuthorityConfig{
		PrimaryDomains:   []string{"sec.gov", "gov.uk"},
		SecondaryDomains: []string{"reuters.com"},
		DomainMap:        map[string]string{"acme.example": "primary"},
	})

	tests := []struct {
		url  string
		want model.AuthorityTier
	}{
		{"https://www.sec.gov/filing", model.AuthorityPrimary},
		{"https://www.legislation.gov.uk/act", model.AuthorityPrimary},
		{"https://www.reuters.com/business", model.AuthoritySecondary},
		{"https://acme.example/press", model.AuthorityPrimary},
		{"https://stanford.edu/paper", model.AuthorityPrimary},
		{"https://someblog.example/post", model.AuthorityTertiary},
		{"", model.AuthorityUnknown},
		{"not a url", model.AuthorityUnknown},
	}

	for _, tt := range tests {
		if got := classifier.Classify(tt.url); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestAuthorityClassifier_AnnotateOrdersStable(t *testing.T) {
	classifier := NewAuthorityClassifier(model.AuthorityConfig{
		PrimaryDomains:   []string{"sec.gov"},
		SecondaryDomains: []string{"reuters.com"},
	})

	in := []model.EvidenceItem{
		{Title: "blog", URL: "https://blog.example/a"},
		{Title: "no link"},
		{Title: "wire", URL: "https://reuters.com/a"},
		{Title: "filing", URL: "https://sec.gov/a"},
		{Title: "blog2", URL: "https://blog.example/b"},
	}
	out := classifier.Annotate(in)

	want := []string{"filing", "wire", "blog", "blog2", "no link"}
	for i, title := range want {
		if out[i].Title != title {
			t.Errorf("position %d: want %s, got %s", i, title, out[i].Title)
		}
	}
	if in[0].Authority != model.AuthorityUnknown {
		t.Error("Annotate must not mutate its input")
	}
}

func TestSerpSearcher_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("engine") != "google" || q.Get("q") != "Acme recalled toasters" || q.Get("api_key") != "serp-key" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"organic_results": [
			{"title": "Acme <b>denies</b> recall", "snippet": "No recall &amp; no fire", "link": "https://acme.example/press"},
			{"title": "Second", "snippet": "s", "link": "https://b.example"},
			{"title": "Third", "snippet": "s", "link": "https://c.example"}
		]}`))
	}))
	defer server.Close()

	s := NewSerpSearcher("serp-key", 2, server.Client(), nil)
	s.BaseURL = server.URL

	items, err := s.Search(context.Background(), "Acme recalled toasters")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Title != "Acme denies recall" || items[0].Snippet != "No recall & no fire" {
		t.Errorf("expected stripped markup, got %+v", items[0])
	}
}

func TestSerpSearcher_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "Invalid API key"}`))
	}))
	defer server.Close()

	s := NewSerpSearcher("bad", 5, server.Client(), nil)
	s.BaseURL = server.URL
	if _, err := s.Search(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
}

type countingSearcher struct {
	calls int
	items []model.EvidenceItem
	err   error
}

func (c *countingSearcher) Search(context.Context, string) ([]model.EvidenceItem, error) {
	c.calls++
	return c.items, c.err
}

func TestCachedSearcher(t *testing.T) {
	ctx := context.Background()
	next := &countingSearcher{items: []model.EvidenceItem{{Title: "t", URL: "https://sec.gov/x"}}}
	mem := cache.NewMemoryCache(time.Minute, time.Minute)
	classifier := NewAuthorityClassifier(model.AuthorityConfig{PrimaryDomains: []string{"sec.gov"}})

	s := NewCachedSearcher(next, mem, time.Minute, classifier, zap.NewNop())

	first, err := s.Search(ctx, "Acme claim")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	second, _ := s.Search(ctx, "acme claim ")
	if next.calls != 1 {
		t.Errorf("expected one upstream call, got %d", next.calls)
	}
	if len(second) != 1 || second[0].Authority != model.AuthorityPrimary || first[0].Authority != model.AuthorityPrimary {
		t.Errorf("expected annotated cached result, got %+v", second)
	}

	empty := &countingSearcher{}
	s = NewCachedSearcher(empty, mem, time.Minute, nil, zap.NewNop())
	_, _ = s.Search(ctx, "nothing")
	_, _ = s.Search(ctx, "nothing")
	if empty.calls != 2 {
		t.Errorf("empty results must not be cached, got %d calls", empty.calls)
	}

	failing := &countingSearcher{err: errors.New("down")}
	s = NewCachedSearcher(failing, nil, time.Minute, nil, zap.NewNop())
	if _, err := s.Search(ctx, "x"); err == nil {
		t.Error("expected upstream error to propagate")
	}
}

func TestNew_BackendSelection(t *testing.T) {
	auth := model.AuthorityConfig{}

	s, err := New(model.EvidenceConfig{Backend: "auto"}, model.SourcesConfig{}, auth, nil, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := s.(NoopSearcher); !ok {
		t.Errorf("auto without key should be noop, got %T", s)
	}

	s, err = New(model.EvidenceConfig{Backend: "auto", MaxResults: 5}, model.SourcesConfig{SerpAPIKey: "k"}, auth, nil, nil, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := s.(*CachedSearcher); !ok {
		t.Errorf("auto with key should be cached serp, got %T", s)
	}

	if _, err := New(model.EvidenceConfig{Backend: "serpapi"}, model.SourcesConfig{}, auth, nil, nil, nil, zap.NewNop()); err == nil {
		t.Error("serpapi without key should fail")
	}
	if _, err := New(model.EvidenceConfig{Backend: "bing"}, model.SourcesConfig{}, auth, nil, nil, nil, zap.NewNop()); err == nil {
		t.Error("unknown backend should fail")
	}
}

func TestNoopSearcher(t *testing.T) {
	items, err := NoopSearcher{}.Search(context.Background(), "x")
	if err != nil || items == nil || len(items) != 0 {
		t.Errorf("expected empty non-nil result, got %v %v", items, err)
	}
}
