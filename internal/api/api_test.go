package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/claimwatch/internal/collect"
	"github.com/ppiankov/claimwatch/internal/fetch"
	"github.com/ppiankov/claimwatch/internal/ingest"
	"github.com/ppiankov/claimwatch/internal/ledger"
	"github.com/ppiankov/claimwatch/internal/llm"
	"github.com/ppiankov/claimwatch/internal/model"
	"github.com/ppiankov/claimwatch/internal/notify"
	"github.com/ppiankov/claimwatch/internal/pipeline"
	"github.com/ppiankov/claimwatch/internal/score"
	"github.com/ppiankov/claimwatch/internal/store"
	"github.com/ppiankov/claimwatch/internal/watchdog"
)

// verdictProvider answers claim extraction with the input text and
// adjudication with a fixed JSON verdict
type verdictProvider struct {
	verdict string
}

func (p *verdictProvider) Name() string                     { return "stub" }
func (p *verdictProvider) IsAvailable(context.Context) bool { return true }

func (p *verdictProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if !req.JSON {
		return &llm.CompletionResponse{Text: "Acme leaked every customer password"}, nil
	}
	return &llm.CompletionResponse{Text: `{"verdict":"` + p.verdict + `","confidence":80,` +
		`"explanation":"No breach was reported.","sources":["https://status.acme.example"],` +
		`"pr_response":"Acme has not been breached."}`}, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Alert
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, a notify.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, a)
	return nil
}

type fixedSource struct {
	items []model.RawItem
}

func (s fixedSource) Name() string             { return "fixed" }
func (s fixedSource) Platform() model.Platform { return model.PlatformNews }
func (s fixedSource) Enabled() bool            { return true }
func (s fixedSource) Collect(_ context.Context, brand string) ([]model.RawItem, error) {
	out := make([]model.RawItem, 0, len(s.items))
	for _, it := range s.items {
		it.Brand = brand
		out = append(out, it)
	}
	return out, nil
}

type stubFetcher struct {
	article *fetch.Article
	err     error
}

func (f stubFetcher) FetchArticle(context.Context, string) (*fetch.Article, error) {
	return f.article, f.err
}

type testEnv struct {
	store    *store.Store
	notifier *recordingNotifier
	router   *gin.Engine
	deps     Deps
	proc     *pipeline.Processor
	watchdog *watchdog.Watchdog
}

func setupEnv(t *testing.T, verdict string, cfg model.APIConfig) *testEnv {
	t.Helper()
	s, err := store.Open(model.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, "error", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	oracle := llm.NewProviderOracle(&verdictProvider{verdict: verdict}, nil)
	proc := pipeline.NewProcessor(pipeline.NewClaimPipeline(oracle, nil, time.Second, nil), s, nil)
	notifier := &recordingNotifier{}
	disp := notify.NewDispatcher(notifier, s, "ops@claimwatch.example", nil)

	like := 500
	source := fixedSource{items: []model.RawItem{
		{Platform: model.PlatformNews, Text: "Customer data breach rumours spread", URL: "https://news.example/1"},
		{Platform: model.PlatformNews, Text: "Quarterly results are out", URL: "https://news.example/2", Likes: &like},
	}}
	norm := ingest.NewNormalizer(s, score.Default(), nil)
	collector := collect.NewCollector([]collect.Source{source}, norm, s, 2, nil)

	fetcher := stubFetcher{article: &fetch.Article{
		URL:      "https://blog.example/post",
		Text:     "Acme leaked every customer password, a blog claims.",
		Evidence: []model.EvidenceItem{{Title: "Status", URL: "https://status.acme.example"}},
	}}

	deps := Deps{
		Store:     s,
		Processor: proc,
		Manual:    pipeline.NewManualAnalyzer(s, proc, fetcher, nil),
		Collector: collector,
		Resender:  disp,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("claimwatch_posts_ingested_total 1\n"))
		}),
	}

	return &testEnv{
		store:    s,
		notifier: notifier,
		router:   NewServer(deps, cfg, "test", nil).Router(),
		deps:     deps,
		proc:     proc,
		watchdog: watchdog.New(s, proc, disp, model.WatchdogConfig{Interval: time.Second, Workers: 2}, nil),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestHealth(t *testing.T) {
	env := setupEnv(t, "False", model.APIConfig{})

	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"OK"`)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestID_Propagated(t *testing.T) {
	env := setupEnv(t, "False", model.APIConfig{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestMetrics(t *testing.T) {
	env := setupEnv(t, "False", model.APIConfig{})

	w := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "claimwatch_posts_ingested")
}

func TestBasicAuth(t *testing.T) {
	env := setupEnv(t, "False", model.APIConfig{AdminPassword: "s3cret"})

	w := env.do(t, http.MethodGet, "/api/companies", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/companies", nil)
	req.SetBasicAuth("admin", "s3cret")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// health stays open for probes
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil).Code)
}

func TestCompanies_CRUD(t *testing.T) {
	env := setupEnv(t, "False", model.APIConfig{})

	w := env.do(t, http.MethodPost, "/api/companies", map[string]string{"name": "Acme", "email": "pr@acme.example"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/companies", map[string]string{"name": "Acme", "email": "pr@acme.example"})
	assert.Equal(t, http.StatusOK, w.Code, "re-adding is idempotent")

	w = env.do(t, http.MethodPost, "/api/companies", map[string]string{"name": "Globex", "email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var list struct {
		Companies []model.Company `json:"companies"`
		Count     int             `json:"count"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/companies", nil), &list)
	require.Equal(t, 1, list.Count)

	path := "/api/companies/" + itoa(list.Companies[0].ID)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodDelete, "/api/companies/abc", nil).Code)
}

func TestScan_ReportsPerCompanyAndBadges(t *testing.T) {
	env := setupEnv(t, "False", model.APIConfig{})
	env.do(t, http.MethodPost, "/api/companies", map[string]string{"name": "Acme", "email": "pr@acme.example"})

	var scan struct {
		Reports []collect.Report `json:"reports"`
	}
	w := env.do(t, http.MethodPost, "/api/scan", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &scan)
	require.Len(t, scan.Reports, 1)
	assert.Equal(t, "Acme", scan.Reports[0].Brand)
	assert.Equal(t, 2, scan.Reports[0].Created)
	assert.Equal(t, 2, scan.Reports[0].High)

	w = env.do(t, http.MethodPost, "/api/scan?company=Acme", nil)
	decode(t, w, &scan)
	assert.Equal(t, 2, scan.Reports[0].Duplicate, "second scan deduplicates by URL")

	var posts struct {
		Posts []PostView `json:"posts"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/posts/unanalysed", nil), &posts)
	require.Len(t, posts.Posts, 2)
	for _, p := range posts.Posts {
		assert.Equal(t, "🔥 High", p.Badge)
	}
}

func TestAnalyzePost(t *testing.T) {
	env := setupEnv(t, "Misleading", model.APIConfig{})
	ctx := context.Background()
	post, _, err := env.store.CreatePost(ctx, &model.Post{
		Platform: model.PlatformReddit, Brand: "Acme", Text: "Acme opened an office", Priority: model.TierLow,
	})
	require.NoError(t, err)

	path := "/api/posts/" + itoa(post.ID) + "/analyze"
	w := env.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp AnalysisResponse
	decode(t, w, &resp)
	assert.Equal(t, model.VerdictMisleading, resp.Debunk.Verdict)
	assert.Equal(t, 80, resp.Debunk.Confidence)
	assert.Equal(t, uint64(1), resp.Sequence)
	assert.Len(t, resp.Hash, 64)
	assert.Empty(t, env.notifier.sent, "manual analysis does not notify")

	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/posts/999/analyze", nil).Code)
}

func TestAnalyzeManual_Text(t *testing.T) {
	env := setupEnv(t, "False", model.APIConfig{})

	w := env.do(t, http.MethodPost, "/api/analyze", map[string]string{"text": "Acme leaked every customer password"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp AnalysisResponse
	decode(t, w, &resp)
	assert.Equal(t, model.PlatformManual, resp.Post.Platform)
	assert.Equal(t, model.TierHigh, resp.Post.Priority)
	assert.Equal(t, model.ManualBrand, resp.Post.Brand)
	assert.Equal(t, model.VerdictFalse, resp.Debunk.Verdict)
	assert.Equal(t, "Manual Entry", resp.Post.URLOr("Manual Entry"))

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/analyze", map[string]string{}).Code)
}

func TestAnalyzeManual_URL(t *testing.T) {
	env := setupEnv(t, "False", model.APIConfig{})
	body := map[string]string{"url": "https://blog.example/post", "brand": "Acme"}

	w := env.do(t, http.MethodPost, "/api/analyze", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp AnalysisResponse
	decode(t, w, &resp)
	assert.Equal(t, "Acme", resp.Post.Brand)
	assert.Equal(t, "https://blog.example/post", resp.Debunk.URL)
	require.Len(t, resp.Cited, 1)
	assert.False(t, resp.Duplicate)

	w = env.do(t, http.MethodPost, "/api/analyze", body)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.True(t, resp.Duplicate, "an analysed URL returns its recorded debunk")

	entries, err := env.store.LedgerEntries(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAnalyzeManual_FetchFailure(t *testing.T) {
	env := setupEnv(t, "False", model.APIConfig{})
	env.deps.Manual = pipeline.NewManualAnalyzer(env.store, env.proc, stubFetcher{err: fetch.ErrNoText}, nil)
	env.router = NewServer(env.deps, model.APIConfig{}, "test", nil).Router()

	w := env.do(t, http.MethodPost, "/api/analyze", map[string]string{"url": "https://blog.example/empty"})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	env.deps.Manual = pipeline.NewManualAnalyzer(env.store, env.proc, nil, nil)
	env.router = NewServer(env.deps, model.APIConfig{}, "test", nil).Router()

	w = env.do(t, http.MethodPost, "/api/analyze", map[string]string{"url": "https://blog.example/post"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "url analysis needs a fetcher")
}

func TestHistoryAndRetroactiveNotify(t *testing.T) {
	env := setupEnv(t, "True", model.APIConfig{})
	env.do(t, http.MethodPost, "/api/companies", map[string]string{"name": "Acme", "email": "pr@acme.example"})
	w := env.do(t, http.MethodPost, "/api/analyze", map[string]string{"text": "Acme is hiring", "brand": "Acme"})
	require.Equal(t, http.StatusOK, w.Code)

	var hist struct {
		Debunks []DebunkView `json:"debunks"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/history", nil), &hist)
	require.Len(t, hist.Debunks, 1)
	d := hist.Debunks[0]
	assert.Equal(t, "Acme", d.Brand)
	assert.False(t, d.NotificationSent)

	// retroactive sends ignore the verdict gate
	w = env.do(t, http.MethodPost, "/api/history/"+itoa(d.ID)+"/notify", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, env.notifier.sent, 1)
	assert.Equal(t, "pr@acme.example", env.notifier.sent[0].To)

	w = env.do(t, http.MethodPost, "/api/history/"+itoa(d.ID)+"/notify", map[string]string{"email": "legal@acme.example"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "legal@acme.example", env.notifier.sent[1].To)

	decode(t, env.do(t, http.MethodGet, "/api/history", nil), &hist)
	assert.True(t, hist.Debunks[0].NotificationSent)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/history/999/notify", nil).Code)
}

func TestRetroactiveNotify_Failures(t *testing.T) {
	env := setupEnv(t, "False", model.APIConfig{})
	w := env.do(t, http.MethodPost, "/api/analyze", map[string]string{"text": "Acme leaked data"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp AnalysisResponse
	decode(t, w, &resp)
	path := "/api/history/" + itoa(resp.Debunk.ID) + "/notify"

	env.notifier.err = notify.ErrNotConfigured
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodPost, path, nil).Code)

	env.notifier.err = errors.New("smtp down")
	assert.Equal(t, http.StatusBadGateway, env.do(t, http.MethodPost, path, nil).Code)

	d, err := env.store.GetDebunk(context.Background(), resp.Debunk.ID)
	require.NoError(t, err)
	assert.False(t, d.NotificationSent, "failed sends leave the flag unset")
}

func TestLedgerVerify_DetectsTampering(t *testing.T) {
	env := setupEnv(t, "False", model.APIConfig{})
	for _, text := range []string{"first claim", "second claim", "third claim"} {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/analyze", map[string]string{"text": text}).Code)
	}

	var entries struct {
		Entries []model.LedgerEntry `json:"entries"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/ledger", nil), &entries)
	require.Len(t, entries.Entries, 3)
	assert.Equal(t, ledger.GenesisHash, entries.Entries[0].PrevHash)

	var report ledger.Report
	w := env.do(t, http.MethodGet, "/api/ledger/verify", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &report)
	assert.True(t, report.Valid)
	assert.Equal(t, 3, report.Entries)

	require.NoError(t, env.store.DB().Model(&model.LedgerEntry{}).
		Where("sequence = ?", 2).
		Update("payload", `{"verdict":"True"}`).Error)

	w = env.do(t, http.MethodGet, "/api/ledger/verify", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	decode(t, w, &report)
	assert.False(t, report.Valid)
	assert.Equal(t, uint64(2), report.Sequence)
	assert.NotEmpty(t, report.Error)
}

// A collected High post is picked up by the watchdog, adjudicated False,
// alerted once, and recorded in a verifiable ledger.
func TestEndToEnd_CollectWatchNotifyVerify(t *testing.T) {
	env := setupEnv(t, "False", model.APIConfig{})
	ctx := context.Background()

	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/api/companies", map[string]string{"name": "Acme", "email": "pr@acme.example"}).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/scan", nil).Code)

	report := env.watchdog.RunCycle(ctx)
	assert.Equal(t, 2, report.Pending)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.Notified)
	assert.Zero(t, report.Failed)

	require.Len(t, env.notifier.sent, 2)
	for _, a := range env.notifier.sent {
		assert.Equal(t, "pr@acme.example", a.To)
		assert.Equal(t, model.VerdictFalse, a.Verdict)
		assert.Equal(t, 80, a.Confidence)
		assert.True(t, strings.HasPrefix(a.PostURL, "https://news.example/"))
	}

	var hist struct {
		Debunks []DebunkView `json:"debunks"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/history", nil), &hist)
	require.Len(t, hist.Debunks, 2)
	for _, d := range hist.Debunks {
		assert.True(t, d.NotificationSent)
		assert.Equal(t, []string{"https://status.acme.example"}, d.Sources)
	}

	var posts struct {
		Count int `json:"count"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/posts/unanalysed", nil), &posts)
	assert.Zero(t, posts.Count)

	again := env.watchdog.RunCycle(ctx)
	assert.Zero(t, again.Pending)
	assert.Len(t, env.notifier.sent, 2, "no post is alerted twice")

	var verify ledger.Report
	w := env.do(t, http.MethodGet, "/api/ledger/verify", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &verify)
	assert.True(t, verify.Valid)
	assert.Equal(t, 2, verify.Entries)
}

func itoa(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}
