package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/collect"
	"github.com/ppiankov/claimwatch/internal/ledger"
	"github.com/ppiankov/claimwatch/internal/model"
	"github.com/ppiankov/claimwatch/internal/notify"
	"github.com/ppiankov/claimwatch/internal/pipeline"
	"github.com/ppiankov/claimwatch/internal/store"
)

const (
	defaultPostLimit    = 100
	defaultHistoryLimit = 50
	maxListLimit        = 1000
)

// PostView is a post as listed on the dashboard
type PostView struct {
	model.Post
	Badge string `json:"badge"`
}

// DebunkView is one history row
type DebunkView struct {
	ID               uint          `json:"id"`
	PostID           uint          `json:"post_id"`
	Brand            string        `json:"brand"`
	URL              string        `json:"url"`
	Claim            string        `json:"claim"`
	Verdict          model.Verdict `json:"verdict"`
	Confidence       int           `json:"confidence"`
	Explanation      string        `json:"explanation"`
	Sources          []string      `json:"sources"`
	PRResponse       string        `json:"pr_response"`
	NotificationSent bool          `json:"notification_sent"`
	CreatedAt        time.Time     `json:"created_at"`
}

func newDebunkView(d model.Debunk) DebunkView {
	v := DebunkView{
		ID:               d.ID,
		PostID:           d.PostID,
		URL:              d.Post.URLOr(""),
		Claim:            d.ClaimText,
		Verdict:          d.Verdict,
		Confidence:       d.Confidence,
		Explanation:      d.Explanation,
		Sources:          []string(d.Sources),
		PRResponse:       d.PRResponse,
		NotificationSent: d.NotificationSent,
		CreatedAt:        d.CreatedAt,
	}
	if d.Post != nil {
		v.Brand = d.Post.Brand
	}
	if v.Sources == nil {
		v.Sources = []string{}
	}
	return v
}

// AnalysisResponse is returned by both analyze endpoints
type AnalysisResponse struct {
	Post      *model.Post          `json:"post"`
	Debunk    DebunkView           `json:"debunk"`
	Evidence  []model.EvidenceItem `json:"evidence,omitempty"`
	Cited     []model.EvidenceItem `json:"cited,omitempty"`
	Sequence  uint64               `json:"ledger_sequence,omitempty"`
	Hash      string               `json:"ledger_hash,omitempty"`
	Duplicate bool                 `json:"duplicate,omitempty"`
}

type companyRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

type notifyRequest struct {
	Email string `json:"email"`
}

func (s *Server) health(c *gin.Context) {
	if err := s.deps.Store.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"service": "claimwatch",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"service": "claimwatch",
		"version": s.version,
	})
}

func (s *Server) stats(c *gin.Context) {
	st, err := s.deps.Store.Stats(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) listCompanies(c *gin.Context) {
	companies, err := s.deps.Store.ListCompanies(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"companies": companies, "count": len(companies)})
}

func (s *Server) addCompany(c *gin.Context) {
	var req companyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and a valid email are required"})
		return
	}

	company, created, err := s.deps.Store.AddCompany(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		s.internalError(c, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"company": company, "created": created})
}

func (s *Server) deleteCompany(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := s.deps.Store.DeleteCompany(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "company not found"})
			return
		}
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) scan(c *gin.Context) {
	ctx := c.Request.Context()

	if name := strings.TrimSpace(c.Query("company")); name != "" {
		report := s.deps.Collector.CollectCompany(ctx, name)
		c.JSON(http.StatusOK, gin.H{"reports": []collect.Report{report}})
		return
	}

	reports, err := s.deps.Collector.CollectAll(ctx)
	if err != nil {
		// partial results are still useful to the operator
		c.JSON(http.StatusInternalServerError, gin.H{"reports": reports, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (s *Server) unanalysedPosts(c *gin.Context) {
	posts, err := s.deps.Store.UnanalysedPosts(c.Request.Context(), queryLimit(c, defaultPostLimit))
	if err != nil {
		s.internalError(c, err)
		return
	}
	views := make([]PostView, 0, len(posts))
	for _, p := range posts {
		views = append(views, PostView{Post: p, Badge: p.Priority.Badge()})
	}
	c.JSON(http.StatusOK, gin.H{"posts": views, "count": len(views)})
}

func (s *Server) analyzePost(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	post, err := s.deps.Store.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
			return
		}
		s.internalError(c, err)
		return
	}

	s.process(c, post)
}

func (s *Server) analyzeManual(c *gin.Context) {
	var req pipeline.ManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	res, err := s.deps.Manual.Analyze(c.Request.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrEmptyRequest), errors.Is(err, pipeline.ErrURLUnsupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, pipeline.ErrArticleUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	default:
		s.internalError(c, err)
		return
	}

	resp := AnalysisResponse{
		Post:      res.Post,
		Debunk:    newDebunkView(*res.Debunk),
		Cited:     res.Cited,
		Duplicate: res.Duplicate,
	}
	if res.Analysis != nil {
		resp.Evidence = res.Analysis.Evidence
	}
	if res.Entry != nil {
		resp.Sequence = res.Entry.Sequence
		resp.Hash = res.Entry.Hash
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) process(c *gin.Context, post *model.Post) {
	outcome, err := s.deps.Processor.Process(c.Request.Context(), post)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyAnalysed) {
			c.JSON(http.StatusConflict, gin.H{"error": "post already analysed", "post_id": post.ID})
			return
		}
		s.internalError(c, err)
		return
	}

	post.Analysed = true
	debunk := *outcome.Debunk
	if debunk.Post == nil {
		debunk.Post = post
	}
	c.JSON(http.StatusOK, AnalysisResponse{
		Post:     post,
		Debunk:   newDebunkView(debunk),
		Evidence: outcome.Analysis.Evidence,
		Sequence: outcome.Entry.Sequence,
		Hash:     outcome.Entry.Hash,
	})
}

func (s *Server) history(c *gin.Context) {
	debunks, err := s.deps.Store.History(c.Request.Context(), queryLimit(c, defaultHistoryLimit))
	if err != nil {
		s.internalError(c, err)
		return
	}
	views := make([]DebunkView, 0, len(debunks))
	for _, d := range debunks {
		views = append(views, newDebunkView(d))
	}
	c.JSON(http.StatusOK, gin.H{"debunks": views, "count": len(views)})
}

func (s *Server) notifyDebunk(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}

	var req notifyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	alert, err := s.deps.Resender.Resend(c.Request.Context(), id, strings.TrimSpace(req.Email))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "alert": alert})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "debunk not found"})
	case errors.Is(err, notify.ErrNoRecipient):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no recipient: pass an email or register the company"})
	case errors.Is(err, notify.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "alert": alert})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to send alert: " + err.Error(), "alert": alert})
	}
}

func (s *Server) ledgerEntries(c *gin.Context) {
	entries, err := s.deps.Store.LedgerEntries(c.Request.Context(), queryLimit(c, 0))
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (s *Server) verifyLedger(c *gin.Context) {
	report, err := s.deps.Store.VerifyLedger(c.Request.Context())
	if err != nil {
		if errors.Is(err, ledger.ErrTampered) {
			s.logger.Error("ledger integrity violated",
				zap.Uint64("sequence", report.Sequence),
				zap.Error(err),
			)
			c.JSON(http.StatusConflict, report)
			return
		}
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// queryLimit reads ?limit=, clamped to maxListLimit. Zero means unlimited
// only when def is zero.
func queryLimit(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit < 0 {
		return def
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
