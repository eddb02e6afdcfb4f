package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/collect"
	"github.com/ppiankov/claimwatch/internal/ledger"
	"github.com/ppiankov/claimwatch/internal/logging"
	"github.com/ppiankov/claimwatch/internal/model"
	"github.com/ppiankov/claimwatch/internal/notify"
	"github.com/ppiankov/claimwatch/internal/pipeline"
	"github.com/ppiankov/claimwatch/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Store is the persistence surface the API reads and writes
type Store interface {
	Health(ctx context.Context) error
	Stats(ctx context.Context) (store.Stats, error)

	AddCompany(ctx context.Context, name, email string) (*model.Company, bool, error)
	ListCompanies(ctx context.Context) ([]model.Company, error)
	DeleteCompany(ctx context.Context, id uint) error

	GetPost(ctx context.Context, id uint) (*model.Post, error)
	UnanalysedPosts(ctx context.Context, limit int) ([]model.Post, error)

	History(ctx context.Context, limit int) ([]model.Debunk, error)

	LedgerEntries(ctx context.Context, limit int) ([]model.LedgerEntry, error)
	VerifyLedger(ctx context.Context) (ledger.Report, error)
}

// Processor analyses a stored post and commits the debunk
type Processor interface {
	Process(ctx context.Context, post *model.Post) (*pipeline.Outcome, error)
}

// Collector runs source collection on demand
type Collector interface {
	CollectAll(ctx context.Context) ([]collect.Report, error)
	CollectCompany(ctx context.Context, brand string) collect.Report
}

// Resender sends the alert for a stored debunk
type Resender interface {
	Resend(ctx context.Context, debunkID uint, recipient string) (*notify.Alert, error)
}

// ManualAnalyzer analyses operator-submitted text or URLs
type ManualAnalyzer interface {
	Analyze(ctx context.Context, req pipeline.ManualRequest) (*pipeline.ManualResult, error)
}

// Deps are the components the handlers call into. Metrics may be nil.
type Deps struct {
	Store     Store
	Processor Processor
	Manual    ManualAnalyzer
	Collector Collector
	Resender  Resender
	Metrics   http.Handler
}

// Server is the operator HTTP surface
type Server struct {
	deps    Deps
	cfg     model.APIConfig
	version string
	logger  *zap.Logger
}

// NewServer creates a Server
func NewServer(deps Deps, cfg model.APIConfig, version string, log *zap.Logger) *Server {
	return &Server{
		deps:    deps,
		cfg:     cfg,
		version: version,
		logger:  logging.OrNop(log).With(zap.String("component", "api")),
	}
}

// Router builds the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	if s.cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(Logger(s.logger))
	r.Use(CORS())

	r.GET("/health", s.health)
	r.GET("/.well-known/healthcheck.json", s.health)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}

	api := r.Group("/api")
	if s.cfg.AdminPassword != "" {
		api.Use(gin.BasicAuth(gin.Accounts{"admin": s.cfg.AdminPassword}))
	}
	{
		api.GET("/stats", s.stats)

		api.GET("/companies", s.listCompanies)
		api.POST("/companies", s.addCompany)
		api.DELETE("/companies/:id", s.deleteCompany)

		api.POST("/scan", s.scan)

		api.GET("/posts/unanalysed", s.unanalysedPosts)
		api.POST("/posts/:id/analyze", s.analyzePost)
		api.POST("/analyze", s.analyzeManual)

		api.GET("/history", s.history)
		api.POST("/history/:id/notify", s.notifyDebunk)

		api.GET("/ledger", s.ledgerEntries)
		api.GET("/ledger/verify", s.verifyLedger)
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
