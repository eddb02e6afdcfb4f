package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ppiankov/claimwatch/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyAnalysed is returned when another actor committed a debunk first
	ErrAlreadyAnalysed = errors.New("post already analysed")
)

// Store is the shared persistent state of claimwatch. All ledger appends go
// through CommitAnalysis, which holds writeMu for the whole transaction.
type Store struct {
	db      *gorm.DB
	logger  *zap.Logger
	writeMu sync.Mutex
}

// zapWriter adapts zap.Logger to gorm's logger.Writer
type zapWriter struct {
	logger *zap.Logger
}

func (w *zapWriter) Printf(format string, args ...interface{}) {
	w.logger.Sugar().Infof(format, args...)
}

// Open connects to the configured database and runs migrations
func Open(cfg model.DatabaseConfig, logLevel string, log *zap.Logger) (*Store, error) {
	log = orNop(log).With(zap.String("component", "store"))

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(log, logLevel),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.Driver == "postgres" {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// one connection: sqlite has a single writer, and :memory: is per connection
		sqlDB.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := New(db, log)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	log.Info("Database connection established", zap.String("driver", cfg.Driver))
	return s, nil
}

// New wraps an existing gorm connection
func New(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, logger: orNop(log)}
}

// Migrate creates or updates the schema
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(model.AllModels()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// DB exposes the underlying connection
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks database health
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Stats is a coarse snapshot of store contents
type Stats struct {
	Companies     int64 `json:"companies"`
	Posts         int64 `json:"posts"`
	Unanalysed    int64 `json:"unanalysed"`
	Debunks       int64 `json:"debunks"`
	LedgerEntries int64 `json:"ledger_entries"`
}

// Stats counts rows in every table
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx)
	counts := []struct {
		q   *gorm.DB
		dst *int64
	}{
		{db.Model(&model.Company{}), &st.Companies},
		{db.Model(&model.Post{}), &st.Posts},
		{db.Model(&model.Post{}).Where("analysed = ?", false), &st.Unanalysed},
		{db.Model(&model.Debunk{}), &st.Debunks},
		{db.Model(&model.LedgerEntry{}), &st.LedgerEntries},
	}
	for _, c := range counts {
		if err := c.q.Count(c.dst).Error; err != nil {
			return st, fmt.Errorf("count rows: %w", err)
		}
	}
	return st, nil
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "claimwatch.db"
	}
	if strings.Contains(dsn, "?") || strings.Contains(dsn, ":memory:") {
		return dsn
	}
	return dsn + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
}

func newGormLogger(log *zap.Logger, logLevel string) logger.Interface {
	var level logger.LogLevel
	switch strings.ToLower(logLevel) {
	case "debug":
		level = logger.Info
	case "info":
		level = logger.Warn
	case "warn", "warning":
		level = logger.Error
	case "error":
		level = logger.Silent
	default:
		level = logger.Warn
	}

	return logger.New(
		&zapWriter{logger: log},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

func orNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
