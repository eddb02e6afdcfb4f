package model

import (
	"fmt"
	"strings"
	"time"
)

// Config is the complete claimwatch configuration. It is built once at
// startup and handed to components by value or pointer; nothing mutates it
// after Load returns.
type Config struct {
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Sources    SourcesConfig    `yaml:"sources" mapstructure:"sources"`
	Evidence   EvidenceConfig   `yaml:"evidence" mapstructure:"evidence"`
	Authority  AuthorityConfig  `yaml:"authority" mapstructure:"authority"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Priority   PriorityConfig   `yaml:"priority" mapstructure:"priority"`
	Watchdog   WatchdogConfig   `yaml:"watchdog" mapstructure:"watchdog"`
	Collection CollectionConfig `yaml:"collection" mapstructure:"collection"`
	SMTP       SMTPConfig       `yaml:"smtp" mapstructure:"smtp"`
	API        APIConfig        `yaml:"api" mapstructure:"api"`
	HTTP       HTTPConfig       `yaml:"http" mapstructure:"http"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" mapstructure:"telemetry"`
}

// DatabaseConfig selects the store backend
type DatabaseConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// LLMConfig configures the claim-analysis oracle
type LLMConfig struct {
	Provider     string        `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, "" (disabled)
	Model        string        `yaml:"model" mapstructure:"model"`       // empty selects the provider default
	APIKey       string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Organization string        `yaml:"organization,omitempty" mapstructure:"organization"`
	Project      string        `yaml:"project,omitempty" mapstructure:"project"`
	BaseURL      string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxTokens    int           `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SourcesConfig holds credentials for the source collaborators.
// A source with missing credentials is skipped, never an error.
type SourcesConfig struct {
	NewsAPIKey         string `yaml:"newsapi_key,omitempty" mapstructure:"newsapi_key"`
	RedditClientID     string `yaml:"reddit_client_id,omitempty" mapstructure:"reddit_client_id"`
	RedditClientSecret string `yaml:"reddit_client_secret,omitempty" mapstructure:"reddit_client_secret"`
	RedditUserAgent    string `yaml:"reddit_user_agent" mapstructure:"reddit_user_agent"`
	YouTubeAPIKey      string `yaml:"youtube_api_key,omitempty" mapstructure:"youtube_api_key"`
	SerpAPIKey         string `yaml:"serpapi_key,omitempty" mapstructure:"serpapi_key"`
	RSSEnabled         bool   `yaml:"rss_enabled" mapstructure:"rss_enabled"`
	RSSURLTemplate     string `yaml:"rss_url_template" mapstructure:"rss_url_template"`
	MaxItems           int    `yaml:"max_items" mapstructure:"max_items"`
}

// EvidenceConfig selects the evidence search backend
type EvidenceConfig struct {
	Backend    string        `yaml:"backend" mapstructure:"backend"` // auto, none, serpapi
	MaxResults int           `yaml:"max_results" mapstructure:"max_results"`
	CacheTTL   time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// AuthorityConfig classifies evidence hosts
type AuthorityConfig struct {
	PrimaryDomains   []string          `yaml:"primary_domains" mapstructure:"primary_domains"`
	SecondaryDomains []string          `yaml:"secondary_domains" mapstructure:"secondary_domains"`
	DomainMap        map[string]string `yaml:"domain_map,omitempty" mapstructure:"domain_map"`
}

// CacheConfig configures the evidence cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
	RedisURL  string        `yaml:"redis_url,omitempty" mapstructure:"redis_url"`
}

// PriorityConfig holds the scoring policy constants
type PriorityConfig struct {
	RiskKeywords    []string `yaml:"risk_keywords" mapstructure:"risk_keywords"`
	KeywordBonus    int      `yaml:"keyword_bonus" mapstructure:"keyword_bonus"`
	HighThreshold   int      `yaml:"high_threshold" mapstructure:"high_threshold"`
	MediumThreshold int      `yaml:"medium_threshold" mapstructure:"medium_threshold"`
}

// WatchdogConfig configures the high-priority polling loop
type WatchdogConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	Workers  int           `yaml:"workers" mapstructure:"workers"`
}

// CollectionConfig configures the bulk collection job
type CollectionConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	OnStart  bool          `yaml:"on_start" mapstructure:"on_start"`
	Workers  int           `yaml:"workers" mapstructure:"workers"`
}

// SMTPConfig configures the alert collaborator
type SMTPConfig struct {
	Host     string        `yaml:"host" mapstructure:"host"`
	Port     int           `yaml:"port" mapstructure:"port"`
	Sender   string        `yaml:"sender,omitempty" mapstructure:"sender"`
	Password string        `yaml:"password,omitempty" mapstructure:"password"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Configured reports whether outbound email can be attempted
func (c SMTPConfig) Configured() bool {
	// the sample .env ships a your_email@... placeholder
	return c.Sender != "" && c.Password != "" && c.Host != "" &&
		!strings.Contains(c.Sender, "your_email")
}

// APIConfig configures the operator HTTP surface
type APIConfig struct {
	Host          string `yaml:"host" mapstructure:"host"`
	Port          int    `yaml:"port" mapstructure:"port"`
	AdminPassword string `yaml:"admin_password,omitempty" mapstructure:"admin_password"`
	Debug         bool   `yaml:"debug" mapstructure:"debug"`
}

// HTTPConfig configures outbound HTTP for source and evidence calls
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent         string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
	RespectRobots     bool          `yaml:"respect_robots" mapstructure:"respect_robots"` // article fetches only
	HTTPProxy         string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy        string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy           string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// LoggingConfig configures zap
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or text
}

// TelemetryConfig configures tracing and metrics export
type TelemetryConfig struct {
	Enabled           bool   `yaml:"enabled" mapstructure:"enabled"`
	JaegerURL         string `yaml:"jaeger_url,omitempty" mapstructure:"jaeger_url"`
	PrometheusEnabled bool   `yaml:"prometheus_enabled" mapstructure:"prometheus_enabled"`
	ServiceName       string `yaml:"service_name" mapstructure:"service_name"`
}

// DefaultRiskKeywords are the terms that force a post into the High tier
var DefaultRiskKeywords = []string{
	"lawsuit", "antitrust", "monopoly", "layoffs", "privacy",
	"scandal", "outage", "breach", "hack", "fine", "investigation",
	"fraud", "scam", "illegal", "danger", "collapse",
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "claimwatch.db",
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Timeout:   30 * time.Second,
			MaxTokens: 800,
		},
		Sources: SourcesConfig{
			RedditUserAgent: "claimwatch_bot/1.0",
			RSSEnabled:      true,
			RSSURLTemplate:  "https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en",
			MaxItems:        10,
		},
		Evidence: EvidenceConfig{
			Backend:    "auto",
			MaxResults: 5,
			CacheTTL:   6 * time.Hour,
		},
		Authority: AuthorityConfig{
			PrimaryDomains: []string{
				"sec.gov", "ftc.gov", "justice.gov", "europa.eu", "gov.uk",
				"courtlistener.com", "supremecourt.gov",
			},
			SecondaryDomains: []string{
				"reuters.com", "apnews.com", "bloomberg.com", "ft.com", "wsj.com",
				"nytimes.com", "bbc.co.uk", "bbc.com", "theguardian.com",
			},
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       "",
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Priority: PriorityConfig{
			RiskKeywords:    append([]string(nil), DefaultRiskKeywords...),
			KeywordBonus:    150,
			HighThreshold:   100,
			MediumThreshold: 50,
		},
		Watchdog: WatchdogConfig{
			Enabled:  true,
			Interval: 10 * time.Second,
			Workers:  1,
		},
		Collection: CollectionConfig{
			Enabled:  true,
			Interval: 6 * time.Hour,
			OnStart:  false,
			Workers:  4,
		},
		SMTP: SMTPConfig{
			Host:    "smtp.gmail.com",
			Port:    587,
			Timeout: 20 * time.Second,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		HTTP: HTTPConfig{
			Timeout:           15 * time.Second,
			UserAgent:         "claimwatch/0.1 (+https://github.com/ppiankov/claimwatch)",
			MaxBodyBytes:      2_000_000,
			RequestsPerSecond: 2,
			Burst:             5,
			RespectRobots:     true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:           false,
			PrometheusEnabled: true,
			ServiceName:       "claimwatch",
		},
	}
}

// Validate checks ranges and cross-field constraints
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	p := c.Priority
	if p.MediumThreshold <= 0 || p.HighThreshold <= p.MediumThreshold {
		return fmt.Errorf("priority thresholds must satisfy 0 < medium (%d) < high (%d)", p.MediumThreshold, p.HighThreshold)
	}
	if p.KeywordBonus < p.HighThreshold {
		return fmt.Errorf("priority.keyword_bonus (%d) must be at least high_threshold (%d)", p.KeywordBonus, p.HighThreshold)
	}

	if c.Watchdog.Interval <= 0 {
		return fmt.Errorf("watchdog.interval must be positive")
	}
	if c.Watchdog.Workers <= 0 || c.Watchdog.Workers > 64 {
		return fmt.Errorf("watchdog.workers must be between 1 and 64")
	}
	if c.Collection.Interval <= 0 {
		return fmt.Errorf("collection.interval must be positive")
	}
	if c.Collection.Workers <= 0 || c.Collection.Workers > 64 {
		return fmt.Errorf("collection.workers must be between 1 and 64")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	if c.SMTP.Timeout <= 0 {
		return fmt.Errorf("smtp.timeout must be positive")
	}
	switch c.Evidence.Backend {
	case "auto", "none", "serpapi":
	default:
		return fmt.Errorf("evidence.backend must be auto, none or serpapi, got %q", c.Evidence.Backend)
	}
	return nil
}
