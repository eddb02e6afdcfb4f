package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/claimwatch/internal/model"
)

// EnvPrefix namespaces every configuration key in the environment,
// e.g. CLAIMWATCH_WATCHDOG_INTERVAL=30s
const EnvPrefix = "CLAIMWATCH"

// envAliases binds the bare variable names of a typical .env file
var envAliases = map[string][]string{
	"database.dsn":                 {"DATABASE_URL"},
	"llm.provider":                 {"LLM_PROVIDER"},
	"llm.model":                    {"LLM_MODEL"},
	"llm.api_key":                  {"OPENAI_API_KEY", "ANTHROPIC_API_KEY"},
	"llm.organization":             {"OPENAI_ORG_ID"},
	"llm.project":                  {"OPENAI_PROJECT_ID"},
	"llm.base_url":                 {"OLLAMA_BASE_URL"},
	"sources.newsapi_key":          {"NEWS_API_KEY"},
	"sources.reddit_client_id":     {"REDDIT_CLIENT_ID"},
	"sources.reddit_client_secret": {"REDDIT_CLIENT_SECRET"},
	"sources.reddit_user_agent":    {"REDDIT_USER_AGENT"},
	"sources.youtube_api_key":      {"YOUTUBE_API_KEY"},
	"sources.serpapi_key":          {"SERPAPI_KEY"},
	"smtp.sender":                  {"EMAIL_SENDER"},
	"smtp.password":                {"EMAIL_PASSWORD"},
	"smtp.host":                    {"EMAIL_SMTP_SERVER"},
	"smtp.port":                    {"EMAIL_SMTP_PORT"},
	"api.admin_password":           {"ADMIN_PASSWORD"},
	"cache.redis_url":              {"REDIS_URL"},
	"http.http_proxy":              {"HTTP_PROXY"},
	"http.https_proxy":             {"HTTPS_PROXY"},
	"http.no_proxy":                {"NO_PROXY"},
	"telemetry.jaeger_url":         {"JAEGER_URL"},
}

// Options locate configuration sources
type Options struct {
	// File is an explicit config file; empty searches ~/.claimwatch and the working directory
	File string
	// EnvFile is a dotenv file; empty loads ./.env when present
	EnvFile string
}

// Load builds the configuration. Precedence, highest first: environment,
// .env file, config file, defaults. Command-line flags are applied by the
// caller on the returned value.
func Load(opts Options) (*model.Config, string, error) {
	if err := loadDotEnv(opts.EnvFile); err != nil {
		return nil, "", err
	}

	v := viper.New()
	v.SetConfigType("yaml")

	defaults, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return nil, "", fmt.Errorf("marshal defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, "", fmt.Errorf("load defaults: %w", err)
	}

	used, err := mergeConfigFile(v, opts.File)
	if err != nil {
		return nil, "", err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, "", fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	cfg := model.DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("decode config: %w", err)
	}
	normalize(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, used, nil
}

func loadDotEnv(path string) error {
	if path == "" {
		path = ".env"
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
	}
	// existing environment variables win over the file
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func mergeConfigFile(v *viper.Viper, file string) (string, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return "", fmt.Errorf("read config file %s: %w", file, err)
		}
		return file, nil
	}

	for _, candidate := range searchPaths() {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		v.SetConfigFile(candidate)
		if err := v.MergeInConfig(); err != nil {
			return "", fmt.Errorf("read config file %s: %w", candidate, err)
		}
		return candidate, nil
	}
	return "", nil
}

func searchPaths() []string {
	var paths []string
	if p, err := DefaultPath(); err == nil {
		paths = append(paths, p)
	}
	return append(paths, "config.yaml")
}

// DefaultPath returns ~/.claimwatch/config.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".claimwatch", "config.yaml"), nil
}

// normalize trims the quotes people paste around secrets and infers the
// database driver from a postgres DSN
func normalize(cfg *model.Config) {
	for _, s := range []*string{
		&cfg.LLM.APIKey, &cfg.LLM.Organization, &cfg.LLM.Project,
		&cfg.Sources.NewsAPIKey, &cfg.Sources.RedditClientID, &cfg.Sources.RedditClientSecret,
		&cfg.Sources.YouTubeAPIKey, &cfg.Sources.SerpAPIKey,
		&cfg.SMTP.Sender, &cfg.SMTP.Password, &cfg.API.AdminPassword,
		&cfg.Database.DSN,
	} {
		*s = cleanValue(*s)
	}

	if IsPostgresDSN(cfg.Database.DSN) {
		cfg.Database.Driver = "postgres"
	}
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
}

// IsPostgresDSN reports whether dsn is a postgres connection URL
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func cleanValue(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

// Redacted returns a copy of cfg with credentials masked for display
func Redacted(cfg model.Config) model.Config {
	for _, s := range []*string{
		&cfg.LLM.APIKey, &cfg.Sources.NewsAPIKey, &cfg.Sources.RedditClientSecret,
		&cfg.Sources.YouTubeAPIKey, &cfg.Sources.SerpAPIKey, &cfg.SMTP.Password,
		&cfg.API.AdminPassword,
	} {
		*s = mask(*s)
	}
	if strings.Contains(cfg.Database.DSN, "@") {
		cfg.Database.DSN = maskDSN(cfg.Database.DSN)
	}
	if strings.Contains(cfg.Cache.RedisURL, "@") {
		cfg.Cache.RedisURL = maskDSN(cfg.Cache.RedisURL)
	}
	return cfg
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDSN hides the userinfo of a URL-style DSN
func maskDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return "****"
	}
	at := strings.LastIndex(rest, "@")
	return scheme + "://****" + rest[at:]
}

// WriteDefault writes the default configuration to path, refusing to
// overwrite an existing file
func WriteDefault(path string) (err error) {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close config file: %w", closeErr)
		}
	}()

	header := "# claimwatch configuration\n" +
		"#\n" +
		"# Precedence (highest first): flags, environment (" + EnvPrefix + "_*, OPENAI_API_KEY,\n" +
		"# NEWS_API_KEY, ...), .env, this file, built-in defaults.\n" +
		"# Durations accept Go syntax such as 10s or 6h.\n\n"
	if _, err = f.WriteString(header); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
