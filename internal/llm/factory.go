package llm

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/claimwatch/internal/util"
)

// NewProvider creates a new LLM provider based on configuration.
// An empty provider name returns (nil, nil): the oracle is disabled.
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(strings.TrimSpace(config.Provider))

	switch provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "", "none", "disabled":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// NewOracle builds the claim oracle for config. A disabled or misconfigured
// provider yields a DisabledOracle so analysis degrades to Unclear instead of
// failing startup.
func NewOracle(config Config, log *zap.Logger) Oracle {
	provider, err := NewProvider(config)
	if err != nil {
		log.Warn("LLM provider unavailable, claim analysis disabled", zap.Error(err))
		return DisabledOracle{}
	}
	if provider == nil {
		log.Info("LLM provider not configured, claim analysis disabled")
		return DisabledOracle{}
	}
	log.Info("LLM provider configured", zap.String("provider", provider.Name()))
	return NewProviderOracle(provider, log)
}

func newHTTPClient(config Config, fallback time.Duration) *http.Client {
	return &http.Client{
		Timeout: config.timeout(fallback),
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
		},
	}
}
