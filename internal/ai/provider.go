// Package ai wires the hosted model providers behind a single Genkit registry.
//
// Model names are fully qualified as "<provider>/<model>", e.g.
// "googleai/gemini-2.5-flash" or "anthropic/claude-sonnet-4-5". The prefix
// selects the provider plugin; unknown prefixes are rejected before any
// network call is made. xAI has no native Genkit plugin and is reached through
// the OpenAI-compatible adapter with a custom base URL.
//
// Organizations may store their own provider API key (encrypted at rest).
// When an override key is present, model calls for that organization run
// against a dedicated Genkit instance initialized with that key; all other
// traffic shares the default instance built from process environment keys.
package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/firebase/genkit/go/plugins/compat_oai/anthropic"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/openai/openai-go/option"

	"github.com/grooshub/grooshub/internal/config"
)

// Provider prefixes accepted in qualified model names.
const (
	ProviderGoogleAI  = "googleai"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderXAI       = "xai"
)

// ErrUnknownProvider is returned for model names whose prefix does not match
// a configured provider.
var ErrUnknownProvider = fmt.Errorf("unknown model provider")

// ParseModel splits a qualified model name into provider and bare model name.
func ParseModel(name string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(name, "/")
	if !ok || provider == "" || model == "" {
		return "", "", fmt.Errorf("%w: model name %q must be '<provider>/<model>'", ErrUnknownProvider, name)
	}
	switch provider {
	case ProviderGoogleAI, ProviderOpenAI, ProviderAnthropic, ProviderXAI:
		return provider, model, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

// Provider owns the Genkit instances used for chat, classification, and
// embedding calls.
type Provider struct {
	cfg *config.AIConfig

	def *genkit.Genkit

	mu        sync.Mutex
	overrides map[string]*genkit.Genkit
}

// NewProvider initializes the default Genkit instance from process
// environment keys (GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY,
// XAI_API_KEY). Providers without a key are simply not registered; a model
// call routed to an unregistered provider fails at lookup, not at startup.
func NewProvider(ctx context.Context, cfg *config.AIConfig) (*Provider, error) {
	g, err := initGenkit(ctx, cfg, "", "")
	if err != nil {
		return nil, err
	}

	return &Provider{
		cfg:       cfg,
		def:       g,
		overrides: make(map[string]*genkit.Genkit),
	}, nil
}

// Genkit returns the default Genkit instance.
func (p *Provider) Genkit() *genkit.Genkit {
	return p.def
}

// GenkitFor returns the Genkit instance to use for the given provider and
// optional organization override key. A nil or empty key selects the shared
// default instance. Override instances are cached by key fingerprint so
// repeated calls for the same organization do not re-initialize plugins.
func (p *Provider) GenkitFor(ctx context.Context, provider string, overrideKey *string) (*genkit.Genkit, error) {
	if overrideKey == nil || *overrideKey == "" {
		return p.def, nil
	}

	sum := sha256.Sum256([]byte(provider + ":" + *overrideKey))
	cacheKey := hex.EncodeToString(sum[:])

	p.mu.Lock()
	defer p.mu.Unlock()

	if g, ok := p.overrides[cacheKey]; ok {
		return g, nil
	}

	g, err := initGenkit(ctx, p.cfg, provider, *overrideKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider with organization key: %w", err)
	}
	p.overrides[cacheKey] = g
	return g, nil
}

// DefaultModel returns the configured default chat model name.
func (p *Provider) DefaultModel() string {
	return p.cfg.DefaultModel
}

// ClassifierModel returns the configured classification model name.
func (p *Provider) ClassifierModel() string {
	return p.cfg.ClassifierModel
}

// initGenkit builds a Genkit instance. When overrideProvider is non-empty the
// override key replaces the environment key for that provider only.
func initGenkit(ctx context.Context, cfg *config.AIConfig, overrideProvider, overrideKey string) (*genkit.Genkit, error) {
	keyFor := func(provider, envVar string) string {
		if provider == overrideProvider && overrideKey != "" {
			return overrideKey
		}
		return os.Getenv(envVar)
	}

	var plugins []api.Plugin

	// googlegenai reads GEMINI_API_KEY / GOOGLE_API_KEY itself when APIKey is
	// empty; only register it when some key is available
	if key := keyFor(ProviderGoogleAI, "GEMINI_API_KEY"); key != "" || os.Getenv("GOOGLE_API_KEY") != "" {
		plugins = append(plugins, &googlegenai.GoogleAI{APIKey: key})
	}

	if key := keyFor(ProviderOpenAI, "OPENAI_API_KEY"); key != "" {
		plugins = append(plugins, &openai.OpenAI{APIKey: key})
	}

	if key := keyFor(ProviderAnthropic, "ANTHROPIC_API_KEY"); key != "" {
		plugins = append(plugins, &anthropic.Anthropic{
			Opts: []option.RequestOption{option.WithAPIKey(key)},
		})
	}

	var xaiPlugin *compat_oai.OpenAICompatible
	if key := keyFor(ProviderXAI, "XAI_API_KEY"); key != "" && cfg.XAIBaseURL != "" {
		xaiPlugin = &compat_oai.OpenAICompatible{
			Provider: ProviderXAI,
			Opts: []option.RequestOption{
				option.WithAPIKey(key),
				option.WithBaseURL(cfg.XAIBaseURL),
			},
		}
		plugins = append(plugins, xaiPlugin)
	}

	g := genkit.Init(ctx, genkit.WithPlugins(plugins...))
	if g == nil {
		return nil, fmt.Errorf("failed to initialize genkit")
	}

	// The OpenAI-compatible adapter has no model auto-discovery; register the
	// configured xAI models explicitly
	if xaiPlugin != nil {
		for _, qualified := range []string{cfg.DefaultModel, cfg.ClassifierModel} {
			provider, model, err := ParseModel(qualified)
			if err != nil || provider != ProviderXAI {
				continue
			}
			xaiPlugin.DefineModel(ProviderXAI, model, ai.ModelOptions{
				Label: model,
				Supports: &ai.ModelSupports{
					Multiturn:  true,
					Tools:      true,
					SystemRole: true,
				},
			})
		}
	}

	return g, nil
}
