package model

import (
	"fmt"
	"sync"
)

// Provider identifies a model backend.
type Provider string

// Supported providers.
const (
	ProviderOpenAI     Provider = "openai"
	ProviderDeepSeek   Provider = "deepseek"
	ProviderDashScope  Provider = "dashscope"
	ProviderCompatible Provider = "openai-compatible"
)

// Factory builds a Model for a provider from a model name and options.
type Factory func(name string, opts ...FactoryOption) (Model, error)

// FactoryOption configures provider construction.
type FactoryOption func(*FactoryOptions)

// FactoryOptions contains provider construction options.
type FactoryOptions struct {
	// APIKey authenticates against the provider.
	APIKey string
	// BaseURL overrides the provider endpoint.
	BaseURL string
}

// WithAPIKey sets the API key used by the provider.
func WithAPIKey(key string) FactoryOption {
	return func(o *FactoryOptions) { o.APIKey = key }
}

// WithBaseURL sets the provider endpoint.
func WithBaseURL(url string) FactoryOption {
	return func(o *FactoryOptions) { o.BaseURL = url }
}

var (
	registryMu sync.RWMutex
	registry   = make(map[Provider]Factory)
)

// RegisterProvider registers a factory for a provider. Providers register
// themselves in their package init; registering twice overwrites.
func RegisterProvider(p Provider, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p] = f
}

// NewFromProvider constructs a model via the registered factory for p.
func NewFromProvider(p Provider, name string, opts ...FactoryOption) (Model, error) {
	registryMu.RLock()
	f, ok := registry[p]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("model provider %q is not registered", p)
	}
	return f(name, opts...)
}
