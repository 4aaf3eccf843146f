package embedprovider

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderStatic uses deterministic hash-based embeddings. It is the only
	// built-in provider: embedding model training/serving is out of scope, but
	// the provider registry itself (interface, caching, dimension negotiation)
	// is in scope, so Static stands in as the reference implementation any
	// future network-backed provider would plug into.
	ProviderStatic ProviderType = "static"
)

// NewEmbedder creates an embedder for the given provider and dimension.
// The VECTORIZER_EMBEDDER environment variable can override the provider.
// Query embedding caching is enabled by default; set VECTORIZER_EMBED_CACHE=false
// to disable it.
func NewEmbedder(ctx context.Context, provider ProviderType, dim int) (Embedder, error) {
	if envProvider := os.Getenv("VECTORIZER_EMBEDDER"); envProvider != "" {
		provider = ParseProvider(envProvider)
	}

	var embedder Embedder
	switch provider {
	case ProviderStatic, "":
		embedder = newStaticForDim(dim)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedderWithDefaults(embedder)
	}

	return embedder, nil
}

// newStaticForDim returns the 768-dimension static embedder when dim is
// 768 and the 256-dimension one for any other dim; a collection whose dim
// is neither 768 nor 256 gets vectors of the wrong length from it.
func newStaticForDim(dim int) Embedder {
	if dim == Static768Dimensions {
		return NewStaticEmbedder768()
	}
	return NewStaticEmbedder()
}

// isCacheDisabled checks if embedding cache is disabled via environment.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("VECTORIZER_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// NewDefaultEmbedder creates the default static embedder (768 dimensions),
// matching the default collection dimension.
func NewDefaultEmbedder(ctx context.Context) (Embedder, error) {
	return NewEmbedder(ctx, ProviderStatic, Static768Dimensions)
}

// ParseProvider converts a string to ProviderType, defaulting to Static for
// anything unrecognized.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "static":
		return ProviderStatic
	default:
		return ProviderStatic
	}
}

// String returns the string representation of ProviderType.
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{string(ProviderStatic)}
}

// IsValidProvider checks if a provider name is valid.
func IsValidProvider(s string) bool {
	return strings.ToLower(s) == string(ProviderStatic)
}

// EmbedderInfo contains information about an embedder.
type EmbedderInfo struct {
	Provider   ProviderType
	Dimensions int
	Available  bool
}

// GetInfo returns information about an embedder, unwrapping a CachedEmbedder
// to describe the underlying provider.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.inner
	}

	return EmbedderInfo{
		Provider:   ProviderStatic,
		Dimensions: inner.Dimensions(),
		Available:  embedder.Available(ctx),
	}
}

// MustNewEmbedder creates an embedder and panics on failure.
// Use only in tests or initialization code where failure is fatal.
func MustNewEmbedder(ctx context.Context, provider ProviderType, dim int) Embedder {
	embedder, err := NewEmbedder(ctx, provider, dim)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
}
