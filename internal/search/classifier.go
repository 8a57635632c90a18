package search

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Default classifier configuration values.
const (
	DefaultClassifierCacheSize = 10000
)

// ClassifierConfig holds configuration for the query classifier.
type ClassifierConfig struct {
	// CacheSize is the LRU cache size for classification results (default: 10000).
	CacheSize int
}

// DefaultClassifierConfig returns sensible defaults for the classifier.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		CacheSize: DefaultClassifierCacheSize,
	}
}

// classificationResult holds cached classification data.
type classificationResult struct {
	queryType QueryType
	weights   Weights
}

// CachedClassifier wraps PatternClassifier with an LRU cache keyed on the
// normalized query string. Classification is pure pattern matching — no
// network call, no model load — so caching only saves the regex work on
// repeated queries within a session.
type CachedClassifier struct {
	patterns *PatternClassifier
	cache    *lru.Cache[string, classificationResult]
}

// NewCachedClassifier creates a classifier with the default cache size.
func NewCachedClassifier() *CachedClassifier {
	return NewCachedClassifierWithConfig(DefaultClassifierConfig())
}

// NewCachedClassifierWithConfig creates a classifier with custom configuration.
func NewCachedClassifierWithConfig(config ClassifierConfig) *CachedClassifier {
	cacheSize := config.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultClassifierCacheSize
	}
	cache, _ := lru.New[string, classificationResult](cacheSize)
	return &CachedClassifier{
		patterns: NewPatternClassifier(),
		cache:    cache,
	}
}

// Classify determines the query type and optimal weights, consulting the
// LRU cache before falling through to pattern matching.
func (c *CachedClassifier) Classify(ctx context.Context, query string) (QueryType, Weights, error) {
	cacheKey := normalizeQuery(query)
	if cacheKey == "" {
		return QueryTypeShort, WeightsForQueryType(QueryTypeShort), nil
	}

	if result, ok := c.cache.Get(cacheKey); ok {
		return result.queryType, result.weights, nil
	}

	qt, weights, err := c.patterns.Classify(ctx, query)
	if err == nil {
		c.cache.Add(cacheKey, classificationResult{qt, weights})
	}
	return qt, weights, err
}

// normalizeQuery normalizes a query for cache key.
func normalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Ensure CachedClassifier implements Classifier interface.
var _ Classifier = (*CachedClassifier)(nil)
